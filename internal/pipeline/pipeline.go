// Package pipeline turns one synthesis request into audio: cache lookup, chunking,
// per-chunk synthesis, ordered assembly and cache fill.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/sovits-service/internal/audio"
	"github.com/book-expert/sovits-service/internal/cache"
	"github.com/book-expert/sovits-service/internal/chunking"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/text"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyText indicates a request whose text is blank.
	ErrEmptyText = errors.New("text is empty")
	// ErrNothingToSynthesize indicates text made only of sentence punctuation.
	ErrNothingToSynthesize = errors.New("text has nothing to synthesize")
)

// Synthesizer runs one synthesis call per chunk.
type Synthesizer interface {
	HasVoice(name string) bool
	Synthesize(ctx context.Context, voice, text string) (core.Tensor, error)
}

// Splitter cuts request text into ordered chunks.
type Splitter interface {
	Split(text string) []string
}

// ResultCache stores finished waveforms by key.
type ResultCache interface {
	Lookup(ctx context.Context, key string) ([]float32, bool)
	Store(ctx context.Context, key string, samples []float32) error
}

// Options tunes a Pipeline.
type Options struct {
	// Workers bounds concurrent chunk synthesis. Values below 2 run chunks in order
	// on the calling goroutine.
	Workers int
}

// Pipeline drives requests through the cache and the engine.
type Pipeline struct {
	engine   Synthesizer
	cache    ResultCache
	splitter Splitter
	opts     Options
	log      *logger.Logger
}

// New creates a Pipeline. A nil cache disables caching.
func New(engine Synthesizer, resultCache ResultCache, splitter Splitter, opts Options, log *logger.Logger) *Pipeline {
	return &Pipeline{
		engine:   engine,
		cache:    resultCache,
		splitter: splitter,
		opts:     opts,
		log:      log,
	}
}

// Run returns the 32 kHz mono waveform for text spoken by voice. A cached result is
// returned without touching the engine. Fresh results are quantized to 16-bit precision
// before they are cached and returned, so repeated requests yield identical samples.
func (p *Pipeline) Run(ctx context.Context, voice, input string) ([]float32, error) {
	canonical := text.Canonical(input)
	if canonical == "" {
		return nil, ErrEmptyText
	}

	key := cache.Key(canonical, voice)

	if p.cache != nil {
		samples, hit := p.cache.Lookup(ctx, key)
		if hit {
			p.log.Info("Cache hit for voice %s (key %s).", voice, key)

			return samples, nil
		}
	}

	if !p.engine.HasVoice(voice) {
		return nil, fmt.Errorf("%w: %s", core.ErrSpeakerNotFound, voice)
	}

	chunks := p.chunks(canonical)
	if len(chunks) == 0 {
		return nil, ErrNothingToSynthesize
	}

	parts, err := p.synthesize(ctx, voice, chunks)
	if err != nil {
		return nil, err
	}

	samples := audio.Quantize16(audio.Concat(parts))

	if p.cache != nil {
		storeErr := p.cache.Store(ctx, key, samples)
		if storeErr != nil {
			p.log.Warn("Failed to cache result for voice %s: %v", voice, storeErr)
		}
	}

	p.log.Info("Synthesized %d chunks (%d samples) for voice %s.", len(chunks), len(samples), voice)

	return samples, nil
}

// chunks splits text and drops chunks made only of sentence punctuation.
func (p *Pipeline) chunks(input string) []string {
	all := p.splitter.Split(input)
	kept := make([]string, 0, len(all))

	for _, chunk := range all {
		if chunking.IsBareTerminal(chunk) {
			p.log.Info("Skipping punctuation-only chunk %q.", chunk)

			continue
		}

		kept = append(kept, chunk)
	}

	return kept
}

func (p *Pipeline) synthesize(ctx context.Context, voice string, chunks []string) ([][]float32, error) {
	parts := make([][]float32, len(chunks))

	if p.opts.Workers < 2 {
		for index, chunk := range chunks {
			if ctx.Err() != nil {
				return nil, cancelled(ctx)
			}

			output, err := p.engine.Synthesize(ctx, voice, chunk)
			if err != nil {
				return nil, p.chunkError(ctx, index, err)
			}

			parts[index] = output.Data
		}

		return parts, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.opts.Workers)

	for index, chunk := range chunks {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}

			output, err := p.engine.Synthesize(groupCtx, voice, chunk)
			if err != nil {
				return p.chunkError(groupCtx, index, err)
			}

			parts[index] = output.Data

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}

		return nil, err
	}

	return parts, nil
}

func (p *Pipeline) chunkError(ctx context.Context, index int, err error) error {
	if ctx.Err() != nil {
		return cancelled(ctx)
	}

	return fmt.Errorf("failed to synthesize chunk %d: %w", index, err)
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", core.ErrCancelled, ctx.Err())
}
