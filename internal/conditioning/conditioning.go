// Package conditioning builds the per-voice reference conditioning consumed by every
// synthesis call for that voice.
//
// A Conditioning value is immutable once Build returns. It is shared by pointer and read
// without locks. The builder performs inference only; nothing here records gradients.
package conditioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/sovits-service/internal/audio"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/text"
)

var (
	// ErrNoSamples indicates reference audio without any samples.
	ErrNoSamples = errors.New("reference audio has no samples")
	// ErrEmptyReferenceText indicates a blank reference transcript.
	ErrEmptyReferenceText = errors.New("reference text is empty")
)

// Conditioning is the precomputed reference data for one voice.
type Conditioning struct {
	voice       string
	refText     string
	audio16k    []float32
	audio32k    []float32
	content     core.Tensor
	refPhonemes core.IntTensor
	refFeatures core.Tensor
}

// Voice returns the voice name.
func (c *Conditioning) Voice() string { return c.voice }

// RefText returns the terminal-punctuated reference transcript.
func (c *Conditioning) RefText() string { return c.refText }

// Audio16k returns the reference audio at the content extraction rate.
func (c *Conditioning) Audio16k() []float32 { return c.audio16k }

// Audio32k returns the reference audio at the output rate.
func (c *Conditioning) Audio32k() []float32 { return c.audio32k }

// AcousticContent returns the content embedding of the 16 kHz reference audio.
func (c *Conditioning) AcousticContent() core.Tensor { return c.content }

// RefPhonemes returns the phoneme ids of the reference transcript.
func (c *Conditioning) RefPhonemes() core.IntTensor { return c.refPhonemes }

// RefFeatures returns the feature tensor of the reference transcript.
func (c *Conditioning) RefFeatures() core.Tensor { return c.refFeatures }

// RefAudioTensor returns the 32 kHz reference audio shaped [1, n].
func (c *Conditioning) RefAudioTensor() core.Tensor {
	return core.Tensor{
		Shape: []int64{1, int64(len(c.audio32k))},
		Data:  c.audio32k,
	}
}

// Builder turns raw reference audio and a transcript into Conditioning.
type Builder struct {
	resampler core.Resampler
	extractor core.ContentExtractor
	frontend  core.Frontend
}

// NewBuilder creates a Builder over the given collaborators.
func NewBuilder(resampler core.Resampler, extractor core.ContentExtractor, frontend core.Frontend) *Builder {
	return &Builder{
		resampler: resampler,
		extractor: extractor,
		frontend:  frontend,
	}
}

// Build computes the conditioning for one voice. Any failure aborts the build and no
// partial value is returned.
func (b *Builder) Build(
	ctx context.Context,
	voice string,
	samples []float32,
	sampleRate int,
	refText string,
) (*Conditioning, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: voice %s: %w", core.ErrConfig, voice, ErrNoSamples)
	}

	rateErr := audio.ValidateSampleRate(sampleRate)
	if rateErr != nil {
		return nil, fmt.Errorf("%w: voice %s: %w", core.ErrConfig, voice, rateErr)
	}

	normalized := text.EnsureTerminal(refText)
	if normalized == "" {
		return nil, fmt.Errorf("%w: voice %s: %w", core.ErrConfig, voice, ErrEmptyReferenceText)
	}

	audio16k, err := b.resampler.Resample(ctx, samples, sampleRate, audio.ContentSampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resample reference audio to %d Hz: %w",
			core.ErrBackend, audio.ContentSampleRate, err)
	}

	audio32k, err := b.resampler.Resample(ctx, samples, sampleRate, audio.OutputSampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resample reference audio to %d Hz: %w",
			core.ErrBackend, audio.OutputSampleRate, err)
	}

	content, err := b.extractor.Extract(ctx, core.Tensor{
		Shape: []int64{1, int64(len(audio16k))},
		Data:  audio16k,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to extract acoustic content: %w", core.ErrBackend, err)
	}

	phonemes, features, err := b.frontend.Analyze(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to analyze reference text: %w", core.ErrFrontend, err)
	}

	return &Conditioning{
		voice:       voice,
		refText:     normalized,
		audio16k:    audio16k,
		audio32k:    audio32k,
		content:     content,
		refPhonemes: phonemes,
		refFeatures: features,
	}, nil
}
