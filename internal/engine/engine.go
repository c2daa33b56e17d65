// Package engine holds the loaded voices and runs one synthesis call per request chunk.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/sovits-service/internal/conditioning"
	"github.com/book-expert/sovits-service/internal/core"
)

// DefaultTopK is the sampling breadth passed to every synthesis call.
const DefaultTopK = 5

var (
	// ErrNilModel indicates AddVoice was called without a model.
	ErrNilModel = errors.New("synthesis model is nil")

	errVoiceClosed = errors.New("voice was removed")
)

// voiceEntry pairs a voice's conditioning with its model. The mutex serializes calls
// into the model and guards closed; the conditioning is immutable and read without it.
type voiceEntry struct {
	conditioning *conditioning.Conditioning
	model        core.SynthesisModel
	modelMu      sync.Mutex
	closed       bool
}

// Engine owns the catalog of loaded voices.
type Engine struct {
	frontend core.Frontend
	builder  *conditioning.Builder
	log      *logger.Logger

	mu     sync.RWMutex
	voices map[string]*voiceEntry
}

// New creates an Engine with no voices.
func New(frontend core.Frontend, builder *conditioning.Builder, log *logger.Logger) *Engine {
	return &Engine{
		frontend: frontend,
		builder:  builder,
		log:      log,
		voices:   make(map[string]*voiceEntry),
	}
}

// AddVoice builds conditioning for name from its reference audio and transcript and
// registers it together with model. An existing voice of the same name is replaced and
// its model closed. On failure the catalog is unchanged.
func (e *Engine) AddVoice(
	ctx context.Context,
	name string,
	model core.SynthesisModel,
	samples []float32,
	sampleRate int,
	refText string,
) error {
	if model == nil {
		return fmt.Errorf("%w: voice %s: %w", core.ErrConfig, name, ErrNilModel)
	}

	cond, err := e.builder.Build(ctx, name, samples, sampleRate, refText)
	if err != nil {
		return fmt.Errorf("failed to build conditioning for voice %s: %w", name, err)
	}

	e.mu.Lock()
	previous := e.voices[name]
	e.voices[name] = &voiceEntry{
		conditioning: cond,
		model:        model,
		modelMu:      sync.Mutex{},
		closed:       false,
	}
	e.mu.Unlock()

	if previous != nil && previous.model != model {
		e.closeEntry(name, previous)
	}

	e.log.Info("Voice %s ready (reference text %q).", name, cond.RefText())

	return nil
}

// RemoveVoice drops name from the catalog and closes its model.
func (e *Engine) RemoveVoice(name string) error {
	e.mu.Lock()
	entry, ok := e.voices[name]
	delete(e.voices, name)
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSpeakerNotFound, name)
	}

	e.closeEntry(name, entry)

	return nil
}

// Voices returns the loaded voice names in lexicographic order.
func (e *Engine) Voices() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.voices))
	for name := range e.voices {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// HasVoice reports whether name is loaded.
func (e *Engine) HasVoice(name string) bool {
	_, ok := e.lookup(name)

	return ok
}

// Synthesize runs one synthesis call for text in voice and returns the raw 32 kHz
// waveform tensor.
func (e *Engine) Synthesize(ctx context.Context, voice, text string) (core.Tensor, error) {
	entry, ok := e.lookup(voice)
	if !ok {
		return core.Tensor{}, fmt.Errorf("%w: %s", core.ErrSpeakerNotFound, voice)
	}

	phonemes, features, err := e.frontend.Analyze(ctx, text)
	if err != nil {
		return core.Tensor{}, fmt.Errorf("%w: failed to analyze text for voice %s: %w", core.ErrFrontend, voice, err)
	}

	cond := entry.conditioning
	input := core.SynthesisInput{
		AcousticContent: cond.AcousticContent(),
		RefAudio:        cond.RefAudioTensor(),
		RefPhonemes:     cond.RefPhonemes(),
		Phonemes:        phonemes,
		RefFeatures:     cond.RefFeatures(),
		Features:        features,
		TopK:            DefaultTopK,
	}

	output, err := entry.forward(ctx, input)
	if err != nil {
		if errors.Is(err, errVoiceClosed) {
			return core.Tensor{}, fmt.Errorf("%w: %s", core.ErrSpeakerNotFound, voice)
		}

		return core.Tensor{}, fmt.Errorf("%w: synthesis failed for voice %s: %w", core.ErrBackend, voice, err)
	}

	return output, nil
}

// Close closes every loaded model and empties the catalog.
func (e *Engine) Close() error {
	e.mu.Lock()
	entries := e.voices
	e.voices = make(map[string]*voiceEntry)
	e.mu.Unlock()

	var errs []error

	for name, entry := range entries {
		err := entry.close()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to close model for voice %s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) lookup(name string) (*voiceEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.voices[name]

	return entry, ok
}

func (e *Engine) closeEntry(name string, entry *voiceEntry) {
	err := entry.close()
	if err != nil {
		e.log.Warn("Failed to close model for voice %s: %v", name, err)
	}
}

func (v *voiceEntry) forward(ctx context.Context, input core.SynthesisInput) (core.Tensor, error) {
	v.modelMu.Lock()
	defer v.modelMu.Unlock()

	if v.closed {
		return core.Tensor{}, errVoiceClosed
	}

	return v.model.Forward(ctx, input)
}

// close waits for an in-flight call to finish before closing the model.
func (v *voiceEntry) close() error {
	v.modelMu.Lock()
	defer v.modelMu.Unlock()

	if v.closed {
		return nil
	}

	v.closed = true

	return v.model.Close()
}
