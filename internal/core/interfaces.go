// Package core defines the core business logic and interfaces for the synthesis service.
package core

import (
	"context"
	"time"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// ObjectInfo describes one stored object. ModTime is owned by the backing store.
type ObjectInfo struct {
	Key     string
	ModTime time.Time
	Size    int64
}

// BlobStore is an ObjectStore that can also enumerate and delete its objects.
// It backs the result cache.
type BlobStore interface {
	ObjectStore
	List(ctx context.Context) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Frontend turns text into a phoneme id sequence and a per-phoneme feature tensor.
type Frontend interface {
	Analyze(ctx context.Context, text string) (IntTensor, Tensor, error)
}

// ContentExtractor produces the acoustic-content embedding of 16 kHz reference audio.
type ContentExtractor interface {
	Extract(ctx context.Context, audio Tensor) (Tensor, error)
}

// Resampler converts mono samples between sample rates.
type Resampler interface {
	Resample(ctx context.Context, samples []float32, fromRate, toRate int) ([]float32, error)
}

// SynthesisInput carries the seven inputs of one synthesis network call.
type SynthesisInput struct {
	AcousticContent Tensor
	RefAudio        Tensor
	RefPhonemes     IntTensor
	Phonemes        IntTensor
	RefFeatures     Tensor
	Features        Tensor
	TopK            int64
}

// SynthesisModel is one loaded per-voice synthesis network. Implementations are not
// required to be safe for concurrent Forward calls.
type SynthesisModel interface {
	Forward(ctx context.Context, in SynthesisInput) (Tensor, error)
	Close() error
}

// ModelLoader loads a synthesis network artifact from disk.
type ModelLoader interface {
	LoadSynthesisModel(path string) (SynthesisModel, error)
}
