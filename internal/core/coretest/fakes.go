// Package coretest provides in-memory collaborators for tests of the synthesis stack.
package coretest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/sovits-service/internal/core"
)

// SamplesPerPhoneme is the number of samples Model emits for each phoneme id.
const SamplesPerPhoneme = 4

// FeatureDim is the feature width produced by Frontend.
const FeatureDim = 2

var (
	// ErrInjected is returned by fakes configured to fail.
	ErrInjected = errors.New("injected failure")
)

// Frontend maps every rune to its code point as a phoneme id.
type Frontend struct {
	// FailOn makes Analyze fail for any text containing it.
	FailOn string

	calls atomic.Int64
}

// Analyze implements core.Frontend.
func (f *Frontend) Analyze(_ context.Context, input string) (core.IntTensor, core.Tensor, error) {
	f.calls.Add(1)

	if f.FailOn != "" && strings.Contains(input, f.FailOn) {
		return core.IntTensor{}, core.Tensor{}, ErrInjected
	}

	ids := make([]int64, 0, len(input))
	for _, r := range input {
		ids = append(ids, int64(r))
	}

	return core.IntTensor{Shape: []int64{1, int64(len(ids))}, Data: ids},
		core.Tensor{Shape: []int64{int64(len(ids)), FeatureDim}, Data: make([]float32, len(ids)*FeatureDim)},
		nil
}

// Calls returns the number of Analyze calls.
func (f *Frontend) Calls() int {
	return int(f.calls.Load())
}

// Resampler performs nearest-neighbour rate conversion.
type Resampler struct {
	Err error
}

// Resample implements core.Resampler.
func (r *Resampler) Resample(_ context.Context, samples []float32, fromRate, toRate int) ([]float32, error) {
	if r.Err != nil {
		return nil, r.Err
	}

	length := len(samples) * toRate / fromRate
	out := make([]float32, length)

	for i := range out {
		out[i] = samples[i*fromRate/toRate]
	}

	return out, nil
}

// Extractor returns a [1, 1] tensor holding the input length.
type Extractor struct {
	Err error

	mu     sync.Mutex
	shapes [][]int64
}

// Extract implements core.ContentExtractor.
func (e *Extractor) Extract(_ context.Context, input core.Tensor) (core.Tensor, error) {
	e.mu.Lock()
	e.shapes = append(e.shapes, input.Shape)
	e.mu.Unlock()

	if e.Err != nil {
		return core.Tensor{}, e.Err
	}

	return core.Tensor{Shape: []int64{1, 1}, Data: []float32{float32(input.Len())}}, nil
}

// Shapes returns the input shapes seen so far.
func (e *Extractor) Shapes() [][]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([][]int64(nil), e.shapes...)
}

// Model emits SamplesPerPhoneme samples per phoneme, each equal to the phoneme id
// scaled into [0, 1). It tracks concurrent Forward calls.
type Model struct {
	// Delay, when set, is slept before each Forward returns.
	Delay func(in core.SynthesisInput) time.Duration
	// FailOn makes Forward fail when the first phoneme equals it.
	FailOn int64

	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	closed   atomic.Bool

	mu     sync.Mutex
	inputs []core.SynthesisInput
}

// Forward implements core.SynthesisModel.
func (m *Model) Forward(ctx context.Context, in core.SynthesisInput) (core.Tensor, error) {
	m.calls.Add(1)

	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)

	for {
		seen := m.maxSeen.Load()
		if current <= seen || m.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}

	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	m.mu.Unlock()

	if m.Delay != nil {
		select {
		case <-time.After(m.Delay(in)):
		case <-ctx.Done():
			return core.Tensor{}, ctx.Err()
		}
	}

	if m.FailOn != 0 && len(in.Phonemes.Data) > 0 && in.Phonemes.Data[0] == m.FailOn {
		return core.Tensor{}, ErrInjected
	}

	out := make([]float32, 0, len(in.Phonemes.Data)*SamplesPerPhoneme)
	for _, id := range in.Phonemes.Data {
		for range SamplesPerPhoneme {
			out = append(out, PhonemeLevel(id))
		}
	}

	return core.Tensor{Shape: []int64{1, 1, int64(len(out))}, Data: out}, nil
}

// Close implements core.SynthesisModel.
func (m *Model) Close() error {
	m.closed.Store(true)

	return nil
}

// Calls returns the number of Forward calls.
func (m *Model) Calls() int {
	return int(m.calls.Load())
}

// MaxConcurrent returns the highest number of overlapping Forward calls observed.
func (m *Model) MaxConcurrent() int {
	return int(m.maxSeen.Load())
}

// Closed reports whether Close was called.
func (m *Model) Closed() bool {
	return m.closed.Load()
}

// Inputs returns the inputs seen so far.
func (m *Model) Inputs() []core.SynthesisInput {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]core.SynthesisInput(nil), m.inputs...)
}

// PhonemeLevel is the sample value Model emits for a phoneme id.
func PhonemeLevel(id int64) float32 {
	const levels = 1000

	return float32(id%levels) / levels
}

// Loader hands out Models keyed by artifact path.
type Loader struct {
	Err error

	mu     sync.Mutex
	models map[string]*Model
}

// LoadSynthesisModel implements core.ModelLoader.
func (l *Loader) LoadSynthesisModel(path string) (core.SynthesisModel, error) {
	if l.Err != nil {
		return nil, l.Err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.models == nil {
		l.models = make(map[string]*Model)
	}

	model := &Model{}
	l.models[path] = model

	return model, nil
}

// Model returns the model loaded from path, if any.
func (l *Loader) Model(path string) (*Model, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	model, ok := l.models[path]

	return model, ok
}

// BlobStore is an in-memory core.BlobStore with settable modification times.
type BlobStore struct {
	Now func() time.Time
	// DownloadErr and UploadErr force failures.
	DownloadErr error
	UploadErr   error

	mu      sync.Mutex
	objects map[string]blob
}

type blob struct {
	data    []byte
	modTime time.Time
}

// Download implements core.ObjectStore.
func (s *BlobStore) Download(_ context.Context, key string) ([]byte, error) {
	if s.DownloadErr != nil {
		return nil, s.DownloadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, core.ErrObjectNotFound
	}

	return append([]byte(nil), obj.data...), nil
}

// Upload implements core.ObjectStore.
func (s *BlobStore) Upload(_ context.Context, key string, data []byte) error {
	if s.UploadErr != nil {
		return s.UploadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.objects == nil {
		s.objects = make(map[string]blob)
	}

	s.objects[key] = blob{data: append([]byte(nil), data...), modTime: s.now()}

	return nil
}

// List implements core.BlobStore.
func (s *BlobStore) List(_ context.Context) ([]core.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]core.ObjectInfo, 0, len(s.objects))
	for key, obj := range s.objects {
		infos = append(infos, core.ObjectInfo{Key: key, ModTime: obj.modTime, Size: int64(len(obj.data))})
	}

	return infos, nil
}

// Delete implements core.BlobStore.
func (s *BlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return core.ErrObjectNotFound
	}

	delete(s.objects, key)

	return nil
}

// SetModTime overrides the modification time of key.
func (s *BlobStore) SetModTime(key string, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obj, ok := s.objects[key]; ok {
		obj.modTime = modTime
		s.objects[key] = obj
	}
}

// Len returns the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.objects)
}

func (s *BlobStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}

	return time.Now()
}

// NewLogger returns a logger writing into a per-test temporary directory.
func NewLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}

	t.Cleanup(func() {
		_ = log.Close()
	})

	return log
}
