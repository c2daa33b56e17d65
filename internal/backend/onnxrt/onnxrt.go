// Package onnxrt runs the acoustic-content and synthesis networks with ONNX Runtime.
//
// ONNX Runtime sessions are inference-only, so no gradient state is ever recorded.
// Output tensors are copied into Go memory before the runtime values are destroyed.
package onnxrt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/book-expert/sovits-service/internal/core"
	ort "github.com/yalue/onnxruntime_go"
)

// Tensor names of the exported networks.
const (
	ContentInput  = "audio"
	ContentOutput = "ssl_content"

	SynthesisOutput = "audio"
)

// SynthesisInputs lists the synthesis network inputs in call order.
var SynthesisInputs = []string{
	"ssl_content", "ref_audio_sr", "ref_seq", "text_seq", "ref_bert", "text_bert", "top_k",
}

var (
	// ErrUnexpectedOutput indicates a network produced a tensor of the wrong type.
	ErrUnexpectedOutput = errors.New("unexpected output tensor type")
	// ErrInvalidInput indicates a tensor whose data does not match its shape.
	ErrInvalidInput = errors.New("invalid network input")
	// ErrClosed indicates use of a closed session.
	ErrClosed = errors.New("session is closed")
)

// Runtime owns the process-wide ONNX Runtime environment and shared session options.
type Runtime struct {
	options *ort.SessionOptions
}

var initMu sync.Mutex

// NewRuntime loads the shared library at libPath (empty keeps the library default) and
// initializes the environment if it is not initialized yet.
func NewRuntime(libPath string, intraOpThreads int) (*Runtime, error) {
	initMu.Lock()
	defer initMu.Unlock()

	if !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}

		err := ort.InitializeEnvironment()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to initialize ONNX Runtime: %w", core.ErrConfig, err)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	if intraOpThreads > 0 {
		err = options.SetIntraOpNumThreads(intraOpThreads)
		if err != nil {
			_ = options.Destroy()

			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	return &Runtime{options: options}, nil
}

// Close releases the session options and tears down the environment.
func (r *Runtime) Close() error {
	initMu.Lock()
	defer initMu.Unlock()

	err := r.options.Destroy()
	if err != nil {
		return fmt.Errorf("failed to destroy session options: %w", err)
	}

	err = ort.DestroyEnvironment()
	if err != nil {
		return fmt.Errorf("failed to destroy ONNX Runtime environment: %w", err)
	}

	return nil
}

// NewContentExtractor opens the acoustic-content network at path.
func (r *Runtime) NewContentExtractor(path string) (*ContentExtractor, error) {
	session, err := ort.NewDynamicAdvancedSession(path, []string{ContentInput}, []string{ContentOutput}, r.options)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load content model %s: %w", core.ErrConfig, path, err)
	}

	return &ContentExtractor{session: session}, nil
}

// LoadSynthesisModel opens the per-voice synthesis network at path.
func (r *Runtime) LoadSynthesisModel(path string) (core.SynthesisModel, error) {
	session, err := ort.NewDynamicAdvancedSession(path, SynthesisInputs, []string{SynthesisOutput}, r.options)
	if err != nil {
		return nil, fmt.Errorf("failed to load synthesis model %s: %w", path, err)
	}

	return &SynthesisModel{session: session}, nil
}

// ContentExtractor implements core.ContentExtractor.
type ContentExtractor struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// Extract returns the content embedding for 16 kHz audio shaped [1, n].
func (c *ContentExtractor) Extract(ctx context.Context, audio core.Tensor) (core.Tensor, error) {
	err := validateTensor("audio", audio)
	if err != nil {
		return core.Tensor{}, err
	}

	if ctx.Err() != nil {
		return core.Tensor{}, ctx.Err()
	}

	input, err := ort.NewTensor(ort.Shape(audio.Shape), audio.Data)
	if err != nil {
		return core.Tensor{}, fmt.Errorf("failed to create audio tensor: %w", err)
	}
	defer input.Destroy()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return core.Tensor{}, ErrClosed
	}

	return run(c.session, []ort.Value{input})
}

// Close releases the session.
func (c *ContentExtractor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}

	err := c.session.Destroy()
	c.session = nil

	return err
}

// SynthesisModel implements core.SynthesisModel. Callers serialize Forward.
type SynthesisModel struct {
	session *ort.DynamicAdvancedSession
}

// Forward runs the synthesis network and returns the waveform.
func (m *SynthesisModel) Forward(ctx context.Context, in core.SynthesisInput) (core.Tensor, error) {
	err := ValidateInput(in)
	if err != nil {
		return core.Tensor{}, err
	}

	if ctx.Err() != nil {
		return core.Tensor{}, ctx.Err()
	}

	if m.session == nil {
		return core.Tensor{}, ErrClosed
	}

	values := make([]ort.Value, 0, len(SynthesisInputs))

	defer func() {
		for _, value := range values {
			_ = value.Destroy()
		}
	}()

	floats := []core.Tensor{in.AcousticContent, in.RefAudio}
	for _, tensor := range floats {
		value, tensorErr := ort.NewTensor(ort.Shape(tensor.Shape), tensor.Data)
		if tensorErr != nil {
			return core.Tensor{}, fmt.Errorf("failed to create input tensor: %w", tensorErr)
		}

		values = append(values, value)
	}

	for _, tensor := range []core.IntTensor{in.RefPhonemes, in.Phonemes} {
		value, tensorErr := ort.NewTensor(ort.Shape(tensor.Shape), tensor.Data)
		if tensorErr != nil {
			return core.Tensor{}, fmt.Errorf("failed to create input tensor: %w", tensorErr)
		}

		values = append(values, value)
	}

	for _, tensor := range []core.Tensor{in.RefFeatures, in.Features} {
		value, tensorErr := ort.NewTensor(ort.Shape(tensor.Shape), tensor.Data)
		if tensorErr != nil {
			return core.Tensor{}, fmt.Errorf("failed to create input tensor: %w", tensorErr)
		}

		values = append(values, value)
	}

	topK, err := ort.NewTensor(ort.NewShape(1), []int64{in.TopK})
	if err != nil {
		return core.Tensor{}, fmt.Errorf("failed to create top_k tensor: %w", err)
	}

	values = append(values, topK)

	return run(m.session, values)
}

// Close releases the session.
func (m *SynthesisModel) Close() error {
	if m.session == nil {
		return nil
	}

	err := m.session.Destroy()
	m.session = nil

	return err
}

// ValidateInput checks that every tensor matches its shape, that phoneme sequences are
// non-empty, and that each feature tensor has one row per phoneme.
func ValidateInput(in core.SynthesisInput) error {
	named := map[string]core.Tensor{
		"ssl_content":  in.AcousticContent,
		"ref_audio_sr": in.RefAudio,
		"ref_bert":     in.RefFeatures,
		"text_bert":    in.Features,
	}

	for name, tensor := range named {
		err := validateTensor(name, tensor)
		if err != nil {
			return err
		}
	}

	sequences := map[string]core.IntTensor{"ref_seq": in.RefPhonemes, "text_seq": in.Phonemes}
	for name, tensor := range sequences {
		_, err := core.NewIntTensor(tensor.Data, tensor.Shape...)
		if err != nil || tensor.Len() == 0 {
			return fmt.Errorf("%w: %s has shape %v and %d elements", ErrInvalidInput, name, tensor.Shape, tensor.Len())
		}
	}

	err := matchRows("ref_bert", in.RefFeatures, in.RefPhonemes.Len())
	if err != nil {
		return err
	}

	return matchRows("text_bert", in.Features, in.Phonemes.Len())
}

func matchRows(name string, features core.Tensor, phonemes int) error {
	if features.Shape[0] != int64(phonemes) {
		return fmt.Errorf("%w: %s has %d rows for %d phonemes", ErrInvalidInput, name, features.Shape[0], phonemes)
	}

	return nil
}

func validateTensor(name string, tensor core.Tensor) error {
	_, err := core.NewTensor(tensor.Data, tensor.Shape...)
	if err != nil || tensor.Len() == 0 {
		return fmt.Errorf("%w: %s has shape %v and %d elements", ErrInvalidInput, name, tensor.Shape, tensor.Len())
	}

	return nil
}

// run executes session and copies its single float32 output into Go memory.
func run(session *ort.DynamicAdvancedSession, inputs []ort.Value) (core.Tensor, error) {
	outputs := []ort.Value{nil}

	err := session.Run(inputs, outputs)
	if err != nil {
		return core.Tensor{}, fmt.Errorf("failed to run session: %w", err)
	}
	defer outputs[0].Destroy()

	output, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return core.Tensor{}, ErrUnexpectedOutput
	}

	data := append([]float32(nil), output.GetData()...)
	shape := append([]int64(nil), output.GetShape()...)

	return core.Tensor{Shape: shape, Data: data}, nil
}
