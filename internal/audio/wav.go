// Package audio provides the WAV codec, sample conversion and resampling used by the
// synthesis pipeline and the result cache.
//
// All in-memory audio is mono float32 in [-1, 1]. Stored audio is 16-bit PCM WAV.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sample rates used by the synthesis stack.
const (
	ContentSampleRate = 16000 // acoustic-content extraction input
	OutputSampleRate  = 32000 // reference conditioning and synthesized output
)

// Output encoding settings.
const (
	BitDepth16   = 16
	MonoChannels = 1
	pcmFormat    = 1
	maxInt16     = 32767
	maxInt24     = 8388607
	maxInt32     = 2147483647
	int8Offset   = 128
	maxInt8      = 127
)

// MaxSampleRate bounds accepted sample rates.
const MaxSampleRate = 192000

// Error formats.
const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz, got %d"
	errFmtBitDepth        = "%w: unsupported bit depth %d"
)

var (
	// ErrInvalidWAV is returned when data is not a decodable PCM WAV stream.
	ErrInvalidWAV = errors.New("invalid wav data")
	// ErrInvalidFormat is returned for unsupported sample rates or bit depths.
	ErrInvalidFormat = errors.New("invalid audio format")
)

// Encode converts mono samples into a 16-bit PCM WAV byte stream.
func Encode(samples []float32, sampleRate int) ([]byte, error) {
	rateErr := ValidateSampleRate(sampleRate)
	if rateErr != nil {
		return nil, rateErr
	}

	sink := &writeSeeker{}
	encoder := wav.NewEncoder(sink, sampleRate, BitDepth16, MonoChannels, pcmFormat)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: MonoChannels, SampleRate: sampleRate},
		Data:           toInt16Range(samples),
		SourceBitDepth: BitDepth16,
	}

	err := encoder.Write(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize wav stream: %w", err)
	}

	return sink.Bytes(), nil
}

// Decode parses a PCM WAV byte stream, downmixing to mono.
func Decode(data []byte) (samples []float32, sampleRate int, err error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}

	sampleRate = int(decoder.SampleRate)

	rateErr := ValidateSampleRate(sampleRate)
	if rateErr != nil {
		return nil, 0, rateErr
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		return nil, 0, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}

	samples, err = toFloat(buf.Data, int(decoder.BitDepth), channels)
	if err != nil {
		return nil, 0, err
	}

	return samples, sampleRate, nil
}

// Quantize16 rounds samples to the precision of 16-bit PCM, so that a buffer survives a
// WAV round trip unchanged.
func Quantize16(samples []float32) []float32 {
	out := make([]float32, len(samples))
	for i, sample := range samples {
		out[i] = float32(float64(quantizeSample(sample)) / maxInt16)
	}

	return out
}

// Concat joins sample buffers in order.
func Concat(parts [][]float32) []float32 {
	total := 0
	for _, part := range parts {
		total += len(part)
	}

	out := make([]float32, 0, total)
	for _, part := range parts {
		out = append(out, part...)
	}

	return out
}

// ValidateSampleRate checks that a rate is positive and within MaxSampleRate.
func ValidateSampleRate(sampleRate int) error {
	if sampleRate <= 0 || sampleRate > MaxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, MaxSampleRate, sampleRate)
	}

	return nil
}

func quantizeSample(sample float32) int {
	clamped := math.Max(-1.0, math.Min(1.0, float64(sample)))

	return int(math.Round(clamped * maxInt16))
}

func toInt16Range(samples []float32) []int {
	out := make([]int, len(samples))
	for i, sample := range samples {
		out[i] = quantizeSample(sample)
	}

	return out
}

func toFloat(data []int, bitDepth, channels int) ([]float32, error) {
	var (
		scale  float64
		offset int
	)

	switch bitDepth {
	case 8:
		scale, offset = maxInt8, int8Offset
	case BitDepth16:
		scale = maxInt16
	case 24:
		scale = maxInt24
	case 32:
		scale = maxInt32
	default:
		return nil, fmt.Errorf(errFmtBitDepth, ErrInvalidFormat, bitDepth)
	}

	frames := len(data) / channels
	out := make([]float32, frames)

	for frame := range frames {
		sum := 0.0
		for ch := range channels {
			sum += float64(data[frame*channels+ch]-offset) / scale
		}

		out[frame] = float32(sum / float64(channels))
	}

	return out, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to patch
// chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		grown := make([]byte, end)
		copy(grown, w.buf)
		w.buf = grown
	}

	copy(w.buf[w.pos:], p)
	w.pos = end

	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}

	w.pos = int(next)

	return next, nil
}

func (w *writeSeeker) Bytes() []byte {
	return w.buf
}
