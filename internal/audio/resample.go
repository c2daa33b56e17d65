package audio

import (
	"context"
	"fmt"
	"math"
)

// DefaultSincZeroCrossings is the kernel half-width used by NewSincResampler.
const DefaultSincZeroCrossings = 16

const ctxCheckInterval = 8192

// SincResampler converts sample rates with a Hann-windowed sinc kernel. When
// downsampling, the kernel cutoff is lowered to the target Nyquist frequency.
type SincResampler struct {
	zeroCrossings int
}

// NewSincResampler returns a resampler with the default kernel width.
func NewSincResampler() *SincResampler {
	return &SincResampler{zeroCrossings: DefaultSincZeroCrossings}
}

// Resample implements core.Resampler.
func (r *SincResampler) Resample(
	ctx context.Context,
	samples []float32,
	fromRate, toRate int,
) ([]float32, error) {
	err := ValidateSampleRate(fromRate)
	if err != nil {
		return nil, fmt.Errorf("invalid source rate: %w", err)
	}

	err = ValidateSampleRate(toRate)
	if err != nil {
		return nil, fmt.Errorf("invalid target rate: %w", err)
	}

	if fromRate == toRate || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)

		return out, nil
	}

	step := float64(fromRate) / float64(toRate)
	cutoff := math.Min(1.0, float64(toRate)/float64(fromRate))
	width := float64(r.zeroCrossings) / cutoff
	outLen := int(math.Ceil(float64(len(samples)) / step))
	out := make([]float32, outLen)

	for i := range outLen {
		if i%ctxCheckInterval == 0 {
			ctxErr := ctx.Err()
			if ctxErr != nil {
				return nil, fmt.Errorf("resample interrupted: %w", ctxErr)
			}
		}

		out[i] = float32(r.interpolate(samples, float64(i)*step, cutoff, width))
	}

	return out, nil
}

func (r *SincResampler) interpolate(samples []float32, center, cutoff, width float64) float64 {
	first := max(0, int(math.Ceil(center-width)))
	last := min(len(samples)-1, int(math.Floor(center+width)))

	sum := 0.0

	for j := first; j <= last; j++ {
		distance := center - float64(j)
		window := 0.5 * (1 + math.Cos(math.Pi*distance/width))
		sum += float64(samples[j]) * cutoff * sinc(cutoff*distance) * window
	}

	return sum
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}

	return math.Sin(math.Pi*x) / (math.Pi * x)
}
