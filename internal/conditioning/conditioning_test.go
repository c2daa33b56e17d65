package conditioning_test

import (
	"context"
	"testing"

	"github.com/book-expert/sovits-service/internal/conditioning"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referenceAudio(length int) []float32 {
	samples := make([]float32, length)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}

	return samples
}

func TestBuild_PackagesEveryInput(t *testing.T) {
	t.Parallel()

	extractor := &coretest.Extractor{}
	frontend := &coretest.Frontend{}
	builder := conditioning.NewBuilder(&coretest.Resampler{}, extractor, frontend)

	cond, err := builder.Build(context.Background(), "alice", referenceAudio(48000), 48000, "  hello there ")
	require.NoError(t, err)

	assert.Equal(t, "alice", cond.Voice())
	assert.Equal(t, "hello there.", cond.RefText())
	assert.Len(t, cond.Audio16k(), 16000)
	assert.Len(t, cond.Audio32k(), 32000)
	assert.Equal(t, []int64{1, 32000}, cond.RefAudioTensor().Shape)

	require.Len(t, extractor.Shapes(), 1)
	assert.Equal(t, []int64{1, 16000}, extractor.Shapes()[0])
	assert.Equal(t, []float32{16000}, cond.AcousticContent().Data)

	assert.Equal(t, 1, frontend.Calls())
	assert.Len(t, cond.RefPhonemes().Data, len("hello there."))
	assert.Equal(t, []int64{int64(len("hello there.")), coretest.FeatureDim}, cond.RefFeatures().Shape)
}

func TestBuild_KeepsExistingTerminal(t *testing.T) {
	t.Parallel()

	builder := conditioning.NewBuilder(&coretest.Resampler{}, &coretest.Extractor{}, &coretest.Frontend{})

	for _, refText := range []string{"你好。", "Ready!", "Really?"} {
		cond, err := builder.Build(context.Background(), "v", referenceAudio(320), 32000, refText)
		require.NoError(t, err)
		assert.Equal(t, refText, cond.RefText())
	}
}

func TestBuild_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		resampler *coretest.Resampler
		extractor *coretest.Extractor
		frontend  *coretest.Frontend
		samples   []float32
		rate      int
		refText   string
		wantErr   error
	}{
		{
			name:      "no samples",
			resampler: &coretest.Resampler{},
			extractor: &coretest.Extractor{},
			frontend:  &coretest.Frontend{},
			samples:   nil,
			rate:      32000,
			refText:   "hi",
			wantErr:   core.ErrConfig,
		},
		{
			name:      "invalid rate",
			resampler: &coretest.Resampler{},
			extractor: &coretest.Extractor{},
			frontend:  &coretest.Frontend{},
			samples:   referenceAudio(10),
			rate:      0,
			refText:   "hi",
			wantErr:   core.ErrConfig,
		},
		{
			name:      "blank transcript",
			resampler: &coretest.Resampler{},
			extractor: &coretest.Extractor{},
			frontend:  &coretest.Frontend{},
			samples:   referenceAudio(10),
			rate:      32000,
			refText:   "   ",
			wantErr:   conditioning.ErrEmptyReferenceText,
		},
		{
			name:      "resampler failure",
			resampler: &coretest.Resampler{Err: coretest.ErrInjected},
			extractor: &coretest.Extractor{},
			frontend:  &coretest.Frontend{},
			samples:   referenceAudio(10),
			rate:      32000,
			refText:   "hi",
			wantErr:   core.ErrBackend,
		},
		{
			name:      "extractor failure",
			resampler: &coretest.Resampler{},
			extractor: &coretest.Extractor{Err: coretest.ErrInjected},
			frontend:  &coretest.Frontend{},
			samples:   referenceAudio(10),
			rate:      32000,
			refText:   "hi",
			wantErr:   core.ErrBackend,
		},
		{
			name:      "frontend failure",
			resampler: &coretest.Resampler{},
			extractor: &coretest.Extractor{},
			frontend:  &coretest.Frontend{FailOn: "hi"},
			samples:   referenceAudio(10),
			rate:      32000,
			refText:   "hi",
			wantErr:   core.ErrFrontend,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			builder := conditioning.NewBuilder(testCase.resampler, testCase.extractor, testCase.frontend)

			cond, err := builder.Build(context.Background(), "v", testCase.samples, testCase.rate, testCase.refText)
			require.ErrorIs(t, err, testCase.wantErr)
			assert.Nil(t, cond)
		})
	}
}
