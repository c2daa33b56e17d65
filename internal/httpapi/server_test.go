package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/book-expert/sovits-service/internal/audio"
	"github.com/book-expert/sovits-service/internal/cache"
	"github.com/book-expert/sovits-service/internal/chunking"
	"github.com/book-expert/sovits-service/internal/conditioning"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/core/coretest"
	"github.com/book-expert/sovits-service/internal/engine"
	"github.com/book-expert/sovits-service/internal/httpapi"
	"github.com/book-expert/sovits-service/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	handler http.Handler
	models  map[string]*coretest.Model
}

func newFixture(t *testing.T, frontendFailOn string, voices ...string) *fixture {
	t.Helper()

	log := coretest.NewLogger(t)
	frontend := &coretest.Frontend{}
	builder := conditioning.NewBuilder(&coretest.Resampler{}, &coretest.Extractor{}, frontend)
	eng := engine.New(frontend, builder, log)
	models := make(map[string]*coretest.Model)

	for _, name := range voices {
		model := &coretest.Model{}
		models[name] = model
		require.NoError(t, eng.AddVoice(context.Background(), name, model, make([]float32, 320), 32000, "ref"))
	}

	t.Cleanup(func() {
		_ = eng.Close()
	})

	frontend.FailOn = frontendFailOn

	resultCache := cache.New(&coretest.BlobStore{}, log)
	synth := pipeline.New(eng, resultCache, chunking.New(chunking.DefaultMaxRunes), pipeline.Options{Workers: 1}, log)
	server := httpapi.NewServer(synth, eng, time.Minute, log)

	return &fixture{handler: server.Handler(), models: models}
}

func (f *fixture) get(t *testing.T, path string, query url.Values) *httptest.ResponseRecorder {
	t.Helper()

	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	return rec
}

func TestTTS_ReturnsWAV(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "", "alice", "bob")

	rec := fx.get(t, "/tts", url.Values{"character": {"bob"}, "text": {"Hello."}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))

	samples, rate, err := audio.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, audio.OutputSampleRate, rate)
	assert.Len(t, samples, len("Hello.")*coretest.SamplesPerPhoneme)
	assert.Equal(t, 1, fx.models["bob"].Calls())

	again := fx.get(t, "/tts", url.Values{"character": {"bob"}, "text": {"Hello."}})
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, rec.Body.Bytes(), again.Body.Bytes())
	assert.Equal(t, 1, fx.models["bob"].Calls())
}

func TestTTS_DefaultsToFirstVoice(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "", "zed", "amy")

	rec := fx.get(t, "/tts", url.Values{"text": {"Hi."}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fx.models["amy"].Calls())
}

func TestTTS_ErrorStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		query  url.Values
		status int
	}{
		{name: "unknown voice", query: url.Values{"character": {"nobody"}, "text": {"Hi."}}, status: http.StatusNotFound},
		{name: "empty text", query: url.Values{"character": {"alice"}, "text": {"  "}}, status: http.StatusBadRequest},
		{name: "punctuation only", query: url.Values{"character": {"alice"}, "text": {"。"}}, status: http.StatusBadRequest},
		{name: "frontend failure", query: url.Values{"character": {"alice"}, "text": {"bad."}}, status: http.StatusBadRequest},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fx := newFixture(t, "bad", "alice")

			rec := fx.get(t, "/tts", testCase.query)
			require.Equal(t, testCase.status, rec.Code)

			var body map[string]string

			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			assert.NotContains(t, body["error"], "injected")
		})
	}
}

func TestTTS_NoVoicesLoaded(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "")

	rec := fx.get(t, "/tts", url.Values{"text": {"Hi."}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCharacterList(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "", "alice", "bob")

	rec := fx.get(t, "/character_list", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]string

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string][]string{"alice": {"default"}, "bob": {"default"}}, body)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, "", "alice")

	rec := fx.get(t, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","voices":1}`, rec.Body.String())
}

func TestStatusMapping_Cancelled(t *testing.T) {
	t.Parallel()

	server := httpapi.NewServer(cancelledSynth{}, staticCatalog{"alice"}, 0, coretest.NewLogger(t))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tts?text=hi", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type cancelledSynth struct{}

func (cancelledSynth) Run(context.Context, string, string) ([]float32, error) {
	return nil, core.ErrCancelled
}

type staticCatalog []string

func (s staticCatalog) HasVoice(name string) bool {
	for _, voice := range s {
		if voice == name {
			return true
		}
	}

	return false
}

func (s staticCatalog) Voices() []string {
	return s
}
