// Package httpapi exposes synthesis over HTTP.
//
//	GET /tts?character=<voice>&text=<text>   audio/wav
//	GET /character_list                      {"<voice>": ["default"], ...}
//	GET /health                              {"status": "ok", "voices": n}
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/sovits-service/internal/audio"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/pipeline"
	"github.com/gin-gonic/gin"
)

const (
	wavContentType  = "audio/wav"
	defaultEmotion  = "default"
	shutdownTimeout = 10 * time.Second
	readTimeout     = 30 * time.Second
)

// Synthesizer produces 32 kHz mono samples for text in a voice.
type Synthesizer interface {
	Run(ctx context.Context, voice, text string) ([]float32, error)
}

// VoiceCatalog reports which voices can be synthesized.
type VoiceCatalog interface {
	HasVoice(name string) bool
	Voices() []string
}

// Server serves the HTTP surface.
type Server struct {
	router         *gin.Engine
	synthesizer    Synthesizer
	catalog        VoiceCatalog
	requestTimeout time.Duration
	log            *logger.Logger
}

// NewServer builds the router. A non-positive requestTimeout disables the deadline.
func NewServer(synthesizer Synthesizer, catalog VoiceCatalog, requestTimeout time.Duration, log *logger.Logger) *Server {
	s := &Server{
		router:         gin.New(),
		synthesizer:    synthesizer,
		catalog:        catalog,
		requestTimeout: requestTimeout,
		log:            log,
	}

	s.router.Use(gin.Recovery(), s.accessLog())
	s.router.GET("/tts", s.handleTTS)
	s.router.POST("/tts", s.handleTTS)
	s.router.GET("/character_list", s.handleCharacterList)
	s.router.GET("/health", s.handleHealth)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
	}

	errChan := make(chan error, 1)

	go func() {
		errChan <- server.ListenAndServe()
	}()

	s.log.System("HTTP server listening on %s.", addr)

	select {
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	return nil
}

type ttsRequest struct {
	Character string `form:"character" json:"character"`
	Text      string `form:"text"      json:"text"`
}

func (s *Server) handleTTS(c *gin.Context) {
	var req ttsRequest

	err := c.ShouldBind(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})

		return
	}

	voice := req.Character
	if voice == "" {
		voices := s.catalog.Voices()
		if len(voices) == 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no voices loaded"})

			return
		}

		voice = voices[0]
	}

	ctx := c.Request.Context()

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	samples, err := s.synthesizer.Run(ctx, voice, req.Text)
	if err != nil {
		status, message := statusFor(err)
		s.log.Error("TTS request for voice %s failed (%d): %v", voice, status, err)
		c.JSON(status, gin.H{"error": message})

		return
	}

	wavData, err := audio.Encode(samples, audio.OutputSampleRate)
	if err != nil {
		s.log.Error("Failed to encode response for voice %s: %v", voice, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})

		return
	}

	c.Data(http.StatusOK, wavContentType, wavData)
}

func (s *Server) handleCharacterList(c *gin.Context) {
	characters := make(map[string][]string)
	for _, name := range s.catalog.Voices() {
		characters[name] = []string{defaultEmotion}
	}

	c.JSON(http.StatusOK, characters)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "voices": len(s.catalog.Voices())})
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.log.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// statusFor maps an error to a status code and a message that is safe to return.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrSpeakerNotFound):
		return http.StatusNotFound, "character not found"
	case errors.Is(err, pipeline.ErrEmptyText):
		return http.StatusBadRequest, "text is empty"
	case errors.Is(err, pipeline.ErrNothingToSynthesize):
		return http.StatusBadRequest, "text has nothing to synthesize"
	case errors.Is(err, core.ErrFrontend):
		return http.StatusBadRequest, "text could not be processed"
	case errors.Is(err, core.ErrCancelled):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
