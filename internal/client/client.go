// Package client talks to a running sovits-service over HTTP.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API endpoints.
const (
	apiTTS           = "/tts"
	apiCharacterList = "/character_list"
	apiHealth        = "/health"
)

const (
	headerAccept   = "Accept"
	contentTypeWAV = "audio/wav"
)

var (
	// ErrTextEmpty is returned before any request is made for blank text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrUnexpectedContentType indicates a successful response that is not WAV audio.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrEmptyAudio indicates a successful response with no body.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrService indicates a non-OK response from the service.
	ErrService = errors.New("service error")
)

// StatusError carries the status and message of a failed request.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (%d): %s", ErrService, e.StatusCode, e.Message)
}

// Unwrap makes StatusError match ErrService.
func (e *StatusError) Unwrap() error {
	return ErrService
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPClient is a client for the sovits-service HTTP API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient creates a client for the service at baseURL (e.g. "http://127.0.0.1:6006").
// The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize requests text spoken by voice and returns the WAV bytes. An empty voice
// lets the service pick its default.
func (c *HTTPClient) Synthesize(ctx context.Context, voice, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextEmpty
	}

	query := url.Values{"text": {text}}
	if voice != "" {
		query.Set("character", voice)
	}

	resp, err := c.get(ctx, apiTTS+"?"+query.Encode(), contentTypeWAV)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedContentType, contentTypeWAV, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// Characters returns the voices the service can speak with.
func (c *HTTPClient) Characters(ctx context.Context) (map[string][]string, error) {
	resp, err := c.get(ctx, apiCharacterList, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var characters map[string][]string

	err = json.NewDecoder(resp.Body).Decode(&characters)
	if err != nil {
		return nil, fmt.Errorf("failed to decode character list: %w", err)
	}

	return characters, nil
}

// HealthCheck verifies that the service is up.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	resp, err := c.get(ctx, apiHealth, "application/json")
	if err != nil {
		return err
	}

	return resp.Body.Close()
}

// get issues a GET and turns non-OK responses into *StatusError.
func (c *HTTPClient) get(ctx context.Context, path, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerAccept, accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, parseErrorResponse(resp)
	}

	return resp, nil
}

// parseErrorResponse decodes a JSON error body, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var decoded errorResponse

	err := json.Unmarshal(body, &decoded)
	if err == nil && decoded.Error != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: decoded.Error}
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
