package core

import "errors"

// Error taxonomy shared by every component. Wrap with fmt.Errorf("%w: ...", ErrX) and
// test with errors.Is.
var (
	// ErrConfig marks missing or unreadable voice files and invalid settings.
	ErrConfig = errors.New("configuration error")
	// ErrFrontend marks text the linguistic frontend cannot analyze.
	ErrFrontend = errors.New("frontend error")
	// ErrBackend marks a failed compute backend call.
	ErrBackend = errors.New("backend error")
	// ErrSpeakerNotFound marks an unknown voice name.
	ErrSpeakerNotFound = errors.New("speaker not found")
	// ErrCache marks a result cache I/O failure. It never aborts a request.
	ErrCache = errors.New("cache error")
	// ErrCancelled marks a request aborted between chunks.
	ErrCancelled = errors.New("request cancelled")
	// ErrObjectNotFound is returned by object stores for an absent key.
	ErrObjectNotFound = errors.New("object not found")
)
