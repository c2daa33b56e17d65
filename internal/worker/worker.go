// Package worker provides a NATS worker that turns text events into synthesized audio.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/sovits-service/internal/audio"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultJobTimeout bounds one job when no timeout is configured.
const DefaultJobTimeout = 300 * time.Second

var (
	// ErrNoVoices indicates a job arrived while no voice is loaded.
	ErrNoVoices = errors.New("no voices are loaded")
	// ErrTextKeyEmpty indicates an event without a text object key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
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

// NatsWorker listens for text events on a NATS subject and replies with audio events.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	synthesizer    Synthesizer
	catalog        VoiceCatalog
	jobTimeout     time.Duration
	log            *logger.Logger

	announceSubject string
}

// NewNatsWorker creates a new instance of a NATS worker. A non-positive jobTimeout
// selects DefaultJobTimeout.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	synthesizer Synthesizer,
	catalog VoiceCatalog,
	jobTimeout time.Duration,
	log *logger.Logger,
) *NatsWorker {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		synthesizer:    synthesizer,
		catalog:        catalog,
		jobTimeout:     jobTimeout,
		log:            log,
	}
}

// AnnounceOn makes the worker also publish every reply event on subject. It must be
// called before Run. An empty subject disables announcements.
func (w *NatsWorker) AnnounceOn(subject string) {
	w.announceSubject = subject
}

// Run subscribes and processes messages until ctx is done, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for jobs on subject %s.", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(parent context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(parent, w.jobTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	audioKey, processErr := w.processJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process TTS job for workflow %s: %v", event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob downloads the text, synthesizes it and uploads the WAV under a new key.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	voice, err := w.resolveVoice(event.Voice)
	if err != nil {
		return "", err
	}

	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	samples, err := w.synthesizer.Run(ctx, voice, string(textData))
	if err != nil {
		return "", fmt.Errorf("failed to synthesize text for voice %s: %w", voice, err)
	}

	audioData, err := audio.Encode(samples, audio.OutputSampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode audio: %w", err)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	return audioKey, nil
}

// resolveVoice maps an empty voice to the first loaded voice and rejects unknown names.
func (w *NatsWorker) resolveVoice(voice string) (string, error) {
	if voice == "" {
		loaded := w.catalog.Voices()
		if len(loaded) == 0 {
			return "", ErrNoVoices
		}

		return loaded[0], nil
	}

	if !w.catalog.HasVoice(voice) {
		return "", fmt.Errorf("%w: '%s'", core.ErrSpeakerNotFound, voice)
	}

	return voice, nil
}

// publishReplyEvent marshals the AudioChunkCreatedEvent, responds to the requester
// and announces it when an announce subject is set.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	if msg.Reply != "" {
		err = msg.Respond(replyData)
		if err != nil {
			return fmt.Errorf("failed to publish reply event: %w", err)
		}
	}

	if w.announceSubject != "" {
		err = w.natsConnection.Publish(w.announceSubject, replyData)
		if err != nil {
			return fmt.Errorf("failed to announce event on %s: %w", w.announceSubject, err)
		}
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
