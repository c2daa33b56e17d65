package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/book-expert/sovits-service/internal/audio"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/voices"
)

// LoadVoices loads every voice in the registry's latest scan. A voice whose files are
// missing or whose conditioning fails is logged and skipped. The names that were loaded
// are returned in lexicographic order.
func (e *Engine) LoadVoices(ctx context.Context, registry *voices.Registry, loader core.ModelLoader) []string {
	loaded := make([]string, 0)

	for _, name := range registry.List() {
		profile, ok := registry.Get(name)
		if !ok {
			continue
		}

		err := e.loadVoice(ctx, profile, loader)
		if err != nil {
			e.log.Error("Skipping voice %s: %v", name, err)

			continue
		}

		loaded = append(loaded, name)
	}

	e.log.Info("Loaded %d of %d voices from %s.", len(loaded), len(registry.List()), registry.Root())

	return loaded
}

func (e *Engine) loadVoice(ctx context.Context, profile voices.Profile, loader core.ModelLoader) error {
	layout, err := profile.Layout()
	if err != nil {
		return err
	}

	wavData, err := os.ReadFile(layout.RefAudioPath)
	if err != nil {
		return fmt.Errorf("%w: failed to read reference audio: %w", core.ErrConfig, err)
	}

	samples, sampleRate, err := audio.Decode(wavData)
	if err != nil {
		return fmt.Errorf("%w: failed to decode reference audio %s: %w", core.ErrConfig, layout.RefAudioPath, err)
	}

	refText, err := os.ReadFile(layout.RefTextPath)
	if err != nil {
		return fmt.Errorf("%w: failed to read reference text: %w", core.ErrConfig, err)
	}

	model, err := loader.LoadSynthesisModel(layout.ModelPath)
	if err != nil {
		return fmt.Errorf("%w: failed to load model %s: %w", core.ErrConfig, layout.ModelPath, err)
	}

	err = e.AddVoice(ctx, profile.Name, model, samples, sampleRate, string(refText))
	if err != nil {
		closeErr := model.Close()
		if closeErr != nil {
			e.log.Warn("Failed to close model for voice %s: %v", profile.Name, closeErr)
		}

		return err
	}

	return nil
}
