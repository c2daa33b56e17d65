package voices

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/sovits-service/internal/core"
	"github.com/pelletier/go-toml/v2"
)

// Default file names inside a voice directory.
const (
	ManifestFile         = "voice.toml"
	DefaultRefAudio      = "ref.wav"
	DefaultRefText       = "ref.txt"
	DefaultModelArtifact = "model.onnx"
)

// Manifest is the optional voice.toml found in a voice directory.
type Manifest struct {
	RefAudio string `toml:"ref_audio"`
	RefText  string `toml:"ref_text"`
	Model    string `toml:"model"`
}

// Layout is the resolved set of files for one voice.
type Layout struct {
	RefAudioPath string
	RefTextPath  string
	ModelPath    string
}

// Layout resolves the voice's files, applying voice.toml overrides when present.
// Relative manifest paths are resolved against the voice directory. Files are not
// checked for existence here.
func (p Profile) Layout() (Layout, error) {
	manifest := Manifest{
		RefAudio: DefaultRefAudio,
		RefText:  DefaultRefText,
		Model:    DefaultModelArtifact,
	}

	data, err := os.ReadFile(filepath.Join(p.Path, ManifestFile))

	switch {
	case err == nil:
		parseErr := toml.Unmarshal(data, &manifest)
		if parseErr != nil {
			return Layout{}, fmt.Errorf("%w: failed to parse %s for voice %s: %w",
				core.ErrConfig, ManifestFile, p.Name, parseErr)
		}
	case !errors.Is(err, os.ErrNotExist):
		return Layout{}, fmt.Errorf("%w: failed to read %s for voice %s: %w",
			core.ErrConfig, ManifestFile, p.Name, err)
	}

	return Layout{
		RefAudioPath: p.resolve(manifest.RefAudio, DefaultRefAudio),
		RefTextPath:  p.resolve(manifest.RefText, DefaultRefText),
		ModelPath:    p.resolve(manifest.Model, DefaultModelArtifact),
	}, nil
}

func (p Profile) resolve(name, fallback string) string {
	if name == "" {
		name = fallback
	}

	if filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(p.Path, name)
}
