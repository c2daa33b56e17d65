package main

import (
	"fmt"
	"io"

	"github.com/book-expert/logger"
	"github.com/book-expert/sovits-service/internal/config"
	"github.com/book-expert/sovits-service/internal/voices"
	"github.com/spf13/cobra"
)

func newVoicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voice profiles under the voices directory and their files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return loadService(func(cfg *config.Config, log *logger.Logger) error {
				return listVoices(cmd.OutOrStdout(), cfg.Service.VoicesDir, log)
			})
		},
	}
}

func listVoices(out io.Writer, root string, log *logger.Logger) error {
	registry := voices.New(root)

	err := registry.Scan()
	if err != nil {
		return fmt.Errorf("failed to scan voices: %w", err)
	}

	names := registry.List()
	if len(names) == 0 {
		fmt.Fprintf(out, "No voices in %s\n", registry.Root())

		return nil
	}

	for _, name := range names {
		profile, ok := registry.Get(name)
		if !ok {
			continue
		}

		layout, layoutErr := profile.Layout()
		if layoutErr != nil {
			log.Warn("Voice %s has an unreadable manifest: %v", name, layoutErr)
			fmt.Fprintf(out, "%s\t(invalid manifest: %v)\n", name, layoutErr)

			continue
		}

		fmt.Fprintf(out, "%s\n  audio: %s\n  text:  %s\n  model: %s\n",
			name, layout.RefAudioPath, layout.RefTextPath, layout.ModelPath)
	}

	return nil
}
