package main

import (
	"fmt"
	"os"
	"time"

	"github.com/book-expert/sovits-service/internal/client"
	"github.com/book-expert/sovits-service/internal/config"
	"github.com/spf13/cobra"
)

const (
	defaultServerURL     = "http://" + config.DefaultHTTPAddr
	defaultOutputFile    = "output.wav"
	defaultClientTimeout = 5 * time.Minute
	healthCheckTimeout   = 10 * time.Second
	outputPermissions    = 0o600
)

func newSayCommand() *cobra.Command {
	var (
		serverURL string
		voice     string
		text      string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "say",
		Short: "Ask a running service to speak text and save the WAV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			httpClient := client.NewHTTPClient(serverURL, defaultClientTimeout)

			wavData, err := httpClient.Synthesize(cmd.Context(), voice, text)
			if err != nil {
				return fmt.Errorf("failed to synthesize: %w", err)
			}

			err = os.WriteFile(output, wavData, outputPermissions)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated: %s (%s)\n", output, describeAudio(wavData))

			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "Service base URL")
	cmd.Flags().StringVarP(&voice, "voice", "v", "", "Voice name (defaults to the service's first voice)")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Text to convert to speech")
	cmd.Flags().StringVarP(&output, "output", "o", defaultOutputFile, "Output file path (.wav)")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func newHealthCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that a running service is healthy and list its voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			httpClient := client.NewHTTPClient(serverURL, healthCheckTimeout)

			err := httpClient.HealthCheck(cmd.Context())
			if err != nil {
				return fmt.Errorf("service is not healthy: %w", err)
			}

			characters, err := httpClient.Characters(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Service is healthy (%d voices)\n", len(characters))

			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "Service base URL")

	return cmd
}
