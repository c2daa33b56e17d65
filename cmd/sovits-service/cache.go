package main

import (
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/sovits-service/internal/cache"
	"github.com/book-expert/sovits-service/internal/config"
	"github.com/spf13/cobra"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newCacheSweepCommand(),
		newCacheKeyCommand(),
	)

	return cmd
}

func newCacheSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete cache entries older than the configured maximum age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return loadService(func(cfg *config.Config, log *logger.Logger) error {
				natsConnection, jetstreamContext, err := connectNATS(cfg)
				if err != nil {
					return err
				}

				if natsConnection != nil {
					defer natsConnection.Close()
				}

				store, err := cacheStore(cfg, jetstreamContext)
				if err != nil {
					return err
				}

				removed, err := cache.New(store, log).Sweep(cmd.Context(), cfg.CacheMaxAge())
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries\n", removed)

				return err
			})
		},
	}
}

func newCacheKeyCommand() *cobra.Command {
	var voice string

	var text string

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the cache key for a voice and text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cache.Key(text, voice))

			return nil
		},
	}

	cmd.Flags().StringVar(&voice, "voice", "", "Voice name")
	cmd.Flags().StringVar(&text, "text", "", "Input text")
	_ = cmd.MarkFlagRequired("voice")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}
