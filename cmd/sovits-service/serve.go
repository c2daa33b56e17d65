package main

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/sovits-service/internal/audio"
	"github.com/book-expert/sovits-service/internal/backend/onnxrt"
	"github.com/book-expert/sovits-service/internal/cache"
	"github.com/book-expert/sovits-service/internal/chunking"
	"github.com/book-expert/sovits-service/internal/conditioning"
	"github.com/book-expert/sovits-service/internal/config"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/engine"
	"github.com/book-expert/sovits-service/internal/frontend"
	"github.com/book-expert/sovits-service/internal/httpapi"
	"github.com/book-expert/sovits-service/internal/objectstore"
	"github.com/book-expert/sovits-service/internal/pipeline"
	"github.com/book-expert/sovits-service/internal/voices"
	"github.com/book-expert/sovits-service/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load voices and serve synthesis over HTTP (and NATS when configured)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	return loadService(func(cfg *config.Config, log *logger.Logger) error {
		return serve(ctx, cfg, log)
	})
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	registry := voices.New(cfg.Service.VoicesDir)

	err := registry.Scan()
	if err != nil {
		return fmt.Errorf("failed to scan voices: %w", err)
	}

	runtime, err := onnxrt.NewRuntime(cfg.Backend.OnnxRuntimeLib, cfg.Backend.IntraOpThreads)
	if err != nil {
		return err
	}

	defer closeWithLog(log, "onnx runtime", runtime.Close)

	extractor, err := runtime.NewContentExtractor(cfg.Backend.ContentModelPath)
	if err != nil {
		return err
	}

	defer closeWithLog(log, "content extractor", extractor.Close)

	resources, err := frontend.LoadResources(cfg.Frontend.SymbolsPath, cfg.Frontend.DictDir)
	if err != nil {
		return err
	}

	dictionary := frontend.NewDictionary(resources, cfg.Frontend.FeatureDim)
	builder := conditioning.NewBuilder(audio.NewSincResampler(), extractor, dictionary)

	eng := engine.New(dictionary, builder, log)
	defer closeWithLog(log, "engine", eng.Close)

	loaded := eng.LoadVoices(ctx, registry, runtime)
	if len(loaded) == 0 {
		log.Warn("No voices loaded from %s; every synthesis request will fail.", registry.Root())
	}

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

	resultCache := cache.New(store, log)

	sweeper, err := cache.NewSweeper(resultCache, cfg.Cache.SweepSchedule, cfg.CacheMaxAge(), log)
	if err != nil {
		return err
	}

	synthesizer := pipeline.New(
		eng,
		resultCache,
		chunking.New(cfg.Service.ChunkMaxRunes),
		pipeline.Options{Workers: cfg.Service.ChunkWorkers},
		log,
	)

	server := httpapi.NewServer(synthesizer, eng, cfg.RequestTimeout(), log)

	natsWorker, err := newWorker(cfg, natsConnection, jetstreamContext, synthesizer, eng, log)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return sweeper.Run(groupCtx)
	})

	group.Go(func() error {
		return server.ListenAndServe(groupCtx, cfg.Service.HTTPAddr)
	})

	if natsWorker != nil {
		group.Go(func() error {
			return natsWorker.Run(groupCtx)
		})
	}

	log.System("%s started with %d voices: %v", serviceName, len(loaded), loaded)

	return group.Wait()
}

// newWorker returns nil when NATS or the job subject is not configured.
func newWorker(
	cfg *config.Config,
	natsConnection *nats.Conn,
	jetstreamContext nats.JetStreamContext,
	synthesizer *pipeline.Pipeline,
	eng *engine.Engine,
	log *logger.Logger,
) (*worker.NatsWorker, error) {
	if natsConnection == nil || cfg.NATS.TextProcessedSubject == "" {
		return nil, nil
	}

	audioStore, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio bucket: %w", err)
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.TextProcessedSubject,
		audioStore,
		synthesizer,
		eng,
		cfg.RequestTimeout(),
		log,
	)
	natsWorker.AnnounceOn(cfg.NATS.AudioChunkCreatedSubject)

	return natsWorker, nil
}

// connectNATS returns a nil connection when no NATS URL is configured.
func connectNATS(cfg *config.Config) (*nats.Conn, nats.JetStreamContext, error) {
	if cfg.NATS.URL == "" {
		return nil, nil, nil
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(serviceName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return natsConnection, jetstreamContext, nil
}

func cacheStore(cfg *config.Config, jetstreamContext nats.JetStreamContext) (core.BlobStore, error) {
	if cfg.Cache.Backend == config.CacheBackendNATS {
		if jetstreamContext == nil {
			return nil, fmt.Errorf("%w: cache backend %q", config.ErrNATSRequired, cfg.Cache.Backend)
		}

		store, err := objectstore.New(jetstreamContext, cfg.NATS.CacheBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache bucket: %w", err)
		}

		return store, nil
	}

	store, err := cache.NewFileStore(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache directory: %w", err)
	}

	return store, nil
}

func closeWithLog(log *logger.Logger, name string, closeFn func() error) {
	err := closeFn()
	if err != nil {
		log.Warn("Failed to close %s: %v", name, err)
	}
}
