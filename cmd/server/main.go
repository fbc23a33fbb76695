package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls-radio/internal/media"
	"hls-radio/internal/messaging"
	"hls-radio/internal/platform/config"
	"hls-radio/internal/platform/logger"
	"hls-radio/internal/platform/metrics"
	"hls-radio/internal/radio"
	"hls-radio/internal/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile, configFile string

	root := &cobra.Command{
		Use:          "hls-radio",
		Short:        "Multi-station HLS radio streaming server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), envFile, configFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML file overriding environment settings")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the streaming server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), envFile, configFile)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func loadConfig(envFile, configFile string) (config.Config, error) {
	_ = config.Load(envFile)

	cfg := config.FromEnv()
	if configFile == "" {
		configFile = config.GetEnv("CONFIG_FILE", "")
	}
	if configFile != "" {
		if err := config.LoadFile(configFile, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

func serve(ctx context.Context, envFile, configFile string) error {
	cfg, err := loadConfig(envFile, configFile)
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	met := metrics.New()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := supplierDeps(ctx, cfg, log)
	if err != nil {
		return err
	}

	feed := scheduler.NewAligned("feed", cfg.Stream.SegmentDuration)
	slide := scheduler.NewFixed("slide", cfg.SlideInterval)
	for _, b := range []*scheduler.Broadcaster{feed, slide} {
		b.OnDrop = met.IncTicksDropped
	}
	defer feed.Stop()
	defer slide.Stop()

	registry := radio.NewRegistry(radio.RegistryConfig{
		Stream:   cfg.Stream,
		Supplier: cfg.Supplier,
	}, deps, feed, slide, log, met)
	svc := radio.NewService(registry)
	h := radio.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met, "/metrics"))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveStations(registry.Count()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	if len(cfg.Whitelist) > 0 {
		if err := registry.StartWhitelist(ctx, cfg.Whitelist); err != nil {
			log.Warn("some whitelisted stations did not start", slog.String("error", err.Error()))
		}
	}

	var consumer *messaging.Consumer
	if cfg.NATSURL != "" {
		consumer = messaging.NewConsumer(svc, cfg.NATSSubjectPrefix, log)
		if err := consumer.Connect(cfg.NATSURL); err != nil {
			log.Error("nats control channel disabled", slog.String("error", err.Error()))
			consumer = nil
		}
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"segment_duration", cfg.Stream.SegmentDuration.String(),
		"max_visible_segments", cfg.Stream.MaxVisibleSegments,
		"bitrates", cfg.Stream.Bitrates,
		"whitelist", cfg.Whitelist,
		"log_level", cfg.LogLevel,
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections")
	case err := <-serveErr:
		log.Error("server error", "error", err)
		registry.Shutdown()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if consumer != nil {
		consumer.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	registry.Shutdown()

	log.Info("server stopped")
	return nil
}

// supplierDeps wires the song library, the optional Redis cache, the object
// store and the encoder shared by every station.
func supplierDeps(ctx context.Context, cfg config.Config, log *slog.Logger) (radio.SupplierDeps, error) {
	var source radio.SongSource = media.NewDirSource(cfg.LibraryRoot)
	if cfg.RedisAddr != "" {
		client, err := media.NewRedisClient(ctx, media.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn("song cache disabled", slog.String("error", err.Error()))
		} else {
			source = media.NewCachedSource(source, client, cfg.SongCacheTTL, log)
		}
	}

	var materializer radio.Materializer = media.NewLocalMaterializer(cfg.LibraryRoot)
	if cfg.S3.Bucket != "" {
		client, err := media.NewS3Client(ctx, media.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return radio.SupplierDeps{}, err
		}
		materializer = media.NewS3Materializer(client, cfg.S3.Bucket, cfg.SegmentWorkDir, log)
	}

	encoder := media.NewFFmpegEncoder(cfg.FFmpegPath, cfg.SegmentWorkDir, cfg.Stream.SegmentDuration, log)
	filler := radio.NewFiller(cfg.FillerAudioPath, cfg.Stream.Bitrates, encoder, cfg.Supplier.FillerWait, log)
	if cfg.FillerAudioPath == "" {
		log.Warn("no filler audio configured, idle stations will be silent")
	}

	return radio.SupplierDeps{
		Source:       source,
		Materializer: materializer,
		Encoder:      encoder,
		Filler:       filler,
	}, nil
}
