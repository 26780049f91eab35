package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eeg-stress-api/internal/analysis"
	"eeg-stress-api/internal/api"
	"eeg-stress-api/internal/cfg"
	"eeg-stress-api/internal/events"
	"eeg-stress-api/internal/metrics"
	"eeg-stress-api/internal/ml"
	"eeg-stress-api/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize components
	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	hub := events.NewHub(0, mw)
	defer hub.Close()

	manager := ml.NewManagerFor(c.ModelPath, c.ONNXLibrary, mw)
	defer manager.Close()

	analyzer := analysis.New(analysis.Config{
		Model:   manager,
		Store:   optionalStore(store),
		Events:  hub,
		Metrics: mw,
		TempDir: c.TempDir,
	})

	server := api.New(api.Config{
		Addr:           c.Addr(),
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		Analyzer:       analyzer,
		Model:          manager,
		History:        optionalHistory(store),
		Events:         hub,
		Metrics:        mw,
		UploadFields:   c.UploadFields,
		MaxUploadBytes: c.MaxUploadBytes,
		CORSOrigins:    c.CORSOrigins,
		RateLimit:      c.RateLimit,
		RateWindow:     c.RateWindow,
		HistoryLimit:   c.HistoryLimit,
	})

	g, gctx := errgroup.WithContext(ctx)

	// The server starts answering 503 right away and turns healthy once the
	// model is in memory.
	g.Go(func() error {
		loadModel(manager, hub)
		return nil
	})

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked stream connections are not tracked by Shutdown; closing
		// the hub ends them.
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server stopped with error")
		m.ErrorsTotal.Inc()
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "eegstress").Logger()
	}
	zerolog.DefaultContextLogger = &log.Logger
}

// initializeStorage initializes storage if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		log.Info().Msg("DATA_PATH not set, analysis history disabled")
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// optionalStore and optionalHistory keep a nil *storage.Store from becoming a
// non-nil interface value.
func optionalStore(s *storage.Store) analysis.Store {
	if s == nil {
		return nil
	}
	return s
}

func optionalHistory(s *storage.Store) api.History {
	if s == nil {
		return nil
	}
	return s
}

// loadModel performs the single startup load. A failure leaves the service
// running in the unavailable state.
func loadModel(manager *ml.Manager, hub *events.Hub) {
	hub.Publish(events.Event{Type: events.TypeModelState, ModelState: ml.StateLoading.String()})

	start := time.Now()
	if err := manager.Load(); err != nil {
		log.Warn().Err(err).Msg("model failed to load, analyses will be rejected")
	} else {
		info := manager.Info()
		version := ""
		if info.Metadata != nil {
			version = info.Metadata.Version
		}
		log.Info().Str("path", info.Path).Str("version", version).Dur("took", time.Since(start)).Msg("model loaded")
	}

	hub.Publish(events.Event{Type: events.TypeModelState, ModelState: manager.State().String()})
}
