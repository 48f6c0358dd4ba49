package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jroyseravila/heart/internal/cfg"
	"github.com/jroyseravila/heart/internal/common"
	"github.com/jroyseravila/heart/internal/metrics"
	"github.com/jroyseravila/heart/internal/ml"
	"github.com/jroyseravila/heart/internal/storage"
	"github.com/jroyseravila/heart/internal/web"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	// A missing .env file is fine; real deployments set the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	closeLog := setupLogging(c)
	defer closeLog()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	ledger := initializeStorage(c)
	if ledger != nil {
		defer ledger.Close()
	}

	modelStore, err := ml.NewModelStore(ml.StoreConfig{
		ModelPath:      c.ModelPath,
		Backend:        c.ModelBackend,
		PythonPath:     c.PythonPath,
		OnnxRuntimeLib: c.OnnxRuntimeLib,
		ProbeTimeout:   c.InferenceTimeout,
	}, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("model store initialization failed")
	}
	defer modelStore.Close()

	if ledger != nil {
		recordModelLoad(ledger, modelStore)
	}

	predictor := ml.NewPredictor(modelStore, mw, ml.PredictorConfig{
		Timeout:   c.InferenceTimeout,
		CacheSize: c.CacheSize,
		CacheTTL:  c.CacheTTL,
	})

	var webLedger web.Ledger
	if ledger != nil {
		webLedger = ledger
	}
	server := web.NewServer(web.Config{
		Addr:           c.Addr(),
		ProgressDelay:  c.ProgressDelay,
		AllowedOrigins: c.AllowedOrigins,
		Gatherer:       prometheus.DefaultGatherer,
	}, predictor, webLedger, mw)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("web server stopped")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel, server)
}

// setupLogging configures the global zerolog logger and returns a function
// that releases the log file, if any.
func setupLogging(c cfg.Settings) func() {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if c.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	closer := func() {}
	if c.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = func() { file.Close() }
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer
}

// initializeStorage opens the model load ledger under DATA_PATH
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without load ledger")
		return nil
	}
	return store
}

// recordModelLoad appends this startup's load attempt to the ledger and warns
// when the artifact at the same path changed since the last good load.
func recordModelLoad(ledger *storage.Store, modelStore *ml.ModelStore) {
	status := modelStore.Status()
	rec := storage.LoadRecord{
		Path:     status.Path,
		Backend:  status.Backend,
		Ready:    status.Ready,
		Error:    status.Error,
		LoadedAt: status.LoadedAt.UTC(),
	}
	if status.Artifact != nil {
		rec.SHA256 = status.Artifact.SHA256
		rec.Size = status.Artifact.Size
	}

	rec, err := ledger.RecordModelLoad(rec)
	if err != nil {
		log.Warn().Err(err).Msg("failed to record model load")
		return
	}
	if !rec.Ready {
		return
	}

	prev, err := ledger.PreviousSuccessfulLoad(rec.Path, rec)
	switch {
	case errors.Is(err, storage.ErrNoRecords):
		log.Info().Str("model_path", rec.Path).Msg("first successful load of this model path")
	case err != nil:
		log.Warn().Err(err).Msg("failed to read model load ledger")
	case prev.SHA256 != rec.SHA256:
		log.Warn().
			Str("model_path", rec.Path).
			Str("previous_sha256", prev.SHA256).
			Str("sha256", rec.SHA256).
			Time("previous_loaded_at", prev.LoadedAt).
			Msg("model artifact changed since last load")
	}
}

// waitForShutdown waits for shutdown signals and stops the web server
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, server *web.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), common.ShutdownTimeout)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return
	}
	log.Info().Msg("web server stopped")
}
