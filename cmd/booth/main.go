package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/api"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/audio"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/booth"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/config"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/metrics"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/realtime"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/recording"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/server"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/session"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvPath    = ".env"
	serviceName       = "parliament-voting-booth"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envPath := flag.String("env", defaultEnvPath, "Path to .env file with BOOTH_* overrides")
	flag.Parse()

	// Environment first so config.Load sees the overrides
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load env file %s: %v\n", *envPath, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Booth starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without credentials)
	logger.Info("Configuration loaded",
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.String("realtime_url", cfg.Realtime.URL),
		slog.String("device", cfg.Recording.Device),
		slog.Float64("vote_window", cfg.Recording.Duration),
		slog.Bool("announce_before_recording", cfg.Recording.AnnounceBeforeRecording),
		slog.Bool("require_speech", cfg.Recording.RequireSpeech),
		slog.String("session_storage", cfg.Session.Storage),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Booth failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Booth stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	appMetrics := metrics.NewMetrics()
	notifier := booth.MultiNotifier(
		booth.NewWriterNotifier(os.Stdout),
		booth.LogNotifier{Logger: logger.With(slog.String("component", "notifier"))},
	)

	client, err := api.NewClient(api.Config{
		BaseURL:       cfg.API.BaseURL,
		Token:         cfg.API.Token,
		Timeout:       cfg.API.GetTimeoutDuration(),
		MaxRetries:    cfg.API.MaxRetries,
		RetryDelay:    cfg.API.GetRetryDelayDuration(),
		MaxConcurrent: cfg.API.MaxConcurrent,
		UserAgent:     serviceName + "/" + serviceVersion,
	}, appMetrics, logger.With(slog.String("component", "api")))
	if err != nil {
		return fmt.Errorf("create api client: %w", err)
	}
	defer client.Close()

	channel, err := realtime.NewChannel(realtime.Config{
		URL:               cfg.Realtime.URL,
		Token:             cfg.API.Token,
		ReconnectInterval: cfg.Realtime.GetReconnectIntervalDuration(),
		PingInterval:      cfg.Realtime.GetPingIntervalDuration(),
	}, realtime.Hooks{
		OnConnect: func(reconnected bool) {
			if reconnected {
				notifier.Notify(booth.Info("Realtime", "Live updates restored"))
			}
		},
		OnDisconnect: func(err error) {
			if err != nil {
				notifier.Notify(booth.Error("Live updates lost, reconnecting"))
			}
		},
	}, appMetrics, logger.With(slog.String("component", "realtime")))
	if err != nil {
		return fmt.Errorf("create realtime channel: %w", err)
	}
	defer channel.Disconnect()

	storage, err := session.OpenStorage(ctx, cfg.Session.Storage, cfg.Session.Path)
	if err != nil {
		return fmt.Errorf("open session storage: %w", err)
	}
	if storage != nil {
		defer storage.Close()
	}

	store := session.NewStore(storage, appMetrics, logger.With(slog.String("component", "session")))
	if err := store.Restore(ctx); err != nil {
		logger.Warn("Starting with an empty session", slog.String("error", err.Error()))
	}
	defer store.Subscribe(newFloorPrinter(os.Stdout, store.Snapshot()))()

	detector, err := vad.NewDetector(vad.Config{
		Threshold:         cfg.VAD.Threshold,
		WindowSize:        cfg.VAD.WindowSize,
		SampleRate:        cfg.Recording.SampleRate,
		MinSpeechDuration: cfg.VAD.GetMinSpeechDuration(),
		Smoothing:         cfg.VAD.Smoothing,
	})
	if err != nil {
		return fmt.Errorf("create speech detector: %w", err)
	}

	format := audio.DefaultFormat()
	format.SampleRate = cfg.Recording.SampleRate
	format.Channels = cfg.Recording.Channels
	recorder := audio.NewRecorder(newDevice(cfg.Recording), audio.RecorderConfig{Format: format},
		logger.With(slog.String("component", "audio")))

	var announcer recording.Announcer
	if cfg.Recording.AnnounceBeforeRecording {
		announcer = recording.NewCommandAnnouncer(cfg.Recording.Announcer)
	}

	b, err := booth.New(client, channel, store, recorder, booth.Config{
		Recording: recording.Config{
			Duration:                cfg.Recording.GetDuration(),
			ProgressInterval:        cfg.Recording.GetProgressInterval(),
			AnnounceBeforeRecording: cfg.Recording.AnnounceBeforeRecording,
		},
		RequireSpeech: cfg.Recording.RequireSpeech,
		SubmitTimeout: cfg.API.GetTimeoutDuration(),
	}, booth.Options{
		Announcer:  announcer,
		Detector:   detector,
		Notifier:   notifier,
		Metrics:    appMetrics,
		OnProgress: newProgressPrinter(os.Stdout),
	}, logger.With(slog.String("component", "booth")))
	if err != nil {
		return fmt.Errorf("create booth: %w", err)
	}
	defer b.Close()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := channel.Connect(connectCtx); err != nil {
		logger.Warn("Realtime channel not connected yet, retrying in background",
			slog.String("error", err.Error()),
		)
	}
	cancel()

	if err := b.Resume(ctx); err != nil {
		logger.Warn("Failed to resume session", slog.String("error", err.Error()))
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger.With(slog.String("component", "http")), cfg, server.Dependencies{
			Booth:    b,
			API:      client,
			Realtime: channel,
			Detector: detector,
		}, appMetrics)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpServer.Stop(shutdownCtx); err != nil {
				logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
			}
		}()
	}

	con := &console{booth: b, registry: client, out: os.Stdout, notifier: notifier}
	con.help()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Received shutdown signal")
			return nil
		case line, ok := <-lines:
			if !ok {
				logger.Info("Input closed, shutting down")
				return nil
			}
			if quit := con.execute(ctx, line); quit {
				return nil
			}
		}
	}
}

// newDevice returns the configured capture device
func newDevice(cfg config.RecordingConfig) audio.Device {
	if cfg.Device == "tone" {
		return &audio.ToneDevice{Amplitude: 8000}
	}
	return &audio.FFmpegDevice{Binary: cfg.FFmpegPath, Input: cfg.Input}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// The console owns stdout, so logs default to stderr
	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
