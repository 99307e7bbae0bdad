package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/RomanSlack/rsfx/internal/config"
	"github.com/RomanSlack/rsfx/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		reference   string
		audioPath   string
		socketPath  string
		width       int
		height      int
		fps         int
		batchSize   int
		noFloat16   bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "rsfx.yaml", "Path to configuration file")
	flag.StringVar(&reference, "reference", "", "Path to the reference portrait image")
	flag.StringVar(&audioPath, "audio", "", "Path to the speech audio track")
	flag.StringVar(&socketPath, "socket", "", "Unix socket path of the renderer")
	flag.IntVar(&width, "width", 0, "Output frame width in pixels")
	flag.IntVar(&height, "height", 0, "Output frame height in pixels (must be even)")
	flag.IntVar(&fps, "fps", 0, "Target frames per second")
	flag.IntVar(&batchSize, "batch-size", 0, "Frames synthesized per engine call")
	flag.BoolVar(&noFloat16, "no-float16", false, "Run the engine in full precision")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if reference != "" {
		cfg.Avatar.Reference = reference
	}
	if audioPath != "" {
		cfg.Avatar.Audio = audioPath
	}
	if socketPath != "" {
		cfg.Avatar.Socket = socketPath
	}
	if width > 0 {
		cfg.Avatar.Width = width
	}
	if height > 0 {
		cfg.Avatar.Height = height
	}
	if fps > 0 {
		cfg.Avatar.FPS = fps
	}
	if batchSize > 0 {
		cfg.Avatar.BatchSize = batchSize
	}
	if noFloat16 {
		cfg.Engine.Float16 = false
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Telemetry.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := runtime.New(cfg, logger)
	res, err := rt.Run(ctx)

	// The frame count is reported on every exit path, including failures.
	fmt.Printf("sent %d frames (%s)\n", res.FramesSent, res.Termination)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("session failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
