// Command docserve serves a Markdown documentation tree with multi-tier
// caching: rendered pages, per-directory settings, the aggregate llms.txt
// document, and persisted image derivatives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/wolfeidau/docserve/config"
	"github.com/wolfeidau/docserve/server"
	"github.com/wolfeidau/docserve/telemetry"
)

var version = "dev"

type cli struct {
	Config      string `help:"Path to the TOML configuration file." default:"docserve.toml"`
	Address     string `help:"Address to listen on." placeholder:":8080"`
	ContentRoot string `help:"Documentation tree root." placeholder:"./content"`
	SiteName    string `help:"Site name for the aggregate document header."`
	CacheDir    string `help:"Directory for persisted image derivatives."`
	Dev         bool   `help:"Development mode: directory settings expire after a few seconds."`
	LogLevel    string `help:"Log level (debug, info, warn, error)." enum:"debug,info,warn,error" default:"info"`
	LogFormat   string `help:"Log format (text, json)." enum:"text,json" default:"text"`
	Version     kong.VersionFlag
}

func main() {
	var flags cli
	kctx := kong.Parse(&flags,
		kong.Name("docserve"),
		kong.Description("Documentation server with multi-tier content caching."),
		kong.Vars{"version": version},
	)
	kctx.FatalIfErrorf(run(flags))
}

func run(flags cli) error {
	logger, err := newLogger(flags.LogLevel, flags.LogFormat)
	if err != nil {
		return err
	}

	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}

	// Flags win over the config file.
	if flags.Address != "" {
		cfg.Server.Address = flags.Address
	}
	if flags.ContentRoot != "" {
		cfg.Content.Root = flags.ContentRoot
	}
	if flags.SiteName != "" {
		cfg.Server.SiteName = flags.SiteName
	}
	if flags.CacheDir != "" {
		cfg.Images.CacheDir = flags.CacheDir
	}
	if flags.Dev {
		cfg.Content.DevMode = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "docserve",
		ServiceVersion:   version,
		OTLPEndpoint:     cfg.Telemetry.OTLPEndpoint,
		EnablePrometheus: cfg.Telemetry.EnablePrometheus,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	srv, err := server.New(server.Config{
		Address:       cfg.Server.Address,
		ContentRoot:   cfg.Content.Root,
		ImageCacheDir: cfg.Images.CacheDir,
		SiteName:      cfg.Server.SiteName,
		DevMode:       cfg.Content.DevMode,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info("server started",
		"version", version,
		"address", srv.Address(),
		"content_root", cfg.Content.Root,
		"site_name", cfg.Server.SiteName,
		"dev_mode", cfg.Content.DevMode,
	)

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return shutdownMetrics(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: lvl})
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}
