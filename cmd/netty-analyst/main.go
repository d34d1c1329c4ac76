package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/netty/analyst/internal/api"
	"github.com/netty/analyst/internal/chat"
	"github.com/netty/analyst/internal/config"
	"github.com/netty/analyst/internal/session"
	"github.com/netty/analyst/internal/ui"
)

// overridden by build flags
var version = "0.1.0-dev"

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a config file (default: netty-analyst.yaml in ~/.config/netty-analyst or .)")
		serviceURL  = flag.String("url", config.DefaultServiceURL, "Analysis service base URL")
		timeout     = flag.Duration("timeout", config.DefaultTimeout, "Per-request timeout")
		exportDir   = flag.String("export-dir", ".", "Directory exported reports are saved to")
		logFile     = flag.String("log-file", "", "Log file (the terminal is used by the UI)")
		logLevel    = flag.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
		check       = flag.Bool("check", false, "Check that the analysis service is reachable and exit")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("netty-analyst %s\n", version)
		return
	}

	// only flags given on the command line take precedence over file and env
	overrides := map[string]interface{}{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			overrides[config.KeyServiceURL] = *serviceURL
		case "timeout":
			overrides[config.KeyServiceTimeout] = *timeout
		case "export-dir":
			overrides[config.KeyExportDir] = *exportDir
		case "log-file":
			overrides[config.KeyLogFile] = *logFile
		case "log-level":
			overrides[config.KeyLogLevel] = *logLevel
		}
	})

	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *check {
		os.Exit(runCheck(cfg))
	}

	logger, closeLog, err := newLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	client, err := api.NewClient(api.Options{
		BaseURL:        cfg.ServiceURL,
		Timeout:        cfg.Timeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger.WithPrefix("api"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting netty-analyst",
		"version", version,
		"service", client.BaseURL(),
		"timeout", cfg.Timeout,
		"config", cfg.File,
	)

	ctx := context.Background()
	sess := session.New(client, session.DirSaver(cfg.ExportDir), logger.WithPrefix("session"))
	store := chat.NewStore(client, logger.WithPrefix("chat"), chat.Greeting)
	model := ui.NewModel(ctx, sess, store, ui.Options{
		ServiceURL: client.BaseURL(),
		Health:     client.Health,
		Logger:     logger.WithPrefix("ui"),
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error("TUI exited with error", "error", err)
		fmt.Printf("Error running TUI: %v\n", err)
		closeLog()
		os.Exit(1)
	}
}

// runCheck probes the service health endpoint and returns the exit code
func runCheck(cfg *config.Config) int {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	client, err := api.NewClient(api.Options{
		BaseURL: cfg.ServiceURL,
		Timeout: min(cfg.Timeout, 10*time.Second),
	})
	if err != nil {
		logger.Error("Invalid service configuration", "error", err)
		return 1
	}

	ok, err := client.Health(context.Background())
	switch {
	case err != nil:
		logger.Error("Service check failed", "url", client.BaseURL(), "kind", api.KindOf(err), "error", err)
		return 1
	case !ok:
		logger.Warn("Service reported unhealthy", "url", client.BaseURL())
		return 1
	}
	logger.Info("Service is healthy", "url", client.BaseURL())
	return 0
}

func newLogger(path, level string) (*log.Logger, func(), error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	var out io.Writer = io.Discard
	closeFn := func() {}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closeFn = func() { f.Close() }
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	return logger, closeFn, nil
}
