package main

import (
	_ "embed"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"proxyconsole/pkg/config"
	"proxyconsole/pkg/history"
	"proxyconsole/pkg/log"
	"proxyconsole/pkg/server"
	"proxyconsole/pkg/state"
	"proxyconsole/pkg/status"
)

const (
	dataDirPerm = 0750
)

//go:embed VERSION
var Version string

func main() {
	configPath := flag.String("config", config.DefaultPath, "Proxy configuration file")
	addr := flag.String("addr", "127.0.0.1:8090", "Console listen address")
	historyPath := flag.String("history", "build/data/history.db", "Diagnostics journal path, empty to disable")
	statusInterval := flag.Duration("status-interval", 5*time.Second, "Service status check interval")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load configuration")
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		log.Warn().Err(err).Msg("Logging settings not applied")
	}
	if *debug {
		log.SetDebugMode()
	}

	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("Configuration is incomplete")
	}

	doc, err := cfg.AsMap()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to render configuration")
	}
	appState := state.New(doc)

	checker, err := status.CheckerFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create status checker")
	}
	monitor := status.NewMonitor(checker, appState, *statusInterval)

	var journal *history.Store
	if *historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(*historyPath), dataDirPerm); err != nil {
			log.Fatal().Err(err).Str("history", *historyPath).Msg("Failed to create data directory")
		}
		journal, err = history.NewStore(*historyPath)
		if err != nil {
			log.Fatal().Err(err).Str("history", *historyPath).Msg("Failed to open diagnostics journal")
		}
	}

	console := server.NewConsoleServer(server.Options{
		ConfigPath: *configPath,
		Config:     cfg,
		State:      appState,
		Monitor:    monitor,
		History:    journal,
		Version:    strings.TrimSpace(Version),
	})

	if err := console.Start(*addr); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}

	os.Exit(0)
}
