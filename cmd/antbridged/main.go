package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dougsko/antbridge/pkg/config"
	"github.com/dougsko/antbridge/pkg/logging"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "config.yaml", "Configuration file path")
	version    = pflag.BoolP("version", "V", false, "Show version information")
	verbose    = pflag.BoolP("verbose", "v", false, "Enable debug logging")
)

var (
	Version = "0.1.0-dev"
	Build   = "development"
)

func main() {
	pflag.Parse()

	if *version {
		fmt.Printf("antbridged version %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Close()

	logger.Infof("main", "antbridged version %s starting...", Version)
	logger.Infof("main", "Rigs: %s / %s", cfg.Rigs.RigAName, cfg.Rigs.RigBName)
	logger.Infof("main", "Web interface: http://%s:%d", cfg.Web.BindAddress, cfg.Web.Port)

	daemon, err := NewAntBridgeDaemon(cfg, logger)
	if err != nil {
		logger.Errorf("main", "Failed to create daemon: %v", err)
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.Start(); err != nil {
		logger.Errorf("main", "Failed to start daemon: %v", err)
		os.Exit(1)
	}

	logger.Info("main", "antbridged started successfully")

	// Wait for shutdown signal
	<-sigChan
	logger.Info("main", "Shutting down...")

	if err := daemon.Stop(); err != nil {
		logger.Errorf("main", "Error during shutdown: %v", err)
	}

	logger.Info("main", "antbridged stopped")
}
