// nommerd is the encoder node daemon: it pops job ids from the new-job
// queue, runs the download/encode/upload pipeline, heartbeats its state
// and self-terminates when idle. Each node needs its own data directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/chomp/internal/app"
	"github.com/ternarybob/chomp/internal/common"
)

var (
	configFile   = flag.String("config", "", "Configuration file path")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("nommerd version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	config, err := common.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := common.InitLogger(config, "nommerd")
	common.PrintBanner("nommerd", common.GetVersion())

	logger.Info().
		Str("data_dir", config.Storage.Badger.Path).
		Int("max_jobs", config.Scaling.MaxJobsPerNode).
		Msg("Configuration loaded")

	application, err := app.NewWorker(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start worker loops")
	}

	logger.Info().Msg("Worker ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Interrupt signal received")

	cancel()
	logger.Info().Msg("Worker stopped")
}
