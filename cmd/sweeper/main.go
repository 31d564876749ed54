package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/sweeper"

	"github.com/joho/godotenv"
)

func main() {
	runOnce := flag.Bool("run-once", false, "Run a single sweep and exit")
	flag.Parse()

	logger := logger.NewLogger()
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	if cfg.Sweeper.Secret == "" {
		logger.Fatal("CONFIG", "SWEEPER_SECRET is required")
	}

	trigger := sweeper.NewHTTPTrigger(cfg.Sweeper.ServiceURL, cfg.Sweeper.Secret, nil)
	scheduler := sweeper.NewScheduler(trigger, cfg.Sweeper.Timeout, logger)

	if *runOnce {
		logger.Info("SCHEDULER", fmt.Sprintf("Running one sweep against %s", trigger.URL))
		scheduler.RunOnce()
		return
	}

	if err := scheduler.Register(cfg.Sweeper.Schedule); err != nil {
		logger.Fatal("SCHEDULER", err.Error())
	}
	scheduler.Start()
	logger.Info("SCHEDULER", fmt.Sprintf("Sweeper running against %s. Press Ctrl+C to exit.", trigger.URL))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("SCHEDULER", "Shutting down sweeper...")
	scheduler.Stop()
}
