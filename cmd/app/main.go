package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"

	"FinRelay/internal/di"
	"FinRelay/pkg/config"

	"github.com/joho/godotenv"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before config; missing file is ignored")
	flag.Parse()

	// Existing environment wins over the dotenv file.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Fatalf("env file load failed: %v", err)
		}
	}

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s port=%d providers=%d audit=%s ratelimit=%s",
		cfg.Environment, cfg.Server.Port, len(cfg.Providers), cfg.Audit.Backend, cfg.RateLimit.Backend)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
