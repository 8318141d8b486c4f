package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/domudall/3rd-party-oauth/internal"
	"github.com/domudall/3rd-party-oauth/internal/config"
	"github.com/domudall/3rd-party-oauth/internal/log"
	"github.com/joho/godotenv"
)

var BuildVersion = "dev"

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	// A missing .env file is fine, secrets usually arrive via the real
	// environment in production
	_ = godotenv.Load()

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Printf("Validating: %s\nResult: PASS\n", *conf)
		return
	}

	log.LogInfoWithFields("main", "Starting oauth-filter", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	app, err := internal.NewOAuthFilter(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create authentication filter: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
