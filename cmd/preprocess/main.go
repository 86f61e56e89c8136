package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/civickit/wardatlas/internal/config"
	"github.com/civickit/wardatlas/internal/logger"
	"github.com/civickit/wardatlas/internal/pipeline"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile   string  `short:"c" long:"config"        env:"CONFIG_FILE"   description:"Path to configuration file" default:"config.yaml"`
	ProcessedDir string  `short:"o" long:"processed-dir" env:"PROCESSED_DIR" description:"Override the output directory"`
	Workers      int     `short:"w" long:"workers"       env:"WORKERS"       description:"Zonal statistics workers, 0 means one per CPU"`
	Tolerance    float64 `short:"t" long:"tolerance"     env:"TOLERANCE"     description:"Override the simplification tolerance in degrees"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Str("config", opts.ConfigFile).Msg("Failed to load configuration")
	}

	if opts.ProcessedDir != "" {
		cfg.ProcessedDir = opts.ProcessedDir
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	if opts.Tolerance > 0 {
		cfg.SimplifyTolerance = opts.Tolerance
	}

	if err := pipeline.Run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Preprocessing failed")
	}
}
