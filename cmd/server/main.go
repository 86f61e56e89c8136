package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/civickit/wardatlas/internal/logger"
	"github.com/civickit/wardatlas/internal/server"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Addr         string `short:"a" long:"addr"          env:"LISTEN_ADDRESS" description:"Address to listen on" default:"0.0.0.0"`
	Port         int    `short:"p" long:"port"          env:"LISTEN_PORT"    description:"Port to listen on"    default:"5000"`
	ProcessedDir string `short:"d" long:"processed-dir" env:"PROCESSED_DIR"  description:"Pipeline output directory to serve" default:"data/processed"`
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

	srvCtx := server.NewServerContext(opts.ProcessedDir)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ward_stats", srvCtx.HandleWardStats)
	mux.HandleFunc("/api/ward_tree_counts", srvCtx.HandleTreeCounts)
	mux.HandleFunc("/data/processed/", srvCtx.HandleProcessedFile)

	handler := server.AccessLog(mux)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	log.Info().
		Str("addr", listenAddr).
		Str("dir", opts.ProcessedDir).
		Msg("Web server started")

	if err := http.ListenAndServe(listenAddr, handler); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
