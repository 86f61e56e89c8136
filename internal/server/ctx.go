// Package server is the pass-through presentation layer: it returns the
// pipeline's summary tables as JSON rows and the processed files verbatim.
// It performs no aggregation, joining or recomputation.
package server

import (
	"os"

	"github.com/rs/zerolog/log"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	// ProcessedDir is the pipeline output directory being served.
	ProcessedDir string
}

// NewServerContext initializes the context over a processed-data directory.
func NewServerContext(processedDir string) *ServerContext {
	if _, err := os.Stat(processedDir); err != nil {
		log.Warn().
			Str("dir", processedDir).
			Msg("Processed data directory not found, run the preprocess command first")
	}
	return &ServerContext{ProcessedDir: processedDir}
}
