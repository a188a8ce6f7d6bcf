// Package logging provides structured logging for appgen using zerolog.
// Console output is used when the log stream is a terminal and JSON
// otherwise.
//
// Request handlers get their logger from the context:
//
//	ctx := logging.WithProject(r.Context(), projectID)
//	logging.FromContext(ctx).Info().Msg("Run scheduled")
package logging

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var defaultLogger atomic.Pointer[zerolog.Logger]

func init() {
	SetDefault(zerolog.Nop())
}

// Default returns the process default logger. It discards everything until
// a logger is configured.
func Default() *zerolog.Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process default logger.
func SetDefault(logger zerolog.Logger) {
	defaultLogger.Store(&logger)
	log.Logger = logger
}
