// Package logging configures the process-wide zerolog logger. Grounded
// on intelligencedev-manifold/internal/observability/logging.go's
// InitLogger: global logger output/level set once at startup, every
// package downstream logs through github.com/rs/zerolog/log.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global zerolog logger's output and level. level is read
// from LOG_LEVEL by the caller (spec ambient logging convention); an
// unrecognized or empty value falls back to info.
func Init(level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = log.Output(os.Stdout).With().Timestamp().Logger()

	lvl := zerolog.InfoLevel
	level = strings.ToLower(strings.TrimSpace(level))
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	zerolog.SetGlobalLevel(lvl)
}
