// Package log builds the go-kit loggers used by the command line tools.
package log

import (
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
)

const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// Config holds the logging options of a command.
type Config struct {
	Level  dslog.Level
	Format string
}

// NewConfig returns a Config logging at info level in logfmt.
func NewConfig() Config {
	var cfg Config
	_ = cfg.Level.Set("info")
	cfg.Format = FormatLogfmt
	return cfg
}

// New returns a logger writing to w. Messages below the configured level are
// dropped.
func New(w io.Writer, cfg Config) (log.Logger, error) {
	w = log.NewSyncWriter(w)

	var logger log.Logger
	switch cfg.Format {
	case "", FormatLogfmt:
		logger = log.NewLogfmtLogger(w)
	case FormatJSON:
		logger = log.NewJSONLogger(w)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.Level.Option != nil {
		logger = level.NewFilter(logger, cfg.Level.Option)
	}
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.Caller(3)), nil
}
