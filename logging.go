/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	logDate string = `2006-01-02T15:04:05.000-07:00`
)

func newLogger(cfg *Config, w io.Writer) zerolog.Logger {
	level := zerolog.WarnLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: logDate,
		NoColor:    true,
	}).Level(level).With().Timestamp().Logger()
}

// logServe records a completed plain HTTP response.
func logServe(log zerolog.Logger, r *http.Request, what string, written int, startTime time.Time) {
	log.Info().
		Str("component", "SERVE").
		Str("size", humanReadableSize(int64(written))).
		Str("remote", realIP(r)).
		Dur("elapsed", time.Since(startTime).Round(time.Microsecond)).
		Msg(what)
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}
