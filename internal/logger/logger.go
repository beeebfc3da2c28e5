// Package logger configures structured logging for the service.
package logger

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// ParseLevel converts a config string to a slog level. Unknown values map to info.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Setup builds a JSON logger writing to stdout and installs it as the default.
func Setup(level string) *slog.Logger {
	return setup(os.Stdout, level)
}

func setup(w io.Writer, level string) *slog.Logger {
	parsed, ok := ParseLevel(level)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parsed,
		ReplaceAttr: redactAttr,
	})
	log := slog.New(handler)
	slog.SetDefault(log)
	if !ok {
		log.Warn("invalid log level configured, using default level",
			"configured_level", level,
			"default_level", "info")
	}
	return log
}

// redactAttr masks e-mail addresses and drops password values.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	switch {
	case strings.Contains(key, "password"), strings.Contains(key, "token"):
		return slog.String(a.Key, "[REDACTED]")
	case strings.Contains(key, "email"):
		return slog.String(a.Key, RedactEmail(a.Value.String()))
	}
	return a
}

// RedactEmail keeps the first and last character of the local part.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, found := strings.Cut(email, "@")
	if !found {
		return "****"
	}
	if len(local) <= 2 {
		return "****@" + domain
	}
	return local[:1] + "****" + local[len(local)-1:] + "@" + domain
}

// RequestLogger logs one line per request with status and duration.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
