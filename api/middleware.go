package api

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sealedvote/sealedvote-node/log"
)

// DisabledLogging turns off the request logging middleware globally. Tests
// that start many nodes set it to keep output readable.
var DisabledLogging = false

// jsonStart matches bodies that look like a JSON document.
var jsonStart = regexp.MustCompile(`^\s*[\[{]`)

// LoggingConfig tunes the request logging middleware.
type LoggingConfig struct {
	// MaxBodyLog caps how many body bytes end up in a log line.
	MaxBodyLog int
	// ExcludedPrefixes lists URL path prefixes never logged, such as
	// health checks that would flood the debug output.
	ExcludedPrefixes []string
}

// DefaultLoggingConfig returns the configuration the API server uses.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		MaxBodyLog:       512,
		ExcludedPrefixes: LogExcludedPrefixes,
	}
}

func (lc LoggingConfig) shouldSkipLogging(r *http.Request) bool {
	// Request logging is a debug affordance only.
	if log.Level() != log.LogLevelDebug || DisabledLogging {
		return true
	}
	for _, prefix := range lc.ExcludedPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// statusRecorder wraps http.ResponseWriter to remember the first status code
// written, so the middleware can log it after the handler runs.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.statusCode == 0 {
		rw.statusCode = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// loggingMiddleware logs every request and response at debug level with the
// default exclusions.
func loggingMiddleware(maxBodyLog int) func(http.Handler) http.Handler {
	config := DefaultLoggingConfig()
	config.MaxBodyLog = maxBodyLog
	return loggingMiddlewareWithConfig(config)
}

// loggingMiddlewareWithConfig logs requests and responses per the given
// configuration. JSON request bodies are included in the request line,
// truncated to MaxBodyLog bytes.
func loggingMiddlewareWithConfig(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.shouldSkipLogging(r) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()

			var bodyStr string
			if r.Body != nil && r.ContentLength > 0 {
				bodyBytes, err := io.ReadAll(r.Body)
				if err != nil {
					log.Error(err)
					http.Error(w, "unable to read request body", http.StatusInternalServerError)
					return
				}
				// hand the handler a fresh reader over the consumed body
				r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

				if jsonStart.Match(bodyBytes) {
					bodyStr = string(bodyBytes)
					if len(bodyStr) > config.MaxBodyLog {
						bodyStr = bodyStr[:config.MaxBodyLog] + "..."
					}
					bodyStr = strings.ReplaceAll(bodyStr, "\"", "")
				}
			}

			log.Debugw("api request",
				"method", r.Method,
				"url", r.URL.String(),
				"body", bodyStr,
			)

			wrapped := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(wrapped, r)

			log.Debugw("api response",
				"method", r.Method,
				"url", r.URL.String(),
				"status", wrapped.statusCode,
				"took", time.Since(start).String(),
			)
		})
	}
}
