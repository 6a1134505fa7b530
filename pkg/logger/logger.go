// Package logger provides leveled, structured log lines with optional Sentry
// breadcrumbs and error capture.
package logger

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

const sentryFlushTimeout = 2 * time.Second

// Fields represents structured log fields
type Fields map[string]interface{}

// With returns a copy of the fields with key set
func (f Fields) With(key string, value interface{}) Fields {
	out := make(Fields, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[key] = value
	return out
}

var debugEnabled atomic.Bool

// SetDebug turns [DEBUG] lines on or off
func SetDebug(on bool) {
	debugEnabled.Store(on)
}

// SetOutput redirects log lines, e.g. to io.Discard in tests
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Init configures Sentry. An empty DSN leaves Sentry disabled and is not an
// error.
func Init(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     "practicetrack@" + release,
		Debug:       environment != "production",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	return nil
}

// Flush waits for buffered Sentry events
func Flush() {
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		sentry.Flush(sentryFlushTimeout)
	}
}

// Info logs an informational message with structured fields
func Info(msg string, fields Fields) {
	log.Printf("[INFO] %s %s", msg, formatFields(fields))
	breadcrumb("info", msg, fields, sentry.LevelInfo)
}

// Warn logs a warning message with structured fields
func Warn(msg string, fields Fields) {
	log.Printf("[WARN] %s %s", msg, formatFields(fields))
	breadcrumb("warning", msg, fields, sentry.LevelWarning)
}

// Debug logs a debug message when debug output is enabled
func Debug(msg string, fields Fields) {
	if !debugEnabled.Load() {
		return
	}
	log.Printf("[DEBUG] %s %s", msg, formatFields(fields))
	breadcrumb("debug", msg, fields, sentry.LevelDebug)
}

// Error logs an error message with structured fields and sends it to Sentry
func Error(msg string, err error, fields Fields) {
	log.Printf("[ERROR] %s: %v %s", msg, err, formatFields(fields))

	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			for key, value := range fields {
				scope.SetContext(key, map[string]interface{}{
					"value": value,
				})
			}
			if requestID, ok := fields["request_id"].(string); ok {
				scope.SetTag("request_id", requestID)
			}
			hub.CaptureException(err)
		})
	}
}

// LogAPIRequest logs a finished HTTP request
func LogAPIRequest(c *gin.Context, duration time.Duration, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	fields["duration_ms"] = duration.Milliseconds()
	fields["status_code"] = c.Writer.Status()
	fields["method"] = c.Request.Method
	fields["path"] = c.Request.URL.Path
	fields["client_ip"] = c.ClientIP()

	Info("API request completed", fields)
}

func breadcrumb(kind, msg string, fields Fields, level sentry.Level) {
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     kind,
			Category: "log",
			Message:  msg,
			Data:     map[string]interface{}(fields),
			Level:    level,
		})
	}
}

// formatFields renders fields as {k=v, ...} with keys sorted
func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString("=")
		switch v := fields[k].(type) {
		case float64:
			b.WriteString(fmt.Sprintf("%.6g", v))
		default:
			b.WriteString(fmt.Sprintf("%v", v))
		}
	}
	b.WriteString("}")
	return b.String()
}
