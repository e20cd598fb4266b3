// Package logging provides the production implementation of core.Logger.
//
// Output is JSON when running in Kubernetes (detected via
// KUBERNETES_SERVICE_HOST) so logs aggregate cleanly, and human-readable
// text for local development. Error logs are rate limited so a dead
// backend cannot flood the log stream.
//
// Configuration priority:
//  1. Explicit constructor arguments (highest)
//  2. Environment variables (SHORTR_LOG_LEVEL, SHORTR_LOG_FORMAT, SHORTR_DEBUG)
//  3. Auto-detection (Kubernetes environment)
//  4. Defaults (lowest)
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger implements core.Logger with leveled, structured output.
type Logger struct {
	level   string
	debug   bool
	service string
	format  string
	output  io.Writer
	mu      sync.RWMutex

	// Rate limiting to prevent log flooding during backend outages
	errorLimiter *rateLimiter
}

// New creates a logger for the named process ("api", "hitworker", ...).
// Empty level or format arguments fall back to the environment and then
// to defaults.
func New(service, level, format string) *Logger {
	if level == "" {
		level = os.Getenv("SHORTR_LOG_LEVEL")
	}
	if level == "" {
		level = "INFO"
	}

	debug := os.Getenv("SHORTR_DEBUG") == "true" ||
		strings.ToUpper(level) == "DEBUG"

	if format == "" {
		// JSON in Kubernetes for log aggregation, text everywhere else
		format = "text"
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			format = "json"
		}
		if envFormat := os.Getenv("SHORTR_LOG_FORMAT"); envFormat != "" {
			format = envFormat
		}
	}

	return &Logger{
		level:        strings.ToUpper(level),
		debug:        debug,
		service:      service,
		format:       format,
		output:       os.Stdout,
		errorLimiter: newRateLimiter(1 * time.Second),
	}
}

// Info logs informational messages
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

// Warn logs warning messages
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

// Error logs error messages with rate limiting
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

// Debug logs debug messages (only when debug mode is enabled)
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *Logger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)

	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

func (l *Logger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.service,
		"message":   msg,
	}

	for k, v := range fields {
		// Avoid overwriting core fields
		if k != "timestamp" && k != "level" && k != "service" && k != "message" {
			entry[k] = v
		}
	}

	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

func (l *Logger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var fieldStr strings.Builder
	if len(fields) > 0 {
		fieldStr.WriteString(" ")
		// Error first for readability, then the rest
		if err, ok := fields["error"]; ok {
			fieldStr.WriteString(fmt.Sprintf("error=%q ", fmt.Sprintf("%v", err)))
		}
		for k, v := range fields {
			if k == "error" {
				continue
			}
			fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
		}
	}

	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n",
		timestamp, level, l.service, msg, fieldStr.String())
}

func (l *Logger) shouldLog(level string) bool {
	levels := map[string]int{
		"DEBUG": 0,
		"INFO":  1,
		"WARN":  2,
		"ERROR": 3,
	}

	currentLevel, ok1 := levels[l.level]
	messageLevel, ok2 := levels[level]

	// Default to logging if levels are unknown
	if !ok1 || !ok2 {
		return true
	}

	return messageLevel >= currentLevel
}

// SetLevel dynamically updates the log level
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = strings.ToUpper(level)
	l.debug = l.level == "DEBUG"
}

// SetOutput changes the output writer (useful for testing)
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// rateLimiter allows at most one event per interval.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

func (r *rateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.last) < r.interval {
		return false
	}
	r.last = now
	return true
}
