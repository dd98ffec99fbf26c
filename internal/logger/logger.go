// Package logger wires the standard library logger to a date-rotated file.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Config controls log file placement and retention.
type Config struct {
	LogDir  string
	LogFile string // filename suffix, e.g. app.log -> 20260829-app.log
	MaxAge  int    // days to keep rotated files
	Console bool   // tee output to stdout
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		LogDir:  "logs",
		LogFile: "app.log",
		MaxAge:  30,
		Console: true,
	}
}

// DailyWriter is an io.Writer that rotates to a new file when the date changes.
type DailyWriter struct {
	mu          sync.Mutex
	logDir      string
	logSuffix   string
	maxAge      int
	currentDate string // YYYYMMDD
	file        *os.File
}

// NewDailyWriter creates a date-rotating log writer.
func NewDailyWriter(logDir, logSuffix string, maxAge int) *DailyWriter {
	return &DailyWriter{
		logDir:    logDir,
		logSuffix: logSuffix,
		maxAge:    maxAge,
	}
}

func dateString() string {
	return time.Now().Format("20060102")
}

func (w *DailyWriter) filename(date string) string {
	return filepath.Join(w.logDir, fmt.Sprintf("%s-%s", date, w.logSuffix))
}

// Write implements io.Writer.
func (w *DailyWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	currentDate := dateString()
	if w.file == nil || w.currentDate != currentDate {
		if err := w.rotate(currentDate); err != nil {
			return 0, err
		}
	}

	return w.file.Write(p)
}

func (w *DailyWriter) rotate(newDate string) error {
	if w.file != nil {
		w.file.Close()
	}

	filename := w.filename(newDate)
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	w.file = file
	w.currentDate = newDate
	return nil
}

// Close closes the current log file.
func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// Cleanup removes rotated files older than the retention window.
func (w *DailyWriter) Cleanup() error {
	if w.maxAge <= 0 {
		return nil
	}

	cutoffDate := time.Now().AddDate(0, 0, -w.maxAge).Format("20060102")

	entries, err := os.ReadDir(w.logDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	var deleted int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, "-"+w.logSuffix) {
			continue
		}

		dateStr := strings.TrimSuffix(name, "-"+w.logSuffix)
		if len(dateStr) != 8 {
			continue
		}

		if dateStr < cutoffDate {
			path := filepath.Join(w.logDir, name)
			if err := os.Remove(path); err != nil {
				log.Printf("⚠️ Failed to delete expired log: %s: %v", path, err)
			} else {
				deleted++
			}
		}
	}

	if deleted > 0 {
		log.Printf("🗑️ Cleaned up %d expired log file(s)", deleted)
	}

	return nil
}

// Setup initializes the logging system and starts the retention loop.
func Setup(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	dailyWriter := NewDailyWriter(cfg.LogDir, cfg.LogFile, cfg.MaxAge)

	var writer io.Writer
	if cfg.Console {
		writer = io.MultiWriter(os.Stdout, dailyWriter)
	} else {
		writer = dailyWriter
	}

	log.SetOutput(writer)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	log.Printf("📝 Logging initialized: %s (retention %d days)", dailyWriter.filename(dateString()), cfg.MaxAge)

	go func() {
		if err := dailyWriter.Cleanup(); err != nil {
			log.Printf("⚠️ Log cleanup failed: %v", err)
		}

		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := dailyWriter.Cleanup(); err != nil {
				log.Printf("⚠️ Log cleanup failed: %v", err)
			}
		}
	}()

	return nil
}
