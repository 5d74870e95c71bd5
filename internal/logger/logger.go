package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/psudash/internal/psu"
)

// Logger records supply samples to CSV files with automatic rotation.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	maxRows  int
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool
	Path       string
	IntervalMs int
	MaxRows    int // rows per file before rotating, 0 for the default
}

const (
	maxRowsPerFile = 100_000 // ~28 hrs at 1 Hz
	minInterval    = 100 * time.Millisecond
)

var csvHeader = []string{
	"timestamp", "model",
	"set_v", "set_a",
	"out_v", "out_a", "mode", "power_w",
}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/psudash"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < minInterval {
		interval = time.Second
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = maxRowsPerFile
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		maxRows:  cfg.MaxRows,
		enabled:  cfg.Enabled,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record writes a sample if the minimum interval has elapsed since the
// last row.
func (l *Logger) Record(s *psu.Sample) {
	if s == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	if !l.lastTs.IsZero() && s.Time.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = s.Time

	if l.writer == nil || l.rows >= l.maxRows {
		if err := l.rotateFile(s.Time); err != nil {
			log.Errorf("[logger] rotate failed: %v", err)
			return
		}
	}

	if err := l.writer.Write(buildRow(s)); err != nil {
		log.Errorf("[logger] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("psu_%s.csv", now.Format("2006-01-02_150405.000"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func buildRow(s *psu.Sample) []string {
	return []string{
		s.Time.Format(time.RFC3339Nano),
		s.Model,
		fmt.Sprintf("%.2f", s.Settings.Voltage),
		fmt.Sprintf("%.2f", s.Settings.Current),
		fmt.Sprintf("%.2f", s.Status.Voltage),
		fmt.Sprintf("%.2f", s.Status.Current),
		s.Status.Mode.String(),
		fmt.Sprintf("%.3f", s.Power),
	}
}
