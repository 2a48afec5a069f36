package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/obdeck/obdeck/internal/store"
)

// Recorder writes timestamped telemetry snapshots to CSV files with
// automatic rotation.
type Recorder struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds recorder configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

const (
	maxRowsPerFile = 100_000 // Rotate after 100k rows
)

var csvHeader = []string{
	"timestamp", "rpm", "speed_kph", "coolant_c", "intake_c",
	"throttle_pct", "battery_v", "connected", "state", "dtc_count",
}

// New creates a new Recorder.
func New(cfg Config) *Recorder {
	if cfg.Path == "" {
		cfg.Path = "/var/log/obdeck"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 100*time.Millisecond {
		interval = time.Second
	}
	return &Recorder{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
	}
}

// SetEnabled allows toggling recording at runtime.
func (r *Recorder) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
	if !on && r.file != nil {
		r.closeFile()
	}
}

// IsEnabled returns whether recording is active.
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Record writes a snapshot if the minimum interval has elapsed.
func (r *Recorder) Record(snap store.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return
	}

	now := time.Now()
	if now.Sub(r.lastTs) < r.interval {
		return
	}
	r.lastTs = now

	// Open/rotate file if needed
	if r.writer == nil || r.rows >= maxRowsPerFile {
		if err := r.rotateFile(now); err != nil {
			log.Printf("[logger] rotate failed: %v", err)
			return
		}
	}

	row := buildRow(now, snap)
	if err := r.writer.Write(row); err != nil {
		log.Printf("[logger] write failed: %v", err)
		return
	}
	r.writer.Flush()
	r.rows++
}

// Close flushes and closes the current log file.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeFile()
}

func (r *Recorder) rotateFile(now time.Time) error {
	r.closeFile()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", r.dir, err)
	}

	filename := fmt.Sprintf("obdeck_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(r.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	r.file = f
	r.writer = csv.NewWriter(f)
	r.rows = 0

	// Write header
	if err := r.writer.Write(csvHeader); err != nil {
		return err
	}
	r.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (r *Recorder) closeFile() {
	if r.writer != nil {
		r.writer.Flush()
		r.writer = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

func buildRow(ts time.Time, s store.Snapshot) []string {
	return []string{
		ts.Format(time.RFC3339Nano),
		fmt.Sprintf("%d", s.RPM),
		fmt.Sprintf("%d", s.Speed),
		fmt.Sprintf("%.1f", s.CoolantTemp),
		fmt.Sprintf("%.1f", s.IntakeTemp),
		fmt.Sprintf("%.1f", s.Throttle),
		fmt.Sprintf("%.2f", s.BatteryVoltage),
		boolStr(s.Connected),
		s.State,
		fmt.Sprintf("%d", s.DTCCount),
	}
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
