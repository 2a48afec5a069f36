package logger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/obdeck/obdeck/internal/store"
)

func TestRecordWritesRotatedCSV(t *testing.T) {
	dir := t.TempDir()
	rec := New(Config{Enabled: true, Path: dir, IntervalMs: 100})

	rec.Record(store.Snapshot{
		RPM:            1000,
		Speed:          60,
		CoolantTemp:    85,
		IntakeTemp:     30,
		Throttle:       20,
		BatteryVoltage: 13.2,
		Connected:      true,
		State:          "polling",
		DTCCount:       2,
	})
	rec.Close()

	files, err := filepath.Glob(filepath.Join(dir, "obdeck_*.csv"))
	if err != nil || len(files) != 1 {
		t.Fatalf("log files = %v (%v), want one", files, err)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header plus one record", len(rows))
	}
	if rows[0][1] != "rpm" {
		t.Errorf("header = %v", rows[0])
	}
	row := rows[1]
	if row[1] != "1000" || row[2] != "60" || row[8] != "polling" || row[9] != "2" {
		t.Errorf("record = %v", row)
	}
}

func TestRecordThrottlesByInterval(t *testing.T) {
	dir := t.TempDir()
	rec := New(Config{Enabled: true, Path: dir, IntervalMs: 60_000})

	rec.Record(store.Snapshot{RPM: 1})
	rec.Record(store.Snapshot{RPM: 2}) // within the interval, dropped
	rec.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "obdeck_*.csv"))
	if len(files) != 1 {
		t.Fatalf("log files = %v, want one", files)
	}
	data, _ := os.ReadFile(files[0])
	f, _ := os.Open(files[0])
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %q: %v", data, err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d, want header plus one record", len(rows))
	}
}

func TestDisabledRecorderWritesNothing(t *testing.T) {
	dir := t.TempDir()
	rec := New(Config{Enabled: false, Path: dir, IntervalMs: 100})
	rec.Record(store.Snapshot{RPM: 1000})
	rec.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "obdeck_*.csv"))
	if len(files) != 0 {
		t.Errorf("disabled recorder created %v", files)
	}
}
