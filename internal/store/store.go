// Package store holds the single shared record between the acquisition
// context and the presentation context. One mutex guards everything;
// critical sections are copy-in/copy-out only.
package store

import (
	"sync"
	"time"

	"github.com/obdeck/obdeck/internal/elm"
)

// Snapshot is the value record published to the presentation context.
// A reader always observes a snapshot exactly as one Publish wrote it.
type Snapshot struct {
	CoolantTemp    float64 `json:"coolantTemp"`    // °C
	IntakeTemp     float64 `json:"intakeTemp"`     // °C
	RPM            int     `json:"rpm"`
	Speed          int     `json:"speed"`    // km/h
	Throttle       float64 `json:"throttle"` // %
	BatteryVoltage float64 `json:"batteryVoltage"`

	Connected bool   `json:"connected"`
	State     string `json:"state"`
	LastError string `json:"lastError"`

	DTCs       []elm.DTC `json:"dtcs"`
	DTCCount   int       `json:"dtcCount"`
	DTCFetched bool      `json:"dtcFetched"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the lock-protected snapshot slot plus the intent flags set by
// the presentation context. Intents coalesce: setting a flag twice before
// it is consumed has the same effect as setting it once.
type Store struct {
	mu           sync.Mutex
	snap         Snapshot
	refreshReq   bool
	clearReq     bool
	reconnectReq bool
}

func New() *Store {
	return &Store{}
}

// Publish replaces the snapshot wholesale.
func (s *Store) Publish(snap Snapshot) {
	snap.DTCs = append([]elm.DTC(nil), snap.DTCs...)
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Read returns a copy the caller may keep.
func (s *Store) Read() Snapshot {
	s.mu.Lock()
	out := s.snap
	out.DTCs = append([]elm.DTC(nil), s.snap.DTCs...)
	s.mu.Unlock()
	return out
}

// RequestRefresh asks the acquisition context for a trouble-code re-read.
func (s *Store) RequestRefresh() {
	s.mu.Lock()
	s.refreshReq = true
	s.mu.Unlock()
}

// RequestClear asks the acquisition context to clear stored codes.
func (s *Store) RequestClear() {
	s.mu.Lock()
	s.clearReq = true
	s.mu.Unlock()
}

// RequestReconnect asks a Failed link to try again.
func (s *Store) RequestReconnect() {
	s.mu.Lock()
	s.reconnectReq = true
	s.mu.Unlock()
}

// TakeDTCIntents consumes both diagnostic intents at most once.
func (s *Store) TakeDTCIntents() (refresh, clear bool) {
	s.mu.Lock()
	refresh, clear = s.refreshReq, s.clearReq
	s.refreshReq, s.clearReq = false, false
	s.mu.Unlock()
	return refresh, clear
}

// TakeReconnect consumes a pending reconnect intent.
func (s *Store) TakeReconnect() bool {
	s.mu.Lock()
	req := s.reconnectReq
	s.reconnectReq = false
	s.mu.Unlock()
	return req
}
