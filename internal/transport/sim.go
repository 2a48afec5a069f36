package transport

import (
	"fmt"
	"strings"
	"sync"
)

// SimFault selects a misbehaviour for the simulated adapter.
type SimFault int

const (
	// FaultNone answers every command normally.
	FaultNone SimFault = iota
	// FaultSilent swallows commands without answering.
	FaultSilent
	// FaultGarbage answers with unterminated binary noise.
	FaultGarbage
	// FaultError answers every query with an adapter error keyword.
	FaultError
)

// Sim is an in-memory scripted adapter used for demo mode and tests. It
// implements the wire dialect far enough to exercise the protocol engine
// and link state machine unmodified: AT commands answer OK, Mode-01
// queries answer from a mutable value table, Mode 03/04 operate on a
// mutable trouble-code set, and every response ends with the prompt.
type Sim struct {
	mu       sync.Mutex
	open     bool
	out      []byte
	values   map[string]uint16 // PID -> raw word
	widths   map[string]int    // PID -> data byte count
	dtcs     [][2]byte
	fault    SimFault
	closes   int
	commands []string
}

// NewSim creates a simulator with plausible warm-idle values.
func NewSim() *Sim {
	return &Sim{
		values: map[string]uint16{
			"05": 0x7D,   // coolant 85 °C
			"0C": 0x0FA0, // 1000 rpm
			"0D": 0x3C,   // 60 km/h
			"0F": 0x46,   // intake 30 °C
			"11": 0x33,   // throttle 20 %
			"42": 0x3390, // 13.2 V
		},
		widths: map[string]int{
			"05": 1, "0C": 2, "0D": 1, "0F": 1, "11": 1, "42": 2,
		},
	}
}

func (s *Sim) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.out = nil
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		s.closes++
	}
	s.open = false
	return nil
}

func (s *Sim) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotOpen
	}
	cmd := strings.ToUpper(strings.TrimSpace(string(p)))
	if cmd == "" {
		return nil
	}
	s.commands = append(s.commands, cmd)

	switch s.fault {
	case FaultSilent:
		return nil
	case FaultGarbage:
		s.out = append(s.out, 0xFF, 0xFE, 0x00, 0x9C)
		return nil
	case FaultError:
		s.reply("NO DATA")
		return nil
	}

	switch {
	case cmd == "ATZ":
		s.reply("ELM327 v1.5")
	case strings.HasPrefix(cmd, "AT"):
		s.reply("OK")
	case cmd == "0100":
		s.reply("41 00 BE 3E B8 11")
	case strings.HasPrefix(cmd, "01") && len(cmd) == 4:
		s.replyPID(cmd[2:])
	case cmd == "03":
		s.replyDTCs()
	case cmd == "04":
		s.dtcs = nil
		s.reply("44")
	default:
		s.reply("?")
	}
	return nil
}

func (s *Sim) replyPID(pid string) {
	raw, ok := s.values[pid]
	if !ok {
		s.reply("NO DATA")
		return
	}
	if s.widths[pid] == 2 {
		s.reply(fmt.Sprintf("41 %s %02X %02X", pid, raw>>8, raw&0xFF))
		return
	}
	s.reply(fmt.Sprintf("41 %s %02X", pid, raw&0xFF))
}

func (s *Sim) replyDTCs() {
	var sb strings.Builder
	fmt.Fprintf(&sb, "43 %02X", len(s.dtcs))
	for _, d := range s.dtcs {
		fmt.Fprintf(&sb, " %02X %02X", d[0], d[1])
	}
	sb.WriteString(" 00 00")
	s.reply(sb.String())
}

func (s *Sim) reply(text string) {
	s.out = append(s.out, []byte(text+"\r\r>")...)
}

func (s *Sim) ReadAvailable() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || len(s.out) == 0 {
		return nil
	}
	out := s.out
	s.out = nil
	return out
}

// SetValue updates the raw word answered for a Mode-01 PID.
func (s *Sim) SetValue(pid string, raw uint16, width int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[pid] = raw
	s.widths[pid] = width
}

// SetDTCs replaces the stored trouble-code byte pairs.
func (s *Sim) SetDTCs(pairs [][2]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dtcs = append([][2]byte(nil), pairs...)
}

// SetFault switches the simulated misbehaviour.
func (s *Sim) SetFault(f SimFault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// CloseCount reports how many times an open link was closed.
func (s *Sim) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Commands returns the commands received so far, most recent last.
func (s *Sim) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}
