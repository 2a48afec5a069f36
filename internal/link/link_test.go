package link

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obdeck/obdeck/internal/store"
	"github.com/obdeck/obdeck/internal/transport"
)

func testConfig() Config {
	return Config{
		PollInterval:     time.Millisecond,
		CommandTimeout:   200 * time.Millisecond,
		FailureThreshold: 3,
		Backoff:          10 * time.Millisecond,
		InitDelay:        0,
	}
}

func waitFor(t *testing.T, timeout time.Duration, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func simCandidate(sim *transport.Sim) []Candidate {
	return []Candidate{{Name: "sim", Dial: func() transport.Transport { return sim }}}
}

func TestLinkPollsAndPublishes(t *testing.T) {
	sim := transport.NewSim()
	sim.SetDTCs([][2]byte{{0x01, 0x33}, {0x04, 0x20}})
	st := store.New()
	lnk := New(testConfig(), simCandidate(sim), st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lnk.Run(ctx)

	waitFor(t, 2*time.Second, "first full poll rotation", func() bool {
		s := st.Read()
		return s.Connected && s.RPM == 1000 && s.Speed == 60 && s.DTCFetched
	})

	snap := st.Read()
	if snap.State != "polling" {
		t.Errorf("state = %q, want polling", snap.State)
	}
	if snap.CoolantTemp != 85 {
		t.Errorf("coolant = %v, want 85", snap.CoolantTemp)
	}
	if snap.DTCCount != 2 || len(snap.DTCs) != 2 {
		t.Fatalf("dtc count = %d (%v), want 2", snap.DTCCount, snap.DTCs)
	}
	if snap.DTCs[0].Code != "P0133" || snap.DTCs[1].Code != "P0420" {
		t.Errorf("dtc codes = %v, want [P0133 P0420]", snap.DTCs)
	}
}

// deadTransport never opens.
type deadTransport struct{}

func (deadTransport) Open() error           { return errors.New("port busy") }
func (deadTransport) Write([]byte) error    { return transport.ErrNotOpen }
func (deadTransport) ReadAvailable() []byte { return nil }
func (deadTransport) Close() error          { return nil }

func TestConnectExhaustionIsTerminal(t *testing.T) {
	var dials atomic.Int32
	dial := func() transport.Transport {
		dials.Add(1)
		return deadTransport{}
	}
	candidates := []Candidate{
		{Name: "bridge pin 1234", Dial: dial},
		{Name: "serial", Dial: dial},
	}
	st := store.New()
	lnk := New(testConfig(), candidates, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lnk.Run(ctx)

	waitFor(t, 2*time.Second, "failed state", func() bool {
		return st.Read().State == "failed"
	})
	if le := st.Read().LastError; !strings.Contains(le, "exhausted") {
		t.Errorf("lastError = %q, want exhaustion reason", le)
	}
	if n := dials.Load(); n != 2 {
		t.Errorf("dialled %d times, want one pass over 2 candidates", n)
	}

	// Failed is terminal: no retries without an explicit request.
	time.Sleep(300 * time.Millisecond)
	if n := dials.Load(); n != 2 {
		t.Errorf("link retried on its own (%d dials)", n)
	}

	st.RequestReconnect()
	waitFor(t, 2*time.Second, "reconnect attempt", func() bool {
		return dials.Load() > 2
	})
}

func TestInitFailureGoesFailed(t *testing.T) {
	sim := transport.NewSim()
	sim.SetFault(transport.FaultError)
	st := store.New()
	lnk := New(testConfig(), simCandidate(sim), st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lnk.Run(ctx)

	waitFor(t, 2*time.Second, "failed state", func() bool {
		return st.Read().State == "failed"
	})
	if le := st.Read().LastError; !strings.Contains(le, "init") {
		t.Errorf("lastError = %q, want init failure reason", le)
	}
	if n := sim.CloseCount(); n != 1 {
		t.Errorf("close count = %d, want 1", n)
	}

	time.Sleep(300 * time.Millisecond)
	if st.Read().State != "failed" || sim.CloseCount() != 1 {
		t.Error("link left failed state without a reconnect request")
	}
}

func TestPollFailuresTriggerRecovery(t *testing.T) {
	cfg := testConfig()
	cfg.CommandTimeout = 50 * time.Millisecond
	cfg.Backoff = 250 * time.Millisecond

	sim := transport.NewSim()
	st := store.New()
	lnk := New(cfg, simCandidate(sim), st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lnk.Run(ctx)

	waitFor(t, 2*time.Second, "initial connect", func() bool {
		return st.Read().Connected
	})

	sim.SetFault(transport.FaultSilent)
	waitFor(t, 2*time.Second, "recovery close", func() bool {
		return sim.CloseCount() >= 1
	})
	if st.Read().Connected {
		t.Error("snapshot still connected during recovery")
	}

	// Adapter comes back during the backoff window.
	sim.SetFault(transport.FaultNone)
	waitFor(t, 2*time.Second, "reconnect after recovery", func() bool {
		return st.Read().Connected
	})
}

func TestClearIntentClearsCodes(t *testing.T) {
	sim := transport.NewSim()
	sim.SetDTCs([][2]byte{{0x01, 0x33}, {0x04, 0x20}})
	st := store.New()
	lnk := New(testConfig(), simCandidate(sim), st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lnk.Run(ctx)

	waitFor(t, 2*time.Second, "initial dtc read", func() bool {
		s := st.Read()
		return s.DTCFetched && s.DTCCount == 2
	})

	st.RequestClear()
	waitFor(t, 2*time.Second, "post-clear re-read", func() bool {
		s := st.Read()
		return s.DTCFetched && s.DTCCount == 0
	})

	// The clear must hit the wire and be followed by a fresh read.
	cmds := sim.Commands()
	clearIdx := -1
	for i, c := range cmds {
		if c == "04" {
			clearIdx = i
			break
		}
	}
	if clearIdx < 0 {
		t.Fatalf("no clear command on the wire: %v", cmds)
	}
	rereads := cmds[clearIdx+1:]
	found := false
	for _, c := range rereads {
		if c == "03" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("no trouble-code re-read after clear: %v", rereads)
	}
}
