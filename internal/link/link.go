// Package link owns the transport connection and drives the
// connect/initialize/poll/recover life cycle. It is the only writer of
// connection status and telemetry.
package link

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/obdeck/obdeck/internal/elm"
	"github.com/obdeck/obdeck/internal/store"
	"github.com/obdeck/obdeck/internal/transport"
)

// State enumerates the link life cycle. Exactly one is current.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateInitializing
	StateReady
	StatePolling
	StateRecovering
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StatePolling:
		return "polling"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Candidate is one strategy×PIN combination to try while connecting.
// The list is finite and built once; one candidate is consumed per
// attempt, so retry depth is bounded by construction.
type Candidate struct {
	Name string
	Dial func() transport.Transport
}

// Config carries the tunables of the acquisition loop.
type Config struct {
	PollInterval     time.Duration // pause between scheduler cycles
	CommandTimeout   time.Duration // per-command deadline
	FailureThreshold int           // consecutive failures before recovery
	Backoff          time.Duration // wait before reconnecting
	InitDelay        time.Duration // settle time between init commands
	Rotation         []string      // PID codes to poll round-robin
}

// DefaultConfig mirrors the timing of the original dashboard hardware.
func DefaultConfig() Config {
	return Config{
		PollInterval:     500 * time.Millisecond,
		CommandTimeout:   2 * time.Second,
		FailureThreshold: 3,
		Backoff:          5 * time.Second,
		InitDelay:        300 * time.Millisecond,
		Rotation:         elm.PollRotation,
	}
}

// Link is the acquisition-context state machine.
type Link struct {
	cfg        Config
	candidates []Candidate
	store      *store.Store
	sched      *scheduler

	state    State
	tr       transport.Transport
	eng      *elm.Engine
	failures int
	snap     store.Snapshot
}

// New builds a link over a bounded candidate list. The store is the only
// channel to the presentation context.
func New(cfg Config, candidates []Candidate, st *store.Store) *Link {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if len(cfg.Rotation) == 0 {
		cfg.Rotation = elm.PollRotation
	}
	return &Link{
		cfg:        cfg,
		candidates: candidates,
		store:      st,
		sched:      newScheduler(cfg.Rotation),
		state:      StateDisconnected,
	}
}

// Run drives the state machine until the context is cancelled. It is the
// acquisition context's only goroutine; all transport I/O happens here.
func (l *Link) Run(ctx context.Context) {
	l.setState(StateDisconnected, "")
	for ctx.Err() == nil {
		switch l.state {
		case StateDisconnected:
			l.setState(StateConnecting, "")
		case StateConnecting:
			l.connect(ctx)
		case StateInitializing:
			l.initialize()
		case StateReady:
			l.enterPolling()
		case StatePolling:
			l.pollCycle(ctx)
		case StateRecovering:
			l.recover(ctx)
		case StateFailed:
			l.awaitReconnect(ctx)
		}
	}
	l.closeTransport()
}

// connect walks the candidate list once. The first transport that opens
// wins; exhausting the list is terminal for this attempt chain.
func (l *Link) connect(ctx context.Context) {
	var lastErr error
	for _, c := range l.candidates {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[link] trying %s", c.Name)
		tr := c.Dial()
		if err := tr.Open(); err != nil {
			log.Printf("[link] %s: %v", c.Name, err)
			lastErr = err
			continue
		}
		log.Printf("[link] %s: link up", c.Name)
		l.tr = tr
		l.eng = elm.NewEngine(tr)
		l.eng.InitDelay = l.cfg.InitDelay
		l.setState(StateInitializing, "")
		return
	}
	reason := "all pairing attempts exhausted"
	if lastErr != nil {
		reason = fmt.Sprintf("all pairing attempts exhausted (last: %v)", lastErr)
	}
	l.setState(StateFailed, reason)
}

// initialize runs the adapter bring-up. Failure here means a broken or
// absent adapter, not a dropped frame — it goes straight to Failed so a
// dead link does not churn open/close forever.
func (l *Link) initialize() {
	if err := l.eng.Init(l.cfg.CommandTimeout); err != nil {
		log.Printf("[link] init failed: %v", err)
		l.closeTransport()
		l.setState(StateFailed, fmt.Sprintf("adapter init failed: %v", err))
		return
	}
	l.setState(StateReady, "")
}

// enterPolling marks the link live and seeds the trouble-code list once,
// as the original firmware did right after connecting.
func (l *Link) enterPolling() {
	l.failures = 0
	l.snap.Connected = true
	l.snap.LastError = ""
	l.setState(StatePolling, "")
	l.readDTCs()
}

// pollCycle performs one scheduler cycle: a pending clear outranks a
// pending refresh outranks the periodic query.
func (l *Link) pollCycle(ctx context.Context) {
	refresh, clear := l.store.TakeDTCIntents()
	switch l.sched.plan(refresh, clear) {
	case actionClearDTCs:
		l.clearDTCs()
	case actionReadDTCs:
		l.readDTCs()
	default:
		l.pollNext()
	}
	if l.state == StatePolling {
		sleep(ctx, l.cfg.PollInterval)
	}
}

// pollNext queries the next PID in rotation and publishes the updated
// snapshot. Decode failures keep the previous value: stale-but-valid
// beats empty.
func (l *Link) pollNext() {
	d := l.sched.next()
	text, err := l.eng.Send(elm.Command(d), l.cfg.CommandTimeout)
	if err != nil {
		var inc *elm.IncompleteError
		if errors.As(err, &inc) {
			// Prompt never arrived but the payload may be whole.
			if v, ok := elm.DecodePID(inc.Text, d); ok {
				l.accept(d, v)
				return
			}
		}
		l.countFailure(fmt.Sprintf("query %s: %v", d.Name, err))
		return
	}
	if elm.IsErrorResponse(text) {
		// The adapter answered, so the link is alive; the query just
		// has no usable data this cycle.
		l.failures = 0
		log.Printf("[link] query %s: adapter error %q", d.Name, text)
		return
	}
	v, ok := elm.DecodePID(text, d)
	if !ok {
		l.countFailure(fmt.Sprintf("query %s: unparseable response", d.Name))
		return
	}
	l.accept(d, v)
}

func (l *Link) accept(d elm.Descriptor, v float64) {
	l.failures = 0
	switch d.Code {
	case "05":
		l.snap.CoolantTemp = v
	case "0C":
		l.snap.RPM = int(v)
	case "0D":
		l.snap.Speed = int(v)
	case "0F":
		l.snap.IntakeTemp = v
	case "11":
		l.snap.Throttle = v
	case "42":
		l.snap.BatteryVoltage = v
	}
	l.snap.UpdatedAt = time.Now()
	l.publish()
}

// countFailure tracks consecutive command failures while polling and
// trips recovery at the threshold.
func (l *Link) countFailure(detail string) {
	l.failures++
	log.Printf("[link] %s (%d/%d consecutive)", detail, l.failures, l.cfg.FailureThreshold)
	if l.failures >= l.cfg.FailureThreshold {
		l.setState(StateRecovering, fmt.Sprintf("connection lost (%d consecutive failures)", l.failures))
	}
}

// readDTCs issues a Mode-03 read and publishes the decoded, severity
// sorted list. NO DATA is a valid empty result on some adapters.
func (l *Link) readDTCs() {
	text, err := l.eng.Send("03", l.cfg.CommandTimeout)
	if err != nil {
		l.countFailure(fmt.Sprintf("dtc read: %v", err))
		return
	}
	var dtcs []elm.DTC
	if !elm.IsNoData(text) {
		if elm.IsErrorResponse(text) {
			l.failures = 0
			log.Printf("[link] dtc read: adapter error %q", text)
			return
		}
		for _, code := range elm.DecodeDTCs(text) {
			dtcs = append(dtcs, elm.Describe(code))
		}
		elm.SortBySeverity(dtcs)
	}
	l.failures = 0
	l.snap.DTCs = dtcs
	l.snap.DTCCount = len(dtcs)
	l.snap.DTCFetched = true
	l.snap.UpdatedAt = time.Now()
	l.publish()
	log.Printf("[link] dtc read: %d stored code(s)", len(dtcs))
}

// clearDTCs issues a Mode-04 clear and, on acknowledgement, immediately
// re-reads so the published list reflects the post-clear state.
func (l *Link) clearDTCs() {
	text, err := l.eng.Send("04", l.cfg.CommandTimeout)
	if err != nil {
		l.countFailure(fmt.Sprintf("dtc clear: %v", err))
		return
	}
	if !elm.IsClearAck(text) {
		l.failures = 0
		log.Printf("[link] dtc clear not acknowledged: %q", text)
		return
	}
	log.Printf("[link] dtc clear acknowledged")
	l.readDTCs()
}

// recover closes the transport, backs off, then re-enters Connecting.
func (l *Link) recover(ctx context.Context) {
	l.closeTransport()
	log.Printf("[link] recovering, reconnect in %v", l.cfg.Backoff)
	sleep(ctx, l.cfg.Backoff)
	l.failures = 0
	l.setState(StateConnecting, "")
}

// awaitReconnect holds in Failed until the presentation context asks for
// another attempt. Failed is terminal for the attempt chain; nothing
// here retries on its own.
func (l *Link) awaitReconnect(ctx context.Context) {
	if l.store.TakeReconnect() {
		log.Printf("[link] reconnect requested")
		l.setState(StateConnecting, "")
		return
	}
	sleep(ctx, 200*time.Millisecond)
}

func (l *Link) setState(st State, reason string) {
	if st != l.state {
		log.Printf("[link] %s -> %s", l.state, st)
	}
	l.state = st
	l.snap.State = st.String()
	if reason != "" {
		l.snap.LastError = reason
	}
	switch st {
	case StatePolling:
		l.snap.Connected = true
	case StateRecovering, StateFailed, StateDisconnected, StateConnecting:
		l.snap.Connected = false
	}
	l.publish()
}

func (l *Link) publish() {
	l.store.Publish(l.snap)
}

func (l *Link) closeTransport() {
	if l.tr != nil {
		l.tr.Close()
		l.tr = nil
		l.eng = nil
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
