package elm

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/obdeck/obdeck/internal/transport"
)

const (
	promptByte = '>'

	// pollInterval paces reads while waiting for the prompt. Tens of
	// milliseconds keeps latency low without spinning on the port.
	pollInterval = 20 * time.Millisecond

	// maxResponseBytes bounds the accumulation buffer. Real adapter
	// responses are well under 100 bytes; anything larger is noise.
	maxResponseBytes = 512

	// flushRounds bounds the stale-byte drain before each command.
	flushRounds = 8
)

// ErrNoResponse means the timeout elapsed with zero bytes received.
var ErrNoResponse = errors.New("elm: no response before timeout")

// IncompleteError means bytes arrived but the prompt never did. The
// partial text is carried so the caller can decide whether it is usable.
type IncompleteError struct {
	Text string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("elm: response without prompt after timeout (%d bytes)", len(e.Text))
}

// Engine frames one ASCII command at a time over a Transport and waits
// for the adapter's prompt. It holds no protocol state beyond the link
// it is bound to; a new Engine is built for every (re)connect.
type Engine struct {
	tr transport.Transport

	// InitDelay is the settle time between initialization commands.
	// Cheap clones drop bytes when commands arrive back to back.
	InitDelay time.Duration
}

// NewEngine binds an engine to an open transport.
func NewEngine(tr transport.Transport) *Engine {
	return &Engine{tr: tr, InitDelay: 300 * time.Millisecond}
}

// Send writes one command and accumulates the response until the prompt
// or the deadline, whichever comes first. The returned text is decoded
// permissively: invalid byte sequences become replacement runes, never
// an error. On timeout with partial data the text is returned alongside
// an *IncompleteError.
func (e *Engine) Send(cmd string, timeout time.Duration) (string, error) {
	// Drop whatever a previous exchange left in the pipe.
	for i := 0; i < flushRounds; i++ {
		if len(e.tr.ReadAvailable()) == 0 {
			break
		}
	}

	if err := e.tr.Write([]byte(cmd + "\r")); err != nil {
		return "", fmt.Errorf("elm: send %q: %w", cmd, err)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, 128)
	for {
		chunk := e.tr.ReadAvailable()
		if len(chunk) > 0 {
			buf = append(buf, chunk...)
			if len(buf) > maxResponseBytes {
				buf = buf[:maxResponseBytes]
			}
			if bytes.IndexByte(buf, promptByte) >= 0 {
				return clean(buf), nil
			}
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}

	if len(buf) == 0 {
		return "", ErrNoResponse
	}
	text := clean(buf)
	return text, &IncompleteError{Text: text}
}

// initSequence is the fixed adapter bring-up. Order matters: echo and
// formatting first so later responses parse cleanly, protocol selection
// and timing after, and a live Mode-01 probe last to prove the vehicle
// side of the link.
var initSequence = []struct {
	cmd  string
	desc string
}{
	{"ATZ", "reset"},
	{"ATE0", "echo off"},
	{"ATL0", "linefeeds off"},
	{"ATS0", "spaces off"},
	{"ATSP0", "auto protocol"},
	{"ATAT1", "adaptive timing"},
	{"0100", "supported PIDs probe"},
}

// Init runs the bring-up sequence. Every command must produce some
// response carrying no error keyword; the first failure aborts.
func (e *Engine) Init(timeout time.Duration) error {
	for _, st := range initSequence {
		text, err := e.Send(st.cmd, timeout)
		if err != nil {
			return fmt.Errorf("elm: init %s (%s): %w", st.cmd, st.desc, err)
		}
		if IsErrorResponse(text) {
			return fmt.Errorf("elm: init %s (%s): adapter answered %q", st.cmd, st.desc, firstLine(text))
		}
		log.Printf("[elm] init %s (%s): ok", st.cmd, st.desc)
		if e.InitDelay > 0 {
			time.Sleep(e.InitDelay)
		}
	}
	return nil
}

// clean decodes the raw bytes permissively and trims framing whitespace.
func clean(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), "�"))
}

func firstLine(text string) string {
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		return text[:i]
	}
	return text
}
