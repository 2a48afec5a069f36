package transport

import (
	"fmt"
	"log"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	pairStepTimeout = 2 * time.Second
	linkTimeout     = 10 * time.Second
)

// Bridge is the managed-pairing strategy: an HC-05 class Bluetooth SPP
// bridge sits on the serial port in command mode. Open drives the bridge
// through master-role setup, PIN configuration, binding and link-up, then
// the port becomes a transparent byte pipe to the adapter.
//
// The bridge speaks its own CRLF-terminated AT dialect during pairing;
// this is unrelated to the adapter's command set and never leaks past
// Open.
type Bridge struct {
	portPath string
	baudRate int
	peerAddr string // adapter MAC, "AA:BB:CC:DD:EE:FF"
	pin      string
	port     serial.Port
	buf      []byte
}

// BridgeConfig holds connection parameters for the managed-pairing
// strategy. The PIN is passed separately so the link state machine can
// iterate a bounded PIN set over the same bridge settings.
type BridgeConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
	PeerAddr string `yaml:"peer_addr" json:"peerAddr"`
}

// NewBridge creates a managed-pairing transport for one PIN attempt.
func NewBridge(cfg BridgeConfig, pin string) *Bridge {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	return &Bridge{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		peerAddr: cfg.PeerAddr,
		pin:      pin,
		buf:      make([]byte, 256),
	}
}

func (b *Bridge) Open() error {
	mode := &serial.Mode{
		BaudRate: b.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(b.portPath, mode)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", b.portPath, err)
	}
	if err := port.SetReadTimeout(readSlice); err != nil {
		port.Close()
		return fmt.Errorf("transport: set read timeout on %s: %w", b.portPath, err)
	}
	b.port = port

	if err := b.pair(); err != nil {
		port.Close()
		b.port = nil
		return err
	}
	port.ResetInputBuffer()
	log.Printf("[transport] bridge on %s linked to %s", b.portPath, b.peerAddr)
	return nil
}

// pair runs the bridge's pairing dialogue: probe, master role, fixed peer
// mode, PIN, bind, link. Each step must answer OK; link-up gets a longer
// deadline because the radio handshake is slow.
func (b *Bridge) pair() error {
	addr := bindAddr(b.peerAddr)
	steps := []struct {
		cmd     string
		timeout time.Duration
	}{
		{"AT", pairStepTimeout},
		{"AT+ROLE=1", pairStepTimeout},
		{"AT+CMODE=0", pairStepTimeout},
		{"AT+PSWD=" + b.pin, pairStepTimeout},
		{"AT+BIND=" + addr, pairStepTimeout},
		{"AT+LINK=" + addr, linkTimeout},
	}
	for _, st := range steps {
		resp, err := b.command(st.cmd, st.timeout)
		if err != nil {
			return fmt.Errorf("transport: bridge %s: %w", st.cmd, err)
		}
		if !strings.Contains(resp, "OK") {
			return fmt.Errorf("transport: bridge %s answered %q", st.cmd, strings.TrimSpace(resp))
		}
	}
	return nil
}

// command sends one CRLF-terminated bridge command and collects the reply
// until a terminal keyword or the deadline.
func (b *Bridge) command(cmd string, timeout time.Duration) (string, error) {
	b.port.ResetInputBuffer()
	if _, err := b.port.Write([]byte(cmd + "\r\n")); err != nil {
		return "", err
	}
	deadline := time.Now().Add(timeout)
	var resp strings.Builder
	for time.Now().Before(deadline) {
		n, err := b.port.Read(b.buf)
		if err != nil {
			return resp.String(), err
		}
		if n > 0 {
			resp.Write(b.buf[:n])
			s := resp.String()
			if strings.Contains(s, "OK") || strings.Contains(s, "ERROR") || strings.Contains(s, "FAIL") {
				return s, nil
			}
		}
	}
	if resp.Len() == 0 {
		return "", fmt.Errorf("no reply within %v", timeout)
	}
	return resp.String(), nil
}

func (b *Bridge) Write(p []byte) error {
	if b.port == nil {
		return ErrNotOpen
	}
	if _, err := b.port.Write(p); err != nil {
		return fmt.Errorf("transport: write %s: %w", b.portPath, err)
	}
	return nil
}

func (b *Bridge) ReadAvailable() []byte {
	if b.port == nil {
		return nil
	}
	n, err := b.port.Read(b.buf)
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b.buf[:n])
	return out
}

func (b *Bridge) Close() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

// bindAddr converts "AA:BB:CC:DD:EE:FF" to the bridge's comma form
// "AABB,CC,DDEEFF". Malformed input is passed through untouched; the
// bridge will reject it and the open fails cleanly.
func bindAddr(mac string) string {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return mac
	}
	return parts[0] + parts[1] + "," + parts[2] + "," + parts[3] + parts[4] + parts[5]
}
