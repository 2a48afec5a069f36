package transport

import (
	"fmt"
	"log"
	"time"

	"go.bug.st/serial"
)

const (
	// readSlice bounds a single ReadAvailable call. Short enough that the
	// protocol engine's poll loop stays responsive, long enough to batch
	// a few bytes per read on a 38400 baud link.
	readSlice = 20 * time.Millisecond

	defaultBaudRate = 38400 // ELM327 standard
)

// Serial is the pre-paired raw stream strategy: the adapter is already
// bonded at the platform level (e.g. an rfcomm device node or a USB
// ELM327 clone) and the port carries adapter bytes directly.
type Serial struct {
	portPath string
	baudRate int
	port     serial.Port
	buf      []byte
}

// SerialConfig holds connection parameters for the raw stream strategy.
type SerialConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// NewSerial creates a raw stream transport. The port is not opened yet.
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	return &Serial{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		buf:      make([]byte, 256),
	}
}

func (s *Serial) Open() error {
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.portPath, mode)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", s.portPath, err)
	}
	if err := port.SetReadTimeout(readSlice); err != nil {
		port.Close()
		return fmt.Errorf("transport: set read timeout on %s: %w", s.portPath, err)
	}
	port.ResetInputBuffer()
	s.port = port
	log.Printf("[transport] opened %s at %d baud (raw stream)", s.portPath, s.baudRate)
	return nil
}

func (s *Serial) Write(p []byte) error {
	if s.port == nil {
		return ErrNotOpen
	}
	if _, err := s.port.Write(p); err != nil {
		return fmt.Errorf("transport: write %s: %w", s.portPath, err)
	}
	return nil
}

func (s *Serial) ReadAvailable() []byte {
	if s.port == nil {
		return nil
	}
	n, err := s.port.Read(s.buf)
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out
}

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
