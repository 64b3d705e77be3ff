package esp8266

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -destination=mock_transport.go -package=esp8266 . Transport,Dialer

// Transport represents an established, bidirectional byte stream to an
// ESP8266 module.
//
// A Transport is assumed to be already connected and ready for use. Read
// must block for at most the duration set with SetReadTimeout and return
// (0, nil) when that timeout expires without data, which is how
// go.bug.st/serial ports behave. Typical implementations are serial ports,
// TCP connections to a serial bridge, or mocks used for testing.
type Transport interface {
	io.ReadWriteCloser

	// ResetInputBuffer discards any bytes received but not yet read.
	ResetInputBuffer() error

	// SetReadTimeout bounds the duration of every following Read.
	SetReadTimeout(t time.Duration) error
}

// Dialer opens a Transport to an ESP8266 module.
//
// Dialer abstracts how the connection is created and is intended to be used
// during driver construction only. Once a Transport is obtained, the Dialer
// is no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport.
	// It may perform blocking operations and should respect cancellation
	// provided by the context. Dial returns an error if the transport cannot
	// be established.
	Dial(ctx context.Context) (Transport, error)
}

// DefaultBaudRate is the factory UART speed of the ESP8266 AT firmware.
const DefaultBaudRate = 115200

// SerialDialer opens the module over a local serial port using
// go.bug.st/serial. On unix the port is opened for exclusive access, so a
// second process cannot hold the same device concurrently.
type SerialDialer struct {
	PortName string
	BaudRate int
	// Mode overrides BaudRate and the default 8N1 framing when set.
	Mode *serial.Mode
}

// Dial opens the serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("esp8266: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("esp8266: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("esp8266: open %s: %w", d.PortName, err)
	}
	return port, nil
}

// TCPDialer connects to a serial-over-TCP bridge (ser2net, esp-link) or an
// emulator speaking the AT protocol.
type TCPDialer struct {
	Address string
	Timeout time.Duration
}

// Dial connects to the configured address.
func (d TCPDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("esp8266: context is nil")
	}
	if d.Address == "" {
		return nil, errors.New("esp8266: tcp address is required")
	}

	timeout := d.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("esp8266: connect %s: %w", d.Address, err)
	}
	return NewConnTransport(conn), nil
}

// DialerFor returns a TCPDialer for addresses of the form "tcp://host:port"
// and a SerialDialer for anything else ("/dev/ttyUSB0", "COM3").
func DialerFor(port string, baudRate int) Dialer {
	if addr, ok := strings.CutPrefix(port, "tcp://"); ok {
		return TCPDialer{Address: addr}
	}
	return SerialDialer{PortName: port, BaudRate: baudRate}
}

// drainTimeout bounds how long ResetInputBuffer waits for stale bytes on a
// network connection.
const drainTimeout = 10 * time.Millisecond

// connTransport adapts a net.Conn to the Transport interface.
type connTransport struct {
	conn        net.Conn
	readTimeout time.Duration
}

var _ Transport = (*connTransport)(nil)

// NewConnTransport wraps conn so that reads honour SetReadTimeout the way a
// serial port does: an expired deadline yields (0, nil).
func NewConnTransport(conn net.Conn) Transport {
	return &connTransport{conn: conn, readTimeout: serial.NoTimeout}
}

func (t *connTransport) Read(p []byte) (int, error) {
	deadline := time.Time{}
	if t.readTimeout >= 0 {
		deadline = time.Now().Add(t.readTimeout)
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	if isTimeout(err) {
		return n, nil
	}
	return n, err
}

func (t *connTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

func (t *connTransport) SetReadTimeout(d time.Duration) error {
	t.readTimeout = d
	return nil
}

func (t *connTransport) ResetInputBuffer() error {
	var buf [256]byte
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
			return err
		}
		n, err := t.conn.Read(buf[:])
		if isTimeout(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
