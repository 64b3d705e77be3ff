package esp8266

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"i4.energy/across/espbringup/at"
)

// Driver sends AT commands to an ESP8266 module and waits for their final
// result code. It owns the transport for its whole lifetime.
//
// A Driver is not safe for concurrent use: the module answers one command
// at a time and the driver keeps a partial line between reads.
type Driver struct {
	// transport provides the physical connection to the module
	transport Transport
	// readTimeout bounds every single read
	readTimeout time.Duration
	// responseTimeout bounds a whole command exchange
	responseTimeout time.Duration
	// grammar decides which lines end an exchange
	grammar at.Grammar
	logger  *slog.Logger
	clock   clockwork.Clock
	closed  bool

	// pending holds bytes read but not yet split into lines
	pending []byte
	rbuf    [256]byte
}

// New opens the transport described by config and returns a Driver for it.
// Dial errors (missing port, permission denied, port held by another
// process) are returned as is; there is no retry.
func New(ctx context.Context, config Config) (*Driver, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	return &Driver{
		transport:       transport,
		readTimeout:     config.readTimeout,
		responseTimeout: config.responseTimeout,
		grammar:         config.grammar,
		logger:          config.logger,
		clock:           config.clock,
	}, nil
}

// SendCommand writes cmd followed by CRLF and reports whether the module
// answered with a success code before the response timeout. Failure codes,
// timeouts and transport errors all yield false.
func (d *Driver) SendCommand(cmd string) bool {
	return d.exchange(cmd, d.grammar) == at.Success
}

// SendWithGrammar is like SendCommand but ends the exchange on the result
// codes of g instead of the configured grammar.
func (d *Driver) SendWithGrammar(cmd string, g at.Grammar) bool {
	return d.exchange(cmd, g) == at.Success
}

// Exec runs one exchange with the configured grammar and returns its
// classification.
func (d *Driver) Exec(cmd string) at.Result {
	return d.exchange(cmd, d.grammar)
}

// Close releases the transport. After Close every command fails.
func (d *Driver) Close() error {
	if d.closed {
		return ErrAlreadyClosed
	}
	d.closed = true
	d.pending = nil
	return d.transport.Close()
}

// String implements fmt.Stringer for log output.
func (d *Driver) String() string {
	return fmt.Sprintf("esp8266(read=%s response=%s)", d.readTimeout, d.responseTimeout)
}

func (d *Driver) exchange(cmd string, g at.Grammar) at.Result {
	logger := d.logger.With("cmd", cmd)
	logger.Info("Sending command")

	if d.closed {
		logger.Error("Command not sent", "error", ErrAlreadyClosed)
		return at.Failure
	}
	if strings.ContainsAny(cmd, "\r\n") {
		logger.Error("Command not sent", "error", errEmbeddedTerminator)
		return at.Failure
	}

	start := d.clock.Now()

	// Anything still buffered belongs to an earlier command.
	d.pending = d.pending[:0]
	if err := d.transport.ResetInputBuffer(); err != nil {
		logger.Error("Failed to discard input", "error", err)
		return at.Failure
	}

	if _, err := d.transport.Write([]byte(cmd + at.CRLF)); err != nil {
		logger.Error("Failed to write command", "error", err)
		return at.Failure
	}

	for {
		remaining := d.responseTimeout - d.clock.Since(start)
		if remaining <= 0 {
			logger.Warn("Command timed out", "timeout", d.responseTimeout)
			return at.Timeout
		}

		line, ok, err := d.readLine(min(d.readTimeout, remaining))
		if err != nil {
			logger.Error("Failed to read response", "error", err)
			return at.Failure
		}
		if !ok || line == "" {
			continue
		}

		if !utf8.ValidString(line) {
			logger.Info("Response", "line", "0x"+hex.EncodeToString([]byte(line)))
			continue
		}
		logger.Info("Response", "line", line)

		if result := g.Classify(line); result != at.Pending {
			logger.Debug("Command finished", "result", result, "elapsed", d.clock.Since(start))
			return result
		}
	}
}

// readLine returns the next complete line, performing at most one read
// bounded by timeout. ok is false when no complete line is available yet.
func (d *Driver) readLine(timeout time.Duration) (line string, ok bool, err error) {
	if line, ok := d.nextLine(); ok {
		return line, true, nil
	}

	if err := d.transport.SetReadTimeout(timeout); err != nil {
		return "", false, err
	}
	n, err := d.transport.Read(d.rbuf[:])
	if n > 0 {
		d.pending = append(d.pending, d.rbuf[:n]...)
	}
	if err != nil {
		return "", false, err
	}

	line, ok = d.nextLine()
	return line, ok, nil
}

func (d *Driver) nextLine() (string, bool) {
	advance, token, _ := at.Splitter(d.pending, false)
	if advance == 0 {
		return "", false
	}
	line := string(token)
	d.pending = d.pending[:copy(d.pending, d.pending[advance:])]
	return line, true
}
