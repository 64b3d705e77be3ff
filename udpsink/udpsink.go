// Package udpsink receives the UDP datagrams an ESP8266 sends during the
// bring-up UDP test. It never answers; it only logs what arrives.
package udpsink

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"unicode/utf8"

	"go.uber.org/atomic"
)

// MaxDatagramSize is the largest datagram read in one piece; longer ones
// are truncated.
const MaxDatagramSize = 1024

// Message is a received datagram.
type Message struct {
	From net.Addr
	Data []byte
}

// Text renders the payload as UTF-8 text when valid, or as "0x" followed by
// its hex encoding otherwise.
func (m Message) Text() string {
	return Decode(m.Data)
}

// Decode renders a datagram payload for the log.
func Decode(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return "0x" + hex.EncodeToString(data)
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithHandler registers fn to be called for every datagram, after it is
// logged. fn runs on the Serve goroutine.
func WithHandler(fn func(Message)) Option {
	return func(l *Listener) {
		l.onMessage = fn
	}
}

// Listener is a bound UDP socket.
type Listener struct {
	conn      net.PacketConn
	logger    *slog.Logger
	onMessage func(Message)
	received  atomic.Int64
}

// Listen binds addr ("ip:port").
func Listen(ctx context.Context, addr string, opts ...Option) (*Listener, error) {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udpsink: listen %s: %w", addr, err)
	}

	l := &Listener{conn: conn, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Received returns the number of datagrams received so far.
func (l *Listener) Received() int64 {
	return l.received.Load()
}

// Serve reads datagrams until ctx is done, then closes the socket and
// returns nil. Any other read error is returned.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.conn.Close()
	})
	defer func() {
		stop()
		l.conn.Close()
	}()

	l.logger.Info("Starting UDP server", "address", l.Addr())

	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.logger.Info("UDP server stopped", "received", l.received.Load())
				return nil
			}
			return fmt.Errorf("udpsink: read: %w", err)
		}

		msg := Message{From: from, Data: append([]byte(nil), buf[:n]...)}
		l.received.Inc()
		l.logger.Info("Received message", "from", from, "message", msg.Text())
		if l.onMessage != nil {
			l.onMessage(msg)
		}
	}
}

// Run binds addr and serves until ctx is done.
func Run(ctx context.Context, addr string, opts ...Option) error {
	l, err := Listen(ctx, addr, opts...)
	if err != nil {
		return err
	}
	return l.Serve(ctx)
}
