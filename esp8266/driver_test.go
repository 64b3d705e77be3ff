package esp8266_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/mock/gomock"

	"i4.energy/across/espbringup/at"
	"i4.energy/across/espbringup/esp8266"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDriver dials a mock transport with a fake clock. The returned
// builder must be finished with gomock.InOrder by the caller.
func newTestDriver(t *testing.T, ctrl *gomock.Controller, configure func(*esp8266.ConfigBuilder)) (*esp8266.Driver, *esp8266.MockTransport, *clockwork.FakeClock) {
	t.Helper()

	mockTransport := esp8266.NewMockTransport(ctrl)
	mockDialer := esp8266.NewMockDialer(ctrl)
	clock := clockwork.NewFakeClock()

	mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)

	builder := esp8266.NewConfigBuilder().
		WithDialer(mockDialer).
		WithLogger(discardLogger()).
		WithClock(clock)
	if configure != nil {
		configure(builder)
	}
	config, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	d, err := esp8266.New(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	return d, mockTransport, clock
}

func TestDriverNew(t *testing.T) {
	t.Run("Dials the transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := esp8266.NewMockTransport(ctrl)
		mockDialer := esp8266.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)

		config, err := esp8266.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		d, err := esp8266.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d == nil {
			t.Fatal("New() should return a driver on success")
		}

		mockTransport.EXPECT().Close().Return(nil)
		if err := d.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
	})

	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		d, err := esp8266.New(context.Background(), esp8266.Config{})
		if !errors.Is(err, esp8266.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer from New(), got: %v", err)
		}
		if d != nil {
			t.Error("New() should return nil driver when no dialer provided")
		}
	})

	t.Run("Dialer error is returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		dialErr := errors.New("device or resource busy")
		mockDialer := esp8266.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, dialErr)

		config, err := esp8266.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		d, err := esp8266.New(context.Background(), config)
		if !errors.Is(err, dialErr) {
			t.Errorf("expected dial error, got: %v", err)
		}
		if d != nil {
			t.Error("New() should return nil driver when dialer fails")
		}
	})

	t.Run("ErrNotInitialized on nil transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := esp8266.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, nil)

		config, err := esp8266.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		_, err = esp8266.New(context.Background(), config)
		if !errors.Is(err, esp8266.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized from New(), got: %v", err)
		}
	})
}

func TestSendCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		replies []string
		want    bool
	}{
		{
			name:    "OK",
			cmd:     "AT",
			replies: []string{"OK\r\n"},
			want:    true,
		},
		{
			name:    "ERROR",
			cmd:     "AT+SYSRAM?",
			replies: []string{"ERROR\r\n"},
			want:    false,
		},
		{
			name:    "Blank lines before OK",
			cmd:     "AT",
			replies: []string{"\r\n", "\r\n", "OK\r\n"},
			want:    true,
		},
		{
			name:    "Blank lines before ERROR",
			cmd:     "AT",
			replies: []string{"\r\n\r\n", "ERROR\r\n"},
			want:    false,
		},
		{
			name:    "Echo off answers no change",
			cmd:     "ATE0",
			replies: []string{"no change\r\n"},
			want:    true,
		},
		{
			name:    "Join rejected",
			cmd:     `AT+CWJAP_CUR="x","y"`,
			replies: []string{"ERROR\r\n"},
			want:    false,
		},
		{
			name:    "Restart banner ends with ready",
			cmd:     "AT+RST",
			replies: []string{"\r\n ets Jan  8 2013,rst cause:2, boot mode:(3,6)\r\n", "ready\r\n"},
			want:    true,
		},
		{
			name:    "Data lines before OK",
			cmd:     "AT+GMR",
			replies: []string{"AT version:1.7.4.0\r\nSDK version:3.0.4\r\n", "\r\nOK\r\n"},
			want:    true,
		},
		{
			name:    "Token split across reads",
			cmd:     "AT",
			replies: []string{"O", "K\r\n"},
			want:    true,
		},
		{
			name:    "Trailing content is not a token",
			cmd:     "AT",
			replies: []string{"OK2\r\n", "ERROR\r\n"},
			want:    false,
		},
		{
			name:    "Trailing space is not a token",
			cmd:     "AT",
			replies: []string{"OK \r\n", "ERROR\r\n"},
			want:    false,
		},
		{
			name:    "Invalid UTF-8 is skipped",
			cmd:     "AT",
			replies: []string{"\xff\xfe\x00\r\nOK\r\n"},
			want:    true,
		},
		{
			name:    "SEND OK is not a command success",
			cmd:     "AT",
			replies: []string{"SEND OK\r\n", "ERROR\r\n"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			d, mockTransport, clock := newTestDriver(t, ctrl, nil)

			gomock.InOrder(NewMockSequence(mockTransport, clock).
				Command(tt.cmd).
				Reply(tt.replies...).
				Build()...)

			if got := d.SendCommand(tt.cmd); got != tt.want {
				t.Errorf("SendCommand(%q) = %v, want %v", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestSendCommandTimeout(t *testing.T) {
	t.Run("Only blank lines until the deadline", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		const (
			readTimeout     = 500 * time.Millisecond
			responseTimeout = 10 * time.Second
		)
		d, mockTransport, clock := newTestDriver(t, ctrl, func(b *esp8266.ConfigBuilder) {
			b.WithReadTimeout(readTimeout).WithResponseTimeout(responseTimeout)
		})

		gomock.InOrder(NewMockSequence(mockTransport, clock).
			Command("AT+CWLAP").
			Build()...)

		var timeout time.Duration
		mockTransport.EXPECT().SetReadTimeout(gomock.Any()).DoAndReturn(func(rt time.Duration) error {
			if rt > readTimeout {
				t.Errorf("read timeout %v exceeds per-read timeout %v", rt, readTimeout)
			}
			timeout = rt
			return nil
		}).AnyTimes()
		mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			clock.Advance(timeout)
			return copy(p, "\r\n"), nil
		}).AnyTimes()

		start := clock.Now()
		if d.SendCommand("AT+CWLAP") {
			t.Error("expected false on timeout")
		}

		elapsed := clock.Since(start)
		if elapsed < responseTimeout {
			t.Errorf("returned after %v, before the response timeout %v", elapsed, responseTimeout)
		}
		if elapsed >= responseTimeout+readTimeout {
			t.Errorf("returned after %v, later than response timeout plus one read", elapsed)
		}
	})

	t.Run("Last read is shortened to the deadline", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport, clock := newTestDriver(t, ctrl, func(b *esp8266.ConfigBuilder) {
			b.WithReadTimeout(500 * time.Millisecond).WithResponseTimeout(1200 * time.Millisecond)
		})

		var timeouts []time.Duration
		gomock.InOrder(NewMockSequence(mockTransport, clock).
			Command("AT").
			Build()...)
		mockTransport.EXPECT().SetReadTimeout(gomock.Any()).DoAndReturn(func(rt time.Duration) error {
			timeouts = append(timeouts, rt)
			return nil
		}).Times(3)
		mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			clock.Advance(timeouts[len(timeouts)-1])
			return 0, nil
		}).Times(3)

		if got := d.Exec("AT"); got != at.Timeout {
			t.Errorf("expected Timeout, got %v", got)
		}

		want := []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 200 * time.Millisecond}
		if !slices.Equal(timeouts, want) {
			t.Errorf("read timeouts = %v, want %v", timeouts, want)
		}
	})

	t.Run("Silent module", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport, clock := newTestDriver(t, ctrl, func(b *esp8266.ConfigBuilder) {
			b.WithReadTimeout(time.Second).WithResponseTimeout(3 * time.Second)
		})

		gomock.InOrder(NewMockSequence(mockTransport, clock).
			Command("AT").
			Silence(3).
			Build()...)

		if d.SendCommand("AT") {
			t.Error("expected false from a silent module")
		}
	})
}

func TestSendCommandDiscardsStaleInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	d, mockTransport, clock := newTestDriver(t, ctrl, nil)

	// The first read carries two OKs; the second one must not answer the
	// next command.
	gomock.InOrder(NewMockSequence(mockTransport, clock).
		Command("AT").
		Reply("OK\r\nOK\r\n").
		Command("AT+GMR").
		Reply("ERROR\r\n").
		Build()...)

	if !d.SendCommand("AT") {
		t.Error("expected first command to succeed")
	}
	if d.SendCommand("AT+GMR") {
		t.Error("stale OK from the previous command was used")
	}
}

func TestSendCommandTransportErrors(t *testing.T) {
	t.Run("Reset failure skips the write", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport, _ := newTestDriver(t, ctrl, nil)
		mockTransport.EXPECT().ResetInputBuffer().Return(errors.New("bad file descriptor"))

		if d.SendCommand("AT") {
			t.Error("expected false when the input buffer cannot be reset")
		}
	})

	t.Run("Write failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport, _ := newTestDriver(t, ctrl, nil)
		gomock.InOrder(
			mockTransport.EXPECT().ResetInputBuffer().Return(nil),
			mockTransport.EXPECT().Write([]byte("AT\r\n")).Return(0, errors.New("port closed")),
		)

		if d.SendCommand("AT") {
			t.Error("expected false on write failure")
		}
	})

	t.Run("Read failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport, clock := newTestDriver(t, ctrl, nil)
		gomock.InOrder(slices.Concat(
			NewMockSequence(mockTransport, clock).Command("AT").Build(),
			[]any{
				mockTransport.EXPECT().SetReadTimeout(gomock.Any()).Return(nil),
				mockTransport.EXPECT().Read(gomock.Any()).Return(0, io.EOF),
			},
		)...)

		if got := d.Exec("AT"); got != at.Failure {
			t.Errorf("expected Failure on read error, got %v", got)
		}
	})

	t.Run("Embedded terminator is never written", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, _, _ := newTestDriver(t, ctrl, nil)

		if d.SendCommand("AT\r\nAT+RST") {
			t.Error("expected false for a command with an embedded terminator")
		}
	})
}

func TestSendWithGrammar(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	d, mockTransport, clock := newTestDriver(t, ctrl, nil)

	gomock.InOrder(NewMockSequence(mockTransport, clock).
		Command("hello").
		Reply("\r\nRecv 7 bytes\r\n", "\r\nSEND OK\r\n").
		Command("hello").
		Reply("\r\nSEND FAIL\r\n").
		Build()...)

	if !d.SendWithGrammar("hello", at.DataSendGrammar) {
		t.Error("expected SEND OK to succeed with the data-send grammar")
	}
	if d.SendWithGrammar("hello", at.DataSendGrammar) {
		t.Error("expected SEND FAIL to fail with the data-send grammar")
	}
}

func TestConfiguredGrammar(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	grammar := at.NewGrammar([]string{"DONE"}, []string{"FAIL"})
	d, mockTransport, clock := newTestDriver(t, ctrl, func(b *esp8266.ConfigBuilder) {
		b.WithGrammar(grammar)
	})

	gomock.InOrder(NewMockSequence(mockTransport, clock).
		Command("AT+CUSTOM").
		Reply("OK\r\n", "DONE\r\n").
		Build()...)

	if got := d.Exec("AT+CUSTOM"); got != at.Success {
		t.Errorf("expected Success, got %v", got)
	}
}

func TestDriverClose(t *testing.T) {
	t.Run("Returns transport error on close failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport, _ := newTestDriver(t, ctrl, nil)
		closeError := errors.New("transport close failed")
		mockTransport.EXPECT().Close().Return(closeError)

		if err := d.Close(); err != closeError {
			t.Errorf("expected transport error, got: %v", err)
		}
	})

	t.Run("ErrAlreadyClosed on double close", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport, _ := newTestDriver(t, ctrl, nil)
		mockTransport.EXPECT().Close().Return(nil)

		if err := d.Close(); err != nil {
			t.Errorf("first close should succeed, got error: %v", err)
		}
		if err := d.Close(); err != esp8266.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed on second close, got: %v", err)
		}
	})

	t.Run("Commands fail after close", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d, mockTransport, _ := newTestDriver(t, ctrl, nil)
		mockTransport.EXPECT().Close().Return(nil)

		if err := d.Close(); err != nil {
			t.Fatalf("unexpected error from Close(): %v", err)
		}
		if d.SendCommand("AT") {
			t.Error("expected false after Close")
		}
	})
}

func TestSendCommandLogsExchange(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	d, mockTransport, clock := newTestDriver(t, ctrl, func(b *esp8266.ConfigBuilder) {
		b.WithLogger(logger)
	})

	gomock.InOrder(NewMockSequence(mockTransport, clock).
		Command("AT+GMR").
		Reply("AT version:1.7.4.0\r\n\r\nOK\r\n").
		Build()...)

	if !d.SendCommand("AT+GMR") {
		t.Fatal("expected success")
	}

	out := logs.String()
	for _, want := range []string{"Sending command", "cmd=AT+GMR", `line="AT version:1.7.4.0"`, "line=OK"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "msg=Response") != 2 {
		t.Errorf("expected exactly two response lines logged (blank lines skipped):\n%s", out)
	}
}
