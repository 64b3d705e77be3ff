package esp8266_test

import (
	"time"

	"github.com/jonboulle/clockwork"
	gomock "go.uber.org/mock/gomock"

	"i4.energy/across/espbringup/esp8266"
)

// MockSequenceBuilder scripts the transport side of command exchanges.
// Every Reply chunk is delivered by exactly one Read; Silence makes reads
// expire and moves the fake clock by the requested read timeout.
type MockSequenceBuilder struct {
	transport *esp8266.MockTransport
	clock     *clockwork.FakeClock
	calls     []any
}

func NewMockSequence(transport *esp8266.MockTransport, clock *clockwork.FakeClock) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		clock:     clock,
		calls:     []any{},
	}
}

// Command expects the input buffer to be discarded and then cmd to be
// written with its CRLF terminator.
func (b *MockSequenceBuilder) Command(cmd string) *MockSequenceBuilder {
	wire := []byte(cmd + "\r\n")
	b.calls = append(b.calls,
		b.transport.EXPECT().ResetInputBuffer().Return(nil),
		b.transport.EXPECT().Write(wire).Return(len(wire), nil),
	)
	return b
}

func (b *MockSequenceBuilder) Reply(chunks ...string) *MockSequenceBuilder {
	for _, chunk := range chunks {
		resp := chunk
		b.calls = append(b.calls,
			b.transport.EXPECT().SetReadTimeout(gomock.Any()).Return(nil),
			b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				return copy(p, resp), nil
			}),
		)
	}
	return b
}

func (b *MockSequenceBuilder) Silence(reads int) *MockSequenceBuilder {
	for range reads {
		var timeout time.Duration
		b.calls = append(b.calls,
			b.transport.EXPECT().SetReadTimeout(gomock.Any()).DoAndReturn(func(d time.Duration) error {
				timeout = d
				return nil
			}),
			b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				b.clock.Advance(timeout)
				return 0, nil
			}),
		)
	}
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
