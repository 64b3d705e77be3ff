package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// DefaultBrokerAddress listens on all interfaces so the module can reach it.
const DefaultBrokerAddress = "0.0.0.0:1883"

// sysInterval is the $SYS topic refresh period in seconds.
const sysInterval = 10

// Broker is a minimal MQTT broker that accepts anonymous clients.
type Broker struct {
	server *mochi.Server
	logger *slog.Logger
	addr   string
}

// NewBroker binds addr. The listener is opened immediately so bind errors
// surface here rather than in Run.
func NewBroker(addr string, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = DefaultBrokerAddress
	}

	server := mochi.New(&mochi.Options{
		InlineClient:           true,
		Logger:                 logger,
		SysTopicResendInterval: sysInterval,
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("telemetry: allow anonymous: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "default", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("telemetry: listen %s: %w", addr, err)
	}

	return &Broker{server: server, logger: logger, addr: addr}, nil
}

// Run serves clients until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("telemetry: serve: %w", err)
	}
	b.logger.Info("MQTT broker started", "address", b.addr)

	<-ctx.Done()
	b.logger.Info("MQTT broker stopping")
	return b.server.Close()
}

// Publish sends payload to topic from the broker itself, at QoS 0.
func (b *Broker) Publish(topic string, payload []byte) error {
	return b.server.Publish(topic, payload, false, 0)
}
