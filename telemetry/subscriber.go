package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"
)

// Reading is a message received on a subscribed topic.
type Reading struct {
	Topic   string
	Payload []byte
	Time    time.Time
}

// Value returns the decoded payload.
func (r Reading) Value() string {
	return DecodePayload(r.Payload)
}

// SubscriberConfig describes the broker and topic to listen to.
type SubscriberConfig struct {
	// BrokerURL is e.g. "tcp://127.0.0.1:1883"
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// Topic defaults to TemperatureTopic
	Topic     string
	Logger    *slog.Logger
	OnReading func(Reading)
}

// Subscriber logs every message published on one topic.
type Subscriber struct {
	client    mqtt.Client
	topic     string
	logger    *slog.Logger
	onReading func(Reading)
	received  atomic.Int64

	subscribed     chan struct{}
	subscribedOnce sync.Once
}

// NewSubscriber prepares a client; nothing is sent until Run.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	s := &Subscriber{
		topic:      cfg.Topic,
		logger:     cfg.Logger,
		onReading:  cfg.OnReading,
		subscribed: make(chan struct{}),
	}
	if s.topic == "" {
		s.topic = TemperatureTopic
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("MQTT connection lost", "error", err)
	})
	// Subscriptions do not survive a reconnect with a clean session.
	opts.SetOnConnectHandler(s.subscribe)

	s.client = mqtt.NewClient(opts)
	return s
}

// Subscribed is closed once the first subscription is acknowledged.
func (s *Subscriber) Subscribed() <-chan struct{} {
	return s.subscribed
}

// Received returns the number of messages handled so far.
func (s *Subscriber) Received() int64 {
	return s.received.Load()
}

// Run connects and handles messages until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: connect: %w", err)
	}

	<-ctx.Done()
	s.logger.Info("Disconnecting", "received", s.received.Load())
	s.client.Disconnect(250)
	return nil
}

func (s *Subscriber) subscribe(c mqtt.Client) {
	token := c.Subscribe(s.topic, 0, s.handle)
	if token.Wait() && token.Error() != nil {
		s.logger.Error("MQTT subscribe failed", "topic", s.topic, "error", token.Error())
		return
	}
	s.logger.Info("Subscribed", "topic", s.topic)
	s.subscribedOnce.Do(func() { close(s.subscribed) })
}

func (s *Subscriber) handle(_ mqtt.Client, m mqtt.Message) {
	r := Reading{
		Topic:   m.Topic(),
		Payload: m.Payload(),
		Time:    time.Now(),
	}
	s.received.Inc()
	s.logger.Info("Received", "topic", r.Topic, "value", r.Value())
	if s.onReading != nil {
		s.onReading(r)
	}
}
