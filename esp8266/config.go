package esp8266

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"i4.energy/across/espbringup/at"
)

const (
	// DefaultReadTimeout bounds a single read from the transport.
	DefaultReadTimeout = 500 * time.Millisecond
	// DefaultResponseTimeout bounds a whole command exchange.
	DefaultResponseTimeout = 10 * time.Second
)

// Config holds the settings of a Driver. Build it with NewConfigBuilder.
type Config struct {
	dialer          Dialer
	readTimeout     time.Duration
	responseTimeout time.Duration
	grammar         at.Grammar
	logger          *slog.Logger
	clock           clockwork.Clock
}

func (c *Config) setDefaults() {
	if c.readTimeout == 0 {
		c.readTimeout = DefaultReadTimeout
	}
	if c.responseTimeout == 0 {
		c.responseTimeout = DefaultResponseTimeout
	}
	if c.grammar.IsZero() {
		c.grammar = at.CommandGrammar
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if c.readTimeout <= 0 || c.responseTimeout < c.readTimeout {
		return ErrInvalidTimeout
	}
	return nil
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with no options set.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets how the transport is opened. Required.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithReadTimeout sets the per-read timeout. Defaults to DefaultReadTimeout.
func (b *ConfigBuilder) WithReadTimeout(d time.Duration) *ConfigBuilder {
	b.config.readTimeout = d
	return b
}

// WithResponseTimeout sets the overall time a command may take to reach a
// final result code. Defaults to DefaultResponseTimeout.
func (b *ConfigBuilder) WithResponseTimeout(d time.Duration) *ConfigBuilder {
	b.config.responseTimeout = d
	return b
}

// WithGrammar sets the result codes used by SendCommand. Defaults to
// at.CommandGrammar.
func (b *ConfigBuilder) WithGrammar(g at.Grammar) *ConfigBuilder {
	b.config.grammar = g
	return b
}

// WithLogger sets the sink for commands and response lines.
func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithClock replaces the wall clock, mostly for tests.
func (b *ConfigBuilder) WithClock(c clockwork.Clock) *ConfigBuilder {
	b.config.clock = c
	return b
}

// Build applies defaults and validates the configuration.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
