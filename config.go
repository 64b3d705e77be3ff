package main

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"time"

	"i4.energy/across/espbringup/internal/cli"
)

// Config holds the test runner configuration
type Config struct {
	// SerialPort is the module's serial port (e.g. "/dev/ttyUSB0") or a
	// serial bridge address ("tcp://192.168.4.1:2000")
	SerialPort string
	// BaudRate is the UART speed of the module (e.g. 115200)
	BaudRate int
	// ResponseTimeout bounds every AT command exchange
	ResponseTimeout time.Duration
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// LogFormat is "text" or "json"
	LogFormat string
	// WifiSSID and WifiPassword are the access point joined by the Wi-Fi test
	WifiSSID     string
	WifiPassword string
	// UDPServerIP and UDPServerPort enable the UDP test; the runner listens
	// there while the module sends a datagram to it
	UDPServerIP   string
	UDPServerPort int
}

var (
	errNoWifiSSID     = errors.New("failed to get SSID from the environment (ESP_WIFI_SSID)")
	errNoWifiPassword = errors.New("failed to get Wi-Fi password from the environment (ESP_WIFI_PASSWD)")
	errUDPServerPort  = errors.New("UDP_SERVER_PORT requires UDP_SERVER_IP")
)

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
// and validates the result
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.WifiSSID == "" {
		return errNoWifiSSID
	}
	if c.WifiPassword == "" {
		return errNoWifiPassword
	}
	if c.UDPServerPort != 0 && c.UDPServerIP == "" {
		return errUDPServerPort
	}
	return nil
}

// UDPEnabled reports whether the UDP test and listener should run
func (c *Config) UDPEnabled() bool {
	return c.UDPServerIP != "" && c.UDPServerPort != 0
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.ResponseTimeout = 10 * time.Second
		c.LogLevel = "info"
		c.LogFormat = "text"
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = cli.Getenv("SERIAL_PORT", c.SerialPort)
		c.BaudRate = cli.GetenvInt("BAUD_RATE", c.BaudRate)

		if timeout := os.Getenv("RESPONSE_TIMEOUT"); timeout != "" {
			if d, err := cli.ParseSeconds(timeout); err == nil {
				c.ResponseTimeout = d
			}
		}

		c.LogLevel = cli.Getenv("LOG_LEVEL", c.LogLevel)
		c.LogFormat = cli.Getenv("LOG_FORMAT", c.LogFormat)

		// Credentials are taken verbatim; spaces are valid in both.
		if ssid := os.Getenv("ESP_WIFI_SSID"); ssid != "" {
			c.WifiSSID = ssid
		}
		if passwd := os.Getenv("ESP_WIFI_PASSWD"); passwd != "" {
			c.WifiPassword = passwd
		}

		c.UDPServerIP = cli.Getenv("UDP_SERVER_IP", c.UDPServerIP)
		c.UDPServerPort = cli.GetenvInt("UDP_SERVER_PORT", c.UDPServerPort)
		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "response-timeout":
				if d, err := cli.ParseSeconds(f.Value.String()); err == nil {
					c.ResponseTimeout = d
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "log-format":
				c.LogFormat = f.Value.String()
			case "wifi-ssid":
				c.WifiSSID = f.Value.String()
			case "wifi-passwd":
				c.WifiPassword = f.Value.String()
			case "udp-server-ip":
				c.UDPServerIP = f.Value.String()
			case "udp-server-port":
				if p, err := strconv.Atoi(f.Value.String()); err == nil {
					c.UDPServerPort = p
				}
			}
		})
		return nil
	}
}
