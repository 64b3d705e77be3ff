// Command esp8266-test runs the AT bring-up sequence against an ESP8266
// module: restart, echo mode, smoke test, Wi-Fi join and, when a UDP
// server address is configured, a UDP send received by a local listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"i4.energy/across/espbringup/bringup"
	"i4.energy/across/espbringup/esp8266"
	"i4.energy/across/espbringup/internal/cli"
	"i4.energy/across/espbringup/udpsink"
)

// udpGrace is how long the runner waits for the test datagram after the
// module reported SEND OK.
const udpGrace = 2 * time.Second

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port of the module, or tcp://host:port for a serial bridge")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("response-timeout", "10", "Time allowed per AT command, in seconds or as a duration")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("log-format", "text", "Log format (text, json)")
	flag.String("wifi-ssid", "", "Access point joined by the Wi-Fi test")
	flag.String("wifi-passwd", "", "Password of the access point")
	flag.String("udp-server-ip", "", "Local IP the module sends the UDP test datagram to")
	flag.Int("udp-server-port", 0, "Local UDP port for the UDP test")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger := cli.NewLogger(os.Stderr, config.LogLevel, config.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, logger); err != nil {
		logger.Error("Bring-up failed", "error", err)
		os.Exit(1)
	}
	logger.Info("All tests OK!")
}

func run(ctx context.Context, config *Config, logger *slog.Logger) error {
	logger.Info("Testing ESP8266", "port", config.SerialPort, "baud", config.BaudRate)

	driverConfig, err := esp8266.NewConfigBuilder().
		WithDialer(esp8266.DialerFor(config.SerialPort, config.BaudRate)).
		WithResponseTimeout(config.ResponseTimeout).
		WithLogger(logger.With("component", "esp8266")).
		Build()
	if err != nil {
		return fmt.Errorf("driver config: %w", err)
	}

	// Opening the port is the only fatal step; it is not retried.
	d, err := esp8266.New(ctx, driverConfig)
	if err != nil {
		return fmt.Errorf("open %s: %w", config.SerialPort, err)
	}
	defer d.Close()

	tests := []bringup.Test{
		bringup.Restart(bringup.DefaultRestartSettle),
		bringup.EchoMode(true),
		bringup.EchoMode(false),
		bringup.SmokeTest(),
		bringup.WifiTest(config.WifiSSID, config.WifiPassword),
	}

	g, gctx := errgroup.WithContext(ctx)
	// Cancelling seqCtx is the stop signal for the listener.
	seqCtx, finish := context.WithCancel(gctx)
	defer finish()

	var datagrams chan udpsink.Message
	if config.UDPEnabled() {
		addr := net.JoinHostPort(config.UDPServerIP, strconv.Itoa(config.UDPServerPort))
		datagrams = make(chan udpsink.Message, 1)
		sink, err := udpsink.Listen(ctx, addr,
			udpsink.WithLogger(logger.With("component", "udpsink")),
			udpsink.WithHandler(func(m udpsink.Message) {
				select {
				case datagrams <- m:
				default:
				}
			}),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return sink.Serve(seqCtx)
		})

		payload := fmt.Sprintf("hello from esp8266 %s", time.Now().Format(time.TimeOnly))
		tests = append(tests, bringup.UDPTest(config.WifiSSID, config.WifiPassword,
			config.UDPServerIP, config.UDPServerPort, payload))
	}

	g.Go(func() error {
		defer finish()

		runner := &bringup.Runner{Logger: logger.With("component", "bringup")}
		if err := runner.Run(seqCtx, d, tests...); err != nil {
			return err
		}
		if datagrams == nil {
			return nil
		}

		select {
		case <-datagrams:
			return nil
		case <-time.After(udpGrace):
			return errors.New("udp test datagram was not received")
		case <-seqCtx.Done():
			return seqCtx.Err()
		}
	})

	return g.Wait()
}
