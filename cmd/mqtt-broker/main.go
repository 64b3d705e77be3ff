// Command mqtt-broker runs a minimal MQTT broker for the sensor node to
// publish to. Anonymous clients are allowed.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"i4.energy/across/espbringup/internal/cli"
	"i4.energy/across/espbringup/telemetry"
)

func main() {
	bind := flag.String("bind", cli.Getenv("BROKER_BIND", telemetry.DefaultBrokerAddress), "Listen address (BROKER_BIND)")
	logLevel := flag.String("log-level", cli.Getenv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", cli.Getenv("LOG_FORMAT", "text"), "Log format (text, json)")
	flag.Parse()

	logger := cli.NewLogger(os.Stderr, *logLevel, *logFormat)

	broker, err := telemetry.NewBroker(*bind, logger)
	if err != nil {
		logger.Error("Failed to create broker", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := broker.Run(ctx); err != nil {
		logger.Error("Broker failed", "error", err)
		os.Exit(1)
	}
}
