// Command mqtt-subscribe prints the temperature readings published by the
// sensor node.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/espbringup/internal/cli"
	"i4.energy/across/espbringup/telemetry"
)

func main() {
	ip := flag.String("broker-ip", cli.Getenv("BROKER_IP", "127.0.0.1"), "Broker IP (BROKER_IP)")
	port := flag.String("broker-port", cli.Getenv("BROKER_PORT", "1883"), "Broker port (BROKER_PORT)")
	topic := flag.String("topic", telemetry.TemperatureTopic, "Topic to subscribe to")
	clientID := flag.String("client-id", cli.Getenv("MQTT_CLIENT_ID", "esp8266-bringup"), "MQTT client ID")
	logLevel := flag.String("log-level", cli.Getenv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", cli.Getenv("LOG_FORMAT", "text"), "Log format (text, json)")
	flag.Parse()

	logger := cli.NewLogger(os.Stderr, *logLevel, *logFormat)
	mqtt.ERROR = slog.NewLogLogger(logger.Handler(), slog.LevelError)
	mqtt.CRITICAL = slog.NewLogLogger(logger.Handler(), slog.LevelError)
	mqtt.WARN = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)

	url := "tcp://" + net.JoinHostPort(*ip, *port)
	sub := telemetry.NewSubscriber(telemetry.SubscriberConfig{
		BrokerURL: url,
		ClientID:  *clientID,
		Topic:     *topic,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting", "broker", url, "topic", *topic)
	if err := sub.Run(ctx); err != nil {
		logger.Error("Connection failed", "error", err)
		os.Exit(1)
	}
}
