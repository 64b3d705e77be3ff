// Command udp-sink logs the UDP datagrams an ESP8266 sends to it. It never
// answers. Use it when the test runner and the listener must run on
// different hosts.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"i4.energy/across/espbringup/internal/cli"
	"i4.energy/across/espbringup/udpsink"
)

func main() {
	ip := flag.String("ip", cli.Getenv("UDP_SERVER_IP", ""), "IP to listen on (UDP_SERVER_IP)")
	port := flag.Int("port", cli.GetenvInt("UDP_SERVER_PORT", 0), "Port to listen on (UDP_SERVER_PORT)")
	logLevel := flag.String("log-level", cli.Getenv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", cli.Getenv("LOG_FORMAT", "text"), "Log format (text, json)")
	flag.Parse()

	logger := cli.NewLogger(os.Stderr, *logLevel, *logFormat)

	if *ip == "" || *port == 0 {
		logger.Error("Failed to get IP and port from the environment", "ip", *ip, "port", *port)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(*ip, strconv.Itoa(*port))
	if err := udpsink.Run(ctx, addr, udpsink.WithLogger(logger)); err != nil {
		logger.Error("UDP server failed", "error", err)
		os.Exit(1)
	}
}
