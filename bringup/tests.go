package bringup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/espbringup/at"
)

// DefaultRestartSettle is how long the module needs to reboot after AT+RST.
const DefaultRestartSettle = time.Second

// Restart resets the module and waits settle for it to boot.
func Restart(settle time.Duration) Test {
	return Test{
		Name: "restart",
		Run: func(ctx context.Context, env Env) bool {
			ok := env.Commander.SendCommand(at.CmdRestart)
			if !sleep(ctx, env.Clock, settle) {
				return false
			}
			return ok
		},
	}
}

// EchoMode enables or disables echoing of AT commands.
func EchoMode(enable bool) Test {
	name, cmd := "echo off", at.CmdEchoOff
	if enable {
		name, cmd = "echo on", at.CmdEchoOn
	}
	return Test{
		Name: name,
		Run: func(_ context.Context, env Env) bool {
			if !env.Commander.SendCommand(cmd) {
				env.Logger.Error("Echo mode setting failed", "enable", enable)
				return false
			}
			return true
		},
	}
}

// SmokeCommands are basic queries every healthy module answers.
var SmokeCommands = []string{
	at.CmdAt,      // AT test
	at.CmdVersion, // version information
	at.CmdUartCur, // current UART settings
	at.CmdUartDef, // default UART settings, zeros until first set
	at.CmdSysRAM,  // remaining RAM in bytes
}

// SmokeTest checks that the module responds to basic commands.
func SmokeTest() Test {
	return Test{
		Name: "smoke",
		Run: func(_ context.Context, env Env) bool {
			return All(env.Commander, SmokeCommands...)
		},
	}
}

// quote renders s as an AT string argument, escaping quotes and
// backslashes the way the AT firmware parser expects.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// joinCommand builds the station join command for the current session.
func joinCommand(ssid, password string) string {
	return "AT+CWJAP_CUR=" + quote(ssid) + "," + quote(password)
}

// WifiCommands returns the station-mode join sequence for ssid.
func WifiCommands(ssid, password string) []string {
	return []string{
		"AT+CWMODE=3",       // station + soft AP
		at.CmdWifiMode,      // 1 station, 2 soft AP, 3 both
		"AT+CWDHCP_CUR=2,0", // DHCP off in all modes
		"AT+CWDHCP_CUR=1,1", // DHCP on in station mode
		"AT+CWDHCP_CUR?",
		"AT+CWMODE=1", // station only
		at.CmdWifiMode,
		at.CmdListAPs,
		"AT+CWJAP_CUR?", // already joined?
		joinCommand(ssid, password),
		at.CmdQuitAP,
	}
}

// WifiTest joins the given access point and leaves it again.
func WifiTest(ssid, password string) Test {
	cmds := WifiCommands(ssid, password)
	return Test{
		Name: "wifi",
		Run: func(_ context.Context, env Env) bool {
			return All(env.Commander, cmds...)
		},
	}
}

// DataSender sends a raw payload and waits for the data-send result codes.
// *esp8266.Driver implements it through SendWithGrammar.
type DataSender interface {
	SendWithGrammar(cmd string, g at.Grammar) bool
}

// UDPTest joins the access point, opens a UDP link to ip:port and sends
// payload once. The receiving end is typically a udpsink.Listener. The
// payload is sent as one line, so its length includes the CRLF.
func UDPTest(ssid, password, ip string, port int, payload string) Test {
	return Test{
		Name: "udp",
		Run: func(_ context.Context, env Env) bool {
			sender, ok := env.Commander.(DataSender)
			if !ok {
				env.Logger.Error("Commander cannot send raw data")
				return false
			}

			c := env.Commander
			if !All(c,
				"AT+CWMODE=1",
				joinCommand(ssid, password),
				"AT+CIPMUX=0",
				fmt.Sprintf("AT+CIPSTART=\"UDP\",%s,%d", quote(ip), port),
				fmt.Sprintf("AT+CIPSEND=%d", len(payload)+len(at.CRLF)),
			) {
				return false
			}

			sent := sender.SendWithGrammar(payload, at.DataSendGrammar)
			// Tear down even if the send failed.
			closed := All(c, at.CmdCloseIP, at.CmdQuitAP)
			return sent && closed
		},
	}
}
