// Package telemetry verifies the readings the sensor-node firmware
// publishes over MQTT: it can host a minimal broker and subscribe to the
// temperature topic.
package telemetry

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"unicode/utf8"
)

// TemperatureTopic is where the firmware publishes temperature readings.
const TemperatureTopic = "sensors/temperature"

// DecodePayload renders a published payload for the log. Eight-byte
// payloads are the firmware's raw little-endian float64 readings; anything
// else is shown as text, or as hex when it is not valid UTF-8.
func DecodePayload(p []byte) string {
	if len(p) == 8 {
		return fmt.Sprintf("%.2f", math.Float64frombits(binary.LittleEndian.Uint64(p)))
	}
	if utf8.Valid(p) {
		return string(p)
	}
	return "HEX: " + hex.EncodeToString(p)
}

// EncodeReading is the inverse of DecodePayload for numeric readings.
func EncodeReading(v float64) []byte {
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
}
