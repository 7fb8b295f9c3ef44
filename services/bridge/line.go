package bridge

import (
	"context"
	"io"
	"math"

	"dhtcode-go/x/conv"
)

// LineWriter is a Publisher that writes one text line per record, e.g.
//
//	dht0 temperature: 23.4 humidity: 45.6
//	dht0 error: timeout
//
// It formats without fmt so it fits MCU builds.
type LineWriter struct {
	W   io.Writer
	buf [96]byte
}

func (l *LineWriter) PublishTelemetry(_ context.Context, t Telemetry) error {
	_, err := l.W.Write(AppendLine(l.buf[:0], t))
	return err
}

// AppendLine appends the text form of t, newline terminated.
func AppendLine(dst []byte, t Telemetry) []byte {
	var num [24]byte
	if t.Sensor != "" {
		dst = append(dst, t.Sensor...)
		dst = append(dst, ' ')
	}
	if t.Error != "" {
		dst = append(dst, "error: "...)
		dst = append(dst, t.Error...)
		return append(dst, '\n')
	}
	sep := false
	if t.Temperature != nil {
		dst = append(dst, "temperature: "...)
		dst = append(dst, conv.Deci(num[:], deci(*t.Temperature))...)
		sep = true
	}
	if t.Humidity != nil {
		if sep {
			dst = append(dst, ' ')
		}
		dst = append(dst, "humidity: "...)
		dst = append(dst, conv.Deci(num[:], deci(*t.Humidity))...)
	}
	return append(dst, '\n')
}

func deci(v float64) int64 { return int64(math.Round(v * 10)) }
