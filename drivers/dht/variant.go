package dht

import (
	"time"

	"dhtcode-go/x/timex"
)

// Variant describes one member of the sensor family: how long the host has
// to hold the line low to wake it, and how the four data bytes map onto
// humidity and temperature.
type Variant struct {
	Name string
	// Wake is the low pulse that rouses the sensor. It is held again, high,
	// after the frame to leave the bus idle.
	Wake        time.Duration
	Humidity    func(f Frame) float32
	Temperature func(f Frame) float32
}

// DHT22 covers the DHT22/AM2302 family (16-bit tenths, sign-magnitude temperature).
var DHT22 = Variant{
	Name:        "dht22",
	Wake:        1100 * time.Microsecond,
	Humidity:    wordHumidity,
	Temperature: wordTemperature,
}

// AM2302 is the same part as DHT22.
var AM2302 = DHT22

// DHT11 covers the DHT11 family (integral and decimal bytes summed as tenths).
var DHT11 = Variant{
	Name:        "dht11",
	Wake:        20 * time.Millisecond,
	Humidity:    sumHumidity,
	Temperature: sumTemperature,
}

// VariantByName resolves "dht22", "am2302" or "dht11". ok is false otherwise.
func VariantByName(name string) (v Variant, ok bool) {
	switch name {
	case "dht22", "DHT22", "am2302", "AM2302", "":
		return DHT22, true
	case "dht11", "DHT11":
		return DHT11, true
	}
	return Variant{}, false
}

func (v Variant) wakeMicros() uint32 {
	return timex.Micros(v.Wake)
}

func wordHumidity(f Frame) float32 {
	return float32(uint16(f[0])<<8|uint16(f[1])) / 10.0
}

func wordTemperature(f Frame) float32 {
	t := float32(uint16(f[2]&0x7F)<<8|uint16(f[3])) / 10.0
	if f[2]&0x80 != 0 {
		t = -t
	}
	return t
}

func sumHumidity(f Frame) float32 {
	return float32(uint16(f[0])+uint16(f[1])) / 10.0
}

func sumTemperature(f Frame) float32 {
	t := float32(uint16(f[2])+uint16(f[3])) / 10.0
	if f[2]&0x80 != 0 {
		t = -t
	}
	return t
}
