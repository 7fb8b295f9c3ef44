package platform

import (
	"errors"
	"testing"

	"dhtcode-go/drivers/dht"
	"dhtcode-go/errcode"
)

func TestSimClaims(t *testing.T) {
	s := NewSim()
	s.Attach(15, dht.DHT22)

	if _, err := s.ClaimGPIO("a", 3); !errors.Is(err, errcode.UnknownPin) {
		t.Fatalf("unattached pin: %v", err)
	}
	h, err := s.ClaimGPIO("a", 15)
	if err != nil {
		t.Fatal(err)
	}
	if h.Number() != 15 {
		t.Fatalf("number: %d", h.Number())
	}
	if _, err := s.ClaimGPIO("b", 15); !errors.Is(err, errcode.PinInUse) {
		t.Fatalf("second claim: %v", err)
	}

	s.ReleaseGPIO("b", 15) // not the owner: no effect
	if _, err := s.ClaimGPIO("b", 15); !errors.Is(err, errcode.PinInUse) {
		t.Fatalf("claim after foreign release: %v", err)
	}
	s.ReleaseGPIO("a", 15)
	if _, err := s.ClaimGPIO("b", 15); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestSimAttachIsIdempotent(t *testing.T) {
	s := NewSim()
	if s.Attach(4, dht.DHT11) != s.Attach(4, dht.DHT11) {
		t.Fatal("second attach replaced the sensor")
	}
}

func TestSimPinDrivesSensor(t *testing.T) {
	s := NewSim()
	s.Attach(2, dht.DHT22)
	h, err := s.ClaimGPIO("d", 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.ConfigureOutput(false); err != nil {
		t.Fatal(err)
	}
	if h.Get() {
		t.Fatal("line high while driven low")
	}
	h.Toggle()
	if !h.Get() {
		t.Fatal("toggle did not raise the line")
	}
	if s.Timing() == nil {
		t.Fatal("no timing")
	}
}
