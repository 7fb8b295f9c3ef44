package mathx

import "testing"

func TestClamp(t *testing.T) {
	if got := Clamp(int32(-40000), -32768, 32767); got != -32768 {
		t.Fatalf("low: %d", got)
	}
	if got := Clamp(12000, 0, 10000); got != 10000 {
		t.Fatalf("high: %d", got)
	}
	if got := Clamp(5.5, 10, 0); got != 5.5 {
		t.Fatalf("swapped bounds: %v", got)
	}
}
