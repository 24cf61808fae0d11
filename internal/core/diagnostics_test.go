package core

import (
	"strings"
	"testing"
)

func TestDiagnostics_Add(t *testing.T) {
	d := NewDiagnostics(0)
	d.Add("first")
	d.Addf("second %d", 2)

	if got, want := d.String(), "first\nsecond 2"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if d.Lost() != 0 {
		t.Errorf("Lost() = %d, want 0", d.Lost())
	}
	if d.Count() != 2 {
		t.Errorf("Count() = %d, want 2", d.Count())
	}
}

func TestDiagnostics_Cap(t *testing.T) {
	d := NewDiagnostics(12)
	d.Add("0123456789") // 10 bytes
	d.Add("x")          // 12 with newline, still fits
	d.Add("overflow")   // lost, marker appended
	d.Add("later")      // lost silently

	want := "0123456789\nx" + MessageLostMarker
	if got := d.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if d.Lost() == 0 {
		t.Error("Lost() = 0, want messages lost")
	}
	if d.Lost() != 2 {
		t.Errorf("Lost() = %d, want 2", d.Lost())
	}
	if d.Count() != 4 {
		t.Errorf("Count() = %d, want 4", d.Count())
	}
	if strings.Count(d.String(), MessageLostMarker) != 1 {
		t.Error("marker should appear exactly once")
	}
}

func TestDiagnostics_DefaultLimit(t *testing.T) {
	d := NewDiagnostics(-1)
	msg := strings.Repeat("a", 1000)
	for i := 0; i < 100; i++ {
		d.Add(msg)
	}
	if d.Lost() == 0 {
		t.Fatal("100KB of messages should overflow the default limit")
	}
	if n := len(d.String()); n > DefaultDiagnosticsLimit+len(MessageLostMarker) {
		t.Errorf("len = %d exceeds limit", n)
	}
}
