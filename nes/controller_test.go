package nes

import "testing"

func TestController_strobeAndShift(t *testing.T) {
	var c controller
	c.setButtons(ButtonA | ButtonStart | ButtonRight)

	c.write(1) // strobe held: every read returns A
	if got := c.read(); got != 1 {
		t.Fatalf("strobed read = %d, want 1 (A pressed)", got)
	}
	if got := c.read(); got != 1 {
		t.Fatalf("strobed read = %d, want 1 (A still pressed)", got)
	}

	c.write(0) // latch snapshot

	want := []byte{1, 0, 0, 1, 0, 0, 0, 1} // A,B,Select,Start,Up,Down,Left,Right
	for i, w := range want {
		if got := c.read(); got != w {
			t.Fatalf("read %d = %d, want %d", i, got, w)
		}
	}

	for i := 0; i < 5; i++ {
		if got := c.read(); got != 1 {
			t.Fatalf("post-8th read = %d, want 1 (disconnected default)", got)
		}
	}
}

func TestController_restrobeResetsIndex(t *testing.T) {
	var c controller
	c.setButtons(ButtonB)
	c.write(0)
	for i := 0; i < 8; i++ {
		c.read()
	}
	c.write(1)
	c.write(0)
	if got := c.read(); got != 0 {
		t.Fatalf("after restrobe, first bit = %d, want 0 (A not pressed)", got)
	}
}
