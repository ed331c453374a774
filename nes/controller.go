package nes

import "bytes"

// Button bit positions within the byte passed to Console.SetController, in
// the canonical NES shift-register order.
const (
	ButtonA byte = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
)

// controller models one NES controller port: an 8-bit shadow of the
// currently pressed buttons, a shift register that snapshots that shadow
// when the strobe line is cleared, and a read index. While strobe bit 0 is
// set, the shift register continuously reloads from the shadow, so every
// read returns the A button's current state until strobe is cleared.
type controller struct {
	shadow  byte
	shift   byte
	strobe  byte
	readIdx byte
}

func (c *controller) setButtons(buttons byte) { c.shadow = buttons }

func (c *controller) write(v byte) {
	prev := c.strobe
	c.strobe = v & 1
	if c.strobe == 1 || prev == 1 {
		// Held high: the register keeps tracking the shadow. Falling edge:
		// the snapshot is latched for shifting.
		c.shift = c.shadow
		c.readIdx = 0
	}
}

// read returns bit 0 of the shift register and advances it. While strobe is
// held the register keeps reloading, so every read reports the A button.
// After 8 shifted reads the hardware's "disconnected" default of 1 is
// returned until the next strobe.
func (c *controller) read() byte {
	if c.strobe == 1 {
		return c.shadow & 1
	}

	if c.readIdx >= 8 {
		return 1
	}

	bit := c.shift & 1
	c.shift >>= 1
	c.readIdx++
	return bit
}

func (c *controller) snapshot(w *bytes.Buffer) {
	w.Write([]byte{c.shadow, c.shift, c.strobe, c.readIdx})
}

func (c *controller) restore(r *bytes.Reader) error {
	buf := make([]byte, 4)
	if _, err := r.Read(buf); err != nil {
		return err
	}
	c.shadow, c.shift, c.strobe, c.readIdx = buf[0], buf[1], buf[2], buf[3]
	return nil
}
