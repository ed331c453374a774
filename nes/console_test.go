package nes

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// testConsole builds a console around a minimal NROM image whose program is
// placed at 0x8000 with the reset vector pointing at it. An empty program
// defaults to a tight jump-to-self loop so frames keep advancing.
func testConsole(t *testing.T, prg []byte) *Console {
	t.Helper()

	if len(prg) == 0 {
		prg = []byte{0x4C, 0x00, 0x80} // JMP $8000
	}

	bank := make([]byte, prgUnit)
	copy(bank, prg)
	bank[0x3FFC] = 0x00
	bank[0x3FFD] = 0x80

	rom := append(append([]byte{}, baseHeader()...), bank...)
	rom = append(rom, make([]byte, chrUnit)...)

	c := NewConsole(44100, nil)
	if err := c.LoadROM(bytes.NewReader(rom)); err != nil {
		t.Fatalf("LoadROM() error = %v", err)
	}
	return c
}

func TestConsole_frameTiming(t *testing.T) {
	c := testConsole(t, nil)

	const frames = 10
	for i := 0; i < frames; i++ {
		c.StepFrame()
	}

	if c.ppu.frame != frames {
		t.Fatalf("ppu frame counter = %d, want %d", c.ppu.frame, frames)
	}

	// 89342 dots per frame at 3 dots per CPU cycle, minus instruction
	// granularity at the frame boundary.
	got := c.cpu.cycles
	want := uint64(frames * 89342 / 3)
	if got < want-30 || got > want+30 {
		t.Fatalf("cpu cycles after %d frames = %d, want %d +/- 30", frames, got, want)
	}
}

func TestConsole_nametableMirroringRoundTrip(t *testing.T) {
	c := testConsole(t, nil) // header defaults to horizontal mirroring

	// Write 0xAB to PPU 0x2400 through PPUADDR/PPUDATA.
	c.Write(0x2006, 0x24)
	c.Write(0x2006, 0x00)
	c.Write(0x2007, 0xAB)

	// Read back from 0x2000: the first PPUDATA read returns the stale
	// buffer, the second the actual byte.
	c.Write(0x2006, 0x20)
	c.Write(0x2006, 0x00)
	c.Read(0x2007)
	if got := c.Read(0x2007); got != 0xAB {
		t.Fatalf("0x2000 read = %#x, want 0xAB (mirror of 0x2400)", got)
	}
}

func TestConsole_snapshotRoundTrip(t *testing.T) {
	c := testConsole(t, nil)
	for i := 0; i < 3; i++ {
		c.StepFrame()
	}
	c.DrainAudio()

	snap := c.Snapshot()

	run := func() ([]byte, int) {
		samples := 0
		for i := 0; i < 3; i++ {
			c.StepFrame()
			samples += len(c.DrainAudio())
		}
		return append([]byte{}, c.Framebuffer()...), samples
	}

	frame1, samples1 := run()

	if err := c.Restore(snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	frame2, samples2 := run()

	if !bytes.Equal(frame1, frame2) {
		t.Fatalf("framebuffers diverge after snapshot restore")
	}
	if samples1 != samples2 {
		t.Fatalf("audio sample counts diverge: %d vs %d", samples1, samples2)
	}
}

func TestConsole_restoreRejectsBadSnapshot(t *testing.T) {
	c := testConsole(t, nil)
	c.StepFrame()

	if err := c.Restore([]byte{1, 2, 3}); err == nil {
		t.Fatalf("Restore of garbage succeeded")
	} else if _, ok := err.(*IncompatibleSnapshot); !ok {
		t.Fatalf("Restore error = %T, want *IncompatibleSnapshot", err)
	}
}

func TestConsole_determinism(t *testing.T) {
	frames := func() []byte {
		c := testConsole(t, nil)
		for i := 0; i < 5; i++ {
			c.SetController(0, ButtonA|ButtonRight)
			c.StepFrame()
		}
		return append([]byte{}, c.Framebuffer()...)
	}

	if !bytes.Equal(frames(), frames()) {
		t.Fatalf("two identical runs produced different frames")
	}
}

func TestConsole_jamIsTerminalUntilReset(t *testing.T) {
	c := testConsole(t, []byte{0x02}) // KIL

	c.StepFrame()
	if !c.Jammed() {
		t.Fatalf("console not jammed after KIL")
	}

	frame := c.ppu.frame
	c.StepFrame()
	if c.ppu.frame != frame {
		t.Fatalf("jammed StepFrame advanced the ppu")
	}

	c.Reset()
	if c.Jammed() {
		t.Fatalf("Reset did not clear the jam")
	}
}

// TestConsole_blargg runs every ROM under testdata/blargg, which all use
// the same reporting protocol: 0x80 written to 0x6000 while running, 0x00
// on pass, any other value on failure, with an ASCII message at 0x6004.
// Skips when no fixtures are present.
func TestConsole_blargg(t *testing.T) {
	roms, _ := filepath.Glob("testdata/blargg/*.nes")
	if len(roms) == 0 {
		t.Skip("no testdata/blargg fixtures present")
	}

	for _, rom := range roms {
		rom := rom
		t.Run(filepath.Base(rom), func(t *testing.T) {
			c := NewConsole(44100, nil)
			if err := c.LoadPath(rom); err != nil {
				t.Fatalf("LoadPath() error = %v", err)
			}

			// Up to 20 emulated seconds, checking the status byte once the
			// ROM has signalled it is running.
			started := false
			for frame := 0; frame < 20*60; frame++ {
				c.StepFrame()
				if c.Jammed() {
					t.Fatalf("cpu jammed on frame %d", frame)
				}

				status := c.Read(0x6000)
				if !started {
					started = status == 0x80
					continue
				}
				if status == 0x80 {
					continue
				}
				if status != 0x00 {
					t.Fatalf("result byte = %#02x, message: %q", status, blarggMessage(c))
				}
				return
			}
			t.Fatalf("timed out after 20 emulated seconds, message: %q", blarggMessage(c))
		})
	}
}

func blarggMessage(c *Console) string {
	var msg []byte
	for addr := uint16(0x6004); addr < 0x6200; addr++ {
		b := c.Read(addr)
		if b == 0 {
			break
		}
		msg = append(msg, b)
	}
	return string(msg)
}

// TestConsole_nestest drives the nestest ROM in its automated mode
// (PC forced to 0xC000) and compares every instruction's trace line to the
// published log. The fixtures are not redistributable, so the test skips
// when they are absent.
func TestConsole_nestest(t *testing.T) {
	testRom, err := os.Open("testdata/nestest.nes")
	if err != nil {
		t.Skip("testdata/nestest.nes not present")
	}
	defer testRom.Close()

	logFile, err := os.Open("testdata/nestest.log.txt")
	if err != nil {
		t.Skip("testdata/nestest.log.txt not present")
	}
	defer logFile.Close()

	buf := bytes.NewBuffer(nil)
	c := NewConsole(44100, buf)
	if err := c.LoadROM(testRom); err != nil {
		t.Fatalf("LoadROM() error = %v", err)
	}
	c.cpu.setPC(0xC000)

	scanner := bufio.NewScanner(logFile)
	for scanner.Scan() {
		want := append(scanner.Bytes(), '\n')

		c.cpu.execute(c.bus)

		if e1, e2 := c.Read(0x02), c.Read(0x03); e1 != 0 || e2 != 0 {
			t.Fatalf("nestest error bytes = %02x %02x", e1, e2)
		}
		if got := buf.Bytes(); !bytes.Equal(got, want) {
			t.Fatalf("trace mismatch:\nwant %q\ngot  %q", want, got)
		}
		buf.Reset()
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading log: %v", err)
	}
}
