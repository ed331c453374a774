package nes

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// snapshotVersion is written at the head of every Snapshot and checked by
// Restore. Bump it whenever the persisted field order or set changes.
const snapshotVersion = 2

// Console is the master coordinator: it owns every subsystem, wires the bus
// between them, and exposes the facade a host frontend (cmd/nesc) or a
// batch tool drives the engine through.
type Console struct {
	cartridge   *cartridge
	ram         *ram
	cpu         *cpu
	apu         *apu
	ppu         *ppu
	controller1 *controller
	controller2 *controller

	bus *sysBus

	jammed bool
}

// NewConsole constructs an idle console with no ROM loaded. sampleRate is
// the host audio rate the APU's sample clock is derived from; debugOut, if
// non-nil, receives a nestest-style trace line per instruction executed.
func NewConsole(sampleRate float32, debugOut io.Writer) *Console {
	ram := &ram{}
	ctrl1 := &controller{}
	ctrl2 := &controller{}

	ppu := newPPU()
	apu := newApu(sampleRate)
	cpu := newCpu(debugOut, ppu, apu)

	bus := &sysBus{
		ram:   ram,
		cpu:   cpu,
		apu:   apu,
		ppu:   ppu,
		ctrl1: ctrl1,
		ctrl2: ctrl2,
	}
	apu.dmc.bus = bus

	return &Console{
		ram:         ram,
		cpu:         cpu,
		apu:         apu,
		ppu:         ppu,
		controller1: ctrl1,
		controller2: ctrl2,
		bus:         bus,
	}
}

// Empty reports whether a ROM has been loaded yet.
func (c *Console) Empty() bool {
	return c.cartridge == nil
}

func (c *Console) load(cart *cartridge) {
	first := c.cartridge == nil
	c.cartridge = cart
	c.bus.cartridge = cart
	c.ppu.cartridge = cart
	c.jammed = false

	if first {
		c.cpu.init(c.bus)
		return
	}

	c.Reset()
}

// LoadPath opens and parses path as an iNES image. Errors are *InvalidRom
// or *UnsupportedMapper.
func (c *Console) LoadPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("nes: unable to open rom: %w", err)
	}
	defer f.Close()

	return c.LoadROM(f)
}

// LoadROM parses rom as an iNES image and resets the console onto it.
// Errors are *InvalidRom or *UnsupportedMapper.
func (c *Console) LoadROM(rom io.Reader) error {
	cart, err := loadCartridge(rom)
	if err != nil {
		return err
	}

	c.load(cart)
	return nil
}

// Reset performs a soft reset: CPU registers per the 6502 reset sequence,
// APU silenced and frame counter reloaded, PPU write toggle cleared. RAM,
// VRAM, palette and mapper state are retained, matching the real console's
// reset line.
func (c *Console) Reset() {
	c.cpu.reset(c.bus)
	c.apu.reset()
	c.ppu.w = 0
	c.jammed = false
}

// Jammed reports whether the CPU has executed a jam (KIL/HLT) opcode. While
// jammed, StepFrame is a no-op; Reset clears the condition.
func (c *Console) Jammed() bool {
	return c.jammed
}

// StepFrame runs the console until the PPU completes one full frame. It is
// a no-op on an empty or jammed console.
//
// Each iteration runs one instruction (the cpu clocks PPU and APU inline
// with its memory accesses), then ticks the mapper's CPU-cycle counter and
// refreshes the cpu's view of the mapper IRQ line, so a line raised during
// the instruction is serviceable at the very next boundary.
func (c *Console) StepFrame() {
	if c.Empty() || c.jammed {
		return
	}

	frame := c.ppu.frame
	for frame == c.ppu.frame {
		cycles := c.cpu.execute(c.bus)
		if c.cpu.halted {
			c.jammed = true
			return
		}

		c.cartridge.tickCPU(int(cycles))
		if c.cpu.mapperIRQAck {
			c.cpu.mapperIRQAck = false
			c.cartridge.ackIRQ()
		}
		c.cpu.mapperIRQ = c.cartridge.irqLine()
	}
}

// SetController replaces the full 8-button state of controller ctrl (0 or
// 1) with buttons, a bitmask of the Button* constants.
func (c *Console) SetController(ctrl int, buttons byte) {
	switch ctrl {
	case 0:
		c.controller1.setButtons(buttons)
	case 1:
		c.controller2.setButtons(buttons)
	}
}

// Framebuffer returns the most recently composited frame as 256*240 NES
// palette indices (0-63). The backing array is owned by the PPU and is
// overwritten on the next StepFrame; callers that need to retain a frame
// must copy it.
func (c *Console) Framebuffer() []byte {
	return c.ppu.framebuffer[:]
}

// DrainAudio returns and clears every audio sample mixed since the last
// call, at the sample rate passed to NewConsole.
func (c *Console) DrainAudio() []float32 {
	return c.apu.drainAudio()
}

// BatteryRAM returns the cartridge's persistent PRG-RAM for host-side save
// file handling, or nil if the cartridge has no battery.
func (c *Console) BatteryRAM() []byte {
	if c.Empty() {
		return nil
	}
	return c.cartridge.batteryRAM()
}

// LoadBatteryRAM restores previously saved PRG-RAM into the loaded
// cartridge. It is a no-op on an empty console.
func (c *Console) LoadBatteryRAM(data []byte) {
	if c.Empty() {
		return
	}
	c.cartridge.loadBatteryRAM(data)
}

// Snapshot serializes the full engine state: CPU, RAM, PPU, APU, mapper,
// and controller shadow/shift registers, prefixed with a format-version
// marker. Snapshotting is only well-defined between
// StepFrame calls, never mid-step.
func (c *Console) Snapshot() []byte {
	var w bytes.Buffer
	binary.Write(&w, binary.LittleEndian, uint32(snapshotVersion))

	if c.Empty() {
		w.WriteByte(0)
		return w.Bytes()
	}
	w.WriteByte(1)
	w.WriteByte(c.cartridge.mapperNumber())

	c.cpu.snapshot(&w)
	c.ram.snapshot(&w)
	c.ppu.snapshot(&w)
	c.apu.snapshot(&w)
	c.cartridge.snapshot(&w)
	c.controller1.snapshot(&w)
	c.controller2.snapshot(&w)
	binary.Write(&w, binary.LittleEndian, c.jammed)

	return w.Bytes()
}

// Restore replaces the console's entire state with a previously captured
// Snapshot. On any format mismatch or structural failure it returns
// *IncompatibleSnapshot and leaves the console's prior state untouched.
func (c *Console) Restore(data []byte) error {
	r := bytes.NewReader(data)

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return &IncompatibleSnapshot{Reason: "truncated header"}
	}
	if version != snapshotVersion {
		return &IncompatibleSnapshot{Reason: fmt.Sprintf("version %d, want %d", version, snapshotVersion)}
	}

	hasCart, err := r.ReadByte()
	if err != nil {
		return &IncompatibleSnapshot{Reason: "truncated header"}
	}
	if hasCart == 0 {
		if !c.Empty() {
			return &IncompatibleSnapshot{Reason: "snapshot has no cartridge but console does"}
		}
		return nil
	}
	if c.Empty() {
		return &IncompatibleSnapshot{Reason: "snapshot has a cartridge but console has none loaded"}
	}

	wantMapper, err := r.ReadByte()
	if err != nil {
		return &IncompatibleSnapshot{Reason: "truncated header"}
	}
	if wantMapper != c.cartridge.mapperNumber() {
		return &IncompatibleSnapshot{Reason: "mapper mismatch; load the matching rom before restoring"}
	}

	// Restore into scratch copies first so a structural failure partway
	// through never mutates live state. The mapper restores in place (its
	// concrete type is opaque here), so its pre-restore state is captured
	// and put back on failure.
	var mapperPrev bytes.Buffer
	c.cartridge.snapshot(&mapperPrev)

	scratch := *c
	scratchCPU := *c.cpu
	scratchRAM := *c.ram
	scratchPPU := *c.ppu
	scratchAPU := *c.apu
	scratchCtrl1 := *c.controller1
	scratchCtrl2 := *c.controller2

	apply := func() error {
		if err := scratchCPU.restore(r); err != nil {
			return err
		}
		if err := scratchRAM.restore(r); err != nil {
			return err
		}
		if err := scratchPPU.restore(r); err != nil {
			return err
		}
		if err := scratchAPU.restore(r); err != nil {
			return err
		}
		if err := c.cartridge.restore(r); err != nil {
			return err
		}
		if err := scratchCtrl1.restore(r); err != nil {
			return err
		}
		if err := scratchCtrl2.restore(r); err != nil {
			return err
		}
		return binary.Read(r, binary.LittleEndian, &scratch.jammed)
	}

	if err := apply(); err != nil {
		c.cartridge.restore(bytes.NewReader(mapperPrev.Bytes()))
		return &IncompatibleSnapshot{Reason: err.Error()}
	}

	*c.cpu = scratchCPU
	*c.ram = scratchRAM
	*c.ppu = scratchPPU
	*c.apu = scratchAPU
	*c.controller1 = scratchCtrl1
	*c.controller2 = scratchCtrl2
	c.jammed = scratch.jammed

	c.cpu.ppu = c.ppu
	c.cpu.apu = c.apu
	c.ppu.cartridge = c.cartridge
	c.apu.dmc.bus = c.bus

	return nil
}

func (c *Console) Read(addr uint16) byte {
	return c.bus.read(addr)
}

func (c *Console) Write(addr uint16, v byte) {
	c.bus.write(addr, v)
}
