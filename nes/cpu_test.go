package nes

import (
	"bytes"
	"testing"
)

// newTestCPU builds a minimal NROM-backed system with prg written at the
// start of the PRG bank (mapped to 0x8000) and the reset vector pointed at
// resetTo.
func newTestCPU(t *testing.T, prg []byte, resetTo uint16) (*cpu, *sysBus) {
	t.Helper()

	bank := make([]byte, prgUnit)
	copy(bank, prg)
	bank[0x3FFC] = byte(resetTo)
	bank[0x3FFD] = byte(resetTo >> 8)

	rom := append(append([]byte{}, baseHeader()...), bank...)
	rom = append(rom, make([]byte, chrUnit)...)

	cart, err := loadCartridge(bytes.NewReader(rom))
	if err != nil {
		t.Fatalf("loadCartridge() error = %v", err)
	}

	p := newPPU()
	p.cartridge = cart
	a := newApu(44100)
	c := newCpu(nil, p, a)

	bus := &sysBus{
		cartridge: cart,
		ram:       &ram{},
		cpu:       c,
		apu:       a,
		ppu:       p,
		ctrl1:     &controller{},
		ctrl2:     &controller{},
	}
	a.dmc.bus = bus

	c.init(bus)
	return c, bus
}

func TestCPU_ldaSta(t *testing.T) {
	c, bus := newTestCPU(t, []byte{
		0xA9, 0x2A, // LDA #$2A
		0x8D, 0x00, 0x00, // STA $0000
	}, 0x8000)

	c.execute(bus)
	if c.a != 0x2A {
		t.Fatalf("A = %#x, want 0x2A", c.a)
	}
	if c.p&zero != 0 {
		t.Fatalf("zero flag set after loading a nonzero value")
	}

	c.execute(bus)
	if got := bus.read(0x0000); got != 0x2A {
		t.Fatalf("RAM[0] = %#x, want 0x2A", got)
	}
}

func TestCPU_ldaSetsZeroFlag(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xA9, 0x00}, 0x8000) // LDA #$00
	c.execute(bus)
	if c.p&zero == 0 {
		t.Fatalf("zero flag not set after loading 0")
	}
	if c.p&negative != 0 {
		t.Fatalf("negative flag unexpectedly set")
	}
}

func TestCPU_branchTakenAddsCycle(t *testing.T) {
	c, bus := newTestCPU(t, []byte{
		0xA9, 0x00, // LDA #$00 (sets Z)
		0xF0, 0x02, // BEQ +2 (taken, same page)
	}, 0x8000)

	c.execute(bus) // LDA
	before := c.cycles
	c.execute(bus) // BEQ
	if c.pc != 0x8006 {
		t.Fatalf("pc after taken branch = %#x, want 0x8006", c.pc)
	}
	if c.cycles-before < 3 {
		t.Fatalf("taken branch cost %d cycles, want >= 3", c.cycles-before)
	}
}

func TestCPU_branchNotTaken(t *testing.T) {
	c, bus := newTestCPU(t, []byte{
		0xA9, 0x01, // LDA #$01 (clears Z)
		0xF0, 0x02, // BEQ +2 (not taken)
	}, 0x8000)

	c.execute(bus) // LDA
	c.execute(bus) // BEQ
	if c.pc != 0x8004 {
		t.Fatalf("pc after non-taken branch = %#x, want 0x8004", c.pc)
	}
}

func TestCPU_stackPushPull(t *testing.T) {
	c, bus := newTestCPU(t, []byte{
		0xA9, 0x55, // LDA #$55
		0x48,       // PHA
		0xA9, 0x00, // LDA #$00
		0x68, // PLA
	}, 0x8000)

	c.execute(bus) // LDA #$55
	c.execute(bus) // PHA
	c.execute(bus) // LDA #$00
	c.execute(bus) // PLA

	if c.a != 0x55 {
		t.Fatalf("A after PLA = %#x, want 0x55", c.a)
	}
}

func TestCPU_jsrRts(t *testing.T) {
	c, bus := newTestCPU(t, []byte{
		0x20, 0x05, 0x80, // JSR $8005
		0x00,       // BRK (should be skipped)
		0xEA,       // NOP (filler before subroutine)
		0xA9, 0x99, // $8005: LDA #$99
		0x60, // RTS
	}, 0x8000)

	c.execute(bus) // JSR
	if c.pc != 0x8005 {
		t.Fatalf("pc after JSR = %#x, want 0x8005", c.pc)
	}
	c.execute(bus) // LDA #$99
	if c.a != 0x99 {
		t.Fatalf("A in subroutine = %#x, want 0x99", c.a)
	}
	c.execute(bus) // RTS
	if c.pc != 0x8003 {
		t.Fatalf("pc after RTS = %#x, want 0x8003 (return address)", c.pc)
	}
}

func TestCPU_oamDMAStallsAndCopiesPage(t *testing.T) {
	c, bus := newTestCPU(t, nil, 0x8000)

	for i := 0; i < 256; i++ {
		bus.ram.write(uint16(i), byte(i))
	}

	before := c.cycles
	c.write(bus, oamDmaAddr, 0x00) // DMA from page 0 (internal RAM)
	elapsed := c.cycles - before

	want := uint64(513)
	if before&1 == 1 {
		want = 514
	}
	if elapsed != want {
		t.Fatalf("OAM DMA from cycle %d took %d cycles, want %d", before, elapsed, want)
	}
	for i := 0; i < 256; i++ {
		if bus.ppu.oam[i] != byte(i) {
			t.Fatalf("oam[%d] = %#x, want %#x", i, bus.ppu.oam[i], byte(i))
		}
	}
}

func TestCPU_kilHaltsUntilReset(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0x02}, 0x8000) // KIL

	c.execute(bus)
	if !c.halted {
		t.Fatalf("cpu not halted after KIL")
	}
	if got := c.execute(bus); got != 0 {
		t.Fatalf("halted execute consumed %d cycles, want 0", got)
	}

	c.reset(bus)
	if c.halted {
		t.Fatalf("reset did not clear the halt latch")
	}
}

func TestCPU_nmiServicedBetweenInstructions(t *testing.T) {
	c, bus := newTestCPU(t, []byte{0xEA, 0xEA}, 0x8000) // NOP; NOP

	// Point the NMI vector at 0x9000 and put a NOP there.
	prg := bus.cartridge.mapper.(*nrom).prg
	prg[0x3FFA] = 0x00
	prg[0x3FFB] = 0x90
	prg[0x1000] = 0xEA

	c.execute(bus) // NOP at 0x8000
	c.signalNMI()
	c.execute(bus) // services NMI, then runs the NOP at the vector
	if c.pc != 0x9001 {
		t.Fatalf("pc after NMI service = %#x, want 0x9001", c.pc)
	}
	if c.nmiPending {
		t.Fatalf("NMI latch still set after service")
	}
}

func TestCPU_axs(t *testing.T) {
	c, bus := newTestCPU(t, []byte{
		0xA9, 0xF0, // LDA #$F0
		0xA2, 0x3C, // LDX #$3C
		0xCB, 0x02, // AXS #$02 -> X = (A&X) - 2 = 0x30 - 2
	}, 0x8000)

	c.execute(bus)
	c.execute(bus)
	c.execute(bus)
	if c.x != 0x2E {
		t.Fatalf("X after AXS = %#x, want 0x2E", c.x)
	}
	if c.p&carry == 0 {
		t.Fatalf("carry clear after AXS with no borrow")
	}
}

func TestCPU_rmwIssuesDummyWrite(t *testing.T) {
	c, bus := newTestCPU(t, []byte{
		0xEE, 0x00, 0x00, // INC $0000
	}, 0x8000)
	bus.ram.write(0, 0x41)

	c.execute(bus)
	if got := bus.ram.read(0); got != 0x42 {
		t.Fatalf("RAM[0] after INC = %#x, want 0x42", got)
	}
}

func TestCPU_incDecWrap(t *testing.T) {
	c, bus := newTestCPU(t, []byte{
		0xA2, 0xFF, // LDX #$FF
		0xE8, // INX
	}, 0x8000)

	c.execute(bus) // LDX
	c.execute(bus) // INX
	if c.x != 0x00 {
		t.Fatalf("X after wraparound INX = %#x, want 0x00", c.x)
	}
	if c.p&zero == 0 {
		t.Fatalf("zero flag not set after INX wraps to 0")
	}
}
