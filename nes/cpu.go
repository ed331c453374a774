package nes

import (
	"bytes"
	"encoding/binary"
	"io"
)

const cpuFreq float64 = 1789773

const (
	nmiAddr    = uint16(0xFFFA)
	resetAddr  = uint16(0xFFFC)
	irqBrkAddr = uint16(0xFFFE)

	stackHi = 0x0100
)

// status is the processor status byte. Break and unused are not backed by
// flip-flops on the real chip; they only exist in the byte pushed to the
// stack (break distinguishes BRK/PHP pushes from interrupt pushes).
type status byte

const (
	carry status = 1 << iota
	zero
	interruptDisable
	decimal // accepted but inert: the 2A03 has no BCD unit
	brk
	unused
	overflow
	negative
)

// cpu is the 2A03's 6502 core. One execute call runs a single complete
// instruction; every memory access inside it goes through read/write, which
// advance the PPU by three dots and the APU by one cycle first, so
// mid-instruction timing (A12 edges, register side effects, DMC stalls) is
// observed in hardware order.
type cpu struct {
	cycles uint64

	a    byte
	x, y byte
	pc   uint16
	s    byte
	p    status

	// nmiPending is the edge-triggered NMI latch, set by the PPU when the
	// VBL-flag-and-NMI-enable conjunction goes 0->1. Serviced between
	// instructions.
	nmiPending bool

	// mapperIRQ mirrors the cartridge's IRQ line; Console refreshes it at
	// every instruction boundary. The APU's frame and DMC IRQ flags are read
	// straight from the apu, so the effective IRQ input is the OR of all
	// three.
	mapperIRQ    bool
	mapperIRQAck bool

	// polledI is the interrupt-disable flag as it stood when the previous
	// instruction started. IRQ polling uses this rather than the live flag,
	// which is what delays the effect of CLI/SEI/PLP by one instruction.
	polledI bool

	// halted latches when a KIL opcode executes. Only reset releases it.
	halted bool

	debug io.Writer

	ppu *ppu
	apu *apu
}

func newCpu(debug io.Writer, ppu *ppu, apu *apu) *cpu {
	return &cpu{
		debug: debug,
		p:     interruptDisable | unused,
		s:     0xFD,
		pc:    resetAddr,
		ppu:   ppu,
		apu:   apu,
	}
}

func (c *cpu) init(bus *sysBus) {
	c.pc = c.readAddress(bus, resetAddr)
}

func (c *cpu) setPC(pc uint16) {
	c.pc = pc
}

// reset runs the soft-reset sequence: no stack writes, S decremented by
// three, I set, PC fetched from the reset vector.
func (c *cpu) reset(bus *sysBus) {
	c.p |= interruptDisable
	c.polledI = true
	c.s -= 3
	c.halted = false
	c.nmiPending = false

	c.pc = c.readAddress(bus, resetAddr)
}

// signalNMI latches a pending NMI. The latch is edge-triggered: callers
// (the PPU) only invoke it on the 0->1 transition of VBL&enable.
func (c *cpu) signalNMI() {
	c.nmiPending = true
}

// cancelNMI drops an NMI that was latched but not yet serviced; the PPU
// uses it for the PPUSTATUS-read-at-VBL-set race.
func (c *cpu) cancelNMI() {
	c.nmiPending = false
}

func (c *cpu) irqLevel() bool {
	return c.apu.irqPending || c.apu.dmc.irqPending || c.mapperIRQ
}

// snapshot/restore persist the register file and interrupt latches. The
// ppu/apu pointers are rewired by Console after a restore.
func (c *cpu) snapshot(w *bytes.Buffer) {
	for _, v := range []interface{}{
		c.cycles, c.a, c.x, c.y, c.pc, c.s, c.p,
		c.nmiPending, c.mapperIRQ, c.polledI, c.halted,
	} {
		binary.Write(w, binary.LittleEndian, v)
	}
}

func (c *cpu) restore(r *bytes.Reader) error {
	for _, v := range []interface{}{
		&c.cycles, &c.a, &c.x, &c.y, &c.pc, &c.s, &c.p,
		&c.nmiPending, &c.mapperIRQ, &c.polledI, &c.halted,
	} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

// execute runs one instruction (servicing a pending interrupt first) and
// returns the cycles it consumed. A halted cpu returns 0 without touching
// any state.
func (c *cpu) execute(bus *sysBus) uint64 {
	if c.halted {
		return 0
	}

	oldCycles := c.cycles

	// A DMC fetch queued during the previous instruction stalls the cpu
	// before the next one begins; PPU and APU keep running through the
	// stolen cycles.
	for c.apu.dmc.stallCycles > 0 {
		c.apu.dmc.stallCycles--
		c.clock()
	}

	c.serviceInterrupts(bus)

	polled := c.p&interruptDisable != 0

	initialPc := c.pc
	opCode := c.read(bus, c.pc)
	c.pc++

	inst := instructions[opCode]
	intermediateAddr, addr := c.resolveAddress(bus, inst)

	if c.debug != nil {
		disassemble(c.debug, bus, initialPc, c.a, c.x, c.y, byte(c.p), c.s, inst, intermediateAddr, addr, oldCycles, c.ppu)
	}

	c.dispatch(bus, opCode, inst.mode, addr)

	// CLI, SEI and PLP change I with a one-instruction delay: the next poll
	// still sees the old value. Everything else polls the live flag.
	switch opCode {
	case 0x58, 0x78, 0x28:
		c.polledI = polled
	default:
		c.polledI = c.p&interruptDisable != 0
	}

	return c.cycles - oldCycles
}

func (c *cpu) dispatch(bus *sysBus, opCode byte, mode addressingMode, addr uint16) {
	switch opCode {
	case 0x04, 0x0C, 0x14, 0x1A, 0x1C, 0x34, 0x3A, 0x3C, 0x44, 0x54, 0x5A,
		0x5C, 0x64, 0x74, 0x7A, 0x7C, 0x80, 0x82, 0x89, 0xC2, 0xD4, 0xDA,
		0xDC, 0xE2, 0xEA, 0xF4, 0xFA, 0xFC:
		c.nop(bus, mode, addr)
	case 0x61, 0x65, 0x69, 0x6D, 0x71, 0x75, 0x79, 0x7D:
		c.adc(bus, mode, addr)
	case 0x93, 0x9F:
		c.ahx(bus, mode, addr)
	case 0x4B:
		c.alr(bus, mode, addr)
	case 0x0B, 0x2B:
		c.anc(bus, mode, addr)
	case 0x21, 0x25, 0x29, 0x2D, 0x31, 0x35, 0x39, 0x3D:
		c.and(bus, mode, addr)
	case 0x6B:
		c.arr(bus, mode, addr)
	case 0x06, 0x0A, 0x0E, 0x16, 0x1E:
		c.asl(bus, mode, addr)
	case 0xCB:
		c.axs(bus, mode, addr)
	case 0x90:
		c.bcc(bus, mode, addr)
	case 0xB0:
		c.bcs(bus, mode, addr)
	case 0xF0:
		c.beq(bus, mode, addr)
	case 0x24, 0x2C:
		c.bit(bus, mode, addr)
	case 0x30:
		c.bmi(bus, mode, addr)
	case 0xD0:
		c.bne(bus, mode, addr)
	case 0x10:
		c.bpl(bus, mode, addr)
	case 0x00:
		c.brkOp(bus, mode, addr)
	case 0x50:
		c.bvc(bus, mode, addr)
	case 0x70:
		c.bvs(bus, mode, addr)
	case 0x18:
		c.p &^= carry
	case 0xD8:
		c.p &^= decimal
	case 0x58:
		c.p &^= interruptDisable
	case 0xB8:
		c.p &^= overflow
	case 0xC1, 0xC5, 0xC9, 0xCD, 0xD1, 0xD5, 0xD9, 0xDD:
		c.cmp(bus, mode, addr)
	case 0xE0, 0xE4, 0xEC:
		c.cpx(bus, mode, addr)
	case 0xC0, 0xC4, 0xCC:
		c.cpy(bus, mode, addr)
	case 0xC3, 0xC7, 0xCF, 0xD3, 0xD7, 0xDB, 0xDF:
		c.dcp(bus, mode, addr)
	case 0xC6, 0xCE, 0xD6, 0xDE:
		c.dec(bus, mode, addr)
	case 0xCA:
		c.x = c.doDec(c.x)
	case 0x88:
		c.y = c.doDec(c.y)
	case 0x41, 0x45, 0x49, 0x4D, 0x51, 0x55, 0x59, 0x5D:
		c.eor(bus, mode, addr)
	case 0xE6, 0xEE, 0xF6, 0xFE:
		c.inc(bus, mode, addr)
	case 0xE8:
		c.x = c.doInc(c.x)
	case 0xC8:
		c.y = c.doInc(c.y)
	case 0xE3, 0xE7, 0xEF, 0xF3, 0xF7, 0xFB, 0xFF:
		c.isc(bus, mode, addr)
	case 0x4C, 0x6C:
		c.pc = addr
	case 0x20:
		c.jsr(bus, mode, addr)
	case 0x02, 0x12, 0x22, 0x32, 0x42, 0x52, 0x62, 0x72, 0x92, 0xB2, 0xD2, 0xF2:
		c.kil(bus, mode, addr)
	case 0xBB:
		c.las(bus, mode, addr)
	case 0xA3, 0xA7, 0xAB, 0xAF, 0xB3, 0xB7, 0xBF:
		c.lax(bus, mode, addr)
	case 0xA1, 0xA5, 0xA9, 0xAD, 0xB1, 0xB5, 0xB9, 0xBD:
		c.lda(bus, mode, addr)
	case 0xA2, 0xA6, 0xAE, 0xB6, 0xBE:
		c.ldx(bus, mode, addr)
	case 0xA0, 0xA4, 0xAC, 0xB4, 0xBC:
		c.ldy(bus, mode, addr)
	case 0x46, 0x4A, 0x4E, 0x56, 0x5E:
		c.lsr(bus, mode, addr)
	case 0x01, 0x05, 0x09, 0x0D, 0x11, 0x15, 0x19, 0x1D:
		c.ora(bus, mode, addr)
	case 0x48:
		c.push(bus, c.a)
	case 0x08:
		c.php(bus, mode, addr)
	case 0x68:
		c.pla(bus, mode, addr)
	case 0x28:
		c.plp(bus, mode, addr)
	case 0x23, 0x27, 0x2F, 0x33, 0x37, 0x3B, 0x3F:
		c.rla(bus, mode, addr)
	case 0x26, 0x2A, 0x2E, 0x36, 0x3E:
		c.rol(bus, mode, addr)
	case 0x66, 0x6A, 0x6E, 0x76, 0x7E:
		c.ror(bus, mode, addr)
	case 0x63, 0x67, 0x6F, 0x73, 0x77, 0x7B, 0x7F:
		c.rra(bus, mode, addr)
	case 0x40:
		c.rti(bus, mode, addr)
	case 0x60:
		c.rts(bus, mode, addr)
	case 0x83, 0x87, 0x8F, 0x97:
		c.write(bus, addr, c.a&c.x)
	case 0xE1, 0xE5, 0xE9, 0xEB, 0xED, 0xF1, 0xF5, 0xF9, 0xFD:
		c.sbc(bus, mode, addr)
	case 0x38:
		c.p |= carry
	case 0xF8:
		c.p |= decimal
	case 0x78:
		c.p |= interruptDisable
	case 0x9E:
		c.shx(bus, mode, addr)
	case 0x9C:
		c.shy(bus, mode, addr)
	case 0x03, 0x07, 0x0F, 0x13, 0x17, 0x1B, 0x1F:
		c.slo(bus, mode, addr)
	case 0x43, 0x47, 0x4F, 0x53, 0x57, 0x5B, 0x5F:
		c.sre(bus, mode, addr)
	case 0x81, 0x85, 0x8D, 0x91, 0x95, 0x99, 0x9D:
		c.write(bus, addr, c.a)
	case 0x86, 0x8E, 0x96:
		c.write(bus, addr, c.x)
	case 0x84, 0x8C, 0x94:
		c.write(bus, addr, c.y)
	case 0x9B:
		c.tas(bus, mode, addr)
	case 0xAA:
		c.x = c.setZN(c.a)
	case 0xA8:
		c.y = c.setZN(c.a)
	case 0xBA:
		c.x = c.setZN(c.s)
	case 0x8A:
		c.a = c.setZN(c.x)
	case 0x9A:
		c.s = c.x
	case 0x98:
		c.a = c.setZN(c.y)
	case 0x8B:
		c.xaa(bus, mode, addr)
	}
}

// clock burns one CPU cycle: three PPU dots and one APU cycle, in that
// order, so a register write becomes visible to the dots that follow it and
// never to earlier ones.
func (c *cpu) clock() {
	c.cycles++
	c.ppu.tick(c)
	c.ppu.tick(c)
	c.ppu.tick(c)
	c.apu.clock(c.cycles)
}

func (c *cpu) read(bus *sysBus, address uint16) byte {
	c.clock()
	return bus.read(address)
}

func (c *cpu) readAddress(bus *sysBus, address uint16) uint16 {
	c.clock()
	lo := bus.read(address)
	c.clock()
	hi := bus.read(address + 1)

	return uint16(hi)<<8 | uint16(lo)
}

func (c *cpu) write(bus *sysBus, address uint16, value byte) {
	if address == oamDmaAddr {
		c.dmaTransfer(bus, value)
		return
	}

	c.clock()
	bus.write(address, value)
}

// dmaTransfer performs the 0x4014 OAM transfer: one halt cycle, one extra
// alignment cycle when the write lands on an odd CPU cycle, then 256
// read/write pairs, for 513 or 514 cycles total.
func (c *cpu) dmaTransfer(bus *sysBus, page byte) {
	odd := c.cycles&1 == 1
	c.clock()
	if odd {
		c.clock()
	}

	addr := uint16(page) << 8
	for i := 0; i < 256; i++ {
		c.clock()
		v := bus.read(addr)

		c.clock()
		bus.write(0x2004, v)

		addr++
	}
}

// resolveAddress consumes the operand bytes and performs the dummy reads the
// hardware issues, in order, so memory-mapped side effects fire exactly as
// they would on the chip. Read instructions only pay the indexed-crossing
// cycle when the page actually crosses; write and read-modify-write forms
// always pay it.
func (c *cpu) resolveAddress(bus *sysBus, inst instruction) (intermediateAddr, address uint16) {
	switch inst.mode {
	case accumulator, implied:
		_ = c.read(bus, c.pc)
		return 0, 0

	case immediate:
		pc := c.pc
		c.pc++
		return 0, pc

	case absolute:
		lo := c.read(bus, c.pc)
		c.pc++

		hi := c.read(bus, c.pc)
		c.pc++

		return 0, uint16(hi)<<8 | uint16(lo)

	case zeroPage:
		addr := c.read(bus, c.pc)
		c.pc++

		return 0, uint16(addr)

	case zeroPageIndexedX:
		addr := c.read(bus, c.pc)
		c.pc++

		_ = c.read(bus, uint16(addr))

		return 0, uint16(addr + c.x) // wraps within the zero page

	case zeroPageIndexedY:
		addr := c.read(bus, c.pc)
		c.pc++

		_ = c.read(bus, uint16(addr))

		return 0, uint16(addr + c.y)

	case indexedX:
		lo := c.read(bus, c.pc)
		c.pc++

		hi := c.read(bus, c.pc)
		c.pc++

		if inst.kind == read {
			if lo+c.x < lo {
				_ = c.read(bus, uint16(hi)<<8|uint16(lo+c.x))
			}
		} else {
			_ = c.read(bus, uint16(hi)<<8|uint16(lo+c.x))
		}

		return 0, uint16(hi)<<8 | uint16(lo) + uint16(c.x)

	case indexedY:
		lo := c.read(bus, c.pc)
		c.pc++

		hi := c.read(bus, c.pc)
		c.pc++

		if inst.kind == read {
			if lo+c.y < lo {
				_ = c.read(bus, uint16(hi)<<8|uint16(lo+c.y))
			}
		} else {
			_ = c.read(bus, uint16(hi)<<8|uint16(lo+c.y))
		}

		return 0, uint16(hi)<<8 | uint16(lo) + uint16(c.y)

	case relative:
		operand := c.read(bus, c.pc)
		c.pc++

		return 0, c.pc + uint16(int8(operand))

	case preIndexedIndirect:
		pointer := c.read(bus, c.pc)
		c.pc++

		_ = c.read(bus, uint16(pointer))

		pointer += c.x // wraps within the zero page
		lo := c.read(bus, uint16(pointer))
		hi := c.read(bus, uint16(pointer+1))

		return uint16(pointer), uint16(hi)<<8 | uint16(lo)

	case postIndexedIndirect:
		pointer := c.read(bus, c.pc)
		c.pc++

		lo := c.read(bus, uint16(pointer))
		hi := c.read(bus, uint16(pointer+1))

		if inst.kind == read {
			if lo+c.y < lo {
				_ = c.read(bus, uint16(hi)<<8|uint16(lo+c.y))
			}
		} else {
			_ = c.read(bus, uint16(hi)<<8|uint16(lo+c.y))
		}

		addr := uint16(hi)<<8 | uint16(lo)
		return addr, addr + uint16(c.y)

	case indirect:
		pointerlo := c.read(bus, c.pc)
		c.pc++

		pointerhi := c.read(bus, c.pc)
		c.pc++

		// JMP ($xxFF) wraps the high-byte fetch to $xx00 instead of
		// crossing the page.
		pointer := uint16(pointerhi)<<8 | uint16(pointerlo)
		lo := c.read(bus, pointer)
		hi := c.read(bus, pointer&0xFF00|uint16(byte(pointer)+1))

		return pointer, uint16(hi)<<8 | uint16(lo)
	}

	return 0, 0
}

// serviceInterrupts runs at every instruction boundary. NMI wins over IRQ;
// IRQ is level-sensitive against the OR of the APU frame flag, DMC flag,
// and mapper line, gated on the interrupt-disable state sampled before the
// previous instruction (the delayed CLI/SEI/PLP rule).
func (c *cpu) serviceInterrupts(bus *sysBus) {
	switch {
	case c.nmiPending:
		c.nmiPending = false
		c.vector(bus, nmiAddr)
	case c.irqLevel() && !c.polledI:
		fromMapper := c.mapperIRQ
		c.vector(bus, irqBrkAddr)
		if fromMapper {
			c.mapperIRQ = false
			c.mapperIRQAck = true
		}
	}
}

// vector runs the 7-cycle interrupt sequence. If an NMI arrives while an
// IRQ sequence is already pushing state, the NMI vector is fetched instead
// (interrupt hijacking).
func (c *cpu) vector(bus *sysBus, addr uint16) {
	c.clock()
	c.clock()
	c.pushAddress(bus, c.pc)
	c.push(bus, byte(c.p|unused))

	if addr == irqBrkAddr && c.nmiPending {
		c.nmiPending = false
		addr = nmiAddr
	}

	c.pc = c.readAddress(bus, addr)
	c.p |= interruptDisable
	c.polledI = true
}

func (c *cpu) push(bus *sysBus, v byte) {
	c.write(bus, stackHi|uint16(c.s), v)
	c.s--
}

func (c *cpu) pull(bus *sysBus) byte {
	c.s++
	return c.read(bus, stackHi|uint16(c.s))
}

func (c *cpu) pushAddress(bus *sysBus, value uint16) {
	c.push(bus, byte(value>>8))
	c.push(bus, byte(value))
}

func (c *cpu) pullAddress(bus *sysBus) uint16 {
	lo := uint16(c.pull(bus))
	hi := uint16(c.pull(bus))

	return hi<<8 | lo
}

// setZN updates the zero and negative flags from v and returns it, so
// register transfers read as single assignments at the call site.
func (c *cpu) setZN(v byte) byte {
	c.updateZero(v)
	c.updateNegative(v)
	return v
}

func (c *cpu) updateZero(v byte) {
	if v == 0 {
		c.p |= zero
	} else {
		c.p &^= zero
	}
}

func (c *cpu) updateNegative(v byte) {
	if v&0x80 > 0 {
		c.p |= negative
	} else {
		c.p &^= negative
	}
}

func (c *cpu) setCarry(on bool) {
	if on {
		c.p |= carry
	} else {
		c.p &^= carry
	}
}

func (c *cpu) compare(a, b byte) {
	c.setCarry(a >= b)
	c.updateZero(a - b)
	c.updateNegative(a - b)
}

func (c *cpu) doDec(v byte) byte { return c.setZN(v - 1) }
func (c *cpu) doInc(v byte) byte { return c.setZN(v + 1) }

// doAdd implements ADC (and, with the operand complemented, SBC). The
// decimal flag is ignored entirely.
func (c *cpu) doAdd(v byte) {
	a := uint16(c.a)
	b := uint16(v)
	crry := uint16(c.p & carry)

	result := a + b + crry

	c.setCarry(result&0x0100 > 0)

	if a&0x80 == b&0x80 && a&0x80 != result&0x80 {
		c.p |= overflow
	} else {
		c.p &^= overflow
	}

	c.a = c.setZN(byte(result))
}

func (c *cpu) doAsl(v byte) byte {
	c.setCarry(v&0x80 > 0)
	return c.setZN(v << 1)
}

func (c *cpu) doRol(v byte) byte {
	carryIn := byte(c.p & carry)
	c.setCarry(v&0x80 > 0)
	return c.setZN(v<<1 | carryIn)
}

func (c *cpu) doLsr(v byte) byte {
	c.setCarry(v&1 > 0)
	return c.setZN(v >> 1)
}

func (c *cpu) doRor(v byte) byte {
	carryIn := byte(c.p&carry) << 7
	c.setCarry(v&1 > 0)
	return c.setZN(v>>1 | carryIn)
}

// branch applies a taken branch: one cycle, plus one more when the target
// is on a different page than the instruction that follows.
func (c *cpu) branch(addr uint16) {
	if c.pc&0xFF00 != addr&0xFF00 {
		c.clock()
	}

	c.clock()
	c.pc = addr
}

// rmw performs the read-modify-write sequence: the original value is
// written back once before the modified value, and both writes are visible
// to memory-mapped registers.
func (c *cpu) rmw(bus *sysBus, mode addressingMode, addr uint16, op func(byte) byte) byte {
	if mode == accumulator {
		c.a = op(c.a)
		return c.a
	}

	v := c.read(bus, addr)
	c.write(bus, addr, v)

	v = op(v)
	c.write(bus, addr, v)
	return v
}

func (c *cpu) nop(bus *sysBus, mode addressingMode, addr uint16) {
	if mode != implied {
		c.read(bus, addr)
	}
}

func (c *cpu) lda(bus *sysBus, mode addressingMode, addr uint16) {
	c.a = c.setZN(c.read(bus, addr))
}

func (c *cpu) ldx(bus *sysBus, mode addressingMode, addr uint16) {
	c.x = c.setZN(c.read(bus, addr))
}

func (c *cpu) ldy(bus *sysBus, mode addressingMode, addr uint16) {
	c.y = c.setZN(c.read(bus, addr))
}

func (c *cpu) adc(bus *sysBus, mode addressingMode, addr uint16) {
	c.doAdd(c.read(bus, addr))
}

func (c *cpu) sbc(bus *sysBus, mode addressingMode, addr uint16) {
	c.doAdd(c.read(bus, addr) ^ 0xFF)
}

func (c *cpu) and(bus *sysBus, mode addressingMode, addr uint16) {
	c.a = c.setZN(c.a & c.read(bus, addr))
}

func (c *cpu) eor(bus *sysBus, mode addressingMode, addr uint16) {
	c.a = c.setZN(c.a ^ c.read(bus, addr))
}

func (c *cpu) ora(bus *sysBus, mode addressingMode, addr uint16) {
	c.a = c.setZN(c.a | c.read(bus, addr))
}

// bit sets Z from A&M but copies bits 7 and 6 of M directly into N and V.
func (c *cpu) bit(bus *sysBus, mode addressingMode, addr uint16) {
	v := c.read(bus, addr)

	c.updateNegative(v)
	c.updateZero(c.a & v)

	if v&0x40 > 0 {
		c.p |= overflow
	} else {
		c.p &^= overflow
	}
}

func (c *cpu) cmp(bus *sysBus, mode addressingMode, addr uint16) {
	c.compare(c.a, c.read(bus, addr))
}

func (c *cpu) cpx(bus *sysBus, mode addressingMode, addr uint16) {
	c.compare(c.x, c.read(bus, addr))
}

func (c *cpu) cpy(bus *sysBus, mode addressingMode, addr uint16) {
	c.compare(c.y, c.read(bus, addr))
}

func (c *cpu) asl(bus *sysBus, mode addressingMode, addr uint16) {
	c.rmw(bus, mode, addr, c.doAsl)
}

func (c *cpu) lsr(bus *sysBus, mode addressingMode, addr uint16) {
	c.rmw(bus, mode, addr, c.doLsr)
}

func (c *cpu) rol(bus *sysBus, mode addressingMode, addr uint16) {
	c.rmw(bus, mode, addr, c.doRol)
}

func (c *cpu) ror(bus *sysBus, mode addressingMode, addr uint16) {
	c.rmw(bus, mode, addr, c.doRor)
}

func (c *cpu) inc(bus *sysBus, mode addressingMode, addr uint16) {
	c.rmw(bus, mode, addr, c.doInc)
}

func (c *cpu) dec(bus *sysBus, mode addressingMode, addr uint16) {
	c.rmw(bus, mode, addr, c.doDec)
}

func (c *cpu) bcc(bus *sysBus, mode addressingMode, addr uint16) {
	if c.p&carry == 0 {
		c.branch(addr)
	}
}

func (c *cpu) bcs(bus *sysBus, mode addressingMode, addr uint16) {
	if c.p&carry != 0 {
		c.branch(addr)
	}
}

func (c *cpu) beq(bus *sysBus, mode addressingMode, addr uint16) {
	if c.p&zero != 0 {
		c.branch(addr)
	}
}

func (c *cpu) bne(bus *sysBus, mode addressingMode, addr uint16) {
	if c.p&zero == 0 {
		c.branch(addr)
	}
}

func (c *cpu) bmi(bus *sysBus, mode addressingMode, addr uint16) {
	if c.p&negative != 0 {
		c.branch(addr)
	}
}

func (c *cpu) bpl(bus *sysBus, mode addressingMode, addr uint16) {
	if c.p&negative == 0 {
		c.branch(addr)
	}
}

func (c *cpu) bvc(bus *sysBus, mode addressingMode, addr uint16) {
	if c.p&overflow == 0 {
		c.branch(addr)
	}
}

func (c *cpu) bvs(bus *sysBus, mode addressingMode, addr uint16) {
	if c.p&overflow != 0 {
		c.branch(addr)
	}
}

// brkOp pushes PC+1 and the flags with the break bit set, then vectors
// through $FFFE. A pending NMI hijacks the vector fetch, exactly as it
// does for an in-flight IRQ sequence.
func (c *cpu) brkOp(bus *sysBus, mode addressingMode, addr uint16) {
	c.pushAddress(bus, c.pc+1)
	c.push(bus, byte(c.p|unused|brk))
	c.p |= interruptDisable
	c.polledI = true

	vec := irqBrkAddr
	if c.nmiPending {
		c.nmiPending = false
		vec = nmiAddr
	}
	c.pc = c.readAddress(bus, vec)
}

func (c *cpu) jsr(bus *sysBus, mode addressingMode, addr uint16) {
	c.clock()

	c.pushAddress(bus, c.pc-1)
	c.pc = addr
}

func (c *cpu) rti(bus *sysBus, mode addressingMode, addr uint16) {
	c.clock()

	c.p = status(c.pull(bus))&^brk | unused
	// Unlike CLI, RTI's change to I is visible to the very next poll.
	c.polledI = c.p&interruptDisable != 0

	c.pc = c.pullAddress(bus)
}

func (c *cpu) rts(bus *sysBus, mode addressingMode, addr uint16) {
	c.clock()

	pclo := uint16(c.pull(bus))
	pchi := uint16(c.pull(bus))

	c.clock()
	c.pc = pchi<<8 | pclo + 1
}

func (c *cpu) php(bus *sysBus, mode addressingMode, addr uint16) {
	c.push(bus, byte(c.p|brk|unused))
}

func (c *cpu) pla(bus *sysBus, mode addressingMode, addr uint16) {
	c.clock()
	c.a = c.setZN(c.pull(bus))
}

func (c *cpu) plp(bus *sysBus, mode addressingMode, addr uint16) {
	c.clock()
	c.p = status(c.pull(bus))&^brk | unused
}

// kil latches the halted flag; the core refuses to run anything further
// until reset. The real chip wedges its instruction decoder the same way.
func (c *cpu) kil(bus *sysBus, mode addressingMode, addr uint16) {
	c.halted = true
}

// The remaining opcodes are the undocumented ones. Their behaviors follow
// the commonly-emulated forms exercised by the blargg and nestest suites.

// alr: AND #imm then LSR A.
func (c *cpu) alr(bus *sysBus, mode addressingMode, addr uint16) {
	c.and(bus, mode, addr)
	c.a = c.doLsr(c.a)
}

// anc: AND #imm, then copy N into C.
func (c *cpu) anc(bus *sysBus, mode addressingMode, addr uint16) {
	c.and(bus, mode, addr)
	c.setCarry(c.p&negative != 0)
}

// arr: AND #imm then ROR A, with C taken from bit 6 of the result and V
// from bit 6 xor bit 5.
func (c *cpu) arr(bus *sysBus, mode addressingMode, addr uint16) {
	c.and(bus, mode, addr)
	c.a = c.doRor(c.a)

	c.setCarry((c.a>>6)&1 > 0)

	if ((c.a>>6)&1)^((c.a>>5)&1) > 0 {
		c.p |= overflow
	} else {
		c.p &^= overflow
	}
}

// axs: X = (A & X) - #imm, with C set as for CMP. Also known as SBX.
func (c *cpu) axs(bus *sysBus, mode addressingMode, addr uint16) {
	v := c.read(bus, addr)
	ax := c.a & c.x
	c.setCarry(ax >= v)
	c.x = c.setZN(ax - v)
}

// lax: LDA then TAX. The immediate form (0xAB) is unstable on hardware;
// the commonly-emulated behavior of loading both registers is used.
func (c *cpu) lax(bus *sysBus, mode addressingMode, addr uint16) {
	v := c.read(bus, addr)
	c.a = v
	c.x = c.setZN(v)
}

// las: A, X and S all take the value of memory AND S.
func (c *cpu) las(bus *sysBus, mode addressingMode, addr uint16) {
	v := c.read(bus, addr) & c.s
	c.a = v
	c.x = v
	c.s = v
	c.setZN(v)
}

// dcp: DEC then CMP.
func (c *cpu) dcp(bus *sysBus, mode addressingMode, addr uint16) {
	v := c.rmw(bus, mode, addr, c.doDec)
	c.compare(c.a, v)
}

// isc: INC then SBC.
func (c *cpu) isc(bus *sysBus, mode addressingMode, addr uint16) {
	v := c.rmw(bus, mode, addr, c.doInc)
	c.doAdd(v ^ 0xFF)
}

// rla: ROL then AND.
func (c *cpu) rla(bus *sysBus, mode addressingMode, addr uint16) {
	v := c.rmw(bus, mode, addr, c.doRol)
	c.a = c.setZN(c.a & v)
}

// rra: ROR then ADC.
func (c *cpu) rra(bus *sysBus, mode addressingMode, addr uint16) {
	v := c.rmw(bus, mode, addr, c.doRor)
	c.doAdd(v)
}

// slo: ASL then ORA.
func (c *cpu) slo(bus *sysBus, mode addressingMode, addr uint16) {
	v := c.rmw(bus, mode, addr, c.doAsl)
	c.a = c.setZN(c.a | v)
}

// sre: LSR then EOR.
func (c *cpu) sre(bus *sysBus, mode addressingMode, addr uint16) {
	v := c.rmw(bus, mode, addr, c.doLsr)
	c.a = c.setZN(c.a ^ v)
}

// xaa: TXA then AND #imm. Highly unstable on hardware; this is the
// conventional deterministic rendition.
func (c *cpu) xaa(bus *sysBus, mode addressingMode, addr uint16) {
	c.a = c.x
	c.and(bus, mode, addr)
}

// ahx/tas/shx/shy all store a register ANDed with the high byte of the
// target address plus one, the usual model of the chip's partially-driven
// address bus.
func (c *cpu) ahx(bus *sysBus, mode addressingMode, addr uint16) {
	c.write(bus, addr, c.a&c.x&(byte(addr>>8)+1))
}

func (c *cpu) tas(bus *sysBus, mode addressingMode, addr uint16) {
	c.s = c.a & c.x
	c.write(bus, addr, c.s&(byte(addr>>8)+1))
}

func (c *cpu) shx(bus *sysBus, mode addressingMode, addr uint16) {
	c.write(bus, addr, c.x&(byte(addr>>8)+1))
}

func (c *cpu) shy(bus *sysBus, mode addressingMode, addr uint16) {
	c.write(bus, addr, c.y&(byte(addr>>8)+1))
}
