package nes

import (
	"bytes"
	"encoding/binary"
)

// mmc3A12FilterCycles is the minimum number of PPU cycles the A12 address
// line must stay low before a rising edge is allowed to clock the IRQ
// counter. Published references range 8-16; this build uses the low end of
// that range.
const mmc3A12FilterCycles = 8

// mmc3 implements iNES mapper 4. Eight bank registers (R0-R7) selected via
// 0x8000 and loaded via 0x8001 control 2x8KiB switchable + 1x8KiB fixed PRG
// banks and 2x2KiB + 4x1KiB (or the mirrored arrangement) CHR banks. A
// separate scanline counter, clocked by filtered rising edges of PPU
// address line 12, raises IRQs for split-screen effects.
type mmc3 struct {
	prg      []byte
	chr      []byte
	chrIsRAM bool
	prgRAM   []byte
	battery  bool

	bankSelect byte
	prgMode    byte // bit 6 of bank-select write
	chrMode    byte // bit 7 of bank-select write
	regs       [8]byte

	mirror Mirroring

	prgRAMEnabled        bool
	prgRAMWriteProtected bool

	irqLatch   byte
	irqCounter byte
	irqReload  bool
	irqEnabled bool
	irqPending bool

	a12Low       bool
	a12LowCycles int
}

func newMMC3(rom *ROM) *mmc3 {
	return &mmc3{
		prg:           rom.PRG,
		chr:           rom.CHR,
		chrIsRAM:      rom.ChrIsRAM,
		prgRAM:        make([]byte, rom.PRGRAMSize),
		battery:       rom.Battery,
		mirror:        rom.Mirroring,
		prgRAMEnabled: true,
		a12Low:        true,
		a12LowCycles:  mmc3A12FilterCycles,
	}
}

func (m *mmc3) prgBanks8k() int { return len(m.prg) / 0x2000 }

func (m *mmc3) prgBankOffset(bank byte) int {
	n := m.prgBanks8k()
	b := int(bank) % n
	return b * 0x2000
}

func (m *mmc3) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		if !m.prgRAMEnabled {
			return 0
		}
		return m.prgRAM[int(addr-0x6000)%len(m.prgRAM)]

	case addr >= 0x8000 && addr < 0xA000:
		var bank byte
		if m.prgMode == 0 {
			bank = m.regs[6]
		} else {
			bank = byte(m.prgBanks8k() - 2)
		}
		return m.prg[m.prgBankOffset(bank)+int(addr-0x8000)]

	case addr >= 0xA000 && addr < 0xC000:
		return m.prg[m.prgBankOffset(m.regs[7])+int(addr-0xA000)]

	case addr >= 0xC000 && addr < 0xE000:
		var bank byte
		if m.prgMode == 0 {
			bank = byte(m.prgBanks8k() - 2)
		} else {
			bank = m.regs[6]
		}
		return m.prg[m.prgBankOffset(bank)+int(addr-0xC000)]

	case addr >= 0xE000:
		bank := byte(m.prgBanks8k() - 1)
		return m.prg[m.prgBankOffset(bank)+int(addr-0xE000)]
	}
	return 0
}

func (m *mmc3) CPUWrite(addr uint16, v byte) {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		if m.prgRAMEnabled && !m.prgRAMWriteProtected {
			m.prgRAM[int(addr-0x6000)%len(m.prgRAM)] = v
		}

	case addr >= 0x8000 && addr < 0xA000:
		if addr&1 == 0 {
			m.bankSelect = v & 0x07
			m.prgMode = (v >> 6) & 1
			m.chrMode = (v >> 7) & 1
		} else {
			m.regs[m.bankSelect] = v
		}

	case addr >= 0xA000 && addr < 0xC000:
		if addr&1 == 0 {
			if v&1 == 0 {
				m.mirror = MirrorVertical
			} else {
				m.mirror = MirrorHorizontal
			}
		} else {
			m.prgRAMWriteProtected = v&0x40 != 0
			m.prgRAMEnabled = v&0x80 != 0
		}

	case addr >= 0xC000 && addr < 0xE000:
		if addr&1 == 0 {
			m.irqLatch = v
		} else {
			m.irqCounter = 0
			m.irqReload = true
		}

	case addr >= 0xE000:
		if addr&1 == 0 {
			m.irqEnabled = false
			m.irqPending = false
		} else {
			m.irqEnabled = true
		}
	}
}

func (m *mmc3) chrOffset(addr uint16) int {
	if m.chrMode == 0 {
		switch {
		case addr < 0x0800:
			return int(m.regs[0]&0xFE)*0x400 + int(addr)
		case addr < 0x1000:
			return int(m.regs[1]&0xFE)*0x400 + int(addr-0x0800)
		case addr < 0x1400:
			return int(m.regs[2])*0x400 + int(addr-0x1000)
		case addr < 0x1800:
			return int(m.regs[3])*0x400 + int(addr-0x1400)
		case addr < 0x1C00:
			return int(m.regs[4])*0x400 + int(addr-0x1800)
		default:
			return int(m.regs[5])*0x400 + int(addr-0x1C00)
		}
	}
	switch {
	case addr < 0x0400:
		return int(m.regs[2])*0x400 + int(addr)
	case addr < 0x0800:
		return int(m.regs[3])*0x400 + int(addr-0x0400)
	case addr < 0x0C00:
		return int(m.regs[4])*0x400 + int(addr-0x0800)
	case addr < 0x1000:
		return int(m.regs[5])*0x400 + int(addr-0x0C00)
	case addr < 0x1800:
		return int(m.regs[0]&0xFE)*0x400 + int(addr-0x1000)
	default:
		return int(m.regs[1]&0xFE)*0x400 + int(addr-0x1800)
	}
}

func (m *mmc3) PPURead(addr uint16) byte {
	if len(m.chr) == 0 {
		return 0
	}
	i := m.chrOffset(addr) % len(m.chr)
	return m.chr[i]
}

func (m *mmc3) PPUWrite(addr uint16, v byte) {
	if !m.chrIsRAM || len(m.chr) == 0 {
		return
	}
	i := m.chrOffset(addr) % len(m.chr)
	m.chr[i] = v
}

// OnPPUA12 receives the sampled level of PPU address line 12, once per dot
// from the rendering pipeline plus once per CPU-driven $2007 access. A
// rising edge clocks the scanline counter only after the line has sat low
// for at least mmc3A12FilterCycles dots.
func (m *mmc3) OnPPUA12(level bool) {
	if !level {
		if m.a12Low {
			m.a12LowCycles++
		} else {
			m.a12Low = true
			m.a12LowCycles = 1
		}
		return
	}

	if m.a12Low && m.a12LowCycles >= mmc3A12FilterCycles {
		m.clockScanlineCounter()
	}
	m.a12Low = false
}

func (m *mmc3) clockScanlineCounter() {
	if m.irqCounter == 0 || m.irqReload {
		m.irqCounter = m.irqLatch
		m.irqReload = false
	} else {
		m.irqCounter--
	}

	if m.irqCounter == 0 && m.irqEnabled {
		m.irqPending = true
	}
}

func (m *mmc3) Mirroring() Mirroring { return m.mirror }
func (m *mmc3) IRQLine() bool        { return m.irqPending }
func (m *mmc3) AckIRQ()              { m.irqPending = false }
func (m *mmc3) TickCPU(cycles int)   {}

func (m *mmc3) BatteryRAM() []byte {
	if !m.battery {
		return nil
	}
	return m.prgRAM
}

func (m *mmc3) LoadBatteryRAM(data []byte) { copy(m.prgRAM, data) }

func (m *mmc3) Snapshot(w *bytes.Buffer) {
	w.Write(m.prgRAM)
	if m.chrIsRAM {
		w.Write(m.chr)
	}
	w.Write([]byte{m.bankSelect, m.prgMode, m.chrMode})
	w.Write(m.regs[:])
	w.WriteByte(byte(m.mirror))
	w.WriteByte(boolByte(m.prgRAMEnabled))
	w.WriteByte(boolByte(m.prgRAMWriteProtected))
	w.Write([]byte{m.irqLatch, m.irqCounter})
	w.WriteByte(boolByte(m.irqReload))
	w.WriteByte(boolByte(m.irqEnabled))
	w.WriteByte(boolByte(m.irqPending))
	w.WriteByte(boolByte(m.a12Low))
	binary.Write(w, binary.LittleEndian, int32(m.a12LowCycles))
}

func (m *mmc3) Restore(r *bytes.Reader) error {
	if _, err := r.Read(m.prgRAM); err != nil {
		return err
	}
	if m.chrIsRAM {
		if _, err := r.Read(m.chr); err != nil {
			return err
		}
	}
	hdr := make([]byte, 3)
	if _, err := r.Read(hdr); err != nil {
		return err
	}
	m.bankSelect, m.prgMode, m.chrMode = hdr[0], hdr[1], hdr[2]
	if _, err := r.Read(m.regs[:]); err != nil {
		return err
	}

	readBool := func() (bool, error) {
		b, err := r.ReadByte()
		return b != 0, err
	}

	mirror, err := r.ReadByte()
	if err != nil {
		return err
	}
	m.mirror = Mirroring(mirror)

	if m.prgRAMEnabled, err = readBool(); err != nil {
		return err
	}
	if m.prgRAMWriteProtected, err = readBool(); err != nil {
		return err
	}
	irq := make([]byte, 2)
	if _, err := r.Read(irq); err != nil {
		return err
	}
	m.irqLatch, m.irqCounter = irq[0], irq[1]
	if m.irqReload, err = readBool(); err != nil {
		return err
	}
	if m.irqEnabled, err = readBool(); err != nil {
		return err
	}
	if m.irqPending, err = readBool(); err != nil {
		return err
	}
	if m.a12Low, err = readBool(); err != nil {
		return err
	}
	var cycles int32
	if err := binary.Read(r, binary.LittleEndian, &cycles); err != nil {
		return err
	}
	m.a12LowCycles = int(cycles)
	return nil
}
