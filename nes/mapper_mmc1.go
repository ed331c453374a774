package nes

import (
	"bytes"
	"encoding/binary"
)

// mmc1 implements iNES mapper 1. A 5-bit serial shift register, loaded one
// bit per qualifying CPU write to 0x8000-0xFFFF, selects one of four
// internal registers (by address bits 13-14) once it has been written five
// times.
//
// Consecutive writes from the same CPU instruction (the dummy + final write
// of an RMW opcode) must be collapsed into a single shift-register write;
// this is tracked with lastWriteCycle rather than an instruction id because
// the mapper only ever observes cycle-tagged writes from the bus.
type mmc1 struct {
	prg      []byte
	chr      []byte
	chrIsRAM bool
	prgRAM   []byte
	battery  bool

	shift      byte
	shiftCount byte

	control  byte // CPPMM: C=chr mode, PP=prg mode, MM=mirroring
	chrBank0 byte
	chrBank1 byte
	prgBank  byte

	prgRAMEnabled bool

	lastWriteCycle uint64
	haveLastWrite  bool

	cycles uint64
}

func newMMC1(rom *ROM) *mmc1 {
	return &mmc1{
		prg:           rom.PRG,
		chr:           rom.CHR,
		chrIsRAM:      rom.ChrIsRAM,
		prgRAM:        make([]byte, rom.PRGRAMSize),
		battery:       rom.Battery,
		control:       0x0C, // power-on: PRG mode 3 (fix last bank at 0xC000)
		prgRAMEnabled: true,
	}
}

func (m *mmc1) TickCPU(cycles int) { m.cycles += uint64(cycles) }

func (m *mmc1) prgBanks() int { return len(m.prg) / 0x4000 }

func (m *mmc1) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		if !m.prgRAMEnabled {
			return 0
		}
		return m.prgRAM[int(addr-0x6000)%len(m.prgRAM)]

	case addr >= 0x8000 && addr < 0xC000:
		mode := (m.control >> 2) & 0x03
		var bank int
		switch mode {
		case 0, 1:
			bank = int(m.prgBank&0x1E) + 0
		case 2:
			bank = 0
		case 3:
			bank = int(m.prgBank & 0x0F)
		}
		return m.prgReadBank(bank, addr-0x8000)

	case addr >= 0xC000:
		mode := (m.control >> 2) & 0x03
		var bank int
		switch mode {
		case 0, 1:
			bank = int(m.prgBank&0x1E) + 1
		case 2:
			bank = int(m.prgBank & 0x0F)
		case 3:
			bank = m.prgBanks() - 1
		}
		return m.prgReadBank(bank, addr-0xC000)
	}
	return 0
}

func (m *mmc1) prgReadBank(bank int, offset uint16) byte {
	i := bank*0x4000 + int(offset)
	if i < 0 || i >= len(m.prg) {
		return 0
	}
	return m.prg[i]
}

func (m *mmc1) CPUWrite(addr uint16, v byte) {
	if addr >= 0x6000 && addr < 0x8000 {
		if m.prgRAMEnabled {
			m.prgRAM[int(addr-0x6000)%len(m.prgRAM)] = v
		}
		return
	}
	if addr < 0x8000 {
		return
	}

	// A real MMC1 only samples one bit per cycle; an RMW opcode's dummy
	// write followed one cycle later by its real write would otherwise
	// shift the register twice for a single logical write. Hardware
	// ignores any write arriving on the cycle immediately after the
	// previous one.
	if m.haveLastWrite && m.cycles-m.lastWriteCycle <= 1 {
		m.lastWriteCycle = m.cycles
		return
	}
	m.lastWriteCycle = m.cycles
	m.haveLastWrite = true

	if v&0x80 != 0 {
		m.shift = 0
		m.shiftCount = 0
		m.control |= 0x0C
		return
	}

	m.shift = (m.shift >> 1) | ((v & 1) << 4)
	m.shiftCount++
	if m.shiftCount < 5 {
		return
	}

	value := m.shift
	m.shift = 0
	m.shiftCount = 0

	switch {
	case addr < 0xA000:
		m.control = value
	case addr < 0xC000:
		m.chrBank0 = value
	case addr < 0xE000:
		m.chrBank1 = value
	default:
		m.prgBank = value & 0x0F
		m.prgRAMEnabled = value&0x10 == 0
	}
}

func (m *mmc1) chrBanked(addr uint16) int {
	eightK := m.control&0x10 == 0
	if eightK {
		bank := int(m.chrBank0 &^ 1)
		return bank*0x1000 + int(addr)
	}
	if addr < 0x1000 {
		return int(m.chrBank0)*0x1000 + int(addr)
	}
	return int(m.chrBank1)*0x1000 + int(addr-0x1000)
}

func (m *mmc1) PPURead(addr uint16) byte {
	if !m.chrIsRAM && len(m.chr) == 0 {
		return 0
	}
	i := m.chrBanked(addr) % len(m.chr)
	if i < 0 {
		i += len(m.chr)
	}
	return m.chr[i]
}

func (m *mmc1) PPUWrite(addr uint16, v byte) {
	if !m.chrIsRAM {
		return
	}
	i := m.chrBanked(addr) % len(m.chr)
	if i < 0 {
		i += len(m.chr)
	}
	m.chr[i] = v
}

func (m *mmc1) Mirroring() Mirroring {
	switch m.control & 0x03 {
	case 0:
		return MirrorSingleLower
	case 1:
		return MirrorSingleUpper
	case 2:
		return MirrorVertical
	default:
		return MirrorHorizontal
	}
}

func (m *mmc1) IRQLine() bool       { return false }
func (m *mmc1) AckIRQ()             {}
func (m *mmc1) OnPPUA12(level bool) {}

func (m *mmc1) BatteryRAM() []byte {
	if !m.battery {
		return nil
	}
	return m.prgRAM
}

func (m *mmc1) LoadBatteryRAM(data []byte) {
	copy(m.prgRAM, data)
}

func (m *mmc1) Snapshot(w *bytes.Buffer) {
	w.Write(m.prgRAM)
	if m.chrIsRAM {
		w.Write(m.chr)
	}
	w.Write([]byte{m.shift, m.shiftCount, m.control, m.chrBank0, m.chrBank1, m.prgBank})
	w.WriteByte(boolByte(m.prgRAMEnabled))
	w.WriteByte(boolByte(m.haveLastWrite))
	binary.Write(w, binary.LittleEndian, m.lastWriteCycle)
	binary.Write(w, binary.LittleEndian, m.cycles)
}

func (m *mmc1) Restore(r *bytes.Reader) error {
	if _, err := r.Read(m.prgRAM); err != nil {
		return err
	}
	if m.chrIsRAM {
		if _, err := r.Read(m.chr); err != nil {
			return err
		}
	}
	regs := make([]byte, 6)
	if _, err := r.Read(regs); err != nil {
		return err
	}
	m.shift, m.shiftCount, m.control, m.chrBank0, m.chrBank1, m.prgBank = regs[0], regs[1], regs[2], regs[3], regs[4], regs[5]

	var err error
	var b byte
	if b, err = r.ReadByte(); err != nil {
		return err
	}
	m.prgRAMEnabled = b != 0
	if b, err = r.ReadByte(); err != nil {
		return err
	}
	m.haveLastWrite = b != 0
	if err := binary.Read(r, binary.LittleEndian, &m.lastWriteCycle); err != nil {
		return err
	}
	return binary.Read(r, binary.LittleEndian, &m.cycles)
}
