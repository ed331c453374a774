package nes

import "bytes"

// nrom implements iNES mapper 0: 16 or 32 KiB of fixed PRG-ROM (the 16KiB
// case is mirrored into both halves of 0x8000-0xFFFF) and 8KiB of CHR-ROM
// or CHR-RAM, with no bank switching and no IRQ.
type nrom struct {
	prg      []byte
	chr      []byte
	chrIsRAM bool
	prgRAM   []byte
	battery  bool
	mirror   Mirroring
}

func newNROM(rom *ROM) *nrom {
	return &nrom{
		prg:      rom.PRG,
		chr:      rom.CHR,
		chrIsRAM: rom.ChrIsRAM,
		prgRAM:   make([]byte, rom.PRGRAMSize),
		battery:  rom.Battery,
		mirror:   rom.Mirroring,
	}
}

func (m *nrom) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		return m.prgRAM[int(addr-0x6000)%len(m.prgRAM)]
	case addr >= 0x8000:
		return m.prg[int(addr-0x8000)%len(m.prg)]
	default:
		return 0
	}
}

// CPUWrite discards writes to PRG-ROM space; NROM has no registers. PRG-RAM
// writes (when a battery or work RAM is fitted) are retained.
func (m *nrom) CPUWrite(addr uint16, v byte) {
	if addr >= 0x6000 && addr < 0x8000 {
		m.prgRAM[int(addr-0x6000)%len(m.prgRAM)] = v
	}
}

func (m *nrom) PPURead(addr uint16) byte {
	return m.chr[addr%uint16(len(m.chr))]
}

func (m *nrom) PPUWrite(addr uint16, v byte) {
	if m.chrIsRAM {
		m.chr[addr%uint16(len(m.chr))] = v
	}
}

func (m *nrom) Mirroring() Mirroring { return m.mirror }
func (m *nrom) IRQLine() bool        { return false }
func (m *nrom) AckIRQ()              {}
func (m *nrom) TickCPU(cycles int)   {}
func (m *nrom) OnPPUA12(level bool)  {}

func (m *nrom) BatteryRAM() []byte {
	if !m.battery {
		return nil
	}
	return m.prgRAM
}

func (m *nrom) LoadBatteryRAM(data []byte) {
	copy(m.prgRAM, data)
}

func (m *nrom) Snapshot(w *bytes.Buffer) {
	w.Write(m.prgRAM)
	if m.chrIsRAM {
		w.Write(m.chr)
	}
}

func (m *nrom) Restore(r *bytes.Reader) error {
	if _, err := r.Read(m.prgRAM); err != nil {
		return err
	}
	if m.chrIsRAM {
		if _, err := r.Read(m.chr); err != nil {
			return err
		}
	}
	return nil
}
