package nes

import "bytes"

// uxrom implements iNES mapper 2. A write anywhere in 0x8000-0xFFFF selects
// the 16KiB PRG bank visible at 0x8000-0xBFFF; 0xC000-0xFFFF is fixed to
// the last bank. CHR is always RAM (8KiB).
type uxrom struct {
	prg     []byte
	chr     [8192]byte
	prgRAM  []byte
	battery bool
	mirror  Mirroring
	bank    byte
}

func newUxROM(rom *ROM) *uxrom {
	return &uxrom{
		prg:     rom.PRG,
		prgRAM:  make([]byte, rom.PRGRAMSize),
		battery: rom.Battery,
		mirror:  rom.Mirroring,
	}
}

func (m *uxrom) banks() int { return len(m.prg) / 0x4000 }

func (m *uxrom) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		return m.prgRAM[int(addr-0x6000)%len(m.prgRAM)]
	case addr >= 0x8000 && addr < 0xC000:
		i := int(m.bank)*0x4000 + int(addr-0x8000)
		return m.prg[i%len(m.prg)]
	case addr >= 0xC000:
		i := (m.banks()-1)*0x4000 + int(addr-0xC000)
		return m.prg[i%len(m.prg)]
	}
	return 0
}

func (m *uxrom) CPUWrite(addr uint16, v byte) {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		m.prgRAM[int(addr-0x6000)%len(m.prgRAM)] = v
	case addr >= 0x8000:
		m.bank = v
	}
}

func (m *uxrom) PPURead(addr uint16) byte     { return m.chr[addr%8192] }
func (m *uxrom) PPUWrite(addr uint16, v byte) { m.chr[addr%8192] = v }

func (m *uxrom) Mirroring() Mirroring { return m.mirror }
func (m *uxrom) IRQLine() bool        { return false }
func (m *uxrom) AckIRQ()              {}
func (m *uxrom) TickCPU(cycles int)   {}
func (m *uxrom) OnPPUA12(level bool)  {}

func (m *uxrom) BatteryRAM() []byte {
	if !m.battery {
		return nil
	}
	return m.prgRAM
}

func (m *uxrom) LoadBatteryRAM(data []byte) { copy(m.prgRAM, data) }

func (m *uxrom) Snapshot(w *bytes.Buffer) {
	w.WriteByte(m.bank)
	w.Write(m.prgRAM)
	w.Write(m.chr[:])
}

func (m *uxrom) Restore(r *bytes.Reader) error {
	var err error
	if m.bank, err = r.ReadByte(); err != nil {
		return err
	}
	if _, err := r.Read(m.prgRAM); err != nil {
		return err
	}
	if _, err := r.Read(m.chr[:]); err != nil {
		return err
	}
	return nil
}
