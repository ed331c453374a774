package nes

import "bytes"

// cnrom implements iNES mapper 3. PRG-ROM is fixed (16 or 32KiB, mirrored
// the same way as NROM); a write anywhere in 0x8000-0xFFFF selects the
// visible 8KiB CHR-ROM bank.
type cnrom struct {
	prg     []byte
	chr     []byte
	prgRAM  []byte
	battery bool
	mirror  Mirroring
	bank    byte
}

func newCNROM(rom *ROM) *cnrom {
	return &cnrom{
		prg:     rom.PRG,
		chr:     rom.CHR,
		prgRAM:  make([]byte, rom.PRGRAMSize),
		battery: rom.Battery,
		mirror:  rom.Mirroring,
	}
}

func (m *cnrom) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		return m.prgRAM[int(addr-0x6000)%len(m.prgRAM)]
	case addr >= 0x8000:
		return m.prg[int(addr-0x8000)%len(m.prg)]
	}
	return 0
}

func (m *cnrom) CPUWrite(addr uint16, v byte) {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		m.prgRAM[int(addr-0x6000)%len(m.prgRAM)] = v
	case addr >= 0x8000:
		// Bus-conflict boards AND v with the ROM byte at addr; taking the
		// write at face value matches every licensed CNROM title.
		m.bank = v & 0x03
	}
}

func (m *cnrom) chrBanks() int { return len(m.chr) / 8192 }

func (m *cnrom) PPURead(addr uint16) byte {
	bank := int(m.bank) % m.chrBanks()
	return m.chr[bank*8192+int(addr)]
}

// PPUWrite is a no-op: CNROM cartridges ship CHR-ROM, never CHR-RAM.
func (m *cnrom) PPUWrite(addr uint16, v byte) {}

func (m *cnrom) Mirroring() Mirroring { return m.mirror }
func (m *cnrom) IRQLine() bool        { return false }
func (m *cnrom) AckIRQ()              {}
func (m *cnrom) TickCPU(cycles int)   {}
func (m *cnrom) OnPPUA12(level bool)  {}

func (m *cnrom) BatteryRAM() []byte {
	if !m.battery {
		return nil
	}
	return m.prgRAM
}

func (m *cnrom) LoadBatteryRAM(data []byte) { copy(m.prgRAM, data) }

func (m *cnrom) Snapshot(w *bytes.Buffer) {
	w.WriteByte(m.bank)
	w.Write(m.prgRAM)
}

func (m *cnrom) Restore(r *bytes.Reader) error {
	var err error
	if m.bank, err = r.ReadByte(); err != nil {
		return err
	}
	if _, err := r.Read(m.prgRAM); err != nil {
		return err
	}
	return nil
}
