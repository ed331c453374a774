package nes

import (
	"bytes"
	"io"
)

// cartridge owns the parsed ROM image and its mapper. The bus and console
// talk to this, never to Mapper or ROM directly, so cartridge swapping (in
// tests, or via Console.LoadROM) has exactly one seam.
type cartridge struct {
	rom    *ROM
	mapper Mapper
}

// loadCartridge parses r as an iNES image and constructs the matching
// Mapper. Errors are *InvalidRom or *UnsupportedMapper (see errors.go).
func loadCartridge(r io.Reader) (*cartridge, error) {
	rom, err := ParseROM(r)
	if err != nil {
		return nil, err
	}
	return &cartridge{rom: rom, mapper: newMapper(rom)}, nil
}

func (c *cartridge) cpuRead(addr uint16) byte     { return c.mapper.CPURead(addr) }
func (c *cartridge) cpuWrite(addr uint16, v byte) { c.mapper.CPUWrite(addr, v) }
func (c *cartridge) ppuRead(addr uint16) byte     { return c.mapper.PPURead(addr) }
func (c *cartridge) ppuWrite(addr uint16, v byte) { c.mapper.PPUWrite(addr, v) }
func (c *cartridge) mirroring() Mirroring         { return c.mapper.Mirroring() }
func (c *cartridge) irqLine() bool                { return c.mapper.IRQLine() }
func (c *cartridge) ackIRQ()                      { c.mapper.AckIRQ() }
func (c *cartridge) tickCPU(cycles int)           { c.mapper.TickCPU(cycles) }
func (c *cartridge) onPPUA12(level bool)          { c.mapper.OnPPUA12(level) }

// batteryRAM/loadBatteryRAM expose the cartridge's persistent PRG-RAM, if
// any, for host-side save file handling.
func (c *cartridge) batteryRAM() []byte         { return c.mapper.BatteryRAM() }
func (c *cartridge) loadBatteryRAM(data []byte) { c.mapper.LoadBatteryRAM(data) }

// mapperNumber reports the iNES mapper number the cartridge was loaded
// with, so a snapshot can be rejected if restored against a different ROM.
func (c *cartridge) mapperNumber() byte { return c.rom.Mapper }

func (c *cartridge) snapshot(w *bytes.Buffer) { c.mapper.Snapshot(w) }

func (c *cartridge) restore(r *bytes.Reader) error { return c.mapper.Restore(r) }
