package nes

import (
	"bytes"
	"errors"
	"testing"
)

type romCheck func(*testing.T, *ROM)
type romfn func([]byte) ([]byte, romCheck)

func baseHeader() []byte {
	return []byte{'N', 'E', 'S', 0x1a, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
}

func TestParseROM(t *testing.T) {
	tests := []struct {
		name    string
		rom     []romfn
		wantErr bool
	}{
		{name: "too short", rom: []romfn{func([]byte) ([]byte, romCheck) {
			return []byte{'N', 'E', 'S', 0x1a, 0, 0, 0, 0}, nil
		}}, wantErr: true},
		{name: "bad magic", rom: []romfn{func([]byte) ([]byte, romCheck) {
			return []byte{'N', 'O', 'S', 0x1a, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, nil
		}}, wantErr: true},
		{name: "zero PRG banks", rom: []romfn{func([]byte) ([]byte, romCheck) {
			h := baseHeader()
			h[4] = 0
			return h, nil
		}}, wantErr: true},
		{name: "unsupported mapper", rom: []romfn{withMapper(200)}, wantErr: true},
		{name: "horizontal mirroring", rom: []romfn{withMirror(false)}, wantErr: false},
		{name: "vertical mirroring", rom: []romfn{withMirror(true)}, wantErr: false},
		{name: "battery", rom: []romfn{withBattery(true)}, wantErr: false},
		{name: "no battery", rom: []romfn{withBattery(false)}, wantErr: false},
		{name: "chr ram when CHRBanks zero", rom: []romfn{withCHRBanks(0)}, wantErr: false},
		{name: "mapper 1", rom: []romfn{withMapper(1)}, wantErr: false},
		{name: "mapper 4", rom: []romfn{withMapper(4)}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := baseHeader()
			prg := make([]byte, prgUnit)
			chr := make([]byte, chrUnit)
			var checks []romCheck

			rom := append(append([]byte{}, h...), append(prg, chr...)...)
			for _, fn := range tt.rom {
				var c romCheck
				rom, c = fn(rom)
				if c != nil {
					checks = append(checks, c)
				}
			}

			got, err := ParseROM(bytes.NewReader(rom))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseROM() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, c := range checks {
				c(t, got)
			}
		})
	}
}

func TestParseROM_errorTypes(t *testing.T) {
	_, err := ParseROM(bytes.NewReader([]byte{'X', 'X', 'X', 'X'}))
	var invalid *InvalidRom
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidRom, got %T", err)
	}

	h := baseHeader()
	rom, _ := withMapper(253)(append(append([]byte{}, h...), make([]byte, prgUnit+chrUnit)...))
	_, err = ParseROM(bytes.NewReader(rom))
	var unsupported *UnsupportedMapper
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected *UnsupportedMapper, got %T", err)
	}
	if unsupported.Number != 253 {
		t.Fatalf("expected mapper number 253, got %d", unsupported.Number)
	}
}

func withMirror(vertical bool) romfn {
	return func(rom []byte) ([]byte, romCheck) {
		if vertical {
			rom[6] |= flags6Mirror
		} else {
			rom[6] &^= flags6Mirror
		}
		want := MirrorHorizontal
		if vertical {
			want = MirrorVertical
		}
		return rom, func(t *testing.T, r *ROM) {
			if r.Mirroring != want {
				t.Errorf("mirroring = %v, want %v", r.Mirroring, want)
			}
		}
	}
}

func withBattery(v bool) romfn {
	return func(rom []byte) ([]byte, romCheck) {
		if v {
			rom[6] |= flags6Battery
		} else {
			rom[6] &^= flags6Battery
		}
		return rom, func(t *testing.T, r *ROM) {
			if r.Battery != v {
				t.Errorf("battery = %v, want %v", r.Battery, v)
			}
		}
	}
}

func withCHRBanks(n byte) romfn {
	return func(rom []byte) ([]byte, romCheck) {
		rom[5] = n
		if n != 0 {
			rom = append(rom, make([]byte, int(n)*chrUnit)...)
		}
		return rom, func(t *testing.T, r *ROM) {
			if r.ChrIsRAM != (n == 0) {
				t.Errorf("chrIsRAM = %v, want %v", r.ChrIsRAM, n == 0)
			}
		}
	}
}

func withMapper(m byte) romfn {
	lo := m & 0x0F
	hi := m & 0xF0
	return func(rom []byte) ([]byte, romCheck) {
		rom[6] = (rom[6] & 0x0F) | (lo << 4)
		rom[7] = (rom[7] & 0x0F) | hi
		return rom, func(t *testing.T, r *ROM) {
			if r == nil {
				return
			}
			if r.Mapper != m {
				t.Errorf("mapper = %v, want %v", r.Mapper, m)
			}
		}
	}
}

func TestParseROM_prgRAMSize(t *testing.T) {
	build := func(t *testing.T, mod func(h []byte)) *ROM {
		t.Helper()
		h := baseHeader()
		mod(h)
		rom := append(append([]byte{}, h...), make([]byte, prgUnit+chrUnit)...)
		r, err := ParseROM(bytes.NewReader(rom))
		if err != nil {
			t.Fatalf("ParseROM() error = %v", err)
		}
		return r
	}

	tests := []struct {
		name string
		mod  func(h []byte)
		want int
	}{
		{"iNES default", func(h []byte) {}, 8192},
		{"iNES byte 8 in 8KiB units", func(h []byte) { h[8] = 1 }, 8192},
		{"iNES byte 8 clamped to the window", func(h []byte) { h[8] = 4 }, 8192},
		{"NES 2.0 volatile nibble", func(h []byte) {
			h[7] |= flags7Format2
			h[10] = 0x05 // 64<<5
		}, 2048},
		{"NES 2.0 battery uses the NVRAM nibble", func(h []byte) {
			h[6] |= flags6Battery
			h[7] |= flags7Format2
			h[10] = 0x75 // NVRAM 64<<7, volatile 64<<5
		}, 8192},
		{"NES 2.0 tiny EEPROM rounded up", func(h []byte) {
			h[7] |= flags7Format2
			h[10] = 0x01 // 128 bytes
		}, 2048},
		{"NES 2.0 oversize clamped", func(h []byte) {
			h[7] |= flags7Format2
			h[10] = 0x0A // 64KiB
		}, 8192},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := build(t, tt.mod).PRGRAMSize; got != tt.want {
				t.Errorf("PRGRAMSize = %d, want %d", got, tt.want)
			}
		})
	}
}
