package nes

import (
	"bytes"
	"testing"
)

func testCartridge(t *testing.T, mapper byte) *cartridge {
	t.Helper()
	h := baseHeader()
	h[6] = (h[6] & 0x0F) | ((mapper & 0x0F) << 4)
	h[7] = (h[7] & 0x0F) | (mapper & 0xF0)
	rom := append(append([]byte{}, h...), make([]byte, prgUnit+chrUnit)...)

	c, err := loadCartridge(bytes.NewReader(rom))
	if err != nil {
		t.Fatalf("loadCartridge() error = %v", err)
	}
	return c
}

func TestLoadCartridge_dispatchesMapper(t *testing.T) {
	tests := []struct {
		mapper byte
		want   any
	}{
		{0, &nrom{}},
		{1, &mmc1{}},
		{2, &uxrom{}},
		{3, &cnrom{}},
		{4, &mmc3{}},
	}

	for _, tt := range tests {
		c := testCartridge(t, tt.mapper)
		gotType := typeName(c.mapper)
		wantType := typeName(tt.want)
		if gotType != wantType {
			t.Errorf("mapper %d: got %s, want %s", tt.mapper, gotType, wantType)
		}
	}
}

func TestCartridge_prgRAMRoundTrip(t *testing.T) {
	c := testCartridge(t, 0)
	c.cpuWrite(0x6000, 0x42)
	if got := c.cpuRead(0x6000); got != 0x42 {
		t.Errorf("PRG-RAM readback = %#x, want 0x42", got)
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *nrom:
		return "nrom"
	case *mmc1:
		return "mmc1"
	case *uxrom:
		return "uxrom"
	case *cnrom:
		return "cnrom"
	case *mmc3:
		return "mmc3"
	default:
		return "unknown"
	}
}

func TestCartridge_prgRAMSizedFromHeader(t *testing.T) {
	h := baseHeader()
	h[7] |= flags7Format2
	h[10] = 0x05 // 2KiB of PRG-RAM
	rom := append(append([]byte{}, h...), make([]byte, prgUnit+chrUnit)...)

	c, err := loadCartridge(bytes.NewReader(rom))
	if err != nil {
		t.Fatalf("loadCartridge() error = %v", err)
	}

	// A 2KiB array mirrors through the 8KiB window at 0x6000-0x7FFF.
	c.cpuWrite(0x6000, 0x24)
	if got := c.cpuRead(0x6800); got != 0x24 {
		t.Errorf("0x6800 read = %#x, want mirror of 0x6000 (0x24)", got)
	}
}
