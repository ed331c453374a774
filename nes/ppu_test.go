package nes

import (
	"strconv"
	"strings"
	"testing"
)

func TestPPURegisters_scrolling(t *testing.T) {
	type result struct {
		t, v uint16
		x, w byte
	}
	type prev result
	type want result

	parse := func(s string) uint64 {
		s = strings.Replace(s, " ", "", -1)
		s = strings.Replace(s, ".", "0", -1)
		n, err := strconv.ParseUint(s, 2, 64)
		if err != nil {
			panic(err)
		}
		return n
	}
	p16 := func(s string) uint16 { return uint16(parse(s)) }
	p8 := func(s string) uint8 { return uint8(parse(s)) }

	p := &ppu{}

	tests := []struct {
		name  string
		op    func()
		prev  prev
		want  want
		tmask uint16
	}{
		{
			// From https://wiki.nesdev.com/w/index.php?title=PPU_scrolling&redirect=no#Summary
			name:  "0x2000 write",
			op:    func() { p.writeRegister(0x2000, 0x00) },
			prev:  prev{t: p16("........ ........"), v: p16("........ ........"), x: p8("........"), w: p8("........")},
			want:  want{t: p16("....00.. ........"), v: p16("........ ........"), x: p8("........"), w: p8("........")},
			tmask: 0x0C00,
		},
		{
			name:  "0x2002 read",
			op:    func() { p.readRegister(0x2002, 0) },
			prev:  prev{t: p16("....00.. ........"), v: p16("........ ........"), x: p8("........"), w: p8("........")},
			want:  want{t: p16("....00.. ........"), v: p16("........ ........"), x: p8("........"), w: p8(".......0")},
			tmask: 0x0C00,
		},
		{
			name:  "0x2005 write 1",
			op:    func() { p.writeRegister(0x2005, 0x7D) },
			prev:  prev{t: p16("....00.. ........"), v: p16("........ ........"), x: p8("........"), w: p8(".......0")},
			want:  want{t: p16("....00.. ...01111"), v: p16("........ ........"), x: p8(".....101"), w: p8(".......1")},
			tmask: 0x0C1F,
		},
		{
			name:  "0x2005 write 2",
			op:    func() { p.writeRegister(0x2005, 0x5E) },
			prev:  prev{t: p16("....00.. ...01111"), v: p16("........ ........"), x: p8(".....101"), w: p8(".......1")},
			want:  want{t: p16(".1100001 01101111"), v: p16("........ ........"), x: p8(".....101"), w: p8(".......0")},
			tmask: 0x7FFF,
		},
		{
			name:  "0x2006 write 1",
			op:    func() { p.writeRegister(0x2006, 0x3D) },
			prev:  prev{t: p16(".1100001 01101111"), v: p16("........ ........"), x: p8(".....101"), w: p8(".......0")},
			want:  want{t: p16(".0111101 01101111"), v: p16("........ ........"), x: p8(".....101"), w: p8(".......1")},
			tmask: 0x7FFF,
		},
		{
			name:  "0x2006 write 2",
			op:    func() { p.writeRegister(0x2006, 0xF0) },
			prev:  prev{t: p16(".0111101 01101111"), v: p16("........ ........"), x: p8(".....101"), w: p8(".......1")},
			want:  want{t: p16(".0111101 11110000"), v: p16(".0111101 11110000"), x: p8(".....101"), w: p8(".......0")},
			tmask: 0x7FFF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if p.t&tt.tmask != tt.prev.t {
				t.Errorf("got prev t = %016b, want prev = %016b", p.t&tt.tmask, tt.prev.t)
			}
			if p.v != tt.prev.v {
				t.Errorf("got prev v = %016b, want prev = %016b", p.v, tt.prev.v)
			}
			if p.x != tt.prev.x {
				t.Errorf("got prev x = %016b, want prev = %016b", p.x, tt.prev.x)
			}
			if p.w != tt.prev.w {
				t.Errorf("got prev w = %016b, want prev = %016b", p.w, tt.prev.w)
			}

			tt.op()

			if p.t&tt.tmask != tt.want.t {
				t.Errorf("got t = %016b, want = %016b", p.t&tt.tmask, tt.want.t)
			}
			if p.v != tt.want.v {
				t.Errorf("got v = %016b, want = %016b", p.v, tt.want.v)
			}
			if p.x != tt.want.x {
				t.Errorf("got x = %016b, want = %016b", p.x, tt.want.x)
			}
			if p.w != tt.want.w {
				t.Errorf("got w = %016b, want = %016b", p.w, tt.want.w)
			}
		})
	}
}

func TestNametableMirror(t *testing.T) {
	tests := []struct {
		mode Mirroring
		addr uint16
		want uint16
	}{
		{MirrorHorizontal, 0x2000, 0x0000},
		{MirrorHorizontal, 0x2400, 0x0000},
		{MirrorHorizontal, 0x2800, 0x0400},
		{MirrorHorizontal, 0x2C00, 0x0400},
		{MirrorVertical, 0x2000, 0x0000},
		{MirrorVertical, 0x2400, 0x0400},
		{MirrorVertical, 0x2800, 0x0000},
		{MirrorVertical, 0x2C00, 0x0400},
		{MirrorSingleLower, 0x2C00, 0x0000},
		{MirrorSingleUpper, 0x2000, 0x0400},
	}

	for _, tt := range tests {
		if got := nametableMirror(tt.mode, tt.addr); got != tt.want {
			t.Errorf("nametableMirror(%v, %#04x) = %#04x, want %#04x", tt.mode, tt.addr, got, tt.want)
		}
	}
}

func TestPPU_paletteMirroring(t *testing.T) {
	p := &ppu{}
	p.writePalette(0x3F00, 0x0F)
	if got := p.readPalette(0x3F10); got != 0x0F {
		t.Errorf("0x3F10 = %#x, want mirror of 0x3F00 (0x0F)", got)
	}

	p.writePalette(0x3F05, 0x12)
	if got := p.readPalette(0x3F05); got != 0x12 {
		t.Errorf("0x3F05 = %#x, want 0x12", got)
	}
}

func TestPPU_vblankSetAndClearedOnRead(t *testing.T) {
	p := &ppu{}
	p.status |= statusVBlank
	v := p.readRegister(0x2002, 0)
	if v&0x80 == 0 {
		t.Fatalf("expected VBlank bit set in read value")
	}
	if p.status&statusVBlank != 0 {
		t.Fatalf("expected VBlank flag cleared after PPUSTATUS read")
	}
	if p.w != 0 {
		t.Fatalf("expected write toggle cleared after PPUSTATUS read")
	}
}

// TestPPU_spriteOverflowScanBug covers the broken carry in the post-8
// evaluation phase: out-of-range entries advance the OAM pointer by 5
// bytes instead of 4, so the flag can both miss a genuine 9th sprite and
// fire on a non-Y byte that happens to look in range.
func TestPPU_spriteOverflowScanBug(t *testing.T) {
	const line = 100 // 8x8 sprites at Y=100 cover rows 100-107

	newEval := func(fill func(p *ppu)) *ppu {
		p := &ppu{scanline: line, dot: 256}
		for i := range p.oam {
			p.oam[i] = 0xF0 // everything out of range by default
		}
		for i := 0; i < 8; i++ {
			p.oam[i*4] = line
		}
		fill(p)
		p.evaluateSprites()
		return p
	}

	t.Run("ninth sprite aligned sets the flag", func(t *testing.T) {
		p := newEval(func(p *ppu) {
			p.oam[8*4] = line // sprite 8's real Y byte, read with m=0
		})
		if p.status&statusSpriteOverflow == 0 {
			t.Fatalf("overflow flag not set with 9 in-range sprites")
		}
	})

	t.Run("false negative: diagonal walk skips the 9th sprite's Y", func(t *testing.T) {
		p := newEval(func(p *ppu) {
			// Sprite 9 is genuinely in range, but sprite 8 is not: the
			// failed match advances the pointer by 5, so sprite 9 is
			// judged by its tile byte (out of range) and the flag never
			// sets.
			p.oam[9*4] = line
			p.oam[9*4+1] = 0xF0
		})
		if p.status&statusSpriteOverflow != 0 {
			t.Fatalf("overflow flag set, want the broken scan to miss sprite 9")
		}
	})

	t.Run("false positive: a tile byte read as Y sets the flag", func(t *testing.T) {
		p := newEval(func(p *ppu) {
			// Only 8 sprites are in range, but after sprite 8 fails the
			// scan reads sprite 9's tile byte as a Y coordinate, and that
			// value lands in range.
			p.oam[9*4+1] = line
		})
		if p.status&statusSpriteOverflow == 0 {
			t.Fatalf("overflow flag clear, want the broken scan's false positive")
		}
	})

	t.Run("eight sprites leave the flag clear", func(t *testing.T) {
		p := newEval(func(p *ppu) {})
		if p.status&statusSpriteOverflow != 0 {
			t.Fatalf("overflow flag set with only 8 in-range sprites")
		}
	})
}
