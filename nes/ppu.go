package nes

import (
	"bytes"
	"encoding/binary"
)

// ppuCtrl ($2000), ppuMask ($2001) and ppuStatus ($2002) bit layouts, per
// https://www.nesdev.org/wiki/PPU_registers.
type ppuCtrl byte

const (
	ctrlNametable     ppuCtrl = 0x03
	ctrlAddrIncrement ppuCtrl = 1 << 2
	ctrlSpriteTable   ppuCtrl = 1 << 3
	ctrlBGTable       ppuCtrl = 1 << 4
	ctrlSpriteSize    ppuCtrl = 1 << 5
	ctrlGenerateNMI   ppuCtrl = 1 << 7
)

type ppuMask byte

const (
	maskGreyscale ppuMask = 1 << iota
	maskShowBGLeft
	maskShowSpritesLeft
	maskShowBG
	maskShowSprites
	maskEmphasizeRed
	maskEmphasizeGreen
	maskEmphasizeBlue
)

type ppuStatus byte

const (
	statusSpriteOverflow ppuStatus = 1 << 5
	statusSprite0Hit     ppuStatus = 1 << 6
	statusVBlank         ppuStatus = 1 << 7
)

// ppu is the 2C02 picture processing unit: a dot-clocked pipeline that
// fetches nametable/attribute/pattern bytes into shift registers, evaluates
// up to 8 sprites per scanline into secondary OAM, and composites a
// background and sprite pixel per dot into a palette-index framebuffer.
type ppu struct {
	cartridge *cartridge

	ctrl   ppuCtrl
	mask   ppuMask
	status ppuStatus

	oamAddr        byte
	oam            [256]byte
	secOAM         [32]byte
	spritesInRange byte
	sprite0Next    bool

	readBuffer byte
	openBus    byte

	dot      int
	scanline int
	frame    uint64

	paletteRAM [32]byte

	// vram is the console's 2KiB of nametable memory plus, in the upper
	// half, the extra 2KiB a four-screen cartridge supplies; nametableMirror
	// folds every mode except MirrorFourScreen into the lower half.
	vram [4096]byte

	v uint16 // current VRAM address (15 bits)
	t uint16 // temporary VRAM address / top-left onscreen tile
	x byte   // fine X scroll (3 bits)
	w byte   // write toggle

	addressBus    uint16
	nametableByte byte
	attributeByte byte
	lowTileByte   byte
	highTileByte  byte

	lowTileShift, highTileShift uint16
	lowAttrShift, highAttrShift uint16

	framebuffer [256 * 240]byte

	// nmiPending defers the NMI raised by writing PPUCTRL with the enable
	// bit while the VBL flag is already set; it is delivered on the next
	// dot. suppressNMI records a PPUSTATUS read racing the VBL-set dot,
	// which swallows both the flag and the NMI for that frame. nmiCancel
	// records a read just after the flag was set, which lets the flag read
	// back as set but still revokes the NMI.
	nmiPending  bool
	suppressNMI bool
	nmiCancel   bool
}

func newPPU() *ppu { return &ppu{} }

// readRegister serves a CPU read of 0x2000-0x2007 (already folded to its
// canonical low address by the bus). openBus supplies the fallback value
// for write-only registers and for PPUSTATUS's low 5 bits, matching real
// open-bus decay behavior approximately (full capacitive decay timing is
// not modeled).
func (p *ppu) readRegister(addr uint16, openBus byte) byte {
	switch addr {
	case 0x2002:
		// Reading on the dot before VBL would be set suppresses both the
		// flag and the NMI for this frame; reading on the dot it was set
		// (or the one after) returns the flag but revokes the NMI.
		if p.scanline == 241 && p.dot == 0 {
			p.suppressNMI = true
		}
		if p.scanline == 241 && (p.dot == 1 || p.dot == 2) {
			p.nmiCancel = true
		}
		v := byte(p.status) | (openBus & 0x1F)
		p.status &^= statusVBlank
		p.w = 0
		return v

	case 0x2004:
		return p.oam[p.oamAddr]

	case 0x2007:
		p.notifyA12(p.v)
		var ret byte
		if p.v >= 0x3F00 {
			ret = p.readPalette(p.v)
			p.readBuffer = p.readVRAM(p.v - 0x1000)
		} else {
			ret = p.readBuffer
			p.readBuffer = p.readVRAM(p.v)
		}
		p.incrementV()
		return ret

	default:
		return openBus
	}
}

func (p *ppu) writeRegister(addr uint16, v byte) {
	switch addr {
	case 0x2000:
		wasEnabled := p.ctrl&ctrlGenerateNMI != 0
		p.ctrl = ppuCtrl(v)
		p.t = p.t&0xF3FF | uint16(v&0x03)<<10

		// Enabling NMI while the VBL flag is already set asserts NMI
		// immediately (delivered on the next dot).
		if !wasEnabled && p.ctrl&ctrlGenerateNMI != 0 && p.status&statusVBlank != 0 {
			p.nmiPending = true
		}

	case 0x2001:
		p.mask = ppuMask(v)

	case 0x2003:
		p.oamAddr = v

	case 0x2004:
		if p.currentlyRendering() {
			return
		}
		p.oam[p.oamAddr] = v
		p.oamAddr++

	case 0x2005:
		if p.w == 0 {
			p.t = p.t&0xFFE0 | uint16(v)>>3
			p.x = v & 0x07
			p.w = 1
		} else {
			p.t = p.t&0x8C1F | uint16(v&0x07)<<12 | uint16(v&0xF8)<<2
			p.w = 0
		}

	case 0x2006:
		if p.w == 0 {
			p.t = p.t&0x00FF | uint16(v&0x3F)<<8
			p.w = 1
		} else {
			p.t = p.t&0xFF00 | uint16(v)
			p.v = p.t
			p.w = 0
		}

	case 0x2007:
		p.notifyA12(p.v)
		p.writeVRAM(p.v, v)
		p.incrementV()
	}
}

func (p *ppu) incrementV() {
	if p.ctrl&ctrlAddrIncrement != 0 {
		p.v += 32
	} else {
		p.v++
	}
}

// readVRAM/writeVRAM serve the PPU's own 14-bit address space
// (0x0000-0x3FFF), dispatching pattern tables to the cartridge and
// nametables through the mirroring-aware vram array. A12 edge reporting is
// handled separately: tick feeds the mapper the address bus level once per
// dot, and the $2007 register paths report CPU-driven accesses.
func (p *ppu) readVRAM(addr uint16) byte {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		return p.cartridge.ppuRead(addr)
	case addr < 0x3F00:
		return p.vram[p.nametableIndex(addr)]
	default:
		return p.readPalette(addr)
	}
}

func (p *ppu) writeVRAM(addr uint16, v byte) {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		p.cartridge.ppuWrite(addr, v)
	case addr < 0x3F00:
		p.vram[p.nametableIndex(addr)] = v
	default:
		p.writePalette(addr, v)
	}
}

func (p *ppu) notifyA12(addr uint16) {
	if p.cartridge != nil {
		p.cartridge.onPPUA12(addr&0x1000 != 0)
	}
}

// a12Level synthesizes the level of PPU address line 12 for the current
// dot from the fetch cadence: pattern fetches during the background half
// of each 8-dot group follow the background table, the sprite-fetch window
// (dots 257-320) follows the sprite table. Idle dots read as low, which is
// what lets the mapper's minimum-low-duration filter accumulate.
func (p *ppu) a12Level() bool {
	if !p.renderingEnabled() || (p.scanline >= 240 && p.scanline != 261) {
		return false
	}

	switch {
	case p.dot >= 257 && p.dot <= 320:
		return p.spriteTable() != 0
	case (p.dot >= 1 && p.dot <= 256) || (p.dot >= 321 && p.dot <= 336):
		return (p.dot-1)%8 >= 4 && p.backgroundTable() != 0
	default:
		return false
	}
}

func (p *ppu) nametableIndex(addr uint16) uint16 {
	return nametableMirror(p.cartridge.mirroring(), addr)
}

func (p *ppu) readPalette(addr uint16) byte {
	addr &= 0x1F
	if addr&0x13 == 0x10 {
		addr &^= 0x10
	}
	v := p.paletteRAM[addr]
	if p.mask&maskGreyscale != 0 {
		v &= 0x30
	}
	return v
}

func (p *ppu) writePalette(addr uint16, v byte) {
	addr &= 0x1F
	if addr&0x13 == 0x10 {
		addr &^= 0x10
	}
	p.paletteRAM[addr] = v
}

func (p *ppu) renderingEnabled() bool {
	return p.mask&(maskShowBG|maskShowSprites) != 0
}

func (p *ppu) currentlyRendering() bool {
	return p.renderingEnabled() && (p.scanline < 240 || p.scanline == 261)
}

func (p *ppu) backgroundTable() uint16 {
	if p.ctrl&ctrlBGTable != 0 {
		return 0x1000
	}
	return 0
}

func (p *ppu) spriteTable() uint16 {
	if p.ctrl&ctrlSpriteTable != 0 {
		return 0x1000
	}
	return 0
}

func (p *ppu) spriteHeight() int {
	if p.ctrl&ctrlSpriteSize != 0 {
		return 16
	}
	return 8
}

// tick advances the PPU by exactly one dot, called three times per CPU
// cycle by cpu.clock (the NTSC 3:1 lockstep). It latches NMI into
// the cpu when VBlank starts with NMI generation enabled.
func (p *ppu) tick(c *cpu) {
	if p.nmiPending {
		p.nmiPending = false
		c.signalNMI()
	}
	if p.nmiCancel {
		p.nmiCancel = false
		c.cancelNMI()
	}
	if p.cartridge != nil {
		p.cartridge.onPPUA12(p.a12Level())
	}

	rendering := p.renderingEnabled()
	preRender := p.scanline == 261
	visibleLine := p.scanline < 240
	visibleDot := p.dot > 0 && p.dot < 257
	prefetchDot := p.dot > 320 && p.dot < 341
	opLine := preRender || visibleLine
	doOp := rendering && opLine
	fetchDot := visibleDot || prefetchDot
	shiftDot := (p.dot > 0 && p.dot < 257) || (p.dot > 320 && p.dot < 337)

	if rendering && visibleLine && visibleDot {
		p.renderPixel()
	}

	if doOp && shiftDot {
		p.lowTileShift <<= 1
		p.highTileShift <<= 1
		p.lowAttrShift <<= 1
		p.highAttrShift <<= 1
	}

	if doOp && fetchDot {
		p.fetchStep()
	}

	switch {
	case doOp && p.dot == 256:
		p.incrementY()
	case doOp && p.dot == 257:
		p.copyX()
	case rendering && preRender && p.dot >= 280 && p.dot <= 304:
		p.copyY()
	}

	if rendering && visibleLine {
		p.evaluateSprites()
	} else if p.dot == 0 {
		p.spritesInRange = 0
	}

	switch {
	case p.scanline == 241 && p.dot == 1:
		if !p.suppressNMI {
			p.status |= statusVBlank
			if p.ctrl&ctrlGenerateNMI != 0 {
				c.signalNMI()
			}
		}
		p.suppressNMI = false
	case preRender && p.dot == 1:
		p.status &^= statusSpriteOverflow | statusSprite0Hit | statusVBlank
		p.suppressNMI = false
	}

	switch {
	case p.dot == 340 && preRender:
		p.dot = 0
		p.scanline = 0
		p.frame++
		// Odd-frame dot skip: when rendering is enabled, the idle cycle at
		// the very start of the pre-render line's successor is skipped.
		if rendering && p.frame&1 == 1 {
			p.dot = 1
		}
	case p.dot == 340:
		p.dot = 0
		p.scanline++
	default:
		p.dot++
	}
}

func (p *ppu) fetchStep() {
	switch (p.dot - 1) % 8 {
	case 0:
		p.addressBus = 0x2000 | (p.v & 0x0FFF)
	case 1:
		p.nametableByte = p.readVRAM(p.addressBus)
	case 2:
		p.addressBus = 0x23C0 | (p.v & 0x0C00) | ((p.v >> 4) & 0x38) | ((p.v >> 2) & 0x07)
	case 3:
		shift := ((p.v >> 4) & 4) | (p.v & 2)
		p.attributeByte = (p.readVRAM(p.addressBus) >> shift) & 0x03
	case 4:
		fineY := (p.v >> 12) & 0x07
		p.addressBus = p.backgroundTable() + uint16(p.nametableByte)*16 + fineY
	case 5:
		p.lowTileByte = p.readVRAM(p.addressBus)
	case 6:
		p.addressBus += 8
	case 7:
		p.highTileByte = p.readVRAM(p.addressBus)
		p.lowTileShift = p.lowTileShift&0xFF00 | uint16(p.lowTileByte)
		p.highTileShift = p.highTileShift&0xFF00 | uint16(p.highTileByte)

		var lo, hi uint16
		if p.attributeByte&1 != 0 {
			lo = 0xFF
		}
		if p.attributeByte&2 != 0 {
			hi = 0xFF
		}
		p.lowAttrShift |= lo
		p.highAttrShift |= hi

		p.incrementX()
	}
}

func (p *ppu) incrementX() {
	if p.v&0x001F == 31 {
		p.v &^= 0x001F
		p.v ^= 0x0400
		return
	}
	p.v++
}

func (p *ppu) incrementY() {
	if p.v&0x7000 != 0x7000 {
		p.v += 0x1000
		return
	}
	p.v &^= 0x7000

	coarseY := (p.v & 0x03E0) >> 5
	switch coarseY {
	case 29:
		coarseY = 0
		p.v ^= 0x0800
	case 31:
		coarseY = 0
	default:
		coarseY++
	}
	p.v = p.v&^0x03E0 | coarseY<<5
}

func (p *ppu) copyX() { p.v = p.v&^0x041F | p.t&0x041F }
func (p *ppu) copyY() { p.v = p.v&^0x7BE0 | p.t&0x7BE0 }

// evaluateSprites fills secondary OAM with the first 8 sprites overlapping
// the next scanline, then continues scanning with the hardware's broken
// carry: each out-of-range entry advances the OAM pointer by 5 bytes
// instead of 4, so the byte evaluated as a Y coordinate walks diagonally
// through the remaining entries. That diagonal walk is what produces the
// overflow flag's false positives and false negatives on the real chip.
func (p *ppu) evaluateSprites() {
	if p.dot != 256 {
		return
	}

	p.spritesInRange = 0
	p.sprite0Next = false
	height := p.spriteHeight()

	inRange := func(y byte) bool {
		row := p.scanline - int(y)
		return row >= 0 && row < height
	}

	i := 0
	for ; i < 64 && p.spritesInRange < 8; i++ {
		if !inRange(p.oam[i*4]) {
			continue
		}

		copy(p.secOAM[int(p.spritesInRange)*4:], p.oam[i*4:i*4+4])
		if i == 0 {
			p.sprite0Next = true
		}
		p.spritesInRange++
	}

	if p.spritesInRange < 8 {
		return
	}

	m := 0
	for n := i; n < 64; n++ {
		if inRange(p.oam[n*4+m]) {
			p.status |= statusSpriteOverflow
			return
		}
		m = (m + 1) & 3
	}
}

func (p *ppu) bgPixel() (pixel, attr byte) {
	x := p.dot - 1
	if p.mask&maskShowBG == 0 || (x < 8 && p.mask&maskShowBGLeft == 0) {
		return 0, 0
	}

	lo := byte(p.lowTileShift>>(15-p.x)) & 1
	hi := byte(p.highTileShift>>(15-p.x)) & 1
	aLo := byte(p.lowAttrShift>>(15-p.x)) & 1
	aHi := byte(p.highAttrShift>>(15-p.x)) & 1

	return hi<<1 | lo, aHi<<1 | aLo
}

func (p *ppu) spritePixel() (pixel, colorIdx, priority byte, isSprite0 bool) {
	x := p.dot - 1
	if p.mask&maskShowSprites == 0 || (x < 8 && p.mask&maskShowSpritesLeft == 0) {
		return 0, 0, 0, false
	}

	height := p.spriteHeight()
	for i := byte(0); i < p.spritesInRange; i++ {
		y := p.secOAM[i*4]
		tile := p.secOAM[i*4+1]
		attr := p.secOAM[i*4+2]
		sx := p.secOAM[i*4+3]

		if x < int(sx) || x > int(sx)+7 {
			continue
		}

		pal := (attr & 0x03) << 2
		pri := (attr >> 5) & 1
		flipH := attr&0x40 != 0
		flipV := attr&0x80 != 0

		row := p.scanline - int(y)
		if flipV {
			row = height - 1 - row
		}

		var table uint16
		var index int
		if height == 16 {
			table = uint16(tile&1) * 0x1000
			index = int(tile &^ 1)
			if row >= 8 {
				index++
				row -= 8
			}
		} else {
			table = p.spriteTable()
			index = int(tile)
		}

		col := int(x) - int(sx)
		if !flipH {
			col = 7 - col
		}

		lo := (p.readVRAM(table+uint16(index)*16+uint16(row)) >> col) & 1
		hi := (p.readVRAM(table+uint16(index)*16+uint16(row)+8) >> col) & 1

		pix := hi<<1 | lo
		if pix == 0 {
			continue
		}

		return pix, pix | 0x10 | pal, pri, p.sprite0Next && i == 0
	}

	return 0, 0, 0, false
}

func (p *ppu) renderPixel() {
	bgPix, bgAttr := p.bgPixel()
	bgColor := bgPix | bgAttr<<2

	spPix, spColor, priority, isZero := p.spritePixel()

	var colorAddr byte
	switch {
	case bgPix == 0 && spPix == 0:
		colorAddr = 0
	case bgPix == 0 && spPix != 0:
		colorAddr = spColor
	case bgPix != 0 && spPix == 0:
		colorAddr = bgColor
	case priority == 0:
		colorAddr = spColor
	default:
		colorAddr = bgColor
	}

	if isZero && bgPix != 0 && spPix != 0 && p.status&statusSprite0Hit == 0 && p.dot-1 != 255 {
		p.status |= statusSprite0Hit
	}

	idx := p.readPalette(0x3F00 + uint16(colorAddr))
	p.framebuffer[p.scanline*256+(p.dot-1)] = idx
}

// snapshot/restore persist every bit of mutable PPU state that affects
// future dots: registers, the scroll latches, OAM, palette and nametable
// RAM, the fetch pipeline's shift registers and latches, and timing
// position (dot/scanline/frame parity). The cartridge pointer itself is
// restored by Console, not here.
func (p *ppu) snapshot(w *bytes.Buffer) {
	w.Write([]byte{byte(p.ctrl), byte(p.mask), byte(p.status), p.oamAddr})
	w.Write(p.oam[:])
	w.Write(p.secOAM[:])
	w.Write([]byte{p.spritesInRange, boolByte(p.sprite0Next), p.readBuffer, p.openBus})
	w.Write([]byte{boolByte(p.nmiPending), boolByte(p.suppressNMI), boolByte(p.nmiCancel)})
	binary.Write(w, binary.LittleEndian, int32(p.dot))
	binary.Write(w, binary.LittleEndian, int32(p.scanline))
	binary.Write(w, binary.LittleEndian, p.frame)
	w.Write(p.paletteRAM[:])
	w.Write(p.vram[:])
	binary.Write(w, binary.LittleEndian, p.v)
	binary.Write(w, binary.LittleEndian, p.t)
	w.Write([]byte{p.x, p.w})
	binary.Write(w, binary.LittleEndian, p.addressBus)
	w.Write([]byte{p.nametableByte, p.attributeByte, p.lowTileByte, p.highTileByte})
	binary.Write(w, binary.LittleEndian, p.lowTileShift)
	binary.Write(w, binary.LittleEndian, p.highTileShift)
	binary.Write(w, binary.LittleEndian, p.lowAttrShift)
	binary.Write(w, binary.LittleEndian, p.highAttrShift)
	w.Write(p.framebuffer[:])
}

func (p *ppu) restore(r *bytes.Reader) error {
	hdr := make([]byte, 4)
	if _, err := r.Read(hdr); err != nil {
		return err
	}
	p.ctrl, p.mask, p.status, p.oamAddr = ppuCtrl(hdr[0]), ppuMask(hdr[1]), ppuStatus(hdr[2]), hdr[3]

	if _, err := r.Read(p.oam[:]); err != nil {
		return err
	}
	if _, err := r.Read(p.secOAM[:]); err != nil {
		return err
	}

	rest := make([]byte, 4)
	if _, err := r.Read(rest); err != nil {
		return err
	}
	p.spritesInRange, p.sprite0Next, p.readBuffer, p.openBus = rest[0], rest[1] != 0, rest[2], rest[3]

	nmiFlags := make([]byte, 3)
	if _, err := r.Read(nmiFlags); err != nil {
		return err
	}
	p.nmiPending, p.suppressNMI, p.nmiCancel = nmiFlags[0] != 0, nmiFlags[1] != 0, nmiFlags[2] != 0

	var dot, scanline int32
	if err := binary.Read(r, binary.LittleEndian, &dot); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &scanline); err != nil {
		return err
	}
	p.dot, p.scanline = int(dot), int(scanline)
	if err := binary.Read(r, binary.LittleEndian, &p.frame); err != nil {
		return err
	}

	if _, err := r.Read(p.paletteRAM[:]); err != nil {
		return err
	}
	if _, err := r.Read(p.vram[:]); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &p.v); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &p.t); err != nil {
		return err
	}

	xw := make([]byte, 2)
	if _, err := r.Read(xw); err != nil {
		return err
	}
	p.x, p.w = xw[0], xw[1]

	if err := binary.Read(r, binary.LittleEndian, &p.addressBus); err != nil {
		return err
	}
	latches := make([]byte, 4)
	if _, err := r.Read(latches); err != nil {
		return err
	}
	p.nametableByte, p.attributeByte, p.lowTileByte, p.highTileByte = latches[0], latches[1], latches[2], latches[3]

	for _, dst := range []*uint16{&p.lowTileShift, &p.highTileShift, &p.lowAttrShift, &p.highAttrShift} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return err
		}
	}

	if _, err := r.Read(p.framebuffer[:]); err != nil {
		return err
	}
	return nil
}
