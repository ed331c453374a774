package nes

import "bytes"

const ramSize = 2048

// ram is the console's 2KiB of system RAM, mirrored four times across
// 0x0000-0x1FFF on the CPU bus.
type ram struct {
	data [ramSize]byte
}

func (r *ram) read(addr uint16) byte     { return r.data[addr%ramSize] }
func (r *ram) write(addr uint16, v byte) { r.data[addr%ramSize] = v }

func (r *ram) snapshot(w *bytes.Buffer) { w.Write(r.data[:]) }

func (r *ram) restore(rd *bytes.Reader) error {
	_, err := rd.Read(r.data[:])
	return err
}
