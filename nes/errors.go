package nes

import "fmt"

// InvalidRom is returned by ParseROM when the image is structurally broken:
// bad magic, a size field inconsistent with the file length, or a claimed
// trainer that is missing from the stream.
type InvalidRom struct {
	Reason string
}

func (e *InvalidRom) Error() string {
	return fmt.Sprintf("nes: invalid rom: %s", e.Reason)
}

// UnsupportedMapper is returned by ParseROM/NewConsole when the header names
// a mapper number this build has no implementation for.
type UnsupportedMapper struct {
	Number byte
}

func (e *UnsupportedMapper) Error() string {
	return fmt.Sprintf("nes: unsupported mapper %d", e.Number)
}

// IncompatibleSnapshot is returned by Console.Restore when the snapshot's
// format version doesn't match, or a structural sanity check on its
// contents fails. Restore makes no partial mutation of console state when
// this is returned.
type IncompatibleSnapshot struct {
	Reason string
}

func (e *IncompatibleSnapshot) Error() string {
	return fmt.Sprintf("nes: incompatible snapshot: %s", e.Reason)
}
