// Package memory implements the guest's flat 64 KiB address space and the
// address-translation window the virtual machine and syscall table use to
// reach it.
package memory

import (
	"portatil/internal/debug"
)

// Size is the total size of guest memory in bytes.
const Size = 65536

// Memory is the guest's flat byte-addressable RAM. A single instance backs
// both program code and data; there is no separate ROM/RAM split.
type Memory struct {
	bytes [Size]byte

	// programMemoryOffset is the linker base the loader recorded. Guest
	// addresses at or above this offset are rebased to [0, programSize).
	programMemoryOffset uint32

	logger *debug.Logger
}

// New creates a zeroed guest memory.
func New() *Memory {
	return &Memory{}
}

// SetLogger attaches a diagnostics logger.
func (m *Memory) SetLogger(logger *debug.Logger) {
	m.logger = logger
}

// SetProgramMemoryOffset records the linker base used by Translate.
func (m *Memory) SetProgramMemoryOffset(offset uint32) {
	m.programMemoryOffset = offset
}

// ProgramMemoryOffset returns the linker base currently in effect.
func (m *Memory) ProgramMemoryOffset() uint32 {
	return m.programMemoryOffset
}

// Reset zeroes every byte of guest memory.
func (m *Memory) Reset() {
	for i := range m.bytes {
		m.bytes[i] = 0
	}
}

// Translate rewrites a guest address the way the linker's windowing scheme
// expects: negative addresses wrap modulo the address space, and addresses
// at or above the program's linker base are rebased to the flat backing
// store. It does not perform bounds or alignment checking; use Check for
// that.
func Translate(addr int64, programMemoryOffset uint32) int64 {
	if addr < 0 {
		return addr + Size
	}
	if programMemoryOffset != 0 && addr >= int64(programMemoryOffset) {
		return addr - int64(programMemoryOffset)
	}
	return addr
}

// Translate is the instance-bound form of the package-level Translate,
// using this memory's current linker base.
func (m *Memory) Translate(addr int64) int64 {
	return Translate(addr, m.programMemoryOffset)
}

// Check translates addr and validates it for an access of the given word
// size (1, 2, or 4 bytes). It returns the translated, in-bounds address and
// true, or false if the access would fault.
func (m *Memory) Check(addr int64, word uint32) (uint32, bool) {
	translated := m.Translate(addr)
	if translated < 0 || translated > Size-int64(word) {
		return 0, false
	}
	if uint32(translated)%word != 0 {
		return 0, false
	}
	return uint32(translated), true
}

// CheckBytes translates addr and validates it for a load or store of
// length bytes (1, 2, or 4): the access must lie inside guest memory and
// the translated address must be a multiple of length, so a misaligned
// halfword or word access faults.
func (m *Memory) CheckBytes(addr int64, length int) (uint32, bool) {
	translated := m.Translate(addr)
	if translated < 0 || translated > Size-int64(length) {
		return 0, false
	}
	if length > 0 && translated%int64(length) != 0 {
		return 0, false
	}
	return uint32(translated), true
}

// Read8 reads a raw byte at an already-translated address.
func (m *Memory) Read8(addr uint32) uint8 {
	return m.bytes[addr]
}

// Write8 writes a raw byte at an already-translated address.
func (m *Memory) Write8(addr uint32, value uint8) {
	m.bytes[addr] = value
}

// Read16 reads a little-endian 16-bit value at an already-translated,
// 2-byte-aligned address.
func (m *Memory) Read16(addr uint32) uint16 {
	return uint16(m.bytes[addr]) | uint16(m.bytes[addr+1])<<8
}

// Write16 writes a little-endian 16-bit value.
func (m *Memory) Write16(addr uint32, value uint16) {
	m.bytes[addr] = uint8(value)
	m.bytes[addr+1] = uint8(value >> 8)
}

// Read32 reads a little-endian 32-bit value at an already-translated,
// 4-byte-aligned address.
func (m *Memory) Read32(addr uint32) uint32 {
	return uint32(m.bytes[addr]) | uint32(m.bytes[addr+1])<<8 |
		uint32(m.bytes[addr+2])<<16 | uint32(m.bytes[addr+3])<<24
}

// Write32 writes a little-endian 32-bit value.
func (m *Memory) Write32(addr uint32, value uint32) {
	m.bytes[addr] = uint8(value)
	m.bytes[addr+1] = uint8(value >> 8)
	m.bytes[addr+2] = uint8(value >> 16)
	m.bytes[addr+3] = uint8(value >> 24)
}

// LoadBytes copies data verbatim to guest address 0. It is the caller's
// responsibility (the program loader) to have already validated that data
// fits within Size.
func (m *Memory) LoadBytes(data []byte) bool {
	if len(data) > Size {
		if m.logger != nil {
			m.logger.LogMemoryf(debug.LogLevelError, "program too large: %d bytes", len(data))
		}
		return false
	}
	copy(m.bytes[:], data)
	return true
}

// Slice returns a read-only view of a translated, bounds-checked byte
// range, used by syscalls that copy variable-length guest buffers (image
// data, text strings, font atlases) to the host.
func (m *Memory) Slice(addr int64, length int) ([]byte, bool) {
	if length < 0 {
		return nil, false
	}
	translated := m.Translate(addr)
	if translated < 0 || translated+int64(length) > Size {
		return nil, false
	}
	return m.bytes[translated : translated+int64(length)], true
}

// ReadCString reads a NUL-terminated string starting at a guest address,
// scanning at most maxLen bytes. It returns false if the address is
// invalid or no terminator is found within maxLen bytes.
func (m *Memory) ReadCString(addr int64, maxLen int) (string, bool) {
	translated := m.Translate(addr)
	if translated < 0 || translated >= Size {
		return "", false
	}
	limit := int64(maxLen)
	if translated+limit > Size {
		limit = Size - translated
	}
	for i := int64(0); i < limit; i++ {
		if m.bytes[translated+i] == 0 {
			return string(m.bytes[translated : translated+i]), true
		}
	}
	return "", false
}
