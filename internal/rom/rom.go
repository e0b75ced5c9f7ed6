// Package rom loads a compiled program image into guest memory,
// validating the header the linker writes before handing the layout
// to the CPU's Reset.
package rom

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"portatil/internal/cpu"
	"portatil/internal/debug"
	"portatil/internal/memory"
)

// Source abstracts the storage a program is read from, so the loader
// never depends on the local filesystem directly.
type Source interface {
	Open(path string) (io.ReadCloser, error)
	Size(path string) (int64, error)
}

const (
	magicNumber  = 0x504D5650 // "PVMP", little-endian FourCC
	versionOne   = 1
	headerSize   = 18
)

// LoadError reports why a program image was rejected before it ever
// reached the CPU.
type LoadError struct {
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("rom: %s", e.Reason)
}

// header is the packed 18-byte program file header: magic, version,
// program size, entrypoint address, and linker memory offset.
type header struct {
	Magic       uint32
	Version     uint16
	ProgramSize uint32
	Entrypoint  uint32
	MemoryOffset uint32
}

func readHeader(r io.Reader) (header, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return header{}, &LoadError{Reason: "truncated header"}
	}

	h := header{
		Magic:        binary.LittleEndian.Uint32(raw[0:4]),
		Version:      binary.LittleEndian.Uint16(raw[4:6]),
		ProgramSize:  binary.LittleEndian.Uint32(raw[6:10]),
		Entrypoint:   binary.LittleEndian.Uint32(raw[10:14]),
		MemoryOffset: binary.LittleEndian.Uint32(raw[14:18]),
	}

	if h.Magic != magicNumber {
		return header{}, &LoadError{Reason: "bad magic number"}
	}

	return h, nil
}

// Load reads a program image from source, validates it, and resets c
// with its layout. Returns nil on success. logger may be
// nil, in which case rejected loads are simply returned as errors
// without being logged.
func Load(source Source, path string, c *cpu.CPU, logger *debug.Logger) error {
	fail := func(reason string) error {
		if logger != nil {
			logger.LogLoaderf(debug.LogLevelError, "rejected %q: %s", path, reason)
		}
		return &LoadError{Reason: reason}
	}

	file, err := source.Open(path)
	if err != nil {
		return fail(errors.Wrap(err, "cannot open program").Error())
	}
	defer file.Close()

	h, err := readHeader(file)
	if err != nil {
		if loadErr, ok := err.(*LoadError); ok {
			return fail(loadErr.Reason)
		}
		return err
	}

	fileSize, err := source.Size(path)
	if err != nil {
		return fail(errors.Wrap(err, "cannot stat program").Error())
	}

	if fileSize != int64(h.ProgramSize)+headerSize {
		return fail("file size does not match header's program size")
	}
	if h.ProgramSize > memory.Size {
		return fail("program too large for guest memory")
	}

	if !c.Reset(h.Entrypoint, h.MemoryOffset, h.ProgramSize) {
		return fail("invalid entrypoint, memory offset, or program size")
	}

	program := make([]byte, h.ProgramSize)
	if _, err := io.ReadFull(file, program); err != nil {
		return fail("truncated program body")
	}

	if !c.Memory().LoadBytes(program) {
		return fail("program body rejected by guest memory")
	}

	if logger != nil {
		logger.LogLoaderf(debug.LogLevelInfo, "loaded %q: %d bytes, entry %#x", path, h.ProgramSize, h.Entrypoint)
	}

	return nil
}
