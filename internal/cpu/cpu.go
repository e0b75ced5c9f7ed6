// Package cpu implements the guest's RV32IM instruction interpreter: the
// register file, the decode/dispatch loop, and the trap taxonomy a frame
// loop uses to tell a clean yield from a crashed program.
package cpu

import (
	"fmt"

	"portatil/internal/debug"
	"portatil/internal/fixedpoint"
	"portatil/internal/memory"
)

// Register index names, matching the RV32 calling convention.
const (
	Zero = 0
	RA   = 1
	SP   = 2
	GP   = 3
	TP   = 4
	T0   = 5
	T1   = 6
	T2   = 7
	S0   = 8
	S1   = 9
	A0   = 10
	A1   = 11
	A2   = 12
	A3   = 13
	A4   = 14
	A5   = 15
	A6   = 16
	A7   = 17
	S2   = 18
	S3   = 19
	S4   = 20
	S5   = 21
	S6   = 22
	S7   = 23
	S8   = 24
	S9   = 25
	S10  = 26
	S11  = 27
	T3   = 28
	T4   = 29
	T5   = 30
	T6   = 31
)

// MaxSyscalls bounds the a7-selected syscall table.
const MaxSyscalls = 256

// maxSyncTimeMicros bounds how long a single Sync call may run in wall
// clock time once the instruction counter has also been exhausted.
const maxSyncTimeMicros = 1_000_000

// instructionBudget is the number of instructions executed before Sync
// starts checking wall-clock time at all.
const instructionBudget = 100_000

// Syscall is a single handler in the syscall table, reading its
// arguments from and writing its result to the calling CPU's registers
// the same way a real ecall ABI would.
type Syscall func(c *CPU) bool

// Clock abstracts wall-clock access so tests can run the timeout path
// deterministically.
type Clock interface {
	NowMicros() int64
}

// decoded holds the instruction fields extracted by the current
// decode step. It is reset on every instruction fetch.
type decoded struct {
	rd, rs1, rs2 int32
	f3, f7       int32
	imm          int32
}

// CPU is the RV32IM interpreter plus its syscall table. It owns no
// video/audio/engine state directly; syscalls are injected as plain
// functions so this package never imports the device packages they
// touch.
type CPU struct {
	registers [32]int32
	pc        uint32
	pcAtFetch uint32

	programSize uint32
	entrypoint  uint32

	memory *memory.Memory
	logger *debug.Logger
	clock  Clock

	syscalls [MaxSyscalls]Syscall

	d decoded

	currentInstruction uint32
	syncRequested      bool
	speedMultiplier    fixedpoint.F16

	trapMessage string
}

// New creates a CPU bound to the given guest memory.
func New(mem *memory.Memory, clock Clock) *CPU {
	c := &CPU{memory: mem, clock: clock}
	for i := range c.syscalls {
		c.syscalls[i] = invalidSyscall
	}
	return c
}

func invalidSyscall(c *CPU) bool {
	return false
}

// SetLogger attaches a diagnostics logger.
func (c *CPU) SetLogger(logger *debug.Logger) {
	c.logger = logger
}

// SetSyscall installs the handler for a given a7 syscall number.
func (c *CPU) SetSyscall(number uint32, fn Syscall) {
	if number >= MaxSyscalls {
		return
	}
	c.syscalls[number] = fn
}

// X reads a register, with x0 hardwired to zero.
func (c *CPU) X(index int32) int32 {
	if index < 0 || index >= 32 {
		return 0
	}
	return c.registers[index]
}

// SetX writes a register. Writes to x0 are discarded.
func (c *CPU) SetX(index int32, value int32) {
	if index > 0 && index < 32 {
		c.registers[index] = value
	}
}

// Memory returns the bound guest memory, for syscalls that need to
// copy guest buffers.
func (c *CPU) Memory() *memory.Memory {
	return c.memory
}

// SpeedMultiplier is the value passed into the most recent Sync call,
// readable by the sync syscall so a program can scale its motion by how
// long the last frame took relative to the target frame time.
func (c *CPU) SpeedMultiplier() fixedpoint.F16 {
	return c.speedMultiplier
}

// RequestSync marks the current ecall as a clean yield rather than a
// trap. Called by the sync syscall handler.
func (c *CPU) RequestSync() {
	c.syncRequested = true
}

// Error returns the trap message recorded by the last Sync call that
// did not complete with a clean yield, or "" if the last Sync call
// yielded cleanly.
func (c *CPU) Error() string {
	return c.trapMessage
}

// Reset validates the program's layout and resets the CPU for a fresh
// run: registers and memory are cleared, the program counter is set
// to the entrypoint, and the stack pointer is set to the top of
// memory.
func (c *CPU) Reset(entrypoint, memoryOffset, programSize uint32) bool {
	if programSize > memory.Size {
		return false
	}

	c.memory.Reset()
	c.registers = [32]int32{}

	c.currentInstruction = 0
	c.syncRequested = false
	c.speedMultiplier = 0
	c.d = decoded{}
	c.trapMessage = ""

	c.memory.SetProgramMemoryOffset(memoryOffset)
	c.programSize = programSize
	c.entrypoint = entrypoint

	translated, ok := c.memory.Check(int64(entrypoint), 4)
	if !ok {
		return false
	}
	c.pc = translated
	c.pcAtFetch = c.pc

	c.SetX(SP, memory.Size)

	return true
}

// Sync runs instructions until the program yields cooperatively
// (returns true, clean sync) or traps (returns false; call Error for
// the reason). speedMultiplier is handed to the guest via the sync
// syscall and otherwise unused by the interpreter itself.
func (c *CPU) Sync(speedMultiplier fixedpoint.F16) bool {
	locked := false
	startMicros := c.clock.NowMicros()
	instructionCount := 0

	for {
		if c.pc > c.programSize-4 {
			c.trapMessage = fmt.Sprintf("invalid pc: %d", c.pc)
			return false
		}

		c.pcAtFetch = c.pc
		c.speedMultiplier = speedMultiplier
		c.currentInstruction = c.memory.Read32(c.pc)
		opcode := c.currentInstruction & 0x7F

		c.pc += 4
		instructionCount++

		c.syncRequested = false

		if !opcodeTable[int(opcode)](c) {
			if c.syncRequested {
				c.trapMessage = ""
				return true
			}

			switch {
			case !opcodeKnown[int(opcode)]:
				c.trapMessage = fmt.Sprintf("invalid opcode: %d", opcode)
			case opcode == 0b1110011 && (c.currentInstruction>>12)&0x7 == 0 && (c.currentInstruction>>20) == 0:
				c.trapMessage = fmt.Sprintf("invalid syscall: %d", c.X(A7))
			default:
				c.trapMessage = "instruction error"
			}
			return false
		}

		if c.pc == c.pcAtFetch {
			if locked {
				c.trapMessage = "program locked"
				return false
			}
			locked = true
		} else {
			locked = false
		}

		if instructionCount >= instructionBudget {
			if c.clock.NowMicros()-startMicros > maxSyncTimeMicros {
				c.trapMessage = "sync timeout"
				return false
			}
		}
	}
}

func (c *CPU) dispatchSyscall() bool {
	number := uint32(c.X(A7))
	if number >= MaxSyscalls {
		return false
	}
	return c.syscalls[number](c)
}

func signExtend(value int32, bits int32) int32 {
	if (value >> (bits - 1)) == 1 {
		return value | int32(uint32(0xFFFFFFFF)<<uint(bits))
	}
	return value
}
