package cpu

import (
	"encoding/binary"
	"testing"

	"portatil/internal/memory"
)

// fakeClock lets tests control wall-clock time deterministically.
type fakeClock struct {
	micros int64
}

func (f *fakeClock) NowMicros() int64 { return f.micros }

func newTestCPU(t *testing.T) (*CPU, *memory.Memory, *fakeClock) {
	t.Helper()
	mem := memory.New()
	clock := &fakeClock{}
	c := New(mem, clock)
	if !c.Reset(0, 0, memory.Size) {
		t.Fatalf("Reset failed")
	}
	return c, mem, clock
}

// encodeI encodes an I-type instruction.
func encodeI(opcode, rd, f3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xFFF)<<20 | rs1<<15 | f3<<12 | rd<<7 | opcode
}

func encodeR(opcode, rd, f3, rs1, rs2, f7 uint32) uint32 {
	return f7<<25 | rs2<<20 | rs1<<15 | f3<<12 | rd<<7 | opcode
}

func loadProgram(mem *memory.Memory, words []uint32) {
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	mem.LoadBytes(buf)
}

// ecall() encoded as a bare ECALL instruction (opcode SYSTEM, f3=0, imm=0).
func ecall() uint32 { return encodeI(0b1110011, 0, 0, 0, 0) }

func TestArithmeticSmoke(t *testing.T) {
	c, mem, _ := newTestCPU(t)

	// addi a0, zero, 7
	// addi a1, zero, 35
	// add  a2, a0, a1
	// addi a7, zero, 2
	// ecall (sync, so Sync returns cleanly through the yield path)
	program := []uint32{
		encodeI(0b0010011, A0, 0b000, Zero, 7),
		encodeI(0b0010011, A1, 0b000, Zero, 35),
		encodeR(0b0110011, A2, 0b000, A0, A1, 0b0000000),
		encodeI(0b0010011, A7, 0b000, Zero, 2),
		ecall(),
	}
	loadProgram(mem, program)
	c.programSize = uint32(len(program) * 4)

	c.SetSyscall(2, func(c *CPU) bool { // sync
		c.RequestSync()
		return false
	})

	ok := c.Sync(0)
	if !ok {
		t.Fatalf("Sync trapped unexpectedly: %s", c.Error())
	}
	if got := c.X(A2); got != 42 {
		t.Fatalf("a2 = %d, want 42", got)
	}
}

func TestSLLIShiftsByLow5Bits(t *testing.T) {
	c, mem, _ := newTestCPU(t)

	// addi a0,zero,1; slli a0,a0,35 (imm[4:0] = 3); addi a7,zero,2; ecall
	program := []uint32{
		encodeI(0b0010011, A0, 0b000, Zero, 1),
		encodeI(0b0010011, A0, 0b001, A0, 35),
		encodeI(0b0010011, A7, 0b000, Zero, 2),
		ecall(),
	}
	loadProgram(mem, program)
	c.programSize = uint32(len(program) * 4)
	c.SetSyscall(2, func(c *CPU) bool { c.RequestSync(); return false })

	if !c.Sync(0) {
		t.Fatalf("Sync trapped: %s", c.Error())
	}
	if got := c.X(A0); got != 8 {
		t.Fatalf("a0 = %d, want 8", got)
	}
}

func TestDivisionCornerCases(t *testing.T) {
	cases := []struct {
		name       string
		f3, f7     uint32
		a, b, want int32
	}{
		{"DIV by zero", 0b100, 0b0000001, 5, 0, -1},
		{"DIV overflow", 0b100, 0b0000001, -0x80000000, -1, -0x80000000},
		{"DIVU by zero", 0b101, 0b0000001, 5, 0, -1},
		{"REM by zero", 0b110, 0b0000001, 5, 0, 5},
		{"REM overflow", 0b110, 0b0000001, -0x80000000, -1, 0},
		{"REMU by zero", 0b111, 0b0000001, 5, 0, 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, mem, _ := newTestCPU(t)
			// Operands go straight into registers: an ADDI immediate is
			// only 12 bits and cannot carry INT_MIN.
			program := []uint32{
				encodeR(0b0110011, A2, tc.f3, A0, A1, tc.f7),
				ecall(),
			}
			loadProgram(mem, program)
			c.programSize = uint32(len(program) * 4)
			c.SetX(A0, tc.a)
			c.SetX(A1, tc.b)
			c.SetX(A7, 2)
			c.SetSyscall(2, func(c *CPU) bool { c.RequestSync(); return false })

			if !c.Sync(0) {
				t.Fatalf("Sync trapped: %s", c.Error())
			}
			if got := c.X(A2); got != tc.want {
				t.Fatalf("%s: a2 = %d, want %d", tc.name, got, tc.want)
			}
		})
	}
}

func TestSyncLoopYieldsOnSyscall(t *testing.T) {
	c, mem, _ := newTestCPU(t)
	program := []uint32{ecall()}
	loadProgram(mem, program)
	c.programSize = uint32(len(program) * 4)
	c.SetX(A7, 2)

	syncCalls := 0
	c.SetSyscall(2, func(c *CPU) bool {
		syncCalls++
		c.RequestSync()
		return false
	})

	for i := 0; i < 3; i++ {
		c.pc = 0 // guest loops back to the same ecall every frame
		if !c.Sync(0) {
			t.Fatalf("Sync trapped: %s", c.Error())
		}
	}
	if syncCalls != 3 {
		t.Fatalf("syncCalls = %d, want 3", syncCalls)
	}
}

func TestInvalidOpcodeTraps(t *testing.T) {
	c, mem, _ := newTestCPU(t)
	// opcode 0b1111111 is unmapped.
	program := []uint32{0b1111111}
	loadProgram(mem, program)
	c.programSize = uint32(len(program) * 4)

	if c.Sync(0) {
		t.Fatalf("Sync should have trapped on an invalid opcode")
	}
	if got, want := c.Error(), "invalid opcode: 127"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestInvalidSyscallTraps(t *testing.T) {
	c, mem, _ := newTestCPU(t)
	program := []uint32{
		encodeI(0b0010011, A7, 0b000, Zero, 250), // addi a7, zero, 250 (unmapped syscall)
		ecall(),
	}
	loadProgram(mem, program)
	c.programSize = uint32(len(program) * 4)

	if c.Sync(0) {
		t.Fatalf("Sync should have trapped on an invalid syscall")
	}
	if got, want := c.Error(), "invalid syscall: 250"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestInvalidPCTraps(t *testing.T) {
	c, mem, _ := newTestCPU(t)
	loadProgram(mem, []uint32{ecall()})
	c.programSize = 4
	c.pc = 8 // past the end of the (tiny) program

	if c.Sync(0) {
		t.Fatalf("Sync should have trapped on an invalid pc")
	}
	if got, want := c.Error(), "invalid pc: 8"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestLockedProgramTraps(t *testing.T) {
	c, mem, _ := newTestCPU(t)
	// jal zero, 0: jumps to itself forever, never advancing pc.
	program := []uint32{encodeJJump(0, 0)}
	loadProgram(mem, program)
	c.programSize = uint32(len(program) * 4)

	if c.Sync(0) {
		t.Fatalf("Sync should have trapped on a locked program")
	}
	if got, want := c.Error(), "program locked"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestSyncTimeout(t *testing.T) {
	c, mem, clock := newTestCPU(t)
	// A two-instruction loop: addi zero,zero,0 ; jal zero,-4 (back to start).
	program := []uint32{
		encodeI(0b0010011, Zero, 0b000, Zero, 0),
		encodeJJump(0, -4),
	}
	loadProgram(mem, program)
	c.programSize = uint32(len(program) * 4)

	clock.micros = 0
	// Advance the clock past the timeout the moment Sync checks it, by
	// making NowMicros jump forward after the budget is exhausted.
	calls := 0
	c.clock = clockFunc(func() int64 {
		calls++
		if calls > 1 {
			return maxSyncTimeMicros + 1
		}
		return 0
	})

	if c.Sync(0) {
		t.Fatalf("Sync should have timed out")
	}
	if got, want := c.Error(), "sync timeout"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

type clockFunc func() int64

func (f clockFunc) NowMicros() int64 { return f() }

// encodeJJump encodes a JAL instruction with the given destination
// register and byte offset from the instruction's own address.
func encodeJJump(rd uint32, offset int32) uint32 {
	imm := uint32(offset)
	bit20 := (imm >> 20) & 1
	bits10_1 := (imm >> 1) & 0x3FF
	bit11 := (imm >> 11) & 1
	bits19_12 := (imm >> 12) & 0xFF
	return bit20<<31 | bits10_1<<21 | bit11<<20 | bits19_12<<12 | rd<<7 | 0b1101111
}
