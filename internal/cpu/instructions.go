package cpu

// Instruction field extraction. Each decodeX call refills c.d from the
// most recently fetched word.

func decode(word uint32, start, bits uint32) int32 {
	return int32((word >> start) & ((1 << bits) - 1))
}

func (c *CPU) decodeR() {
	w := c.currentInstruction
	c.d.rd = decode(w, 7, 5)
	c.d.f3 = decode(w, 12, 3)
	c.d.rs1 = decode(w, 15, 5)
	c.d.rs2 = decode(w, 20, 5)
	c.d.f7 = decode(w, 25, 7)
}

func (c *CPU) decodeI() {
	w := c.currentInstruction
	c.d.rd = decode(w, 7, 5)
	c.d.f3 = decode(w, 12, 3)
	c.d.rs1 = decode(w, 15, 5)
	c.d.rs2 = decode(w, 20, 5) // numerically equal to imm[4:0], used as a shift amount by SRLI/SRAI
	c.d.f7 = decode(w, 25, 7)
	c.d.imm = decode(w, 20, 12)
}

func (c *CPU) decodeS() {
	w := c.currentInstruction
	c.d.f3 = decode(w, 12, 3)
	c.d.rs1 = decode(w, 15, 5)
	c.d.rs2 = decode(w, 20, 5)
	c.d.imm = decode(w, 7, 5) | (decode(w, 25, 7) << 5)
}

func (c *CPU) decodeB() {
	w := c.currentInstruction
	c.d.f3 = decode(w, 12, 3)
	c.d.rs1 = decode(w, 15, 5)
	c.d.rs2 = decode(w, 20, 5)
	c.d.imm = (decode(w, 7, 1) << 11) | (decode(w, 8, 4) << 1) | (decode(w, 25, 6) << 5) | (decode(w, 31, 1) << 12)
}

func (c *CPU) decodeU() {
	w := c.currentInstruction
	c.d.rd = decode(w, 7, 5)
	c.d.imm = decode(w, 12, 20) << 12
}

func (c *CPU) decodeJ() {
	w := c.currentInstruction
	c.d.rd = decode(w, 7, 5)
	c.d.imm = (decode(w, 12, 8) << 12) | (decode(w, 20, 1) << 11) | (decode(w, 21, 10) << 1) | (decode(w, 31, 1) << 20)
}

// checkJumpTarget validates a 4-byte-aligned code address and returns
// it already translated, or false if it would fault.
func (c *CPU) checkJumpTarget(addr int32) (uint32, bool) {
	return c.memory.Check(int64(addr), 4)
}

func opInvalid(c *CPU) bool {
	return false
}

func opNop(c *CPU) bool {
	return true
}

func opFence(c *CPU) bool {
	return true
}

// JAL
func opJump(c *CPU) bool {
	c.decodeJ()
	imm := signExtend(c.d.imm, 21)

	target, ok := c.checkJumpTarget(int32(c.pcAtFetch) + imm)
	if !ok {
		return false
	}

	c.SetX(c.d.rd, int32(c.pc))
	c.pc = target
	return true
}

// JALR
func opIndirectJump(c *CPU) bool {
	c.decodeI()
	imm := signExtend(c.d.imm, 12)

	target, ok := c.checkJumpTarget((c.X(c.d.rs1) + imm) &^ 1)
	if !ok {
		return false
	}

	c.SetX(c.d.rd, int32(c.pc))
	c.pc = target
	return true
}

func opImmediate(c *CPU) bool {
	c.decodeI()
	imm := signExtend(c.d.imm, 12)

	switch c.d.f3 {
	case 0b000: // ADDI
		c.SetX(c.d.rd, c.X(c.d.rs1)+imm)
	case 0b001: // SLLI: shift amount is imm[4:0], not the raw 12-bit immediate
		c.SetX(c.d.rd, c.X(c.d.rs1)<<uint32(imm&0x1F))
	case 0b010: // SLTI
		c.SetX(c.d.rd, boolToInt(c.X(c.d.rs1) < imm))
	case 0b011: // SLTIU
		c.SetX(c.d.rd, boolToInt(uint32(c.X(c.d.rs1)) < uint32(imm)))
	case 0b100: // XORI
		c.SetX(c.d.rd, c.X(c.d.rs1)^imm)
	case 0b101:
		switch c.d.f7 {
		case 0b0000000: // SRLI
			c.SetX(c.d.rd, int32(uint32(c.X(c.d.rs1))>>uint32(c.d.rs2)))
		case 0b0100000: // SRAI
			c.SetX(c.d.rd, arithmeticShiftRight(c.X(c.d.rs1), c.d.rs2&0x1F))
		default:
			return false
		}
	case 0b110: // ORI
		c.SetX(c.d.rd, c.X(c.d.rs1)|imm)
	case 0b111: // ANDI
		c.SetX(c.d.rd, c.X(c.d.rs1)&imm)
	default:
		return false
	}

	return true
}

func opRegister(c *CPU) bool {
	c.decodeR()

	switch c.d.f3 {
	case 0b000:
		switch c.d.f7 {
		case 0b0000000: // ADD
			c.SetX(c.d.rd, c.X(c.d.rs1)+c.X(c.d.rs2))
		case 0b0000001: // MUL
			c.SetX(c.d.rd, c.X(c.d.rs1)*c.X(c.d.rs2))
		case 0b0100000: // SUB
			c.SetX(c.d.rd, c.X(c.d.rs1)-c.X(c.d.rs2))
		default:
			return false
		}
	case 0b001:
		switch c.d.f7 {
		case 0b0000000: // SLL
			c.SetX(c.d.rd, c.X(c.d.rs1)<<uint32(c.X(c.d.rs2)&0x1F))
		case 0b0000001: // MULH
			c.SetX(c.d.rd, int32((int64(c.X(c.d.rs1))*int64(c.X(c.d.rs2)))>>32))
		default:
			return false
		}
	case 0b010:
		switch c.d.f7 {
		case 0b0000000: // SLT
			c.SetX(c.d.rd, boolToInt(c.X(c.d.rs1) < c.X(c.d.rs2)))
		case 0b0000001: // MULHSU
			rs1 := int64(c.X(c.d.rs1))
			rs2 := uint64(uint32(c.X(c.d.rs2)))
			c.SetX(c.d.rd, int32((rs1*int64(rs2))>>32))
		default:
			return false
		}
	case 0b011:
		switch c.d.f7 {
		case 0b0000000: // SLTU
			c.SetX(c.d.rd, boolToInt(uint32(c.X(c.d.rs1)) < uint32(c.X(c.d.rs2))))
		case 0b0000001: // MULHU
			rs1 := uint64(uint32(c.X(c.d.rs1)))
			rs2 := uint64(uint32(c.X(c.d.rs2)))
			c.SetX(c.d.rd, int32((rs1*rs2)>>32))
		default:
			return false
		}
	case 0b100:
		switch c.d.f7 {
		case 0b0000000: // XOR
			c.SetX(c.d.rd, c.X(c.d.rs1)^c.X(c.d.rs2))
		case 0b0000001: // DIV
			rs1, rs2 := c.X(c.d.rs1), c.X(c.d.rs2)
			switch {
			case rs2 == 0:
				c.SetX(c.d.rd, -1)
			case rs1 == -0x80000000 && rs2 == -1:
				c.SetX(c.d.rd, -0x80000000)
			default:
				c.SetX(c.d.rd, rs1/rs2)
			}
		default:
			return false
		}
	case 0b101:
		switch c.d.f7 {
		case 0b0000000: // SRL
			c.SetX(c.d.rd, int32(uint32(c.X(c.d.rs1))>>uint32(c.X(c.d.rs2)&0x1F)))
		case 0b0000001: // DIVU
			rs1, rs2 := uint32(c.X(c.d.rs1)), uint32(c.X(c.d.rs2))
			if rs2 == 0 {
				c.SetX(c.d.rd, -1) // 0xFFFFFFFF
			} else {
				c.SetX(c.d.rd, int32(rs1/rs2))
			}
		case 0b0100000: // SRA
			c.SetX(c.d.rd, arithmeticShiftRight(c.X(c.d.rs1), c.X(c.d.rs2)&0x1F))
		default:
			return false
		}
	case 0b110:
		switch c.d.f7 {
		case 0b0000000: // OR
			c.SetX(c.d.rd, c.X(c.d.rs1)|c.X(c.d.rs2))
		case 0b0000001: // REM
			rs1, rs2 := c.X(c.d.rs1), c.X(c.d.rs2)
			switch {
			case rs2 == 0:
				c.SetX(c.d.rd, rs1)
			case rs1 == -0x80000000 && rs2 == -1:
				c.SetX(c.d.rd, 0)
			default:
				c.SetX(c.d.rd, rs1%rs2)
			}
		default:
			return false
		}
	case 0b111:
		switch c.d.f7 {
		case 0b0000000: // AND
			c.SetX(c.d.rd, c.X(c.d.rs1)&c.X(c.d.rs2))
		case 0b0000001: // REMU
			rs1, rs2 := uint32(c.X(c.d.rs1)), uint32(c.X(c.d.rs2))
			if rs2 == 0 {
				c.SetX(c.d.rd, int32(rs1))
			} else {
				c.SetX(c.d.rd, int32(rs1%rs2))
			}
		default:
			return false
		}
	default:
		return false
	}

	return true
}

func opAUIPC(c *CPU) bool {
	c.decodeU()
	c.SetX(c.d.rd, int32(c.pcAtFetch)+c.d.imm)
	return true
}

func opLUI(c *CPU) bool {
	c.decodeU()
	c.SetX(c.d.rd, c.d.imm)
	return true
}

// opSystem handles ECALL and the CSR/privileged opcodes. ECALL
// dispatches a syscall; the CSR instructions, SRET and MRET are accepted
// as no-ops; EBREAK and any other encoding trap.
func opSystem(c *CPU) bool {
	c.decodeI()

	if c.d.f3 == 0b000 {
		switch c.d.imm {
		case 0b0: // ECALL
			return c.dispatchSyscall()
		case 0b1: // EBREAK
			return false
		case 0b000100000010, 0b001100000010: // SRET, MRET
			return true
		default:
			return false
		}
	}

	switch c.d.f3 {
	case 0b001, 0b010, 0b011, 0b101, 0b110, 0b111: // CSRRW/CSRRS/CSRRC/CSRRWI/CSRRSI/CSRRCI
		return true
	default:
		return false
	}
}

func opBranch(c *CPU) bool {
	c.decodeB()
	imm := signExtend(c.d.imm, 13)

	target, ok := c.checkJumpTarget(int32(c.pcAtFetch) + imm)
	if !ok {
		return false
	}

	taken := false
	switch c.d.f3 {
	case 0b000: // BEQ
		taken = c.X(c.d.rs1) == c.X(c.d.rs2)
	case 0b001: // BNE
		taken = c.X(c.d.rs1) != c.X(c.d.rs2)
	case 0b100: // BLT
		taken = c.X(c.d.rs1) < c.X(c.d.rs2)
	case 0b101: // BGE
		taken = c.X(c.d.rs1) >= c.X(c.d.rs2)
	case 0b110: // BLTU
		taken = uint32(c.X(c.d.rs1)) < uint32(c.X(c.d.rs2))
	case 0b111: // BGEU
		taken = uint32(c.X(c.d.rs1)) >= uint32(c.X(c.d.rs2))
	default:
		return false
	}

	if taken {
		c.pc = target
	}
	return true
}

func opLoad(c *CPU) bool {
	c.decodeI()
	imm := signExtend(c.d.imm, 12)

	address := c.X(c.d.rs1) + imm

	switch c.d.f3 {
	case 0b000: // LB
		addr, ok := c.memory.CheckBytes(int64(address), 1)
		if !ok {
			return false
		}
		c.SetX(c.d.rd, signExtend(int32(c.memory.Read8(addr)), 8))
	case 0b001: // LH
		addr, ok := c.memory.CheckBytes(int64(address), 2)
		if !ok {
			return false
		}
		c.SetX(c.d.rd, signExtend(int32(c.memory.Read16(addr)), 16))
	case 0b010: // LW
		addr, ok := c.memory.CheckBytes(int64(address), 4)
		if !ok {
			return false
		}
		c.SetX(c.d.rd, int32(c.memory.Read32(addr)))
	case 0b100: // LBU
		addr, ok := c.memory.CheckBytes(int64(address), 1)
		if !ok {
			return false
		}
		c.SetX(c.d.rd, int32(c.memory.Read8(addr)))
	case 0b101: // LHU
		addr, ok := c.memory.CheckBytes(int64(address), 2)
		if !ok {
			return false
		}
		c.SetX(c.d.rd, int32(c.memory.Read16(addr)))
	default:
		return false
	}

	return true
}

func opStore(c *CPU) bool {
	c.decodeS()
	imm := signExtend(c.d.imm, 12)

	address := c.X(c.d.rs1) + imm
	value := c.X(c.d.rs2)

	switch c.d.f3 {
	case 0b000: // SB
		addr, ok := c.memory.CheckBytes(int64(address), 1)
		if !ok {
			return false
		}
		c.memory.Write8(addr, uint8(value))
	case 0b001: // SH
		addr, ok := c.memory.CheckBytes(int64(address), 2)
		if !ok {
			return false
		}
		c.memory.Write16(addr, uint16(value))
	case 0b010: // SW
		addr, ok := c.memory.CheckBytes(int64(address), 4)
		if !ok {
			return false
		}
		c.memory.Write32(addr, uint32(value))
	default:
		return false
	}

	return true
}

func boolToInt(v bool) int32 {
	if v {
		return 1
	}
	return 0
}

func arithmeticShiftRight(value, shiftAmount int32) int32 {
	if shiftAmount <= 0 {
		return value
	}
	if value>>31 != 0 {
		return (value >> uint32(shiftAmount)) | int32(uint32(0xFFFFFFFF)<<uint32(32-shiftAmount))
	}
	return value >> uint32(shiftAmount)
}

// opcodeTable dispatches on the low 7 bits of the instruction word, the
// same layout as the RV32 base opcode map.
var opcodeTable = [128]func(*CPU) bool{
	0b0000000: opNop,
	0b0000011: opLoad,
	0b0001111: opFence,
	0b0010011: opImmediate,
	0b0010111: opAUIPC,
	0b0100011: opStore,
	0b0110011: opRegister,
	0b0110111: opLUI,
	0b1100011: opBranch,
	0b1100111: opIndirectJump,
	0b1101111: opJump,
	0b1110011: opSystem,
}

// opcodeKnown distinguishes an unmapped opcode ("invalid opcode" trap)
// from a handler that recognized its opcode but rejected the rest of
// the encoding ("instruction error").
var opcodeKnown [128]bool

func init() {
	for i := range opcodeTable {
		if opcodeTable[i] == nil {
			opcodeTable[i] = opInvalid
		} else {
			opcodeKnown[i] = true
		}
	}
}
