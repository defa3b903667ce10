package ir

import "fmt"

// Reg is an A32 core register.
type Reg uint8

// A32 core registers.
const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
)

// String returns the conventional register name.
func (r Reg) String() string {
	switch r {
	case SP:
		return "sp"
	case LR:
		return "lr"
	case PC:
		return "pc"
	}
	return fmt.Sprintf("r%d", uint8(r))
}

// ExtReg is an A32 extended (VFP/NEON) register: S0-S31, D0-D31,
// then Q0-Q15.
type ExtReg uint8

// Extended register banks.
const (
	S0 ExtReg = iota
	s31ExtReg = S0 + 31
	D0        = s31ExtReg + 1
	Q0        = D0 + 32
)

// IsSingle reports whether the register is one of S0-S31.
func (r ExtReg) IsSingle() bool { return r <= s31ExtReg }

// IsDouble reports whether the register is one of D0-D31.
func (r ExtReg) IsDouble() bool { return r >= D0 && r < Q0 }

// IsQuad reports whether the register is one of Q0-Q15.
func (r ExtReg) IsQuad() bool { return r >= Q0 && r <= Q0+15 }

// String returns the conventional register name.
func (r ExtReg) String() string {
	switch {
	case r.IsSingle():
		return fmt.Sprintf("s%d", uint8(r))
	case r.IsDouble():
		return fmt.Sprintf("d%d", uint8(r-D0))
	}
	return fmt.Sprintf("q%d", uint8(r-Q0))
}

// CoprocReg is a coprocessor register number c0-c15.
type CoprocReg uint8

// CoprocessorInfo is the structured immediate carried by coprocessor
// opcodes.
type CoprocessorInfo struct {
	Num          uint8
	Two          bool
	Opc1         uint8
	CRd          CoprocReg
	CRn          CoprocReg
	CRm          CoprocReg
	Opc2         uint8
	LongTransfer bool
	HasOption    bool
	Option       uint8
}

// Exception identifies an A32 exceptional condition reported through
// ExceptionRaised.
type Exception uint8

// Exception kinds.
const (
	ExceptionUndefinedInstruction Exception = iota
	ExceptionBreakpoint
	ExceptionUnpredictableInstruction
)

// LocationDescriptor pins the guest context an IR block is emitted
// for: the PC and the CPSR bits that change decode or memory
// semantics.
type LocationDescriptor struct {
	PC    uint32
	TFlag bool // Thumb mode
	EFlag bool // big-endian data
}

// A32Emitter is the IR constructor façade used by the A32 front end.
type A32Emitter struct {
	Emitter
	Location LocationDescriptor
}

// NewA32Emitter creates an emitter for a block starting at the given
// guest location.
func NewA32Emitter(loc LocationDescriptor) *A32Emitter {
	return &A32Emitter{
		Emitter:  Emitter{Block: NewBlock()},
		Location: loc,
	}
}

// PC returns the value the guest observes when reading the program
// counter: current + 4 in Thumb mode, current + 8 in ARM mode.
func (e *A32Emitter) PC() uint32 {
	offset := uint32(8)
	if e.Location.TFlag {
		offset = 4
	}
	return e.Location.PC + offset
}

// AlignPC returns the observed PC rounded down to the given alignment.
func (e *A32Emitter) AlignPC(alignment uint32) uint32 {
	pc := e.PC()
	return pc - pc%alignment
}

// GetRegister reads a core register. Reads of PC fold to the
// architecturally observed immediate.
func (e *A32Emitter) GetRegister(reg Reg) Value {
	if reg == PC {
		return Imm32(e.PC())
	}
	return e.inst(OpA32GetRegister, RegRef(reg))
}

// SetRegister writes a core register. PC must be written through one
// of the WritePC operations.
func (e *A32Emitter) SetRegister(reg Reg, value Value) {
	if reg == PC {
		panic("ir: SetRegister may not write the PC")
	}
	e.instVoid(OpA32SetRegister, RegRef(reg), value)
}

// GetExtendedRegister reads a VFP register: U32 for S registers, U64
// for D registers.
func (e *A32Emitter) GetExtendedRegister(reg ExtReg) Value {
	switch {
	case reg.IsSingle():
		return e.inst(OpA32GetExtendedRegister32, ExtRegRef(reg))
	case reg.IsDouble():
		return e.inst(OpA32GetExtendedRegister64, ExtRegRef(reg))
	}
	panic("ir: invalid extended register")
}

// GetVector reads a NEON quad register as a 128-bit vector.
func (e *A32Emitter) GetVector(reg ExtReg) Value {
	if !reg.IsQuad() {
		panic("ir: GetVector requires a quad register")
	}
	return e.inst(OpA32GetVector, ExtRegRef(reg))
}

// SetVector writes a NEON quad register from a 128-bit vector.
func (e *A32Emitter) SetVector(reg ExtReg, value Value) {
	if !reg.IsQuad() {
		panic("ir: SetVector requires a quad register")
	}
	e.instVoid(OpA32SetVector, ExtRegRef(reg), value)
}

// SetExtendedRegister writes a VFP register.
func (e *A32Emitter) SetExtendedRegister(reg ExtReg, value Value) {
	switch {
	case reg.IsSingle():
		e.instVoid(OpA32SetExtendedRegister32, ExtRegRef(reg), value)
	case reg.IsDouble():
		e.instVoid(OpA32SetExtendedRegister64, ExtRegRef(reg), value)
	default:
		panic("ir: invalid extended register")
	}
}

// ALUWritePC writes a data-processing result to the PC (ARMv6k
// behaviour: same as a branch write).
func (e *A32Emitter) ALUWritePC(value Value) {
	e.BranchWritePC(value)
}

// BranchWritePC writes a branch target to the PC, masking the low
// bits per the current instruction set state.
func (e *A32Emitter) BranchWritePC(value Value) {
	mask := uint32(0xFFFFFFFC)
	if e.Location.TFlag {
		mask = 0xFFFFFFFE
	}
	newPC := e.And32(value, Imm32(mask))
	e.instVoid(OpA32SetRegister, RegRef(PC), newPC)
}

// BXWritePC writes an interworking branch target to the PC.
func (e *A32Emitter) BXWritePC(value Value) {
	e.instVoid(OpA32BXWritePC, value)
}

// LoadWritePC writes a loaded value to the PC (ARMv6k behaviour:
// interworking).
func (e *A32Emitter) LoadWritePC(value Value) {
	e.BXWritePC(value)
}

// CallSupervisor raises a supervisor call with the given immediate.
func (e *A32Emitter) CallSupervisor(value Value) {
	e.instVoid(OpA32CallSupervisor, value)
}

// ExceptionRaised reports an exceptional condition at the current
// location.
func (e *A32Emitter) ExceptionRaised(exception Exception) {
	e.instVoid(OpA32ExceptionRaised, Imm32(e.Location.PC), Imm64(uint64(exception)))
}

// GetCpsr reads the CPSR.
func (e *A32Emitter) GetCpsr() Value {
	return e.inst(OpA32GetCpsr)
}

// SetCpsr writes the whole CPSR.
func (e *A32Emitter) SetCpsr(value Value) {
	e.instVoid(OpA32SetCpsr, value)
}

// SetCpsrNZCV writes the NZCV field of the CPSR.
func (e *A32Emitter) SetCpsrNZCV(value Value) {
	e.instVoid(OpA32SetCpsrNZCV, value)
}

// SetCpsrNZCVQ writes the NZCVQ field of the CPSR.
func (e *A32Emitter) SetCpsrNZCVQ(value Value) {
	e.instVoid(OpA32SetCpsrNZCVQ, value)
}

// GetCFlag reads the carry flag.
func (e *A32Emitter) GetCFlag() Value {
	return e.inst(OpA32GetCFlag)
}

// SetNFlag writes the negative flag.
func (e *A32Emitter) SetNFlag(value Value) { e.instVoid(OpA32SetNFlag, value) }

// SetZFlag writes the zero flag.
func (e *A32Emitter) SetZFlag(value Value) { e.instVoid(OpA32SetZFlag, value) }

// SetCFlag writes the carry flag.
func (e *A32Emitter) SetCFlag(value Value) { e.instVoid(OpA32SetCFlag, value) }

// SetVFlag writes the overflow flag.
func (e *A32Emitter) SetVFlag(value Value) { e.instVoid(OpA32SetVFlag, value) }

// OrQFlag ORs the given bit into the sticky saturation flag.
func (e *A32Emitter) OrQFlag(value Value) { e.instVoid(OpA32OrQFlag, value) }

// GetGEFlags reads the SIMD greater-or-equal flags.
func (e *A32Emitter) GetGEFlags() Value {
	return e.inst(OpA32GetGEFlags)
}

// SetGEFlags writes the SIMD greater-or-equal flags.
func (e *A32Emitter) SetGEFlags(value Value) {
	e.instVoid(OpA32SetGEFlags, value)
}

// SetGEFlagsCompressed writes the GE flags from their packed form.
func (e *A32Emitter) SetGEFlagsCompressed(value Value) {
	e.instVoid(OpA32SetGEFlagsCompressed, value)
}

// GetFpscr reads the FPSCR.
func (e *A32Emitter) GetFpscr() Value {
	return e.inst(OpA32GetFpscr)
}

// SetFpscr writes the FPSCR.
func (e *A32Emitter) SetFpscr(value Value) {
	e.instVoid(OpA32SetFpscr, value)
}

// GetFpscrNZCV reads the FPSCR comparison flags.
func (e *A32Emitter) GetFpscrNZCV() Value {
	return e.inst(OpA32GetFpscrNZCV)
}

// SetFpscrNZCV writes the FPSCR comparison flags.
func (e *A32Emitter) SetFpscrNZCV(value Value) {
	e.instVoid(OpA32SetFpscrNZCV, value)
}

// ClearExclusive clears the exclusive monitor.
func (e *A32Emitter) ClearExclusive() {
	e.instVoid(OpA32ClearExclusive)
}

// SetExclusive marks an exclusive transaction of the given byte size.
func (e *A32Emitter) SetExclusive(vaddr Value, byteSize uint8) {
	switch byteSize {
	case 1, 2, 4, 8, 16:
	default:
		panic("ir: invalid exclusive transaction size")
	}
	e.instVoid(OpA32SetExclusive, vaddr, Imm8(byteSize))
}

// ReadMemory8 reads one byte.
func (e *A32Emitter) ReadMemory8(vaddr Value) Value {
	return e.inst(OpA32ReadMemory8, vaddr)
}

// ReadMemory16 reads a halfword, byte-reversed when the guest is in
// big-endian data mode.
func (e *A32Emitter) ReadMemory16(vaddr Value) Value {
	value := e.inst(OpA32ReadMemory16, vaddr)
	if e.Location.EFlag {
		return e.ByteReverseHalf(value)
	}
	return value
}

// ReadMemory32 reads a word, byte-reversed in big-endian data mode.
func (e *A32Emitter) ReadMemory32(vaddr Value) Value {
	value := e.inst(OpA32ReadMemory32, vaddr)
	if e.Location.EFlag {
		return e.ByteReverseWord(value)
	}
	return value
}

// ReadMemory64 reads a doubleword, byte-reversed in big-endian data
// mode.
func (e *A32Emitter) ReadMemory64(vaddr Value) Value {
	value := e.inst(OpA32ReadMemory64, vaddr)
	if e.Location.EFlag {
		return e.ByteReverseDual(value)
	}
	return value
}

// WriteMemory8 writes one byte.
func (e *A32Emitter) WriteMemory8(vaddr, value Value) {
	e.instVoid(OpA32WriteMemory8, vaddr, value)
}

// WriteMemory16 writes a halfword, byte-reversed in big-endian data
// mode.
func (e *A32Emitter) WriteMemory16(vaddr, value Value) {
	if e.Location.EFlag {
		value = e.ByteReverseHalf(value)
	}
	e.instVoid(OpA32WriteMemory16, vaddr, value)
}

// WriteMemory32 writes a word, byte-reversed in big-endian data mode.
func (e *A32Emitter) WriteMemory32(vaddr, value Value) {
	if e.Location.EFlag {
		value = e.ByteReverseWord(value)
	}
	e.instVoid(OpA32WriteMemory32, vaddr, value)
}

// WriteMemory64 writes a doubleword, byte-reversed in big-endian data
// mode.
func (e *A32Emitter) WriteMemory64(vaddr, value Value) {
	if e.Location.EFlag {
		value = e.ByteReverseDual(value)
	}
	e.instVoid(OpA32WriteMemory64, vaddr, value)
}

// ExclusiveWriteMemory8 performs an exclusive byte store, returning
// the success word.
func (e *A32Emitter) ExclusiveWriteMemory8(vaddr, value Value) Value {
	return e.inst(OpA32ExclusiveWriteMemory8, vaddr, value)
}

// ExclusiveWriteMemory16 performs an exclusive halfword store.
func (e *A32Emitter) ExclusiveWriteMemory16(vaddr, value Value) Value {
	if e.Location.EFlag {
		value = e.ByteReverseHalf(value)
	}
	return e.inst(OpA32ExclusiveWriteMemory16, vaddr, value)
}

// ExclusiveWriteMemory32 performs an exclusive word store.
func (e *A32Emitter) ExclusiveWriteMemory32(vaddr, value Value) Value {
	if e.Location.EFlag {
		value = e.ByteReverseWord(value)
	}
	return e.inst(OpA32ExclusiveWriteMemory32, vaddr, value)
}

// ExclusiveWriteMemory64 performs an exclusive doubleword store from
// two word halves.
func (e *A32Emitter) ExclusiveWriteMemory64(vaddr, valueLo, valueHi Value) Value {
	if e.Location.EFlag {
		valueLo = e.ByteReverseWord(valueLo)
		valueHi = e.ByteReverseWord(valueHi)
	}
	return e.inst(OpA32ExclusiveWriteMemory64, vaddr, valueLo, valueHi)
}

func checkCoprocNum(num uint8) {
	if num > 15 {
		panic("ir: coprocessor number out of range")
	}
}

// CoprocInternalOperation issues a CDP-class operation.
func (e *A32Emitter) CoprocInternalOperation(info CoprocessorInfo) {
	checkCoprocNum(info.Num)
	e.instVoid(OpA32CoprocInternalOperation, CoprocRef(info))
}

// CoprocSendOneWord issues an MCR-class transfer.
func (e *A32Emitter) CoprocSendOneWord(info CoprocessorInfo, word Value) {
	checkCoprocNum(info.Num)
	e.instVoid(OpA32CoprocSendOneWord, CoprocRef(info), word)
}

// CoprocSendTwoWords issues an MCRR-class transfer.
func (e *A32Emitter) CoprocSendTwoWords(info CoprocessorInfo, word1, word2 Value) {
	checkCoprocNum(info.Num)
	e.instVoid(OpA32CoprocSendTwoWords, CoprocRef(info), word1, word2)
}

// CoprocGetOneWord issues an MRC-class transfer.
func (e *A32Emitter) CoprocGetOneWord(info CoprocessorInfo) Value {
	checkCoprocNum(info.Num)
	return e.inst(OpA32CoprocGetOneWord, CoprocRef(info))
}

// CoprocGetTwoWords issues an MRRC-class transfer.
func (e *A32Emitter) CoprocGetTwoWords(info CoprocessorInfo) Value {
	checkCoprocNum(info.Num)
	return e.inst(OpA32CoprocGetTwoWords, CoprocRef(info))
}

// CoprocLoadWords issues an LDC-class transfer.
func (e *A32Emitter) CoprocLoadWords(info CoprocessorInfo, address Value) {
	checkCoprocNum(info.Num)
	e.instVoid(OpA32CoprocLoadWords, CoprocRef(info), address)
}

// CoprocStoreWords issues an STC-class transfer.
func (e *A32Emitter) CoprocStoreWords(info CoprocessorInfo, address Value) {
	checkCoprocNum(info.Num)
	e.instVoid(OpA32CoprocStoreWords, CoprocRef(info), address)
}
