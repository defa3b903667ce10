package ir

// Emitter appends instructions to a block. Every constructor appends
// exactly one instruction and returns its result value, if any.
type Emitter struct {
	Block *Block
}

// NewEmitter creates an emitter over a fresh block.
func NewEmitter() *Emitter {
	return &Emitter{Block: NewBlock()}
}

func (e *Emitter) inst(op Opcode, args ...Value) Value {
	return e.Block.Append(op, args...).Result()
}

func (e *Emitter) instVoid(op Opcode, args ...Value) {
	e.Block.Append(op, args...)
}

// And32 computes the bitwise AND of two 32-bit values.
func (e *Emitter) And32(a, b Value) Value {
	return e.inst(OpAnd32, a, b)
}

// ByteReverseWord reverses the bytes of a 32-bit value.
func (e *Emitter) ByteReverseWord(v Value) Value {
	return e.inst(OpByteReverseWord, v)
}

// ByteReverseHalf reverses the bytes of a 16-bit value.
func (e *Emitter) ByteReverseHalf(v Value) Value {
	return e.inst(OpByteReverseHalf, v)
}

// ByteReverseDual reverses the bytes of a 64-bit value.
func (e *Emitter) ByteReverseDual(v Value) Value {
	return e.inst(OpByteReverseDual, v)
}

// Vector floating-point constructors. fsize selects between four f32
// lanes (32) and two f64 lanes (64); mismatched sizes are programmer
// errors and panic inside the opcode chooser.

func chooseOnFsize(fsize int, op32, op64 Opcode) Opcode {
	switch fsize {
	case 32:
		return op32
	case 64:
		return op64
	}
	panic("ir: fsize must be 32 or 64")
}

// FPVectorAbs clears each lane's sign bit. esize may also be 16 for
// the raw half-precision form.
func (e *Emitter) FPVectorAbs(esize int, a Value) Value {
	switch esize {
	case 16:
		return e.inst(OpFPVectorAbs16, a)
	case 32:
		return e.inst(OpFPVectorAbs32, a)
	case 64:
		return e.inst(OpFPVectorAbs64, a)
	}
	panic("ir: esize must be 16, 32 or 64")
}

// FPVectorNeg flips each lane's sign bit.
func (e *Emitter) FPVectorNeg(esize int, a Value) Value {
	switch esize {
	case 16:
		return e.inst(OpFPVectorNeg16, a)
	case 32:
		return e.inst(OpFPVectorNeg32, a)
	case 64:
		return e.inst(OpFPVectorNeg64, a)
	}
	panic("ir: esize must be 16, 32 or 64")
}

// FPVectorAdd adds lanes pairwise.
func (e *Emitter) FPVectorAdd(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorAdd32, OpFPVectorAdd64), a, b)
}

// FPVectorSub subtracts lanes pairwise.
func (e *Emitter) FPVectorSub(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorSub32, OpFPVectorSub64), a, b)
}

// FPVectorMul multiplies lanes pairwise.
func (e *Emitter) FPVectorMul(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorMul32, OpFPVectorMul64), a, b)
}

// FPVectorDiv divides lanes pairwise.
func (e *Emitter) FPVectorDiv(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorDiv32, OpFPVectorDiv64), a, b)
}

// FPVectorEqual produces an all-ones lane mask where a equals b.
func (e *Emitter) FPVectorEqual(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorEqual32, OpFPVectorEqual64), a, b)
}

// FPVectorGreater produces an all-ones lane mask where a > b.
func (e *Emitter) FPVectorGreater(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorGreater32, OpFPVectorGreater64), a, b)
}

// FPVectorGreaterEqual produces an all-ones lane mask where a >= b.
func (e *Emitter) FPVectorGreaterEqual(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorGreaterEqual32, OpFPVectorGreaterEqual64), a, b)
}

// FPVectorMax selects the larger lane under ARM max semantics.
func (e *Emitter) FPVectorMax(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorMax32, OpFPVectorMax64), a, b)
}

// FPVectorMin selects the smaller lane under ARM min semantics.
func (e *Emitter) FPVectorMin(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorMin32, OpFPVectorMin64), a, b)
}

// FPVectorPairedAdd adds adjacent lane pairs across both operands.
func (e *Emitter) FPVectorPairedAdd(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorPairedAdd32, OpFPVectorPairedAdd64), a, b)
}

// FPVectorPairedAddLower adds adjacent pairs of the lower halves.
func (e *Emitter) FPVectorPairedAddLower(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorPairedAddLower32, OpFPVectorPairedAddLower64), a, b)
}

// FPVectorMulAdd computes addend + a*b per lane with a single
// rounding.
func (e *Emitter) FPVectorMulAdd(fsize int, addend, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorMulAdd32, OpFPVectorMulAdd64), addend, a, b)
}

// FPVectorRecipEstimate computes the ARM reciprocal seed per lane.
func (e *Emitter) FPVectorRecipEstimate(fsize int, a Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorRecipEstimate32, OpFPVectorRecipEstimate64), a)
}

// FPVectorRecipStepFused computes 2 - a*b per lane, fused.
func (e *Emitter) FPVectorRecipStepFused(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorRecipStepFused32, OpFPVectorRecipStepFused64), a, b)
}

// FPVectorRoundInt rounds each lane to an integral value under the
// given mode; exact raises IXC on any inexact lane.
func (e *Emitter) FPVectorRoundInt(fsize int, a Value, rounding uint8, exact bool) Value {
	op := chooseOnFsize(fsize, OpFPVectorRoundInt32, OpFPVectorRoundInt64)
	return e.inst(op, a, Imm8(rounding), Imm1(exact))
}

// FPVectorRSqrtEstimate computes the reciprocal-square-root seed.
func (e *Emitter) FPVectorRSqrtEstimate(fsize int, a Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorRSqrtEstimate32, OpFPVectorRSqrtEstimate64), a)
}

// FPVectorRSqrtStepFused computes (3 - a*b)/2 per lane, fused.
func (e *Emitter) FPVectorRSqrtStepFused(fsize int, a, b Value) Value {
	return e.inst(chooseOnFsize(fsize, OpFPVectorRSqrtStepFused32, OpFPVectorRSqrtStepFused64), a, b)
}

// FPVectorS32ToSingle converts packed signed 32-bit integers.
func (e *Emitter) FPVectorS32ToSingle(a Value) Value {
	return e.inst(OpFPVectorS32ToSingle, a)
}

// FPVectorS64ToDouble converts packed signed 64-bit integers.
func (e *Emitter) FPVectorS64ToDouble(a Value) Value {
	return e.inst(OpFPVectorS64ToDouble, a)
}

// FPVectorU32ToSingle converts packed unsigned 32-bit integers.
func (e *Emitter) FPVectorU32ToSingle(a Value) Value {
	return e.inst(OpFPVectorU32ToSingle, a)
}

// FPVectorU64ToDouble converts packed unsigned 64-bit integers.
func (e *Emitter) FPVectorU64ToDouble(a Value) Value {
	return e.inst(OpFPVectorU64ToDouble, a)
}

// FPVectorToSignedFixed converts lanes to signed fixed-point with
// fbits fraction bits under the given rounding mode.
func (e *Emitter) FPVectorToSignedFixed(fsize int, a Value, fbits, rounding uint8) Value {
	op := chooseOnFsize(fsize, OpFPVectorToSignedFixed32, OpFPVectorToSignedFixed64)
	return e.inst(op, a, Imm8(fbits), Imm8(rounding))
}

// FPVectorToUnsignedFixed converts lanes to unsigned fixed-point with
// fbits fraction bits under the given rounding mode.
func (e *Emitter) FPVectorToUnsignedFixed(fsize int, a Value, fbits, rounding uint8) Value {
	op := chooseOnFsize(fsize, OpFPVectorToUnsignedFixed32, OpFPVectorToUnsignedFixed64)
	return e.inst(op, a, Imm8(fbits), Imm8(rounding))
}
