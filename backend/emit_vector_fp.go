package backend

import (
	"fmt"

	"github.com/sarchlab/a32jit/fp"
	"github.com/sarchlab/a32jit/ir"
	"github.com/sarchlab/a32jit/x64"
)

// EmitInst lowers one vector floating-point instruction. Opcodes
// outside this back end's subset are contract violations.
func EmitInst(ctx *EmitContext, inst *ir.Inst) {
	switch inst.Op() {
	case ir.OpFPVectorAbs16:
		emitFPVectorAbs16(ctx, inst)
	case ir.OpFPVectorAbs32:
		emitFPVectorAbs32(ctx, inst)
	case ir.OpFPVectorAbs64:
		emitFPVectorAbs64(ctx, inst)
	case ir.OpFPVectorNeg16:
		emitFPVectorNeg(ctx, inst, 0x8000800080008000)
	case ir.OpFPVectorNeg32:
		emitFPVectorNeg(ctx, inst, 0x8000000080000000)
	case ir.OpFPVectorNeg64:
		emitFPVectorNeg(ctx, inst, 0x8000000000000000)
	case ir.OpFPVectorAdd32:
		emitThreeOpVectorOperation(ctx, inst, fc32, fc32.addp, nanHandler32Default)
	case ir.OpFPVectorAdd64:
		emitThreeOpVectorOperation(ctx, inst, fc64, fc64.addp, nanHandler64Default)
	case ir.OpFPVectorSub32:
		emitThreeOpVectorOperation(ctx, inst, fc32, fc32.subp, nanHandler32Default)
	case ir.OpFPVectorSub64:
		emitThreeOpVectorOperation(ctx, inst, fc64, fc64.subp, nanHandler64Default)
	case ir.OpFPVectorMul32:
		emitThreeOpVectorOperation(ctx, inst, fc32, fc32.mulp, nanHandler32Default)
	case ir.OpFPVectorMul64:
		emitThreeOpVectorOperation(ctx, inst, fc64, fc64.mulp, nanHandler64Default)
	case ir.OpFPVectorDiv32:
		emitThreeOpVectorOperation(ctx, inst, fc32, fc32.divp, nanHandler32Default)
	case ir.OpFPVectorDiv64:
		emitThreeOpVectorOperation(ctx, inst, fc64, fc64.divp, nanHandler64Default)
	case ir.OpFPVectorEqual32:
		emitFPVectorCompare(ctx, inst, fc32, x64.CmpEQ, false)
	case ir.OpFPVectorEqual64:
		emitFPVectorCompare(ctx, inst, fc64, x64.CmpEQ, false)
	case ir.OpFPVectorGreater32:
		emitFPVectorCompare(ctx, inst, fc32, x64.CmpLT, true)
	case ir.OpFPVectorGreater64:
		emitFPVectorCompare(ctx, inst, fc64, x64.CmpLT, true)
	case ir.OpFPVectorGreaterEqual32:
		emitFPVectorCompare(ctx, inst, fc32, x64.CmpLE, true)
	case ir.OpFPVectorGreaterEqual64:
		emitFPVectorCompare(ctx, inst, fc64, x64.CmpLE, true)
	case ir.OpFPVectorMax32:
		emitFPVectorMax(ctx, inst, fc32)
	case ir.OpFPVectorMax64:
		emitFPVectorMax(ctx, inst, fc64)
	case ir.OpFPVectorMin32:
		emitFPVectorMin(ctx, inst, fc32)
	case ir.OpFPVectorMin64:
		emitFPVectorMin(ctx, inst, fc64)
	case ir.OpFPVectorPairedAdd32:
		emitThreeOpVectorOperation(ctx, inst, fc32, fc32.haddp, nanHandler32Paired)
	case ir.OpFPVectorPairedAdd64:
		emitThreeOpVectorOperation(ctx, inst, fc64, fc64.haddp, nanHandler64Paired)
	case ir.OpFPVectorPairedAddLower32:
		emitFPVectorPairedAddLower(ctx, inst, fc32)
	case ir.OpFPVectorPairedAddLower64:
		emitFPVectorPairedAddLower(ctx, inst, fc64)
	case ir.OpFPVectorMulAdd32:
		emitFPVectorMulAdd(ctx, inst, fc32, fallbackMulAdd32)
	case ir.OpFPVectorMulAdd64:
		emitFPVectorMulAdd(ctx, inst, fc64, fallbackMulAdd64)
	case ir.OpFPVectorRecipEstimate32:
		emitTwoOpFallback(ctx, inst, fallbackRecipEstimate32)
	case ir.OpFPVectorRecipEstimate64:
		emitTwoOpFallback(ctx, inst, fallbackRecipEstimate64)
	case ir.OpFPVectorRecipStepFused32:
		emitThreeOpFallback(ctx, inst, fallbackRecipStepFused32)
	case ir.OpFPVectorRecipStepFused64:
		emitThreeOpFallback(ctx, inst, fallbackRecipStepFused64)
	case ir.OpFPVectorRoundInt32:
		emitFPVectorRoundInt(ctx, inst, fc32, roundIntLUT32, nanHandler32Unary)
	case ir.OpFPVectorRoundInt64:
		emitFPVectorRoundInt(ctx, inst, fc64, roundIntLUT64, nanHandler64Unary)
	case ir.OpFPVectorRSqrtEstimate32:
		emitTwoOpFallback(ctx, inst, fallbackRSqrtEstimate32)
	case ir.OpFPVectorRSqrtEstimate64:
		emitTwoOpFallback(ctx, inst, fallbackRSqrtEstimate64)
	case ir.OpFPVectorRSqrtStepFused32:
		emitThreeOpFallback(ctx, inst, fallbackRSqrtStepFused32)
	case ir.OpFPVectorRSqrtStepFused64:
		emitThreeOpFallback(ctx, inst, fallbackRSqrtStepFused64)
	case ir.OpFPVectorS32ToSingle:
		emitFPVectorS32ToSingle(ctx, inst)
	case ir.OpFPVectorS64ToDouble:
		emitFPVectorS64ToDouble(ctx, inst)
	case ir.OpFPVectorU32ToSingle:
		emitFPVectorU32ToSingle(ctx, inst)
	case ir.OpFPVectorU64ToDouble:
		emitFPVectorU64ToDouble(ctx, inst)
	case ir.OpFPVectorToSignedFixed32:
		emitFPVectorToFixed(ctx, inst, toSignedFixedLUT32)
	case ir.OpFPVectorToSignedFixed64:
		emitFPVectorToFixed(ctx, inst, toSignedFixedLUT64)
	case ir.OpFPVectorToUnsignedFixed32:
		emitFPVectorToFixed(ctx, inst, toUnsignedFixedLUT32)
	case ir.OpFPVectorToUnsignedFixed64:
		emitFPVectorToFixed(ctx, inst, toUnsignedFixedLUT64)
	default:
		panic(fmt.Sprintf("backend: %v is not a vector FP opcode", inst.Op()))
	}
}

// emitTwoOpVectorOperation lowers a one-operand opcode: fn receives a
// fresh result register and the read-only operand. Blocks that do not
// need exact NaN propagation take the straight-line path.
func emitTwoOpVectorOperation(ctx *EmitContext, inst *ir.Inst, fc fcode, fn func(*EmitContext, x64.Xmm, x64.Xmm), handler *Fallback) {
	code := ctx.Code
	ra := ctx.RegAlloc

	if !ctx.AccurateNaN() || ctx.FPSCRDN() {
		args := ra.Args(inst)
		a := ra.UseXmm(args[0])
		result := ra.ScratchXmm()

		fn(ctx, result, a)

		forceToDefaultNaN(ctx, fc, result)

		ra.DefineValue(inst, result)
		return
	}

	args := ra.Args(inst)
	result := ra.ScratchXmm()
	a := ra.UseXmm(args[0])
	nanMask := ra.ScratchXmm()

	fn(ctx, result, a)

	if code.CPU.AVX {
		fc.vcmpp(code, nanMask, result, result, x64.CmpUnord)
	} else {
		code.MOVAPS(nanMask, result)
		fc.cmpp(code, nanMask, nanMask, x64.CmpUnord)
	}

	handleNaNs(ctx, fc, []x64.Xmm{result, a}, nanMask, handler)

	ra.DefineValue(inst, result)
}

// emitThreeOpVectorOperation lowers a two-operand opcode: fn mutates
// its first register in place, matching a host two-operand
// instruction.
func emitThreeOpVectorOperation(ctx *EmitContext, inst *ir.Inst, fc fcode, fn func(*x64.Assembler, x64.Xmm, x64.Operand), handler *Fallback) {
	code := ctx.Code
	ra := ctx.RegAlloc

	if !ctx.AccurateNaN() || ctx.FPSCRDN() {
		args := ra.Args(inst)
		a := ra.UseScratchXmm(args[0])
		b := ra.UseXmm(args[1])

		fn(code, a, b)

		forceToDefaultNaN(ctx, fc, a)

		ra.DefineValue(inst, a)
		return
	}

	args := ra.Args(inst)
	result := ra.ScratchXmm()
	a := ra.UseXmm(args[0])
	b := ra.UseXmm(args[1])
	nanMask := ra.ScratchXmm()

	// Any NaN among the operands or in the host result must reach the
	// software handler: the mask accumulates unordered compares of
	// both.
	code.MOVAPS(nanMask, b)
	code.MOVAPS(result, a)
	fc.cmpp(code, nanMask, a, x64.CmpUnord)
	fn(code, result, b)
	fc.cmpp(code, nanMask, result, x64.CmpUnord)

	handleNaNs(ctx, fc, []x64.Xmm{result, a, b}, nanMask, handler)

	ra.DefineValue(inst, result)
}

func emitFPVectorAbs16(ctx *EmitContext, inst *ir.Inst) {
	ra := ctx.RegAlloc
	args := ra.Args(inst)
	a := ra.UseScratchXmm(args[0])
	mask := ctx.Code.Const16(0x7FFF7FFF7FFF7FFF, 0x7FFF7FFF7FFF7FFF)

	ctx.Code.PAND(a, mask)

	ra.DefineValue(inst, a)
}

func emitFPVectorAbs32(ctx *EmitContext, inst *ir.Inst) {
	ra := ctx.RegAlloc
	args := ra.Args(inst)
	a := ra.UseScratchXmm(args[0])
	mask := ctx.Code.Const16(0x7FFFFFFF7FFFFFFF, 0x7FFFFFFF7FFFFFFF)

	ctx.Code.ANDPS(a, mask)

	ra.DefineValue(inst, a)
}

func emitFPVectorAbs64(ctx *EmitContext, inst *ir.Inst) {
	ra := ctx.RegAlloc
	args := ra.Args(inst)
	a := ra.UseScratchXmm(args[0])
	mask := ctx.Code.Const16(0x7FFFFFFFFFFFFFFF, 0x7FFFFFFFFFFFFFFF)

	ctx.Code.ANDPD(a, mask)

	ra.DefineValue(inst, a)
}

func emitFPVectorNeg(ctx *EmitContext, inst *ir.Inst, signBits uint64) {
	ra := ctx.RegAlloc
	args := ra.Args(inst)
	a := ra.UseScratchXmm(args[0])
	mask := ctx.Code.Const16(signBits, signBits)

	ctx.Code.PXOR(a, mask)

	ra.DefineValue(inst, a)
}

// emitFPVectorCompare emits the ordered compares. ARM defines the
// lane mask directly, so these are not NaN-aware. Greater and
// greater-equal swap operands and use the mirrored predicate.
func emitFPVectorCompare(ctx *EmitContext, inst *ir.Inst, fc fcode, pred byte, swap bool) {
	ra := ctx.RegAlloc
	args := ra.Args(inst)

	if swap {
		a := ra.UseXmm(args[0])
		b := ra.UseScratchXmm(args[1])
		fc.cmpp(ctx.Code, b, a, pred)
		ra.DefineValue(inst, b)
		return
	}
	a := ra.UseScratchXmm(args[0])
	b := ra.UseXmm(args[1])
	fc.cmpp(ctx.Code, a, b, pred)
	ra.DefineValue(inst, a)
}

// maxMinCombine distinguishes the two blends of the shared max/min
// sequence: AND of the encodings for max (equal-valued lanes keep the
// positive zero), OR for min (they keep the negative zero).
type maxMinCombine uint8

const (
	combineAnd maxMinCombine = iota
	combineOr
)

func (m maxMinCombine) logicp(ctx *EmitContext, fc fcode, dst x64.Xmm, src x64.Operand) {
	if m == combineAnd {
		ctx.Code.ANDPS(dst, src)
	} else {
		ctx.Code.ORPS(dst, src)
	}
}

func (m maxMinCombine) vlogicp(ctx *EmitContext, fc fcode, dst, a x64.Xmm, b x64.Operand) {
	if m == combineAnd {
		fc.vandp(ctx.Code, dst, a, b)
	} else {
		fc.vorp(ctx.Code, dst, a, b)
	}
}

func (m maxMinCombine) selectp(ctx *EmitContext, fc fcode, dst x64.Xmm, src x64.Operand) {
	if m == combineAnd {
		fc.maxp(ctx.Code, dst, src)
	} else {
		fc.minp(ctx.Code, dst, src)
	}
}

func (m maxMinCombine) vselectp(ctx *EmitContext, fc fcode, dst, a x64.Xmm, b x64.Operand) {
	if m == combineAnd {
		fc.vmaxp(ctx.Code, dst, a, b)
	} else {
		fc.vminp(ctx.Code, dst, a, b)
	}
}

// emitFPVectorMaxMin implements the ARM max/min semantics on top of
// the host maxp/minp, which disagree with ARM on differently signed
// zeros and on NaN operands. On equal-valued lanes the AND (max) or
// OR (min) of the operand encodings yields the architected zero sign.
func emitFPVectorMaxMin(ctx *EmitContext, inst *ir.Inst, fc fcode, combine maxMinCombine) {
	code := ctx.Code
	ra := ctx.RegAlloc

	if ctx.FPSCRDN() {
		args := ra.Args(inst)
		result := ra.UseScratchXmm(args[0])
		var b x64.Xmm
		if ctx.FPSCRFTZ() {
			b = ra.UseScratchXmm(args[1])
		} else {
			b = ra.UseXmm(args[1])
		}

		mask := ra.ScratchXmm()
		combined := ra.ScratchXmm()
		nanMask := ra.ScratchXmm()

		denormalsAreZero(ctx, fc, []x64.Xmm{result, b}, mask)

		if code.CPU.AVX {
			fc.vcmpp(code, mask, result, b, x64.CmpEQ)
			fc.vcmpp(code, nanMask, result, b, x64.CmpUnord)
			combine.vlogicp(ctx, fc, combined, result, b)
			combine.vselectp(ctx, fc, result, result, b)
			fc.vblendvp(code, result, result, combined, mask)
			fc.vblendvp(code, result, result, fc.nanVector(code), nanMask)
		} else {
			code.MOVAPS(mask, result)
			code.MOVAPS(combined, result)
			code.MOVAPS(nanMask, result)
			fc.cmpp(code, mask, b, x64.CmpNEQ)
			fc.cmpp(code, nanMask, b, x64.CmpOrd)

			combine.logicp(ctx, fc, combined, b)
			combine.selectp(ctx, fc, result, b)

			code.ANDPS(result, mask)
			code.ANDNPS(mask, combined)
			code.ORPS(result, mask)

			code.ANDPS(result, nanMask)
			code.ANDNPS(nanMask, fc.nanVector(code))
			code.ORPS(result, nanMask)
		}

		ra.DefineValue(inst, result)
		return
	}

	handler := nanHandler32Default
	if fc.f64 {
		handler = nanHandler64Default
	}

	emitThreeOpVectorOperation(ctx, inst, fc, func(c *x64.Assembler, result x64.Xmm, srcB x64.Operand) {
		b := srcB.(x64.Xmm)
		mask := ra.ScratchXmm()
		combined := ra.ScratchXmm()

		if ctx.FPSCRFTZ() {
			prevB := b
			b = ra.ScratchXmm()
			c.MOVAPS(b, prevB)
			denormalsAreZero(ctx, fc, []x64.Xmm{result, b}, mask)
		}

		if c.CPU.AVX {
			fc.vcmpp(c, mask, result, b, x64.CmpEQ)
			combine.vlogicp(ctx, fc, combined, result, b)
			combine.vselectp(ctx, fc, result, result, b)
			fc.vblendvp(c, result, result, combined, mask)
		} else {
			c.MOVAPS(mask, result)
			c.MOVAPS(combined, result)
			fc.cmpp(c, mask, b, x64.CmpNEQ)

			combine.logicp(ctx, fc, combined, b)
			combine.selectp(ctx, fc, result, b)

			c.ANDPS(result, mask)
			c.ANDNPS(mask, combined)
			c.ORPS(result, mask)
		}
	}, handler)
}

func emitFPVectorMax(ctx *EmitContext, inst *ir.Inst, fc fcode) {
	emitFPVectorMaxMin(ctx, inst, fc, combineAnd)
}

func emitFPVectorMin(ctx *EmitContext, inst *ir.Inst, fc fcode) {
	emitFPVectorMaxMin(ctx, inst, fc, combineOr)
}

// emitFPVectorPairedAddLower packs the two operand halves and adds
// adjacent pairs against zero, leaving the architected zeros in the
// upper lanes.
func emitFPVectorPairedAddLower(ctx *EmitContext, inst *ir.Inst, fc fcode) {
	handler := nanHandler32PairedLower
	if fc.f64 {
		handler = nanHandler64PairedLower
	}
	emitThreeOpVectorOperation(ctx, inst, fc, func(c *x64.Assembler, result x64.Xmm, srcB x64.Operand) {
		zero := ctx.RegAlloc.ScratchXmm()
		c.XORPS(zero, zero)
		c.PUNPCKLQDQ(result, srcB)
		fc.haddp(c, result, zero)
	}, handler)
}

// emitFPVectorMulAdd uses host FMA when available. The host result is
// still rejected when any lane lands exactly on the smallest normal
// magnitude after sign clearing, or is unordered: those lanes need
// the software rounding under flush-to-zero. Without FMA the whole
// opcode runs in software.
func emitFPVectorMulAdd(ctx *EmitContext, inst *ir.Inst, fc fcode, fb *Fallback) {
	code := ctx.Code
	ra := ctx.RegAlloc

	if code.CPU.FMA && code.CPU.AVX {
		args := ra.Args(inst)

		result := ra.ScratchXmm()
		a := ra.UseXmm(args[0])
		b := ra.UseXmm(args[1])
		c := ra.UseXmm(args[2])
		tmp := ra.ScratchXmm()

		end := code.NewLabel()
		fallback := code.NewLabel()

		code.MOVAPS(result, a)
		fc.vfmadd231p(code, result, b, c)

		code.MOVAPS(tmp, fc.negativeZeroVector(code))
		code.ANDNPS(tmp, result)
		fc.vcmpp(code, tmp, tmp, fc.smallestNormalVector(code), x64.CmpEQUQ)
		code.VPTEST(tmp, tmp)
		code.JNZ(fallback)
		code.L(end)

		code.SwitchToFarCode()
		code.L(fallback)
		abiPushCallerSaveExcept(code, result)
		emitFourOpFallbackWithoutRegAlloc(ctx, result, a, b, c, fb)
		abiPopCallerSaveExcept(code, result)
		code.JMP(end)
		code.SwitchToNearCode()

		ra.DefineValue(inst, result)
		return
	}

	emitFourOpFallback(ctx, inst, fb)
}

// emitFPVectorRoundInt uses the host rounding instruction for the
// four host-representable modes when inexact reporting is not
// requested; everything else dispatches to the monomorphic software
// routine for the (mode, exact) pair.
func emitFPVectorRoundInt(ctx *EmitContext, inst *ir.Inst, fc fcode, lut map[roundIntKey]*Fallback, handler *Fallback) {
	rounding := fp.RoundingMode(inst.Arg(1).U8())
	exact := inst.Arg(2).U1()

	if ctx.Code.CPU.SSE41 && rounding != fp.RoundToNearestTieAwayFromZero && !exact {
		var roundImm byte
		switch rounding {
		case fp.RoundToNearestTieEven:
			roundImm = x64.RoundNearest
		case fp.RoundTowardsPlusInfinity:
			roundImm = x64.RoundUp
		case fp.RoundTowardsMinusInfinity:
			roundImm = x64.RoundDown
		case fp.RoundTowardsZero:
			roundImm = x64.RoundTruncate
		default:
			panic("backend: unreachable rounding mode")
		}

		emitTwoOpVectorOperation(ctx, inst, fc, func(c *EmitContext, result, a x64.Xmm) {
			fc.roundp(c.Code, result, a, roundImm)
		}, handler)
		return
	}

	fb, ok := lut[roundIntKey{rounding: rounding, exact: exact}]
	if !ok {
		panic("backend: invalid rounding mode immediate")
	}
	emitTwoOpFallback(ctx, inst, fb)
}

func emitFPVectorS32ToSingle(ctx *EmitContext, inst *ir.Inst) {
	ra := ctx.RegAlloc
	args := ra.Args(inst)
	xmm := ra.UseScratchXmm(args[0])

	ctx.Code.CVTDQ2PS(xmm, xmm)

	ra.DefineValue(inst, xmm)
}

func emitFPVectorS64ToDouble(ctx *EmitContext, inst *ir.Inst) {
	code := ctx.Code
	ra := ctx.RegAlloc
	args := ra.Args(inst)
	xmm := ra.UseScratchXmm(args[0])

	switch {
	case code.CPU.AVX512:
		code.VCVTQQ2PD(xmm, xmm)
	case code.CPU.SSE41:
		xmmTmp := ra.ScratchXmm()
		tmp := ra.ScratchGpr()

		// First quadword
		code.MOVQToGpr(tmp, xmm)
		code.CVTSI2SD(xmm, tmp)

		// Second quadword
		code.PEXTRQ(tmp, xmm, 1)
		code.CVTSI2SD(xmmTmp, tmp)

		// Combine
		code.UNPCKLPD(xmm, xmmTmp)
	default:
		highXmm := ra.ScratchXmm()
		xmmTmp := ra.ScratchXmm()
		tmp := ra.ScratchGpr()

		// First quadword
		code.MOVHLPS(highXmm, xmm)
		code.MOVQToGpr(tmp, xmm)
		code.CVTSI2SD(xmm, tmp)

		// Second quadword
		code.MOVQToGpr(tmp, highXmm)
		code.CVTSI2SD(xmmTmp, tmp)

		// Combine
		code.UNPCKLPD(xmm, xmmTmp)
	}

	ra.DefineValue(inst, xmm)
}

// emitFPVectorU32ToSingle splits each unsigned lane into 16-bit
// halves, biases them into the float domain, and accumulates the two
// partial conversions. ARM additionally clears the sign bit under
// round-toward-minus-infinity, where the host would produce -0 for
// zero inputs.
func emitFPVectorU32ToSingle(ctx *EmitContext, inst *ir.Inst) {
	code := ctx.Code
	ra := ctx.RegAlloc
	args := ra.Args(inst)
	xmm := ra.UseScratchXmm(args[0])

	if code.CPU.AVX512 {
		code.VCVTUDQ2PS(xmm, xmm)
	} else {
		mem4B000000 := code.Const16(0x4B0000004B000000, 0x4B0000004B000000)
		mem53000000 := code.Const16(0x5300000053000000, 0x5300000053000000)
		memD3000080 := code.Const16(0xD3000080D3000080, 0xD3000080D3000080)

		tmp := ra.ScratchXmm()

		if code.CPU.AVX {
			code.VPBLENDW(tmp, xmm, mem4B000000, 0b10101010)
			code.VPSRLD(xmm, xmm, 16)
			code.VPBLENDW(xmm, xmm, mem53000000, 0b10101010)
			code.VADDPS(xmm, xmm, memD3000080)
			code.VADDPS(xmm, tmp, xmm)
		} else {
			memFFFF := code.Const16(0x0000FFFF0000FFFF, 0x0000FFFF0000FFFF)

			code.MOVDQA(tmp, memFFFF)

			code.PAND(tmp, xmm)
			code.POR(tmp, mem4B000000)
			code.PSRLD(xmm, 16)
			code.POR(xmm, mem53000000)
			code.ADDPS(xmm, memD3000080)
			code.ADDPS(xmm, tmp)
		}
	}

	if ctx.FPSCRRMode() == fp.RoundTowardsMinusInfinity {
		code.PAND(xmm, code.Const16(0x7FFFFFFF7FFFFFFF, 0x7FFFFFFF7FFFFFFF))
	}

	ra.DefineValue(inst, xmm)
}

// emitFPVectorU64ToDouble unpacks each unsigned quadword against the
// double-bias constants and recombines the high and low partial sums.
func emitFPVectorU64ToDouble(ctx *EmitContext, inst *ir.Inst) {
	code := ctx.Code
	ra := ctx.RegAlloc
	args := ra.Args(inst)
	xmm := ra.UseScratchXmm(args[0])

	if code.CPU.AVX512 {
		code.VCVTUQQ2PD(xmm, xmm)
	} else {
		unpack := code.Const16(0x4530000043300000, 0)
		subtrahend := code.Const16(0x4330000000000000, 0x4530000000000000)

		unpackReg := ra.ScratchXmm()
		subtrahendReg := ra.ScratchXmm()
		tmp1 := ra.ScratchXmm()

		if code.CPU.AVX {
			code.VMOVAPD(unpackReg, unpack)
			code.VMOVAPD(subtrahendReg, subtrahend)

			code.VUNPCKLPS(tmp1, xmm, unpackReg)
			code.VSUBPD(tmp1, tmp1, subtrahendReg)

			code.VPERMILPS(xmm, xmm, 0b01001110)

			code.VUNPCKLPS(xmm, xmm, unpackReg)
			code.VSUBPD(xmm, xmm, subtrahendReg)

			code.VHADDPD(xmm, tmp1, xmm)
		} else {
			tmp2 := ra.ScratchXmm()

			code.MOVAPD(unpackReg, unpack)
			code.MOVAPD(subtrahendReg, subtrahend)

			code.PSHUFD(tmp1, xmm, 0b01001110)

			code.PUNPCKLDQ(xmm, unpackReg)
			code.SUBPD(xmm, subtrahendReg)
			code.PSHUFD(tmp2, xmm, 0b01001110)
			code.ADDPD(xmm, tmp2)

			code.PUNPCKLDQ(tmp1, unpackReg)
			code.SUBPD(tmp1, subtrahendReg)

			code.PSHUFD(unpackReg, tmp1, 0b01001110)
			code.ADDPD(unpackReg, tmp1)

			code.UNPCKLPD(xmm, unpackReg)
		}
	}

	if ctx.FPSCRRMode() == fp.RoundTowardsMinusInfinity {
		code.PAND(xmm, code.Const16(0x7FFFFFFFFFFFFFFF, 0x7FFFFFFFFFFFFFFF))
	}

	ra.DefineValue(inst, xmm)
}

func emitFPVectorToFixed(ctx *EmitContext, inst *ir.Inst, lut map[toFixedKey]*Fallback) {
	fbits := int(inst.Arg(1).U8())
	rounding := fp.RoundingMode(inst.Arg(2).U8())

	fb, ok := lut[toFixedKey{fbits: fbits, rounding: rounding}]
	if !ok {
		panic(fmt.Sprintf("backend: no fixed-point conversion for fbits=%d", fbits))
	}
	emitTwoOpFallback(ctx, inst, fb)
}
