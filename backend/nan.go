package backend

import (
	"github.com/sarchlab/a32jit/fp"
	"github.com/sarchlab/a32jit/x64"
)

// fcode selects the width-specific form of each packed host
// instruction, so the shared emission helpers can be written once per
// shape instead of once per element size.
type fcode struct {
	f64 bool
}

var (
	fc32 = fcode{f64: false}
	fc64 = fcode{f64: true}
)

func (f fcode) fsize() int {
	if f.f64 {
		return 64
	}
	return 32
}

func (f fcode) addp(c *x64.Assembler, dst x64.Xmm, src x64.Operand) {
	if f.f64 {
		c.ADDPD(dst, src)
	} else {
		c.ADDPS(dst, src)
	}
}

func (f fcode) subp(c *x64.Assembler, dst x64.Xmm, src x64.Operand) {
	if f.f64 {
		c.SUBPD(dst, src)
	} else {
		c.SUBPS(dst, src)
	}
}

func (f fcode) mulp(c *x64.Assembler, dst x64.Xmm, src x64.Operand) {
	if f.f64 {
		c.MULPD(dst, src)
	} else {
		c.MULPS(dst, src)
	}
}

func (f fcode) divp(c *x64.Assembler, dst x64.Xmm, src x64.Operand) {
	if f.f64 {
		c.DIVPD(dst, src)
	} else {
		c.DIVPS(dst, src)
	}
}

func (f fcode) maxp(c *x64.Assembler, dst x64.Xmm, src x64.Operand) {
	if f.f64 {
		c.MAXPD(dst, src)
	} else {
		c.MAXPS(dst, src)
	}
}

func (f fcode) minp(c *x64.Assembler, dst x64.Xmm, src x64.Operand) {
	if f.f64 {
		c.MINPD(dst, src)
	} else {
		c.MINPS(dst, src)
	}
}

func (f fcode) haddp(c *x64.Assembler, dst x64.Xmm, src x64.Operand) {
	if f.f64 {
		c.HADDPD(dst, src)
	} else {
		c.HADDPS(dst, src)
	}
}

func (f fcode) cmpp(c *x64.Assembler, dst x64.Xmm, src x64.Operand, pred byte) {
	if f.f64 {
		c.CMPPD(dst, src, pred)
	} else {
		c.CMPPS(dst, src, pred)
	}
}

func (f fcode) roundp(c *x64.Assembler, dst x64.Xmm, src x64.Operand, mode byte) {
	if f.f64 {
		c.ROUNDPD(dst, src, mode)
	} else {
		c.ROUNDPS(dst, src, mode)
	}
}

func (f fcode) vcmpp(c *x64.Assembler, dst, a x64.Xmm, b x64.Operand, pred byte) {
	if f.f64 {
		c.VCMPPD(dst, a, b, pred)
	} else {
		c.VCMPPS(dst, a, b, pred)
	}
}

func (f fcode) vmaxp(c *x64.Assembler, dst, a x64.Xmm, b x64.Operand) {
	if f.f64 {
		c.VMAXPD(dst, a, b)
	} else {
		c.VMAXPS(dst, a, b)
	}
}

func (f fcode) vminp(c *x64.Assembler, dst, a x64.Xmm, b x64.Operand) {
	if f.f64 {
		c.VMINPD(dst, a, b)
	} else {
		c.VMINPS(dst, a, b)
	}
}

func (f fcode) vandp(c *x64.Assembler, dst, a x64.Xmm, b x64.Operand) {
	if f.f64 {
		c.VANDPD(dst, a, b)
	} else {
		c.VANDPS(dst, a, b)
	}
}

func (f fcode) vorp(c *x64.Assembler, dst, a x64.Xmm, b x64.Operand) {
	if f.f64 {
		c.VORPD(dst, a, b)
	} else {
		c.VORPS(dst, a, b)
	}
}

func (f fcode) vblendvp(c *x64.Assembler, dst, a x64.Xmm, b x64.Operand, mask x64.Xmm) {
	if f.f64 {
		c.VBLENDVPD(dst, a, b, mask)
	} else {
		c.VBLENDVPS(dst, a, b, mask)
	}
}

func (f fcode) vfmadd231p(c *x64.Assembler, dst, a x64.Xmm, b x64.Operand) {
	if f.f64 {
		c.VFMADD231PD(dst, a, b)
	} else {
		c.VFMADD231PS(dst, a, b)
	}
}

// Pool constants, per element size.

func (f fcode) nanVector(code *x64.Assembler) x64.Mem {
	if f.f64 {
		return code.Const16(0x7FF8000000000000, 0x7FF8000000000000)
	}
	return code.Const16(0x7FC000007FC00000, 0x7FC000007FC00000)
}

func (f fcode) negativeZeroVector(code *x64.Assembler) x64.Mem {
	if f.f64 {
		return code.Const16(0x8000000000000000, 0x8000000000000000)
	}
	return code.Const16(0x8000000080000000, 0x8000000080000000)
}

func (f fcode) smallestNormalVector(code *x64.Assembler) x64.Mem {
	if f.f64 {
		return code.Const16(0x0010000000000000, 0x0010000000000000)
	}
	return code.Const16(0x0080000000800000, 0x0080000000800000)
}

func (f fcode) absMaskVector(code *x64.Assembler) x64.Mem {
	if f.f64 {
		return code.Const16(0x7FFFFFFFFFFFFFFF, 0x7FFFFFFFFFFFFFFF)
	}
	return code.Const16(0x7FFFFFFF7FFFFFFF, 0x7FFFFFFF7FFFFFFF)
}

// forceToDefaultNaN rewrites every NaN lane of result with the
// architected default NaN. Emitted only when the block runs with
// DN=1.
func forceToDefaultNaN(ctx *EmitContext, fc fcode, result x64.Xmm) {
	if !ctx.FPSCRDN() {
		return
	}
	code := ctx.Code
	nanMask := ctx.RegAlloc.ScratchXmm()
	tmp := ctx.RegAlloc.ScratchXmm()
	code.PCMPEQW(tmp, tmp)
	code.MOVAPS(nanMask, result)
	fc.cmpp(code, nanMask, nanMask, x64.CmpOrd)
	code.ANDPS(result, nanMask)
	code.XORPS(nanMask, tmp)
	code.ANDPS(nanMask, fc.nanVector(code))
	code.ORPS(result, nanMask)
}

// denormalsAreZero flushes denormal operand lanes to zero by adding a
// signed zero: -0.0 normally, +0.0 under round-toward-minus-infinity
// so the flushed sign matches the guest rule. Emitted only when the
// block runs with FTZ=1.
func denormalsAreZero(ctx *EmitContext, fc fcode, toDAZ []x64.Xmm, tmp x64.Xmm) {
	if !ctx.FPSCRFTZ() {
		return
	}
	code := ctx.Code
	if ctx.FPSCRRMode() != fp.RoundTowardsMinusInfinity {
		code.MOVAPS(tmp, fc.negativeZeroVector(code))
	} else {
		code.XORPS(tmp, tmp)
	}
	for _, xmm := range toDAZ {
		fc.addp(code, xmm, tmp)
	}
}

// handleNaNs tests the accumulated NaN mask and, for blocks that need
// exact propagation, branches to a far-region sequence that spills
// the operand vectors, runs the opcode's software handler, and
// resumes with the corrected result. xmms lists the result register
// first, then the operands.
func handleNaNs(ctx *EmitContext, fc fcode, xmms []x64.Xmm, nanMask x64.Xmm, handler *Fallback) {
	code := ctx.Code

	if code.CPU.SSE41 {
		code.PTEST(nanMask, nanMask)
	} else {
		bitmask := ctx.RegAlloc.ScratchGpr()
		code.MOVMSKPS(bitmask, nanMask)
		code.CMPImm8(bitmask, 0)
	}

	end := code.NewLabel()
	nan := code.NewLabel()

	code.JNZ(nan)
	code.L(end)

	code.SwitchToFarCode()
	code.L(nan)

	result := xmms[0]

	abiPushCallerSaveExcept(code, result)

	params := abiParams(code)
	shadow := shadowSpace(code)
	stackSpace := int32(len(xmms) * 16)
	code.SUBImm(x64.RSP, stackSpace+shadow)
	for i, xmm := range xmms {
		code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+int32(i)*16), xmm)
	}
	code.LEA(params[0], x64.Ptr(x64.RSP, shadow+0*16))
	code.MOVImm32(params[1], uint32(ctx.FPCR))

	code.CallFunction(handler.Entry)

	code.MOVAPS(result, x64.Ptr(x64.RSP, shadow+0*16))
	code.ADDImm(x64.RSP, stackSpace+shadow)
	abiPopCallerSaveExcept(code, result)
	code.JMP(end)
	code.SwitchToNearCode()
}

// Indexers define which operand lanes feed each result lane; the
// default software NaN handlers are built over them so the paired
// opcodes can reuse the generic handler shape.

// defaultIndexer32 pairs operands lane by lane.
func defaultIndexer32(i int, a, b Vec32) (uint32, uint32) {
	return a[i], b[i]
}

func defaultIndexer64(i int, a, b Vec64) (uint64, uint64) {
	return a[i], b[i]
}

// pairedIndexer32 feeds result lane i from adjacent source lanes: the
// lower half draws from a, the upper half from b.
func pairedIndexer32(i int, a, b Vec32) (uint32, uint32) {
	const halfway = len(a) / 2
	if i < halfway {
		return a[2*i], a[2*i+1]
	}
	i -= halfway
	return b[2*i], b[2*i+1]
}

func pairedIndexer64(i int, a, b Vec64) (uint64, uint64) {
	const halfway = len(a) / 2
	if i < halfway {
		return a[2*i], a[2*i+1]
	}
	i -= halfway
	return b[2*i], b[2*i+1]
}

// pairedLowerIndexer32 feeds the low result half from the packed
// lower halves of both operands; out-of-range lanes are zeros.
func pairedLowerIndexer32(i int, a, b Vec32) (uint32, uint32) {
	switch i {
	case 0:
		return a[0], a[1]
	case 1:
		return b[0], b[1]
	}
	return 0, 0
}

func pairedLowerIndexer64(i int, a, b Vec64) (uint64, uint64) {
	if i == 0 {
		return a[0], b[0]
	}
	return 0, 0
}

// makeNaNHandler32 builds the default two-operand software handler:
// per lane, propagate input NaNs by the ARM rule, else replace a NaN
// result with the default NaN.
func makeNaNHandler32(index func(int, Vec32, Vec32) (uint32, uint32)) func(*[3]Vec32, fp.FPCR) {
	return func(values *[3]Vec32, fpcr fp.FPCR) {
		result := &values[0]
		var fpsr fp.FPSR
		for i := range result {
			x, y := index(i, values[1], values[2])
			if r, ok := fp.ProcessNaNs32(x, y, fpcr, &fpsr); ok {
				result[i] = r
			} else if fp.IsNaN32(result[i]) {
				result[i] = fp.DefaultNaN32
			}
		}
	}
}

func makeNaNHandler64(index func(int, Vec64, Vec64) (uint64, uint64)) func(*[3]Vec64, fp.FPCR) {
	return func(values *[3]Vec64, fpcr fp.FPCR) {
		result := &values[0]
		var fpsr fp.FPSR
		for i := range result {
			x, y := index(i, values[1], values[2])
			if r, ok := fp.ProcessNaNs64(x, y, fpcr, &fpsr); ok {
				result[i] = r
			} else if fp.IsNaN64(result[i]) {
				result[i] = fp.DefaultNaN64
			}
		}
	}
}

// makeUnaryNaNHandler32 is the one-operand variant.
func makeUnaryNaNHandler32() func(*[2]Vec32, fp.FPCR) {
	return func(values *[2]Vec32, fpcr fp.FPCR) {
		result := &values[0]
		for i := range result {
			x := values[1][i]
			if fp.IsNaN32(x) {
				if fpcr.DN() {
					result[i] = fp.DefaultNaN32
				} else {
					result[i] = fp.Quiet32(x)
				}
			} else if fp.IsNaN32(result[i]) {
				result[i] = fp.DefaultNaN32
			}
		}
	}
}

func makeUnaryNaNHandler64() func(*[2]Vec64, fp.FPCR) {
	return func(values *[2]Vec64, fpcr fp.FPCR) {
		result := &values[0]
		for i := range result {
			x := values[1][i]
			if fp.IsNaN64(x) {
				if fpcr.DN() {
					result[i] = fp.DefaultNaN64
				} else {
					result[i] = fp.Quiet64(x)
				}
			} else if fp.IsNaN64(result[i]) {
				result[i] = fp.DefaultNaN64
			}
		}
	}
}
