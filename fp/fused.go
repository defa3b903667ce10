package fp

import "math/bits"

// mulNorm builds the exact product of two finite nonzero unpacked
// values. The double-width significand product always fits the
// 128-bit form.
func (f format) mulNorm(a, b unpacked) norm128 {
	hi, lo := bits.Mul64(a.sig, b.sig)
	exp := a.exp + b.exp - 2*f.fracBits()
	return normalize128(a.sign != b.sign, exp, hi, lo)
}

// fusedMulAdd computes addend + x*y with a single rounding. halve
// divides the exact sum by two before rounding (used by the
// reciprocal-square-root step). All special cases follow the ARM
// pseudocode.
func (f format) fusedMulAdd(addend, x, y uint64, halve bool, fpcr FPCR, fpsr *FPSR) uint64 {
	mode := fpcr.RMode()

	ua := f.unpack(addend, fpcr, fpsr)
	ux := f.unpack(x, fpcr, fpsr)
	uy := f.unpack(y, fpcr, fpsr)

	invalidPair := (ux.isInf() && uy.isZero()) || (ux.isZero() && uy.isInf())

	if r, ok := f.processNaNs3(ua, ux, uy, addend, x, y, fpcr, fpsr); ok {
		if ua.cls == clsQNaN && invalidPair {
			fpsr.Raise(FPSRIOC)
			return f.defaultNaN()
		}
		return r
	}

	if invalidPair {
		fpsr.Raise(FPSRIOC)
		return f.defaultNaN()
	}

	infP := ux.isInf() || uy.isInf()
	signP := ux.sign != uy.sign
	if ua.isInf() && infP && ua.sign != signP {
		fpsr.Raise(FPSRIOC)
		return f.defaultNaN()
	}
	if ua.isInf() {
		return f.inf(ua.sign)
	}
	if infP {
		return f.inf(signP)
	}

	zeroP := ux.isZero() || uy.isZero()
	if ua.isZero() && zeroP && ua.sign == signP {
		return f.zero(ua.sign)
	}

	var sum norm128
	switch {
	case zeroP && ua.isZero():
		// Opposite-signed zeros: exact zero under the rounding rule.
		return f.zero(mode == RoundTowardsMinusInfinity)
	case zeroP:
		sum = f.norm128FromSig(ua.sign, ua.exp, ua.sig)
	case ua.isZero():
		sum = f.mulNorm(ux, uy)
	default:
		p := f.mulNorm(ux, uy)
		s, ok := addNorm(f.norm128FromSig(ua.sign, ua.exp, ua.sig), p)
		if !ok {
			return f.zero(mode == RoundTowardsMinusInfinity)
		}
		sum = s
	}

	if halve {
		sum.exp--
	}
	return f.roundNorm(sum, mode, fpcr, fpsr)
}

// processNaNs3 mirrors ProcessNaNs over already-unpacked operands.
func (f format) processNaNs3(ua, ux, uy unpacked, a, x, y uint64, fpcr FPCR, fpsr *FPSR) (uint64, bool) {
	ops := [3]struct {
		u unpacked
		v uint64
	}{{ua, a}, {ux, x}, {uy, y}}
	for _, op := range ops {
		if op.u.cls == clsSNaN {
			return f.processNaN(op.v, fpcr, fpsr), true
		}
	}
	for _, op := range ops {
		if op.u.cls == clsQNaN {
			return f.processNaN(op.v, fpcr, fpsr), true
		}
	}
	return 0, false
}

func (f format) processNaN(v uint64, fpcr FPCR, fpsr *FPSR) uint64 {
	if v&f.quietBit() == 0 {
		fpsr.Raise(FPSRIOC)
	}
	if fpcr.DN() {
		return f.defaultNaN()
	}
	return v | f.quietBit()
}

// FPMulAdd32 returns addend + op1*op2 with a single rounding.
func FPMulAdd32(addend, op1, op2 uint32, fpcr FPCR, fpsr *FPSR) uint32 {
	return uint32(fmt32.fusedMulAdd(uint64(addend), uint64(op1), uint64(op2), false, fpcr, fpsr))
}

// FPMulAdd64 returns addend + op1*op2 with a single rounding.
func FPMulAdd64(addend, op1, op2 uint64, fpcr FPCR, fpsr *FPSR) uint64 {
	return fmt64.fusedMulAdd(addend, op1, op2, false, fpcr, fpsr)
}

// fusedStep implements the shared body of the Newton-Raphson step
// operations: round(base + (-op1)*op2), optionally halved. special is
// the architected result for the 0 * inf pairing.
func (f format) fusedStep(op1, op2, base, special uint64, halve bool, fpcr FPCR, fpsr *FPSR) uint64 {
	op1 ^= f.signBit()

	u1 := f.unpack(op1, fpcr, fpsr)
	u2 := f.unpack(op2, fpcr, fpsr)

	if u1.cls.isNaN() || u2.cls.isNaN() {
		if u1.cls == clsSNaN {
			return f.processNaN(op1, fpcr, fpsr)
		}
		if u2.cls == clsSNaN {
			return f.processNaN(op2, fpcr, fpsr)
		}
		if u1.cls == clsQNaN {
			return f.processNaN(op1, fpcr, fpsr)
		}
		return f.processNaN(op2, fpcr, fpsr)
	}

	if (u1.isInf() && u2.isZero()) || (u1.isZero() && u2.isInf()) {
		return special
	}
	if u1.isInf() || u2.isInf() {
		return f.inf(u1.sign != u2.sign)
	}
	return f.fusedMulAdd(base, op1, op2, halve, fpcr, fpsr)
}

// FPRecipStepFused32 returns 2 - op1*op2 with a single rounding.
func FPRecipStepFused32(op1, op2 uint32, fpcr FPCR, fpsr *FPSR) uint32 {
	return uint32(fmt32.fusedStep(uint64(op1), uint64(op2), uint64(Two32), uint64(Two32), false, fpcr, fpsr))
}

// FPRecipStepFused64 returns 2 - op1*op2 with a single rounding.
func FPRecipStepFused64(op1, op2 uint64, fpcr FPCR, fpsr *FPSR) uint64 {
	return fmt64.fusedStep(op1, op2, Two64, Two64, false, fpcr, fpsr)
}

// FPRSqrtStepFused32 returns (3 - op1*op2) / 2 with a single rounding.
func FPRSqrtStepFused32(op1, op2 uint32, fpcr FPCR, fpsr *FPSR) uint32 {
	const three = uint64(0x40400000)
	return uint32(fmt32.fusedStep(uint64(op1), uint64(op2), three, uint64(OnePointFive32), true, fpcr, fpsr))
}

// FPRSqrtStepFused64 returns (3 - op1*op2) / 2 with a single rounding.
func FPRSqrtStepFused64(op1, op2 uint64, fpcr FPCR, fpsr *FPSR) uint64 {
	const three = uint64(0x4008000000000000)
	return fmt64.fusedStep(op1, op2, three, OnePointFive64, true, fpcr, fpsr)
}
