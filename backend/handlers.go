package backend

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/sarchlab/a32jit/fp"
)

// Default NaN handlers used by the accurate-propagation path, one per
// (element size, lane indexer) pair.
var (
	nanHandler32Default = registerFallback("nan.f32.default",
		makeNaNHandler32(defaultIndexer32))
	nanHandler64Default = registerFallback("nan.f64.default",
		makeNaNHandler64(defaultIndexer64))
	nanHandler32Paired = registerFallback("nan.f32.paired",
		makeNaNHandler32(pairedIndexer32))
	nanHandler64Paired = registerFallback("nan.f64.paired",
		makeNaNHandler64(pairedIndexer64))
	nanHandler32PairedLower = registerFallback("nan.f32.paired_lower",
		makeNaNHandler32(pairedLowerIndexer32))
	nanHandler64PairedLower = registerFallback("nan.f64.paired_lower",
		makeNaNHandler64(pairedLowerIndexer64))
	nanHandler32Unary = registerFallback("nan.f32.unary",
		makeUnaryNaNHandler32())
	nanHandler64Unary = registerFallback("nan.f64.unary",
		makeUnaryNaNHandler64())
)

// Estimate and step fallbacks: these opcodes have no adequate host
// instruction and always run in software.
var (
	fallbackRecipEstimate32 = registerFallback("FPVectorRecipEstimate32",
		func(result, operand *Vec32, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPRecipEstimate32(operand[i], fpcr, fpsr)
			}
		})
	fallbackRecipEstimate64 = registerFallback("FPVectorRecipEstimate64",
		func(result, operand *Vec64, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPRecipEstimate64(operand[i], fpcr, fpsr)
			}
		})
	fallbackRSqrtEstimate32 = registerFallback("FPVectorRSqrtEstimate32",
		func(result, operand *Vec32, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPRSqrtEstimate32(operand[i], fpcr, fpsr)
			}
		})
	fallbackRSqrtEstimate64 = registerFallback("FPVectorRSqrtEstimate64",
		func(result, operand *Vec64, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPRSqrtEstimate64(operand[i], fpcr, fpsr)
			}
		})

	fallbackRecipStepFused32 = registerFallback("FPVectorRecipStepFused32",
		func(result, op1, op2 *Vec32, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPRecipStepFused32(op1[i], op2[i], fpcr, fpsr)
			}
		})
	fallbackRecipStepFused64 = registerFallback("FPVectorRecipStepFused64",
		func(result, op1, op2 *Vec64, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPRecipStepFused64(op1[i], op2[i], fpcr, fpsr)
			}
		})
	fallbackRSqrtStepFused32 = registerFallback("FPVectorRSqrtStepFused32",
		func(result, op1, op2 *Vec32, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPRSqrtStepFused32(op1[i], op2[i], fpcr, fpsr)
			}
		})
	fallbackRSqrtStepFused64 = registerFallback("FPVectorRSqrtStepFused64",
		func(result, op1, op2 *Vec64, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPRSqrtStepFused64(op1[i], op2[i], fpcr, fpsr)
			}
		})

	fallbackMulAdd32 = registerFallback("FPVectorMulAdd32",
		func(result, addend, op1, op2 *Vec32, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPMulAdd32(addend[i], op1[i], op2[i], fpcr, fpsr)
			}
		})
	fallbackMulAdd64 = registerFallback("FPVectorMulAdd64",
		func(result, addend, op1, op2 *Vec64, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPMulAdd64(addend[i], op1[i], op2[i], fpcr, fpsr)
			}
		})
)

// roundIntKey keys the round-to-integral dispatch table.
type roundIntKey struct {
	rounding fp.RoundingMode
	exact    bool
}

var allRoundingModes = []fp.RoundingMode{
	fp.RoundToNearestTieEven,
	fp.RoundTowardsPlusInfinity,
	fp.RoundTowardsMinusInfinity,
	fp.RoundTowardsZero,
	fp.RoundToNearestTieAwayFromZero,
}

func roundIntKeys() []roundIntKey {
	keys := make([]roundIntKey, 0, 2*len(allRoundingModes))
	for _, mode := range allRoundingModes {
		for _, exact := range []bool{false, true} {
			keys = append(keys, roundIntKey{rounding: mode, exact: exact})
		}
	}
	return keys
}

// The monomorphic round-to-integral routines, one per
// (rounding mode, exact) pair, built once at package load.
var roundIntLUT32 = lo.SliceToMap(roundIntKeys(), func(k roundIntKey) (roundIntKey, *Fallback) {
	name := fmt.Sprintf("FPVectorRoundInt32.%v.exact=%v", k.rounding, k.exact)
	return k, registerFallback(name, func(result, operand *Vec32, fpcr fp.FPCR, fpsr *fp.FPSR) {
		for i := range result {
			result[i] = fp.FPRoundInt32(operand[i], k.rounding, k.exact, fpcr, fpsr)
		}
	})
})

var roundIntLUT64 = lo.SliceToMap(roundIntKeys(), func(k roundIntKey) (roundIntKey, *Fallback) {
	name := fmt.Sprintf("FPVectorRoundInt64.%v.exact=%v", k.rounding, k.exact)
	return k, registerFallback(name, func(result, operand *Vec64, fpcr fp.FPCR, fpsr *fp.FPSR) {
		for i := range result {
			result[i] = fp.FPRoundInt64(operand[i], k.rounding, k.exact, fpcr, fpsr)
		}
	})
})

// toFixedKey keys the float-to-fixed dispatch tables.
type toFixedKey struct {
	fbits    int
	rounding fp.RoundingMode
}

func toFixedKeys(fsize int) []toFixedKey {
	keys := make([]toFixedKey, 0, fsize*len(allRoundingModes))
	for fbits := 0; fbits < fsize; fbits++ {
		for _, mode := range allRoundingModes {
			keys = append(keys, toFixedKey{fbits: fbits, rounding: mode})
		}
	}
	return keys
}

func makeToFixedLUT32(unsigned bool) map[toFixedKey]*Fallback {
	return lo.SliceToMap(toFixedKeys(32), func(k toFixedKey) (toFixedKey, *Fallback) {
		name := fmt.Sprintf("FPVectorToFixed32.unsigned=%v.fbits=%d.%v", unsigned, k.fbits, k.rounding)
		return k, registerFallback(name, func(result, operand *Vec32, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPToFixed32(operand[i], k.fbits, unsigned, k.rounding, fpcr, fpsr)
			}
		})
	})
}

func makeToFixedLUT64(unsigned bool) map[toFixedKey]*Fallback {
	return lo.SliceToMap(toFixedKeys(64), func(k toFixedKey) (toFixedKey, *Fallback) {
		name := fmt.Sprintf("FPVectorToFixed64.unsigned=%v.fbits=%d.%v", unsigned, k.fbits, k.rounding)
		return k, registerFallback(name, func(result, operand *Vec64, fpcr fp.FPCR, fpsr *fp.FPSR) {
			for i := range result {
				result[i] = fp.FPToFixed64(operand[i], k.fbits, unsigned, k.rounding, fpcr, fpsr)
			}
		})
	})
}

var (
	toSignedFixedLUT32   = makeToFixedLUT32(false)
	toUnsignedFixedLUT32 = makeToFixedLUT32(true)
	toSignedFixedLUT64   = makeToFixedLUT64(false)
	toUnsignedFixedLUT64 = makeToFixedLUT64(true)
)
