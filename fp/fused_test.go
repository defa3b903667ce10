package fp_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a32jit/fp"
)

func f32(v float32) uint32 { return math.Float32bits(v) }
func f64(v float64) uint64 { return math.Float64bits(v) }

var _ = Describe("FPMulAdd", func() {
	var fpsr fp.FPSR

	BeforeEach(func() {
		fpsr = 0
	})

	It("should compute addend + a*b", func() {
		r := fp.FPMulAdd32(f32(1), f32(2), f32(3), 0, &fpsr)
		Expect(r).To(Equal(f32(7)))
		Expect(fpsr).To(Equal(fp.FPSR(0)))
	})

	It("should round once, not twice", func() {
		// (1+2^-12)^2 = 1 + 2^-11 + 2^-24. Subtracting 1 leaves
		// 2^-11 + 2^-24, which is exactly representable. A separate
		// multiply would have rounded the 2^-24 term away.
		op := uint32(0x3F800800) // 1 + 2^-12
		r := fp.FPMulAdd32(f32(-1), op, op, 0, &fpsr)
		Expect(r).To(Equal(uint32(0x3A000400)))
		Expect(fpsr.IXC()).To(BeFalse())
	})

	It("should produce +0 under nearest-even when a*b exactly cancels the addend", func() {
		r := fp.FPMulAdd32(f32(-6), f32(2), f32(3), 0, &fpsr)
		Expect(r).To(Equal(uint32(0)))
	})

	It("should produce -0 for exact cancellation under round-toward-minus-infinity", func() {
		fpcr := fp.FPCR(0).WithRMode(fp.RoundTowardsMinusInfinity)
		r := fp.FPMulAdd32(f32(-6), f32(2), f32(3), fpcr, &fpsr)
		Expect(r).To(Equal(uint32(0x80000000)))
	})

	It("should keep the addend sign for same-signed zero sums", func() {
		r := fp.FPMulAdd32(0x80000000, 0x80000000, f32(1), 0, &fpsr)
		Expect(r).To(Equal(uint32(0x80000000)))
	})

	It("should raise IOC and return the default NaN for inf times zero", func() {
		r := fp.FPMulAdd32(f32(1), fp.Inf32(false), f32(0), 0, &fpsr)
		Expect(r).To(Equal(fp.DefaultNaN32))
		Expect(fpsr.IOC()).To(BeTrue())
	})

	It("should return the default NaN when the addend is a quiet NaN beside inf times zero", func() {
		r := fp.FPMulAdd32(0x7FC00099, fp.Inf32(false), f32(0), 0, &fpsr)
		Expect(r).To(Equal(fp.DefaultNaN32))
		Expect(fpsr.IOC()).To(BeTrue())
	})

	It("should propagate a quieted signalling NaN over a quiet addend NaN", func() {
		r := fp.FPMulAdd32(0x7FC00099, 0x7F800001, f32(1), 0, &fpsr)
		Expect(r).To(Equal(uint32(0x7FC00001)))
		Expect(fpsr.IOC()).To(BeTrue())
	})

	It("should raise IOC for opposite-signed infinite addend and product", func() {
		r := fp.FPMulAdd32(fp.Inf32(true), fp.Inf32(false), f32(1), 0, &fpsr)
		Expect(r).To(Equal(fp.DefaultNaN32))
		Expect(fpsr.IOC()).To(BeTrue())
	})

	It("should flush denormal inputs under FTZ and raise IDC", func() {
		fpcr := fp.FPCR(0).WithFTZ(true)
		r := fp.FPMulAdd32(f32(0), 0x00000001, f32(1), fpcr, &fpsr)
		Expect(r).To(Equal(uint32(0)))
		Expect(fpsr.IDC()).To(BeTrue())
	})

	It("should flush a tiny result to zero under FTZ and raise UFC", func() {
		fpcr := fp.FPCR(0).WithFTZ(true)
		// smallest normal * 2^-1 is tiny
		r := fp.FPMulAdd32(f32(0), fp.SmallestNormal32, f32(0.5), fpcr, &fpsr)
		Expect(r).To(Equal(uint32(0)))
		Expect(fpsr.UFC()).To(BeTrue())
	})

	It("should saturate to the largest finite value under round-toward-zero overflow", func() {
		fpcr := fp.FPCR(0).WithRMode(fp.RoundTowardsZero)
		big := fp.MaxFinite32
		r := fp.FPMulAdd32(f32(0), big, f32(2), fpcr, &fpsr)
		Expect(r).To(Equal(fp.MaxFinite32))
		Expect(fpsr.OFC()).To(BeTrue())
		Expect(fpsr.IXC()).To(BeTrue())
	})

	It("should overflow to infinity under nearest-even", func() {
		r := fp.FPMulAdd32(f32(0), fp.MaxFinite32, f32(2), 0, &fpsr)
		Expect(r).To(Equal(fp.Inf32(false)))
		Expect(fpsr.OFC()).To(BeTrue())
	})

	It("should handle double-precision operands", func() {
		r := fp.FPMulAdd64(f64(1), f64(2), f64(3), 0, &fpsr)
		Expect(r).To(Equal(f64(7)))
	})

	It("should match math.FMA on double-precision normals", func() {
		cases := [][3]float64{
			{1.5, 2.25, -3.125},
			{1e-300, 1e300, 1.0},
			{-0.1, 0.7, 123456.789},
			{3.141592653589793, 2.718281828459045, -8.539734222673566},
		}
		for _, c := range cases {
			want := f64(math.FMA(c[1], c[2], c[0]))
			got := fp.FPMulAdd64(f64(c[0]), f64(c[1]), f64(c[2]), 0, &fpsr)
			Expect(got).To(Equal(want))
		}
	})
})

var _ = Describe("FPRecipStepFused", func() {
	var fpsr fp.FPSR

	BeforeEach(func() {
		fpsr = 0
	})

	It("should compute 2 - a*b", func() {
		r := fp.FPRecipStepFused32(f32(1), f32(1), 0, &fpsr)
		Expect(r).To(Equal(f32(1)))
	})

	It("should return exactly 2.0 for the 0 times inf pairing", func() {
		r := fp.FPRecipStepFused32(f32(0), fp.Inf32(false), 0, &fpsr)
		Expect(r).To(Equal(fp.Two32))
		Expect(fpsr).To(Equal(fp.FPSR(0)))
	})

	It("should produce a negative infinity when one operand is infinite", func() {
		r := fp.FPRecipStepFused32(fp.Inf32(false), f32(1), 0, &fpsr)
		Expect(r).To(Equal(fp.Inf32(true)))
	})
})

var _ = Describe("FPRSqrtStepFused", func() {
	var fpsr fp.FPSR

	BeforeEach(func() {
		fpsr = 0
	})

	It("should compute (3 - a*b) / 2", func() {
		r := fp.FPRSqrtStepFused32(f32(1), f32(1), 0, &fpsr)
		Expect(r).To(Equal(f32(1)))
	})

	It("should return exactly 1.5 for the 0 times inf pairing", func() {
		r := fp.FPRSqrtStepFused32(fp.Inf32(true), f32(0), 0, &fpsr)
		Expect(r).To(Equal(fp.OnePointFive32))
	})

	It("should halve without a second rounding", func() {
		// (3 - 0.5*0.5) / 2 = 1.375 exactly.
		r := fp.FPRSqrtStepFused64(f64(0.5), f64(0.5), 0, &fpsr)
		Expect(r).To(Equal(f64(1.375)))
	})
})
