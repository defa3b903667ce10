package fp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a32jit/fp"
)

var _ = Describe("ProcessNaNs", func() {
	const (
		sNaN = uint32(0x7F800001)
		qNaN = uint32(0x7FC00099)
	)

	var fpsr fp.FPSR

	BeforeEach(func() {
		fpsr = 0
	})

	It("should return nothing when no operand is a NaN", func() {
		_, ok := fp.ProcessNaNs32(0x3F800000, 0x40000000, 0, &fpsr)
		Expect(ok).To(BeFalse())
		Expect(fpsr).To(Equal(fp.FPSR(0)))
	})

	It("should quiet a signalling NaN and raise IOC", func() {
		r, ok := fp.ProcessNaNs32(sNaN, 0x3F800000, 0, &fpsr)
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(uint32(0x7FC00001)))
		Expect(fpsr.IOC()).To(BeTrue())
	})

	It("should prefer a signalling NaN in the second operand over a quiet NaN in the first", func() {
		r, ok := fp.ProcessNaNs32(qNaN, sNaN, 0, &fpsr)
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(uint32(0x7FC00001)))
	})

	It("should pick the first quiet NaN when no signalling NaN is present", func() {
		r, ok := fp.ProcessNaNs32(qNaN, 0x7FC00001, 0, &fpsr)
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(qNaN))
		Expect(fpsr.IOC()).To(BeFalse())
	})

	It("should force the default NaN when DN is set", func() {
		fpcr := fp.FPCR(0).WithDN(true)
		r, ok := fp.ProcessNaNs32(qNaN, 0, fpcr, &fpsr)
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(fp.DefaultNaN32))
	})

	It("should apply the same ordering in the three-operand rule", func() {
		r, ok := fp.ProcessNaNs32x3(qNaN, 0x3F800000, sNaN, 0, &fpsr)
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(uint32(0x7FC00001)))
	})

	It("should handle double precision patterns", func() {
		const sNaN64 = uint64(0x7FF0000000000001)
		r, ok := fp.ProcessNaNs64(0x3FF0000000000000, sNaN64, 0, &fpsr)
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(uint64(0x7FF8000000000001)))
		Expect(fpsr.IOC()).To(BeTrue())
	})
})

var _ = Describe("FPCR", func() {
	It("should round-trip the rounding mode field", func() {
		fpcr := fp.FPCR(0).WithRMode(fp.RoundTowardsMinusInfinity)
		Expect(fpcr.RMode()).To(Equal(fp.RoundTowardsMinusInfinity))
		Expect(uint32(fpcr)).To(Equal(uint32(0b10 << 22)))
	})

	It("should place DN and FTZ at the FPSCR bit positions", func() {
		fpcr := fp.FPCR(0).WithDN(true).WithFTZ(true)
		Expect(uint32(fpcr)).To(Equal(uint32(1<<25 | 1<<24)))
		Expect(fpcr.DN()).To(BeTrue())
		Expect(fpcr.FTZ()).To(BeTrue())
	})
})
