package backend_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a32jit/backend"
	"github.com/sarchlab/a32jit/fp"
	"github.com/sarchlab/a32jit/ir"
	"github.com/sarchlab/a32jit/x64"
)

// newCtx builds an emission context with explicit host features so
// tests do not depend on the machine they run on.
func newCtx(features x64.Features, fpcr fp.FPCR, accurateNaN bool) (*backend.EmitContext, *x64.Assembler) {
	code := x64.NewAssembler(
		x64.WithFeatures(features),
		x64.WithWindowsABI(false),
	)
	ctx := &backend.EmitContext{
		Code:              code,
		RegAlloc:          backend.NewRegAlloc(code),
		State:             backend.StateInfo(),
		FPCR:              fpcr,
		AccurateNaNPolicy: accurateNaN,
	}
	return ctx, code
}

func newWindowsCtx(features x64.Features, fpcr fp.FPCR, accurateNaN bool) (*backend.EmitContext, *x64.Assembler) {
	code := x64.NewAssembler(
		x64.WithFeatures(features),
		x64.WithWindowsABI(true),
	)
	ctx := &backend.EmitContext{
		Code:              code,
		RegAlloc:          backend.NewRegAlloc(code),
		State:             backend.StateInfo(),
		FPCR:              fpcr,
		AccurateNaNPolicy: accurateNaN,
	}
	return ctx, code
}

// binaryBlock builds q0 = op(q0, q1) for a two-operand constructor.
func binaryBlock(op func(e *ir.A32Emitter, a, b ir.Value) ir.Value) *ir.Block {
	e := ir.NewA32Emitter(ir.LocationDescriptor{})
	a := e.GetVector(ir.Q0)
	b := e.GetVector(ir.Q0 + 1)
	e.SetVector(ir.Q0, op(e, a, b))
	return e.Block
}

var _ = Describe("EmitBlock", func() {
	Describe("FPVectorEqual32", func() {
		It("should produce the exact compare sequence", func() {
			ctx, code := newCtx(x64.Features{}, 0, true)

			block := binaryBlock(func(e *ir.A32Emitter, a, b ir.Value) ir.Value {
				return e.FPVectorEqual(32, a, b)
			})
			backend.EmitBlock(ctx, block)

			Expect(code.Finalize()).To(Equal([]byte{
				0x41, 0x0F, 0x28, 0x4F, 0x40, // movaps xmm1, [r15+64]
				0x41, 0x0F, 0x28, 0x57, 0x50, // movaps xmm2, [r15+80]
				0x0F, 0xC2, 0xCA, 0x00, // cmpeqps xmm1, xmm2
				0x41, 0x0F, 0x29, 0x4F, 0x40, // movaps [r15+64], xmm1
			}))
		})
	})

	Describe("FPVectorNeg32", func() {
		It("should XOR with a pooled sign-bit mask", func() {
			ctx, code := newCtx(x64.Features{}, 0, true)

			e := ir.NewA32Emitter(ir.LocationDescriptor{})
			e.SetVector(ir.Q0, e.FPVectorNeg(32, e.GetVector(ir.Q0)))
			backend.EmitBlock(ctx, e.Block)

			buf := code.Finalize()
			Expect(buf[:18]).To(Equal([]byte{
				0x41, 0x0F, 0x28, 0x4F, 0x40, // movaps xmm1, [r15+64]
				0x66, 0x0F, 0xEF, 0x0D, 0x13, 0x00, 0x00, 0x00, // pxor xmm1, [rip+19]
				0x41, 0x0F, 0x29, 0x4F, 0x40, // movaps [r15+64], xmm1
			}))
			// Sign-bit vector in the pool at the aligned tail.
			Expect(buf[32:40]).To(Equal([]byte{0, 0, 0, 0x80, 0, 0, 0, 0x80}))
		})
	})

	Describe("FPVectorAdd32", func() {
		addBlock := func() *ir.Block {
			return binaryBlock(func(e *ir.A32Emitter, a, b ir.Value) ir.Value {
				return e.FPVectorAdd(32, a, b)
			})
		}

		It("should stay on the straight-line path under default-NaN mode", func() {
			fpcr := fp.FPCR(0).WithDN(true)
			ctx, code := newCtx(x64.Features{}, fpcr, true)

			backend.EmitBlock(ctx, addBlock())

			Expect(code.FarLen()).To(BeZero())
			buf := code.Finalize()
			Expect(bytes.Contains(buf, []byte{0x0F, 0x58})).To(BeTrue())   // addps
			Expect(bytes.Contains(buf, []byte{0x66, 0x0F, 0x75})).To(BeTrue()) // pcmpeqw, NaN quieting
		})

		It("should emit a far-region software handler for accurate NaN propagation", func() {
			ctx, code := newCtx(x64.Features{SSE41: true}, 0, true)

			backend.EmitBlock(ctx, addBlock())

			Expect(code.FarLen()).To(BeNumerically(">", 0))
			buf := code.Finalize()
			Expect(bytes.Contains(buf, []byte{0x66, 0x0F, 0x38, 0x17})).To(BeTrue()) // ptest
			Expect(bytes.Contains(buf, []byte{0x48, 0xB8})).To(BeTrue())             // mov rax, entry
			Expect(bytes.Contains(buf, []byte{0xFF, 0xD0})).To(BeTrue())             // call rax
		})

		It("should test the mask with movmskps before SSE4.1", func() {
			ctx, code := newCtx(x64.Features{}, 0, true)

			backend.EmitBlock(ctx, addBlock())

			buf := code.Finalize()
			Expect(bytes.Contains(buf, []byte{0x0F, 0x50})).To(BeTrue()) // movmskps
		})
	})

	Describe("FPVectorMulAdd32", func() {
		mulAddBlock := func() *ir.Block {
			e := ir.NewA32Emitter(ir.LocationDescriptor{})
			a := e.GetVector(ir.Q0)
			b := e.GetVector(ir.Q0 + 1)
			c := e.GetVector(ir.Q0 + 2)
			e.SetVector(ir.Q0, e.FPVectorMulAdd(32, a, b, c))
			return e.Block
		}

		It("should use host FMA with a subnormal-result guard", func() {
			ctx, code := newCtx(x64.Features{SSE41: true, AVX: true, FMA: true}, 0, true)

			backend.EmitBlock(ctx, mulAddBlock())

			Expect(code.FarLen()).To(BeNumerically(">", 0))
			buf := code.Finalize()
			Expect(bytes.Contains(buf, []byte{0xC4, 0xE2, 0x69, 0xB8})).To(BeTrue()) // vfmadd231ps
			Expect(bytes.Contains(buf, []byte{0xC4, 0xE2, 0x79, 0x17})).To(BeTrue()) // vptest
		})

		It("should run fully in software without FMA", func() {
			ctx, code := newCtx(x64.Features{SSE41: true}, 0, true)

			backend.EmitBlock(ctx, mulAddBlock())

			Expect(code.FarLen()).To(BeZero())
			buf := code.Finalize()
			Expect(bytes.Contains(buf, []byte{0x48, 0xB8})).To(BeTrue())
			Expect(bytes.Contains(buf, []byte{0xFF, 0xD0})).To(BeTrue())
		})
	})

	Describe("FPVectorRoundInt32", func() {
		roundBlock := func(rounding uint8, exact bool) *ir.Block {
			e := ir.NewA32Emitter(ir.LocationDescriptor{})
			e.SetVector(ir.Q0, e.FPVectorRoundInt(32, e.GetVector(ir.Q0), rounding, exact))
			return e.Block
		}

		It("should use the host rounding instruction when it can", func() {
			fpcr := fp.FPCR(0).WithDN(true)
			ctx, code := newCtx(x64.Features{SSE41: true}, fpcr, true)

			backend.EmitBlock(ctx, roundBlock(uint8(fp.RoundTowardsZero), false))

			buf := code.Finalize()
			Expect(bytes.Contains(buf, []byte{0x66, 0x0F, 0x3A, 0x08})).To(BeTrue()) // roundps
			Expect(bytes.Contains(buf, []byte{0xFF, 0xD0})).To(BeFalse())
		})

		It("should fall back to software when exactness reporting is requested", func() {
			ctx, code := newCtx(x64.Features{SSE41: true}, 0, true)

			backend.EmitBlock(ctx, roundBlock(uint8(fp.RoundTowardsZero), true))

			buf := code.Finalize()
			Expect(bytes.Contains(buf, []byte{0x66, 0x0F, 0x3A, 0x08})).To(BeFalse())
			Expect(bytes.Contains(buf, []byte{0xFF, 0xD0})).To(BeTrue())
		})

		It("should fall back to software for tie-away rounding", func() {
			ctx, code := newCtx(x64.Features{SSE41: true}, 0, true)

			backend.EmitBlock(ctx, roundBlock(uint8(fp.RoundToNearestTieAwayFromZero), false))

			buf := code.Finalize()
			Expect(bytes.Contains(buf, []byte{0xFF, 0xD0})).To(BeTrue())
		})
	})

	Describe("FPVectorU32ToSingle", func() {
		convBlock := func() *ir.Block {
			e := ir.NewA32Emitter(ir.LocationDescriptor{})
			e.SetVector(ir.Q0, e.FPVectorU32ToSingle(e.GetVector(ir.Q0)))
			return e.Block
		}

		It("should use the bias trick without AVX-512", func() {
			ctx, code := newCtx(x64.Features{}, 0, true)

			backend.EmitBlock(ctx, convBlock())

			buf := code.Finalize()
			// The 0x4B000000 bias constant lands in the pool.
			Expect(bytes.Contains(buf, []byte{0x00, 0x00, 0x00, 0x4B, 0x00, 0x00, 0x00, 0x4B})).To(BeTrue())
		})

		It("should clear the sign bit under round-toward-minus-infinity", func() {
			fpcr := fp.FPCR(0).WithRMode(fp.RoundTowardsMinusInfinity)
			ctx, code := newCtx(x64.Features{}, fpcr, true)

			backend.EmitBlock(ctx, convBlock())

			buf := code.Finalize()
			Expect(bytes.Contains(buf, []byte{0xFF, 0xFF, 0xFF, 0x7F, 0xFF, 0xFF, 0xFF, 0x7F})).To(BeTrue())
		})

		It("should emit the EVEX conversion on AVX-512 hosts", func() {
			ctx, code := newCtx(x64.Features{SSE41: true, AVX: true, AVX512: true}, 0, true)

			backend.EmitBlock(ctx, convBlock())

			buf := code.Finalize()
			Expect(bytes.Contains(buf, []byte{0x62, 0xF1, 0x7F, 0x08, 0x7A})).To(BeTrue())
		})
	})

	Describe("FPVectorRecipStepFused32", func() {
		stepBlock := func() *ir.Block {
			return binaryBlock(func(e *ir.A32Emitter, a, b ir.Value) ir.Value {
				return e.FPVectorRecipStepFused(32, a, b)
			})
		}

		It("should pass the fifth parameter in a register under System V", func() {
			ctx, code := newCtx(x64.Features{}, 0, true)

			backend.EmitBlock(ctx, stepBlock())

			buf := code.Finalize()
			// lea r8, [r15+disp]
			Expect(bytes.Contains(buf, []byte{0x4D, 0x8D})).To(BeTrue())
		})

		It("should pass the fifth parameter on the stack under Windows", func() {
			ctx, code := newWindowsCtx(x64.Features{}, 0, true)

			backend.EmitBlock(ctx, stepBlock())

			buf := code.Finalize()
			// mov [rsp+32], rax
			Expect(bytes.Contains(buf, []byte{0x48, 0x89, 0x44, 0x24, 0x20})).To(BeTrue())
		})
	})

	Describe("contract violations", func() {
		It("should reject opcodes outside the vector FP subset", func() {
			ctx, _ := newCtx(x64.Features{}, 0, true)
			e := ir.NewA32Emitter(ir.LocationDescriptor{})
			e.SetRegister(ir.R0, ir.Imm32(1))

			Expect(func() { backend.EmitBlock(ctx, e.Block) }).To(Panic())
		})
	})
})
