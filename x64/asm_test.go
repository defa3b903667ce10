package x64_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a32jit/x64"
)

func newAsm() *x64.Assembler {
	return x64.NewAssembler(x64.WithFeatures(x64.Features{}))
}

var _ = Describe("Instruction encoding", func() {
	var a *x64.Assembler

	BeforeEach(func() {
		a = newAsm()
	})

	It("should encode packed single arithmetic", func() {
		a.ADDPS(x64.XMM1, x64.XMM2)
		Expect(a.Finalize()).To(Equal([]byte{0x0F, 0x58, 0xCA}))
	})

	It("should encode packed double arithmetic with the operand-size prefix", func() {
		a.ADDPD(x64.XMM0, x64.XMM1)
		Expect(a.Finalize()).To(Equal([]byte{0x66, 0x0F, 0x58, 0xC1}))
	})

	It("should emit REX.R for high destination registers", func() {
		a.MOVAPS(x64.XMM8, x64.XMM1)
		Expect(a.Finalize()).To(Equal([]byte{0x44, 0x0F, 0x28, 0xC1}))
	})

	It("should emit REX.B for high source registers", func() {
		a.MOVAPS(x64.XMM1, x64.XMM9)
		Expect(a.Finalize()).To(Equal([]byte{0x41, 0x0F, 0x28, 0xC9}))
	})

	It("should encode compare predicates as a trailing immediate", func() {
		a.CMPPS(x64.XMM1, x64.XMM2, x64.CmpUnord)
		Expect(a.Finalize()).To(Equal([]byte{0x0F, 0xC2, 0xCA, 0x03}))
	})

	It("should encode the 0F38 escape", func() {
		a.PTEST(x64.XMM1, x64.XMM2)
		Expect(a.Finalize()).To(Equal([]byte{0x66, 0x0F, 0x38, 0x17, 0xCA}))
	})

	It("should encode the 0F3A escape with an immediate", func() {
		a.ROUNDPD(x64.XMM1, x64.XMM2, x64.RoundTruncate)
		Expect(a.Finalize()).To(Equal([]byte{0x66, 0x0F, 0x3A, 0x09, 0xCA, 0x03}))
	})

	It("should encode a shift-group instruction with the opcode extension in the reg field", func() {
		a.PSRLD(x64.XMM2, 16)
		Expect(a.Finalize()).To(Equal([]byte{0x66, 0x0F, 0x72, 0xD2, 0x10}))
	})

	It("should encode the three-operand VEX FMA form", func() {
		a.VFMADD231PS(x64.XMM1, x64.XMM2, x64.XMM3)
		Expect(a.Finalize()).To(Equal([]byte{0xC4, 0xE2, 0x69, 0xB8, 0xCB}))
	})

	It("should encode VEX compares with extended predicates", func() {
		a.VCMPPS(x64.XMM1, x64.XMM2, x64.XMM3, x64.CmpEQUQ)
		Expect(a.Finalize()).To(Equal([]byte{0xC4, 0xE1, 0x68, 0xC2, 0xCB, 0x08}))
	})

	It("should encode the blend selector in the high immediate nibble", func() {
		a.VBLENDVPS(x64.XMM1, x64.XMM2, x64.XMM3, x64.XMM4)
		Expect(a.Finalize()).To(Equal([]byte{0xC4, 0xE3, 0x69, 0x4A, 0xCB, 0x40}))
	})

	It("should encode the EVEX unsigned conversion", func() {
		a.VCVTUDQ2PS(x64.XMM1, x64.XMM2)
		Expect(a.Finalize()).To(Equal([]byte{0x62, 0xF1, 0x7F, 0x08, 0x7A, 0xCA}))
	})

	It("should encode quadword moves between register files", func() {
		a.MOVQ(x64.XMM1, x64.RAX)
		Expect(a.Finalize()).To(Equal([]byte{0x66, 0x48, 0x0F, 0x6E, 0xC8}))
	})

	It("should encode quadword extraction", func() {
		a.PEXTRQ(x64.RAX, x64.XMM1, 1)
		Expect(a.Finalize()).To(Equal([]byte{0x66, 0x48, 0x0F, 0x3A, 0x16, 0xC8, 0x01}))
	})

	It("should encode RSP-based addressing with a SIB byte", func() {
		a.LEA(x64.RDI, x64.Ptr(x64.RSP, 40))
		Expect(a.Finalize()).To(Equal([]byte{0x48, 0x8D, 0x7C, 0x24, 0x28}))
	})

	It("should pick the narrow immediate form for small stack adjustments", func() {
		a.SUBImm(x64.RSP, 8)
		Expect(a.Finalize()).To(Equal([]byte{0x48, 0x83, 0xEC, 0x08}))
	})

	It("should fall back to the wide immediate form", func() {
		a.SUBImm(x64.RSP, 0x100)
		Expect(a.Finalize()).To(Equal([]byte{0x48, 0x81, 0xEC, 0x00, 0x01, 0x00, 0x00}))
	})

	It("should encode pushes of extended registers", func() {
		a.PUSH(x64.R8)
		a.POP(x64.R8)
		Expect(a.Finalize()).To(Equal([]byte{0x41, 0x50, 0x41, 0x58}))
	})

	It("should encode 64-bit immediate loads", func() {
		a.MOVImm64(x64.RAX, 0x1122334455667788)
		Expect(a.Finalize()).To(Equal([]byte{
			0x48, 0xB8, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
		}))
	})

	It("should encode sign-mask extraction", func() {
		a.MOVMSKPS(x64.RCX, x64.XMM3)
		Expect(a.Finalize()).To(Equal([]byte{0x0F, 0x50, 0xCB}))
	})

	It("should address R15-relative state with a displacement", func() {
		a.MOVAPS(x64.XMM1, x64.Ptr(x64.R15, 64))
		Expect(a.Finalize()).To(Equal([]byte{0x41, 0x0F, 0x28, 0x4F, 0x40}))
	})
})

var _ = Describe("Labels and regions", func() {
	var a *x64.Assembler

	BeforeEach(func() {
		a = newAsm()
	})

	It("should resolve a forward jump into the far region", func() {
		far := a.NewLabel()
		back := a.NewLabel()

		a.JNZ(far)
		a.L(back)

		a.SwitchToFarCode()
		a.L(far)
		a.JMP(back)
		a.SwitchToNearCode()

		buf := a.Finalize()
		// Near: jnz rel32 (6 bytes). Far begins right after.
		Expect(buf).To(HaveLen(6 + 5))
		rel := int32(binary.LittleEndian.Uint32(buf[2:]))
		Expect(rel).To(Equal(int32(0))) // target == end of jnz

		// The far jmp returns to offset 6.
		relBack := int32(binary.LittleEndian.Uint32(buf[7:]))
		Expect(int(relBack)).To(Equal(6 - len(buf)))
	})

	It("should panic on an unresolved label", func() {
		l := a.NewLabel()
		a.JMP(l)
		Expect(func() { a.Finalize() }).To(Panic())
	})

	It("should panic when a label is bound twice", func() {
		l := a.NewLabel()
		a.L(l)
		Expect(func() { a.L(l) }).To(Panic())
	})

	It("should panic on unbalanced region switches", func() {
		Expect(func() { a.SwitchToNearCode() }).To(Panic())
		a.SwitchToFarCode()
		Expect(func() { a.SwitchToFarCode() }).To(Panic())
	})

	It("should refuse to finalize inside the far region", func() {
		a.SwitchToFarCode()
		Expect(func() { a.Finalize() }).To(Panic())
	})
})

var _ = Describe("Constant pool", func() {
	var a *x64.Assembler

	BeforeEach(func() {
		a = newAsm()
	})

	It("should place constants 16-byte aligned after the code", func() {
		a.MOVAPS(x64.XMM0, a.Const16(0x1111111111111111, 0x2222222222222222))
		buf := a.Finalize()

		// movaps xmm0, [rip+disp]: 0F 28 05 d d d d = 7 bytes,
		// padded to 16 for the pool.
		Expect(buf).To(HaveLen(32))
		disp := int32(binary.LittleEndian.Uint32(buf[3:]))
		Expect(disp).To(Equal(int32(16 - 7)))
		Expect(binary.LittleEndian.Uint64(buf[16:])).To(Equal(uint64(0x1111111111111111)))
		Expect(binary.LittleEndian.Uint64(buf[24:])).To(Equal(uint64(0x2222222222222222)))
	})

	It("should deduplicate identical constants", func() {
		a.MOVAPS(x64.XMM0, a.Const16(1, 2))
		a.MOVAPS(x64.XMM1, a.Const16(1, 2))
		buf := a.Finalize()
		// Two 7-byte instructions, padded to 16, plus a single pool entry.
		Expect(buf).To(HaveLen(16 + 16))
	})

	It("should compute the displacement from the end of the instruction including immediates", func() {
		a.CMPPS(x64.XMM0, a.Const16(3, 4), x64.CmpEQ)
		buf := a.Finalize()
		// 0F C2 05 disp32 imm8 = 8 bytes.
		Expect(buf[0]).To(Equal(byte(0x0F)))
		Expect(buf[1]).To(Equal(byte(0xC2)))
		disp := int32(binary.LittleEndian.Uint32(buf[3:]))
		Expect(disp).To(Equal(int32(16 - 8)))
		Expect(buf[7]).To(Equal(byte(0x00)))
	})
})
