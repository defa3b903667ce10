package backend

import (
	"unsafe"

	"github.com/sarchlab/a32jit/fp"
)

// JitState is the guest context block emitted code addresses through
// R15. It holds the A32 core registers, the extended register bank
// viewed as 32-bit lanes, the guest control word, and the accumulated
// exception word software fallbacks write through a raw pointer.
type JitState struct {
	Regs    [16]uint32
	ExtRegs [64]uint32

	CpsrNZCV uint32
	CpsrGE   uint32

	FPSCR   uint32
	FpsrExc fp.FPSR
}

// FPCR returns the control word the emitter specializes blocks on.
func (s *JitState) FPCR() fp.FPCR {
	return fp.FPCR(s.FPSCR)
}

// FpsrExcPtr returns the address of the exception word, for handing
// to software fallbacks.
func (s *JitState) FpsrExcPtr() *fp.FPSR {
	return &s.FpsrExc
}

// JitStateInfo describes the byte layout of JitState, read by the
// emitter when forming R15-relative addresses.
type JitStateInfo struct {
	// OffsetofFPSRExc is the byte offset of the accumulated FPSR
	// exception word.
	OffsetofFPSRExc int32

	// OffsetofExtRegs is the byte offset of the extended register
	// bank. The block holding it must be 16-byte aligned so quad
	// accesses can use aligned vector moves.
	OffsetofExtRegs int32
}

// StateInfo returns the layout of JitState.
func StateInfo() JitStateInfo {
	return JitStateInfo{
		OffsetofFPSRExc: int32(unsafe.Offsetof(JitState{}.FpsrExc)),
		OffsetofExtRegs: int32(unsafe.Offsetof(JitState{}.ExtRegs)),
	}
}
