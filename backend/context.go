package backend

import (
	"github.com/sarchlab/a32jit/fp"
	"github.com/sarchlab/a32jit/ir"
	"github.com/sarchlab/a32jit/x64"
)

// EmitContext carries everything one block emission needs: the
// assembler, the allocator, the guest control state the block is
// specialized on, and the guest-state layout.
type EmitContext struct {
	Code     *x64.Assembler
	RegAlloc *RegAlloc
	State    JitStateInfo

	// FPCR is the guest control word the block is specialized for.
	// It is read at emission time only.
	FPCR fp.FPCR

	// AccurateNaNPolicy selects exact ARM NaN propagation when
	// default-NaN mode is off.
	AccurateNaNPolicy bool
}

// FPSCRDN reports whether default-NaN mode is active.
func (ctx *EmitContext) FPSCRDN() bool { return ctx.FPCR.DN() }

// FPSCRFTZ reports whether flush-to-zero mode is active.
func (ctx *EmitContext) FPSCRFTZ() bool { return ctx.FPCR.FTZ() }

// FPSCRRMode returns the rounding mode the block is specialized for.
func (ctx *EmitContext) FPSCRRMode() fp.RoundingMode { return ctx.FPCR.RMode() }

// AccurateNaN reports whether exact ARM NaN propagation is required.
func (ctx *EmitContext) AccurateNaN() bool { return ctx.AccurateNaNPolicy }

// EmitBlock walks the block and lowers every instruction, releasing
// per-instruction allocator state between instructions. Instructions
// outside the vector floating-point subset handled by this back end
// panic: lowering them belongs to the surrounding JIT.
func EmitBlock(ctx *EmitContext, block *ir.Block) {
	for _, inst := range block.Insts() {
		switch inst.Op() {
		case ir.OpA32GetVector:
			emitA32GetVector(ctx, inst)
		case ir.OpA32SetVector:
			emitA32SetVector(ctx, inst)
		default:
			EmitInst(ctx, inst)
		}
		ctx.RegAlloc.EndOfAllocScope()
		ctx.RegAlloc.ReleaseScratches()
	}
}
