package backend

import (
	"github.com/sarchlab/a32jit/ir"
	"github.com/sarchlab/a32jit/x64"
)

// quadOffset returns the R15-relative byte offset of a NEON quad
// register within the guest state block.
func quadOffset(ctx *EmitContext, reg ir.ExtReg) int32 {
	if !reg.IsQuad() {
		panic("backend: vector access requires a quad register")
	}
	return ctx.State.OffsetofExtRegs + int32(reg-ir.Q0)*16
}

// emitA32GetVector loads a guest quad register into a host vector
// register. The guest state block is 16-byte aligned, so the aligned
// load form applies.
func emitA32GetVector(ctx *EmitContext, inst *ir.Inst) {
	ra := ctx.RegAlloc
	reg := inst.Arg(0).ExtReg()

	result := ra.ScratchXmm()
	ctx.Code.MOVAPS(result, x64.Ptr(x64.R15, quadOffset(ctx, reg)))

	ra.DefineValue(inst, result)
}

// emitA32SetVector stores a vector value back to a guest quad
// register.
func emitA32SetVector(ctx *EmitContext, inst *ir.Inst) {
	ra := ctx.RegAlloc
	reg := inst.Arg(0).ExtReg()

	args := ra.Args(inst)
	value := ra.UseXmm(args[1])
	ctx.Code.MOVAPSStore(x64.Ptr(x64.R15, quadOffset(ctx, reg)), value)
}
