package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/sarchlab/a32jit/ir"
	"github.com/sarchlab/a32jit/x64"
)

// Vec32 is the lane view of a V128 holding four f32 values.
type Vec32 = [4]uint32

// Vec64 is the lane view of a V128 holding two f64 values.
type Vec64 = [2]uint64

// Fallback is a software routine reachable from emitted code. Fn is
// the Go reference implementation used by tests and the interpreter;
// Entry is the C-ABI trampoline address the runtime integration
// installs before emitted code may run.
type Fallback struct {
	Name  string
	Fn    any
	Entry uintptr
}

var (
	fallbackMu  sync.Mutex
	fallbackSet = map[string]*Fallback{}
)

// registerFallback interns a fallback routine by name.
func registerFallback(name string, fn any) *Fallback {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	if f, ok := fallbackSet[name]; ok {
		return f
	}
	f := &Fallback{Name: name, Fn: fn}
	fallbackSet[name] = f
	return f
}

// Fallbacks returns the names of every registered software routine,
// sorted, so the runtime integration can install entry addresses.
func Fallbacks() []string {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	names := lo.Keys(fallbackSet)
	sort.Strings(names)
	return names
}

// BindFallback installs the callable entry address for a registered
// routine.
func BindFallback(name string, entry uintptr) {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	f, ok := fallbackSet[name]
	if !ok {
		panic(fmt.Sprintf("backend: unknown fallback %q", name))
	}
	f.Entry = entry
}

// emitTwoOpFallback lowers a one-operand vector opcode entirely
// through a host call: the operand is spilled to a stack slot, the
// routine is called with (result_ptr, operand_ptr, fpcr, fpsr_ptr),
// and the result slot is reloaded into XMM0.
func emitTwoOpFallback(ctx *EmitContext, inst *ir.Inst, fb *Fallback) {
	code := ctx.Code
	ra := ctx.RegAlloc

	args := ra.Args(inst)
	arg1 := ra.UseXmm(args[0])
	ra.EndOfAllocScope()
	ra.HostCall()

	params := abiParams(code)
	shadow := shadowSpace(code)

	abiPushCallerSaveExcept(code, x64.XMM0)

	const stackSpace = 2 * 16
	code.SUBImm(x64.RSP, stackSpace+shadow)
	code.LEA(params[0], x64.Ptr(x64.RSP, shadow+0*16))
	code.LEA(params[1], x64.Ptr(x64.RSP, shadow+1*16))
	code.MOVImm32(params[2], uint32(ctx.FPCR))
	code.LEA(params[3], x64.Ptr(x64.R15, ctx.State.OffsetofFPSRExc))

	code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+1*16), arg1)
	code.CallFunction(fb.Entry)
	code.MOVAPS(x64.XMM0, x64.Ptr(x64.RSP, shadow+0*16))

	code.ADDImm(x64.RSP, stackSpace+shadow)
	abiPopCallerSaveExcept(code, x64.XMM0)

	ra.DefineValue(inst, x64.XMM0)
}

// emitThreeOpFallback is the two-operand variant:
// (result_ptr, a_ptr, b_ptr, fpcr, fpsr_ptr). Under the Windows ABI
// the fifth parameter travels on the stack above the shadow space.
func emitThreeOpFallback(ctx *EmitContext, inst *ir.Inst, fb *Fallback) {
	code := ctx.Code
	ra := ctx.RegAlloc

	args := ra.Args(inst)
	arg1 := ra.UseXmm(args[0])
	arg2 := ra.UseXmm(args[1])
	ra.EndOfAllocScope()
	ra.HostCall()

	params := abiParams(code)
	shadow := shadowSpace(code)

	abiPushCallerSaveExcept(code, x64.XMM0)

	if code.WindowsABI() {
		const stackSpace = 4 * 16
		code.SUBImm(x64.RSP, stackSpace+shadow)
		code.LEA(params[0], x64.Ptr(x64.RSP, shadow+1*16))
		code.LEA(params[1], x64.Ptr(x64.RSP, shadow+2*16))
		code.LEA(params[2], x64.Ptr(x64.RSP, shadow+3*16))
		code.MOVImm32(params[3], uint32(ctx.FPCR))
		code.LEA(x64.RAX, x64.Ptr(x64.R15, ctx.State.OffsetofFPSRExc))
		code.MOVStore(x64.Ptr(x64.RSP, shadow+0), x64.RAX)

		code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+2*16), arg1)
		code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+3*16), arg2)
		code.CallFunction(fb.Entry)
		code.MOVAPS(x64.XMM0, x64.Ptr(x64.RSP, shadow+1*16))
		code.ADDImm(x64.RSP, stackSpace+shadow)
	} else {
		const stackSpace = 3 * 16
		code.SUBImm(x64.RSP, stackSpace+shadow)
		code.LEA(params[0], x64.Ptr(x64.RSP, shadow+0*16))
		code.LEA(params[1], x64.Ptr(x64.RSP, shadow+1*16))
		code.LEA(params[2], x64.Ptr(x64.RSP, shadow+2*16))
		code.MOVImm32(params[3], uint32(ctx.FPCR))
		code.LEA(params[4], x64.Ptr(x64.R15, ctx.State.OffsetofFPSRExc))

		code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+1*16), arg1)
		code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+2*16), arg2)
		code.CallFunction(fb.Entry)
		code.MOVAPS(x64.XMM0, x64.Ptr(x64.RSP, shadow+0*16))
		code.ADDImm(x64.RSP, stackSpace+shadow)
	}

	abiPopCallerSaveExcept(code, x64.XMM0)

	ra.DefineValue(inst, x64.XMM0)
}

// emitFourOpFallbackWithoutRegAlloc emits the call sequence for a
// three-operand routine with the operands already in registers:
// (result_ptr, a_ptr, b_ptr, c_ptr, fpcr, fpsr_ptr). The fifth and
// sixth parameters travel on the stack under the Windows ABI.
func emitFourOpFallbackWithoutRegAlloc(ctx *EmitContext, result, arg1, arg2, arg3 x64.Xmm, fb *Fallback) {
	code := ctx.Code
	params := abiParams(code)
	shadow := shadowSpace(code)

	if code.WindowsABI() {
		const stackSpace = 5 * 16
		code.SUBImm(x64.RSP, stackSpace+shadow)
		code.LEA(params[0], x64.Ptr(x64.RSP, shadow+1*16))
		code.LEA(params[1], x64.Ptr(x64.RSP, shadow+2*16))
		code.LEA(params[2], x64.Ptr(x64.RSP, shadow+3*16))
		code.LEA(params[3], x64.Ptr(x64.RSP, shadow+4*16))
		code.MOVStoreImm32(x64.Ptr(x64.RSP, shadow+0), uint32(ctx.FPCR))
		code.LEA(x64.RAX, x64.Ptr(x64.R15, ctx.State.OffsetofFPSRExc))
		code.MOVStore(x64.Ptr(x64.RSP, shadow+8), x64.RAX)

		code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+2*16), arg1)
		code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+3*16), arg2)
		code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+4*16), arg3)
		code.CallFunction(fb.Entry)
		code.MOVAPS(result, x64.Ptr(x64.RSP, shadow+1*16))
		code.ADDImm(x64.RSP, stackSpace+shadow)
		return
	}

	const stackSpace = 4 * 16
	code.SUBImm(x64.RSP, stackSpace+shadow)
	code.LEA(params[0], x64.Ptr(x64.RSP, shadow+0*16))
	code.LEA(params[1], x64.Ptr(x64.RSP, shadow+1*16))
	code.LEA(params[2], x64.Ptr(x64.RSP, shadow+2*16))
	code.LEA(params[3], x64.Ptr(x64.RSP, shadow+3*16))
	code.MOVImm32(params[4], uint32(ctx.FPCR))
	code.LEA(params[5], x64.Ptr(x64.R15, ctx.State.OffsetofFPSRExc))

	code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+1*16), arg1)
	code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+2*16), arg2)
	code.MOVAPSStore(x64.Ptr(x64.RSP, shadow+3*16), arg3)
	code.CallFunction(fb.Entry)
	code.MOVAPS(result, x64.Ptr(x64.RSP, shadow+0*16))
	code.ADDImm(x64.RSP, stackSpace+shadow)
}

// emitFourOpFallback lowers a three-operand vector opcode through a
// host call.
func emitFourOpFallback(ctx *EmitContext, inst *ir.Inst, fb *Fallback) {
	ra := ctx.RegAlloc

	args := ra.Args(inst)
	arg1 := ra.UseXmm(args[0])
	arg2 := ra.UseXmm(args[1])
	arg3 := ra.UseXmm(args[2])
	ra.EndOfAllocScope()
	ra.HostCall()

	abiPushCallerSaveExcept(ctx.Code, x64.XMM0)
	emitFourOpFallbackWithoutRegAlloc(ctx, x64.XMM0, arg1, arg2, arg3, fb)
	abiPopCallerSaveExcept(ctx.Code, x64.XMM0)

	ra.DefineValue(inst, x64.XMM0)
}
