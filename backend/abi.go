package backend

import "github.com/sarchlab/a32jit/x64"

// shadowSpace returns the stack bytes reserved for the callee's
// register home area: 32 on Windows, none under System V.
func shadowSpace(code *x64.Assembler) int32 {
	if code.WindowsABI() {
		return 32
	}
	return 0
}

// abiParams returns the integer parameter registers in order.
func abiParams(code *x64.Assembler) []x64.Gpr {
	if code.WindowsABI() {
		return []x64.Gpr{x64.RCX, x64.RDX, x64.R8, x64.R9}
	}
	return []x64.Gpr{x64.RDI, x64.RSI, x64.RDX, x64.RCX, x64.R8, x64.R9}
}

func abiCallerSaveGprs(code *x64.Assembler) []x64.Gpr {
	if code.WindowsABI() {
		return []x64.Gpr{x64.RAX, x64.RCX, x64.RDX, x64.R8, x64.R9, x64.R10, x64.R11}
	}
	return []x64.Gpr{
		x64.RAX, x64.RCX, x64.RDX, x64.RSI, x64.RDI,
		x64.R8, x64.R9, x64.R10, x64.R11,
	}
}

func abiCallerSaveXmms(code *x64.Assembler) []x64.Xmm {
	if code.WindowsABI() {
		return []x64.Xmm{x64.XMM0, x64.XMM1, x64.XMM2, x64.XMM3, x64.XMM4, x64.XMM5}
	}
	xmms := make([]x64.Xmm, 16)
	for i := range xmms {
		xmms[i] = x64.Xmm(i)
	}
	return xmms
}

// abiPushCallerSaveExcept saves every caller-save register except the
// given XMM, which carries the live result across the call. The
// sequence expects a 16-byte aligned stack on entry and restores that
// alignment itself, so the vector save area and the subsequent call
// site are both correctly aligned.
func abiPushCallerSaveExcept(code *x64.Assembler, except x64.Xmm) {
	gprs := abiCallerSaveGprs(code)
	for _, g := range gprs {
		code.PUSH(g)
	}
	if len(gprs)%2 == 1 {
		code.SUBImm(x64.RSP, 8)
	}
	xmms := abiCallerSaveXmms(code)
	code.SUBImm(x64.RSP, int32(len(xmms)*16))
	for i, x := range xmms {
		if x == except {
			continue
		}
		code.MOVAPSStore(x64.Ptr(x64.RSP, int32(i*16)), x)
	}
}

// abiPopCallerSaveExcept undoes abiPushCallerSaveExcept.
func abiPopCallerSaveExcept(code *x64.Assembler, except x64.Xmm) {
	xmms := abiCallerSaveXmms(code)
	for i, x := range xmms {
		if x == except {
			continue
		}
		code.MOVAPS(x, x64.Ptr(x64.RSP, int32(i*16)))
	}
	code.ADDImm(x64.RSP, int32(len(xmms)*16))
	gprs := abiCallerSaveGprs(code)
	if len(gprs)%2 == 1 {
		code.ADDImm(x64.RSP, 8)
	}
	for i := len(gprs) - 1; i >= 0; i-- {
		code.POP(gprs[i])
	}
}
