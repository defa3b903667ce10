// Package backend lowers IR blocks to x86-64 machine code. It owns
// the register-allocator contract, the guest-state descriptor, the
// NaN/denormal fix-up kernel, and one emission routine per vector
// floating-point opcode.
package backend

import (
	"fmt"

	"github.com/sarchlab/a32jit/ir"
	"github.com/sarchlab/a32jit/x64"
)

// Argument wraps one operand of the instruction being lowered.
type Argument struct {
	value ir.Value
}

// Value returns the underlying IR value.
func (a Argument) Value() ir.Value { return a.value }

// U8 returns the payload of an 8-bit immediate argument.
func (a Argument) U8() uint8 { return a.value.U8() }

// U1 returns the payload of a 1-bit immediate argument.
func (a Argument) U1() bool { return a.value.U1() }

// xmmPool excludes XMM0, which is reserved as the host-call return
// register and the implicit blend operand.
var xmmPool = []x64.Xmm{
	x64.XMM1, x64.XMM2, x64.XMM3, x64.XMM4, x64.XMM5, x64.XMM6, x64.XMM7,
	x64.XMM8, x64.XMM9, x64.XMM10, x64.XMM11, x64.XMM12, x64.XMM13,
	x64.XMM14, x64.XMM15,
}

// gprPool excludes RSP, RBP, R15 (the guest-state pointer) and RAX
// (clobbered by CallFunction).
var gprPool = []x64.Gpr{
	x64.RCX, x64.RDX, x64.RSI, x64.RDI, x64.R8, x64.R9, x64.R10, x64.R11,
}

// RegAlloc is a linear allocator satisfying the contract the vector
// FP emitters consume: operand reads through Use/UseScratch, fresh
// registers through Scratch, result binding through DefineValue, and
// an explicit end of the operand scope.
type RegAlloc struct {
	code *x64.Assembler

	binding   map[*ir.Inst]x64.Xmm
	remaining map[*ir.Inst]int

	freeXmm map[x64.Xmm]bool
	freeGpr map[x64.Gpr]bool

	pendingUses []*ir.Inst
	scratchXmms []x64.Xmm
	scratchGprs []x64.Gpr
}

// NewRegAlloc creates an allocator emitting spill/copy code through
// the given assembler.
func NewRegAlloc(code *x64.Assembler) *RegAlloc {
	r := &RegAlloc{
		code:      code,
		binding:   make(map[*ir.Inst]x64.Xmm),
		remaining: make(map[*ir.Inst]int),
		freeXmm:   make(map[x64.Xmm]bool),
		freeGpr:   make(map[x64.Gpr]bool),
	}
	for _, x := range xmmPool {
		r.freeXmm[x] = true
	}
	for _, g := range gprPool {
		r.freeGpr[g] = true
	}
	return r
}

// Args returns the ordered operand list of the instruction.
func (r *RegAlloc) Args(inst *ir.Inst) []Argument {
	args := make([]Argument, inst.NumArgs())
	for i := range args {
		args[i] = Argument{value: inst.Arg(i)}
	}
	return args
}

// Bind assigns a register to a value produced outside the walked
// block (an incoming value already materialized by the caller).
func (r *RegAlloc) Bind(inst *ir.Inst, reg x64.Xmm) {
	if !r.freeXmm[reg] {
		panic(fmt.Sprintf("backend: register %v is not free", reg))
	}
	delete(r.freeXmm, reg)
	r.binding[inst] = reg
	r.remaining[inst] = inst.Uses()
}

func (r *RegAlloc) allocXmm() x64.Xmm {
	for _, x := range xmmPool {
		if r.freeXmm[x] {
			delete(r.freeXmm, x)
			return x
		}
	}
	panic("backend: out of XMM registers")
}

func (r *RegAlloc) allocGpr() x64.Gpr {
	for _, g := range gprPool {
		if r.freeGpr[g] {
			delete(r.freeGpr, g)
			return g
		}
	}
	panic("backend: out of scratch GPRs")
}

func (r *RegAlloc) lookup(arg Argument) (*ir.Inst, x64.Xmm) {
	inst := arg.value.Inst()
	if inst == nil {
		panic("backend: immediate argument has no register")
	}
	reg, ok := r.binding[inst]
	if !ok {
		// Value not yet materialized in the walked range: give it a
		// fresh register, assumed loaded by the surrounding back end.
		reg = r.allocXmm()
		r.binding[inst] = reg
		r.remaining[inst] = inst.Uses()
	}
	return inst, reg
}

// UseXmm returns the register holding the argument, read-only for the
// current instruction.
func (r *RegAlloc) UseXmm(arg Argument) x64.Xmm {
	inst, reg := r.lookup(arg)
	r.pendingUses = append(r.pendingUses, inst)
	return reg
}

// UseScratchXmm returns a writable register initialized with the
// argument. When this is the value's final use its register is taken
// over; otherwise the value is copied to a fresh register.
func (r *RegAlloc) UseScratchXmm(arg Argument) x64.Xmm {
	inst, reg := r.lookup(arg)
	r.pendingUses = append(r.pendingUses, inst)
	if r.remaining[inst] <= 1 {
		// Final use: rename in place. The binding is dropped so scope
		// end does not double-free.
		delete(r.binding, inst)
		r.scratchXmms = append(r.scratchXmms, reg)
		return reg
	}
	fresh := r.allocXmm()
	r.code.MOVAPS(fresh, reg)
	r.scratchXmms = append(r.scratchXmms, fresh)
	return fresh
}

// ScratchXmm allocates a fresh writable vector register valid until
// the end of the current instruction scope.
func (r *RegAlloc) ScratchXmm() x64.Xmm {
	reg := r.allocXmm()
	r.scratchXmms = append(r.scratchXmms, reg)
	return reg
}

// ScratchGpr allocates a fresh writable general register valid until
// the end of the current instruction scope.
func (r *RegAlloc) ScratchGpr() x64.Gpr {
	reg := r.allocGpr()
	r.scratchGprs = append(r.scratchGprs, reg)
	return reg
}

// EndOfAllocScope finalizes the operand uses of the current
// instruction: dead values release their registers. After this only
// scratches already handed out and the eventual result binding are
// valid.
func (r *RegAlloc) EndOfAllocScope() {
	for _, inst := range r.pendingUses {
		if n, ok := r.remaining[inst]; ok {
			n--
			r.remaining[inst] = n
			if n <= 0 {
				if reg, ok := r.binding[inst]; ok {
					r.freeXmm[reg] = true
					delete(r.binding, inst)
				}
				delete(r.remaining, inst)
			}
		}
	}
	r.pendingUses = r.pendingUses[:0]
}

// ReleaseScratches frees every outstanding scratch register. The
// block walker calls this after each instruction.
func (r *RegAlloc) ReleaseScratches() {
	for _, x := range r.scratchXmms {
		r.freeXmm[x] = true
	}
	for _, g := range r.scratchGprs {
		r.freeGpr[g] = true
	}
	r.scratchXmms = r.scratchXmms[:0]
	r.scratchGprs = r.scratchGprs[:0]
}

// HostCall prepares for a host ABI call. Operand uses must already be
// finalized.
func (r *RegAlloc) HostCall() {
	if len(r.pendingUses) != 0 {
		panic("backend: HostCall before EndOfAllocScope")
	}
}

// DefineValue binds the instruction's result to the given register.
// The register must have been obtained from this allocator (or be the
// reserved host-call return register XMM0).
func (r *RegAlloc) DefineValue(inst *ir.Inst, reg x64.Xmm) {
	if _, ok := r.binding[inst]; ok {
		panic(fmt.Sprintf("backend: %v defined twice", inst.Op()))
	}
	for other, bound := range r.binding {
		if bound == reg && r.remaining[other] > 0 {
			panic(fmt.Sprintf("backend: %v still holds a live value", reg))
		}
	}
	// A scratch promoted to a binding must survive scratch release.
	for i, x := range r.scratchXmms {
		if x == reg {
			r.scratchXmms = append(r.scratchXmms[:i], r.scratchXmms[i+1:]...)
			break
		}
	}
	r.binding[inst] = reg
	r.remaining[inst] = inst.Uses()
}

// XmmOf returns the register currently bound to the instruction's
// result, for inspection by the block walker and tests.
func (r *RegAlloc) XmmOf(inst *ir.Inst) (x64.Xmm, bool) {
	reg, ok := r.binding[inst]
	return reg, ok
}
