package x64

import (
	"encoding/binary"
	"fmt"
	"runtime"
)

// region identifies one of the two code streams.
type region uint8

const (
	regionNear region = iota
	regionFar
)

// Label is a symbolic code position. Labels may be referenced before
// they are bound; every referenced label must be bound before
// Finalize.
type Label int

type labelPos struct {
	region region
	off    int
	bound  bool
}

// jumpPatch records a rel32 field awaiting label resolution. next is
// the offset of the instruction end, from which the displacement is
// computed.
type jumpPatch struct {
	region region
	off    int
	next   int
	label  Label
}

// ripPatch records a RIP-relative disp32 awaiting constant-pool
// placement.
type ripPatch struct {
	region region
	off    int
	next   int
	pool   int
}

type constant struct {
	lo, hi uint64
}

// Assembler is a forward-only x86-64 byte writer with a hot (near) and
// a cold (far) region. Instructions append to the active region; the
// far region is concatenated after the near region on finalize, and
// the constant pool is placed after both.
type Assembler struct {
	near []byte
	far  []byte
	cur  region

	labels  []labelPos
	jumps   []jumpPatch
	rips    []ripPatch
	pool    []constant
	poolIdx map[constant]int

	// CPU describes the host features emission may rely on.
	CPU Features

	windowsABI bool
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithFeatures overrides host CPU feature detection.
func WithFeatures(f Features) Option {
	return func(a *Assembler) {
		a.CPU = f
	}
}

// WithWindowsABI selects the Windows x64 calling convention for
// host-call sequences instead of the System V one.
func WithWindowsABI(on bool) Option {
	return func(a *Assembler) {
		a.windowsABI = on
	}
}

// NewAssembler creates an empty assembler positioned in the near
// region, with host features detected from the running CPU.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		poolIdx:    make(map[constant]int),
		CPU:        DetectFeatures(),
		windowsABI: runtime.GOOS == "windows",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WindowsABI reports whether host calls follow the Windows x64
// convention.
func (a *Assembler) WindowsABI() bool { return a.windowsABI }

// SwitchToFarCode redirects emission to the far region.
func (a *Assembler) SwitchToFarCode() {
	if a.cur == regionFar {
		panic("x64: already in far region")
	}
	a.cur = regionFar
}

// SwitchToNearCode redirects emission back to the near region.
func (a *Assembler) SwitchToNearCode() {
	if a.cur == regionNear {
		panic("x64: already in near region")
	}
	a.cur = regionNear
}

func (a *Assembler) buf() *[]byte {
	if a.cur == regionFar {
		return &a.far
	}
	return &a.near
}

func (a *Assembler) byteEmit(bs ...byte) {
	b := a.buf()
	*b = append(*b, bs...)
}

func (a *Assembler) u32Emit(v uint32) {
	b := a.buf()
	*b = binary.LittleEndian.AppendUint32(*b, v)
}

func (a *Assembler) u64Emit(v uint64) {
	b := a.buf()
	*b = binary.LittleEndian.AppendUint64(*b, v)
}

// NewLabel allocates an unbound label.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, labelPos{})
	return Label(len(a.labels) - 1)
}

// L binds the label to the current position of the active region.
func (a *Assembler) L(l Label) {
	pos := &a.labels[l]
	if pos.bound {
		panic("x64: label bound twice")
	}
	*pos = labelPos{region: a.cur, off: len(*a.buf()), bound: true}
}

// Const16 interns a 16-byte constant into the pool and returns a
// RIP-relative memory operand addressing it.
func (a *Assembler) Const16(lo, hi uint64) Mem {
	c := constant{lo: lo, hi: hi}
	idx, ok := a.poolIdx[c]
	if !ok {
		idx = len(a.pool)
		a.pool = append(a.pool, c)
		a.poolIdx[c] = idx
	}
	return Mem{rip: true, pool: idx}
}

// JMP emits an unconditional rel32 jump to the label.
func (a *Assembler) JMP(l Label) {
	a.byteEmit(0xE9)
	a.rel32(l)
}

// JNZ emits a rel32 jump-if-not-zero to the label.
func (a *Assembler) JNZ(l Label) {
	a.byteEmit(0x0F, 0x85)
	a.rel32(l)
}

// JZ emits a rel32 jump-if-zero to the label.
func (a *Assembler) JZ(l Label) {
	a.byteEmit(0x0F, 0x84)
	a.rel32(l)
}

func (a *Assembler) rel32(l Label) {
	b := a.buf()
	off := len(*b)
	*b = append(*b, 0, 0, 0, 0)
	a.jumps = append(a.jumps, jumpPatch{region: a.cur, off: off, next: len(*b), label: l})
}

// CallFunction emits an absolute call to the entry address through
// RAX. RAX is clobbered.
func (a *Assembler) CallFunction(entry uintptr) {
	a.MOVImm64(RAX, uint64(entry))
	a.byteEmit(0xFF, 0xD0)
}

// Finalize lays out near, far, and the 16-byte aligned constant pool,
// resolves every label and pool reference, and returns the finished
// block. It panics on an unresolved label: that is a programmer error
// in the emitter.
func (a *Assembler) Finalize() []byte {
	if a.cur != regionNear {
		panic("x64: finalize outside near region")
	}

	farBase := len(a.near)
	poolBase := farBase + len(a.far)
	if len(a.pool) > 0 {
		poolBase += (16 - poolBase%16) % 16
	}

	out := make([]byte, poolBase+len(a.pool)*16)
	copy(out, a.near)
	copy(out[farBase:], a.far)
	for i, c := range a.pool {
		binary.LittleEndian.PutUint64(out[poolBase+i*16:], c.lo)
		binary.LittleEndian.PutUint64(out[poolBase+i*16+8:], c.hi)
	}

	base := func(r region) int {
		if r == regionFar {
			return farBase
		}
		return 0
	}

	for _, j := range a.jumps {
		pos := a.labels[j.label]
		if !pos.bound {
			panic(fmt.Sprintf("x64: unresolved label %d", j.label))
		}
		target := base(pos.region) + pos.off
		from := base(j.region) + j.next
		binary.LittleEndian.PutUint32(out[base(j.region)+j.off:], uint32(int32(target-from)))
	}
	for _, p := range a.rips {
		target := poolBase + p.pool*16
		from := base(p.region) + p.next
		binary.LittleEndian.PutUint32(out[base(p.region)+p.off:], uint32(int32(target-from)))
	}
	return out
}

// NearLen returns the current length of the near region.
func (a *Assembler) NearLen() int { return len(a.near) }

// FarLen returns the current length of the far region.
func (a *Assembler) FarLen() int { return len(a.far) }
