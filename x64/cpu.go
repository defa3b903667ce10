package x64

import (
	"github.com/xyproto/env/v2"
	"golang.org/x/sys/cpu"
)

// Features describes the host instruction-set extensions the emitter
// may rely on. Selection happens at emission time; emitted code never
// re-checks.
type Features struct {
	SSE41  bool
	AVX    bool
	FMA    bool
	AVX512 bool // implies the VL+DQ subset used for conversions
}

// DetectFeatures queries the running CPU. The A32JIT_NOSSE41,
// A32JIT_NOAVX, A32JIT_NOFMA and A32JIT_NOAVX512 environment variables
// mask individual extensions, which is useful for exercising the
// older code paths on modern hosts.
func DetectFeatures() Features {
	f := Features{
		SSE41:  cpu.X86.HasSSE41,
		AVX:    cpu.X86.HasAVX,
		FMA:    cpu.X86.HasFMA,
		AVX512: cpu.X86.HasAVX512F && cpu.X86.HasAVX512DQ && cpu.X86.HasAVX512VL,
	}
	if env.Bool("A32JIT_NOSSE41") {
		f.SSE41 = false
	}
	if env.Bool("A32JIT_NOAVX") {
		f.AVX = false
		f.FMA = false
		f.AVX512 = false
	}
	if env.Bool("A32JIT_NOFMA") {
		f.FMA = false
	}
	if env.Bool("A32JIT_NOAVX512") {
		f.AVX512 = false
	}
	return f
}
