package fp

import "math/bits"

// class partitions bit patterns the way the ARM pseudocode's FPUnpack
// does.
type class uint8

const (
	clsZero class = iota
	clsDenormal
	clsNormal
	clsInfinity
	clsQNaN
	clsSNaN
)

func (c class) isNaN() bool { return c == clsQNaN || c == clsSNaN }

// format describes one of the two supported IEEE-754 binary formats.
type format struct {
	prec  int // significand bits including the implicit bit
	emax  int // largest unbiased exponent of a normal
	width int // container bits
}

var (
	fmt32 = format{prec: 24, emax: 127, width: 32}
	fmt64 = format{prec: 53, emax: 1023, width: 64}
)

func (f format) emin() int         { return 1 - f.emax }
func (f format) bias() int         { return f.emax }
func (f format) fracBits() int     { return f.prec - 1 }
func (f format) fracMask() uint64  { return 1<<(f.prec-1) - 1 }
func (f format) expFieldMax() int  { return int(1<<(f.width-f.prec)) - 1 }
func (f format) signBit() uint64   { return 1 << (f.width - 1) }
func (f format) quietBit() uint64  { return 1 << (f.prec - 2) }
func (f format) maxFinite() uint64 { return uint64(f.expFieldMax()-1)<<f.fracBits() | f.fracMask() }
func (f format) infinity() uint64  { return uint64(f.expFieldMax()) << f.fracBits() }

func (f format) defaultNaN() uint64 {
	return f.infinity() | f.quietBit()
}

func (f format) zero(sign bool) uint64 {
	if sign {
		return f.signBit()
	}
	return 0
}

func (f format) inf(sign bool) uint64 {
	if sign {
		return f.signBit() | f.infinity()
	}
	return f.infinity()
}

// unpacked is the (class, sign, exponent, significand) view of a bit
// pattern. For normals sig carries the implicit bit; for denormals it
// is the raw fraction with exp pinned to emin.
type unpacked struct {
	cls  class
	sign bool
	exp  int
	sig  uint64
}

// unpack decomposes v. When fpcr.FTZ() is set, denormal inputs flush
// to same-signed zero and raise the input-denormal flag.
func (f format) unpack(v uint64, fpcr FPCR, fpsr *FPSR) unpacked {
	sign := v&f.signBit() != 0
	expField := int(v>>f.fracBits()) & f.expFieldMax()
	frac := v & f.fracMask()

	switch {
	case expField == f.expFieldMax():
		if frac == 0 {
			return unpacked{cls: clsInfinity, sign: sign}
		}
		if frac&f.quietBit() != 0 {
			return unpacked{cls: clsQNaN, sign: sign}
		}
		return unpacked{cls: clsSNaN, sign: sign}
	case expField == 0:
		if frac == 0 {
			return unpacked{cls: clsZero, sign: sign}
		}
		if fpcr.FTZ() {
			fpsr.Raise(FPSRIDC)
			return unpacked{cls: clsZero, sign: sign}
		}
		return unpacked{cls: clsDenormal, sign: sign, exp: f.emin(), sig: frac}
	}
	return unpacked{
		cls:  clsNormal,
		sign: sign,
		exp:  expField - f.bias(),
		sig:  frac | 1<<f.fracBits(),
	}
}

func (u unpacked) isZero() bool { return u.cls == clsZero }
func (u unpacked) isInf() bool  { return u.cls == clsInfinity }

// norm128 is a nonzero value (-1)^sign * (hi:lo) * 2^exp with bit 127
// of hi:lo set. sticky records discarded low-order magnitude.
type norm128 struct {
	sign   bool
	exp    int
	hi, lo uint64
	sticky bool
}

// leadExp returns the weight of the leading significand bit.
func (n norm128) leadExp() int { return n.exp + 127 }

// norm128FromSig builds the normalized form of sig * 2^(exp-fracBits).
// sig must be nonzero.
func (f format) norm128FromSig(sign bool, exp int, sig uint64) norm128 {
	lz := bits.LeadingZeros64(sig)
	return norm128{
		sign: sign,
		exp:  exp - f.fracBits() - 64 - lz,
		hi:   sig << lz,
	}
}

// normalize128 normalizes a nonzero 128-bit integer scaled by 2^exp.
func normalize128(sign bool, exp int, hi, lo uint64) norm128 {
	var lz int
	if hi != 0 {
		lz = bits.LeadingZeros64(hi)
	} else {
		lz = 64 + bits.LeadingZeros64(lo)
	}
	nh, nl := shl128(hi, lo, lz)
	return norm128{sign: sign, exp: exp - lz, hi: nh, lo: nl}
}

func shl128(hi, lo uint64, n int) (uint64, uint64) {
	switch {
	case n == 0:
		return hi, lo
	case n < 64:
		return hi<<n | lo>>(64-n), lo << n
	case n < 128:
		return lo << (n - 64), 0
	}
	return 0, 0
}

// shr128Round drops the low `drop` bits of hi:lo, returning the kept
// bits with the round bit and a sticky OR of everything below it.
// drop must be at least 64 so the kept bits fit in a uint64.
func shr128Round(hi, lo uint64, drop int) (kept uint64, round, sticky bool) {
	switch {
	case drop > 128:
		return 0, false, hi|lo != 0
	case drop == 128:
		return 0, hi>>63 != 0, hi<<1|lo != 0
	case drop == 64:
		return hi, lo>>63 != 0, lo<<1 != 0
	case drop > 64:
		k := drop - 64
		kept = hi >> k
		round = hi>>(k-1)&1 != 0
		sticky = hi<<(65-k) != 0 || lo != 0
		return kept, round, sticky
	}
	panic("fp: shr128Round drop below 64")
}

// roundUp decides whether the kept significand is incremented under
// the given mode.
func roundUp(mode RoundingMode, sign, odd, round, sticky bool) bool {
	switch mode {
	case RoundToNearestTieEven:
		return round && (sticky || odd)
	case RoundToNearestTieAwayFromZero:
		return round
	case RoundTowardsPlusInfinity:
		return !sign && (round || sticky)
	case RoundTowardsMinusInfinity:
		return sign && (round || sticky)
	case RoundTowardsZero:
		return false
	}
	return false
}

// overflowResult implements the IEEE overflow rule: to-nearest modes
// produce an infinity, directed modes saturate towards zero on the
// closed side.
func (f format) overflowResult(sign bool, mode RoundingMode, fpsr *FPSR) uint64 {
	fpsr.Raise(FPSROFC | FPSRIXC)
	var inf bool
	switch mode {
	case RoundToNearestTieEven, RoundToNearestTieAwayFromZero:
		inf = true
	case RoundTowardsPlusInfinity:
		inf = !sign
	case RoundTowardsMinusInfinity:
		inf = sign
	case RoundTowardsZero:
		inf = false
	}
	if inf {
		return f.inf(sign)
	}
	if sign {
		return f.signBit() | f.maxFinite()
	}
	return f.maxFinite()
}

// roundNorm rounds a normalized nonzero value to the format under the
// given mode, honouring flush-to-zero on tiny results and accumulating
// OFC/UFC/IXC.
func (f format) roundNorm(n norm128, mode RoundingMode, fpcr FPCR, fpsr *FPSR) uint64 {
	lead := n.leadExp()

	if lead < f.emin() {
		// Tiny: detected before rounding.
		if fpcr.FTZ() {
			fpsr.Raise(FPSRUFC)
			return f.zero(n.sign)
		}
		drop := 128 - f.prec + (f.emin() - lead)
		kept, round, sticky := shr128Round(n.hi, n.lo, drop)
		sticky = sticky || n.sticky
		if roundUp(mode, n.sign, kept&1 != 0, round, sticky) {
			kept++
		}
		if round || sticky {
			fpsr.Raise(FPSRUFC | FPSRIXC)
		}
		// kept == 1<<fracBits lands on the smallest normal, which the
		// biased-exponent addition below encodes for free.
		return f.zero(n.sign) | kept
	}

	drop := 128 - f.prec
	kept, round, sticky := shr128Round(n.hi, n.lo, drop)
	sticky = sticky || n.sticky
	if roundUp(mode, n.sign, kept&1 != 0, round, sticky) {
		kept++
		if kept == 1<<f.prec {
			kept >>= 1
			lead++
		}
	}
	if round || sticky {
		fpsr.Raise(FPSRIXC)
	}
	if lead > f.emax {
		return f.overflowResult(n.sign, mode, fpsr)
	}
	biased := uint64(lead + f.bias())
	return f.zero(n.sign) | biased<<f.fracBits() | kept&f.fracMask()
}

// addNorm computes a + b exactly. Exact cancellation returns ok=false.
// Inputs must not carry sticky bits.
func addNorm(a, b norm128) (norm128, bool) {
	if a.exp < b.exp {
		a, b = b, a
	}
	d := a.exp - b.exp

	if a.sign == b.sign {
		bh, bl, st := alignRight(b.hi, b.lo, d)
		lo, carry := bits.Add64(a.lo, bl, 0)
		hi, carry := bits.Add64(a.hi, bh, carry)
		sum := norm128{sign: a.sign, exp: a.exp, hi: hi, lo: lo, sticky: st}
		if carry != 0 {
			sum.sticky = sum.sticky || sum.lo&1 != 0
			sum.lo = sum.lo>>1 | sum.hi<<63
			sum.hi = sum.hi>>1 | 1<<63
			sum.exp++
		}
		return sum, true
	}

	if d == 0 {
		bigger := a
		smaller := b
		if a.hi < b.hi || (a.hi == b.hi && a.lo < b.lo) {
			bigger, smaller = b, a
		} else if a.hi == b.hi && a.lo == b.lo {
			return norm128{}, false
		}
		lo, borrow := bits.Sub64(bigger.lo, smaller.lo, 0)
		hi, _ := bits.Sub64(bigger.hi, smaller.hi, borrow)
		return normalize128(bigger.sign, bigger.exp, hi, lo), true
	}

	// a has the strictly larger magnitude once d >= 1.
	bh, bl, st := alignRight(b.hi, b.lo, d)
	lo, borrow := bits.Sub64(a.lo, bl, 0)
	hi, _ := bits.Sub64(a.hi, bh, borrow)
	if st {
		// The true value sits in the open interval (diff-1, diff);
		// representing it as diff-1 with the sticky bit set keeps
		// every rounding decision correct.
		lo, borrow = bits.Sub64(lo, 1, 0)
		hi, _ = bits.Sub64(hi, 0, borrow)
	}
	diff := normalize128(a.sign, a.exp, hi, lo)
	diff.sticky = st
	return diff, true
}

// alignRight shifts right by d, OR-ing lost bits into sticky.
func alignRight(hi, lo uint64, d int) (uint64, uint64, bool) {
	switch {
	case d == 0:
		return hi, lo, false
	case d < 64:
		sticky := lo<<(64-d) != 0
		return hi >> d, lo>>d | hi<<(64-d), sticky
	case d == 64:
		return 0, hi, lo != 0
	case d < 128:
		sticky := lo != 0 || hi<<(128-d) != 0
		return 0, hi >> (d - 64), sticky
	}
	return 0, 0, hi|lo != 0
}
