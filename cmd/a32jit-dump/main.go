// Package main provides a32jit-dump, a debugging tool that emits a
// demonstration vector floating-point block under a chosen guest
// configuration and prints the produced machine code.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/asmfmt"
	"github.com/spf13/cobra"

	"github.com/sarchlab/a32jit/backend"
	"github.com/sarchlab/a32jit/fp"
	"github.com/sarchlab/a32jit/ir"
	"github.com/sarchlab/a32jit/x64"
)

var (
	flagDN          bool
	flagFTZ         bool
	flagRMode       uint8
	flagAccurateNaN bool
	flagWindows     bool
	flagListing     bool
	flagNoAVX       bool
	flagNoSSE41     bool
)

func main() {
	root := &cobra.Command{
		Use:   "a32jit-dump",
		Short: "Inspect code produced by the a32jit vector FP back end",
	}
	root.AddCommand(emitCommand(), fallbacksCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func emitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Emit a demonstration block and print its machine code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit()
		},
	}
	cmd.Flags().BoolVar(&flagDN, "dn", false, "enable default-NaN mode")
	cmd.Flags().BoolVar(&flagFTZ, "ftz", false, "enable flush-to-zero mode")
	cmd.Flags().Uint8Var(&flagRMode, "rmode", 0, "rounding mode (0=RN 1=RP 2=RM 3=RZ)")
	cmd.Flags().BoolVar(&flagAccurateNaN, "accurate-nan", true, "require exact ARM NaN propagation")
	cmd.Flags().BoolVar(&flagWindows, "windows", false, "emit for the Windows x64 ABI")
	cmd.Flags().BoolVar(&flagListing, "listing", false, "print a formatted data listing instead of a hex dump")
	cmd.Flags().BoolVar(&flagNoAVX, "no-avx", false, "mask AVX/FMA/AVX-512 host features")
	cmd.Flags().BoolVar(&flagNoSSE41, "no-sse41", false, "mask SSE4.1")
	return cmd
}

// demoBlock lowers q0 = maxfp(q0+q1, fma(q2, q0, q1)) in f32 lanes,
// touching a fast-path op, the max correction, and the FMA path.
func demoBlock() *ir.Block {
	e := ir.NewA32Emitter(ir.LocationDescriptor{PC: 0x1000})

	a := e.GetVector(ir.Q0)
	b := e.GetVector(ir.Q0 + 1)
	c := e.GetVector(ir.Q0 + 2)

	sum := e.FPVectorAdd(32, a, b)
	fma := e.FPVectorMulAdd(32, c, a, b)
	max := e.FPVectorMax(32, sum, fma)
	e.SetVector(ir.Q0, max)

	return e.Block
}

func runEmit() error {
	features := x64.DetectFeatures()
	if flagNoAVX {
		features.AVX = false
		features.FMA = false
		features.AVX512 = false
	}
	if flagNoSSE41 {
		features.SSE41 = false
	}

	code := x64.NewAssembler(
		x64.WithFeatures(features),
		x64.WithWindowsABI(flagWindows),
	)

	fpcr := fp.FPCR(0).
		WithRMode(fp.RoundingMode(flagRMode)).
		WithFTZ(flagFTZ).
		WithDN(flagDN)

	ctx := &backend.EmitContext{
		Code:              code,
		RegAlloc:          backend.NewRegAlloc(code),
		State:             backend.StateInfo(),
		FPCR:              fpcr,
		AccurateNaNPolicy: flagAccurateNaN,
	}

	backend.EmitBlock(ctx, demoBlock())
	buf := code.Finalize()

	if flagListing {
		return printListing(buf)
	}
	printHex(buf)
	return nil
}

func printHex(buf []byte) {
	for i := 0; i < len(buf); i += 16 {
		end := i + 16
		if end > len(buf) {
			end = len(buf)
		}
		fmt.Printf("%08x ", i)
		for _, b := range buf[i:end] {
			fmt.Printf(" %02x", b)
		}
		fmt.Println()
	}
	fmt.Printf("; %d bytes\n", len(buf))
}

// printListing renders the block as a Go assembly data stanza and
// runs it through asmfmt, which is a convenient way to get a
// well-formed, diffable artifact out of a raw byte blob.
func printListing(buf []byte) error {
	var builder strings.Builder
	builder.WriteString("// Code generated by a32jit-dump. DO NOT EDIT.\n\n")
	builder.WriteString("TEXT ·block(SB), $0\n")
	for i := 0; i+4 <= len(buf); i += 4 {
		word := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24
		builder.WriteString(fmt.Sprintf("\tLONG $0x%08x\n", word))
	}
	for i := len(buf) &^ 3; i < len(buf); i++ {
		builder.WriteString(fmt.Sprintf("\tBYTE $0x%02x\n", buf[i]))
	}
	builder.WriteString("\tRET\n")

	formatted, err := asmfmt.Format(strings.NewReader(builder.String()))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(formatted)
	return err
}

func fallbacksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fallbacks",
		Short: "List the software fallback routines the back end can reference",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range backend.Fallbacks() {
				fmt.Println(name)
			}
		},
	}
}
