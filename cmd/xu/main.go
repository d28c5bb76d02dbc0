// Command xu is the driver for the xu language: lex, check, inspect, or
// run a source file, or start an interactive REPL.
//
// Exit codes: 0 on success, 1 on a runtime or diagnostic error, 2 on
// usage errors and parse failures.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kristofer/xu/pkg/capability"
	"github.com/kristofer/xu/pkg/frontend"
	"github.com/kristofer/xu/pkg/lexer"
	"github.com/kristofer/xu/pkg/modules"
	"github.com/kristofer/xu/pkg/runtime"
)

const version = "0.4.0"

var (
	flagStrict  bool
	flagTiming  bool
	flagVerbose bool
	flagNoDiags bool
	flagJSON    bool
	flagColor   bool
	flagAST     bool
	flagRoots   []string
	flagStdRoot string
)

var errHighlight = color.New(color.FgRed, color.Bold)
var hintHighlight = color.New(color.Faint)

func main() {
	root := &cobra.Command{
		Use:           "xu",
		Short:         "xu - a small dynamically-typed scripting language",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flagStrict, "strict", false, "require let/var declarations before bare assignment")
	root.PersistentFlags().BoolVar(&flagTiming, "timing", false, "report compile and run wall times")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "extra progress output")
	root.PersistentFlags().BoolVar(&flagNoDiags, "no-diags", false, "suppress diagnostic rendering")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit one JSON object per diagnostic on stdout")
	root.PersistentFlags().BoolVar(&flagColor, "color", false, "force colored diagnostics")
	root.PersistentFlags().StringSliceVar(&flagRoots, "allow-root", nil, "restrict imports to these directory roots")
	root.PersistentFlags().StringVar(&flagStdRoot, "std-root", defaultStdRoot(), "directory holding the std/ library")

	root.AddCommand(tokensCmd(), checkCmd(), astCmd(), runCmd(), replCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func defaultStdRoot() string {
	if env := os.Getenv("XU_STD_ROOT"); env != "" {
		return env
	}
	exe, err := os.Executable()
	if err != nil {
		return "std"
	}
	return filepath.Join(filepath.Dir(exe), "std")
}

func tokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens <file>",
		Short: "Lex a file and print its token stream",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			text, ok := readSource(args[0])
			if !ok {
				os.Exit(2)
			}
			toks, err := lexer.New(text).Tokenize()
			for _, t := range toks {
				fmt.Printf("%4d:%-3d %-12v %q\n", t.Line, t.Column, t.Type, t.Literal)
			}
			if err != nil {
				renderDiags([]string{err.Error()})
				os.Exit(2)
			}
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Parse and compile a file, reporting every diagnostic",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			text, ok := readSource(args[0])
			if !ok {
				os.Exit(2)
			}
			unit, err := frontend.NewStd().CompileTextNoAnalyze(args[0], text)
			renderDiags(unit.Diagnostics)
			if err != nil {
				os.Exit(2)
			}
			if flagVerbose {
				fmt.Printf("%s: ok (%d bytes, bytecode: %v)\n", args[0], len(text), unit.Executable.Bytecode != nil)
			}
		},
	}
}

func astCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ast <file>",
		Short: "Parse a file and print its syntax tree",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			text, ok := readSource(args[0])
			if !ok {
				os.Exit(2)
			}
			unit, err := frontend.NewStd().CompileTextNoAnalyze(args[0], text)
			if err != nil {
				renderDiags(unit.Diagnostics)
				os.Exit(2)
			}
			dumpModule(os.Stdout, unit.Executable.Module)
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Compile and execute a file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runFile(args[0]))
		},
	}
	cmd.Flags().BoolVar(&flagAST, "ast-walk", false, "force the tree-walking executor instead of the VM")
	return cmd
}

// runFile is the whole run pipeline; returns the process exit code.
func runFile(path string) int {
	text, ok := readSource(path)
	if !ok {
		return 2
	}

	compileStart := time.Now()
	unit, err := frontend.NewStd().CompileTextNoAnalyze(path, text)
	compileTime := time.Since(compileStart)
	if err != nil {
		renderDiags(unit.Diagnostics)
		return 2
	}

	caps := capability.Default()
	caps.AllowedRoots = canonicalizeRoots(caps.FS, flagRoots)
	loader := modules.New(caps.FS, frontend.NewStd(), flagStdRoot, caps.AllowedRoots, path)
	rt := runtime.New(caps, loader, flagStrict, os.Stdout)

	mode := runtime.ModeAuto
	if flagAST {
		mode = runtime.ModeAST
	}

	runStart := time.Now()
	_, err = rt.RunUnit(unit, mode)
	runTime := time.Since(runStart)

	if flagTiming {
		fmt.Fprintf(os.Stderr, "compile: %v  run: %v\n", compileTime, runTime)
	}
	if err != nil {
		errHighlight.Fprintln(os.Stderr, runtime.RenderUncaught(rt.Heap(), err))
		return 1
	}
	return 0
}

func canonicalizeRoots(fs capability.FileSystem, roots []string) []string {
	var out []string
	for _, r := range roots {
		if canon, err := fs.Canonicalize(r); err == nil {
			out = append(out, canon)
		}
	}
	return out
}

func readSource(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		errHighlight.Fprintf(os.Stderr, "error: cannot read %s: %v\n", path, err)
		return "", false
	}
	return string(data), true
}

// renderDiags prints collected diagnostics, either colored to stderr or
// (with --json) one JSON object per line on stdout.
func renderDiags(diags []string) {
	if flagNoDiags || len(diags) == 0 {
		return
	}
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, d := range diags {
			_ = enc.Encode(map[string]string{"severity": "error", "message": d})
		}
		return
	}
	if flagColor {
		color.NoColor = false
	}
	for _, d := range diags {
		errHighlight.Fprint(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, d)
	}
	hintHighlight.Fprintf(os.Stderr, "%d diagnostic(s)\n", len(diags))
}
