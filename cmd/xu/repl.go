package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/kristofer/xu/pkg/capability"
	"github.com/kristofer/xu/pkg/frontend"
	"github.com/kristofer/xu/pkg/modules"
	"github.com/kristofer/xu/pkg/runtime"
)

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runREPL()
		},
	}
}

// runREPL drives an interactive session on a single persistent Runtime,
// so bindings, structs, and imported modules carry over between inputs.
// Each input runs through the tree-walking executor: the REPL favors a
// shared mutable top-level environment over bytecode-path speed.
func runREPL() {
	fmt.Printf("xu %s -- :help for help, :quit to exit\n", version)

	caps := capability.Default()
	cwd, _ := os.Getwd()
	entry := filepath.Join(cwd, "repl.xu")
	loader := modules.New(caps.FS, frontend.NewStd(), flagStdRoot, nil, entry)
	rt := runtime.New(caps, loader, flagStrict, os.Stdout)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := filepath.Join(os.TempDir(), ".xu_history")
	if f, err := os.Open(histPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	var buffer strings.Builder
	seq := 0
	for {
		prompt := "xu> "
		if buffer.Len() > 0 {
			prompt = "..> "
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			fmt.Println()
			return
		}

		if buffer.Len() == 0 {
			switch strings.TrimSpace(input) {
			case ":quit", ":exit":
				return
			case ":help":
				printREPLHelp()
				continue
			case "":
				continue
			}
		}

		buffer.WriteString(input)
		buffer.WriteString("\n")

		// Keep reading while braces are unbalanced, so a multi-line
		// function or block can be typed naturally.
		src := buffer.String()
		if braceDelta(src) > 0 {
			continue
		}
		buffer.Reset()
		line.AppendHistory(strings.TrimSpace(src))

		seq++
		unit, err := frontend.NewStd().CompileTextNoAnalyze(fmt.Sprintf("<repl-%d>", seq), src)
		if err != nil {
			renderDiags(unit.Diagnostics)
			continue
		}
		if _, err := rt.RunUnit(unit, runtime.ModeAST); err != nil {
			errHighlight.Fprintln(os.Stderr, runtime.RenderUncaught(rt.Heap(), err))
		}
	}
}

// braceDelta counts unbalanced braces outside string literals, the
// REPL's continuation heuristic.
func braceDelta(src string) int {
	depth := 0
	inStr := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inStr:
			if c == '\\' {
				i++
			} else if c == '"' {
				inStr = false
			}
		case c == '"':
			inStr = true
		case c == '{':
			depth++
		case c == '}':
			depth--
		}
	}
	return depth
}

func printREPLHelp() {
	fmt.Println("commands:")
	fmt.Println("  :help   show this help")
	fmt.Println("  :quit   exit the session")
	fmt.Println()
	fmt.Println("enter xu statements; blocks continue across lines until braces balance.")
}
