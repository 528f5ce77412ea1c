package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a Python chunk",
	Long: `Execute a Python code chunk against the embedded interpreter.

Code can be provided via:
  - File argument: pypod run script.py
  - Inline flag: pypod run -c 'print(1+1)'
  - Stdin: echo 'print(1+1)' | pypod run

When code comes from a file or the inline flag, lines piped on stdin feed
the chunk's input() calls.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun,
}

func init() {
	runCmd.Flags().StringP("code", "c", "", "Code to execute")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) {
	code, _ := cmd.Flags().GetString("code")

	var source string
	stdinFree := true

	switch {
	case code != "":
		source = code
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
	default:
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			cmd.Help()
			return
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
		stdinFree = false
		if source == "" {
			cmd.Help()
			return
		}
	}

	var in io.Reader
	if stdinFree {
		in = os.Stdin
	}
	host := newConsoleHost(os.Stdout, in)

	ev := buildEvaluator(cfg, host)
	defer ev.Close()

	if err := ev.EvaluateChunk(context.Background(), source); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
