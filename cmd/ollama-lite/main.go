package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// ollama-lite pipes a prompt into the local `ollama run` executable with
// reduced context-length parameters, for fast answers to simple queries
// without the full snapshot pipeline.

var rootCmd = &cobra.Command{
	Use:   "ollama-lite [prompt]",
	Short: "Run Ollama with lightweight parameters",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringP("model", "m", "qwen2.5-coder:7b", "Model to use")
	rootCmd.Flags().IntP("context", "c", 4096, "Context length")
	rootCmd.Flags().BoolP("pipe", "p", false, "Read input from pipe")
	rootCmd.SilenceUsage = true
}

func run(cmd *cobra.Command, args []string) error {
	model, _ := cmd.Flags().GetString("model")
	contextLen, _ := cmd.Flags().GetInt("context")
	pipe, _ := cmd.Flags().GetBool("pipe")

	var prompt string
	if len(args) > 0 {
		prompt = args[0]
	}

	if pipe || !isatty.IsTerminal(os.Stdin.Fd()) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		prompt = string(data)
	}

	if strings.TrimSpace(prompt) == "" {
		fmt.Fprintln(os.Stderr, "No prompt provided. Use --help for usage information.")
		os.Exit(1)
	}

	ollama := exec.Command("ollama", "run", model)
	ollama.Env = append(os.Environ(),
		fmt.Sprintf("OLLAMA_MAX_INPUT_TOKENS=%d", contextLen),
		fmt.Sprintf("OLLAMA_CONTEXT_LENGTH=%d", contextLen),
	)
	ollama.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	ollama.Stdout = &stdout
	ollama.Stderr = &stderr

	if err := ollama.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Ollama error: %s\n", stderr.String())
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}

	fmt.Println(stdout.String())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
