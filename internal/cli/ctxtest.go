package cli

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ocode/internal/query"
	"ocode/internal/tokens"
)

// ctxtestQuestion asks the model to name the last line it can see, which
// bounds the effective context window from below.
const ctxtestQuestion = "What is the last numbered line in this file? Be specific and just tell me the last line number you can see."

var ctxtestCmd = &cobra.Command{
	Use:   "ctxtest",
	Short: "Probe the model's effective context window with a synthetic file",
	Long:  `ctxtest generates a file of numbered lines, sends it through the full query pipeline and infers from the model's answer how much of the file actually fit in the context window.`,
	Args:  cobra.NoArgs,
	RunE:  runCtxtest,
}

func init() {
	ctxtestCmd.Flags().Int("lines", 15000, "Number of lines to generate")
	ctxtestCmd.Flags().String("output", "large_context_test.txt", "Output file path")
	ctxtestCmd.Flags().Bool("keep", false, "Keep the generated file after the test")
}

func runCtxtest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	lines, _ := cmd.Flags().GetInt("lines")
	output, _ := cmd.Flags().GetString("output")
	keep, _ := cmd.Flags().GetBool("keep")

	counter := tokens.NewCounter("heuristic")
	estimated, err := generateTestFile(output, lines, counter)
	if err != nil {
		return fmt.Errorf("failed to generate test file: %w", err)
	}
	if !keep {
		defer os.Remove(output)
	}

	fmt.Printf("Test file created at: %s\n", output)
	fmt.Printf("Estimated token count: ~%d tokens\n\n", estimated)

	runner := query.NewRunner(cfg, logger)
	defer runner.Close()

	fmt.Println(headerStyle.Render("=== Ollama Response ==="))
	fmt.Println()

	result, err := runner.Run(context.Background(), output, ctxtestQuestion, query.Options{
		Stream:  true,
		NoCache: true,
		Out:     os.Stdout,
	})
	if err != nil {
		return err
	}
	fmt.Println()

	lastSeen, ok := lastNumberIn(result.Answer)
	if !ok {
		fmt.Println(dimStyle.Render("Could not determine the last line number from the model's response."))
		return nil
	}

	perLine := counter.Count(testLine(lastSeen))
	fmt.Printf("The model was able to see up to line %d.\n", lastSeen)
	fmt.Printf("Estimated effective context window: ~%d tokens (requested num_ctx %d)\n",
		lastSeen*perLine, result.ContextSize)

	return nil
}

func testLine(n int) string {
	return fmt.Sprintf("%d. This is line number %d in our context window test.\n", n, n)
}

// generateTestFile writes the numbered-line probe file and returns its
// estimated token count.
func generateTestFile(path string, lines int, counter tokens.Counter) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	header := "This is a test file to check the context window size of the Ollama model.\n" +
		"Each line contains a number that we'll use to determine how much context is actually being used.\n\n"
	if _, err := f.WriteString(header); err != nil {
		return 0, err
	}

	var sb strings.Builder
	for i := 1; i <= lines; i++ {
		sb.WriteString(testLine(i))
		if sb.Len() > 1<<20 {
			if _, err := f.WriteString(sb.String()); err != nil {
				return 0, err
			}
			sb.Reset()
		}
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		return 0, err
	}

	// Sample one line rather than counting the whole file.
	perLine := counter.Count(testLine(lines))
	return counter.Count(header) + perLine*lines, nil
}

var numberPattern = regexp.MustCompile(`(\d+)`)

// lastNumberIn extracts the final integer in the model's reply.
func lastNumberIn(text string) (int, bool) {
	matches := numberPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(matches[len(matches)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}
