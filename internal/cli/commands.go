package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"ocode/internal/config"
	"ocode/internal/ollama"
	"ocode/internal/query"
	"ocode/internal/storage"
)

const Version = "0.3.0"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("40"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

var rootCmd = &cobra.Command{
	Use:     "ocode [target] [query]",
	Short:   "Query Ollama models about code, files or entire repositories",
	Long:    `ocode sends a file or a bounded directory snapshot to a locally running Ollama server, sizing the model's context window from an approximate token count of the assembled prompt.`,
	Version: Version,
	Args:    cobra.ExactArgs(2),
	RunE:    runQuery,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	// main prints the final error, so cobra stays quiet.
	SilenceErrors: true,
	SilenceUsage:  true,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that Ollama is running and the configured model is ready",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on the Ollama server",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the Redis answer cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached answers",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug output")
	rootCmd.PersistentFlags().String("model", "", "Override the configured model")

	rootCmd.Flags().Bool("stream", true, "Stream output in real-time (default)")
	rootCmd.Flags().Bool("no-stream", false, "Don't stream output")
	rootCmd.Flags().Int("max-files", 0, "Maximum number of files to process")
	rootCmd.Flags().Int("max-depth", 0, "Maximum directory depth to traverse")
	rootCmd.Flags().Bool("no-cache", false, "Bypass the answer cache")
	rootCmd.Flags().Bool("tui", false, "Show the collected answer in a scrollable view (implies --no-stream)")

	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(ctxtestCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads config, applies persistent flag overrides and builds the
// logger every component shares.
func setup(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.LLM.Model = model
	}

	logger := log.New(os.Stderr)
	logger.SetReportTimestamp(true)
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logger.SetLevel(log.DebugLevel)
	}

	return cfg, logger, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	target, question := args[0], args[1]

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	stream, _ := cmd.Flags().GetBool("stream")
	if noStream, _ := cmd.Flags().GetBool("no-stream"); noStream {
		stream = false
	}
	useTUI, _ := cmd.Flags().GetBool("tui")
	if useTUI {
		stream = false
	}
	maxFiles, _ := cmd.Flags().GetInt("max-files")
	maxDepth, _ := cmd.Flags().GetInt("max-depth")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	logger.Info("starting ocode", "target", target, "query", question)

	runner := query.NewRunner(cfg, logger)
	defer runner.Close()

	opts := query.Options{
		Stream:   stream,
		MaxFiles: maxFiles,
		MaxDepth: maxDepth,
		NoCache:  noCache,
		Out:      os.Stdout,
	}

	if useTUI {
		return runAskTUI(runner, target, question, opts)
	}

	if stream {
		fmt.Println()
		fmt.Println(headerStyle.Render("=== Ollama Response ==="))
		fmt.Println()
	}

	result, err := runner.Run(context.Background(), target, question, opts)
	if err != nil {
		return err
	}

	if stream {
		fmt.Println()
	} else {
		fmt.Println()
		fmt.Println(headerStyle.Render("=== Ollama Response ==="))
		fmt.Println()
		fmt.Println(result.Answer)
	}

	note := fmt.Sprintf("completed in %.2fs", result.Duration.Seconds())
	if result.Source == "cache" {
		note += " [cached]"
	}
	fmt.Println(dimStyle.Render(note))

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	client := ollama.NewClient(cfg, logger)
	ctx := context.Background()

	version, err := client.Version(ctx)
	if err != nil {
		fmt.Println(errStyle.Render(fmt.Sprintf("✗ server: %v", err)))
		os.Exit(1)
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("✓ server: Ollama %s", version)))

	models, err := client.Models(ctx)
	if err != nil {
		fmt.Println(errStyle.Render(fmt.Sprintf("✗ models: %v", err)))
		os.Exit(1)
	}

	found := false
	for _, name := range models {
		if name == cfg.LLM.Model {
			found = true
			break
		}
	}
	if !found {
		fmt.Println(errStyle.Render(fmt.Sprintf("✗ model: %q is not available", cfg.LLM.Model)))
		fmt.Println(dimStyle.Render(fmt.Sprintf("  available: %v", models)))
		os.Exit(1)
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("✓ model: %s", cfg.LLM.Model)))

	if err := client.CheckStatus(ctx); err != nil {
		fmt.Println(errStyle.Render(fmt.Sprintf("✗ generate: %v", err)))
		os.Exit(1)
	}
	fmt.Println(okStyle.Render("✓ generate: test prompt succeeded"))
	fmt.Println(okStyle.Render("Ollama is fully operational"))

	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	client := ollama.NewClient(cfg, logger)
	models, err := client.Models(context.Background())
	if err != nil {
		return err
	}

	if len(models) == 0 {
		fmt.Println("No models installed. Pull one with: ollama pull <model>")
		return nil
	}

	for _, name := range models {
		marker := "  "
		if name == cfg.LLM.Model {
			marker = okStyle.Render("* ")
		}
		fmt.Printf("%s%s\n", marker, name)
	}

	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	return clearAnswerCache(cfg, cmd.OutOrStdout())
}

// clearAnswerCache drops every cached answer. A disabled or unreachable
// cache is reported, not treated as a failure.
func clearAnswerCache(cfg *config.Config, out io.Writer) error {
	if !cfg.Cache.Redis.Enabled {
		fmt.Fprintln(out, dimStyle.Render("Answer cache is disabled; nothing to clear"))
		return nil
	}

	cache, err := storage.NewRedis(cfg.Cache.Redis)
	if err != nil {
		fmt.Fprintln(out, errStyle.Render(fmt.Sprintf("Redis not available: %v", err)))
		return nil
	}
	defer cache.Close()

	if err := cache.Invalidate(context.Background()); err != nil {
		return fmt.Errorf("failed to clear answer cache: %w", err)
	}

	fmt.Fprintln(out, okStyle.Render("✓ Answer cache cleared"))
	return nil
}
