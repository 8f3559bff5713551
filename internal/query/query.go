package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"ocode/internal/config"
	"ocode/internal/ollama"
	"ocode/internal/snapshot"
	"ocode/internal/storage"
	"ocode/internal/tokens"
)

var (
	// ErrTargetNotFound means the target path does not exist.
	ErrTargetNotFound = errors.New("target does not exist")

	// ErrInvalidTarget means the target is neither a file nor a directory.
	ErrInvalidTarget = errors.New("target is neither a file nor a directory")
)

// Result is the outcome of one query run.
type Result struct {
	Answer          string
	EstimatedTokens int
	ContextSize     int
	Duration        time.Duration
	Source          string // "llm" or "cache"
}

// Options adjusts a single run.
type Options struct {
	Stream   bool
	MaxFiles int
	MaxDepth int
	NoCache  bool

	// Out receives streamed response fragments (and cache hits in
	// streaming mode). Defaults to os.Stdout.
	Out io.Writer
}

// Runner wires the aggregation, token estimation, context sizing and
// client pieces into the single linear pipeline a query runs through.
type Runner struct {
	cfg     *config.Config
	client  *ollama.Client
	counter tokens.Counter
	cache   *storage.Redis
	logger  *log.Logger
}

func NewRunner(cfg *config.Config, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr)
	}

	r := &Runner{
		cfg:     cfg,
		client:  ollama.NewClient(cfg, logger),
		counter: tokens.NewCounter(cfg.Tokens.Estimator),
		logger:  logger,
	}

	if cfg.Cache.Redis.Enabled {
		cache, err := storage.NewRedis(cfg.Cache.Redis)
		if err != nil {
			logger.Warn("answer cache unavailable", "err", err)
		} else {
			r.cache = cache
		}
	}

	return r
}

// Close releases the cache connection, if any.
func (r *Runner) Close() error {
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}

// Client exposes the underlying Ollama client for status commands.
func (r *Runner) Client() *ollama.Client {
	return r.client
}

// Run executes the full pipeline for one target and question.
func (r *Runner) Run(ctx context.Context, target, question string, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	content, err := r.aggregate(target, opts)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(content, question, target)
	estimate := r.counter.Count(prompt)
	ctxSize := tokens.ContextSize(estimate, r.cfg.Tokens.Buffer, r.cfg.Tokens.MinContext, r.cfg.Tokens.MaxContext)

	r.logger.Info("prompt assembled", "tokens", estimate, "num_ctx", ctxSize)
	r.logger.Debug("prompt content", "prompt", prompt)

	if !opts.NoCache && r.cache != nil {
		if cached, err := r.cache.GetAnswer(ctx, r.client.Model(), prompt); err == nil && cached != nil {
			if opts.Stream {
				fmt.Fprint(opts.Out, cached.Answer)
			}
			return &Result{
				Answer:          cached.Answer,
				EstimatedTokens: estimate,
				ContextSize:     cached.ContextSize,
				Duration:        time.Since(start),
				Source:          "cache",
			}, nil
		}
	}

	if err := r.client.CheckStatus(ctx); err != nil {
		return nil, fmt.Errorf("Ollama is not ready: %w", err)
	}

	answer, err := r.client.Generate(ctx, prompt, ctxSize, opts.Stream, opts.Out)
	if err != nil {
		return nil, err
	}

	if !opts.NoCache && r.cache != nil && answer != "" {
		cacheErr := r.cache.CacheAnswer(ctx, r.client.Model(), prompt, &storage.CachedAnswer{
			Answer:      answer,
			Model:       r.client.Model(),
			ContextSize: ctxSize,
			CreatedAt:   time.Now(),
		})
		if cacheErr != nil {
			r.logger.Debug("failed to cache answer", "err", cacheErr)
		}
	}

	return &Result{
		Answer:          answer,
		EstimatedTokens: estimate,
		ContextSize:     ctxSize,
		Duration:        time.Since(start),
		Source:          "llm",
	}, nil
}

// aggregate resolves the target and produces its snapshot text. No HTTP
// request happens before this succeeds.
func (r *Runner) aggregate(target string, opts Options) (string, error) {
	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	} else if err != nil {
		return "", err
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = r.cfg.Snapshot.MaxDepth
	}
	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = r.cfg.Snapshot.MaxFiles
	}

	agg := snapshot.NewAggregator(maxDepth, maxFiles, r.cfg.Snapshot.MaxFileSize, r.logger)

	switch {
	case info.Mode().IsRegular():
		r.logger.Info("reading file", "path", target)
		return agg.FileContent(target), nil
	case info.IsDir():
		r.logger.Info("reading directory", "path", target, "max_depth", maxDepth, "max_files", maxFiles)
		return agg.DirectoryContent(target), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}
}
