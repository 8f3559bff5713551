package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// binaryExtensions are file suffixes never worth embedding in a prompt.
var binaryExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".pdf":  true,
	".zip":  true,
	".tar":  true,
	".gz":   true,
}

// Aggregator produces a bounded textual snapshot of a file or directory
// tree for embedding in a prompt.
type Aggregator struct {
	MaxDepth    int
	MaxFiles    int
	MaxFileSize int64

	logger *log.Logger
}

func NewAggregator(maxDepth, maxFiles int, maxFileSize int64, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Aggregator{
		MaxDepth:    maxDepth,
		MaxFiles:    maxFiles,
		MaxFileSize: maxFileSize,
		logger:      logger,
	}
}

// FileContent returns the text of a single file. Binary content and read
// errors become inline markers rather than errors so a traversal never
// aborts on one bad file.
func (a *Aggregator) FileContent(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("[Error reading file %s: %v]", path, err)
	}
	if !utf8.Valid(data) {
		return fmt.Sprintf("[Binary file: %s]", path)
	}
	return string(data)
}

// DirectoryContent walks dir breadth-first, bounded by MaxDepth and
// MaxFiles, and concatenates the surviving file contents under header
// separators naming each directory and file.
func (a *Aggregator) DirectoryContent(dir string) string {
	rules := LoadIgnoreRules(dir)
	a.logger.Debug("loaded ignore patterns", "count", rules.Len())

	var result []string
	fileCount := 0

	dirsToProcess := []string{dir}
	for depth := 0; len(dirsToProcess) > 0 && depth < a.MaxDepth && fileCount < a.MaxFiles; depth++ {
		var nextDirs []string

		for _, currentDir := range dirsToProcess {
			result = append(result, fmt.Sprintf("===== Directory: %s =====", currentDir))

			entries, err := os.ReadDir(currentDir)
			if err != nil {
				result = append(result, fmt.Sprintf("[Error reading directory %s: %v]", currentDir, err))
				continue
			}

			// Directories first, then files, each alphabetically.
			sort.Slice(entries, func(i, j int) bool {
				if entries[i].IsDir() != entries[j].IsDir() {
					return entries[i].IsDir()
				}
				return entries[i].Name() < entries[j].Name()
			})

			for _, entry := range entries {
				path := filepath.Join(currentDir, entry.Name())
				if a.shouldIgnore(dir, path, entry, rules) {
					continue
				}

				if entry.IsDir() {
					nextDirs = append(nextDirs, path)
					continue
				}

				if fileCount < a.MaxFiles {
					result = append(result, fmt.Sprintf("===== %s =====", entry.Name()))
					result = append(result, a.FileContent(path))
					fileCount++
				} else {
					result = append(result, fmt.Sprintf("[Skipped file: %s - max file limit reached]", entry.Name()))
				}
			}
		}

		dirsToProcess = nextDirs
	}

	if fileCount >= a.MaxFiles {
		result = append(result, fmt.Sprintf("[Warning: Only processed %d files. Additional files were skipped.]", fileCount))
	}

	return strings.Join(result, "\n\n")
}

// shouldIgnore decides whether a directory entry is excluded from the
// snapshot. The ignore rules match against the path relative to the
// traversal root, not the current subdirectory.
func (a *Aggregator) shouldIgnore(root, path string, entry os.DirEntry, rules *IgnoreRules) bool {
	if strings.HasPrefix(entry.Name(), ".") {
		return true
	}

	relPath, err := filepath.Rel(root, path)
	if err == nil && rules.Match(relPath) {
		a.logger.Debug("ignored by pattern", "path", relPath)
		return true
	}

	if !entry.IsDir() {
		if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
			return true
		}
		if info, err := entry.Info(); err == nil && info.Size() > a.MaxFileSize {
			a.logger.Debug("skipping large file", "path", relPath, "size", info.Size())
			return true
		}
	}

	return false
}
