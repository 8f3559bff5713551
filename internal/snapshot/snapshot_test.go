package snapshot

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAggregator(maxDepth, maxFiles int) *Aggregator {
	return NewAggregator(maxDepth, maxFiles, 1000000, log.New(io.Discard))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestFileContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.txt", "hello snapshot")

	a := testAggregator(3, 50)
	assert.Equal(t, "hello snapshot", a.FileContent(filepath.Join(dir, "hello.txt")))
}

func TestFileContentBinaryMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x80}, 0644))

	a := testAggregator(3, 50)
	assert.Contains(t, a.FileContent(path), "[Binary file:")
}

func TestFileContentErrorMarker(t *testing.T) {
	a := testAggregator(3, 50)
	content := a.FileContent(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Contains(t, content, "[Error reading file")
}

func TestDirectoryContentSkipsHidden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "included.txt", "0123456789")
	writeFile(t, dir, ".hidden.txt", "secret")

	a := testAggregator(3, 50)
	out := a.DirectoryContent(dir)

	assert.Contains(t, out, "===== included.txt =====")
	assert.Contains(t, out, "0123456789")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "secret")

	// Exactly one file body was emitted.
	fileHeaders := strings.Count(out, "===== ") - strings.Count(out, "===== Directory:")
	assert.Equal(t, 1, fileHeaders)
}

func TestDirectoryContentMaxFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "body-a")
	writeFile(t, dir, "b.txt", "body-b")
	writeFile(t, dir, "c.txt", "body-c")

	a := testAggregator(3, 2)
	out := a.DirectoryContent(dir)

	assert.Contains(t, out, "body-a")
	assert.Contains(t, out, "body-b")
	assert.NotContains(t, out, "body-c")
	assert.Contains(t, out, "[Skipped file: c.txt - max file limit reached]")
	assert.Contains(t, out, "[Warning: Only processed 2 files")
}

func TestDirectoryContentMaxDepth(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "top.txt", "top-body")
	writeFile(t, dir, filepath.Join("sub", "mid.txt"), "mid-body")
	writeFile(t, dir, filepath.Join("sub", "deeper", "deep.txt"), "deep-body")

	a := testAggregator(2, 50)
	out := a.DirectoryContent(dir)

	assert.Contains(t, out, "top-body")
	assert.Contains(t, out, "mid-body")
	assert.NotContains(t, out, "deep-body")
}

func TestDirectoryContentSkipsBinaryExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "photo.png", "not really a png")
	writeFile(t, dir, "notes.txt", "text-body")

	a := testAggregator(3, 50)
	out := a.DirectoryContent(dir)

	assert.Contains(t, out, "text-body")
	assert.NotContains(t, out, "photo.png")
}

func TestDirectoryContentSkipsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.txt", strings.Repeat("x", 200))
	writeFile(t, dir, "small.txt", "small-body")

	a := NewAggregator(3, 50, 100, log.New(io.Discard))
	out := a.DirectoryContent(dir)

	assert.Contains(t, out, "small-body")
	assert.NotContains(t, out, "big.txt")
}

func TestDirectoryContentHeaders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.txt", "one-body")

	a := testAggregator(3, 50)
	out := a.DirectoryContent(dir)

	assert.Contains(t, out, "===== Directory: "+dir+" =====")
	assert.Contains(t, out, "===== one.txt =====")
}

func TestIgnoreRulesMatching(t *testing.T) {
	rules := &IgnoreRules{patterns: []string{"build/", "*.log", "vendor"}}

	// Directory prefix
	assert.True(t, rules.Match("build"))
	assert.True(t, rules.Match("build/out.txt"))

	// Suffix
	assert.True(t, rules.Match("debug.log"))
	assert.True(t, rules.Match("sub/trace.log"))

	// Substring
	assert.True(t, rules.Match("vendor/lib.go"))
	assert.True(t, rules.Match("third/vendor/lib.go"))

	assert.False(t, rules.Match("src/main.go"))
}

func TestIgnoreRulesEmptyByDefault(t *testing.T) {
	// A directory outside any git repository yields no patterns.
	rules := LoadIgnoreRules(t.TempDir())
	assert.Equal(t, 0, rules.Len())
	assert.False(t, rules.Match("anything"))
}

func TestLoadIgnoreRulesFromRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	gitInit := exec.Command("git", "init", "-q")
	gitInit.Dir = dir
	require.NoError(t, gitInit.Run())

	writeFile(t, dir, ".gitignore", "# artifacts\n*.log\nbuild/\n\nsecret.txt\n")

	// Discovery walks up from a subdirectory to the repository root.
	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0755))

	rules := LoadIgnoreRules(sub)
	require.Equal(t, 3, rules.Len())
	assert.True(t, rules.Match("debug.log"))
	assert.True(t, rules.Match("build/main.o"))
	assert.True(t, rules.Match("secret.txt"))
	assert.False(t, rules.Match("main.go"))
}

func TestDirectoryContentAppliesIgnoreRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.txt", "keep-body")
	writeFile(t, dir, "drop.log", "drop-body")

	a := testAggregator(3, 50)
	// Inject rules directly: LoadIgnoreRules needs a git repo, which a
	// temp dir does not have.
	rules := &IgnoreRules{patterns: []string{"*.log"}}

	var result []string
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if a.shouldIgnore(dir, path, entry, rules) {
			continue
		}
		result = append(result, a.FileContent(path))
	}

	out := strings.Join(result, "\n")
	assert.Contains(t, out, "keep-body")
	assert.NotContains(t, out, "drop-body")
}
