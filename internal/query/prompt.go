package query

import (
	"fmt"
	"path/filepath"
	"strings"
)

const promptTemplate = `I'll provide code from my project for you to analyze. Please focus on answering my query effectively.

Project Files:
%s

Query: %s

Please provide a detailed answer focusing specifically on my query.`

// BuildPrompt assembles the final prompt from the aggregated content,
// the user's question and the target path whose base name labels the
// content block.
func BuildPrompt(content, question, targetPath string) string {
	formatted := content
	if strings.TrimSpace(content) != "" {
		formatted = fmt.Sprintf("===== %s =====\n%s", filepath.Base(targetPath), content)
	}
	return fmt.Sprintf(promptTemplate, formatted, question)
}
