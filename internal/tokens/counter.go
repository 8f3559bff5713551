package tokens

import (
	"strings"
	"unicode"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// fallbackCharsPerToken is the character-to-token ratio used when no
// encoding is available. Roughly 4 characters per token for English text.
const fallbackCharsPerToken = 4

// Counter estimates token counts for text. Estimates are heuristic
// approximations, not exact reproductions of any model's tokenizer.
type Counter interface {
	Count(text string) int
}

// NewCounter returns the counter for the configured backend.
// "heuristic" selects the Qwen-family estimator; anything else selects
// the BPE counter.
func NewCounter(backend string) Counter {
	if backend == "heuristic" {
		return &HeuristicCounter{}
	}
	return NewBPECounter()
}

// BPECounter counts tokens with the cl100k_base encoding. When the
// encoding cannot be loaded it falls back to a length/4 approximation.
type BPECounter struct {
	encoding *tiktoken.Tiktoken
}

func NewBPECounter() *BPECounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &BPECounter{}
	}
	return &BPECounter{encoding: enc}
}

func (c *BPECounter) Count(text string) int {
	if c.encoding == nil {
		return len(text) / fallbackCharsPerToken
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// HeuristicCounter approximates token counts for Qwen-family models:
// whitespace-separated words plus one token per CJK character, half a
// token per digit and half a token per punctuation character. CJK,
// digits and punctuation dominate tokenizer splits for these models, so
// this tracks real counts more closely than length/4 for code and
// numbered text.
type HeuristicCounter struct{}

func (c *HeuristicCounter) Count(text string) int {
	words := len(strings.Fields(text))

	var cjk, digits, special int
	for _, r := range text {
		if r > 0x4E00 && r < 0x9FFF {
			cjk++
		}
		if unicode.IsDigit(r) {
			digits++
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}

	return int(float64(words+cjk) + 0.5*float64(digits) + 0.5*float64(special))
}
