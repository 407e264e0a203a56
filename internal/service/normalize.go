package service

import (
	"regexp"
	"strings"

	"github.com/cloo-solutions/policyrag/internal/domain"
)

// maxNormalizePasses bounds the fixed-point loop in Normalize.
const maxNormalizePasses = 10

var (
	horizontalSpaceRe = regexp.MustCompile(`[^\S\n]+`)
	spaceAroundLineRe = regexp.MustCompile(` ?\n ?`)
	letterDigitRe     = regexp.MustCompile(`([a-zA-Z])([0-9])`)
	digitLetterRe     = regexp.MustCompile(`([0-9])([a-zA-Z])`)
	brokenWordRe      = regexp.MustCompile(`([a-zA-Z])-\n([a-z])`)
	brokenPipeRe      = regexp.MustCompile(`\| +\|`)
	excessNewlinesRe  = regexp.MustCompile(`\n{3,}`)
	disallowedCharRe  = regexp.MustCompile("[^\\p{L}\\p{M}\\p{N}_\\s.,\\-|:;()\\[\\]{}@#$%&*+=<>?/~`!]")
	abbreviationRe    = regexp.MustCompile(`([A-Z]) *\. *([A-Z])`)
	decimalRe         = regexp.MustCompile(`([0-9]+) *\. *([0-9]+)`)
)

// TextNormalizer cleans OCR output into text suitable for metadata extraction and embedding.
type TextNormalizer struct {
	fixes []domain.Replacement
}

// NewTextNormalizer creates a normalizer using the OCR fixes from tables.
func NewTextNormalizer(tables *domain.Tables) *TextNormalizer {
	if tables == nil {
		tables = domain.DefaultTables()
	}
	return &TextNormalizer{fixes: tables.OCRFixes}
}

// Normalize applies the cleaning pass until the output stops changing, so
// Normalize(Normalize(t)) == Normalize(t).
func (n *TextNormalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}

	current := text
	for i := 0; i < maxNormalizePasses; i++ {
		next := n.pass(current)
		if next == current {
			break
		}
		current = next
	}
	return current
}

func (n *TextNormalizer) pass(text string) string {
	for _, fix := range n.fixes {
		text = strings.ReplaceAll(text, fix.From, fix.To)
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = horizontalSpaceRe.ReplaceAllString(text, " ")
	text = spaceAroundLineRe.ReplaceAllString(text, "\n")

	text = letterDigitRe.ReplaceAllString(text, "$1 $2")
	text = digitLetterRe.ReplaceAllString(text, "$1 $2")

	text = brokenWordRe.ReplaceAllString(text, "$1$2")
	text = brokenPipeRe.ReplaceAllString(text, "||")
	text = excessNewlinesRe.ReplaceAllString(text, "\n\n")

	text = disallowedCharRe.ReplaceAllString(text, "")

	text = abbreviationRe.ReplaceAllString(text, "$1.$2")
	text = decimalRe.ReplaceAllString(text, "$1.$2")

	return strings.TrimSpace(text)
}
