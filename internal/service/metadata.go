package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cloo-solutions/policyrag/internal/domain"
)

const (
	minPolicyNameLength = 10
	maxPolicyNameLength = 200
)

type datePattern struct {
	re *regexp.Regexp
	// monthName is set when the first group is a month name.
	monthName bool
}

var datePatterns = []datePattern{
	{re: regexp.MustCompile(`(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})`)},
	{re: regexp.MustCompile(`(\d{4})[/\-.](\d{1,2})[/\-.](\d{1,2})`)},
	{
		re:        regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2}),?\s*(\d{4})\b`),
		monthName: true,
	},
}

var monthNumbers = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

const amountNumber = `(\d+(?:,\d+)*(?:\.\d+)?)`

// entityMatcher holds the compiled entity vocabularies of a tables resource.
type entityMatcher struct {
	organizations []*regexp.Regexp
	positions     []*regexp.Regexp
	// amounts capture the number in group 1; unit-first forms come first.
	amounts []*regexp.Regexp
}

func newEntityMatcher(t domain.EntityTables) *entityMatcher {
	m := &entityMatcher{
		organizations: wholeWords(t.Organizations),
		positions:     wholeWords(t.Positions),
	}
	if len(t.AmountUnits) == 0 {
		return m
	}

	before := make([]string, 0, len(t.AmountUnits))
	var after []string
	seen := make(map[string]bool, len(t.AmountUnits))
	for _, unit := range t.AmountUnits {
		before = append(before, regexp.QuoteMeta(unit))
		bare := strings.TrimSuffix(unit, ".")
		if !seen[bare] {
			seen[bare] = true
			after = append(after, regexp.QuoteMeta(bare))
		}
	}
	m.amounts = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:` + strings.Join(before, "|") + `)\s*` + amountNumber),
		regexp.MustCompile(amountNumber + `\s*(?:` + strings.Join(after, "|") + `)\b`),
	}
	return m
}

func wholeWords(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return out
}

// extract collects every organization, position and amount match.
func (m *entityMatcher) extract(text string) domain.Entities {
	entities := domain.Entities{
		Organizations: []string{},
		Positions:     []string{},
		Amounts:       []string{},
	}
	for _, re := range m.organizations {
		entities.Organizations = append(entities.Organizations, re.FindAllString(text, -1)...)
	}
	for _, re := range m.positions {
		entities.Positions = append(entities.Positions, re.FindAllString(text, -1)...)
	}
	for _, re := range m.amounts {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			entities.Amounts = append(entities.Amounts, match[1])
		}
	}
	return entities
}

var defaultEntities = sync.OnceValue(func() *entityMatcher {
	return newEntityMatcher(domain.DefaultTables().Entities)
})

// MetadataExtractor derives DocumentMetadata from cleaned text and its filename.
type MetadataExtractor struct {
	categorizer *Categorizer
	entities    *entityMatcher
	now         func() time.Time
}

// NewMetadataExtractor creates an extractor that delegates categorization to categorizer.
func NewMetadataExtractor(categorizer *Categorizer) *MetadataExtractor {
	return &MetadataExtractor{
		categorizer: categorizer,
		entities:    newEntityMatcher(categorizer.tables.Entities),
		now:         time.Now,
	}
}

// Extract builds the full metadata record. Missing dates and categories fall back to sentinels.
func (e *MetadataExtractor) Extract(text, filename string, size int64) *domain.DocumentMetadata {
	return &domain.DocumentMetadata{
		Filename:         filename,
		OriginalFilename: filename,
		Category:         e.categorizer.Categorize(text, filename),
		DocumentType:     e.categorizer.DocumentType(filename),
		Date:             ExtractDate(text, filename),
		PolicyName:       ExtractPolicyName(text),
		FileSize:         size,
		WordCount:        len(strings.Fields(text)),
		CharCount:        utf8.RuneCountInString(text),
		Entities:         e.entities.extract(text),
		ProcessingDate:   e.now().UTC(),
		Version:          domain.MetadataVersion,
		Status:           domain.StatusProcessed,
	}
}

// ExtractDate returns the first plausible date as YYYY-MM-DD, or the unknown sentinel.
func ExtractDate(text, filename string) string {
	haystack := text + " " + filename
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(haystack)
		if m == nil {
			continue
		}
		date, err := normalizeDate(m[1], m[2], m[3], p.monthName)
		if err != nil {
			continue
		}
		return date
	}
	return domain.DateUnknown
}

func normalizeDate(first, second, third string, monthName bool) (string, error) {
	var year, month, day int
	var err error

	switch {
	case monthName:
		month = monthNumbers[strings.ToLower(first)[:3]]
		if day, err = strconv.Atoi(second); err != nil {
			return "", err
		}
		if year, err = strconv.Atoi(third); err != nil {
			return "", err
		}
	case len(first) == 4:
		if year, err = strconv.Atoi(first); err != nil {
			return "", err
		}
		if month, err = strconv.Atoi(second); err != nil {
			return "", err
		}
		if day, err = strconv.Atoi(third); err != nil {
			return "", err
		}
	default:
		if day, err = strconv.Atoi(first); err != nil {
			return "", err
		}
		if month, err = strconv.Atoi(second); err != nil {
			return "", err
		}
		if year, err = strconv.Atoi(third); err != nil {
			return "", err
		}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", fmt.Errorf("implausible date %04d-%02d-%02d", year, month, day)
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), nil
}

// ExtractPolicyName returns the first line whose trimmed length is strictly between 10 and 200.
func ExtractPolicyName(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		n := utf8.RuneCountInString(line)
		if n > minPolicyNameLength && n < maxPolicyNameLength {
			return line
		}
	}
	return ""
}

// ExtractEntities collects the entities of the embedded default tables.
func ExtractEntities(text string) domain.Entities {
	return defaultEntities().extract(text)
}
