// Package privacy screens memory text before it is stored: blocked keywords
// reject the write, PII is masked irreversibly, and length limits are
// enforced on the masked text.
package privacy

import (
	"strings"
	"unicode/utf8"

	"github.com/rcliao/context-memory/internal/model"
)

const (
	DefaultMaxContentLength = 10000
	DefaultMaxContextLength = 1000
)

// Config holds the privacy rules.
type Config struct {
	BlockedKeywords  []string
	MaxContentLength int
	MaxContextLength int
}

// DefaultConfig returns the default limits with no blocked keywords.
func DefaultConfig() Config {
	return Config{
		MaxContentLength: DefaultMaxContentLength,
		MaxContextLength: DefaultMaxContextLength,
	}
}

// Settings summarizes the active rules without exposing the keywords.
type Settings struct {
	BlockedKeywords  int      `json:"blocked_keywords_count"`
	MaxContentLength int      `json:"max_content_length"`
	MaxContextLength int      `json:"max_context_length"`
	MaskedCategories []string `json:"masked_categories"`
}

// Sanitized is the output of a successful Sanitize.
type Sanitized struct {
	Content string
	Context string
	Masked  map[Category]int // matches replaced per category
}

// Filter applies the privacy rules. It is safe for concurrent use.
type Filter struct {
	blocked    []string
	maxContent int
	maxContext int
}

// New builds a Filter. Zero limits fall back to the defaults.
func New(cfg Config) *Filter {
	f := &Filter{
		maxContent: cfg.MaxContentLength,
		maxContext: cfg.MaxContextLength,
	}
	if f.maxContent <= 0 {
		f.maxContent = DefaultMaxContentLength
	}
	if f.maxContext <= 0 {
		f.maxContext = DefaultMaxContextLength
	}
	seen := map[string]bool{}
	for _, kw := range cfg.BlockedKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		f.blocked = append(f.blocked, kw)
	}
	return f
}

// Sanitize runs blocked-keyword check, PII masking and length enforcement,
// in that order. Any failure rejects the whole write.
func (f *Filter) Sanitize(content, context string) (Sanitized, error) {
	if err := f.CheckBlocked("content", content); err != nil {
		return Sanitized{}, err
	}
	if err := f.CheckBlocked("context", context); err != nil {
		return Sanitized{}, err
	}

	masked := map[Category]int{}
	content = maskInto(content, masked)
	context = maskInto(context, masked)

	if err := checkLength("content", content, f.maxContent); err != nil {
		return Sanitized{}, err
	}
	if err := checkLength("context", context, f.maxContext); err != nil {
		return Sanitized{}, err
	}

	return Sanitized{Content: content, Context: context, Masked: masked}, nil
}

// CheckBlocked returns a *model.BlockedContentError if text contains any
// blocked keyword, case-insensitively.
func (f *Filter) CheckBlocked(field, text string) error {
	if text == "" || len(f.blocked) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	for _, kw := range f.blocked {
		if strings.Contains(lower, kw) {
			return &model.BlockedContentError{Field: field, Keyword: kw}
		}
	}
	return nil
}

// Settings reports the active rules.
func (f *Filter) Settings() Settings {
	cats := make([]string, 0, len(detectors))
	for _, d := range detectors {
		cats = append(cats, string(d.category))
	}
	return Settings{
		BlockedKeywords:  len(f.blocked),
		MaxContentLength: f.maxContent,
		MaxContextLength: f.maxContext,
		MaskedCategories: cats,
	}
}

func checkLength(field, text string, max int) error {
	if n := utf8.RuneCountInString(text); n > max {
		return &model.TooLongError{Field: field, Length: n, Max: max}
	}
	return nil
}

func maskInto(text string, counts map[Category]int) string {
	out, found := MaskPII(text)
	for c, n := range found {
		counts[c] += n
	}
	return out
}
