// Package classify provides the classifier implementations that turn inbound
// message text into workflow events: an ordered keyword matcher and an
// LLM-backed matcher that delegates to a text-completion collaborator.
package classify

import (
	"context"
	"strings"

	"github.com/casetrail/reqflow/workflow"
)

// Rule maps a phrase to the event it signals. Rules are evaluated in
// declaration order; the first phrase found in the text wins.
type Rule struct {
	Phrase string         `yaml:"phrase"`
	Event  workflow.Event `yaml:"event"`
}

// Keyword classifies text by substring search over an ordered rule list.
// Matching is case-insensitive unless configured otherwise. Empty or
// whitespace-only text never matches.
type Keyword struct {
	rules         []Rule
	caseSensitive bool
}

// KeywordOption configures a Keyword classifier.
type KeywordOption func(*Keyword)

// WithCaseSensitive makes phrase matching case-sensitive.
func WithCaseSensitive() KeywordOption {
	return func(k *Keyword) {
		k.caseSensitive = true
	}
}

// NewKeyword creates a keyword classifier over the given rules.
func NewKeyword(rules []Rule, opts ...KeywordOption) *Keyword {
	k := &Keyword{rules: rules}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Classify returns the event of the first rule whose phrase occurs in text.
func (k *Keyword) Classify(ctx context.Context, text string) (workflow.Event, bool, error) {
	if strings.TrimSpace(text) == "" {
		return "", false, nil
	}

	search := text
	if !k.caseSensitive {
		search = strings.ToLower(text)
	}

	for _, rule := range k.rules {
		phrase := rule.Phrase
		if !k.caseSensitive {
			phrase = strings.ToLower(phrase)
		}
		if phrase != "" && strings.Contains(search, phrase) {
			return rule.Event, true, nil
		}
	}

	return "", false, nil
}
