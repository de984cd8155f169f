package classify

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/casetrail/reqflow/workflow"
)

// Completer is the text-completion collaborator behind the LLM classifier.
// Implementations call out to a model provider and return its raw response.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// defaultPromptTemplate enumerates the workflow's event names and asks the
// model for a bare category answer. Placeholders: categories, then content.
const defaultPromptTemplate = `Classify the following email content into one of these categories: %s

Email content:
%s

Respond with only the category name, nothing else.`

// LLM classifies text by asking a text-completion collaborator to pick one of
// the workflow's event names. Responses are parsed by exact case-insensitive
// match against the event set; anything else is treated as no match.
type LLM struct {
	completer Completer
	events    []workflow.Event
	template  string
	limiter   *rate.Limiter
}

// LLMOption configures an LLM classifier.
type LLMOption func(*LLM)

// WithPromptTemplate overrides the classification prompt. The template must
// contain two %s verbs: the comma-joined category list, then the content.
func WithPromptTemplate(template string) LLMOption {
	return func(l *LLM) {
		l.template = template
	}
}

// WithRateLimiter bounds the rate of completion calls. Classify blocks until
// the limiter grants a slot or the context is cancelled.
func WithRateLimiter(limiter *rate.Limiter) LLMOption {
	return func(l *LLM) {
		l.limiter = limiter
	}
}

// NewLLM creates an LLM classifier over the workflow's closed event set.
func NewLLM(completer Completer, events []workflow.Event, opts ...LLMOption) *LLM {
	l := &LLM{
		completer: completer,
		events:    events,
		template:  defaultPromptTemplate,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Classify prompts the completer and parses its response into an event.
func (l *LLM) Classify(ctx context.Context, text string) (workflow.Event, bool, error) {
	if strings.TrimSpace(text) == "" {
		return "", false, nil
	}

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return "", false, fmt.Errorf("classifier rate limit: %w", err)
		}
	}

	raw, err := l.completer.Complete(ctx, l.buildPrompt(text))
	if err != nil {
		return "", false, fmt.Errorf("completion call: %w", err)
	}

	return l.parseResponse(raw)
}

func (l *LLM) buildPrompt(content string) string {
	names := make([]string, len(l.events))
	for i, e := range l.events {
		names[i] = string(e)
	}
	return fmt.Sprintf(l.template, strings.Join(names, ", "), content)
}

func (l *LLM) parseResponse(raw string) (workflow.Event, bool, error) {
	clean := strings.ToUpper(strings.TrimSpace(raw))
	for _, e := range l.events {
		if strings.ToUpper(string(e)) == clean {
			return e, true, nil
		}
	}
	return "", false, nil
}
