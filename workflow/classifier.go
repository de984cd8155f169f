package workflow

import "context"

// Classifier maps free text to a workflow event. The boolean result is false
// when the text matched nothing; that is an expected outcome, not an error.
// Implementations may perform I/O (e.g. an LLM call) and must honor the
// context's cancellation.
type Classifier interface {
	Classify(ctx context.Context, text string) (Event, bool, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, text string) (Event, bool, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, text string) (Event, bool, error) {
	return f(ctx, text)
}
