package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrail/reqflow/workflow"
)

var dsrEvents = []workflow.Event{"ACKNOWLEDGED", "DATA_RECEIVED", "INFO_REQUESTED"}

func stubCompleter(response string) CompleterFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		return response, nil
	}
}

func TestLLMMatchesEventName(t *testing.T) {
	l := NewLLM(stubCompleter("DATA_RECEIVED"), dsrEvents)

	event, ok, err := l.Classify(context.Background(), "here is the export you asked for")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, workflow.Event("DATA_RECEIVED"), event)
}

func TestLLMParsesLooseResponse(t *testing.T) {
	l := NewLLM(stubCompleter("  data_received \n"), dsrEvents)

	event, ok, err := l.Classify(context.Background(), "attached")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, workflow.Event("DATA_RECEIVED"), event)
}

func TestLLMUnparseableResponse(t *testing.T) {
	l := NewLLM(stubCompleter("I think this is about the data you requested."), dsrEvents)

	_, ok, err := l.Classify(context.Background(), "some text")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLLMPromptEnumeratesEvents(t *testing.T) {
	var prompt string
	completer := CompleterFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "ACKNOWLEDGED", nil
	})
	l := NewLLM(completer, dsrEvents)

	_, _, err := l.Classify(context.Background(), "we got your request")
	require.NoError(t, err)
	assert.Contains(t, prompt, "ACKNOWLEDGED, DATA_RECEIVED, INFO_REQUESTED")
	assert.Contains(t, prompt, "we got your request")
}

func TestLLMCompleterErrorPropagates(t *testing.T) {
	boom := errors.New("provider down")
	completer := CompleterFunc(func(ctx context.Context, p string) (string, error) {
		return "", boom
	})
	l := NewLLM(completer, dsrEvents)

	_, _, err := l.Classify(context.Background(), "text")
	require.ErrorIs(t, err, boom)
}

func TestLLMBlankTextSkipsCompletion(t *testing.T) {
	called := false
	completer := CompleterFunc(func(ctx context.Context, p string) (string, error) {
		called = true
		return "ACKNOWLEDGED", nil
	})
	l := NewLLM(completer, dsrEvents)

	_, ok, err := l.Classify(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called, "blank text must not reach the completer")
}
