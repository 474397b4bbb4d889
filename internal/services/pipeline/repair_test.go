package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// scriptedLLM implements interfaces.LLMService with a per-call function
type scriptedLLM struct {
	mu       sync.Mutex
	calls    int
	generate func(call int, request *interfaces.GenerateRequest) (string, error)
}

func (m *scriptedLLM) Generate(_ context.Context, request *interfaces.GenerateRequest) (string, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()
	return m.generate(call, request)
}

func (m *scriptedLLM) Close() error { return nil }

func openLimiter(t *testing.T) *ClassLimiter {
	t.Helper()
	limiter := NewClassLimiter(arbor.NewLogger())
	limiter.SetRPM(UsageRepair, 60000)
	limiter.SetRPM(UsageSummarize, 60000)
	return limiter
}

func makeChunks(texts ...string) []models.Chunk {
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{Index: i, Text: text}
	}
	return chunks
}

func TestRepairPreservesOrder(t *testing.T) {
	llm := &scriptedLLM{generate: func(_ int, request *interfaces.GenerateRequest) (string, error) {
		// Echo back the chunk text wrapped in the expected tag
		text := strings.TrimPrefix(request.Prompt, "Here is the text chunk to process:\n")
		return "<repaired_text>fixed " + text + "</repaired_text>", nil
	}}

	stage := NewRepairStage(llm, openLimiter(t), "", 4, false, arbor.NewLogger())
	out, err := stage.Run(context.Background(), makeChunks("alpha", "beta", "gamma"))
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "fixed alpha", out[0].Text)
	assert.Equal(t, "fixed beta", out[1].Text)
	assert.Equal(t, "fixed gamma", out[2].Text)
	for i, c := range out {
		assert.Equal(t, i, c.Index)
		assert.True(t, c.Repaired)
	}
}

func TestRepairFailedChunkKeepsOriginal(t *testing.T) {
	llm := &scriptedLLM{generate: func(_ int, request *interfaces.GenerateRequest) (string, error) {
		if strings.Contains(request.Prompt, "beta") {
			return "", fmt.Errorf("provider unavailable")
		}
		return "<repaired_text>ok</repaired_text>", nil
	}}

	stage := NewRepairStage(llm, openLimiter(t), "", 1, false, arbor.NewLogger())
	out, err := stage.Run(context.Background(), makeChunks("alpha", "beta", "gamma"))
	require.NoError(t, err)

	assert.Equal(t, "ok", out[0].Text)
	assert.Equal(t, "beta", out[1].Text)
	assert.False(t, out[1].Repaired)
	assert.Equal(t, "ok", out[2].Text)
}

func TestRepairRetriesOnMissingTags(t *testing.T) {
	llm := &scriptedLLM{generate: func(call int, _ *interfaces.GenerateRequest) (string, error) {
		if call == 0 {
			return "no tags in this response", nil
		}
		return "<repaired_text>second try</repaired_text>", nil
	}}

	stage := NewRepairStage(llm, openLimiter(t), "", 1, false, arbor.NewLogger())
	out, err := stage.Run(context.Background(), makeChunks("alpha"))
	require.NoError(t, err)
	assert.Equal(t, "second try", out[0].Text)
	assert.True(t, out[0].Repaired)
}

func TestRepairMultipleTagsJoined(t *testing.T) {
	llm := &scriptedLLM{generate: func(_ int, _ *interfaces.GenerateRequest) (string, error) {
		return "<repaired_text>topic one</repaired_text>\n<repaired_text>topic two</repaired_text>", nil
	}}

	stage := NewRepairStage(llm, openLimiter(t), "", 1, false, arbor.NewLogger())
	out, err := stage.Run(context.Background(), makeChunks("alpha"))
	require.NoError(t, err)
	assert.Equal(t, "topic one\n\ntopic two", out[0].Text)
}

func TestRepairDisabledLimiter(t *testing.T) {
	llm := &scriptedLLM{generate: func(_ int, _ *interfaces.GenerateRequest) (string, error) {
		t.Error("LLM must not be called when the class is disabled")
		return "", nil
	}}

	limiter := NewClassLimiter(arbor.NewLogger())
	limiter.SetRPM(UsageRepair, 0)

	original := makeChunks("alpha", "beta")
	stage := NewRepairStage(llm, limiter, "", 2, false, arbor.NewLogger())
	out, err := stage.Run(context.Background(), original)

	assert.True(t, errors.Is(err, models.ErrRateLimitDisabled))
	assert.Equal(t, original, out)
}

func TestRepairStrictAllFailed(t *testing.T) {
	llm := &scriptedLLM{generate: func(_ int, _ *interfaces.GenerateRequest) (string, error) {
		return "", fmt.Errorf("provider down")
	}}

	stage := NewRepairStage(llm, openLimiter(t), "", 2, true, arbor.NewLogger())
	_, err := stage.Run(context.Background(), makeChunks("alpha", "beta"))
	assert.Error(t, err)
}

func TestParseRepairedText(t *testing.T) {
	parts := parseRepairedText("prefix <repaired_text>one</repaired_text> middle <repaired_text>\n two \n</repaired_text> suffix")
	require.Len(t, parts, 2)
	assert.Equal(t, "one", parts[0])
	assert.Equal(t, "two", parts[1])

	assert.Empty(t, parseRepairedText("no tags"))
	assert.Empty(t, parseRepairedText("<repaired_text>   </repaired_text>"))
}
