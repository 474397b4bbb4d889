// -----------------------------------------------------------------------
// Repair Stage - LLM-driven correction of garbled chunk text
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const repairSystemPrompt = `You are an expert text processor. The user gives you one chunk of text extracted from a web page. It may contain encoding damage, broken formatting, or OCR-style garbling.

Repair the text: fix mis-encoded characters, broken words, and formatting artifacts while preserving the original meaning, language, and structure. Do not summarize, translate, or add commentary.

Wrap the repaired text in a single <repaired_text> tag. If the chunk contains clearly separate topics, you may emit one <repaired_text> tag per topic instead. Your entire output must consist only of <repaired_text> tags.`

var repairedTextPattern = regexp.MustCompile(`(?s)<repaired_text>(.*?)</repaired_text>`)

// RepairStage corrects chunk text through the LLM, one request per chunk,
// paced by the repair usage class. Chunk order is preserved: results are
// written back by index, never by completion order.
type RepairStage struct {
	llm         interfaces.LLMService
	limiter     *ClassLimiter
	model       string
	concurrency int
	maxRetries  int
	strict      bool
	logger      arbor.ILogger
}

// NewRepairStage creates a repair stage. With strict disabled (the
// default) chunk-level failures never fail the task; the failed chunk
// simply keeps its original text. With strict enabled the stage returns
// an error when every chunk failed.
func NewRepairStage(llm interfaces.LLMService, limiter *ClassLimiter, model string, concurrency int, strict bool, logger arbor.ILogger) *RepairStage {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &RepairStage{
		llm:         llm,
		limiter:     limiter,
		model:       model,
		concurrency: concurrency,
		maxRetries:  2,
		strict:      strict,
		logger:      logger,
	}
}

// Run repairs all chunks with bounded fan-out. The returned slice has the
// same length and index order as the input. The error is non-nil only for
// a disabled rate limit class or, in strict mode, when every chunk failed.
func (s *RepairStage) Run(ctx context.Context, chunks []models.Chunk) ([]models.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	out := make([]models.Chunk, len(chunks))
	copy(out, chunks)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
		disabled error
	)
	sem := make(chan struct{}, s.concurrency)

	for i := range chunks {
		mu.Lock()
		stop := disabled != nil
		mu.Unlock()
		if stop {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			repaired, err := s.repairChunk(ctx, chunks[idx].Text)
			if err != nil {
				if errors.Is(err, models.ErrRateLimitDisabled) {
					mu.Lock()
					disabled = err
					mu.Unlock()
					return
				}
				s.logger.Warn().
					Err(err).
					Int("chunk_index", idx).
					Msg("Chunk repair failed, keeping original text")
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}

			out[idx].Text = repaired
			out[idx].Repaired = true
		}(i)
	}
	wg.Wait()

	if disabled != nil {
		// Misconfigured limiter is fatal to this stage only; the task
		// continues with unrepaired chunks.
		return chunks, disabled
	}

	s.logger.Info().
		Int("chunks", len(chunks)).
		Int("failures", failures).
		Msg("Repair stage complete")

	if s.strict && failures == len(chunks) {
		return out, fmt.Errorf("repair failed for all %d chunks", len(chunks))
	}
	return out, nil
}

// repairChunk runs one rate-limited repair call with retries
func (s *RepairStage) repairChunk(ctx context.Context, text string) (string, error) {
	prompt := "Here is the text chunk to process:\n" + text

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := s.limiter.Acquire(ctx, UsageRepair); err != nil {
			if errors.Is(err, models.ErrRateLimitDisabled) {
				return "", err
			}
			lastErr = err
			continue
		}

		response, err := s.llm.Generate(ctx, &interfaces.GenerateRequest{
			Model:             s.model,
			SystemInstruction: repairSystemPrompt,
			Prompt:            prompt,
		})
		if err != nil {
			lastErr = err
			s.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Msg("Repair LLM call failed")
			continue
		}

		parts := parseRepairedText(response)
		if len(parts) == 0 {
			lastErr = fmt.Errorf("repair response contained no repaired_text tags")
			s.logger.Warn().
				Int("attempt", attempt+1).
				Msg("Repair response missing repaired_text tags")
			continue
		}

		return strings.Join(parts, "\n\n"), nil
	}

	return "", fmt.Errorf("chunk repair failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

// parseRepairedText extracts the repaired_text tag contents from a response
func parseRepairedText(response string) []string {
	matches := repairedTextPattern.FindAllStringSubmatch(response, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if text := strings.TrimSpace(m[1]); text != "" {
			parts = append(parts, text)
		}
	}
	return parts
}
