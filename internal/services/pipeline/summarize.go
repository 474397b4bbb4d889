// -----------------------------------------------------------------------
// Summarizer - one rate-limited summary per cluster, plus overall summary
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const topicSummaryPrompt = "Your task is to provide a concise, comprehensive summary of the following text chunks, which all belong to a single topic. Write the summary in the language of the source text. Output only the summary itself, without any introductory phrases."

const overallSummaryPrompt = "Your task is to create a high-level, overarching summary from the following topic summaries. The summary should capture the main themes of the entire document. Output only the summary itself."

// SummarizeStage produces one summary per cluster and an overarching
// document summary, all paced by the summarize usage class. A cluster
// whose summarization fails keeps an empty summary; this never aborts
// the task.
type SummarizeStage struct {
	llm             interfaces.LLMService
	limiter         *ClassLimiter
	model           string
	safeContextSize int
	concurrency     int
	logger          arbor.ILogger
}

// NewSummarizeStage creates a summarize stage. safeContextSize bounds the
// characters of cluster text placed into a single prompt; oversized
// clusters are summarized in batches and the batch summaries condensed
// into one.
func NewSummarizeStage(llm interfaces.LLMService, limiter *ClassLimiter, model string, safeContextSize int, logger arbor.ILogger) *SummarizeStage {
	if safeContextSize <= 0 {
		safeContextSize = 20000
	}
	return &SummarizeStage{
		llm:             llm,
		limiter:         limiter,
		model:           model,
		safeContextSize: safeContextSize,
		concurrency:     2,
		logger:          logger,
	}
}

// Run builds the result-view clusters from the assignments and fills in
// their summaries, one LLM call per cluster. The returned cluster slice is
// valid even when the error is non-nil (disabled rate limit class); in
// that case all summaries are empty.
func (s *SummarizeStage) Run(ctx context.Context, chunks []models.Chunk, assignments []models.ClusterAssignment) ([]models.Cluster, string, error) {
	clusters := BuildClusters(chunks, assignments)
	if len(clusters) == 0 {
		return clusters, "", nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		disabled error
	)
	sem := make(chan struct{}, s.concurrency)

	for i := range clusters {
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

			summary, err := s.summarizeCluster(ctx, clusters[idx].Docs)
			if err != nil {
				if errors.Is(err, models.ErrRateLimitDisabled) {
					mu.Lock()
					disabled = err
					mu.Unlock()
					return
				}
				s.logger.Warn().
					Err(err).
					Int("cluster_id", clusters[idx].ClusterID).
					Msg("Cluster summarization failed, keeping empty summary")
				return
			}
			clusters[idx].Summary = summary
		}(i)
	}
	wg.Wait()

	if disabled != nil {
		return clusters, "", disabled
	}

	overall := s.overallSummary(ctx, clusters)

	s.logger.Info().
		Int("clusters", len(clusters)).
		Bool("overall_summary", overall != "").
		Msg("Summarization complete")

	return clusters, overall, nil
}

// summarizeCluster summarizes one cluster. Clusters whose text fits the
// safe context size take a single call; oversized clusters are split into
// batches, each batch summarized separately, and the batch summaries
// condensed with one more call.
func (s *SummarizeStage) summarizeCluster(ctx context.Context, docs []string) (string, error) {
	if docsRuneLen(docs) <= s.safeContextSize {
		return s.generateTopicSummary(ctx, strings.Join(docs, "\n\n"))
	}

	batches := s.batchDocs(docs)
	s.logger.Debug().
		Int("docs", len(docs)).
		Int("batches", len(batches)).
		Msg("Cluster text over safe context size, summarizing in batches")

	intermediates := make([]string, 0, len(batches))
	for _, batch := range batches {
		summary, err := s.generateTopicSummary(ctx, strings.Join(batch, "\n\n"))
		if err != nil {
			if errors.Is(err, models.ErrRateLimitDisabled) {
				return "", err
			}
			s.logger.Warn().Err(err).Msg("Batch summarization failed, skipping batch")
			continue
		}
		intermediates = append(intermediates, summary)
	}

	switch len(intermediates) {
	case 0:
		return "", errors.New("all batch summarizations failed")
	case 1:
		return intermediates[0], nil
	}
	return s.generateTopicSummary(ctx, strings.Join(intermediates, "\n\n"))
}

// generateTopicSummary runs one rate-limited topic summary call
func (s *SummarizeStage) generateTopicSummary(ctx context.Context, text string) (string, error) {
	if err := s.limiter.Acquire(ctx, UsageSummarize); err != nil {
		return "", err
	}
	return s.llm.Generate(ctx, &interfaces.GenerateRequest{
		Model:             s.model,
		SystemInstruction: topicSummaryPrompt,
		Prompt:            "TEXT CHUNKS:\n---\n" + text,
	})
}

// batchDocs partitions docs into runs of whole chunks, each within the
// safe context size. A single oversized doc still forms its own batch.
func (s *SummarizeStage) batchDocs(docs []string) [][]string {
	var batches [][]string
	var current []string
	used := 0
	for _, doc := range docs {
		n := utf8.RuneCountInString(doc)
		if len(current) > 0 && used+n+2 > s.safeContextSize {
			batches = append(batches, current)
			current = nil
			used = 0
		}
		if len(current) > 0 {
			used += 2
		}
		current = append(current, doc)
		used += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// overallSummary condenses the per-cluster summaries into one document
// summary. When every cluster summary failed it falls back to the raw
// cluster text; failures degrade to an empty string.
func (s *SummarizeStage) overallSummary(ctx context.Context, clusters []models.Cluster) string {
	summaries := make([]string, 0, len(clusters))
	for _, c := range clusters {
		if c.Summary != "" {
			summaries = append(summaries, c.Summary)
		}
	}
	if len(summaries) == 0 {
		return s.overallFromText(ctx, clusters)
	}
	if len(summaries) == 1 {
		return summaries[0]
	}

	if err := s.limiter.Acquire(ctx, UsageSummarize); err != nil {
		s.logger.Warn().Err(err).Msg("Skipping overall summary")
		return ""
	}

	prompt := "TOPIC SUMMARIES:\n---\n" + strings.Join(summaries, "\n\n")
	summary, err := s.llm.Generate(ctx, &interfaces.GenerateRequest{
		Model:             s.model,
		SystemInstruction: overallSummaryPrompt,
		Prompt:            prompt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Overall summarization failed")
		return ""
	}
	return summary
}

// overallFromText summarizes sampled raw cluster text directly, used when
// no cluster produced a summary
func (s *SummarizeStage) overallFromText(ctx context.Context, clusters []models.Cluster) string {
	var docs []string
	for _, c := range clusters {
		docs = append(docs, c.Docs...)
	}
	text := s.sampleDocs(docs)
	if text == "" {
		return ""
	}

	if err := s.limiter.Acquire(ctx, UsageSummarize); err != nil {
		s.logger.Warn().Err(err).Msg("Skipping overall summary")
		return ""
	}
	summary, err := s.llm.Generate(ctx, &interfaces.GenerateRequest{
		Model:             s.model,
		SystemInstruction: overallSummaryPrompt,
		Prompt:            "FULL TEXT:\n---\n" + text,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Overall summarization from text failed")
		return ""
	}
	return summary
}

// sampleDocs concatenates cluster docs up to the safe context size,
// taking whole chunks in document order. The size is a character budget,
// so it is measured in runes.
func (s *SummarizeStage) sampleDocs(docs []string) string {
	var b strings.Builder
	used := 0
	for i, doc := range docs {
		n := utf8.RuneCountInString(doc)
		if used > 0 && used+n+2 > s.safeContextSize {
			s.logger.Debug().
				Int("included", i).
				Int("total", len(docs)).
				Msg("Cluster text truncated to safe context size")
			break
		}
		if used > 0 {
			b.WriteString("\n\n")
			used += 2
		}
		b.WriteString(doc)
		used += n
	}
	return b.String()
}

// docsRuneLen is the rune length of docs joined with "\n\n"
func docsRuneLen(docs []string) int {
	total := 0
	for i, doc := range docs {
		if i > 0 {
			total += 2
		}
		total += utf8.RuneCountInString(doc)
	}
	return total
}

// BuildClusters derives the result-view clusters (docs in document order,
// summaries empty) from cluster assignments
func BuildClusters(chunks []models.Chunk, assignments []models.ClusterAssignment) []models.Cluster {
	clusters := make([]models.Cluster, 0, len(assignments))
	for _, a := range assignments {
		docs := make([]string, 0, len(a.ChunkIndices))
		for _, idx := range a.ChunkIndices {
			if idx >= 0 && idx < len(chunks) {
				docs = append(docs, chunks[idx].Text)
			}
		}
		clusters = append(clusters, models.Cluster{
			ClusterID: a.ClusterID,
			Docs:      docs,
		})
	}
	return clusters
}
