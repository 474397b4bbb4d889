// -----------------------------------------------------------------------
// Orchestrator - drives one URL through the full knowledge-base pipeline
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/tasks"
)

// Pipeline stage names, used for logging and debug snapshots
const (
	StageFetching    = "fetching"
	StageCleaning    = "cleaning"
	StageChunking    = "chunking"
	StageRepairing   = "repairing"
	StageClustering  = "clustering"
	StageSummarizing = "summarizing"
	StageAssembling  = "assembling"
)

// SubmitOptions carries the per-task pipeline switches. A zero chunk size
// falls back to the configured default; a nil overlap falls back to the
// configured default while an explicit 0 disables overlap.
type SubmitOptions struct {
	URL                  string
	UseRepair            bool
	UseClusteringSummary bool
	RepairModel          string
	SummarizeModel       string
	ChunkSize            int
	ChunkOverlap         *int
}

// Orchestrator runs submitted URLs through fetch, chunk, repair,
// cluster, summarize and assembly. Submission is fire-and-forget: the
// pipeline runs on a panic-protected background goroutine and reports
// progress only through the task registry.
type Orchestrator struct {
	extractor interfaces.ContentExtractor
	llm       interfaces.LLMService
	embedder  interfaces.EmbeddingService
	limiter   *ClassLimiter
	registry  *tasks.Registry
	artifacts interfaces.ArtifactStore
	snap      *Snapshotter
	cfg       common.PipelineConfig
	logger    arbor.ILogger
}

// NewOrchestrator wires the pipeline stages together
func NewOrchestrator(
	extractor interfaces.ContentExtractor,
	llm interfaces.LLMService,
	embedder interfaces.EmbeddingService,
	limiter *ClassLimiter,
	registry *tasks.Registry,
	artifacts interfaces.ArtifactStore,
	snap *Snapshotter,
	cfg common.PipelineConfig,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		llm:       llm,
		embedder:  embedder,
		limiter:   limiter,
		registry:  registry,
		artifacts: artifacts,
		snap:      snap,
		cfg:       cfg,
		logger:    logger,
	}
}

// Submit validates the options, creates the task and starts the pipeline
// in the background. Invalid chunk parameters are a submission error: no
// task is created for them.
func (o *Orchestrator) Submit(opts SubmitOptions) (*models.Task, error) {
	size := opts.ChunkSize
	if size == 0 {
		size = o.cfg.ChunkSize
	}
	overlap := 0
	switch {
	case opts.ChunkOverlap != nil:
		overlap = *opts.ChunkOverlap
	case size > o.cfg.ChunkOverlap:
		overlap = o.cfg.ChunkOverlap
	}
	if err := ValidateChunkParams(size, overlap); err != nil {
		return nil, err
	}

	task := o.registry.Create(opts.URL)

	common.SafeGo(o.logger, "pipeline-"+task.ID, func() {
		o.run(task.ID, opts, size, overlap)
	})

	return task, nil
}

// run executes the pipeline for one task. Every exit path ends in exactly
// one terminal registry transition, including a panic in any stage.
func (o *Orchestrator) run(taskID string, opts SubmitOptions, chunkSize, chunkOverlap int) {
	started := time.Now()
	ctx := context.Background()
	log := o.logger.WithCorrelationId(taskID)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Pipeline panicked")
			o.fail(taskID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	page, err := o.extractor.Extract(ctx, opts.URL)
	if err != nil {
		log.Warn().Err(err).Str("url", opts.URL).Msg("Content extraction failed")
		o.fail(taskID, fmt.Sprintf("content extraction failed: %v", err))
		return
	}
	o.snap.Snapshot(taskID, StageFetching, map[string]string{"url": page.URL, "title": page.Title})
	o.snap.Snapshot(taskID, StageCleaning, page.Text)

	chunks, err := Split(page.Text, chunkSize, chunkOverlap)
	if err != nil {
		o.fail(taskID, fmt.Sprintf("chunking failed: %v", err))
		return
	}
	if len(chunks) == 0 {
		log.Warn().Str("url", opts.URL).Msg("Page yielded no content")
		o.fail(taskID, models.ErrNoContent.Error())
		return
	}
	log.Info().
		Int("chunks", len(chunks)).
		Int("chunk_size", chunkSize).
		Int("chunk_overlap", chunkOverlap).
		Msg("Text chunked")
	o.snap.Snapshot(taskID, StageChunking, chunks)

	if opts.UseRepair {
		repair := NewRepairStage(o.llm, o.limiter, opts.RepairModel, o.cfg.RepairConcurrency, o.cfg.StrictRepair, log)
		repaired, err := repair.Run(ctx, chunks)
		switch {
		case errors.Is(err, models.ErrRateLimitDisabled):
			log.Warn().Err(err).Msg("Repair skipped, continuing with unrepaired chunks")
		case err != nil:
			o.fail(taskID, fmt.Sprintf("repair failed: %v", err))
			return
		default:
			chunks = repaired
		}
		o.snap.Snapshot(taskID, StageRepairing, chunks)
	}

	clusters, overall := o.clusterAndSummarize(ctx, taskID, opts, chunks, log)

	result := &models.Result{
		Title:          page.Title,
		Content:        Join(chunks, chunkOverlap),
		OverallSummary: overall,
		Clusters:       clusters,
	}
	o.snap.Snapshot(taskID, StageAssembling, result)

	if err := o.registry.Complete(taskID, result); err != nil {
		log.Warn().Err(err).Msg("Failed to complete task")
		return
	}

	if err := o.artifacts.Save(&models.Artifact{
		TaskID:    taskID,
		URL:       opts.URL,
		Title:     result.Title,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		// The task result is still served from the registry
		log.Warn().Err(err).Msg("Failed to persist artifact")
	}

	log.Info().
		Str("url", opts.URL).
		Int("chunks", len(chunks)).
		Int("clusters", len(clusters)).
		Dur("duration", time.Since(started)).
		Msg("Pipeline complete")
}

// clusterAndSummarize produces the cluster view of the chunk set. Below
// the summarization threshold everything lands in one unsummarized
// cluster; with clustering disabled the cluster list is empty. Errors here
// degrade the result but never fail the task.
func (o *Orchestrator) clusterAndSummarize(ctx context.Context, taskID string, opts SubmitOptions, chunks []models.Chunk, log arbor.ILogger) ([]models.Cluster, string) {
	if !opts.UseClusteringSummary {
		return []models.Cluster{}, ""
	}

	if len(chunks) < o.cfg.SummarizationChunkThreshold {
		log.Debug().
			Int("chunks", len(chunks)).
			Int("threshold", o.cfg.SummarizationChunkThreshold).
			Msg("Below summarization threshold, using single cluster")
		return BuildClusters(chunks, SingleClusterAssignment(chunks)), ""
	}

	engine := NewClusterEngine(o.embedder, o.cfg.SimilarityThreshold, o.cfg.MaxEmbedFailureFraction, o.cfg.EmbedConcurrency, log)
	assignments, err := engine.Cluster(ctx, chunks)
	if err != nil {
		log.Warn().Err(err).Msg("Clustering degraded, falling back to single cluster")
		assignments = SingleClusterAssignment(chunks)
	}
	o.snap.Snapshot(taskID, StageClustering, assignments)

	summarize := NewSummarizeStage(o.llm, o.limiter, opts.SummarizeModel, o.cfg.SafeContextSize, log)
	clusters, overall, err := summarize.Run(ctx, chunks, assignments)
	if err != nil {
		log.Warn().Err(err).Msg("Summarization skipped")
	}
	o.snap.Snapshot(taskID, StageSummarizing, clusters)

	return clusters, overall
}

// fail records the terminal failure for a task
func (o *Orchestrator) fail(taskID, message string) {
	if err := o.registry.Fail(taskID, message); err != nil {
		o.logger.Warn().Err(err).Str("task_id", taskID).Msg("Failed to mark task failed")
	}
}
