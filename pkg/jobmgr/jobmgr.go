// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package jobmgr implements the job manager: it owns job records for
// the lifetime of the process, ties together source acquisition
// (pkg/acquire), operation string parsing (pkg/ops), and pipeline
// execution (pkg/pipeline) behind the realtime and bulk submission
// shapes, and answers status/result queries against sticky terminal
// states.
package jobmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ingestlabs/extractcore/internal/xmetrics"
	"github.com/ingestlabs/extractcore/pkg/acquire"
	"github.com/ingestlabs/extractcore/pkg/ops"
	"github.com/ingestlabs/extractcore/pkg/pipeline"
	"github.com/ingestlabs/extractcore/pkg/types"
)

// SourceDescriptor names where a job's input comes from. Kind is
// advisory for callers; Acquirer itself detects the source kind from
// Location's scheme.
type SourceDescriptor struct {
	Kind     string
	Location string
}

// ProcessingOptions is one job's processing request.
type ProcessingOptions struct {
	Priority         int
	RequiredFeatures []string
	OptionalFeatures []string
	QualityMode      string
}

// RealtimeSubmission is a single-file job request.
type RealtimeSubmission struct {
	Source     SourceDescriptor
	Processing ProcessingOptions
}

// RealtimeResponse is returned immediately on submission, before the
// job has necessarily started running.
type RealtimeResponse struct {
	JobID   string
	Status  types.JobState
	Message string
}

// BulkFile is one file within a BulkSubmission.
type BulkFile struct {
	ID         string
	Source     SourceDescriptor
	Processing ProcessingOptions
}

// BulkConfig tunes a bulk submission as a whole.
type BulkConfig struct {
	Priority    int
	OptimizeFor string
	CallbackURL string
}

// BulkSubmission fans a batch out into one job per file.
type BulkSubmission struct {
	BatchID     string
	Files       []BulkFile
	BatchConfig BulkConfig
}

// BulkResponse reports the job IDs created for a batch.
type BulkResponse struct {
	BatchID string
	JobIDs  []string
	Message string
}

// ResultResponse is a terminal job's readable outcome.
type ResultResponse struct {
	JobID   string
	Status  types.JobState
	Results map[string]types.PluginData
	Error   string
}

type jobRecord struct {
	status  types.JobStatus
	results map[string]types.PluginData
	cancel  context.CancelFunc
}

// Manager owns every job submitted to it for the life of the process.
type Manager struct {
	acquirer *acquire.Acquirer
	executor *pipeline.Executor
	logger   *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*jobRecord
	batches map[string][]string
}

// New returns a Manager backed by acquirer and executor. A nil logger
// falls back to slog.Default().
func New(acquirer *acquire.Acquirer, executor *pipeline.Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		acquirer: acquirer,
		executor: executor,
		logger:   logger,
		jobs:     make(map[string]*jobRecord),
		batches:  make(map[string][]string),
	}
}

// SubmitRealtime parses opString, registers a new Queued job, and
// starts it running in the background. It returns as soon as the job
// is queued, not once it completes.
func (m *Manager) SubmitRealtime(opString string, sub RealtimeSubmission) (RealtimeResponse, error) {
	stages, err := ops.Parse(opString)
	if err != nil {
		return RealtimeResponse{}, err
	}

	id := uuid.NewString()
	m.register(id, countOps(stages))
	go m.run(id, sub.Source.Location, stages, toSet(sub.Processing.RequiredFeatures))

	return RealtimeResponse{JobID: id, Status: types.JobQueued}, nil
}

// SubmitBulk parses opString once and fans out one job per file,
// grouping the resulting job IDs under sub.BatchID.
func (m *Manager) SubmitBulk(opString string, sub BulkSubmission) (BulkResponse, error) {
	stages, err := ops.Parse(opString)
	if err != nil {
		return BulkResponse{}, err
	}

	jobIDs := make([]string, 0, len(sub.Files))
	for _, f := range sub.Files {
		id := uuid.NewString()
		m.register(id, countOps(stages))
		jobIDs = append(jobIDs, id)
		go m.run(id, f.Source.Location, stages, toSet(f.Processing.RequiredFeatures))
	}

	m.mu.Lock()
	m.batches[sub.BatchID] = jobIDs
	m.mu.Unlock()

	return BulkResponse{
		BatchID: sub.BatchID,
		JobIDs:  jobIDs,
		Message: fmt.Sprintf("queued %d job(s)", len(jobIDs)),
	}, nil
}

// Status returns the current status of jobID, and false if no such
// job was ever submitted.
func (m *Manager) Status(jobID string) (types.JobStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[jobID]
	if !ok {
		return types.JobStatus{}, false
	}
	return rec.status, true
}

// Result returns jobID's results map. Results are readable once the
// job reaches a terminal state and remain so for the life of the
// process.
func (m *Manager) Result(jobID string) (ResultResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[jobID]
	if !ok {
		return ResultResponse{}, false
	}
	return ResultResponse{JobID: jobID, Status: rec.status.Status, Results: rec.results, Error: rec.status.Error}, true
}

// BatchJobIDs returns the job IDs created for batchID.
func (m *Manager) BatchJobIDs(batchID string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.batches[batchID]
	return ids, ok
}

// Cancel requests cancellation of a running job. It returns false if
// the job is unknown or has already reached a terminal state.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	rec, ok := m.jobs[jobID]
	var cancel context.CancelFunc
	if ok {
		cancel = rec.cancel
	}
	m.mu.Unlock()
	if !ok || cancel == nil {
		return false
	}
	cancel()
	return true
}

func (m *Manager) register(id string, totalTasks int) {
	m.mu.Lock()
	m.jobs[id] = &jobRecord{status: types.JobStatus{ID: id, Status: types.JobQueued, TotalTasks: totalTasks}}
	m.mu.Unlock()
	xmetrics.RecordJobSubmitted()
}

func (m *Manager) run(id, source string, stages ops.Stages, required map[string]bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.mu.Lock()
	if rec, ok := m.jobs[id]; ok {
		rec.cancel = cancel
		rec.status.Status = types.JobRunning
	}
	m.mu.Unlock()

	df, err := m.acquirer.Acquire(ctx, source)
	if err != nil {
		m.fail(id, err)
		return
	}
	defer df.Release()

	result, err := m.executor.Execute(ctx, stages, types.NewFilePathData(df.Path), pipeline.Options{RequiredOps: required})
	if err != nil {
		m.fail(id, err)
		return
	}

	results := make(map[string]types.PluginData, len(result.ByOp))
	failedTasks := 0
	for name, outcome := range result.ByOp {
		if outcome.Err != nil {
			failedTasks++
			continue
		}
		results[name] = outcome.Output
	}
	m.complete(id, len(result.ByOp), failedTasks, results)
}

func (m *Manager) fail(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[id]
	if !ok {
		return
	}
	rec.status.Status = types.JobFailed
	rec.status.Error = err.Error()
	rec.cancel = nil
	m.logger.Warn("jobmgr.job_failed", "job_id", id, "err", err)
	xmetrics.RecordJobFailed()
}

func (m *Manager) complete(id string, total, failedTasks int, results map[string]types.PluginData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[id]
	if !ok {
		return
	}
	rec.status.Status = types.JobCompleted
	rec.status.TotalTasks = total
	rec.status.CompletedTasks = total - failedTasks
	rec.status.FailedTasks = failedTasks
	rec.results = results
	rec.cancel = nil
	xmetrics.RecordJobCompleted()
}

func countOps(stages ops.Stages) int {
	total := 0
	for _, group := range stages {
		total += len(group)
	}
	return total
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}
