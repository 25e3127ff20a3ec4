// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package pipeline implements the pipeline executor: it walks the
// stage groups parsed by pkg/ops in order, resolving each op name to
// a plugin via pkg/registry, running every op within one stage group
// concurrently, and joining before the next stage begins.
//
// Concurrency follows the donor's EmbedFunctions worker-pool-that-
// never-hard-fails pattern (pkg/ingestion/embedding.go), upgraded from
// a hand-rolled sync.WaitGroup+channel pair to golang.org/x/sync/errgroup.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"log/slog"

	"github.com/ingestlabs/extractcore/internal/xerrors"
	"github.com/ingestlabs/extractcore/internal/xmetrics"
	"github.com/ingestlabs/extractcore/pkg/registry"
	"github.com/ingestlabs/extractcore/pkg/throttle"
	"github.com/ingestlabs/extractcore/pkg/types"
)

// OpOutcome is one op's result within the assembled job output.
type OpOutcome struct {
	Output   types.PluginData
	Duration time.Duration
	Warnings []string
	Err      error
}

// Result is the executor's final, job-wide assembly: {op_name ->
// outcome}, plus the cumulative duration and merged warnings.
type Result struct {
	ByOp     map[string]OpOutcome
	Duration time.Duration
	Warnings []string
}

// Options configures one Execute call.
type Options struct {
	// FailFast, if true, cancels the remainder of a stage group as
	// soon as one op in it fails, and stops the whole pipeline.
	FailFast bool
	// RequiredOps names the ops whose success is necessary for the
	// job to be considered successful. If none of them produced a
	// value, Execute returns the first failure in program order (stage
	// index, then op index), which may come from an optional op, even
	// when FailFast is false. A nil/empty set means every op is optional.
	RequiredOps map[string]bool
}

// Executor resolves op names via a Registry and runs stage groups.
type Executor struct {
	registry  *registry.Registry
	throttler *throttle.Throttler
	logger    *slog.Logger
}

// New returns an Executor backed by reg. throttler may be nil, in
// which case no inter-op delay is applied. A nil logger falls back to
// slog.Default().
func New(reg *registry.Registry, throttler *throttle.Throttler, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: reg, throttler: throttler, logger: logger}
}

// Execute runs the parsed stage groups in order against the resolved
// local artifact, returning the assembled job result. ctx carries the
// job's cancellation signal; it is checked only at stage boundaries
// and before dispatching each op, never inside a plugin invocation
// (plugins are treated as atomic once started).
func (e *Executor) Execute(ctx context.Context, stages [][]string, artifact types.PluginData, opts Options) (*Result, error) {
	started := time.Now()
	result := &Result{ByOp: make(map[string]OpOutcome)}

	stageInput := artifact
	// orderedErrs preserves program order (stage index, then op index
	// within a parallel stage) for first-failure reporting, independent
	// of which goroutine happened to finish first.
	var orderedErrs []error

	for stageIdx, group := range stages {
		if err := ctx.Err(); err != nil {
			return result, xerrors.NewCancelled(fmt.Errorf("stage %d: %w", stageIdx, err))
		}

		stageStarted := time.Now()
		outcomes := make([]OpOutcome, len(group))
		names := make([]string, len(group))

		groupCtx := ctx
		var cancelGroup context.CancelFunc
		if opts.FailFast {
			groupCtx, cancelGroup = context.WithCancel(ctx)
			defer cancelGroup()
		}

		g, gCtx := errgroup.WithContext(groupCtx)
		for i, opName := range group {
			i, opName := i, opName
			names[i] = opName
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					outcomes[i] = OpOutcome{Err: xerrors.NewCancelled(err).WithOp(opName).WithStage(stageIdx)}
					return err
				}
				if e.throttler != nil {
					limits := e.throttler.GetLimits()
					if limits.MinDelay > 0 {
						xmetrics.RecordThrottleDelay()
						select {
						case <-time.After(limits.MinDelay):
						case <-gCtx.Done():
							outcomes[i] = OpOutcome{Err: xerrors.NewCancelled(gCtx.Err()).WithOp(opName).WithStage(stageIdx)}
							return gCtx.Err()
						}
					}
				}
				outcome := e.invoke(gCtx, stageIdx, opName, stageInput)
				outcomes[i] = outcome
				if outcome.Err != nil && opts.FailFast {
					return outcome.Err
				}
				return nil
			})
		}
		// Wait() surfaces only the first FailFast error for cancellation
		// purposes; every op's own outcome (success or failure) is still
		// recorded in outcomes regardless of this return value.
		_ = g.Wait()

		for i, opName := range names {
			result.ByOp[opName] = outcomes[i]
			result.Warnings = append(result.Warnings, outcomes[i].Warnings...)
			orderedErrs = append(orderedErrs, outcomes[i].Err)
			xmetrics.RecordOp(outcomes[i].Duration.Seconds(), outcomes[i].Err == nil)
		}
		xmetrics.RecordStage(time.Since(stageStarted).Seconds())

		if opts.FailFast {
			if firstErr := firstNonNil(orderedErrs); firstErr != nil {
				result.Duration = time.Since(started)
				return result, firstErr
			}
		}

		stageInput = fanIn(names, outcomes)
	}

	result.Duration = time.Since(started)

	if opts.FailFast {
		if firstErr := firstNonNil(orderedErrs); firstErr != nil {
			return result, firstErr
		}
		return result, nil
	}

	if len(opts.RequiredOps) > 0 {
		anyRequiredSucceeded := false
		for name := range opts.RequiredOps {
			if outcome, ok := result.ByOp[name]; ok && outcome.Err == nil {
				anyRequiredSucceeded = true
				break
			}
		}
		if !anyRequiredSucceeded {
			if firstErr := firstNonNil(orderedErrs); firstErr != nil {
				return result, firstErr
			}
			return result, xerrors.NewInputInvalid(fmt.Errorf("no required op produced a value"))
		}
	}

	return result, nil
}

// invoke resolves opName and runs it, wrapping any error with the op
// name and stage index per the spec's propagation policy (the
// executor never reclassifies a Kind, only annotates it).
func (e *Executor) invoke(ctx context.Context, stageIdx int, opName string, input types.PluginData) OpOutcome {
	started := time.Now()

	plugin, ok := e.registry.ByName(opName)
	if !ok {
		err := xerrors.NewInputInvalid(fmt.Errorf("unresolved op %q", opName)).WithOp(opName).WithStage(stageIdx)
		return OpOutcome{Duration: time.Since(started), Err: err}
	}

	req := types.PluginRequest{Input: input, Operation: types.Operation{Name: opName}}
	resp, err := plugin.Invoke(ctx, req)
	if err != nil {
		var te *xerrors.Error
		if as(err, &te) {
			err = te.WithOp(opName).WithStage(stageIdx)
		} else {
			err = xerrors.New(xerrors.InferenceFailed, err).WithOp(opName).WithStage(stageIdx)
		}
		e.logger.Warn("pipeline.op.failed", "op_name", opName, "stage_index", stageIdx, "err", err)
		return OpOutcome{Duration: time.Since(started), Err: err}
	}

	return OpOutcome{Output: resp.Output, Duration: resp.Duration, Warnings: resp.Warnings}
}

// fanIn builds the next stage's input per spec.md §4.3: a single-op
// stage passes its output through unchanged; a multi-op (parallel)
// stage's output becomes the JSON of the operation-name-keyed map.
func fanIn(names []string, outcomes []OpOutcome) types.PluginData {
	if len(names) == 1 {
		return outcomes[0].Output
	}
	keyed := make(map[string]types.PluginData, len(names))
	for i, name := range names {
		keyed[name] = outcomes[i].Output
	}
	return types.NewJSONData(keyed)
}

func firstNonNil(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// as is a tiny local errors.As to avoid importing the stdlib package
// under a name that collides with this file's "err" variables.
func as(err error, target **xerrors.Error) bool {
	for err != nil {
		if te, ok := err.(*xerrors.Error); ok {
			*target = te
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
