// Package pipeline implements the staged task chain Design Notes §9 calls
// for: typed per-stage payloads instead of dynamic maps, and result-typed
// stages instead of exceptions as control flow. It is the Go-idiomatic
// replacement for the Celery chain(...).apply_async() referenced by
// original_source's services/celery_tasks.py.
package pipeline

import (
	"context"

	"github.com/docintel/backend/internal/models"
)

// Payload is what every stage receives and returns: job identity plus a
// durable artifact path recorded for resume, per spec §4.4 step 2 ("save
// any bulky intermediate to an addressable artifact... so downstream stages
// read it, not the in-memory payload").
type Payload struct {
	JobID       string
	TenantID    string
	ArtifactPath string
	Data        map[string]interface{}
}

// Stage is one named unit of work in a chain. It marks job progress before
// running and reports a classified failure rather than panicking or
// returning a bare error, so the worker harness is the single place that
// turns either outcome into a Job update and Progress Bus event (spec §4.4
// step 1/3/4).
type Stage struct {
	Name string
	Run  func(ctx context.Context, in Payload) (Payload, *models.ClassifiedError)
}

// Chain is a sequential list of stages run for one job. A single job
// progresses through its chain strictly in order; many jobs run
// concurrently across a Pool (spec §5).
type Chain struct {
	Stages []Stage
}

// StageObserver is notified before/after each stage runs, the hook the
// worker harness uses to update the Job Ledger and publish Progress Bus
// events without the stage itself knowing about either.
type StageObserver interface {
	OnStageStart(ctx context.Context, stageName string, in Payload)
	OnStageSuccess(ctx context.Context, stageName string, out Payload)
	OnStageFailure(ctx context.Context, stageName string, failure *models.ClassifiedError)
}

// Execute runs every stage in order, stopping at the first failure. The
// observer is invoked around every stage regardless of outcome.
func (c Chain) Execute(ctx context.Context, in Payload, obs StageObserver) (Payload, *models.ClassifiedError) {
	current := in
	for _, stage := range c.Stages {
		select {
		case <-ctx.Done():
			failure := &models.ClassifiedError{Stage: stage.Name, Message: ctx.Err().Error(), Kind: models.ErrorKindTimeout, IsRetryable: true}
			if obs != nil {
				obs.OnStageFailure(ctx, stage.Name, failure)
			}
			return current, failure
		default:
		}

		if obs != nil {
			obs.OnStageStart(ctx, stage.Name, current)
		}

		out, failure := stage.Run(ctx, current)
		if failure != nil {
			if obs != nil {
				obs.OnStageFailure(ctx, stage.Name, failure)
			}
			return current, failure
		}

		if obs != nil {
			obs.OnStageSuccess(ctx, stage.Name, out)
		}
		current = out
	}
	return current, nil
}
