package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/docintel/backend/internal/models"
)

type recordingObserver struct {
	starts    []string
	successes []string
	failures  []string
}

func (o *recordingObserver) OnStageStart(ctx context.Context, stageName string, in Payload) {
	o.starts = append(o.starts, stageName)
}
func (o *recordingObserver) OnStageSuccess(ctx context.Context, stageName string, out Payload) {
	o.successes = append(o.successes, stageName)
}
func (o *recordingObserver) OnStageFailure(ctx context.Context, stageName string, failure *models.ClassifiedError) {
	o.failures = append(o.failures, stageName)
}

func TestChain_Execute_RunsStagesInOrder(t *testing.T) {
	var order []string
	chain := Chain{Stages: []Stage{
		{Name: "parse", Run: func(ctx context.Context, in Payload) (Payload, *models.ClassifiedError) {
			order = append(order, "parse")
			in.Data["parsed"] = true
			return in, nil
		}},
		{Name: "chunk", Run: func(ctx context.Context, in Payload) (Payload, *models.ClassifiedError) {
			order = append(order, "chunk")
			return in, nil
		}},
	}}

	obs := &recordingObserver{}
	out, failure := chain.Execute(context.Background(), Payload{Data: map[string]interface{}{}}, obs)
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if len(order) != 2 || order[0] != "parse" || order[1] != "chunk" {
		t.Errorf("stages did not run in order: %v", order)
	}
	if out.Data["parsed"] != true {
		t.Errorf("expected payload mutation to carry forward between stages")
	}
	if len(obs.successes) != 2 {
		t.Errorf("expected 2 success notifications, got %d", len(obs.successes))
	}
}

func TestChain_Execute_StopsAtFirstFailure(t *testing.T) {
	var ran []string
	chain := Chain{Stages: []Stage{
		{Name: "parse", Run: func(ctx context.Context, in Payload) (Payload, *models.ClassifiedError) {
			ran = append(ran, "parse")
			return in, &models.ClassifiedError{Stage: "parse", Kind: models.ErrorKindParsing, Message: "bad file"}
		}},
		{Name: "chunk", Run: func(ctx context.Context, in Payload) (Payload, *models.ClassifiedError) {
			ran = append(ran, "chunk")
			return in, nil
		}},
	}}

	obs := &recordingObserver{}
	_, failure := chain.Execute(context.Background(), Payload{Data: map[string]interface{}{}}, obs)
	if failure == nil {
		t.Fatalf("expected a failure from the first stage")
	}
	if len(ran) != 1 {
		t.Errorf("expected chain to stop after first stage failed, ran: %v", ran)
	}
	if len(obs.failures) != 1 || obs.failures[0] != "parse" {
		t.Errorf("expected a single failure notification for parse, got %v", obs.failures)
	}
}

func TestChain_Execute_CancelledContextStopsBeforeNextStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	chain := Chain{Stages: []Stage{
		{Name: "parse", Run: func(ctx context.Context, in Payload) (Payload, *models.ClassifiedError) {
			ran = true
			return in, nil
		}},
	}}

	_, failure := chain.Execute(ctx, Payload{Data: map[string]interface{}{}}, nil)
	if failure == nil {
		t.Fatalf("expected a timeout failure for a cancelled context")
	}
	if failure.Kind != models.ErrorKindTimeout {
		t.Errorf("failure.Kind = %v, want %v", failure.Kind, models.ErrorKindTimeout)
	}
	if ran {
		t.Errorf("stage should not have run once context was already cancelled")
	}
}

func TestChain_Execute_NilObserverIsSafe(t *testing.T) {
	chain := Chain{Stages: []Stage{
		{Name: "noop", Run: func(ctx context.Context, in Payload) (Payload, *models.ClassifiedError) {
			return in, nil
		}},
	}}
	_, failure := chain.Execute(context.Background(), Payload{}, nil)
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
}

func TestChain_Execute_EmptyChainReturnsInputUnchanged(t *testing.T) {
	chain := Chain{}
	in := Payload{JobID: "job-1", Data: map[string]interface{}{"x": 1}}
	out, failure := chain.Execute(context.Background(), in, nil)
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if out.JobID != "job-1" {
		t.Errorf("expected input payload to pass through unchanged, got %+v", out)
	}
}

func TestChain_Execute_DeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	chain := Chain{Stages: []Stage{
		{Name: "slow", Run: func(ctx context.Context, in Payload) (Payload, *models.ClassifiedError) {
			time.Sleep(30 * time.Millisecond)
			return in, nil
		}},
		{Name: "after", Run: func(ctx context.Context, in Payload) (Payload, *models.ClassifiedError) {
			return in, nil
		}},
	}}

	_, failure := chain.Execute(ctx, Payload{Data: map[string]interface{}{}}, nil)
	if failure == nil {
		t.Fatalf("expected the second stage to observe the expired deadline")
	}
}
