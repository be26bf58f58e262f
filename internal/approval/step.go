package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step names as they appear in the outcome.
const (
	StepAuthorize         = "authorize_admin"
	StepLoadBusiness      = "load_business"
	StepLoadApplication   = "load_application"
	StepActivate          = "approve_and_activate"
	StepUpdateApplication = "update_application"
	StepResolveOwner      = "resolve_owner"
	StepIssueToken        = "issue_token"
	StepApprovalRecord    = "write_approval_record"
	StepSetupProgress     = "update_setup_progress"
	StepSendEmail         = "send_email"
)

type StepResult struct {
	Name       string     `json:"step"`
	Status     StepStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	DurationMS int64      `json:"durationMs"`

	Err error `json:"-"`
}

func (r StepResult) OK() bool { return r.Status == StepSucceeded }

// recorder collects step results for one approval run.
type recorder struct {
	timeout time.Duration
	tracer  trace.Tracer
	results []StepResult
}

func (r *recorder) skip(name, reason string) {
	r.results = append(r.results, StepResult{Name: name, Status: StepSkipped, Error: reason})
}

// fatal runs a step whose error the caller must handle.
func fatal[T any](ctx context.Context, r *recorder, name string, fn func(context.Context) (T, error)) (T, error) {
	out, res := run(ctx, r, name, fn)
	return out, res.Err
}

// bestEffort runs a step whose failure must not affect the approval. The
// failure is only visible through the returned StepResult.
func bestEffort[T any](ctx context.Context, r *recorder, name string, fn func(context.Context) (T, error)) (T, StepResult) {
	out, res := run(ctx, r, name, fn)
	if res.Err != nil {
		slog.WarnContext(ctx, "approval step degraded", "step", name, "err", res.Err)
	}
	return out, res
}

func run[T any](ctx context.Context, r *recorder, name string, fn func(context.Context) (T, error)) (T, StepResult) {
	ctx, span := r.tracer.Start(ctx, "approval.step."+name)
	defer span.End()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := protect(ctx, fn)
	res := StepResult{Name: name, Status: StepSucceeded, DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = StepFailed
		res.Error = err.Error()
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("approval.step.status", string(res.Status)))
	r.results = append(r.results, res)
	return out, res
}

func protect[T any](ctx context.Context, fn func(context.Context) (T, error)) (out T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}
