package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/koran-teknologi/koran/pkg/logx"
)

// RunRequest parameterizes one run. A zero Since uses DefaultLookback.
type RunRequest struct {
	Since  time.Time
	DryRun bool
}

// RunResult always carries the computed posts, even when delivery failed.
type RunResult struct {
	Result
	Delivery Delivery
}

// Newest returns the publication time of the newest post, or the zero time.
func (r RunResult) Newest() time.Time {
	if len(r.Posts) == 0 {
		return time.Time{}
	}
	return r.Posts[0].PublishedAt()
}

// Runner ties a coordinator to a sink. The sink may be nil for runners that
// are only ever used in dry-run mode.
type Runner struct {
	coord *Coordinator
	sink  Sink
	log   logx.Logger
	rec   Recorder
}

func NewRunner(coord *Coordinator, sink Sink, log logx.Logger, rec Recorder) *Runner {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Runner{coord: coord, sink: sink, log: log.With(logx.String("comp", "ingest")), rec: rec}
}

// ErrNoSink is returned by a non-dry run on a runner without a sink.
var ErrNoSink = errors.New("no sink configured")

// Run executes one cycle and, unless DryRun is set, delivers the result.
// A delivery failure is returned as *DeliveryError alongside the result.
func (r *Runner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	res, err := r.coord.Cycle(ctx, req.Since)
	if err != nil {
		return RunResult{}, err
	}
	out := RunResult{Result: res}

	if req.DryRun {
		out.Delivery = DeliveryDryRun
		if len(res.Posts) == 0 {
			out.Delivery = DeliverySkipped
		}
		r.log.Info("dry run, not delivering", logx.Int("posts", len(res.Posts)))
		return out, nil
	}
	if r.sink == nil {
		out.Delivery = DeliveryFailed
		return out, ErrNoSink
	}

	out.Delivery, err = Deliver(ctx, r.sink, res.Posts)
	switch {
	case out.Delivery == DeliverySkipped:
		r.log.Info("no new posts")
	case err != nil:
		r.rec.ObserveDelivery(r.sink.Name(), len(res.Posts), err)
		r.log.Error("delivery failed", logx.String("sink", r.sink.Name()), logx.Int("posts", len(res.Posts)), logx.Err(err))
	default:
		r.rec.ObserveDelivery(r.sink.Name(), len(res.Posts), nil)
		r.log.Info("posts delivered", logx.String("sink", r.sink.Name()), logx.Int("posts", len(res.Posts)))
	}
	return out, err
}

// Sources lists the runner's source names in registration order.
func (r *Runner) Sources() []string { return r.coord.SourceNames() }
