package ingest

import (
	"context"
	"fmt"

	"github.com/koran-teknologi/koran/internal/source"
)

// Sink delivers an ordered batch of posts to its destination. It is called
// at most once per cycle and must report transport failures.
type Sink interface {
	Name() string
	SendPosts(ctx context.Context, posts []source.Post) error
}

// Delivery describes what happened to a batch.
type Delivery int

const (
	DeliverySkipped Delivery = iota // nothing new, sink not called
	DeliverySent
	DeliveryFailed
	DeliveryDryRun
)

func (d Delivery) String() string {
	switch d {
	case DeliverySkipped:
		return "skipped"
	case DeliverySent:
		return "sent"
	case DeliveryFailed:
		return "failed"
	case DeliveryDryRun:
		return "dry-run"
	default:
		return fmt.Sprintf("delivery(%d)", int(d))
	}
}

// DeliveryError is a sink failure. Posts is the batch that was being sent;
// it remains valid.
type DeliveryError struct {
	Sink  string
	Posts []source.Post
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %d posts to %s: %v", len(e.Posts), e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Deliver hands posts to sink in a single call. An empty batch is a no-op
// and a cancelled ctx prevents the call. Failures are never retried here.
func Deliver(ctx context.Context, sink Sink, posts []source.Post) (Delivery, error) {
	if len(posts) == 0 {
		return DeliverySkipped, nil
	}
	if err := ctx.Err(); err != nil {
		return DeliveryFailed, err
	}
	if err := sink.SendPosts(ctx, posts); err != nil {
		return DeliveryFailed, &DeliveryError{Sink: sink.Name(), Posts: posts, Err: err}
	}
	return DeliverySent, nil
}
