// Package ingest runs one ingestion cycle across all registered sources and
// hands the merged, filtered, newest-first result to a sink.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koran-teknologi/koran/internal/source"
	"github.com/koran-teknologi/koran/pkg/logx"
)

const (
	// DefaultLookback is the watermark distance used when the caller passes
	// the zero time.
	DefaultLookback = 24 * time.Hour

	DefaultSourceTimeout = 30 * time.Second
	DefaultConcurrency   = 4
)

// ErrNoSources is returned when a coordinator is built without any source.
var ErrNoSources = errors.New("no sources registered")

// SourceReport is the outcome of one source within a cycle.
type SourceReport struct {
	Name     string
	Fetched  int // posts returned by the source
	New      int // posts newer than the watermark
	Err      error
	Duration time.Duration
}

// Result is the outcome of one cycle.
type Result struct {
	Since   time.Time
	Posts   []source.Post
	Sources []SourceReport
}

// Failed returns the reports of sources that could not be read.
func (r Result) Failed() []SourceReport {
	var out []SourceReport
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Recorder observes cycle outcomes. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveSource(report SourceReport)
	ObserveDelivery(sink string, posts int, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSource(SourceReport)        {}
func (nopRecorder) ObserveDelivery(string, int, error) {}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSequential invokes sources one after another instead of concurrently.
func WithSequential() Option {
	return func(c *Coordinator) { c.concurrency = 1 }
}

// WithConcurrency bounds how many sources are fetched at once.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithSourceTimeout bounds each source's fetch.
func WithSourceTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(c *Coordinator) { c.log = log.With(logx.String("comp", "ingest")) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.rec = r
		}
	}
}

// Coordinator fans a cycle out over the registered sources. It holds no
// state between cycles.
type Coordinator struct {
	sources     []source.Source
	concurrency int
	timeout     time.Duration
	log         logx.Logger
	now         func() time.Time
	rec         Recorder
}

func NewCoordinator(reg *source.Registry, opts ...Option) (*Coordinator, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, ErrNoSources
	}
	c := &Coordinator{
		sources:     reg.Sources(),
		concurrency: DefaultConcurrency,
		timeout:     DefaultSourceTimeout,
		now:         time.Now,
		rec:         nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SourceNames lists the coordinator's sources in registration order.
func (c *Coordinator) SourceNames() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}

// FetchNewPosts returns the posts published strictly after since, newest
// first. A zero since means DefaultLookback before now. Source failures are
// logged and never returned; only cancellation of ctx is.
func (c *Coordinator) FetchNewPosts(ctx context.Context, since time.Time) ([]source.Post, error) {
	res, err := c.Cycle(ctx, since)
	if err != nil {
		return nil, err
	}
	return res.Posts, nil
}

// Cycle is FetchNewPosts with per-source reports.
func (c *Coordinator) Cycle(ctx context.Context, since time.Time) (Result, error) {
	if since.IsZero() {
		since = c.now().Add(-DefaultLookback)
	}
	since = since.UTC()

	batches := make([][]source.Post, len(c.sources))
	reports := make([]SourceReport, len(c.sources))

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for i, src := range c.sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			batches[i], reports[i] = c.runSource(ctx, src, since)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		c.log.Warn("cycle cancelled", logx.Err(err))
		return Result{}, err
	}

	var merged []source.Post
	for i, batch := range batches {
		merged = append(merged, batch...)
		c.rec.ObserveSource(reports[i])
	}
	sortNewestFirst(merged)

	c.log.Info("cycle complete",
		logx.Time("since", since),
		logx.Int("sources", len(c.sources)),
		logx.Int("failed", len(Result{Sources: reports}.Failed())),
		logx.Int("posts", len(merged)))

	return Result{Since: since, Posts: merged, Sources: reports}, nil
}

// sortNewestFirst orders posts by publication time, newest first. Equal
// timestamps keep their merge order.
func sortNewestFirst(posts []source.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].PublishedAt().After(posts[j].PublishedAt())
	})
}

// runSource fetches one source and keeps the posts newer than since.
func (c *Coordinator) runSource(ctx context.Context, src source.Source, since time.Time) ([]source.Post, SourceReport) {
	name := src.Name()
	start := time.Now()
	posts, err := c.fetch(ctx, src)
	report := SourceReport{Name: name, Err: err, Duration: time.Since(start), Fetched: len(posts)}
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("source failed",
				logx.String("source", name),
				logx.Duration("took", report.Duration),
				logx.Err(err))
		}
		report.Fetched = 0
		return nil, report
	}

	fresh := make([]source.Post, 0, len(posts))
	for _, p := range posts {
		if p.PublishedAt().After(since) {
			fresh = append(fresh, p)
		}
	}
	report.New = len(fresh)
	c.log.Debug("source fetched",
		logx.String("source", name),
		logx.Int("fetched", report.Fetched),
		logx.Int("new", report.New),
		logx.Duration("took", report.Duration))
	return fresh, report
}

type fetchOutcome struct {
	posts []source.Post
	err   error
}

// fetch runs the source in its own goroutine under the per-source deadline.
// A source that ignores its context is abandoned when the deadline passes.
func (c *Coordinator) fetch(ctx context.Context, src source.Source) ([]source.Post, error) {
	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan fetchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("source panicked",
					logx.String("source", src.Name()),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
				done <- fetchOutcome{err: &source.FetchError{Source: src.Name(), Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		posts, err := src.FetchLatestPosts(fctx)
		done <- fetchOutcome{posts: posts, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			var fe *source.FetchError
			if !errors.As(out.err, &fe) {
				out.err = &source.FetchError{Source: src.Name(), Err: out.err}
			}
			return nil, out.err
		}
		return out.posts, nil
	case <-fctx.Done():
		return nil, &source.FetchError{Source: src.Name(), Err: fmt.Errorf("abandoned: %w", fctx.Err())}
	}
}
