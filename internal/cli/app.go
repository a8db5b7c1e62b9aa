package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/koran-teknologi/koran/internal/config"
	"github.com/koran-teknologi/koran/internal/digest"
	"github.com/koran-teknologi/koran/internal/ingest"
	"github.com/koran-teknologi/koran/internal/notify"
	"github.com/koran-teknologi/koran/internal/source"
	"github.com/koran-teknologi/koran/internal/store"
	"github.com/koran-teknologi/koran/pkg/logx"
)

// Test seams.
var (
	buildSources = defaultBuildSources
	newSink      = defaultNewSink
	now          = time.Now
)

// app holds what every command builds from the config.
type app struct {
	cfg     *config.Config
	log     logx.Logger
	closers []io.Closer
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		if !logx.ValidLevel(logLevel) {
			return nil, fmt.Errorf("--log-level: unknown level %q", logLevel)
		}
		cfg.Log.Level = logLevel
	}
	log, closer, err := logx.New(logx.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &app{cfg: cfg, log: log, closers: []io.Closer{closer}}, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) sourceOptions() source.Options {
	s := a.cfg.Sources
	return source.Options{
		UserAgent: s.UserAgent,
		Retry: source.RetryOptions{
			Attempts:  s.Retry.Attempts,
			BaseDelay: s.Retry.BaseDelay.Duration,
			MaxDelay:  s.Retry.MaxDelay.Duration,
		},
		Logger: a.log,
	}
}

func defaultBuildSources(a *app) ([]source.Source, error) {
	opts := a.sourceOptions()
	if a.cfg.Sources.Renderer.On() {
		r := source.NewRodRenderer(a.cfg.Sources.Renderer.Bin, a.cfg.Sources.Renderer.Timeout.Duration, a.log)
		a.closers = append(a.closers, r)
		opts.Renderer = r
	}

	srcs, err := source.Select(source.Builtin(opts), a.cfg.Sources.Enabled)
	if err != nil {
		return nil, fmt.Errorf("sources.enabled: %w", err)
	}
	for _, feedURL := range a.cfg.Sources.Feeds {
		f, err := source.NewFeed(feedURL, opts)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, f)
	}
	return srcs, nil
}

func defaultNewSink(a *app) (ingest.Sink, error) {
	if err := a.cfg.Telegram.Validate(); err != nil {
		return nil, err
	}
	return notify.NewTelegram(notify.TelegramConfig{
		Token:          a.cfg.Telegram.BotToken,
		ChannelID:      a.cfg.Telegram.ChannelID,
		RatePerSec:     a.cfg.Telegram.RatePerSec,
		DisablePreview: a.cfg.Telegram.DisablePreview,
	}, a.log)
}

func (a *app) coordinator(rec ingest.Recorder) (*ingest.Coordinator, error) {
	srcs, err := buildSources(a)
	if err != nil {
		return nil, err
	}
	reg, err := source.NewRegistry(srcs...)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	opts := []ingest.Option{
		ingest.WithLogger(a.log),
		ingest.WithSourceTimeout(a.cfg.Sources.Timeout.Duration),
		ingest.WithConcurrency(a.cfg.Sources.Concurrency),
		ingest.WithClock(now),
		ingest.WithRecorder(rec),
	}
	if a.cfg.Sources.Sequential {
		opts = append(opts, ingest.WithSequential())
	}
	return ingest.NewCoordinator(reg, opts...)
}

// runner builds the pipeline. With dryRun set no sink is created, so
// Telegram credentials are not required.
func (a *app) runner(dryRun bool, rec ingest.Recorder) (*ingest.Runner, error) {
	var sink ingest.Sink
	if !dryRun {
		var err error
		if sink, err = newSink(a); err != nil {
			return nil, err
		}
	}
	coord, err := a.coordinator(rec)
	if err != nil {
		return nil, err
	}
	return ingest.NewRunner(coord, sink, a.log, rec), nil
}

func (a *app) openStore() (*store.Store, error) {
	db, err := store.Open(a.cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, db)
	return db, nil
}

// recordCycle stores the outcome of a run in the cycle history. Failures
// are logged; history is never allowed to fail a run.
func recordCycle(ctx context.Context, db *store.Store, log logx.Logger, trigger string, started, since time.Time, res ingest.RunResult, runErr error) {
	if db == nil {
		return
	}
	in := store.CycleInput{
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: now(),
		Since:      since,
		Posts:      len(res.Posts),
		Delivery:   res.Delivery.String(),
	}
	if runErr != nil {
		in.Error = runErr.Error()
		if res.Since.IsZero() {
			in.Delivery = ingest.DeliveryFailed.String()
		}
	}
	for _, r := range res.Sources {
		cs := store.CycleSource{Source: r.Name, Fetched: r.Fetched, New: r.New, Duration: r.Duration}
		if r.Err != nil {
			cs.Error = r.Err.Error()
		}
		in.Sources = append(in.Sources, cs)
	}
	if _, err := db.RecordCycle(ctx, in); err != nil {
		log.Warn("record cycle failed", logx.Err(err))
	}
}

func digestInput(res ingest.RunResult) digest.DigestInput {
	in := digest.DigestInput{
		Posts:   res.Posts,
		Sources: len(res.Sources),
		Since:   res.Since,
	}
	for _, r := range res.Failed() {
		in.Failed = append(in.Failed, digest.FailedSource{Name: r.Name, Err: r.Err.Error()})
	}
	return in
}
