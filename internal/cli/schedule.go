package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/koran-teknologi/koran/internal/config"
	"github.com/koran-teknologi/koran/internal/ingest"
	"github.com/koran-teknologi/koran/internal/store"
	"github.com/koran-teknologi/koran/pkg/logx"
)

// scheduleWatermarkKey is the store key of the scheduler's watermark.
const scheduleWatermarkKey = "schedule"

var (
	scheduleSpec   string
	scheduleRunNow bool
	scheduleOnce   bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run cycles on a cron schedule with a persisted watermark",
	Long: "schedule runs a cycle at every tick of schedule.spec. The watermark is kept in the store and only " +
		"advanced to the newest delivered post after a successful delivery.",
	Args: cobra.NoArgs,
	RunE: scheduleAction,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "spec", "", "cron spec (overrides schedule.spec)")
	scheduleCmd.Flags().BoolVar(&scheduleRunNow, "run-now", false, "run a cycle immediately on start")
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "run a single scheduled cycle and exit")
	rootCmd.AddCommand(scheduleCmd)
}

func scheduleAction(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	spec := a.cfg.Schedule.Spec
	if scheduleSpec != "" {
		spec = scheduleSpec
	}
	if _, err := config.CronParser.Parse(spec); err != nil {
		return fmt.Errorf("--spec: %w", err)
	}

	runner, err := a.runner(false, nil)
	if err != nil {
		return err
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}
	job := &scheduledCycle{
		runner:     runner,
		db:         db,
		log:        a.log.With(logx.String("comp", "schedule")),
		lookback:   a.cfg.Schedule.Lookback.Duration,
		retainDays: a.cfg.Storage.Retention(),
	}

	if scheduleOnce {
		return job.run(cmd.Context())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cron.New(
		cron.WithParser(config.CronParser),
		cron.WithLocation(a.cfg.Schedule.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: job.log})),
	)
	if _, err := c.AddFunc(spec, func() { _ = job.run(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	if scheduleRunNow {
		_ = job.run(ctx)
	}

	c.Start()
	job.log.Info("scheduler started", logx.String("spec", spec), logx.String("timezone", a.cfg.Schedule.Timezone))
	notifySystemd(a.log, daemon.SdNotifyReady)

	<-ctx.Done()
	notifySystemd(a.log, daemon.SdNotifyStopping)
	job.log.Info("scheduler stopping")
	<-c.Stop().Done()
	return nil
}

type cycleRunner interface {
	Run(ctx context.Context, req ingest.RunRequest) (ingest.RunResult, error)
}

// scheduledCycle is one cron tick: read the watermark, run, and advance the
// watermark only after a successful delivery.
type scheduledCycle struct {
	runner     cycleRunner
	db         *store.Store
	log        logx.Logger
	lookback   time.Duration
	retainDays int
}

func (j *scheduledCycle) run(ctx context.Context) error {
	started := now()
	since, ok, err := j.db.Watermark(ctx, scheduleWatermarkKey)
	if err != nil {
		j.log.Error("read watermark", logx.Err(err))
		return err
	}
	if !ok {
		since = started.Add(-j.lookback).UTC()
	}

	res, runErr := j.runner.Run(ctx, ingest.RunRequest{Since: since})
	recordCycle(context.WithoutCancel(ctx), j.db, j.log, "schedule", started, since, res, runErr)
	if runErr != nil {
		j.log.Error("scheduled cycle failed", logx.Time("since", since), logx.Err(runErr))
		return runErr
	}

	switch res.Delivery {
	case ingest.DeliverySent:
		newest := res.Newest()
		if err := j.db.SetWatermark(ctx, scheduleWatermarkKey, newest); err != nil {
			j.log.Error("advance watermark", logx.Err(err))
			return err
		}
		j.log.Info("watermark advanced", logx.Time("since", newest), logx.Int("posts", len(res.Posts)))
	case ingest.DeliverySkipped:
		if !ok {
			// First run: keep the initial window.
			if err := j.db.SetWatermark(ctx, scheduleWatermarkKey, since); err != nil {
				j.log.Error("save watermark", logx.Err(err))
				return err
			}
		}
		j.log.Info("no new posts", logx.Time("since", since))
	}

	if n, err := j.db.PruneCycles(ctx, j.retainDays); err != nil {
		j.log.Warn("prune cycle history", logx.Err(err))
	} else if n > 0 {
		j.log.Debug("cycle history pruned", logx.Int("cycles", int(n)))
	}
	return nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	fields := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logx.Any(key, kv[i+1]))
	}
	return fields
}
