package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/koran-teknologi/koran/internal/ingest"
	"github.com/koran-teknologi/koran/internal/metrics"
	"github.com/koran-teknologi/koran/internal/server"
	"github.com/koran-teknologi/koran/pkg/logx"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"http"},
	Short:   "Run the HTTP server",
	Long:    "serve exposes POST /send-posts to trigger a cycle, GET /health and GET /metrics.",
	Args:    cobra.NoArgs,
	RunE:    serveAction,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides http.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides http.port)")
	rootCmd.AddCommand(serveCmd)
}

func serveAction(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if serveHost != "" {
		a.cfg.HTTP.Host = serveHost
	}
	if servePort != 0 {
		a.cfg.HTTP.Port = servePort
	}

	m := metrics.New(Version)
	runner, err := a.runner(false, m)
	if err != nil {
		return err
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}

	srv, err := server.New(runner, server.Config{
		Version: Version,
		Logger:  a.log,
		Metrics: m,
		Now:     now,
		AfterRun: func(ctx context.Context, started, since time.Time, res ingest.RunResult, err error) {
			recordCycle(ctx, db, a.log, "serve", started, since, res, err)
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.ListenAndServe(ctx, a.cfg.HTTP.Addr(), func() { notifySystemd(a.log, daemon.SdNotifyReady) })
	notifySystemd(a.log, daemon.SdNotifyStopping)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// notifySystemd reports state to systemd when running as a Type=notify unit.
// Outside systemd it does nothing.
func notifySystemd(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

