package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/dashboard"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/report"
)

func newDashboardCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Start the operator API server",
		Long: `Serves the operator HTTP API with live campaign updates. While running it
keeps chat-line state in sync with the gateway, posts a notification when a
campaign finishes and sends the scheduled digest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				ctx, cancel := signalContext(cmd)
				defer cancel()
				if port == 0 {
					port = a.cfg.Dashboard.Port
				}
				return runDashboard(ctx, a, out, port)
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

func runDashboard(ctx context.Context, a *app, out io.Writer, port int) error {
	if err := a.sessions.Init(ctx); err != nil {
		return err
	}
	go a.sessions.RunSync(ctx, a.cfg.ChatLine.SyncInterval)

	poller := report.NewPoller(report.PollerOpts{
		Lister:   a.reports,
		Interval: a.cfg.Poll.Interval,
		Logger:   a.log,
	})
	defer poller.Close()

	notifier, err := newNotifier(a.cfg.Notify, a.log)
	if err != nil {
		return err
	}
	go notify.WatchFinished(ctx, poller, a.reports, notifier, a.log)

	digest, err := notify.NewDigest(notify.DigestOpts{
		Records:  a.campaigns,
		Notifier: notifier,
		Cron:     a.cfg.Notify.DigestCron,
		Logger:   a.log,
	})
	if err != nil {
		return err
	}
	go digest.Run(ctx)

	deps := dashboard.Deps{
		Sessions:   a.sessions,
		Dispatcher: a.dispatcher,
		Reports:    a.reports,
		Feed:       poller,
		Logger:     a.log,
	}
	if a.templates != nil {
		deps.Templates = a.templates
	}
	return dashboard.Start(ctx, dashboard.StartOpts{Deps: deps, Port: port, Out: out})
}
