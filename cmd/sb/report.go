package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/report"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Campaign lists and delivery reports",
	}

	cmd.AddCommand(newReportListCmd())
	cmd.AddCommand(newReportShowCmd())
	cmd.AddCommand(newReportWatchCmd())
	cmd.AddCommand(newReportDownloadCmd())
	return cmd
}

// channelArg parses a channel positional argument.
func channelArg(s string) (campaign.Channel, error) {
	return campaign.ParseChannel(s)
}

func newReportListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list <channel>",
		Short: "List campaigns for a channel (sms, email, chatline)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := channelArg(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				ctx, cancel := signalContext(cmd)
				defer cancel()
				list, err := a.reports.ListCampaigns(ctx, ch)
				if err != nil {
					return err
				}
				printCampaigns(out, list)
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func printCampaigns(out io.Writer, list []campaign.Campaign) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No campaigns.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tRECIPIENTS\tSTATUS")
	for _, c := range list {
		status := c.Status
		if status == "" && c.Provisional {
			status = "provisional"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Name, formatTime(c.CreatedAt), c.RecipientCount, status)
	}
	w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func newReportShowCmd() *cobra.Command {
	var (
		configPath string
		logs       bool
	)

	cmd := &cobra.Command{
		Use:   "show <channel> <id>",
		Short: "Show a campaign's delivery summary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := channelArg(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				ctx, cancel := signalContext(cmd)
				defer cancel()
				r, err := a.reports.GetReport(ctx, ch, args[1])
				if err != nil {
					return err
				}
				printReport(out, r, logs)
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&logs, "logs", false, "list every recipient's delivery status")
	return cmd
}

func printReport(out io.Writer, r *report.Report, logs bool) {
	fmt.Fprintf(out, "Campaign %s (%s)\n", r.CampaignID, channelLabel(r.Channel))
	fmt.Fprintf(out, "Sent:         %d\n", r.Summary.Sent)
	fmt.Fprintf(out, "Failed:       %d\n", r.Summary.Failed)
	fmt.Fprintf(out, "Success rate: %d%%\n", r.Summary.SuccessRate)
	if r.DownloadRef != "" {
		fmt.Fprintf(out, "Full report:  sb report download %s %s\n", r.Channel, r.CampaignID)
	}
	if !logs || len(r.Logs) == 0 {
		return
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECIPIENT\tSTATUS\tTIME\tERROR")
	for _, l := range r.Logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Recipient, l.Status, formatTime(l.CreatedAt), l.Error)
	}
	w.Flush()
}

func newReportDownloadCmd() *cobra.Command {
	var (
		configPath string
		dir        string
	)

	cmd := &cobra.Command{
		Use:   "download <channel> <id>",
		Short: "Download a chat-line campaign's full report as CSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := channelArg(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				ctx, cancel := signalContext(cmd)
				defer cancel()
				data, err := a.reports.Download(ctx, ch, args[1])
				if err != nil {
					return err
				}
				path := filepath.Join(dir, report.DownloadRef(args[1]))
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(out, "Wrote %s (%d bytes)\n", path, len(data))
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to write the report into")
	return cmd
}

func newReportWatchCmd() *cobra.Command {
	var (
		configPath string
		channels   []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll campaign lists and print changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			var chs []campaign.Channel
			for _, s := range channels {
				ch, err := channelArg(s)
				if err != nil {
					return err
				}
				chs = append(chs, ch)
			}
			return withApp(cmd, configPath, func(a *app, out io.Writer) error {
				ctx, cancel := signalContext(cmd)
				defer cancel()
				return runReportWatch(ctx.Done(), a, out, chs)
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "channels to watch (default: all)")
	return cmd
}

func runReportWatch(done <-chan struct{}, a *app, out io.Writer, chs []campaign.Channel) error {
	poller := report.NewPoller(report.PollerOpts{
		Lister:   a.reports,
		Channels: chs,
		Interval: a.cfg.Poll.Interval,
		Logger:   a.log,
	})
	defer poller.Close()

	updates, unsubscribe := poller.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-done:
			return nil
		case u := <-updates:
			printUpdate(out, u)
		}
	}
}

func printUpdate(out io.Writer, u report.Update) {
	stamp := u.At.Local().Format("15:04:05")
	if u.Err != nil {
		fmt.Fprintf(out, "%s %s: %v\n", stamp, channelLabel(u.Channel), u.Err)
		return
	}
	fmt.Fprintf(out, "%s %s: %d campaigns\n", stamp, channelLabel(u.Channel), len(u.Campaigns))
	for _, c := range u.Finished {
		fmt.Fprintf(out, "%s %s: campaign %s (%s) finished\n", stamp, channelLabel(u.Channel), c.ID, c.Name)
	}
}
