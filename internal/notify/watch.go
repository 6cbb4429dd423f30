package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/report"
)

// Subscriber is a source of poll updates.
type Subscriber interface {
	Subscribe() (<-chan report.Update, func())
}

// ReportGetter builds campaign reports.
type ReportGetter interface {
	GetReport(ctx context.Context, ch campaign.Channel, id string) (*report.Report, error)
}

// WatchFinished notifies once for every campaign the poller reports
// finished. It holds one poller subscription until ctx is done.
func WatchFinished(ctx context.Context, poller Subscriber, reports ReportGetter, n Notifier, log zerolog.Logger) {
	log = log.With().Str("component", "notify.watch").Logger()
	updates, unsubscribe := poller.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			for _, c := range u.Finished {
				summary := report.NewSummary(c.Sent, c.Failed)
				if r, err := reports.GetReport(ctx, c.Channel, c.ID); err == nil {
					summary = r.Summary
				} else {
					log.Warn().Err(err).Str("campaign", c.ID).Msg("report unavailable; using listed counters")
				}
				evt := FormatCampaignFinished(c, summary)
				if err := n.Notify(ctx, Message{Text: evt.Title, Events: []FormattedEvent{evt}}); err != nil {
					log.Warn().Err(err).Str("campaign", c.ID).Msg("notification failed")
				}
			}
		}
	}
}
