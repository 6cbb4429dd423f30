package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/models"
)

// DefaultDigestCron sends the digest every morning.
const DefaultDigestCron = "0 9 * * *"

// RecordSource returns campaign records created since a point in time.
type RecordSource interface {
	Since(ctx context.Context, t time.Time) ([]models.CampaignRecord, error)
}

// DigestOpts holds parameters for creating a Digest.
type DigestOpts struct {
	Records  RecordSource
	Notifier Notifier
	Cron     string    // defaults to DefaultDigestCron
	Since    time.Time // start of the first period; defaults to 24h ago
	Logger   zerolog.Logger
}

// Digest periodically summarizes recorded campaigns.
type Digest struct {
	records  RecordSource
	notifier Notifier
	cron     string
	last     time.Time
	log      zerolog.Logger
	now      func() time.Time
}

// NewDigest creates a Digest.
func NewDigest(opts DigestOpts) (*Digest, error) {
	if opts.Records == nil {
		return nil, fmt.Errorf("notify: digest: record source is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("notify: digest: notifier is required")
	}
	expr := opts.Cron
	if expr == "" {
		expr = DefaultDigestCron
	}
	if err := ValidateCron(expr); err != nil {
		return nil, fmt.Errorf("notify: digest: cron %q: %w", expr, err)
	}
	since := opts.Since
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}
	return &Digest{
		records:  opts.Records,
		notifier: opts.Notifier,
		cron:     expr,
		last:     since,
		log:      opts.Logger.With().Str("component", "digest").Logger(),
		now:      time.Now,
	}, nil
}

// Run sends a digest every time the schedule fires until ctx is done.
func (d *Digest) Run(ctx context.Context) error {
	for {
		wait := nextCronDuration(d.cron, d.now())
		if wait <= 0 {
			wait = time.Minute
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := d.Send(ctx); err != nil {
			d.log.Warn().Err(err).Msg("digest failed")
		}
	}
}

// Send summarizes records since the previous digest. Empty periods are
// skipped and reported as false.
func (d *Digest) Send(ctx context.Context) (bool, error) {
	until := d.now()
	recs, err := d.records.Since(ctx, d.last)
	if err != nil {
		return false, fmt.Errorf("notify: digest: %w", err)
	}
	var inPeriod []models.CampaignRecord
	for _, r := range recs {
		if r.CreatedAt.Before(until) {
			inPeriod = append(inPeriod, r)
		}
	}
	since := d.last
	d.last = until
	if len(inPeriod) == 0 {
		d.log.Debug().Msg("no campaigns in period; digest skipped")
		return false, nil
	}

	evt := FormatDigest(inPeriod, since, until)
	if err := d.notifier.Notify(ctx, Message{Text: evt.Title, Events: []FormattedEvent{evt}}); err != nil {
		return false, fmt.Errorf("notify: digest: %w", err)
	}
	d.log.Info().Int("campaigns", len(inPeriod)).Msg("digest sent")
	return true, nil
}
