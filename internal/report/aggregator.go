package report

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/gateway"
)

// ProgressRecorder mirrors remote counters into the reporting store.
type ProgressRecorder interface {
	UpdateProgress(ctx context.Context, channel, campaignID string, sent, failed int, status string) error
}

// AggregatorOpts holds parameters for creating an Aggregator.
type AggregatorOpts struct {
	Backend  *gateway.Client // text-message and email campaign backend
	ChatLine *gateway.Client // chat-line gateway
	Progress ProgressRecorder
	Logger   zerolog.Logger
}

// Aggregator lists campaigns and builds reports per channel. It keeps the
// latest list for each channel; concurrent refreshes and local upserts
// resolve last-write-wins per campaign id.
type Aggregator struct {
	sources  map[campaign.Channel]source
	progress ProgressRecorder
	log      zerolog.Logger

	mu    sync.RWMutex
	lists map[campaign.Channel]map[string]campaign.Campaign
}

// NewAggregator creates an Aggregator. A channel whose client is nil is
// unavailable; at least one client is required.
func NewAggregator(opts AggregatorOpts) (*Aggregator, error) {
	if opts.Backend == nil && opts.ChatLine == nil {
		return nil, fmt.Errorf("report: aggregator: a backend or chat-line client is required")
	}
	a := &Aggregator{
		sources:  make(map[campaign.Channel]source),
		progress: opts.Progress,
		log:      opts.Logger.With().Str("component", "report").Logger(),
		lists:    make(map[campaign.Channel]map[string]campaign.Campaign),
	}
	if opts.Backend != nil {
		a.sources[campaign.TextMessage] = &logSource{ch: campaign.TextMessage, client: opts.Backend}
		a.sources[campaign.Email] = &logSource{ch: campaign.Email, client: opts.Backend}
	}
	if opts.ChatLine != nil {
		a.sources[campaign.ChatLine] = &counterSource{client: opts.ChatLine}
	}
	return a, nil
}

func (a *Aggregator) source(ch campaign.Channel) (source, error) {
	s, ok := a.sources[ch]
	if !ok {
		return nil, apperr.NewValidation("channel", fmt.Sprintf("channel %q is not configured", ch))
	}
	return s, nil
}

// ListCampaigns fetches the channel's campaign list, merges it into the
// cached list and returns the merged list newest first.
func (a *Aggregator) ListCampaigns(ctx context.Context, ch campaign.Channel) ([]campaign.Campaign, error) {
	src, err := a.source(ch)
	if err != nil {
		return nil, err
	}
	remote, err := src.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: list %s: %w", ch, err)
	}

	a.mu.Lock()
	list := a.listFor(ch)
	for _, c := range remote {
		if prev, ok := list[c.ID]; ok {
			if c.Descriptor == "" {
				c.Descriptor = prev.Descriptor
			}
			if c.RecipientCount == 0 {
				c.RecipientCount = prev.RecipientCount
			}
		}
		list[c.ID] = c
	}
	a.mu.Unlock()

	if a.progress != nil && ch == campaign.ChatLine {
		for _, c := range remote {
			if err := a.progress.UpdateProgress(ctx, string(ch), c.ID, c.Sent, c.Failed, c.Status); err != nil {
				a.log.Warn().Err(err).Str("campaign", c.ID).Msg("progress not saved")
			}
		}
	}
	return a.Campaigns(ch), nil
}

// listFor returns the channel's cached list. Callers hold a.mu.
func (a *Aggregator) listFor(ch campaign.Channel) map[string]campaign.Campaign {
	list, ok := a.lists[ch]
	if !ok {
		list = make(map[string]campaign.Campaign)
		a.lists[ch] = list
	}
	return list
}

// Upsert adds or replaces a campaign in the cached list.
func (a *Aggregator) Upsert(c campaign.Campaign) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listFor(c.Channel)[c.ID] = c
}

// Campaigns returns the cached list for ch, newest first.
func (a *Aggregator) Campaigns(ch campaign.Channel) []campaign.Campaign {
	a.mu.RLock()
	defer a.mu.RUnlock()
	list := a.lists[ch]
	out := make([]campaign.Campaign, 0, len(list))
	for _, c := range list {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (a *Aggregator) cached(ch campaign.Channel, id string) *campaign.Campaign {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.lists[ch][id]
	if !ok {
		return nil
	}
	return &c
}

// GetReport builds the report for one campaign. Counter-only channels are
// answered from the cached list entry without a network call when it is
// present.
func (a *Aggregator) GetReport(ctx context.Context, ch campaign.Channel, id string) (*Report, error) {
	if id == "" {
		return nil, apperr.NewValidation("id", "campaign id is required")
	}
	src, err := a.source(ch)
	if err != nil {
		return nil, err
	}
	r, err := src.report(ctx, id, a.cached(ch, id))
	if err != nil {
		return nil, fmt.Errorf("report: %s %s: %w", ch, id, err)
	}
	return r, nil
}

// Download fetches the detail file of a counter-only campaign report.
func (a *Aggregator) Download(ctx context.Context, ch campaign.Channel, id string) ([]byte, error) {
	if id == "" {
		return nil, apperr.NewValidation("id", "campaign id is required")
	}
	src, err := a.source(ch)
	if err != nil {
		return nil, err
	}
	data, err := src.download(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("report: download %s %s: %w", ch, id, err)
	}
	return data, nil
}

// Channels returns the configured channels in display order.
func (a *Aggregator) Channels() []campaign.Channel {
	var out []campaign.Channel
	for _, ch := range campaign.Channels {
		if _, ok := a.sources[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
