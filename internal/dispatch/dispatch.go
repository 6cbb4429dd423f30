// Package dispatch validates composed campaigns against their channel
// adapter, submits them and records the accepted campaign for reporting.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/channel"
	"github.com/zulandar/switchboard/internal/models"
)

// ErrInFlight is returned when an identical campaign is still being
// submitted.
var ErrInFlight = &apperr.ValidationError{Field: "campaign", Reason: "an identical campaign is already being submitted"}

// Sessions is the view of chat-line state the dispatcher needs.
type Sessions interface {
	Active() []string
	HasActive() bool
	MarkDesynced(name string, cause error) error
}

// CampaignSink receives accepted campaigns for the live campaign list.
type CampaignSink interface {
	Upsert(c campaign.Campaign)
}

// Opts holds parameters for creating a Dispatcher.
type Opts struct {
	Adapters []channel.Adapter
	Sessions Sessions         // required when a chat-line adapter is present
	Reports  CampaignSink     // optional
	Recorder channel.Recorder // optional
	Logger   zerolog.Logger
}

// Dispatcher submits campaigns. Each distinct campaign has at most one
// submission in flight.
type Dispatcher struct {
	adapters map[campaign.Channel]channel.Adapter
	sessions Sessions
	reports  CampaignSink
	recorder channel.Recorder
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a Dispatcher.
func New(opts Opts) (*Dispatcher, error) {
	if len(opts.Adapters) == 0 {
		return nil, fmt.Errorf("dispatch: at least one adapter is required")
	}
	d := &Dispatcher{
		adapters: make(map[campaign.Channel]channel.Adapter, len(opts.Adapters)),
		sessions: opts.Sessions,
		reports:  opts.Reports,
		recorder: opts.Recorder,
		log:      opts.Logger.With().Str("component", "dispatch").Logger(),
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
	for _, a := range opts.Adapters {
		if _, dup := d.adapters[a.Channel()]; dup {
			return nil, fmt.Errorf("dispatch: duplicate adapter for %s", a.Channel())
		}
		d.adapters[a.Channel()] = a
	}
	if _, ok := d.adapters[campaign.ChatLine]; ok && d.sessions == nil {
		return nil, fmt.Errorf("dispatch: sessions are required for the chat-line channel")
	}
	return d, nil
}

// Result is the outcome of an accepted submission.
type Result struct {
	Campaign campaign.Campaign `json:"campaign"`
	Message  string            `json:"message,omitempty"`
	Warnings []apperr.Warning  `json:"warnings,omitempty"`
}

// Prepare validates draft without submitting it, for previews.
func (d *Dispatcher) Prepare(draft channel.Draft) (*channel.Prepared, error) {
	a, err := d.adapter(draft)
	if err != nil {
		return nil, err
	}
	p, err := a.Prepare(draft)
	if err != nil {
		return nil, err
	}
	if p.Channel == campaign.ChatLine {
		if err := d.resolveSession(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Dispatch validates and submits draft. Chat-line drafts are refused
// without a network call when no line is connected; a draft naming no line
// goes through the first connected one.
func (d *Dispatcher) Dispatch(ctx context.Context, draft channel.Draft) (*Result, error) {
	a, err := d.adapter(draft)
	if err != nil {
		return nil, err
	}
	ch := a.Channel()
	if ch == campaign.ChatLine && !d.sessions.HasActive() {
		return nil, apperr.NewValidation("session", "no chat line is connected; link one first")
	}

	p, err := a.Prepare(draft)
	if err != nil {
		return nil, err
	}
	if ch == campaign.ChatLine {
		if err := d.resolveSession(p); err != nil {
			return nil, err
		}
	}

	release, err := d.acquire(ch, p.Fingerprint)
	if err != nil {
		return nil, err
	}
	defer release()

	for _, w := range p.Warnings {
		d.log.Warn().Str("channel", string(ch)).Str("code", w.Code).Msg(w.Message)
	}

	rcpt, err := a.Submit(ctx, p)
	if err != nil {
		var se *channel.SessionError
		if errors.As(err, &se) {
			err = d.sessions.MarkDesynced(se.Session, err)
		}
		d.log.Error().Err(err).Str("channel", string(ch)).Msg("campaign submission failed")
		return nil, fmt.Errorf("dispatch: %s: %w", ch, err)
	}

	c := campaign.Campaign{
		ID:             rcpt.CampaignID,
		Channel:        ch,
		Name:           title(p.Descriptor),
		CreatedAt:      d.now(),
		RecipientCount: p.RecipientCount,
		Descriptor:     p.Descriptor,
		Sent:           rcpt.Sent,
		Failed:         rcpt.Failed,
		Provisional:    rcpt.Provisional,
	}
	if d.reports != nil {
		d.reports.Upsert(c)
	}

	warnings := append(append([]apperr.Warning(nil), p.Warnings...), rcpt.Warnings...)
	if !rcpt.RecordAttempted && !rcpt.Persisted && d.recorder != nil {
		if w, ok := d.record(ctx, c, p.Session); !ok {
			warnings = append(warnings, w)
		}
	}

	d.log.Info().
		Str("channel", string(ch)).
		Str("campaign", c.ID).
		Bool("provisional", c.Provisional).
		Int("recipients", c.RecipientCount).
		Int("warnings", len(warnings)).
		Msg("campaign accepted")
	return &Result{Campaign: c, Message: rcpt.Message, Warnings: warnings}, nil
}

func (d *Dispatcher) adapter(draft channel.Draft) (channel.Adapter, error) {
	if draft == nil {
		return nil, apperr.NewValidation("draft", "draft is required")
	}
	a, ok := d.adapters[draft.Channel()]
	if !ok {
		return nil, apperr.NewValidation("channel", fmt.Sprintf("channel %q is not configured", draft.Channel()))
	}
	return a, nil
}

func (d *Dispatcher) resolveSession(p *channel.Prepared) error {
	active := d.sessions.Active()
	if len(active) == 0 {
		return apperr.NewValidation("session", "no chat line is connected; link one first")
	}
	if p.Session == "" {
		p.Session = active[0]
		return nil
	}
	for _, name := range active {
		if name == p.Session {
			return nil
		}
	}
	return apperr.NewValidation("session", fmt.Sprintf("chat line %q is not connected", p.Session))
}

// acquire marks a campaign in flight and returns its release function.
func (d *Dispatcher) acquire(ch campaign.Channel, fp string) (func(), error) {
	key := string(ch) + ":" + fp
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[key]; busy {
		return nil, ErrInFlight
	}
	d.inFlight[key] = struct{}{}
	return func() {
		d.mu.Lock()
		delete(d.inFlight, key)
		d.mu.Unlock()
	}, nil
}

// InFlight returns the number of submissions awaiting a gateway answer.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

func (d *Dispatcher) record(ctx context.Context, c campaign.Campaign, session string) (apperr.Warning, bool) {
	err := d.recorder.Record(ctx, &models.CampaignRecord{
		CampaignID:  c.ID,
		Channel:     string(c.Channel),
		Subject:     c.Name,
		Descriptor:  c.Descriptor,
		Total:       c.RecipientCount,
		Sent:        c.Sent,
		Failed:      c.Failed,
		SessionName: session,
		Provisional: c.Provisional,
		CreatedAt:   c.CreatedAt,
	})
	if err == nil {
		return apperr.Warning{}, true
	}
	d.log.Warn().Err(err).Str("campaign", c.ID).Msg("campaign metadata not saved")
	return apperr.Warning{
		Code:    apperr.WarnMetadataNotSaved,
		Message: "campaign was accepted but is missing from the local history: " + err.Error(),
	}, false
}

// title is the first line of a content descriptor, capped for list views.
func title(descriptor string) string {
	line, _, _ := strings.Cut(descriptor, "\n")
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > 80 {
		line = string(r[:80])
	}
	return line
}
