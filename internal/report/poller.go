package report

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/campaign"
)

// DefaultPollInterval is how often a watched campaign list is refreshed.
const DefaultPollInterval = 5 * time.Second

// Lister fetches a channel's campaign list.
type Lister interface {
	ListCampaigns(ctx context.Context, ch campaign.Channel) ([]campaign.Campaign, error)
}

// Update is one poll result for one channel. Finished holds campaigns that
// reached the terminal status since the previous poll.
type Update struct {
	Channel   campaign.Channel    `json:"channel"`
	Campaigns []campaign.Campaign `json:"campaigns"`
	Finished  []campaign.Campaign `json:"finished,omitempty"`
	Err       error               `json:"-"`
	At        time.Time           `json:"at"`
}

// PollerOpts holds parameters for creating a Poller.
type PollerOpts struct {
	Lister   Lister
	Channels []campaign.Channel
	Interval time.Duration // defaults to DefaultPollInterval
	Logger   zerolog.Logger
}

// Poller refreshes campaign lists while anyone is watching. The first
// subscriber starts the loop and the last unsubscribe stops it, so any
// number of viewers share one set of requests.
type Poller struct {
	lister   Lister
	channels []campaign.Channel
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	subs   map[int]chan Update
	nextID int
	cancel context.CancelFunc
	done   chan struct{}

	// seen tracks finished campaigns already reported, per channel.
	seen     map[campaign.Channel]map[string]bool
	baseline map[campaign.Channel]bool
}

// NewPoller creates a Poller. Nothing is polled until Subscribe.
func NewPoller(opts PollerOpts) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	channels := opts.Channels
	if len(channels) == 0 {
		channels = campaign.Channels
	}
	return &Poller{
		lister:   opts.Lister,
		channels: channels,
		interval: interval,
		log:      opts.Logger.With().Str("component", "poller").Logger(),
		subs:     make(map[int]chan Update),
		seen:     make(map[campaign.Channel]map[string]bool),
		baseline: make(map[campaign.Channel]bool),
	}
}

// Subscribe registers a watcher and returns its update channel plus the
// function that unsubscribes it. A slow watcher loses its oldest pending
// update rather than stalling the loop.
func (p *Poller) Subscribe() (<-chan Update, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	ch := make(chan Update, len(p.channels)*2)
	p.subs[id] = ch
	if len(p.subs) == 1 {
		p.start()
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() { p.unsubscribe(id) })
	}
}

func (p *Poller) unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[id]; !ok {
		return
	}
	delete(p.subs, id)
	if len(p.subs) == 0 && p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Subscribers returns the current watcher count.
func (p *Poller) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Close stops the loop and drops every watcher.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.subs = make(map[int]chan Update)
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// start launches the loop. Callers hold p.mu.
func (p *Poller) start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go func() {
		defer close(done)
		p.run(ctx)
	}()
	p.log.Debug().Dur("interval", p.interval).Msg("poller started")
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Debug().Msg("poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll refreshes each channel in turn. Ticks never overlap because one
// goroutine runs them.
func (p *Poller) poll(ctx context.Context) {
	for _, ch := range p.channels {
		if ctx.Err() != nil {
			return
		}
		list, err := p.lister.ListCampaigns(ctx, ch)
		if ctx.Err() != nil {
			return
		}
		u := Update{Channel: ch, Campaigns: list, Err: err, At: time.Now()}
		if err != nil {
			p.log.Warn().Err(err).Str("channel", string(ch)).Msg("poll failed")
		} else {
			u.Finished = p.newlyFinished(ch, list)
		}
		p.broadcast(ctx, u)
	}
}

// newlyFinished returns the finished campaigns not reported before. The
// first successful poll of a channel only records what is already
// finished.
func (p *Poller) newlyFinished(ch campaign.Channel, list []campaign.Campaign) []campaign.Campaign {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen, ok := p.seen[ch]
	if !ok {
		seen = make(map[string]bool)
		p.seen[ch] = seen
	}
	first := !p.baseline[ch]
	p.baseline[ch] = true

	var out []campaign.Campaign
	for _, c := range list {
		if !c.Finished() || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if !first {
			out = append(out, c)
		}
	}
	return out
}

func (p *Poller) broadcast(ctx context.Context, u Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	for _, ch := range p.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}
