// Package report lists submitted campaigns and builds delivery reports for
// every channel behind one Report shape, whether the channel exposes
// per-recipient logs or only aggregate counters.
package report

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/gateway"
)

// Summary is the derived delivery outcome of a campaign.
type Summary struct {
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	SuccessRate int `json:"successRate"`
}

// NewSummary computes SuccessRate as the rounded percentage of sent over
// sent+failed, or 0 when nothing was attempted.
func NewSummary(sent, failed int) Summary {
	return Summary{Sent: sent, Failed: failed, SuccessRate: successRate(sent, failed)}
}

func successRate(sent, failed int) int {
	total := sent + failed
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(sent) / float64(total) * 100))
}

// LogEntry is one recipient's delivery outcome.
type LogEntry struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"`
	Error     string    `json:"errorMessage,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Failed reports whether the entry counts against the success rate.
func (l LogEntry) Failed() bool {
	if l.Error != "" {
		return true
	}
	switch strings.ToLower(l.Status) {
	case "failed", "error", "rejected", "undelivered", "fallido":
		return true
	}
	return false
}

func (l LogEntry) pending() bool {
	switch strings.ToLower(l.Status) {
	case "pending", "queued", "pendiente", "en cola":
		return true
	}
	return false
}

// Report is the unified campaign report. Logs may be empty when the channel
// only exposes counters; DownloadRef then names the detail file.
type Report struct {
	Channel     campaign.Channel `json:"channel"`
	CampaignID  string           `json:"campaignId"`
	Summary     Summary          `json:"summary"`
	Logs        []LogEntry       `json:"logs"`
	DownloadRef string           `json:"downloadRef,omitempty"`
}

// summarize counts sent and failed entries. Pending entries count as
// neither.
func summarize(logs []LogEntry) Summary {
	var sent, failed int
	for _, l := range logs {
		switch {
		case l.Failed():
			failed++
		case l.pending():
		default:
			sent++
		}
	}
	return NewSummary(sent, failed)
}

// DownloadRef is the detail file name for a counter-only campaign report.
func DownloadRef(id string) string {
	return "report_" + id + ".csv"
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// parseDate accepts the date formats the backends emit. Unparseable dates
// come back as the zero time.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

func atoi(f gateway.FlexString) int {
	n, err := strconv.Atoi(strings.TrimSpace(f.String()))
	if err != nil {
		if fl, ferr := strconv.ParseFloat(strings.TrimSpace(f.String()), 64); ferr == nil {
			return int(fl)
		}
		return 0
	}
	return n
}
