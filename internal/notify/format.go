package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/report"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// rateSeverity grades a success rate.
func rateSeverity(rate int) string {
	switch {
	case rate >= 90:
		return "success"
	case rate >= 50:
		return "warning"
	default:
		return "error"
	}
}

var channelNames = map[campaign.Channel]string{
	campaign.TextMessage: "SMS",
	campaign.Email:       "Email",
	campaign.ChatLine:    "Chat line",
}

func channelName(ch campaign.Channel) string {
	if n, ok := channelNames[ch]; ok {
		return n
	}
	return string(ch)
}

// FormatCampaignFinished formats the completion of one campaign.
func FormatCampaignFinished(c campaign.Campaign, s report.Summary) FormattedEvent {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	severity := rateSeverity(s.SuccessRate)
	if s.Sent+s.Failed == 0 {
		severity = "info"
	}

	fields := []Field{
		{Name: "Channel", Value: channelName(c.Channel), Short: true},
		{Name: "Campaign", Value: c.ID, Short: true},
		{Name: "Sent", Value: fmt.Sprintf("%d", s.Sent), Short: true},
		{Name: "Failed", Value: fmt.Sprintf("%d", s.Failed), Short: true},
	}
	if c.RecipientCount > 0 {
		fields = append(fields, Field{Name: "Recipients", Value: fmt.Sprintf("%d", c.RecipientCount), Short: true})
	}

	return FormattedEvent{
		Title:    fmt.Sprintf("%s campaign finished: %s", channelName(c.Channel), name),
		Body:     fmt.Sprintf("%d%% delivered (%d of %d)", s.SuccessRate, s.Sent, s.Sent+s.Failed),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// FormatDigest summarizes the campaigns recorded in [since, until).
func FormatDigest(recs []models.CampaignRecord, since, until time.Time) FormattedEvent {
	type tally struct{ campaigns, recipients, sent, failed int }
	byChannel := map[string]*tally{}
	var total tally
	for _, r := range recs {
		t, ok := byChannel[r.Channel]
		if !ok {
			t = &tally{}
			byChannel[r.Channel] = t
		}
		for _, x := range []*tally{t, &total} {
			x.campaigns++
			x.recipients += r.Total
			x.sent += r.Sent
			x.failed += r.Failed
		}
	}

	channels := make([]string, 0, len(byChannel))
	for ch := range byChannel {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	var lines []string
	var fields []Field
	for _, ch := range channels {
		t := byChannel[ch]
		name := channelName(campaign.Channel(ch))
		lines = append(lines, fmt.Sprintf("**%s**: %d campaigns, %d recipients", name, t.campaigns, t.recipients))
		fields = append(fields, Field{Name: name, Value: fmt.Sprintf("%d", t.campaigns), Short: true})
	}
	if total.sent+total.failed > 0 {
		s := report.NewSummary(total.sent, total.failed)
		lines = append(lines, fmt.Sprintf("**Delivered**: %d%% of %d reported", s.SuccessRate, total.sent+total.failed))
	}

	return FormattedEvent{
		Title: fmt.Sprintf("Campaign digest %s to %s",
			since.Format("Jan 2 15:04"), until.Format("Jan 2 15:04")),
		Body:     strings.Join(lines, "\n"),
		Severity: "info",
		Color:    ColorInfo,
		Fields:   fields,
	}
}
