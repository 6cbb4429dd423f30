package channel

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/batch"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/gateway"
)

const (
	emailBroadcastPath = "/campaigns/email/broadcast"

	// MaxButtons caps call-to-action buttons for email and chat templates.
	MaxButtons = 3
	// minSubjectLength is the length below which a subject draws a warning.
	minSubjectLength = 10
	// DefaultButtonColor is used when a button has no color.
	DefaultButtonColor = "#2196f3"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Button is an email call-to-action.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Color string `json:"color,omitempty"`
}

// EmailTemplate is the structured content an email is rendered from. Body is
// trusted operator-authored HTML or plain text.
type EmailTemplate struct {
	Subject   string      `json:"subject"`
	Body      string      `json:"body"`
	BannerURL string      `json:"bannerUrl,omitempty"`
	Banner    *batch.File `json:"-"`
	Buttons   []Button    `json:"buttons,omitempty"`
	Style     string      `json:"style,omitempty"`
}

// EmailDraft is an email campaign.
type EmailDraft struct {
	Template EmailTemplate
	Batch    *batch.File
}

// Channel implements Draft.
func (EmailDraft) Channel() campaign.Channel { return campaign.Email }

type emailRequest struct {
	Subject     string `json:"subject"`
	HTMLContent string `json:"htmlContent"`
	TextContent string `json:"textContent"`
	CSVFile     string `json:"csvFile"`
	FileName    string `json:"fileName"`
}

// EmailAdapter submits email campaigns with an HTML body and its plain-text
// alternative.
type EmailAdapter struct {
	client *gateway.Client
	log    zerolog.Logger
}

// NewEmailAdapter creates an EmailAdapter.
func NewEmailAdapter(client *gateway.Client, log zerolog.Logger) *EmailAdapter {
	return &EmailAdapter{client: client, log: log.With().Str("component", "channel.email").Logger()}
}

// Channel implements Adapter.
func (a *EmailAdapter) Channel() campaign.Channel { return campaign.Email }

// Prepare validates the template, renders HTML and derives the text part.
func (a *EmailAdapter) Prepare(d Draft) (*Prepared, error) {
	draft, ok := d.(EmailDraft)
	if !ok {
		return nil, wrongDraft(campaign.Email, d)
	}
	tpl := draft.Template
	tpl.Subject = strings.TrimSpace(tpl.Subject)

	warnings, err := validateEmail(&tpl)
	if err != nil {
		return nil, err
	}
	if draft.Batch == nil {
		return nil, apperr.NewValidation("csvFile", "a recipient file is required")
	}
	b, err := batch.CSV(draft.Batch, batch.ColumnEmail)
	if err != nil {
		return nil, err
	}

	html, err := RenderEmail(tpl)
	if err != nil {
		return nil, err
	}
	text, err := EmailText(html, tpl)
	if err != nil {
		return nil, err
	}

	return &Prepared{
		Channel:        campaign.Email,
		RecipientCount: b.Recipients,
		Descriptor:     tpl.Subject + "\n" + text,
		Warnings:       warnings,
		Fingerprint:    fingerprint(campaign.Email, []byte(tpl.Subject), []byte(html), b.Data),
		request: emailRequest{
			Subject:     tpl.Subject,
			HTMLContent: html,
			TextContent: text,
			CSVFile:     b.DataURI(),
			FileName:    b.FileName,
		},
	}, nil
}

// Submit posts the prepared campaign.
func (a *EmailAdapter) Submit(ctx context.Context, p *Prepared) (*Receipt, error) {
	req, ok := p.request.(emailRequest)
	if !ok {
		return nil, fmt.Errorf("channel: email: submit: not an email request")
	}
	var resp acceptResponse
	if err := a.client.PostJSON(ctx, emailBroadcastPath, req, &resp); err != nil {
		return nil, fmt.Errorf("channel: email: submit: %w", err)
	}
	rcpt := &Receipt{CampaignID: resp.id(), Message: resp.Message}
	if rcpt.CampaignID == "" {
		rcpt.CampaignID = "email-" + uuid.NewString()
		rcpt.Provisional = true
	}
	a.log.Info().
		Str("campaign", rcpt.CampaignID).
		Int("recipients", p.RecipientCount).
		Msg("email campaign accepted")
	return rcpt, nil
}

// validateEmail checks tpl in place, filling defaults, and returns the
// non-fatal warnings.
func validateEmail(tpl *EmailTemplate) ([]apperr.Warning, error) {
	if tpl.Subject == "" {
		return nil, apperr.NewValidation("subject", "subject is required")
	}
	if strings.TrimSpace(tpl.Body) == "" {
		return nil, apperr.NewValidation("body", "body is required")
	}
	if tpl.Style == "" {
		tpl.Style = DefaultStyle
	}
	if _, ok := emailStyles[tpl.Style]; !ok {
		return nil, apperr.NewValidation("style", fmt.Sprintf("unknown template style %q", tpl.Style))
	}
	if tpl.BannerURL != "" && !webURL(tpl.BannerURL) {
		return nil, apperr.NewValidation("bannerUrl", "banner url must be http or https")
	}
	if len(tpl.Buttons) > MaxButtons {
		return nil, apperr.NewValidation("buttons", fmt.Sprintf("at most %d buttons are allowed", MaxButtons))
	}
	for i := range tpl.Buttons {
		btn := &tpl.Buttons[i]
		btn.Label = strings.TrimSpace(btn.Label)
		btn.URL = strings.TrimSpace(btn.URL)
		field := fmt.Sprintf("buttons[%d]", i)
		if btn.Label == "" {
			return nil, apperr.NewValidation(field, "label is required")
		}
		if !linkURL(btn.URL) {
			return nil, apperr.NewValidation(field, "url must be http, https or mailto")
		}
		if btn.Color == "" {
			btn.Color = DefaultButtonColor
		}
		if !hexColor.MatchString(btn.Color) {
			return nil, apperr.NewValidation(field, "color must be a #rrggbb hex value")
		}
	}

	var warnings []apperr.Warning
	if utf8.RuneCountInString(tpl.Subject) < minSubjectLength {
		warnings = append(warnings, apperr.Warning{
			Code:    apperr.WarnShortSubject,
			Message: fmt.Sprintf("subject is shorter than %d characters", minSubjectLength),
		})
	}
	return warnings, nil
}

func webURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func linkURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "mailto":
		return u.Opaque != ""
	}
	return false
}
