package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/batch"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/sanitize"
)

const smsBroadcastPath = "/campaigns/sms/broadcast"

// SMSDraft is a text-message campaign. Flash renders the message as a
// pop-up; Priority routes it on the expedited path meant for one-time codes
// and security alerts. Both default to false.
type SMSDraft struct {
	Message  string
	Batch    *batch.File
	Flash    bool
	Priority bool
}

// Channel implements Draft.
func (SMSDraft) Channel() campaign.Channel { return campaign.TextMessage }

type smsRequest struct {
	Message  string `json:"message"`
	CSVFile  string `json:"csvFile"`
	FileName string `json:"fileName"`
	Flash    bool   `json:"flash"`
	Priority bool   `json:"priority"`
}

// acceptResponse covers the optional fields the campaign backend may return
// on acceptance; an empty body is also a success.
type acceptResponse struct {
	ID         gateway.FlexString `json:"id"`
	CampaignID gateway.FlexString `json:"campaignId"`
	Message    string             `json:"message"`
}

func (r acceptResponse) id() string {
	if r.CampaignID != "" {
		return r.CampaignID.String()
	}
	return r.ID.String()
}

// SMSAdapter submits text-message campaigns to the campaign backend.
type SMSAdapter struct {
	client *gateway.Client
	log    zerolog.Logger
}

// NewSMSAdapter creates an SMSAdapter.
func NewSMSAdapter(client *gateway.Client, log zerolog.Logger) *SMSAdapter {
	return &SMSAdapter{client: client, log: log.With().Str("component", "channel.sms").Logger()}
}

// Channel implements Adapter.
func (a *SMSAdapter) Channel() campaign.Channel { return campaign.TextMessage }

// Prepare sanitizes the body and encodes the batch as a data URI.
func (a *SMSAdapter) Prepare(d Draft) (*Prepared, error) {
	draft, ok := d.(SMSDraft)
	if !ok {
		return nil, wrongDraft(campaign.TextMessage, d)
	}

	res := sanitize.Apply(draft.Message)
	if strings.TrimSpace(res.Text) == "" {
		return nil, apperr.NewValidation("message", "message is empty after sanitization")
	}
	if draft.Batch == nil {
		return nil, apperr.NewValidation("csvFile", "a recipient file is required")
	}
	b, err := batch.CSV(draft.Batch, batch.ColumnPhone)
	if err != nil {
		return nil, err
	}

	var warnings []apperr.Warning
	if res.Truncated {
		warnings = append(warnings, apperr.Warning{
			Code:    apperr.WarnTruncated,
			Message: fmt.Sprintf("message was cut to %d characters", sanitize.MaxLength),
		})
	}
	if draft.Priority {
		warnings = append(warnings, apperr.Warning{
			Code:    apperr.WarnPriorityRisk,
			Message: "priority routing is for one-time codes and security alerts; promotional content sent this way can get the account suspended",
		})
	}

	return &Prepared{
		Channel:        campaign.TextMessage,
		RecipientCount: b.Recipients,
		Descriptor:     res.Text,
		Warnings:       warnings,
		Fingerprint:    fingerprint(campaign.TextMessage, []byte(res.Text), b.Data, flags(draft.Flash, draft.Priority)),
		request: smsRequest{
			Message:  res.Text,
			CSVFile:  b.DataURI(),
			FileName: b.FileName,
			Flash:    draft.Flash,
			Priority: draft.Priority,
		},
	}, nil
}

// Submit posts the prepared campaign. It returns once the backend accepts
// the job.
func (a *SMSAdapter) Submit(ctx context.Context, p *Prepared) (*Receipt, error) {
	req, ok := p.request.(smsRequest)
	if !ok {
		return nil, fmt.Errorf("channel: sms: submit: not an sms request")
	}
	var resp acceptResponse
	if err := a.client.PostJSON(ctx, smsBroadcastPath, req, &resp); err != nil {
		return nil, fmt.Errorf("channel: sms: submit: %w", err)
	}
	rcpt := &Receipt{CampaignID: resp.id(), Message: resp.Message}
	if rcpt.CampaignID == "" {
		rcpt.CampaignID = "sms-" + uuid.NewString()
		rcpt.Provisional = true
	}
	a.log.Info().
		Str("campaign", rcpt.CampaignID).
		Int("recipients", p.RecipientCount).
		Bool("flash", req.Flash).
		Bool("priority", req.Priority).
		Msg("sms campaign accepted")
	return rcpt, nil
}

func flags(bs ...bool) []byte {
	out := make([]byte, len(bs))
	for i, b := range bs {
		if b {
			out[i] = 1
		}
	}
	return out
}
