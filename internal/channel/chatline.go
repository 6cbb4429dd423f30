package channel

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/batch"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/models"
)

const (
	sendCampaignPath = "/api/send-campaign"
	// DefaultUploadPath is the campaign backend endpoint for approved
	// template broadcasts.
	DefaultUploadPath = "/campaigns/whatsapp/upload"
)

// ChatDraft is an ad-hoc chat-line campaign sent through one linked
// session: a free-form message plus an optional image.
type ChatDraft struct {
	Session  string
	Subject  string
	Message  string
	Batch    *batch.File
	Image    *batch.File
	EventTag string
}

// Channel implements Draft.
func (ChatDraft) Channel() campaign.Channel { return campaign.ChatLine }

// TemplateBroadcastDraft sends an approved platform template to a batch.
type TemplateBroadcastDraft struct {
	Session      string
	TemplateName string
	Language     string
	MediaURL     string
	Subject      string
	Batch        *batch.File
	EventTag     string
}

// Channel implements Draft.
func (TemplateBroadcastDraft) Channel() campaign.Channel { return campaign.ChatLine }

type chatRequest struct {
	message  string
	subject  string
	eventTag string
	batch    *batch.Batch
	image    *batch.Payload
}

type templateRequest struct {
	name     string
	language string
	mediaURL string
	subject  string
	eventTag string
	batch    *batch.Batch
}

type sendCampaignResponse struct {
	Success    bool               `json:"success"`
	CampaignID gateway.FlexString `json:"campaignId"`
	Message    string             `json:"message"`
}

// RecipientResult is one row of a template broadcast response.
type RecipientResult struct {
	Phone  string `json:"phone"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the platform rejected this recipient.
func (r RecipientResult) Failed() bool {
	if r.Error != "" {
		return true
	}
	switch strings.ToLower(r.Status) {
	case "failed", "error", "rejected":
		return true
	}
	return false
}

type templateBroadcastResponse struct {
	Success    bool               `json:"success"`
	CampaignID gateway.FlexString `json:"campaignId"`
	Message    string             `json:"message"`
	Results    []RecipientResult  `json:"results"`
}

// ChatLineOpts holds parameters for creating a ChatLineAdapter.
type ChatLineOpts struct {
	Gateway    *gateway.Client // chat-line session gateway
	Backend    *gateway.Client // campaign backend, for template broadcasts
	UploadPath string          // defaults to DefaultUploadPath; may be absolute
	Language   string          // default template language
	Recorder   Recorder
	Logger     zerolog.Logger
}

// ChatLineAdapter submits chat-line campaigns and writes their metadata to
// the reporting store.
type ChatLineAdapter struct {
	gateway    *gateway.Client
	backend    *gateway.Client
	uploadPath string
	language   string
	recorder   Recorder
	log        zerolog.Logger
	now        func() time.Time
}

// NewChatLineAdapter creates a ChatLineAdapter.
func NewChatLineAdapter(opts ChatLineOpts) (*ChatLineAdapter, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("channel: chatline: gateway client is required")
	}
	if opts.Recorder == nil {
		return nil, fmt.Errorf("channel: chatline: recorder is required")
	}
	upload := opts.UploadPath
	if upload == "" {
		upload = DefaultUploadPath
	}
	lang := opts.Language
	if lang == "" {
		lang = "es"
	}
	return &ChatLineAdapter{
		gateway:    opts.Gateway,
		backend:    opts.Backend,
		uploadPath: upload,
		language:   lang,
		recorder:   opts.Recorder,
		log:        opts.Logger.With().Str("component", "channel.chatline").Logger(),
		now:        time.Now,
	}, nil
}

// Channel implements Adapter.
func (a *ChatLineAdapter) Channel() campaign.Channel { return campaign.ChatLine }

// Prepare validates either draft kind.
func (a *ChatLineAdapter) Prepare(d Draft) (*Prepared, error) {
	switch draft := d.(type) {
	case ChatDraft:
		return a.prepareChat(draft)
	case TemplateBroadcastDraft:
		return a.prepareTemplate(draft)
	}
	return nil, wrongDraft(campaign.ChatLine, d)
}

func (a *ChatLineAdapter) prepareChat(d ChatDraft) (*Prepared, error) {
	msg := strings.TrimSpace(d.Message)
	if msg == "" {
		return nil, apperr.NewValidation("message", "message is required")
	}
	if d.Batch == nil {
		return nil, apperr.NewValidation("csv", "a recipient file is required")
	}
	b, err := batch.CSV(d.Batch, batch.ColumnPhone)
	if err != nil {
		return nil, err
	}
	var img *batch.Payload
	if d.Image != nil {
		if img, err = batch.Image(d.Image); err != nil {
			return nil, err
		}
	}

	subject := strings.TrimSpace(d.Subject)
	if subject == "" {
		subject = firstLine(msg, 80)
	}
	parts := [][]byte{[]byte(d.Session), []byte(msg), b.Data}
	if img != nil {
		parts = append(parts, img.Data)
	}
	return &Prepared{
		Channel:        campaign.ChatLine,
		RecipientCount: b.Recipients,
		Descriptor:     subject + "\n" + msg,
		Session:        d.Session,
		Fingerprint:    fingerprint(campaign.ChatLine, parts...),
		request: chatRequest{
			message:  msg,
			subject:  subject,
			eventTag: d.EventTag,
			batch:    b,
			image:    img,
		},
	}, nil
}

func (a *ChatLineAdapter) prepareTemplate(d TemplateBroadcastDraft) (*Prepared, error) {
	name := strings.TrimSpace(d.TemplateName)
	if name == "" {
		return nil, apperr.NewValidation("templateName", "an approved template name is required")
	}
	if d.MediaURL != "" && !webURL(d.MediaURL) {
		return nil, apperr.NewValidation("mediaUrl", "media url must be http or https")
	}
	if d.Batch == nil {
		return nil, apperr.NewValidation("csv", "a recipient file is required")
	}
	b, err := batch.CSV(d.Batch, batch.ColumnPhone)
	if err != nil {
		return nil, err
	}
	lang := d.Language
	if lang == "" {
		lang = a.language
	}
	subject := strings.TrimSpace(d.Subject)
	if subject == "" {
		subject = name
	}
	return &Prepared{
		Channel:        campaign.ChatLine,
		RecipientCount: b.Recipients,
		Descriptor:     subject + "\ntemplate:" + name,
		Session:        d.Session,
		Fingerprint:    fingerprint(campaign.ChatLine, []byte(d.Session), []byte(name), []byte(d.MediaURL), b.Data),
		request: templateRequest{
			name:     name,
			language: lang,
			mediaURL: d.MediaURL,
			subject:  subject,
			eventTag: d.EventTag,
			batch:    b,
		},
	}, nil
}

// Submit sends the prepared campaign through p.Session and records its
// metadata. A failed metadata write is returned as a warning because the
// gateway has already accepted the campaign.
func (a *ChatLineAdapter) Submit(ctx context.Context, p *Prepared) (*Receipt, error) {
	if p.Session == "" {
		return nil, apperr.NewValidation("session", "a connected chat line is required")
	}
	var (
		rcpt *Receipt
		rec  *models.CampaignRecord
		err  error
	)
	switch req := p.request.(type) {
	case chatRequest:
		rcpt, err = a.sendChat(ctx, p.Session, req)
		if err != nil {
			return nil, &SessionError{Session: p.Session, Err: err}
		}
		rec = &models.CampaignRecord{Subject: req.subject, EventTag: req.eventTag}
	case templateRequest:
		rcpt, err = a.sendTemplate(ctx, p.Session, req)
		if err != nil {
			return nil, err
		}
		rec = &models.CampaignRecord{Subject: req.subject, EventTag: req.eventTag}
	default:
		return nil, fmt.Errorf("channel: chatline: submit: not a chat-line request")
	}

	rec.CampaignID = rcpt.CampaignID
	rec.Channel = string(campaign.ChatLine)
	rec.Descriptor = p.Descriptor
	rec.Total = p.RecipientCount
	rec.Sent = rcpt.Sent
	rec.Failed = rcpt.Failed
	rec.SessionName = p.Session
	rec.Provisional = rcpt.Provisional
	rec.CreatedAt = a.now()
	rcpt.RecordAttempted = true
	if err := a.recorder.Record(ctx, rec); err != nil {
		a.log.Warn().Err(err).Str("campaign", rcpt.CampaignID).Msg("campaign metadata not saved")
		rcpt.Warnings = append(rcpt.Warnings, apperr.Warning{
			Code:    apperr.WarnMetadataNotSaved,
			Message: "campaign was accepted but will be missing from the shared history: " + err.Error(),
		})
	} else {
		rcpt.Persisted = true
	}

	a.log.Info().
		Str("campaign", rcpt.CampaignID).
		Str("session", p.Session).
		Int("recipients", p.RecipientCount).
		Msg("chat-line campaign accepted")
	return rcpt, nil
}

func (a *ChatLineAdapter) sendChat(ctx context.Context, session string, req chatRequest) (*Receipt, error) {
	var resp sendCampaignResponse
	err := a.gateway.PostMultipart(ctx, sendCampaignPath, func(mw *multipart.Writer) error {
		if err := mw.WriteField("message", req.message); err != nil {
			return err
		}
		if err := mw.WriteField("sessionName", session); err != nil {
			return err
		}
		if err := req.batch.WritePart(mw, "csv"); err != nil {
			return err
		}
		if req.image != nil {
			return req.image.WritePart(mw, "image")
		}
		return nil
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("channel: chatline: send campaign: %w", err)
	}
	if !resp.Success {
		return nil, &apperr.TransportError{Op: "POST " + sendCampaignPath, Message: rejection(resp.Message)}
	}
	rcpt := &Receipt{CampaignID: resp.CampaignID.String(), Message: resp.Message}
	if rcpt.CampaignID == "" {
		rcpt.CampaignID = "wa-" + uuid.NewString()
		rcpt.Provisional = true
	}
	return rcpt, nil
}

func (a *ChatLineAdapter) sendTemplate(ctx context.Context, session string, req templateRequest) (*Receipt, error) {
	if a.backend == nil {
		return nil, fmt.Errorf("channel: chatline: template broadcast: backend client is not configured")
	}
	var resp templateBroadcastResponse
	err := a.backend.PostMultipart(ctx, a.uploadPath, func(mw *multipart.Writer) error {
		fields := [][2]string{
			{"templateName", req.name},
			{"language", req.language},
			{"sessionName", session},
		}
		if req.mediaURL != "" {
			fields = append(fields, [2]string{"mediaUrl", req.mediaURL})
		}
		for _, f := range fields {
			if err := mw.WriteField(f[0], f[1]); err != nil {
				return err
			}
		}
		return req.batch.WritePart(mw, "csv")
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("channel: chatline: template broadcast: %w", err)
	}
	if !resp.Success {
		return nil, &apperr.TransportError{Op: "POST " + a.uploadPath, Message: rejection(resp.Message)}
	}

	rcpt := &Receipt{CampaignID: resp.CampaignID.String(), Message: resp.Message}
	for _, r := range resp.Results {
		if r.Failed() {
			rcpt.Failed++
		} else {
			rcpt.Sent++
		}
	}
	if rcpt.CampaignID == "" {
		rcpt.CampaignID = "tpl-" + uuid.NewString()
		rcpt.Provisional = true
	}
	return rcpt, nil
}

func rejection(msg string) string {
	if msg == "" {
		return "gateway rejected the campaign"
	}
	return msg
}

func firstLine(s string, limit int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > limit {
		s = string(r[:limit])
	}
	return s
}
