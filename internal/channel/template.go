package channel

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/models"
)

// Template categories accepted by the chat platform.
const (
	CategoryMarketing      = "MARKETING"
	CategoryUtility        = "UTILITY"
	CategoryAuthentication = "AUTHENTICATION"
)

// Template button types.
const (
	ButtonQuickReply = "QUICK_REPLY"
	ButtonURL        = "URL"
	ButtonPhone      = "PHONE_NUMBER"
)

// Review states reported by the platform.
const (
	TemplatePending  = "PENDING"
	TemplateApproved = "APPROVED"
	TemplateRejected = "REJECTED"
)

const (
	maxTemplateBody   = 1024
	maxTemplateFooter = 60
	maxTemplateHeader = 60
	maxButtonText     = 25
	maxTemplatePages  = 50
)

var (
	templateName = regexp.MustCompile(`^[a-z0-9_]{1,512}$`)
	placeholder  = regexp.MustCompile(`\{\{\s*(\d+)\s*\}\}`)
)

// TemplateButton is one action button on a chat template.
type TemplateButton struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	URL         string `json:"url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Template is a chat message template submitted for platform review. Body
// placeholders are numbered {{1}}..{{n}}; Examples holds one sample value per
// placeholder, in order.
type Template struct {
	Name     string           `json:"name"`
	Category string           `json:"category"`
	Language string           `json:"language"`
	Header   string           `json:"header,omitempty"`
	Body     string           `json:"body"`
	Examples []string         `json:"examples,omitempty"`
	Footer   string           `json:"footer,omitempty"`
	Buttons  []TemplateButton `json:"buttons,omitempty"`
}

// Validate checks the template against the platform's authoring rules.
func (t *Template) Validate() error {
	if !templateName.MatchString(t.Name) {
		return apperr.NewValidation("name", "use lowercase letters, digits and underscores")
	}
	switch t.Category {
	case CategoryMarketing, CategoryUtility, CategoryAuthentication:
	default:
		return apperr.NewValidation("category", fmt.Sprintf("%q must be MARKETING, UTILITY or AUTHENTICATION", t.Category))
	}
	if strings.TrimSpace(t.Language) == "" {
		return apperr.NewValidation("language", "language is required")
	}
	if strings.TrimSpace(t.Body) == "" {
		return apperr.NewValidation("body", "body is required")
	}
	if utf8.RuneCountInString(t.Body) > maxTemplateBody {
		return apperr.NewValidation("body", fmt.Sprintf("body exceeds %d characters", maxTemplateBody))
	}
	if utf8.RuneCountInString(t.Header) > maxTemplateHeader {
		return apperr.NewValidation("header", fmt.Sprintf("header exceeds %d characters", maxTemplateHeader))
	}
	if utf8.RuneCountInString(t.Footer) > maxTemplateFooter {
		return apperr.NewValidation("footer", fmt.Sprintf("footer exceeds %d characters", maxTemplateFooter))
	}

	n, err := Placeholders(t.Body)
	if err != nil {
		return err
	}
	if len(t.Examples) < n {
		return apperr.NewValidation("examples", fmt.Sprintf("an example value is required for each of the %d placeholders", n))
	}

	if len(t.Buttons) > MaxButtons {
		return apperr.NewValidation("buttons", fmt.Sprintf("at most %d buttons are allowed", MaxButtons))
	}
	for i, b := range t.Buttons {
		field := fmt.Sprintf("buttons[%d]", i)
		if strings.TrimSpace(b.Text) == "" {
			return apperr.NewValidation(field, "text is required")
		}
		if utf8.RuneCountInString(b.Text) > maxButtonText {
			return apperr.NewValidation(field, fmt.Sprintf("text exceeds %d characters", maxButtonText))
		}
		switch b.Type {
		case ButtonQuickReply:
		case ButtonURL:
			if !webURL(b.URL) {
				return apperr.NewValidation(field, "url buttons need an http or https url")
			}
		case ButtonPhone:
			if !phoneNumber(b.PhoneNumber) {
				return apperr.NewValidation(field, "phone buttons need a phone number with country code")
			}
		default:
			return apperr.NewValidation(field, fmt.Sprintf("type %q must be QUICK_REPLY, URL or PHONE_NUMBER", b.Type))
		}
	}
	return nil
}

// Placeholders returns how many numbered variables body uses. Numbers must
// run from 1 without gaps; a variable may repeat.
func Placeholders(body string) (int, error) {
	seen := map[int]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(body, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return 0, apperr.NewValidation("body", fmt.Sprintf("invalid placeholder %s", m[0]))
		}
		seen[n] = true
	}
	nums := make([]int, 0, len(seen))
	for n := range seen {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for i, n := range nums {
		if n != i+1 {
			return 0, apperr.NewValidation("body", fmt.Sprintf("placeholder {{%d}} is missing", i+1))
		}
	}
	return len(nums), nil
}

func phoneNumber(s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if len(s) < 8 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type templateComponent struct {
	Type    string           `json:"type"`
	Format  string           `json:"format,omitempty"`
	Text    string           `json:"text,omitempty"`
	Example *componentSample `json:"example,omitempty"`
	Buttons []TemplateButton `json:"buttons,omitempty"`
}

type componentSample struct {
	BodyText [][]string `json:"body_text,omitempty"`
}

type createTemplateRequest struct {
	Name       string              `json:"name"`
	Category   string              `json:"category"`
	Language   string              `json:"language"`
	Components []templateComponent `json:"components"`
}

// components builds the platform component list for t.
func (t *Template) components() []templateComponent {
	var cs []templateComponent
	if t.Header != "" {
		cs = append(cs, templateComponent{Type: "HEADER", Format: "TEXT", Text: t.Header})
	}
	body := templateComponent{Type: "BODY", Text: t.Body}
	if n, _ := Placeholders(t.Body); n > 0 {
		body.Example = &componentSample{BodyText: [][]string{t.Examples[:n]}}
	}
	cs = append(cs, body)
	if t.Footer != "" {
		cs = append(cs, templateComponent{Type: "FOOTER", Text: t.Footer})
	}
	if len(t.Buttons) > 0 {
		cs = append(cs, templateComponent{Type: "BUTTONS", Buttons: t.Buttons})
	}
	return cs
}

// TemplateStatus is the platform's view of a registered template.
type TemplateStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

// TemplateRecorder tracks template submissions locally.
type TemplateRecorder interface {
	Save(ctx context.Context, t *models.TemplateSubmission) error
}

// TemplateClientOpts holds parameters for creating a TemplateClient.
type TemplateClientOpts struct {
	Platform  *gateway.Client // authenticated chat platform API
	AccountID string
	Recorder  TemplateRecorder // optional
	Logger    zerolog.Logger
}

// TemplateClient registers and lists chat templates. It does not wait for
// approval; review happens on the platform and is observed by re-listing.
type TemplateClient struct {
	platform  *gateway.Client
	accountID string
	recorder  TemplateRecorder
	log       zerolog.Logger
}

// NewTemplateClient creates a TemplateClient.
func NewTemplateClient(opts TemplateClientOpts) (*TemplateClient, error) {
	if opts.Platform == nil {
		return nil, fmt.Errorf("channel: templates: platform client is required")
	}
	if opts.AccountID == "" {
		return nil, fmt.Errorf("channel: templates: account id is required")
	}
	return &TemplateClient{
		platform:  opts.Platform,
		accountID: opts.AccountID,
		recorder:  opts.Recorder,
		log:       opts.Logger.With().Str("component", "channel.templates").Logger(),
	}, nil
}

func (c *TemplateClient) path() string {
	return "/" + url.PathEscape(c.accountID) + "/message_templates"
}

// Create validates t and submits it for review.
func (c *TemplateClient) Create(ctx context.Context, t Template) (*TemplateStatus, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	req := createTemplateRequest{
		Name:       t.Name,
		Category:   t.Category,
		Language:   t.Language,
		Components: t.components(),
	}
	var resp struct {
		ID       gateway.FlexString `json:"id"`
		Status   string             `json:"status"`
		Category string             `json:"category"`
	}
	if err := c.platform.PostJSON(ctx, c.path(), req, &resp); err != nil {
		return nil, fmt.Errorf("channel: templates: create %s: %w", t.Name, err)
	}
	st := &TemplateStatus{
		ID:       resp.ID.String(),
		Name:     t.Name,
		Language: t.Language,
		Category: resp.Category,
		Status:   resp.Status,
	}
	if st.Status == "" {
		st.Status = TemplatePending
	}
	if st.Category == "" {
		st.Category = t.Category
	}
	c.log.Info().Str("template", t.Name).Str("status", st.Status).Msg("template submitted for review")
	c.record(ctx, *st)
	return st, nil
}

// List returns every template registered on the account.
func (c *TemplateClient) List(ctx context.Context) ([]TemplateStatus, error) {
	var out []TemplateStatus
	next := c.path() + "?fields=id,name,language,category,status&limit=100"
	seen := make(map[string]bool)
	for next != "" {
		if seen[next] || len(seen) == maxTemplatePages {
			return nil, &apperr.TransportError{
				Op:      "GET " + c.path(),
				Message: fmt.Sprintf("template listing did not end after %d pages", len(seen)),
			}
		}
		seen[next] = true
		var resp struct {
			Data []struct {
				ID       gateway.FlexString `json:"id"`
				Name     string             `json:"name"`
				Language string             `json:"language"`
				Category string             `json:"category"`
				Status   string             `json:"status"`
			} `json:"data"`
			Paging struct {
				Next string `json:"next"`
			} `json:"paging"`
		}
		if err := c.platform.GetJSON(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("channel: templates: list: %w", err)
		}
		for _, d := range resp.Data {
			out = append(out, TemplateStatus{
				ID:       d.ID.String(),
				Name:     d.Name,
				Language: d.Language,
				Category: d.Category,
				Status:   d.Status,
			})
		}
		next = resp.Paging.Next
	}
	for _, st := range out {
		c.record(ctx, st)
	}
	return out, nil
}

func (c *TemplateClient) record(ctx context.Context, st TemplateStatus) {
	if c.recorder == nil {
		return
	}
	err := c.recorder.Save(ctx, &models.TemplateSubmission{
		Name:       st.Name,
		Language:   st.Language,
		Category:   st.Category,
		PlatformID: st.ID,
		Status:     st.Status,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("template", st.Name).Msg("template status not saved")
	}
}
