package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/gateway"
)

// source is one channel's report backend.
type source interface {
	list(ctx context.Context) ([]campaign.Campaign, error)
	// report builds the campaign report. listed is the cached list entry,
	// or nil.
	report(ctx context.Context, id string, listed *campaign.Campaign) (*Report, error)
	download(ctx context.Context, id string) ([]byte, error)
}

// logSource serves channels whose backend exposes per-recipient logs.
type logSource struct {
	ch     campaign.Channel
	client *gateway.Client
}

type listEntry struct {
	ID            gateway.FlexString `json:"id"`
	Name          string             `json:"name"`
	Date          string             `json:"date"`
	TotalMessages gateway.FlexString `json:"totalMessages"`
	Status        string             `json:"status"`
}

func (s *logSource) list(ctx context.Context) ([]campaign.Campaign, error) {
	path := "/campaigns/" + string(s.ch) + "/list"
	raw, err := s.client.GetRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	var entries []listEntry
	if err := decodeList(raw, &entries); err != nil {
		return nil, &apperr.TransportError{Op: "GET " + path, Message: "malformed campaign list", Err: err}
	}
	out := make([]campaign.Campaign, 0, len(entries))
	for _, e := range entries {
		out = append(out, campaign.Campaign{
			ID:             e.ID.String(),
			Channel:        s.ch,
			Name:           e.Name,
			CreatedAt:      parseDate(e.Date),
			RecipientCount: atoi(e.TotalMessages),
			Status:         e.Status,
		})
	}
	return out, nil
}

type reportResponse struct {
	Summary struct {
		Sent   gateway.FlexString `json:"sent"`
		Failed gateway.FlexString `json:"failed"`
	} `json:"summary"`
	Logs []struct {
		ID           gateway.FlexString `json:"id"`
		Phone        string             `json:"phone"`
		Email        string             `json:"email"`
		Status       string             `json:"status"`
		ErrorMessage string             `json:"errorMessage"`
		CreatedAt    string             `json:"createdAt"`
	} `json:"logs"`
}

func (s *logSource) report(ctx context.Context, id string, _ *campaign.Campaign) (*Report, error) {
	path := "/campaigns/" + string(s.ch) + "/report/" + url.PathEscape(id)
	var resp reportResponse
	if err := s.client.GetJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	r := &Report{Channel: s.ch, CampaignID: id, Logs: make([]LogEntry, 0, len(resp.Logs))}
	for _, l := range resp.Logs {
		recipient := l.Phone
		if recipient == "" {
			recipient = l.Email
		}
		r.Logs = append(r.Logs, LogEntry{
			ID:        l.ID.String(),
			Recipient: recipient,
			Status:    l.Status,
			Error:     l.ErrorMessage,
			CreatedAt: parseDate(l.CreatedAt),
		})
	}
	if len(r.Logs) > 0 {
		r.Summary = summarize(r.Logs)
	} else {
		r.Summary = NewSummary(atoi(resp.Summary.Sent), atoi(resp.Summary.Failed))
	}
	return r, nil
}

func (s *logSource) download(context.Context, string) ([]byte, error) {
	return nil, apperr.NewValidation("channel", fmt.Sprintf("%s reports carry per-recipient logs; there is no file to download", s.ch))
}

// counterSource serves the chat-line gateway, whose history carries only
// aggregate counters and a downloadable detail file.
type counterSource struct {
	client *gateway.Client
}

const (
	historyPath  = "/api/history"
	downloadPath = "/api/download-report/"
)

type historyEntry struct {
	ID     gateway.FlexString `json:"id"`
	Name   string             `json:"name"`
	Date   string             `json:"date"`
	Total  gateway.FlexString `json:"total"`
	Sent   gateway.FlexString `json:"sent"`
	Failed gateway.FlexString `json:"failed"`
	Status string             `json:"status"`
}

func (s *counterSource) list(ctx context.Context) ([]campaign.Campaign, error) {
	raw, err := s.client.GetRaw(ctx, historyPath)
	if err != nil {
		return nil, err
	}
	var entries []historyEntry
	if err := decodeList(raw, &entries); err != nil {
		return nil, &apperr.TransportError{Op: "GET " + historyPath, Message: "malformed campaign history", Err: err}
	}
	out := make([]campaign.Campaign, 0, len(entries))
	for _, e := range entries {
		out = append(out, campaign.Campaign{
			ID:             e.ID.String(),
			Channel:        campaign.ChatLine,
			Name:           e.Name,
			CreatedAt:      parseDate(e.Date),
			RecipientCount: atoi(e.Total),
			Sent:           atoi(e.Sent),
			Failed:         atoi(e.Failed),
			Status:         e.Status,
		})
	}
	return out, nil
}

func (s *counterSource) report(ctx context.Context, id string, listed *campaign.Campaign) (*Report, error) {
	if listed == nil {
		all, err := s.list(ctx)
		if err != nil {
			return nil, err
		}
		for i := range all {
			if all[i].ID == id {
				listed = &all[i]
				break
			}
		}
		if listed == nil {
			return nil, apperr.NewValidation("id", fmt.Sprintf("campaign %q is not in the chat-line history", id))
		}
	}
	return &Report{
		Channel:     campaign.ChatLine,
		CampaignID:  id,
		Summary:     NewSummary(listed.Sent, listed.Failed),
		Logs:        []LogEntry{},
		DownloadRef: DownloadRef(id),
	}, nil
}

func (s *counterSource) download(ctx context.Context, id string) ([]byte, error) {
	return s.client.GetRaw(ctx, downloadPath+url.PathEscape(DownloadRef(id)))
}

// decodeList accepts a bare JSON array or an object wrapping it under
// data, history or campaigns.
func decodeList(raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, out)
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return err
	}
	for _, key := range []string{"data", "history", "campaigns"} {
		if v, ok := wrapped[key]; ok {
			return json.Unmarshal(v, out)
		}
	}
	return fmt.Errorf("no campaign list in response")
}
