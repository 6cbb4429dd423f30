// Package channel implements one adapter per message transport. An adapter
// validates and transforms a draft without touching the network (Prepare),
// then submits the prepared request to its gateway (Submit).
package channel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/campaign"
	"github.com/zulandar/switchboard/internal/models"
)

// Draft is a campaign as composed by its author.
type Draft interface {
	Channel() campaign.Channel
}

// Prepared is a validated draft ready for submission.
type Prepared struct {
	Channel        campaign.Channel
	RecipientCount int
	Descriptor     string
	Warnings       []apperr.Warning
	Fingerprint    string

	// Session is the chat line the campaign is sent through. Adapters for
	// other channels leave it empty.
	Session string

	request any
}

// Receipt is the gateway's acceptance of a submitted campaign.
type Receipt struct {
	CampaignID  string
	Provisional bool
	Message     string
	Sent        int
	Failed      int
	Warnings    []apperr.Warning
	// RecordAttempted is set when the adapter owns the campaign-metadata
	// record; Persisted reports whether that write succeeded. Either way the
	// caller must not write the record again.
	RecordAttempted bool
	Persisted       bool
}

// SessionError marks a submission failure reported by the chat line
// itself. Only these failures say anything about the line's connection;
// a backend rejecting a template does not.
type SessionError struct {
	Session string
	Err     error
}

func (e *SessionError) Error() string { return e.Err.Error() }

func (e *SessionError) Unwrap() error { return e.Err }

// Adapter is one channel's validation and submission logic.
type Adapter interface {
	Channel() campaign.Channel
	Prepare(d Draft) (*Prepared, error)
	Submit(ctx context.Context, p *Prepared) (*Receipt, error)
}

// Recorder persists campaign-metadata records.
type Recorder interface {
	Record(ctx context.Context, rec *models.CampaignRecord) error
}

// fingerprint hashes the parts that make two submissions the same campaign.
func fingerprint(ch campaign.Channel, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(ch))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func wrongDraft(ch campaign.Channel, d Draft) error {
	got := "nil"
	if d != nil {
		got = string(d.Channel())
	}
	return apperr.NewValidation("draft", "adapter "+string(ch)+" cannot prepare a "+got+" draft")
}
