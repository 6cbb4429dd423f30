// Package campaign holds the channel and campaign types shared by the
// dispatcher, the channel adapters and the report aggregator.
package campaign

import (
	"fmt"
	"strings"
	"time"
)

// Channel identifies one of the three message transports.
type Channel string

const (
	TextMessage Channel = "sms"
	Email       Channel = "email"
	ChatLine    Channel = "chatline"
)

// Channels lists every channel in display order.
var Channels = []Channel{TextMessage, Email, ChatLine}

// ParseChannel maps user input to a Channel.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sms", "text", "textmessage":
		return TextMessage, nil
	case "email", "mail":
		return Email, nil
	case "chatline", "chat", "whatsapp", "wa":
		return ChatLine, nil
	}
	return "", fmt.Errorf("campaign: unknown channel %q (want sms, email or chatline)", s)
}

// StatusFinished is the terminal status reported by the gateways.
const StatusFinished = "Finalizado"

// Campaign is one submitted bulk-send job as known locally. ID is assigned by
// the backend; a campaign is never edited after submission, only refreshed
// from the remote listing.
type Campaign struct {
	ID             string    `json:"id"`
	Channel        Channel   `json:"channel"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"createdAt"`
	RecipientCount int       `json:"recipientCount"`
	Descriptor     string    `json:"contentDescriptor,omitempty"`

	// Counters are only known for channels that report them in the listing.
	Sent   int    `json:"sent,omitempty"`
	Failed int    `json:"failed,omitempty"`
	Status string `json:"status,omitempty"`

	// Provisional is set when the backend accepted the job without
	// returning an id; ID is then a local reference.
	Provisional bool `json:"provisional,omitempty"`
}

// Finished reports whether the gateway marked the campaign complete.
func (c Campaign) Finished() bool {
	return strings.EqualFold(c.Status, StatusFinished)
}
