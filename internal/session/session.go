// Package session owns the lifecycle of linked chat-line devices. Each line
// moves Disconnected -> Pending -> Connected through an explicit initiate
// call, and back to Disconnected only through logout or a failed health
// probe.
package session

import (
	"fmt"
	"time"
)

// State is a chat line's connection state.
type State string

const (
	Disconnected State = "disconnected"
	Pending      State = "pending"
	Connected    State = "connected"
)

// Method is how a device is linked to a line.
type Method string

const (
	MethodQR          Method = "qr"
	MethodPairingCode Method = "pairing-code"
)

// ParseMethod accepts the method names used on the command line and in the
// operator API.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "qr", "QR":
		return MethodQR, nil
	case "pairing-code", "code", "pairing":
		return MethodPairingCode, nil
	}
	return "", fmt.Errorf("session: unknown link method %q (want qr or pairing-code)", s)
}

// Credential kinds returned while a line is Pending.
const (
	CredentialQR   = "qr"
	CredentialCode = "code"
)

// Session is a snapshot of one named chat line.
type Session struct {
	Name  string `json:"name"`
	State State  `json:"state"`
	Phone string `json:"phoneNumber,omitempty"`

	// CredentialKind and Credential are set only while Pending: a QR image
	// payload or a short pairing code to show the operator.
	CredentialKind string `json:"credentialKind,omitempty"`
	Credential     string `json:"credential,omitempty"`

	// Verified is true when the gateway itself reported the line connected.
	// A line connected through AcknowledgeManualConfirmation stays
	// unverified until a listing confirms it.
	Verified bool `json:"verified"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Active reports whether campaigns can be sent through the line.
func (s Session) Active() bool { return s.State == Connected }
