package session

import (
	"context"
	"fmt"

	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/gateway"
)

const (
	startSessionPath  = "/api/start-session"
	logoutSessionPath = "/api/logout-session"
	listSessionsPath  = "/api/sessions"
)

// Start result types reported by the gateway.
const (
	ResultQR        = "qr"
	ResultCode      = "code"
	ResultConnected = "connected"
)

// StartRequest asks the gateway to link a device to a named line.
type StartRequest struct {
	SessionName string `json:"sessionName"`
	Method      Method `json:"method"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// StartResult is the gateway's answer to StartRequest. Data holds the QR
// image payload or the pairing code, depending on Type.
type StartResult struct {
	Success bool   `json:"success"`
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Remote is the session-control surface of the chat-line gateway.
type Remote interface {
	Start(ctx context.Context, req StartRequest) (*StartResult, error)
	Logout(ctx context.Context, name string) error
	ActiveLines(ctx context.Context) ([]string, error)
}

// GatewayRemote implements Remote over the gateway's JSON API.
type GatewayRemote struct {
	client *gateway.Client
}

// NewGatewayRemote creates a GatewayRemote.
func NewGatewayRemote(client *gateway.Client) *GatewayRemote {
	return &GatewayRemote{client: client}
}

// Start implements Remote.
func (g *GatewayRemote) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	var res StartResult
	if err := g.client.PostJSON(ctx, startSessionPath, req, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, refused("POST "+startSessionPath, res.Message)
	}
	return &res, nil
}

// Logout implements Remote.
func (g *GatewayRemote) Logout(ctx context.Context, name string) error {
	var res struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	body := map[string]string{"sessionName": name}
	if err := g.client.PostJSON(ctx, logoutSessionPath, body, &res); err != nil {
		return err
	}
	if !res.Success {
		return refused("POST "+logoutSessionPath, res.Message)
	}
	return nil
}

// ActiveLines implements Remote.
func (g *GatewayRemote) ActiveLines(ctx context.Context) ([]string, error) {
	var res struct {
		Success     bool     `json:"success"`
		ActiveLines []string `json:"activeLines"`
		Message     string   `json:"message"`
	}
	if err := g.client.GetJSON(ctx, listSessionsPath, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, refused("GET "+listSessionsPath, res.Message)
	}
	return res.ActiveLines, nil
}

func refused(op, msg string) error {
	if msg == "" {
		msg = "gateway reported failure"
	}
	return &apperr.TransportError{Op: op, Message: msg}
}

var _ Remote = (*GatewayRemote)(nil)

// errUnknown reports a line the manager does not track.
func errUnknown(name string) error {
	return apperr.NewValidation("session", fmt.Sprintf("unknown chat line %q", name))
}
