package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
)

// DefaultSyncInterval is how often RunSync reconciles with the gateway.
const DefaultSyncInterval = 30 * time.Second

// ManagerOpts holds parameters for creating a Manager.
type ManagerOpts struct {
	Remote   Remote
	Registry *Registry // defaults to a fresh registry
	Logger   zerolog.Logger
}

// Manager drives chat-line state transitions against the gateway. It
// never retries a failed remote call; the error is returned as is.
type Manager struct {
	remote Remote
	reg    *Registry
	log    zerolog.Logger
	now    func() time.Time
}

// NewManager creates a Manager. The manager is unusable until Init.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Remote == nil {
		return nil, fmt.Errorf("session: manager: remote is required")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	return &Manager{
		remote: opts.Remote,
		reg:    reg,
		log:    opts.Logger.With().Str("component", "session").Logger(),
		now:    time.Now,
	}, nil
}

// Init seeds the registry from the gateway's active-line listing. Every
// listed line starts out Connected and verified.
func (m *Manager) Init(ctx context.Context) error {
	lines, err := m.remote.ActiveLines(ctx)
	if err != nil {
		return fmt.Errorf("session: init: %w", err)
	}
	now := m.now()
	seed := make([]Session, 0, len(lines))
	for _, name := range lines {
		seed = append(seed, Session{Name: name, State: Connected, Verified: true, UpdatedAt: now})
	}
	m.reg.Init(seed)
	m.log.Info().Int("lines", len(seed)).Msg("session registry initialized")
	return nil
}

// Dispose releases the registry.
func (m *Manager) Dispose() {
	m.reg.Dispose()
	m.log.Debug().Msg("session registry disposed")
}

// Initiate starts linking a device to name. Initiating a line that is
// already Connected returns it unchanged without contacting the gateway.
// A Pending line may be initiated again to obtain a fresh credential.
func (m *Manager) Initiate(ctx context.Context, name string, method Method, phone string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, apperr.NewValidation("sessionName", "a line name is required")
	}
	switch method {
	case MethodQR:
		phone = ""
	case MethodPairingCode:
		phone = strings.TrimPrefix(strings.TrimSpace(phone), "+")
		if !digits(phone) {
			return Session{}, apperr.NewValidation("phoneNumber", "pairing by code needs the line's phone number with country code")
		}
	default:
		return Session{}, apperr.NewValidation("method", fmt.Sprintf("unknown link method %q", method))
	}
	if !m.reg.Live() {
		return Session{}, ErrNotInitialized
	}
	if s, ok := m.reg.Get(name); ok && s.State == Connected {
		return s, nil
	}

	res, err := m.remote.Start(ctx, StartRequest{SessionName: name, Method: method, PhoneNumber: phone})
	if err != nil {
		m.log.Warn().Err(err).Str("session", name).Msg("initiate failed")
		return Session{}, fmt.Errorf("session: initiate %s: %w", name, err)
	}

	next := Session{Name: name, Phone: phone, UpdatedAt: m.now()}
	switch res.Type {
	case ResultConnected:
		next.State = Connected
		next.Verified = true
	case ResultQR, ResultCode:
		if res.Data == "" {
			return Session{}, &apperr.TransportError{Op: "POST " + startSessionPath, Message: "gateway returned no " + res.Type + " credential"}
		}
		next.State = Pending
		next.CredentialKind = res.Type
		next.Credential = res.Data
	default:
		return Session{}, &apperr.TransportError{Op: "POST " + startSessionPath, Message: fmt.Sprintf("unexpected start result type %q", res.Type)}
	}

	err = m.reg.update(func(sessions map[string]*Session) error {
		if cur, ok := sessions[name]; ok && cur.State == Connected {
			next = *cur
			return nil
		}
		sessions[name] = &next
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	m.log.Info().Str("session", name).Str("state", string(next.State)).Str("method", string(method)).Msg("session initiated")
	return next, nil
}

// AcknowledgeManualConfirmation moves a Pending line to Connected on the
// operator's word that the scan or code entry succeeded. The gateway is not
// consulted; the line stays unverified until a listing includes it, and a
// failure reported by the line itself is treated as a desync.
func (m *Manager) AcknowledgeManualConfirmation(name string) (Session, error) {
	var out Session
	err := m.reg.update(func(sessions map[string]*Session) error {
		s, ok := sessions[name]
		if !ok {
			return errUnknown(name)
		}
		switch s.State {
		case Connected:
		case Pending:
			s.State = Connected
			s.Verified = false
			s.Credential = ""
			s.CredentialKind = ""
			s.UpdatedAt = m.now()
		default:
			return apperr.NewValidation("session", fmt.Sprintf("line %q is %s; initiate it first", name, s.State))
		}
		out = *s
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	m.log.Info().Str("session", name).Bool("verified", out.Verified).Msg("session acknowledged")
	return out, nil
}

// Logout ends the line at the gateway and removes it locally. Callers are
// expected to have obtained operator confirmation: any in-flight campaign
// through the line is invalidated.
func (m *Manager) Logout(ctx context.Context, name string) error {
	if !m.reg.Live() {
		return ErrNotInitialized
	}
	if _, ok := m.reg.Get(name); !ok {
		return errUnknown(name)
	}
	if err := m.remote.Logout(ctx, name); err != nil {
		return fmt.Errorf("session: logout %s: %w", name, err)
	}
	err := m.reg.update(func(sessions map[string]*Session) error {
		delete(sessions, name)
		return nil
	})
	if err != nil {
		return err
	}
	m.log.Info().Str("session", name).Msg("session logged out")
	return nil
}

// Sync reconciles the registry with the gateway's active-line listing.
// Listed lines become verified Connected. A verified line missing from the
// listing failed its health probe and is dropped. Unverified lines are left
// alone.
func (m *Manager) Sync(ctx context.Context) error {
	lines, err := m.remote.ActiveLines(ctx)
	if err != nil {
		return fmt.Errorf("session: sync: %w", err)
	}
	listed := make(map[string]bool, len(lines))
	for _, l := range lines {
		listed[l] = true
	}
	now := m.now()
	var added, promoted, dropped int
	err = m.reg.update(func(sessions map[string]*Session) error {
		for name := range listed {
			s, ok := sessions[name]
			if !ok {
				sessions[name] = &Session{Name: name, State: Connected, Verified: true, UpdatedAt: now}
				added++
				continue
			}
			if s.State != Connected || !s.Verified {
				s.State = Connected
				s.Verified = true
				s.Credential = ""
				s.CredentialKind = ""
				s.UpdatedAt = now
				promoted++
			}
		}
		for name, s := range sessions {
			if s.State == Connected && s.Verified && !listed[name] {
				delete(sessions, name)
				dropped++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if added+promoted+dropped > 0 {
		m.log.Info().Int("added", added).Int("promoted", promoted).Int("dropped", dropped).Msg("sessions synced")
	}
	return nil
}

// RunSync calls Sync every interval until ctx is done. Sync errors are
// logged and the loop continues.
func (m *Manager) RunSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.reg.Live() {
				return
			}
			if err := m.Sync(ctx); err != nil && ctx.Err() == nil {
				m.log.Warn().Err(err).Msg("session sync failed")
			}
		}
	}
}

// Get returns the named line. Unknown lines are reported Disconnected.
func (m *Manager) Get(name string) Session {
	if s, ok := m.reg.Get(name); ok {
		return s
	}
	return Session{Name: name, State: Disconnected}
}

// List returns every known line.
func (m *Manager) List() []Session { return m.reg.List() }

// Active returns the names of Connected lines in name order.
func (m *Manager) Active() []string {
	var out []string
	for _, s := range m.reg.List() {
		if s.Active() {
			out = append(out, s.Name)
		}
	}
	return out
}

// HasActive reports whether any line is Connected.
func (m *Manager) HasActive() bool { return len(m.Active()) > 0 }

// MarkDesynced interprets a dispatch failure through name. If the line was
// connected only by manual acknowledgement it is reset to Disconnected and
// the failure is returned as a RemoteStateDesyncError; otherwise cause is
// returned unchanged.
func (m *Manager) MarkDesynced(name string, cause error) error {
	desynced := false
	_ = m.reg.update(func(sessions map[string]*Session) error {
		if s, ok := sessions[name]; ok && s.State == Connected && !s.Verified {
			delete(sessions, name)
			desynced = true
		}
		return nil
	})
	if !desynced {
		return cause
	}
	m.log.Warn().Err(cause).Str("session", name).Msg("acknowledged line is not connected at the gateway")
	return &apperr.RemoteStateDesyncError{Session: name, Err: cause}
}

func digits(s string) bool {
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
