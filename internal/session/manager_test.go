package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
)

// fakeRemote is a scripted Remote.
type fakeRemote struct {
	mu       sync.Mutex
	starts   []StartRequest
	logouts  []string
	lines    []string
	result   StartResult
	startErr error
	listErr  error
}

func (f *fakeRemote) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	res := f.result
	return &res, nil
}

func (f *fakeRemote) Logout(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, name)
	return nil
}

func (f *fakeRemote) ActiveLines(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.lines...), nil
}

func (f *fakeRemote) setLines(lines ...string) {
	f.mu.Lock()
	f.lines = lines
	f.mu.Unlock()
}

func (f *fakeRemote) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func newManager(t *testing.T, r *fakeRemote) *Manager {
	t.Helper()
	m, err := NewManager(ManagerOpts{Remote: r, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m
}

func TestNewManager_RequiresRemote(t *testing.T) {
	if _, err := NewManager(ManagerOpts{}); err == nil {
		t.Error("expected error without remote")
	}
}

func TestManager_InitSeedsVerifiedLines(t *testing.T) {
	m := newManager(t, &fakeRemote{lines: []string{"ventas", "soporte"}})
	if got := m.Active(); len(got) != 2 || got[0] != "soporte" || got[1] != "ventas" {
		t.Errorf("Active() = %v", got)
	}
	if s := m.Get("ventas"); !s.Verified {
		t.Error("seeded line should be verified")
	}
}

func TestManager_OperationsBeforeInit(t *testing.T) {
	m, _ := NewManager(ManagerOpts{Remote: &fakeRemote{}})
	if _, err := m.Initiate(context.Background(), "linea1", MethodQR, ""); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Initiate err = %v, want ErrNotInitialized", err)
	}
	if err := m.Sync(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Sync err = %v, want ErrNotInitialized", err)
	}
}

func TestManager_PairingCodeFlow(t *testing.T) {
	r := &fakeRemote{result: StartResult{Success: true, Type: ResultCode, Data: "K7WQ-9P2D"}}
	m := newManager(t, r)
	ctx := context.Background()

	s, err := m.Initiate(ctx, "linea1", MethodPairingCode, "573001234567")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if s.State != Pending || s.CredentialKind != CredentialCode || s.Credential != "K7WQ-9P2D" {
		t.Errorf("session = %+v, want pending with code", s)
	}
	if r.starts[0].PhoneNumber != "573001234567" || r.starts[0].Method != MethodPairingCode {
		t.Errorf("start request = %+v", r.starts[0])
	}
	if m.HasActive() {
		t.Error("pending line counted as active")
	}

	s, err = m.AcknowledgeManualConfirmation("linea1")
	if err != nil {
		t.Fatalf("AcknowledgeManualConfirmation: %v", err)
	}
	if s.State != Connected || s.Verified || s.Credential != "" {
		t.Errorf("session = %+v, want unverified connected", s)
	}
	if got := m.Active(); len(got) != 1 || got[0] != "linea1" {
		t.Errorf("Active() = %v, want [linea1]", got)
	}

	if err := m.Logout(ctx, "linea1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if m.Get("linea1").State != Disconnected {
		t.Error("line still known after logout")
	}
	if m.HasActive() {
		t.Error("Active() not empty after logout")
	}
	if len(r.logouts) != 1 {
		t.Errorf("logouts = %v", r.logouts)
	}
}

func TestManager_InitiateConnectedIsIdempotent(t *testing.T) {
	r := &fakeRemote{result: StartResult{Success: true, Type: ResultConnected}}
	m := newManager(t, r)
	ctx := context.Background()

	first, err := m.Initiate(ctx, "linea1", MethodQR, "")
	if err != nil {
		t.Fatal(err)
	}
	if first.State != Connected || !first.Verified {
		t.Fatalf("session = %+v", first)
	}
	r.result = StartResult{Success: true, Type: ResultQR, Data: "data:image/png;base64,AAAA"}
	again, err := m.Initiate(ctx, "linea1", MethodQR, "")
	if err != nil {
		t.Fatal(err)
	}
	if again.State != Connected || again.Credential != "" {
		t.Errorf("second initiate = %+v, want unchanged connected", again)
	}
	if r.startCount() != 1 {
		t.Errorf("gateway start calls = %d, want 1", r.startCount())
	}
	if len(m.List()) != 1 {
		t.Errorf("List() = %v", m.List())
	}
}

func TestManager_InitiatePendingRefreshesCredential(t *testing.T) {
	r := &fakeRemote{result: StartResult{Success: true, Type: ResultQR, Data: "qr-1"}}
	m := newManager(t, r)
	m.Initiate(context.Background(), "linea1", MethodQR, "")
	r.result.Data = "qr-2"
	s, err := m.Initiate(context.Background(), "linea1", MethodQR, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Credential != "qr-2" {
		t.Errorf("Credential = %q, want qr-2", s.Credential)
	}
}

func TestManager_InitiateValidation(t *testing.T) {
	r := &fakeRemote{}
	m := newManager(t, r)
	tests := []struct {
		name   string
		line   string
		method Method
		phone  string
	}{
		{"empty name", " ", MethodQR, ""},
		{"code without phone", "l", MethodPairingCode, ""},
		{"code with letters", "l", MethodPairingCode, "57300abc4567"},
		{"unknown method", "l", Method("sms"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Initiate(context.Background(), tt.line, tt.method, tt.phone); !apperr.IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
	if r.startCount() != 0 {
		t.Error("invalid initiate reached the gateway")
	}
}

func TestManager_InitiateTransportErrorSurfaced(t *testing.T) {
	r := &fakeRemote{startErr: &apperr.TransportError{Op: "POST /api/start-session", StatusCode: 503, Message: "gateway down"}}
	m := newManager(t, r)
	_, err := m.Initiate(context.Background(), "linea1", MethodQR, "")
	if !apperr.IsTransport(err) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if m.Get("linea1").State != Disconnected {
		t.Error("failed initiate left state behind")
	}
	if r.startCount() != 1 {
		t.Errorf("start calls = %d, want 1 (no retry)", r.startCount())
	}
}

func TestManager_InitiateMissingCredential(t *testing.T) {
	m := newManager(t, &fakeRemote{result: StartResult{Success: true, Type: ResultQR}})
	if _, err := m.Initiate(context.Background(), "linea1", MethodQR, ""); !apperr.IsTransport(err) {
		t.Errorf("err = %v, want TransportError", err)
	}
}

func TestManager_AcknowledgeRequiresPending(t *testing.T) {
	m := newManager(t, &fakeRemote{})
	if _, err := m.AcknowledgeManualConfirmation("nadie"); !apperr.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestManager_LogoutUnknown(t *testing.T) {
	r := &fakeRemote{}
	m := newManager(t, r)
	if err := m.Logout(context.Background(), "nadie"); !apperr.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
	if len(r.logouts) != 0 {
		t.Error("unknown line logout reached the gateway")
	}
}

func TestManager_Sync(t *testing.T) {
	r := &fakeRemote{lines: []string{"vieja"}, result: StartResult{Success: true, Type: ResultQR, Data: "qr"}}
	m := newManager(t, r)
	ctx := context.Background()

	m.Initiate(ctx, "pendiente", MethodQR, "")
	m.Initiate(ctx, "manual", MethodQR, "")
	m.AcknowledgeManualConfirmation("manual")

	r.setLines("pendiente", "nueva")
	if err := m.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if s := m.Get("pendiente"); s.State != Connected || !s.Verified {
		t.Errorf("pendiente = %+v, want verified connected", s)
	}
	if s := m.Get("nueva"); s.State != Connected || !s.Verified {
		t.Errorf("nueva = %+v, want verified connected", s)
	}
	if s := m.Get("vieja"); s.State != Disconnected {
		t.Errorf("vieja = %+v, want dropped", s)
	}
	if s := m.Get("manual"); s.State != Connected || s.Verified {
		t.Errorf("manual = %+v, want unverified connected kept", s)
	}
}

func TestManager_SyncErrorKeepsState(t *testing.T) {
	r := &fakeRemote{lines: []string{"ventas"}}
	m := newManager(t, r)
	r.listErr = errors.New("boom")
	if err := m.Sync(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !m.HasActive() {
		t.Error("failed sync dropped lines")
	}
}

func TestManager_MarkDesynced(t *testing.T) {
	r := &fakeRemote{lines: []string{"verificada"}, result: StartResult{Success: true, Type: ResultQR, Data: "qr"}}
	m := newManager(t, r)
	m.Initiate(context.Background(), "manual", MethodQR, "")
	m.AcknowledgeManualConfirmation("manual")

	cause := &apperr.TransportError{Op: "POST /api/send-campaign", Message: "session not connected"}

	err := m.MarkDesynced("manual", cause)
	var de *apperr.RemoteStateDesyncError
	if !errors.As(err, &de) || de.Session != "manual" {
		t.Fatalf("err = %v, want RemoteStateDesyncError for manual", err)
	}
	if !errors.Is(err, cause) {
		t.Error("desync error does not wrap the dispatch failure")
	}
	if m.Get("manual").State != Disconnected {
		t.Error("desynced line not reset")
	}

	if err := m.MarkDesynced("verificada", cause); err != cause {
		t.Errorf("verified line: err = %v, want cause unchanged", err)
	}
	if m.Get("verificada").State != Connected {
		t.Error("verified line was reset")
	}
}

func TestManager_RunSyncStopsOnCancel(t *testing.T) {
	r := &fakeRemote{}
	m := newManager(t, r)
	r.setLines("tarde")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSync(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !m.HasActive() {
		select {
		case <-deadline:
			t.Fatal("RunSync never synced")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunSync did not stop")
	}
}

func TestManager_Dispose(t *testing.T) {
	m := newManager(t, &fakeRemote{lines: []string{"ventas"}})
	m.Dispose()
	if m.HasActive() {
		t.Error("lines remain after Dispose")
	}
	if _, err := m.AcknowledgeManualConfirmation("ventas"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]Method{"qr": MethodQR, "code": MethodPairingCode, "pairing-code": MethodPairingCode} {
		got, err := ParseMethod(in)
		if err != nil || got != want {
			t.Errorf("ParseMethod(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMethod("telepathy"); err == nil {
		t.Error("expected error")
	}
}
