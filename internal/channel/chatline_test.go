package channel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
	"github.com/zulandar/switchboard/internal/batch"
	"github.com/zulandar/switchboard/internal/gateway"
)

func newChatAdapter(t *testing.T, gw, backend *gateway.Client, rec Recorder) *ChatLineAdapter {
	t.Helper()
	a, err := NewChatLineAdapter(ChatLineOpts{Gateway: gw, Backend: backend, Recorder: rec, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewChatLineAdapter: %v", err)
	}
	a.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestNewChatLineAdapter_Required(t *testing.T) {
	if _, err := NewChatLineAdapter(ChatLineOpts{Recorder: &memRecorder{}}); err == nil {
		t.Error("expected error without gateway")
	}
	_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := NewChatLineAdapter(ChatLineOpts{Gateway: client}); err == nil {
		t.Error("expected error without recorder")
	}
}

func TestChatLine_SendCampaign(t *testing.T) {
	fields := map[string]string{}
	var imageType string
	_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sendCampaignPath {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		fields["message"] = r.FormValue("message")
		fields["sessionName"] = r.FormValue("sessionName")
		if f, _, err := r.FormFile("csv"); err == nil {
			data, _ := io.ReadAll(f)
			fields["csv"] = string(data)
		}
		if _, hdr, err := r.FormFile("image"); err == nil {
			imageType = hdr.Header.Get("Content-Type")
		}
		w.Write([]byte(`{"success":true,"campaignId":"wa_1","message":"Campaña iniciada"}`))
	})
	rec := &memRecorder{}
	a := newChatAdapter(t, client, nil, rec)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	p, err := a.Prepare(ChatDraft{
		Session:  "linea1",
		Subject:  "Cierre",
		Message:  "¡Te esperamos en la plaza! 🎉",
		Batch:    phoneBatch(),
		Image:    &batch.File{Name: "flyer.png", Data: png},
		EventTag: "cierre-2026",
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	rcpt, err := a.Submit(context.Background(), p)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if fields["message"] != "¡Te esperamos en la plaza! 🎉" {
		t.Errorf("message = %q (chat messages are not sanitized)", fields["message"])
	}
	if fields["sessionName"] != "linea1" {
		t.Errorf("sessionName = %q", fields["sessionName"])
	}
	if fields["csv"] != threeRows {
		t.Errorf("csv = %q", fields["csv"])
	}
	if imageType != "image/png" {
		t.Errorf("image Content-Type = %q", imageType)
	}
	if rcpt.CampaignID != "wa_1" || !rcpt.Persisted {
		t.Errorf("receipt = %+v", rcpt)
	}

	if len(rec.records) != 1 {
		t.Fatalf("records = %d, want 1", len(rec.records))
	}
	r := rec.records[0]
	if r.CampaignID != "wa_1" || r.Channel != "chatline" || r.Subject != "Cierre" ||
		r.Total != 3 || r.EventTag != "cierre-2026" || r.SessionName != "linea1" {
		t.Errorf("record = %+v", r)
	}
}

func TestChatLine_GatewayRejects(t *testing.T) {
	_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"La sesión linea1 no está conectada"}`))
	})
	rec := &memRecorder{}
	a := newChatAdapter(t, client, nil, rec)
	p, err := a.Prepare(ChatDraft{Session: "linea1", Message: "hola", Batch: phoneBatch()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.Submit(context.Background(), p)
	var te *apperr.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if !strings.Contains(te.Message, "no está conectada") {
		t.Errorf("Message = %q", te.Message)
	}
	var se *SessionError
	if !errors.As(err, &se) || se.Session != "linea1" {
		t.Errorf("err = %v, want SessionError for linea1", err)
	}
	if len(rec.records) != 0 {
		t.Error("rejected campaign must not be recorded")
	}
}

func TestChatLine_RecorderFailureIsWarning(t *testing.T) {
	_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"campaignId":"wa_2"}`))
	})
	a := newChatAdapter(t, client, nil, &memRecorder{err: errStoreDown})
	p, _ := a.Prepare(ChatDraft{Session: "linea1", Message: "hola", Batch: phoneBatch()})
	rcpt, err := a.Submit(context.Background(), p)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rcpt.Persisted {
		t.Error("Persisted = true after recorder failure")
	}
	if !rcpt.RecordAttempted {
		t.Error("RecordAttempted = false; caller would write the record again")
	}
	if !apperr.HasWarning(rcpt.Warnings, apperr.WarnMetadataNotSaved) {
		t.Errorf("Warnings = %v", rcpt.Warnings)
	}
}

func TestChatLine_SubmitWithoutSession(t *testing.T) {
	gw, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	a := newChatAdapter(t, client, nil, &memRecorder{})
	p, err := a.Prepare(ChatDraft{Message: "hola", Batch: phoneBatch()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Submit(context.Background(), p); !apperr.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
	if gw.count() != 0 {
		t.Error("gateway called without a session")
	}
}

func TestChatLine_PrepareValidation(t *testing.T) {
	a := newChatAdapter(t, mustClient(t), nil, &memRecorder{})
	tests := []struct {
		name  string
		draft Draft
	}{
		{"empty message", ChatDraft{Session: "l", Message: " ", Batch: phoneBatch()}},
		{"no batch", ChatDraft{Session: "l", Message: "hola"}},
		{"image not image", ChatDraft{Session: "l", Message: "hola", Batch: phoneBatch(), Image: &batch.File{Name: "x.png", Data: []byte("text")}}},
		{"template without name", TemplateBroadcastDraft{Session: "l", Batch: phoneBatch()}},
		{"template bad media", TemplateBroadcastDraft{Session: "l", TemplateName: "promo", MediaURL: "file:///etc/passwd", Batch: phoneBatch()}},
		{"template no batch", TemplateBroadcastDraft{Session: "l", TemplateName: "promo"}},
		{"wrong draft", SMSDraft{Message: "hola"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Prepare(tt.draft); !apperr.IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestChatLine_TemplateBroadcast(t *testing.T) {
	fields := map[string]string{}
	_, backend := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultUploadPath {
			t.Errorf("path = %q", r.URL.Path)
		}
		r.ParseMultipartForm(1 << 20)
		for _, k := range []string{"templateName", "language", "mediaUrl", "sessionName"} {
			fields[k] = r.FormValue(k)
		}
		w.Write([]byte(`{"success":true,"results":[
			{"phone":"573001112233","status":"sent"},
			{"phone":"573004445566","status":"failed","error":"not on platform"},
			{"phone":"573007778899","status":"accepted"}]}`))
	})
	rec := &memRecorder{}
	a := newChatAdapter(t, mustClient(t), backend, rec)

	p, err := a.Prepare(TemplateBroadcastDraft{
		Session:      "linea2",
		TemplateName: "promo_cierre",
		MediaURL:     "https://cdn.example.com/flyer.jpg",
		Batch:        phoneBatch(),
		EventTag:     "cierre",
	})
	if err != nil {
		t.Fatal(err)
	}
	rcpt, err := a.Submit(context.Background(), p)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if fields["templateName"] != "promo_cierre" || fields["language"] != "es" ||
		fields["mediaUrl"] != "https://cdn.example.com/flyer.jpg" || fields["sessionName"] != "linea2" {
		t.Errorf("fields = %v", fields)
	}
	if rcpt.Sent != 2 || rcpt.Failed != 1 {
		t.Errorf("sent/failed = %d/%d, want 2/1", rcpt.Sent, rcpt.Failed)
	}
	if !rcpt.Provisional || !strings.HasPrefix(rcpt.CampaignID, "tpl-") {
		t.Errorf("CampaignID = %q, want provisional tpl- id", rcpt.CampaignID)
	}
	r := rec.records[0]
	if r.Subject != "promo_cierre" || r.Sent != 2 || r.Failed != 1 || r.Total != 3 || !r.Provisional {
		t.Errorf("record = %+v", r)
	}
}

func TestChatLine_TemplateRejectionIsNotSessionError(t *testing.T) {
	gw, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	_, backend := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"message":"template promo_x is not APPROVED"}`))
	})
	a := newChatAdapter(t, client, backend, &memRecorder{})
	p, err := a.Prepare(TemplateBroadcastDraft{Session: "linea1", TemplateName: "promo_x", Batch: phoneBatch()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.Submit(context.Background(), p)
	if !apperr.IsTransport(err) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	var se *SessionError
	if errors.As(err, &se) {
		t.Errorf("template rejection wrapped as SessionError: %v", err)
	}
	if gw.count() != 0 {
		t.Errorf("session gateway hits = %d, want 0", gw.count())
	}
}

func TestChatLine_TemplateBroadcastWithoutBackend(t *testing.T) {
	a := newChatAdapter(t, mustClient(t), nil, &memRecorder{})
	p, err := a.Prepare(TemplateBroadcastDraft{Session: "l", TemplateName: "promo", Batch: phoneBatch()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Submit(context.Background(), p); err == nil {
		t.Error("expected error without backend client")
	}
}

func TestRecipientResult_Failed(t *testing.T) {
	tests := []struct {
		r    RecipientResult
		want bool
	}{
		{RecipientResult{Status: "sent"}, false},
		{RecipientResult{Status: "FAILED"}, true},
		{RecipientResult{Status: "sent", Error: "x"}, true},
		{RecipientResult{Status: "rejected"}, true},
	}
	for _, tt := range tests {
		if got := tt.r.Failed(); got != tt.want {
			t.Errorf("%+v.Failed() = %v, want %v", tt.r, got, tt.want)
		}
	}
}

func mustClient(t *testing.T) *gateway.Client {
	t.Helper()
	_, c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})
	return c
}
