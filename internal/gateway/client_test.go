package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/apperr"
)

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/", Token: token})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	if err == nil || !strings.Contains(err.Error(), "base url is required") {
		t.Errorf("err = %v, want base url error", err)
	}
}

func TestPostJSON_SendsBodyAndHeaders(t *testing.T) {
	var gotAuth, gotReqID, gotCT, gotPath string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		gotCT = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	}, "secret")

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.PostJSON(context.Background(), "campaigns/sms/broadcast", map[string]any{"message": "hi"}, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
	if gotPath != "/campaigns/sms/broadcast" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret")
	}
	if gotReqID == "" {
		t.Error("X-Request-ID not set")
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q", gotCT)
	}
	if gotBody["message"] != "hi" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestPostJSON_EmptyResponseOK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}, "")
	var out map[string]any
	if err := c.PostJSON(context.Background(), "/x", struct{}{}, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
}

func TestNoTokenNoAuthHeader(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}, "")
	var out []any
	if err := c.GetJSON(context.Background(), "/list", &out); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestNon2xx_TransportError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message field", 400, `{"message":"csv invalido"}`, "csv invalido"},
		{"error string", 500, `{"error":"boom"}`, "boom"},
		{"nested error", 401, `{"error":{"message":"token expired","code":190}}`, "token expired"},
		{"plain text", 502, "  upstream down \n", "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, "")
			err := c.GetJSON(context.Background(), "/api/history", nil)
			var te *apperr.TransportError
			if !errors.As(err, &te) {
				t.Fatalf("err = %v, want TransportError", err)
			}
			if te.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", te.StatusCode, tt.status)
			}
			if te.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", te.Message, tt.wantMsg)
			}
			if te.Op != "GET /api/history" {
				t.Errorf("Op = %q", te.Op)
			}
		})
	}
}

func TestNetworkFailure_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	err = c.GetJSON(context.Background(), "/api/sessions", nil)
	var te *apperr.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", te.StatusCode)
	}
}

func TestDecodeFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}, "")
	var out []string
	err := c.GetJSON(context.Background(), "/x", &out)
	if !apperr.IsTransport(err) {
		t.Errorf("err = %v, want transport error", err)
	}
}

func TestPostMultipart(t *testing.T) {
	var fields map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		fields = map[string]string{"message": r.FormValue("message")}
		f, _, err := r.FormFile("csv")
		if err == nil {
			data, _ := io.ReadAll(f)
			fields["csv"] = string(data)
		}
		w.Write([]byte(`{"success":true,"campaignId":"wa_9"}`))
	}, "")

	var out struct {
		CampaignID string `json:"campaignId"`
	}
	err := c.PostMultipart(context.Background(), "/api/send-campaign", func(mw *multipart.Writer) error {
		if err := mw.WriteField("message", "hola"); err != nil {
			return err
		}
		w, err := mw.CreateFormFile("csv", "l.csv")
		if err != nil {
			return err
		}
		_, err = w.Write([]byte("phone\n1\n"))
		return err
	}, &out)
	if err != nil {
		t.Fatalf("PostMultipart: %v", err)
	}
	if out.CampaignID != "wa_9" {
		t.Errorf("CampaignID = %q", out.CampaignID)
	}
	if fields["message"] != "hola" || fields["csv"] != "phone\n1\n" {
		t.Errorf("fields = %v", fields)
	}
}

func TestPostMultipart_BuildError(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true }, "")
	err := c.PostMultipart(context.Background(), "/x", func(*multipart.Writer) error {
		return errors.New("bad part")
	}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Error("request sent despite build error")
	}
}

func TestGetRaw_AbsoluteURL(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("phone,status\n1,sent\n"))
	}))
	defer other.Close()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("base server should not be hit")
	}, "")
	data, err := c.GetRaw(context.Background(), other.URL+"/api/download-report/report_1.csv")
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if !strings.HasPrefix(string(data), "phone,status") {
		t.Errorf("data = %q", data)
	}
}

func TestRateLimit_ContextCancelled(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1", RatePerSec: 0.001})
	if err != nil {
		t.Fatal(err)
	}
	// First request consumes the burst token.
	c.limiter.Allow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.GetJSON(ctx, "/x", nil)
	if !apperr.IsTransport(err) {
		t.Errorf("err = %v, want transport error", err)
	}
}
