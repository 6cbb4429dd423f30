package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/notify/discord"
	"github.com/zulandar/switchboard/internal/notify/slack"
)

// fakeBackend records requests to a stand-in campaign backend.
type fakeBackend struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string][]byte
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{bodies: make(map[string][]byte)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.requests = append(fb.requests, r.Method+" "+r.URL.Path)
		fb.bodies[r.URL.Path] = body
		fb.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/campaigns/sms/broadcast":
			fmt.Fprint(w, `{"id": 77, "message": "queued"}`)
		case "/api/sessions":
			fmt.Fprint(w, `{"success": true, "activeLines": []}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBackend) seen() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.requests...)
}

// writeConfig writes a config pointing every endpoint at url and the store
// at a sqlite file in dir.
func writeConfig(t *testing.T, dir, url string) string {
	t.Helper()
	cfg := fmt.Sprintf(`backend:
  base_url: %s
chatline:
  base_url: %s
store:
  driver: sqlite
  path: %s
log:
  level: error
  format: json
`, url, url, filepath.Join(dir, "sb.db"))
	path := filepath.Join(dir, "switchboard.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCampaignSMS_EndToEnd(t *testing.T) {
	fb, srv := newFakeBackend(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL)
	csvPath := writeFile(t, dir, "clientes.csv", "phone,name\n5512345678,Ana\n5587654321,Luis\n")

	out, err := runCmd(t, "campaign", "sms", "-c", cfgPath, "--csv", csvPath, "--message", "Promoción de otoño")
	if err != nil {
		t.Fatalf("campaign sms: %v", err)
	}
	if !strings.Contains(out, "Campaign 77 accepted") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "Recipients: 2") {
		t.Errorf("output should report 2 recipients: %q", out)
	}

	var sent struct {
		Message string `json:"message"`
		CSVFile string `json:"csvFile"`
	}
	if err := json.Unmarshal(fb.bodies["/campaigns/sms/broadcast"], &sent); err != nil {
		t.Fatalf("decode sms request: %v", err)
	}
	if sent.Message != "Promocion de otono" {
		t.Errorf("message = %q, want sanitized text", sent.Message)
	}
	if !strings.HasPrefix(sent.CSVFile, "data:text/csv;base64,") {
		t.Errorf("csvFile = %.40q", sent.CSVFile)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	gormDB, err := db.Connect(cfg.Store)
	if err != nil {
		t.Fatal(err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	rec, err := db.NewCampaignStore(gormDB).Get(context.Background(), "sms", "77")
	if err != nil {
		t.Fatalf("campaign not recorded: %v", err)
	}
	if rec.Total != 2 {
		t.Errorf("recorded total = %d, want 2", rec.Total)
	}
}

func TestCampaignSMS_DryRunSkipsNetwork(t *testing.T) {
	fb, srv := newFakeBackend(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL)
	csvPath := writeFile(t, dir, "clientes.csv", "phone\n5512345678\n")

	out, err := runCmd(t, "campaign", "sms", "-c", cfgPath, "--csv", csvPath, "--message", "Hola", "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "Recipients: 1") {
		t.Errorf("output = %q", out)
	}
	if reqs := fb.seen(); len(reqs) != 0 {
		t.Errorf("dry run made requests: %v", reqs)
	}
}

func TestCampaignSMS_WrongFileType(t *testing.T) {
	fb, srv := newFakeBackend(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL)
	xlsPath := writeFile(t, dir, "clientes.xlsx", "not a csv")

	if _, err := runCmd(t, "campaign", "sms", "-c", cfgPath, "--csv", xlsPath, "--message", "Hola"); err == nil {
		t.Fatal("expected unsupported format error")
	}
	if reqs := fb.seen(); len(reqs) != 0 {
		t.Errorf("rejected file should not reach the backend: %v", reqs)
	}
}

func TestCampaignChat_NoConnectedLine(t *testing.T) {
	fb, srv := newFakeBackend(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL)
	csvPath := writeFile(t, dir, "clientes.csv", "phone\n5512345678\n")

	_, err := runCmd(t, "campaign", "chat", "-c", cfgPath, "--csv", csvPath, "--subject", "Cierre de mes", "--message", "Hola")
	if err == nil || !strings.Contains(err.Error(), "no chat line is connected") {
		t.Fatalf("err = %v", err)
	}
	for _, r := range fb.seen() {
		if r != "GET /api/sessions" {
			t.Errorf("unexpected request %s", r)
		}
	}
}

func TestDBMigrate(t *testing.T) {
	_, srv := newFakeBackend(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL)

	out, err := runCmd(t, "db", "migrate", "-c", cfgPath)
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	want := fmt.Sprintf("Migrated %d tables", len(db.AllModels()))
	if !strings.Contains(out, want) {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestTemplateList_NotConfigured(t *testing.T) {
	_, srv := newFakeBackend(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL)

	_, err := runCmd(t, "template", "list", "-c", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewNotifier(t *testing.T) {
	log := zerolog.Nop()
	tests := []struct {
		name    string
		cfg     config.NotifyConfig
		check   func(notify.Notifier) bool
		wantErr bool
	}{
		{"default log", config.NotifyConfig{}, func(n notify.Notifier) bool { _, ok := n.(*notify.LogNotifier); return ok }, false},
		{"slack", config.NotifyConfig{Platform: "slack", SlackBotToken: "xoxb-1", Channel: "C1"}, func(n notify.Notifier) bool { _, ok := n.(*slack.Notifier); return ok }, false},
		{"discord", config.NotifyConfig{Platform: "discord", DiscordBotToken: "abc", Channel: "1"}, func(n notify.Notifier) bool { _, ok := n.(*discord.Notifier); return ok }, false},
		{"slack and log", config.NotifyConfig{Platform: "slack, log", SlackBotToken: "xoxb-1", Channel: "C1"}, func(n notify.Notifier) bool {
			m, ok := n.(notify.Multi)
			return ok && len(m) == 2
		}, false},
		{"repeated platform", config.NotifyConfig{Platform: "log,log"}, func(n notify.Notifier) bool { _, ok := n.(*notify.LogNotifier); return ok }, false},
		{"slack without token", config.NotifyConfig{Platform: "slack"}, nil, true},
		{"unknown", config.NotifyConfig{Platform: "pager"}, nil, true},
		{"unknown in list", config.NotifyConfig{Platform: "log,pager"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := newNotifier(tt.cfg, log)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newNotifier: %v", err)
			}
			if !tt.check(n) {
				t.Errorf("notifier type = %T", n)
			}
		})
	}
}

func TestParseButtons(t *testing.T) {
	got, err := parseButtons([]string{"Ver oferta|https://example.com/oferta", "Llamar|https://example.com/c|#ff0000"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Label != "Ver oferta" || got[0].Color != "" || got[1].Color != "#ff0000" {
		t.Errorf("buttons = %+v", got)
	}
	if _, err := parseButtons([]string{"just a label"}); err == nil {
		t.Error("expected error for missing url")
	}
}

func TestTemplateButtons(t *testing.T) {
	got, err := templateButtons([]string{"Sí"}, []string{"Ver|https://example.com"}, []string{"Llamar|+525512345678"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("buttons = %+v", got)
	}
	if got[1].URL != "https://example.com" || got[2].PhoneNumber != "+525512345678" {
		t.Errorf("buttons = %+v", got)
	}
	if _, err := templateButtons(nil, []string{"no-url"}, nil); err == nil {
		t.Error("expected error for url button without url")
	}
}

func TestCloseDB(t *testing.T) {
	gormDB, err := db.Connect(config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "sb.db")})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatal(err)
	}
	if err := sqlDB.Ping(); err != nil {
		t.Fatalf("Ping before close: %v", err)
	}
	closeDB(gormDB)
	if err := sqlDB.Ping(); err == nil {
		t.Error("store still open after closeDB")
	}
}
