package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/zulandar/switchboard/internal/batch"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/models"
)

const threeRows = "phone,name\n573001112233,Ana\n573004445566,Luis\n573007778899,Marta\n"

func phoneBatch() *batch.File {
	return &batch.File{Name: "contactos.csv", Data: []byte(threeRows)}
}

func emailBatch() *batch.File {
	return &batch.File{Name: "correos.csv", Data: []byte("email,name\nana@example.com,Ana\nluis@example.com,Luis\n")}
}

// testGateway starts an httptest server and counts requests.
type testGateway struct {
	mu    sync.Mutex
	hits  int
	srv   *httptest.Server
	inner http.HandlerFunc
}

func newTestGateway(t *testing.T, h http.HandlerFunc) (*testGateway, *gateway.Client) {
	t.Helper()
	g := &testGateway{inner: h}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.hits++
		g.mu.Unlock()
		g.inner(w, r)
	}))
	t.Cleanup(g.srv.Close)
	c, err := gateway.New(gateway.Options{BaseURL: g.srv.URL})
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	return g, c
}

func (g *testGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hits
}

// memRecorder is an in-memory Recorder.
type memRecorder struct {
	mu      sync.Mutex
	records []models.CampaignRecord
	err     error
}

func (m *memRecorder) Record(ctx context.Context, rec *models.CampaignRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, *rec)
	return nil
}

type memTemplateRecorder struct {
	mu    sync.Mutex
	saved []models.TemplateSubmission
}

func (m *memTemplateRecorder) Save(ctx context.Context, t *models.TemplateSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *t)
	return nil
}

var errStoreDown = errors.New("store unavailable")
