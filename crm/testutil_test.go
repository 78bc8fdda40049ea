package crm

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/secnex/crm-gateway/models"
)

// call is one request seen by the fake CRM.
type call struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
	Body          []byte
}

// fakeCRM records every request and answers login and data calls through
// swappable handlers.
type fakeCRM struct {
	*httptest.Server

	mu     sync.Mutex
	calls  []call
	logins int

	loginHandler http.HandlerFunc
	dataHandler  http.HandlerFunc
}

func newFakeCRM(t *testing.T) *fakeCRM {
	t.Helper()
	f := &fakeCRM{
		loginHandler: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`"secret-token"`))
		},
		dataHandler: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true}`))
		},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeCRM) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	f.mu.Lock()
	f.calls = append(f.calls, call{
		Method:        r.Method,
		Path:          r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	isLogin := r.URL.Path == LoginPath
	if isLogin {
		f.logins++
	}
	login, data := f.loginHandler, f.dataHandler
	f.mu.Unlock()

	if isLogin {
		login(w, r)
		return
	}
	data(w, r)
}

func (f *fakeCRM) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// dataCalls returns every non-login call.
func (f *fakeCRM) dataCalls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Path != LoginPath {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeCRM) setLogin(h http.HandlerFunc) {
	f.mu.Lock()
	f.loginHandler = h
	f.mu.Unlock()
}

func (f *fakeCRM) setData(h http.HandlerFunc) {
	f.mu.Lock()
	f.dataHandler = h
	f.mu.Unlock()
}

func testCredential() models.Credential {
	return models.Credential{Username: "gateway", Password: "hunter2"}
}

func decodePayload(t *testing.T, body []byte) models.AttachmentPayload {
	t.Helper()
	var p models.AttachmentPayload
	if err := json.Unmarshal(body, &p); err != nil {
		t.Errorf("invalid attachment payload %q: %v", body, err)
	}
	return p
}

func decodeRequest(t *testing.T, r *http.Request) models.AttachmentPayload {
	t.Helper()
	body, _ := io.ReadAll(r.Body)
	return decodePayload(t, body)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
