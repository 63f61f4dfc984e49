package control

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeProvider struct {
	blocking bool
	toggleErr error
}

func (f *fakeProvider) Uptime() time.Duration { return 5 * time.Second }
func (f *fakeProvider) PID() int              { return 1234 }
func (f *fakeProvider) IsRunning() bool       { return true }
func (f *fakeProvider) IsBlocking() bool      { return f.blocking }
func (f *fakeProvider) DomainsInList() int    { return 42 }
func (f *fakeProvider) QueryStats() (uint64, uint64, uint64, uint64) { return 10, 3, 7, 2 }
func (f *fakeProvider) BlockingMethod() string { return "loopback dns sinkhole" }
func (f *fakeProvider) Toggle(enable bool) (bool, error) {
	if f.toggleErr != nil {
		return f.blocking, f.toggleErr
	}
	f.blocking = enable
	return f.blocking, nil
}

func newTestServer(p *fakeProvider) *Server {
	return New(p, 0)
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s := newTestServer(&fakeProvider{})
	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1/health", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	w := httptest.NewRecorder()

	s.loopbackOnly(s.handleHealth)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.PID != 1234 {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestLoopbackOnlyRejectsNonLoopbackOrigin(t *testing.T) {
	s := newTestServer(&fakeProvider{})
	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1/health", nil)
	req.RemoteAddr = "203.0.113.5:5555"
	w := httptest.NewRecorder()

	s.loopbackOnly(s.handleHealth)(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-loopback origin, got %d", w.Code)
	}
}

func TestHandleStatusReportsBlockingState(t *testing.T) {
	p := &fakeProvider{blocking: true}
	s := newTestServer(p)
	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1/status", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	w := httptest.NewRecorder()

	s.loopbackOnly(s.handleStatus)(w, req)

	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsBlocking || resp.DomainsInList != 42 || resp.QueriesSeen != 10 {
		t.Errorf("unexpected status response: %+v", resp)
	}
}

func TestHandleStatsIncludesForwardErrors(t *testing.T) {
	p := &fakeProvider{blocking: true}
	s := newTestServer(p)
	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1/stats", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	w := httptest.NewRecorder()

	s.loopbackOnly(s.handleStats)(w, req)

	var resp statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.QueriesSeen != 10 || resp.ForwardErrors != 2 {
		t.Errorf("unexpected stats response: %+v", resp)
	}
}

func TestHandleToggleFlipsState(t *testing.T) {
	p := &fakeProvider{blocking: false}
	s := newTestServer(p)

	body, _ := json.Marshal(toggleRequest{Enable: true})
	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1/toggle", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:5555"
	w := httptest.NewRecorder()

	s.loopbackOnly(s.handleToggle)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp toggleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsBlocking {
		t.Error("expected isBlocking=true after toggle")
	}
}

func TestHandleToggleLeavesPriorStateOnError(t *testing.T) {
	p := &fakeProvider{blocking: false, toggleErr: errToggleFailed}
	s := newTestServer(p)

	body, _ := json.Marshal(toggleRequest{Enable: true})
	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1/toggle", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:5555"
	w := httptest.NewRecorder()

	s.loopbackOnly(s.handleToggle)(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if p.blocking {
		t.Error("expected blocking state to remain false after a failed toggle")
	}
}

var errToggleFailed = &toggleFailedError{}

type toggleFailedError struct{}

func (e *toggleFailedError) Error() string { return "configure failed" }
