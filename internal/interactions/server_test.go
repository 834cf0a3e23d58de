package interactions

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"buildrelay/internal/actions"
	logx "buildrelay/pkg/logx"
)

type stubController struct {
	mu    sync.Mutex
	calls []string
}

func (c *stubController) record(op string, ref actions.Ref) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, op+":"+ref.BuildID)
	return nil
}

func (c *stubController) Approve(_ context.Context, ref actions.Ref) error {
	return c.record("approve", ref)
}
func (c *stubController) Reject(_ context.Context, ref actions.Ref) error {
	return c.record("reject", ref)
}
func (c *stubController) Cancel(_ context.Context, ref actions.Ref) error {
	return c.record("cancel", ref)
}
func (c *stubController) Retry(_ context.Context, ref actions.Ref) error {
	return c.record("retry", ref)
}

type stubResponder struct {
	mu      sync.Mutex
	content string
	token   string
}

func (r *stubResponder) EditOriginalResponse(_ context.Context, _, token, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
	r.content = content
	return nil
}

type fixture struct {
	srv       *Server
	priv      ed25519.PrivateKey
	ctrl      *stubController
	responder *stubResponder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ctrl := &stubController{}
	responder := &stubResponder{}
	srv, err := New(Config{
		PublicKey: hex.EncodeToString(pub),
		AppID:     "app-1",
	}, ctrl, responder, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return &fixture{srv: srv, priv: priv, ctrl: ctrl, responder: responder}
}

func (f *fixture) post(t *testing.T, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	const ts = "1700000000"
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	req.Header.Set(headerTimestamp, ts)
	if sign {
		sig := ed25519.Sign(f.priv, []byte(ts+body))
		req.Header.Set(headerSignature, hex.EncodeToString(sig))
	} else {
		bogus := make([]byte, ed25519.SignatureSize)
		req.Header.Set(headerSignature, hex.EncodeToString(bogus))
	}
	rec := httptest.NewRecorder()
	f.srv.handleInteraction(rec, req)
	return rec
}

func TestPingPong(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.post(t, `{"type":1}`, true)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"type":1`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestRejectsBadSignature(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.post(t, `{"type":1}`, false)
	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRejectsMissingHeaders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"type":1}`))
	rec := httptest.NewRecorder()
	f.srv.handleInteraction(rec, req)
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestComponentPressRunsAction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	body := `{"type":3,"token":"itok","data":{"custom_id":"build:approve:acme:b-42","component_type":2}}`
	rec := f.post(t, body, true)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	// Deferred ephemeral acknowledgement comes back immediately.
	if !strings.Contains(rec.Body.String(), `"type":5`) {
		t.Fatalf("body = %s", rec.Body.String())
	}

	f.srv.actionWG.Wait()

	f.ctrl.mu.Lock()
	calls := append([]string(nil), f.ctrl.calls...)
	f.ctrl.mu.Unlock()
	if len(calls) != 1 || calls[0] != "approve:b-42" {
		t.Fatalf("controller calls = %v", calls)
	}

	f.responder.mu.Lock()
	defer f.responder.mu.Unlock()
	if f.responder.token != "itok" {
		t.Fatalf("responder token = %q", f.responder.token)
	}
	if !strings.Contains(f.responder.content, "approved") {
		t.Fatalf("responder content = %q", f.responder.content)
	}
}

func TestRejectsMalformedCustomID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	body := `{"type":3,"token":"itok","data":{"custom_id":"nonsense","component_type":2}}`
	rec := f.post(t, body, true)
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestNewRejectsBadKey(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{PublicKey: "zz"}, nil, nil, logx.Nop()); err == nil {
		t.Fatal("expected error for invalid key")
	}
	if _, err := New(Config{PublicKey: "abcd"}, nil, nil, logx.Nop()); err == nil {
		t.Fatal("expected error for short key")
	}
}
