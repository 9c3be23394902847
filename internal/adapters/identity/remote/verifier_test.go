package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"nido/internal/platform/httpclient"
)

// fakeTransport responde en memoria según el token recibido.
type fakeTransport struct {
	lastAPIKey string
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.lastAPIKey = req.Header.Get("X-Api-Key")

	body, _ := io.ReadAll(req.Body)
	resp := func(status int, payload string) *http.Response {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(payload)),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
		}
	}

	if strings.Contains(string(body), "good-token") {
		return resp(200, `{"userId":"u1","email":"ann@example.com","role":"teacher"}`), nil
	}
	if strings.Contains(string(body), "empty-claims") {
		return resp(200, `{"userId":""}`), nil
	}
	return resp(401, `{"error":"invalid token"}`), nil
}

func newTestVerifier(tr http.RoundTripper) *Verifier {
	hc := httpclient.NewWithTransport(2*time.Second, tr)
	hc.BaseURL = "http://identity.internal"
	return newVerifierWithClient(hc, "secret-key")
}

func TestVerify(t *testing.T) {
	tr := &fakeTransport{}
	v := newTestVerifier(tr)
	ctx := context.Background()

	claims, err := v.Verify(ctx, "good-token")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "ann@example.com" || claims.Role != "teacher" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
	if tr.lastAPIKey != "secret-key" {
		t.Fatalf("api key header not sent, got %q", tr.lastAPIKey)
	}

	if _, err := v.Verify(ctx, "bad-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := v.Verify(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
	if _, err := v.Verify(ctx, "empty-claims"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream for missing user id, got %v", err)
	}
}

func TestNewVerifierRequiresConfig(t *testing.T) {
	if _, err := NewVerifier(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewVerifier(Config{BaseURL: "http://x", APIKey: "k"}); err != nil {
		t.Fatalf("expected configured verifier, got %v", err)
	}
}
