package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/hanko-field/configurator/internal/platform/requestctx"
)

const pushAudience = "https://configurator.example.com/api/v1/internal/jobs/crop-render"

type oidcFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests *atomic.Int32
}

func newOIDCFixture(t *testing.T) oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "push-key", Algorithm: "RS256", Use: "sig"}
	requests := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)
	return oidcFixture{key: key, server: server, requests: requests}
}

func (f oidcFixture) token(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"aud":   pushAudience,
		"iss":   "https://accounts.google.com",
		"sub":   "1234567890",
		"email": "pubsub-push@hf-dev.iam.gserviceaccount.com",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "push-key"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func serveOIDC(v *OIDCVerifier, token string) (*httptest.ResponseRecorder, requestctx.Caller) {
	var caller requestctx.Caller
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ = requestctx.CallerFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/crop-render", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, caller
}

func TestOIDCVerifierAcceptsPushToken(t *testing.T) {
	f := newOIDCFixture(t)
	v := NewOIDCVerifier(NewJWKSCache(f.server.URL, nil), OIDCConfig{
		Audience:        pushAudience,
		Issuers:         []string{"https://accounts.google.com"},
		ServiceAccounts: []string{"pubsub-push@hf-dev.iam.gserviceaccount.com"},
	}, nil)

	for i := 0; i < 2; i++ {
		rec, caller := serveOIDC(v, f.token(t, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
		}
		if caller.Method != "oidc" || caller.Subject != "pubsub-push@hf-dev.iam.gserviceaccount.com" {
			t.Fatalf("unexpected caller %+v", caller)
		}
	}
	if got := f.requests.Load(); got != 1 {
		t.Fatalf("expected one JWKS fetch, got %d", got)
	}
}

func TestOIDCVerifierRejections(t *testing.T) {
	f := newOIDCFixture(t)
	v := NewOIDCVerifier(NewJWKSCache(f.server.URL, nil), OIDCConfig{
		Audience:        pushAudience,
		Issuers:         []string{"https://accounts.google.com"},
		ServiceAccounts: []string{"pubsub-push@hf-dev.iam.gserviceaccount.com"},
	}, nil)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "missing", token: "", status: http.StatusUnauthorized},
		{name: "garbage", token: "not-a-jwt", status: http.StatusUnauthorized},
		{name: "audience", token: f.token(t, func(c jwt.MapClaims) { c["aud"] = "https://other" }), status: http.StatusUnauthorized},
		{name: "issuer", token: f.token(t, func(c jwt.MapClaims) { c["iss"] = "https://evil" }), status: http.StatusUnauthorized},
		{name: "expired", token: f.token(t, func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }), status: http.StatusUnauthorized},
		{name: "account", token: f.token(t, func(c jwt.MapClaims) { c["email"] = "someone@else.com" }), status: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := serveOIDC(v, tc.token)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestOIDCVerifierJWKSUnavailable(t *testing.T) {
	f := newOIDCFixture(t)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	v := NewOIDCVerifier(NewJWKSCache(broken.URL, nil), OIDCConfig{Audience: pushAudience}, nil)
	rec, _ := serveOIDC(v, f.token(t, nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMaxAge(t *testing.T) {
	if got := maxAge("public, max-age=19800, must-revalidate"); got != 19800*time.Second {
		t.Fatalf("unexpected max-age %s", got)
	}
	if got := maxAge("no-cache"); got != 0 {
		t.Fatalf("expected 0, got %s", got)
	}
}

func signedWebhook(secret, timestamp string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/pricebooks", bytes.NewReader(body))
	req.Header.Set("X-Signature", hex.EncodeToString(Sign([]byte(secret), http.MethodPost, "/api/v1/webhooks/pricebooks", timestamp, body)))
	req.Header.Set("X-Signature-Timestamp", timestamp)
	return req
}

func TestHMACVerifier(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	v := NewHMACVerifier(HMACConfig{Secrets: map[string]string{"Pricebooks": "s3cret"}}, nil)
	v.now = func() time.Time { return now }
	body := []byte(`{"version":"2026.11.0"}`)
	ts := strconv.FormatInt(now.Unix(), 10)

	tests := []struct {
		name        string
		integration string
		req         *http.Request
		status      int
	}{
		{name: "valid", integration: "pricebooks", req: signedWebhook("s3cret", ts, body), status: http.StatusAccepted},
		{name: "wrong secret", integration: "pricebooks", req: signedWebhook("other", ts, body), status: http.StatusUnauthorized},
		{name: "stale", integration: "pricebooks", req: signedWebhook("s3cret", strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10), body), status: http.StatusUnauthorized},
		{name: "bad timestamp", integration: "pricebooks", req: signedWebhook("s3cret", "yesterday", body), status: http.StatusUnauthorized},
		{name: "unknown integration", integration: "catalog", req: signedWebhook("s3cret", ts, body), status: http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotBody []byte
			handler := v.Require(tc.integration)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				buf := new(bytes.Buffer)
				_, _ = buf.ReadFrom(r.Body)
				gotBody = buf.Bytes()
				w.WriteHeader(http.StatusAccepted)
			}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tc.req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.status == http.StatusAccepted && !bytes.Equal(gotBody, body) {
				t.Fatalf("body not restored for handler: %q", gotBody)
			}
		})
	}
}

func TestHMACVerifierTamperedBody(t *testing.T) {
	now := time.Now()
	v := NewHMACVerifier(HMACConfig{Secrets: map[string]string{"pricebooks": "s3cret"}}, nil)
	ts := strconv.FormatInt(now.Unix(), 10)
	req := signedWebhook("s3cret", ts, []byte(`{"version":"1"}`))
	req.Body = http.NoBody
	rec := httptest.NewRecorder()
	v.Require("pricebooks")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
