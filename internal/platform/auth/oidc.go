package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/hanko-field/configurator/internal/platform/requestctx"
)

// OIDCConfig describes which tokens the verifier accepts. An empty
// ServiceAccounts list accepts any verified email.
type OIDCConfig struct {
	Audience        string
	Issuers         []string
	ServiceAccounts []string
}

// OIDCVerifier guards push endpoints with Google-signed identity tokens.
type OIDCVerifier struct {
	keys     *JWKSCache
	audience string
	issuers  map[string]bool
	accounts map[string]bool
	rec      recorder
}

func NewOIDCVerifier(keys *JWKSCache, cfg OIDCConfig, logger *zap.Logger) *OIDCVerifier {
	return &OIDCVerifier{
		keys:     keys,
		audience: strings.TrimSpace(cfg.Audience),
		issuers:  toSet(cfg.Issuers),
		accounts: toSet(cfg.ServiceAccounts),
		rec:      newRecorder("oidc", logger),
	}
}

// Middleware rejects requests without a valid bearer token and records the
// caller on the request context.
func (v *OIDCVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		if v.audience == "" || v.keys == nil {
			v.rec.record(ctx, "not_configured", start)
			reject(ctx, w, http.StatusServiceUnavailable, "verification_unavailable", "oidc verification not configured")
			return
		}
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			v.rec.record(ctx, "token_missing", start)
			reject(ctx, w, http.StatusUnauthorized, "unauthenticated", "bearer token missing")
			return
		}

		claims := jwt.MapClaims{}
		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
		if _, err := parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx)); err != nil {
			if errors.Is(err, ErrJWKSFetchFailed) {
				v.rec.record(ctx, "jwks_unavailable", start)
				reject(ctx, w, http.StatusServiceUnavailable, "verification_unavailable", "signing keys unavailable")
				return
			}
			v.rec.record(ctx, "token_invalid", start)
			reject(ctx, w, http.StatusUnauthorized, "invalid_token", "token verification failed")
			return
		}

		issuer, _ := claims["iss"].(string)
		if len(v.issuers) > 0 && !v.issuers[issuer] {
			v.rec.record(ctx, "issuer_mismatch", start)
			reject(ctx, w, http.StatusUnauthorized, "invalid_token", "token issuer not accepted")
			return
		}
		if !claims.VerifyAudience(v.audience, true) {
			v.rec.record(ctx, "audience_mismatch", start)
			reject(ctx, w, http.StatusUnauthorized, "invalid_token", "token audience mismatch")
			return
		}
		email, _ := claims["email"].(string)
		if len(v.accounts) > 0 && !v.accounts[email] {
			v.rec.record(ctx, "account_not_allowed", start)
			reject(ctx, w, http.StatusForbidden, "forbidden", "service account not allowed")
			return
		}

		v.rec.record(ctx, "ok", start)
		subject := email
		if subject == "" {
			subject, _ = claims["sub"].(string)
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithCaller(ctx, requestctx.Caller{Subject: subject, Method: "oidc"})))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = true
		}
	}
	return out
}
