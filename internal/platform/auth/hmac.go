package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/configurator/internal/platform/requestctx"
)

const maxSignedBodyBytes = 2 << 20

// HMACConfig mirrors the webhook settings in the service configuration.
type HMACConfig struct {
	Secrets         map[string]string
	SignatureHeader string
	TimestampHeader string
	ClockSkew       time.Duration
}

// HMACVerifier checks signatures over METHOD\nPATH\nTIMESTAMP\nhex(sha256(body)).
// Replays inside the skew window are accepted; handlers behind it must be
// idempotent.
type HMACVerifier struct {
	secrets         map[string][]byte
	signatureHeader string
	timestampHeader string
	clockSkew       time.Duration
	now             func() time.Time
	rec             recorder
}

func NewHMACVerifier(cfg HMACConfig, logger *zap.Logger) *HMACVerifier {
	secrets := make(map[string][]byte, len(cfg.Secrets))
	for name, secret := range cfg.Secrets {
		if secret != "" {
			secrets[strings.ToLower(name)] = []byte(secret)
		}
	}
	v := &HMACVerifier{
		secrets:         secrets,
		signatureHeader: cfg.SignatureHeader,
		timestampHeader: cfg.TimestampHeader,
		clockSkew:       cfg.ClockSkew,
		now:             time.Now,
		rec:             newRecorder("hmac", logger),
	}
	if v.signatureHeader == "" {
		v.signatureHeader = "X-Signature"
	}
	if v.timestampHeader == "" {
		v.timestampHeader = "X-Signature-Timestamp"
	}
	if v.clockSkew <= 0 {
		v.clockSkew = 5 * time.Minute
	}
	return v
}

// Require verifies requests signed with the named integration's secret.
func (v *HMACVerifier) Require(integration string) func(http.Handler) http.Handler {
	secret := v.secrets[strings.ToLower(integration)]
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()
			if len(secret) == 0 {
				v.rec.record(ctx, "secret_not_configured", start)
				reject(ctx, w, http.StatusServiceUnavailable, "verification_unavailable", "webhook secret not configured")
				return
			}
			signature, err := decodeSignature(r.Header.Get(v.signatureHeader))
			if err != nil {
				v.rec.record(ctx, "signature_invalid", start)
				reject(ctx, w, http.StatusUnauthorized, "signature_invalid", "signature missing or malformed")
				return
			}
			timestamp := strings.TrimSpace(r.Header.Get(v.timestampHeader))
			signedAt, err := parseTimestamp(timestamp)
			if err != nil {
				v.rec.record(ctx, "timestamp_invalid", start)
				reject(ctx, w, http.StatusUnauthorized, "timestamp_invalid", "signature timestamp missing or malformed")
				return
			}
			if skew := v.now().Sub(signedAt); skew > v.clockSkew || skew < -v.clockSkew {
				v.rec.record(ctx, "timestamp_skew", start)
				reject(ctx, w, http.StatusUnauthorized, "timestamp_skew", "signature timestamp outside allowed window")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes))
			if err != nil {
				v.rec.record(ctx, "body_unreadable", start)
				reject(ctx, w, http.StatusBadRequest, "invalid_body", "unable to read body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !hmac.Equal(signature, Sign(secret, r.Method, r.URL.EscapedPath(), timestamp, body)) {
				v.rec.record(ctx, "signature_mismatch", start)
				reject(ctx, w, http.StatusUnauthorized, "signature_mismatch", "signature verification failed")
				return
			}
			v.rec.record(ctx, "ok", start)
			next.ServeHTTP(w, r.WithContext(requestctx.WithCaller(ctx, requestctx.Caller{Subject: integration, Method: "hmac"})))
		})
	}
}

// Sign computes the request MAC. Integrations and tests use it to sign.
func Sign(secret []byte, method, path, timestamp string, body []byte) []byte {
	sum := sha256.Sum256(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.ToUpper(method) + "\n" + path + "\n" + timestamp + "\n" + hex.EncodeToString(sum[:])))
	return mac.Sum(nil)
}

func decodeSignature(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("auth: empty signature")
	}
	if decoded, err := hex.DecodeString(value); err == nil && len(decoded) == sha256.Size {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be hex or base64")
}

func parseTimestamp(value string) (time.Time, error) {
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0), nil
	}
	return time.Parse(time.RFC3339, value)
}
