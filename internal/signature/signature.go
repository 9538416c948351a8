package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
)

// Header is the request header carrying the hex HMAC-SHA256 of the raw body.
const Header = "X-Aircall-Signature"

var (
	// ErrMissingSignature is returned when a secret is configured but the
	// request carries no signature header.
	ErrMissingSignature = errors.New("missing signature")

	// ErrInvalidSignature is returned when the presented signature does not
	// match the HMAC of the body.
	ErrInvalidSignature = errors.New("invalid signature")
)

// AuthenticationError rejects a webhook request before any routing runs.
type AuthenticationError struct {
	Reason string
	err    error
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error {
	return e.err
}

func authError(err error) *AuthenticationError {
	return &AuthenticationError{Reason: err.Error(), err: err}
}

// Verifier checks webhook signatures against a shared secret. With an empty
// secret it runs in open mode and accepts every request.
type Verifier struct {
	secret []byte
	logger *slog.Logger
}

// New creates a Verifier. An empty secret disables verification, which is
// logged once here as a warning.
func New(secret string, logger *slog.Logger) *Verifier {
	v := &Verifier{
		secret: []byte(secret),
		logger: logger.With("subsystem", "signature"),
	}
	if !v.Enabled() {
		v.logger.Warn("webhook secret not configured, signature verification is disabled")
	}
	return v
}

// Enabled reports whether a shared secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify authenticates body against the presented signature. body must be
// the exact bytes received, before any decoding.
func (v *Verifier) Verify(body []byte, presented string) error {
	if !v.Enabled() {
		v.logger.Debug("signature verification skipped, open mode")
		return nil
	}
	if presented == "" {
		return authError(ErrMissingSignature)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(presented), []byte(expected)) {
		return authError(ErrInvalidSignature)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload keyed with secret, in the
// format expected by Verify.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
