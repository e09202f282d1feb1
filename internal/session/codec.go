package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// CookieName is the guest session cookie. It is deliberately distinct from
// the main application's login cookie so the two authentication surfaces
// never collide.
const CookieName = "magicLinkSession"

// TTL is the default session lifetime, fixed from issuance; there is no
// sliding renewal.
const TTL = 4 * time.Hour

var ErrSessionInvalid = errors.New("session invalid")

// Payload is the full server-side state of a guest session. Nothing is
// persisted; the cookie is the session.
type Payload struct {
	UserID            string    `json:"userId"`
	DeviceFingerprint string    `json:"deviceFingerprint"`
	IssuedAt          time.Time `json:"issuedAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// Codec encodes and validates session cookies. The payload stays
// inspectable base64 JSON; an HMAC-SHA256 signature is appended so a
// tampered cookie fails validation the same way a garbled one does.
type Codec struct {
	signingKey []byte
	secure     bool
	ttl        time.Duration
}

// NewCodec builds a codec. A non-positive ttl falls back to the default.
func NewCodec(signingKey []byte, secure bool, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = TTL
	}
	return &Codec{signingKey: signingKey, secure: secure, ttl: ttl}
}

// Secure reports whether cookies issued by this codec carry the Secure
// attribute. Companion cookies on the same surface must match it.
func (c *Codec) Secure() bool {
	return c.secure
}

// Issue builds a session value for the subject bound to the device
// fingerprint, valid for the codec's TTL from now.
func (c *Codec) Issue(userID, deviceFingerprint string, now time.Time) (string, Payload, error) {
	payload := Payload{
		UserID:            userID,
		DeviceFingerprint: deviceFingerprint,
		IssuedAt:          now.UTC(),
		ExpiresAt:         now.UTC().Add(c.ttl),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", Payload{}, err
	}

	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return encoded + "." + c.sign(encoded), payload, nil
}

// Validate decodes and checks a session value against the current time and
// the requesting device's fingerprint. Any decode error, bad signature,
// expiry, or fingerprint mismatch yields ErrSessionInvalid; there is no
// partial validity.
func (c *Codec) Validate(value, deviceFingerprint string, now time.Time) (Payload, error) {
	encoded, sig, ok := strings.Cut(value, ".")
	if !ok {
		return Payload{}, ErrSessionInvalid
	}

	if !hmac.Equal([]byte(c.sign(encoded)), []byte(sig)) {
		return Payload{}, ErrSessionInvalid
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, ErrSessionInvalid
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Payload{}, ErrSessionInvalid
	}

	if payload.UserID == "" || payload.DeviceFingerprint == "" {
		return Payload{}, ErrSessionInvalid
	}
	if !now.Before(payload.ExpiresAt) {
		return Payload{}, ErrSessionInvalid
	}
	if payload.DeviceFingerprint != deviceFingerprint {
		return Payload{}, ErrSessionInvalid
	}

	return payload, nil
}

// Cookie wraps a session value in the guest cookie with the required
// attributes.
func (c *Codec) Cookie(value string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Codec) sign(encoded string) string {
	mac := hmac.New(sha256.New, c.signingKey)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
