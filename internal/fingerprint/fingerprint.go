package fingerprint

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Derive hashes coarse request headers into a stable device fingerprint.
// The inputs are deliberately low-entropy: ordinary header jitter (cookie
// churn, per-request ids) must not invalidate a session, while a cookie
// replayed from a different client still misses.
func Derive(r *http.Request) string {
	return FromHeaders(
		r.UserAgent(),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
	)
}

// FromHeaders derives the fingerprint from the three coarse header values.
func FromHeaders(userAgent, acceptLanguage, acceptEncoding string) string {
	material := strings.Join([]string{
		strings.TrimSpace(userAgent),
		strings.TrimSpace(acceptLanguage),
		strings.TrimSpace(acceptEncoding),
	}, "|")
	h1, h2 := murmur3.Sum128([]byte(material))
	return fmt.Sprintf("%016x%016x", h1, h2)
}
