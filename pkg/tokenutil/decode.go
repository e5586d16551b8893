// Package tokenutil holds stateless helpers layered on top of bearer tokens:
// unverified payload decoding for display and expiry estimation, and an idle
// activity monitor. Nothing here makes trust decisions; signature validation
// lives in the session service.
package tokenutil

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Claims is the decoded JWT payload. Values are untrusted: the signature is
// never checked here.
type Claims map[string]any

// DecodePayload decodes the payload segment of a JWT without verifying the
// signature. It tolerates both standard and URL-safe base64 alphabets and
// missing padding. Returns nil for anything that does not decode to a JSON
// object; malformed input never panics or errors.
func DecodePayload(token string) Claims {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	seg := strings.ReplaceAll(parts[1], "-", "+")
	seg = strings.ReplaceAll(seg, "_", "/")
	if pad := len(seg) % 4; pad != 0 {
		seg += strings.Repeat("=", 4-pad)
	}

	raw, err := base64.StdEncoding.DecodeString(seg)
	if err != nil {
		return nil
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil
	}
	return claims
}

// ExpiresIn returns the distance to the token's exp claim, which is negative
// for an already-expired token. The second return is false when the token has
// no readable exp claim.
func ExpiresIn(token string, now time.Time) (time.Duration, bool) {
	claims := DecodePayload(token)
	if claims == nil {
		return 0, false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return 0, false
	}
	return time.Unix(int64(exp), 0).Sub(now), true
}

// IsExpired reports whether the token's exp claim is in the past. Tokens
// without a readable exp claim are treated as not expired; callers that need
// certainty must go through the session service.
func IsExpired(token string, now time.Time) bool {
	d, ok := ExpiresIn(token, now)
	if !ok {
		return false
	}
	return d <= 0
}
