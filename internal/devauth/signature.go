package devauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// ConstantTimeEqual reports whether a and b are identical without stopping at the
// first differing byte. Different lengths are unequal.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HMACHex returns the lowercase hex HMAC-SHA256 of message keyed by secret.
func HMACHex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// SigningString is the canonical "{timestamp}.{rawBody}" string. Bodiless requests sign
// "{timestamp}.".
func SigningString(timestamp string, body []byte) string {
	return timestamp + "." + string(body)
}

// Sign computes the x-signature value a device sends for timestamp and body.
func Sign(secret, timestamp string, body []byte) string {
	return HMACHex(secret, SigningString(timestamp, body))
}
