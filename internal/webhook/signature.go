// Package webhook verifies inbound Todoist delivery signatures.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// VerifySignature reports whether headerSig is a valid HMAC-SHA256 of
// rawBody under secret. Todoist documents base64 signatures; some senders
// emit lowercase hex instead, so the header is compared against both
// encodings of the locally computed digest. Each comparison is
// constant-time, and an empty or absent header always fails. Malformed
// signatures simply fail to compare equal; nothing here returns an error.
func VerifySignature(rawBody []byte, headerSig, secret string) bool {
	header := strings.TrimSpace(headerSig)
	if header == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	digest := mac.Sum(nil)

	expectedB64 := base64.StdEncoding.EncodeToString(digest)
	expectedHex := hex.EncodeToString(digest)

	b64OK := subtle.ConstantTimeCompare([]byte(header), []byte(expectedB64)) == 1
	hexOK := subtle.ConstantTimeCompare([]byte(header), []byte(expectedHex)) == 1
	return b64OK || hexOK
}
