package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC of a callback body.
const SignatureHeader = "X-Signature"

const signaturePrefix = "sha256="

// Sign returns the header value for body: "sha256=<hex hmac>".
func Sign(secret string, body []byte) string {
	return signaturePrefix + hexMAC(secret, body)
}

// Verify reports whether header is a valid signature of body.  The
// "sha256=" prefix is optional.
func Verify(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	received, _ := strings.CutPrefix(header, signaturePrefix)
	return hmac.Equal([]byte(hexMAC(secret, body)), []byte(strings.ToLower(received)))
}

func hexMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
