package forward

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the lowercase hex HMAC-SHA256 of the encoded
// request body. Receivers verify against the exact bytes on the wire, form
// and multipart bodies included.
const SignatureHeader = "X-Webhook-Signature"

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
