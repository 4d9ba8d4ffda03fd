package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalBody serializes a payload to RFC 8785 canonical JSON. The
// signature is computed over these exact bytes, and these exact bytes are
// what goes on the wire, so consumers can verify without re-canonicalizing.
func CanonicalBody(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("webhook: marshal payload: %w", err)
	}

	body, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("webhook: canonicalize payload: %w", err)
	}

	return body, nil
}

// Sign computes the hex-encoded HMAC-SHA256 of body keyed by secret.
// This is the value carried in the X-BitFlow-Signature header.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the HMAC over the exact received bytes and
// compares in constant time. Any mismatch, including length mismatch,
// is rejected.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
