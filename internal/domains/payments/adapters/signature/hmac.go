package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/ports"
)

var _ ports.SignatureVerifier = (*HMACVerifier)(nil)

// HMACVerifier checks hex encoded HMAC-SHA256 signatures. A verifier without a secret is
// disabled and rejects every signature.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(strings.TrimSpace(secret))}
}

// Enabled reports whether a secret is configured.
func (v *HMACVerifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify compares the signature against the MAC of payload in constant time.
func (v *HMACVerifier) Verify(payload []byte, signature string) bool {
	if !v.Enabled() {
		return false
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	return hmac.Equal(provided, v.mac(payload))
}

// Sign returns the hex MAC of payload. Used by tests and the CLI to craft signed callbacks.
func (v *HMACVerifier) Sign(payload []byte) string {
	return hex.EncodeToString(v.mac(payload))
}

func (v *HMACVerifier) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write(payload)
	return h.Sum(nil)
}
