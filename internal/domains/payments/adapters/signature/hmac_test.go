package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACVerifier(t *testing.T) {
	verifier := NewHMACVerifier("whsec")
	payload := []byte(`{"event":"charge.success","tx_ref":"order-1-1"}`)
	sig := verifier.Sign(payload)

	assert.True(t, verifier.Enabled())
	assert.True(t, verifier.Verify(payload, sig))
	assert.True(t, verifier.Verify(payload, "sha256="+sig))
	assert.False(t, verifier.Verify([]byte(`{"event":"charge.failed"}`), sig))
	assert.False(t, verifier.Verify(payload, "zz"))
	assert.False(t, verifier.Verify(payload, ""))
	assert.False(t, NewHMACVerifier("other").Verify(payload, sig))
}

func TestHMACVerifier_DisabledWithoutSecret(t *testing.T) {
	verifier := NewHMACVerifier("")
	assert.False(t, verifier.Enabled())
	assert.False(t, verifier.Verify([]byte("x"), verifier.Sign([]byte("x"))))
}
