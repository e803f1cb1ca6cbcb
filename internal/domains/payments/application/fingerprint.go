package application

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/Apurer/payment-reconciler/internal/domains/payments/application/types"
)

type normalizedWebhook struct {
	Event          string `json:"event"`
	TransactionRef string `json:"transactionRef"`
	Status         string `json:"status"`
	Amount         string `json:"amount,omitempty"`
	Currency       string `json:"currency,omitempty"`
}

// FingerprintWebhook builds a deterministic hash of the fields that identify a delivery.
// Processor retries of the same event share a fingerprint even if unrelated payload fields differ.
func FingerprintWebhook(input types.WebhookInput) (string, error) {
	normalized := normalizedWebhook{
		Event:          strings.ToLower(strings.TrimSpace(input.Event)),
		TransactionRef: strings.TrimSpace(input.TransactionRef),
		Status:         strings.ToLower(strings.TrimSpace(input.Status)),
		Currency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
	}
	if input.Amount != nil {
		normalized.Amount = input.Amount.StringFixed(2)
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
