package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Channel identifies which ingress path produced a piece of evidence.
type Channel string

const (
	ChannelVerify   Channel = "verify"
	ChannelWebhook  Channel = "webhook"
	ChannelCallback Channel = "callback"
)

// Valid reports whether the channel is known.
func (c Channel) Valid() bool {
	switch c {
	case ChannelVerify, ChannelWebhook, ChannelCallback:
		return true
	default:
		return false
	}
}

// Outcome is what a channel claims happened to the payment attempt.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeFailure      Outcome = "failure"
	OutcomeInconclusive Outcome = "inconclusive"
)

// Candidate maps an outcome to the lattice point it argues for.
func (o Outcome) Candidate() (PaymentStatus, error) {
	switch o {
	case OutcomeSuccess:
		return PaymentPaid, nil
	case OutcomeFailure:
		return PaymentFailed, nil
	case OutcomeInconclusive:
		return PaymentProcessing, nil
	default:
		return "", ErrInvalidOutcome
	}
}

// Evidence is a single report of payment outcome from one channel.
type Evidence struct {
	TransactionRef string
	Channel        Channel
	Outcome        Outcome
	Amount         *decimal.Decimal
	Currency       string
	RawPayload     json.RawMessage
}

// Validate checks the evidence is well formed.
func (e Evidence) Validate() error {
	if !e.Channel.Valid() {
		return ErrInvalidChannel
	}
	if _, err := e.Outcome.Candidate(); err != nil {
		return err
	}
	return nil
}

// ApplyEvidence merges evidence into the order following the monotonic lattice. It returns true
// when the order changed and exactly one history entry was appended.
func (o *Order) ApplyEvidence(ev Evidence, now time.Time) (bool, error) {
	if err := ev.Validate(); err != nil {
		return false, err
	}
	ref := strings.TrimSpace(ev.TransactionRef)
	if ref != "" && o.TransactionRef != "" && ref != o.TransactionRef {
		return false, ErrTransactionMismatch
	}
	if o.PaymentStatus.Sticky() {
		return false, nil
	}
	candidate, _ := ev.Outcome.Candidate()
	if ref == "" {
		ref = o.TransactionRef
	}

	switch {
	case candidate.Outranks(o.PaymentStatus):
	case candidate.SameRank(o.PaymentStatus):
		if last := o.LastHistoryEntry(); last != nil && last.TransactionRef == ref && last.Status == candidate {
			return false, nil
		}
	default:
		return false, nil
	}

	now = now.UTC()
	o.PaymentStatus = candidate
	if o.OnlinePayable() {
		o.OrderStatus = DeriveOrderStatus(candidate, o.OrderStatus)
	}
	if candidate == PaymentPaid && o.PaymentVerifiedAt == nil {
		verifiedAt := now
		o.PaymentVerifiedAt = &verifiedAt
	}
	o.PaymentHistory = append(o.PaymentHistory, HistoryEntry{
		Amount:         o.evidenceAmount(ev),
		Currency:       o.evidenceCurrency(ev),
		TransactionRef: ref,
		Channel:        ev.Channel,
		Status:         candidate,
		Timestamp:      now,
		RawEvidence:    append(json.RawMessage(nil), ev.RawPayload...),
	})
	return true, nil
}

func (o *Order) evidenceAmount(ev Evidence) decimal.Decimal {
	if ev.Amount != nil {
		return *ev.Amount
	}
	return o.TotalAmount
}

func (o *Order) evidenceCurrency(ev Evidence) string {
	if currency := strings.ToUpper(strings.TrimSpace(ev.Currency)); currency != "" {
		return currency
	}
	return o.Currency
}
