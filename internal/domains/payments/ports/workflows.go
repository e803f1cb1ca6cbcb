package ports

import "context"

// ConfirmationScheduler arranges an authoritative re-verification of an order whose latest
// evidence was provisional.
type ConfirmationScheduler interface {
	ScheduleConfirmation(ctx context.Context, orderID string) error
}
