package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const transactionRefPrefix = "order-"

// NewTransactionRef builds the processor join key as order-{orderId}-{unixMillis}.
func NewTransactionRef(orderID string, now time.Time) string {
	return fmt.Sprintf("%s%s-%d", transactionRefPrefix, strings.TrimSpace(orderID), now.UnixMilli())
}

// OrderIDFromTransactionRef recovers the order id from a reference minted by NewTransactionRef.
// Order ids may themselves contain dashes, so only the trailing timestamp segment is stripped.
func OrderIDFromTransactionRef(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, transactionRefPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(ref, transactionRefPrefix)
	idx := strings.LastIndex(rest, "-")
	if idx <= 0 || idx == len(rest)-1 {
		return "", false
	}
	if _, err := strconv.ParseInt(rest[idx+1:], 10, 64); err != nil {
		return "", false
	}
	return rest[:idx], true
}
