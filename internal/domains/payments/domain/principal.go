package domain

// Principal is the caller identity resolved from a bearer token.
type Principal struct {
	UserID string
	Token  string
	// System principals act on behalf of the service itself (workers, sweeps).
	System bool
}

// SystemPrincipal is used by background confirmation runs and sweeps.
var SystemPrincipal = &Principal{UserID: "system", System: true}

// CanAccess reports whether the principal may see the order. Anonymous callers are handled by
// the use case, not here.
func (p *Principal) CanAccess(order *Order) bool {
	if p == nil || order == nil {
		return false
	}
	if p.System {
		return true
	}
	return order.UserID == "" || order.UserID == p.UserID
}
