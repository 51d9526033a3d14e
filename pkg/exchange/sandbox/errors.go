package sandbox

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOrder    = errors.New("unknown order")
	ErrAlreadyTerminal = errors.New("order already terminal")
	ErrSessionEnded    = errors.New("session ended")
	ErrInvalidFill     = errors.New("invalid fill")
)

// RejectReason explains why an order was not accepted.
type RejectReason string

const (
	ReasonDuplicateOrderId     RejectReason = "duplicate_order_id"
	ReasonMissingPrice         RejectReason = "missing_price"
	ReasonInvalidPrice         RejectReason = "invalid_price"
	ReasonInvalidQuantity      RejectReason = "invalid_quantity"
	ReasonInvalidBracket       RejectReason = "invalid_bracket"
	ReasonInsufficientCash     RejectReason = "insufficient_cash"
	ReasonInsufficientPosition RejectReason = "insufficient_position"
	ReasonSessionEnded         RejectReason = "session_ended"
)

// CloseReason explains why an accepted order left the book without filling.
type CloseReason string

const (
	CloseCancelled        CloseReason = "cancelled"
	CloseExpired          CloseReason = "expired"
	CloseSiblingTriggered CloseReason = "sibling_triggered"
	CloseExecutionFailed  CloseReason = "execution_failed"
	CloseSessionEnded     CloseReason = "session_ended"
)

// RejectError is returned by Submit for orders that fail validation.
type RejectError struct {
	OrderId string
	Reason  RejectReason
	Detail  string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("order %s rejected: %s", e.OrderId, e.Reason)
	}
	return fmt.Sprintf("order %s rejected: %s: %s", e.OrderId, e.Reason, e.Detail)
}

func reject(orderId string, reason RejectReason, format string, args ...any) *RejectError {
	return &RejectError{OrderId: orderId, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
