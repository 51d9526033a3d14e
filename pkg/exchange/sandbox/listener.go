package sandbox

import (
	"context"

	"github.com/peter-kozarec/simutrade/pkg/common"
)

// Listener receives order lifecycle events synchronously, in the order they
// happen.
type Listener interface {
	OnOrderAccepted(ctx context.Context, order common.Order)
	OnOrderRejected(ctx context.Context, order common.Order, reason RejectReason)
	OnOrderFilled(ctx context.Context, order common.Order, fill common.Fill)
	// OnOrderClosed reports an accepted order leaving the book unfilled.
	// cause is set when the order could not be executed.
	OnOrderClosed(ctx context.Context, order common.Order, reason CloseReason, cause error)
}

type nopListener struct{}

func (nopListener) OnOrderAccepted(context.Context, common.Order)                   {}
func (nopListener) OnOrderRejected(context.Context, common.Order, RejectReason)     {}
func (nopListener) OnOrderFilled(context.Context, common.Order, common.Fill)        {}
func (nopListener) OnOrderClosed(context.Context, common.Order, CloseReason, error) {}
