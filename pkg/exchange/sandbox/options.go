package sandbox

import (
	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

type Option func(*Engine)

// CommissionHandler returns the fee charged for filling quantity units of
// order at price.
type CommissionHandler func(order common.Order, quantity int64, price fixed.Point) fixed.Point

func WithCommissionHandler(commissionHandler CommissionHandler) Option {
	return func(e *Engine) {
		e.commissionHandler = commissionHandler
	}
}

// WithCommissionPerUnit charges a flat fee per filled unit.
func WithCommissionPerUnit(perUnit fixed.Point) Option {
	return WithCommissionHandler(func(_ common.Order, quantity int64, _ fixed.Point) fixed.Point {
		return perUnit.MulInt64(quantity)
	})
}

// WithAllowShort controls whether sells may exceed the long position.
func WithAllowShort(allowShort bool) Option {
	return func(e *Engine) {
		e.allowShort = allowShort
	}
}

func WithListener(listener Listener) Option {
	return func(e *Engine) {
		e.listener = listener
	}
}
