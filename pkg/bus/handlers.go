package bus

import (
	"context"

	"github.com/peter-kozarec/simutrade/pkg/common"
)

// CommandHandler processes one command. A returned error stops the loop
// that dispatched it.
type CommandHandler[T any] = func(context.Context, T) error

type OrderCommandHandler CommandHandler[common.OrderRequest]
type CancelCommandHandler CommandHandler[string]
type AdvanceCommandHandler CommandHandler[int]
type CloseCommandHandler CommandHandler[string]

// PanicHandler learns about a command whose handler panicked.
type PanicHandler func(ctx context.Context, id CommandId, data interface{}, err error)

func MergeHandlers[T any](handlers ...CommandHandler[T]) CommandHandler[T] {
	return func(ctx context.Context, command T) error {
		for _, handler := range handlers {
			if err := handler(ctx, command); err != nil {
				return err
			}
		}
		return nil
	}
}
