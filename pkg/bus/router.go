package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/common"
)

var (
	ErrCapacityReached = errors.New("command capacity reached")
	ErrHandlerPanic    = errors.New("handler panicked")
	ErrRouterClosed    = errors.New("router closed")
)

type command struct {
	id   CommandId
	data interface{}
}

// Router is a single consumer FIFO command queue. Post may be called from
// any goroutine; handlers run on the goroutine started by Exec or ExecLoop.
type Router struct {
	logger *zap.Logger

	// Channels
	done     chan error
	commands chan command

	mu     sync.RWMutex
	closed bool

	// Handlers
	OnOrder   OrderCommandHandler
	OnCancel  CancelCommandHandler
	OnAdvance AdvanceCommandHandler
	OnClose   CloseCommandHandler
	OnPanic   PanicHandler

	// Statistics
	runTime       atomic.Int64
	postCount     atomic.Uint64
	postFails     atomic.Uint64
	dispatchCount atomic.Uint64
	dispatchFails atomic.Uint64
	dropped       atomic.Uint64
}

func NewRouter(logger *zap.Logger, capacity int) *Router {
	return &Router{
		logger:   logger,
		done:     make(chan error, 1),
		commands: make(chan command, capacity),
	}
}

func (r *Router) Post(id CommandId, data interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.postFails.Add(1)
		return ErrRouterClosed
	}
	select {
	case r.commands <- command{id, data}:
		r.postCount.Add(1)
		return nil
	default:
		r.postFails.Add(1)
		return ErrCapacityReached
	}
}

// Exec dispatches commands until the context is cancelled or a handler
// fails. Commands still queued on cancellation are left for Close.
func (r *Router) Exec(ctx context.Context) <-chan error {
	go func() {
		start := time.Now()
		defer func() { r.runTime.Add(int64(time.Since(start))) }()

		for {
			select {
			case <-ctx.Done():
				r.done <- ctx.Err()
				return
			case cmd := <-r.commands:
				if err := r.dispatch(ctx, cmd); err != nil {
					r.drain(ctx)
					r.done <- err
					return
				}
			}
		}
	}()
	return r.done
}

// ExecLoop dispatches pending commands first and calls step whenever the
// queue is empty. With a positive pace, step runs at most once per pace.
// A step error ends the loop after the remaining commands are dispatched.
func (r *Router) ExecLoop(ctx context.Context, pace time.Duration, step func(context.Context) error) <-chan error {
	go func() {
		start := time.Now()
		defer func() { r.runTime.Add(int64(time.Since(start))) }()

		var ticks <-chan time.Time
		if pace > 0 {
			ticker := time.NewTicker(pace)
			defer ticker.Stop()
			ticks = ticker.C
		}

		for {
			if ticks == nil {
				select {
				case <-ctx.Done():
					r.done <- ctx.Err()
					return
				case cmd := <-r.commands:
					if err := r.dispatch(ctx, cmd); err != nil {
						r.drain(ctx)
						r.done <- err
						return
					}
					continue
				default:
				}
			} else {
				select {
				case <-ctx.Done():
					r.done <- ctx.Err()
					return
				case cmd := <-r.commands:
					if err := r.dispatch(ctx, cmd); err != nil {
						r.drain(ctx)
						r.done <- err
						return
					}
					continue
				case <-ticks:
				}
			}

			if err := r.step(ctx, step); err != nil {
				r.drain(ctx)
				r.done <- err
				return
			}
		}
	}()
	return r.done
}

func (r *Router) Done() <-chan error {
	return r.done
}

func (r *Router) Statistics() Statistics {
	runTime := time.Duration(r.runTime.Load())
	var throughput float64
	if runTime > 0 {
		throughput = float64(r.dispatchCount.Load()) / runTime.Seconds()
	}
	return Statistics{
		RunTime:       runTime,
		PostCount:     r.postCount.Load(),
		PostFails:     r.postFails.Load(),
		DispatchCount: r.dispatchCount.Load(),
		DispatchFails: r.dispatchFails.Load(),
		Dropped:       r.dropped.Load(),
		Throughput:    throughput,
	}
}

// drain dispatches the commands already queued when the loop stops, so
// every posted command is answered. Handler errors no longer matter.
func (r *Router) drain(ctx context.Context) {
	for {
		select {
		case cmd := <-r.commands:
			_ = r.dispatch(ctx, cmd)
		default:
			return
		}
	}
}

// Close refuses further posts and hands every command still queued to
// reject, oldest first. Call it once the loop has stopped.
func (r *Router) Close(reject func(id CommandId, data interface{})) {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	for {
		select {
		case cmd := <-r.commands:
			r.dropped.Add(1)
			if reject != nil {
				reject(cmd.id, cmd.data)
			}
		default:
			return
		}
	}
}

// dispatch runs the handler of cmd. A panicking handler fails only its own
// command; OnPanic is told and the loop goes on.
func (r *Router) dispatch(ctx context.Context, cmd command) (err error) {
	r.dispatchCount.Add(1)

	defer func() {
		if p := recover(); p != nil {
			r.dispatchFails.Add(1)
			r.logger.Error("command handler panicked",
				zap.Stringer("command", cmd.id),
				zap.Any("panic", p),
				zap.Stack("stack"))
			if r.OnPanic != nil {
				r.OnPanic(ctx, cmd.id, cmd.data, fmt.Errorf("%w: %v", ErrHandlerPanic, p))
			}
			err = nil
		}
	}()

	switch cmd.id {
	case OrderCommand:
		req, ok := cmd.data.(common.OrderRequest)
		if !ok {
			return r.fail(errors.New("invalid type assertion for order command"), cmd)
		}
		if r.OnOrder != nil {
			err = r.OnOrder(ctx, req)
		} else {
			r.logger.Debug("order handler is nil")
		}
	case CancelCommand:
		id, ok := cmd.data.(string)
		if !ok {
			return r.fail(errors.New("invalid type assertion for cancel command"), cmd)
		}
		if r.OnCancel != nil {
			err = r.OnCancel(ctx, id)
		} else {
			r.logger.Debug("cancel handler is nil")
		}
	case AdvanceCommand:
		steps, ok := cmd.data.(int)
		if !ok {
			return r.fail(errors.New("invalid type assertion for advance command"), cmd)
		}
		if r.OnAdvance != nil {
			err = r.OnAdvance(ctx, steps)
		} else {
			r.logger.Debug("advance handler is nil")
		}
	case CloseCommand:
		reason, ok := cmd.data.(string)
		if !ok {
			return r.fail(errors.New("invalid type assertion for close command"), cmd)
		}
		if r.OnClose != nil {
			err = r.OnClose(ctx, reason)
		} else {
			r.logger.Debug("close handler is nil")
		}
	default:
		return r.fail(fmt.Errorf("unsupported command id: %v", cmd.id), cmd)
	}
	return err
}

// step runs one clock step. A panic ends the loop with ErrHandlerPanic.
func (r *Router) step(ctx context.Context, step func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("step panicked", zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return step(ctx)
}

// fail records a malformed command. It never stops the loop.
func (r *Router) fail(err error, cmd command) error {
	r.dispatchFails.Add(1)
	r.logger.Warn("dispatch failed", zap.Error(err), zap.Stringer("command", cmd.id))
	return nil
}
