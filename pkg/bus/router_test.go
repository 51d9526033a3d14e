package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/common"
)

var errStop = errors.New("stop")

func TestBusRouter_Post(t *testing.T) {
	r := NewRouter(zap.NewNop(), 10)

	err := r.Post(OrderCommand, common.OrderRequest{Id: "o1"})
	if err != nil {
		t.Errorf("Post failed: %v", err)
	}

	if r.postCount.Load() != 1 {
		t.Errorf("Expected postCount=1, got %d", r.postCount.Load())
	}
}

func TestBusRouter_PostCapacityReached(t *testing.T) {
	r := NewRouter(zap.NewNop(), 1)

	if err := r.Post(CancelCommand, "o1"); err != nil {
		t.Errorf("First Post failed: %v", err)
	}

	err := r.Post(CancelCommand, "o2")
	if !errors.Is(err, ErrCapacityReached) {
		t.Errorf("Expected ErrCapacityReached, got %v", err)
	}

	if r.postFails.Load() != 1 {
		t.Errorf("Expected postFails=1, got %d", r.postFails.Load())
	}
}

func TestBusRouter_Exec(t *testing.T) {
	r := NewRouter(zap.NewNop(), 10)

	var handled atomic.Bool
	r.OnOrder = func(ctx context.Context, req common.OrderRequest) error {
		handled.Store(req.Id == "o1")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := r.Exec(ctx)

	if err := r.Post(OrderCommand, common.OrderRequest{Id: "o1"}); err != nil {
		t.Errorf("Post failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errChan
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	if !handled.Load() {
		t.Error("Order handler not called")
	}

	if r.dispatchCount.Load() != 1 {
		t.Errorf("Expected dispatchCount=1, got %d", r.dispatchCount.Load())
	}
}

func TestBusRouter_ExecStopsOnHandlerError(t *testing.T) {
	r := NewRouter(zap.NewNop(), 10)

	var cancels []string
	r.OnCancel = func(ctx context.Context, id string) error {
		cancels = append(cancels, id)
		return nil
	}
	r.OnClose = func(ctx context.Context, reason string) error {
		return errStop
	}

	if err := r.Post(CloseCommand, "client_close"); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if err := r.Post(CancelCommand, "o1"); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	err := <-r.Exec(context.Background())
	if !errors.Is(err, errStop) {
		t.Errorf("Expected errStop, got %v", err)
	}

	// Commands queued behind the close are still dispatched.
	if len(cancels) != 1 || cancels[0] != "o1" {
		t.Errorf("Expected drained cancel for o1, got %v", cancels)
	}
}

func TestBusRouter_ExecLoop(t *testing.T) {
	r := NewRouter(zap.NewNop(), 10)

	var order []string
	r.OnAdvance = func(ctx context.Context, steps int) error {
		order = append(order, "advance")
		return nil
	}

	if err := r.Post(AdvanceCommand, 1); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	steps := 0
	err := <-r.ExecLoop(context.Background(), 0, func(ctx context.Context) error {
		order = append(order, "step")
		steps++
		if steps == 3 {
			return errStop
		}
		return nil
	})

	if !errors.Is(err, errStop) {
		t.Errorf("Expected errStop, got %v", err)
	}

	want := []string{"advance", "step", "step", "step"}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, order)
			break
		}
	}
}

func TestBusRouter_ExecLoopPaced(t *testing.T) {
	r := NewRouter(zap.NewNop(), 10)

	var steps atomic.Int32
	start := time.Now()
	err := <-r.ExecLoop(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		if steps.Add(1) == 3 {
			return errStop
		}
		return nil
	})

	if !errors.Is(err, errStop) {
		t.Errorf("Expected errStop, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Expected paced loop to take at least 15ms, took %v", elapsed)
	}
}

func TestBusRouter_ExecLoopCancelled(t *testing.T) {
	r := NewRouter(zap.NewNop(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := r.ExecLoop(ctx, time.Hour, func(ctx context.Context) error {
		return nil
	})

	if err := r.Post(CloseCommand, 42); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-errChan; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if r.dispatchFails.Load() != 1 {
		t.Errorf("Expected dispatchFails=1, got %d", r.dispatchFails.Load())
	}
}

func TestBusRouter_CloseRejectsLeftovers(t *testing.T) {
	r := NewRouter(zap.NewNop(), 10)
	r.OnCancel = func(ctx context.Context, id string) error {
		t.Errorf("Unexpected dispatch of %s after cancellation", id)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := <-r.Exec(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	for _, id := range []string{"o1", "o2"} {
		if err := r.Post(CancelCommand, id); err != nil {
			t.Fatalf("Post failed: %v", err)
		}
	}

	var rejected []string
	r.Close(func(id CommandId, data interface{}) {
		rejected = append(rejected, data.(string))
	})

	if len(rejected) != 2 || rejected[0] != "o1" || rejected[1] != "o2" {
		t.Errorf("Expected o1 and o2 rejected in order, got %v", rejected)
	}
	if err := r.Post(CancelCommand, "o3"); !errors.Is(err, ErrRouterClosed) {
		t.Errorf("Expected ErrRouterClosed, got %v", err)
	}
	if stats := r.Statistics(); stats.Dropped != 2 || stats.PostFails != 1 {
		t.Errorf("Unexpected statistics: %+v", stats)
	}
}

func TestBusRouter_InvalidType(t *testing.T) {
	tests := []struct {
		name string
		id   CommandId
		data interface{}
	}{
		{"order", OrderCommand, "not an order"},
		{"cancel", CancelCommand, 1},
		{"advance", AdvanceCommand, "one"},
		{"close", CloseCommand, nil},
		{"unknown", CommandId(99), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(zap.NewNop(), 1)
			if err := r.dispatch(context.Background(), command{tt.id, tt.data}); err != nil {
				t.Errorf("Expected nil error, got %v", err)
			}
			if r.dispatchFails.Load() != 1 {
				t.Errorf("Expected dispatchFails=1, got %d", r.dispatchFails.Load())
			}
		})
	}
}

func TestBusRouter_HandlerPanic(t *testing.T) {
	r := NewRouter(zap.NewNop(), 10)

	var handled atomic.Int32
	r.OnOrder = func(ctx context.Context, req common.OrderRequest) error {
		if req.Id == "bad" {
			panic("overflow")
		}
		handled.Add(1)
		return nil
	}

	var (
		mu       sync.Mutex
		panicked []string
	)
	r.OnPanic = func(ctx context.Context, id CommandId, data interface{}, err error) {
		mu.Lock()
		defer mu.Unlock()
		if !errors.Is(err, ErrHandlerPanic) {
			t.Errorf("Expected ErrHandlerPanic, got %v", err)
		}
		panicked = append(panicked, data.(common.OrderRequest).Id)
	}

	_ = r.Post(OrderCommand, common.OrderRequest{Id: "bad"})
	_ = r.Post(OrderCommand, common.OrderRequest{Id: "good"})

	ctx, cancel := context.WithCancel(context.Background())
	errChan := r.Exec(ctx)

	deadline := time.Now().Add(time.Second)
	for handled.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-errChan; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	if handled.Load() != 1 {
		t.Errorf("Expected the command after the panic to be handled, got %d", handled.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(panicked) != 1 || panicked[0] != "bad" {
		t.Errorf("Expected OnPanic for bad, got %v", panicked)
	}
	if r.Statistics().DispatchFails != 1 {
		t.Errorf("Expected DispatchFails=1, got %d", r.Statistics().DispatchFails)
	}
}

func TestBusRouter_ExecLoopStepPanic(t *testing.T) {
	r := NewRouter(zap.NewNop(), 10)

	errChan := r.ExecLoop(context.Background(), 0, func(ctx context.Context) error {
		panic("bad tick")
	})

	select {
	case err := <-errChan:
		if !errors.Is(err, ErrHandlerPanic) {
			t.Errorf("Expected ErrHandlerPanic, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ExecLoop did not stop after a panicking step")
	}
}

func TestBusRouter_ConcurrentPost(t *testing.T) {
	r := NewRouter(zap.NewNop(), 1000)

	var handled atomic.Int32
	r.OnCancel = func(ctx context.Context, id string) error {
		handled.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errChan := r.Exec(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.Post(CancelCommand, "o")
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for handled.Load() < 500 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-errChan

	if handled.Load() != 500 {
		t.Errorf("Expected 500 handled commands, got %d", handled.Load())
	}

	stats := r.Statistics()
	if stats.PostCount != 500 || stats.DispatchCount != 500 {
		t.Errorf("Unexpected statistics: %+v", stats)
	}
}

func TestBusRouter_MergeHandlers(t *testing.T) {
	var calls []int
	merged := MergeHandlers[string](
		func(ctx context.Context, id string) error { calls = append(calls, 1); return nil },
		func(ctx context.Context, id string) error { calls = append(calls, 2); return errStop },
		func(ctx context.Context, id string) error { calls = append(calls, 3); return nil },
	)

	if err := merged(context.Background(), "o1"); !errors.Is(err, errStop) {
		t.Errorf("Expected errStop, got %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("Expected handlers to stop after the error, got %v", calls)
	}
}
