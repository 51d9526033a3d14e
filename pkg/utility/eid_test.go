package utility

import (
	"sync"
	"testing"
)

func TestUtility_GetExecutionID(t *testing.T) {
	id1 := GetExecutionID()
	id2 := GetExecutionID()

	if id1 != id2 {
		t.Error("Expected same ExecutionID")
	}

	if id1.Version() != 7 {
		t.Errorf("Expected UUID v7, got v%d", id1.Version())
	}
}

func TestUtility_GetExecutionIDConcurrent(t *testing.T) {
	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)

	results := make([]ExecutionID, goroutines)
	for i := 0; i < goroutines; i++ {
		go func(idx int) {
			defer wg.Done()
			results[idx] = GetExecutionID()
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d observed a different ExecutionID", i)
		}
	}
}

func TestUtility_FillID(t *testing.T) {
	a := FillID("s-1", 1)
	b := FillID("s-1", 1)
	c := FillID("s-1", 2)
	d := FillID("s-2", 1)

	if a != b {
		t.Errorf("FillID is not stable: %s != %s", a, b)
	}
	if a == c || a == d {
		t.Errorf("FillID collision: %s", a)
	}
}

func TestUtility_NewConnectionID(t *testing.T) {
	seen := make(map[ConnectionID]struct{})
	for i := 0; i < 1000; i++ {
		id := NewConnectionID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate connection id %d", id)
		}
		seen[id] = struct{}{}
	}
}
