package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/exposure/internal/types"
)

type mockRunner struct {
	mu   sync.Mutex
	runs []types.Category
	errs map[types.Category]error
}

func (m *mockRunner) Run(ctx context.Context, cat types.Category) (*types.ExposureResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, cat)
	if err := m.errs[cat]; err != nil {
		return nil, err
	}
	return &types.ExposureResult{Token: "tok", Category: cat}, nil
}

func (m *mockRunner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func TestSyncCoordinator_RunsImmediatelyOnStart(t *testing.T) {
	runner := &mockRunner{}
	c := NewSyncCoordinator(runner, []types.Category{types.CategoryRed}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no run before first tick")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop on cancel")
	}
}

func TestSyncCoordinator_RunsAllCategoriesEachCycle(t *testing.T) {
	runner := &mockRunner{errs: map[types.Category]error{
		types.CategoryYellow: errors.New("index unavailable"),
	}}
	cats := []types.Category{types.CategoryYellow, types.CategoryRed}
	c := NewSyncCoordinator(runner, cats, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	deadline := time.After(2 * time.Second)
	for runner.count() < 4 {
		select {
		case <-deadline:
			t.Fatalf("expected at least two cycles, got %d runs", runner.count())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	// A failing category never blocks the one after it.
	runner.mu.Lock()
	defer runner.mu.Unlock()
	var red int
	for _, cat := range runner.runs {
		if cat == types.CategoryRed {
			red++
		}
	}
	if red < 2 {
		t.Errorf("red ran %d times, want at least 2", red)
	}
}
