package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/docflow/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func newSubmitted() *event.Event {
	return event.NewEvent(event.TypeDocumentSubmitted, 1, nil)
}

func TestSubscribe(t *testing.T) {
	t.Run("calls every handler of the type", func(t *testing.T) {
		d := NewDispatcher()
		called1, called2 := false, false

		d.Subscribe(event.TypeDocumentSubmitted, func(ctx context.Context, evt *event.Event) error {
			called1 = true
			return nil
		})
		d.Subscribe(event.TypeDocumentSubmitted, func(ctx context.Context, evt *event.Event) error {
			called2 = true
			return nil
		})

		if err := d.Dispatch(context.Background(), newSubmitted()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if !called1 || !called2 {
			t.Error("expected both handlers to be called")
		}
	})

	t.Run("generated names are unique", func(t *testing.T) {
		d := NewDispatcher()
		noop := func(ctx context.Context, evt *event.Event) error { return nil }

		d.Subscribe(event.TypeDocumentSubmitted, noop)
		d.Subscribe(event.TypeDocumentApproved, noop)
		d.Subscribe(event.TypeDocumentSubmitted, noop)

		handlers := d.ListHandlers(event.TypeDocumentSubmitted)
		if len(handlers) != 2 || handlers[0].Name == handlers[1].Name {
			t.Errorf("unexpected handlers: %+v", handlers)
		}
	})

	t.Run("logs registration", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.SubscribeNamed(event.TypeDocumentSubmitted, "notify", func(ctx context.Context, evt *event.Event) error {
			return nil
		})

		if !logger.HasInfo("Handler registered") {
			t.Error("expected registration to be logged")
		}
	})
}

func TestSubscribeAll(t *testing.T) {
	d := NewDispatcher()
	var seen []event.Type

	d.SubscribeAll("recorder", func(ctx context.Context, evt *event.Event) error {
		seen = append(seen, evt.Type)
		return nil
	})

	_ = d.Dispatch(context.Background(), newSubmitted())
	_ = d.Dispatch(context.Background(), event.NewEvent(event.TypeAssignmentCompleted, 1, nil))

	if len(seen) != 2 || seen[1] != event.TypeAssignmentCompleted {
		t.Errorf("wildcard handler saw %v", seen)
	}
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	called1, called2 := false, false

	d.SubscribeNamed(event.TypeDocumentSubmitted, "handler-a", func(ctx context.Context, evt *event.Event) error {
		called1 = true
		return nil
	})
	d.SubscribeNamed(event.TypeDocumentSubmitted, "handler-b", func(ctx context.Context, evt *event.Event) error {
		called2 = true
		return nil
	})

	d.Unsubscribe(event.TypeDocumentSubmitted, "handler-a")

	if err := d.Dispatch(context.Background(), newSubmitted()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if called1 {
		t.Error("expected handler-a not to be called")
	}
	if !called2 {
		t.Error("expected handler-b to be called")
	}
}

func TestDispatch(t *testing.T) {
	t.Run("stops at first error", func(t *testing.T) {
		d := NewDispatcher()
		errBoom := errors.New("boom")
		secondCalled := false

		d.SubscribeNamed(event.TypeDocumentSubmitted, "failing", func(ctx context.Context, evt *event.Event) error {
			return errBoom
		})
		d.SubscribeNamed(event.TypeDocumentSubmitted, "second", func(ctx context.Context, evt *event.Event) error {
			secondCalled = true
			return nil
		})

		err := d.Dispatch(context.Background(), newSubmitted())
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if secondCalled {
			t.Error("expected second handler to be skipped")
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeDocumentSubmitted, func(ctx context.Context, evt *event.Event) error {
			panic("handler exploded")
		})

		if err := d.Dispatch(context.Background(), newSubmitted()); err == nil {
			t.Fatal("expected panic to surface as error")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged")
		}
	})

	t.Run("fails after close", func(t *testing.T) {
		d := NewDispatcher()
		_ = d.Close()

		if err := d.Dispatch(context.Background(), newSubmitted()); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("handlers outlive the caller context", func(t *testing.T) {
		d := NewDispatcher()
		var handlerErr atomic.Value

		d.Subscribe(event.TypeDocumentSubmitted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(20 * time.Millisecond)
			if err := ctx.Err(); err != nil {
				handlerErr.Store(err)
			}
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		d.DispatchAsync(ctx, newSubmitted())
		cancel()

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if v := handlerErr.Load(); v != nil {
			t.Errorf("handler context was cancelled: %v", v)
		}
	})

	t.Run("bounds handlers with timeout", func(t *testing.T) {
		d := NewDispatcher(WithHandlerTimeout(10 * time.Millisecond))
		var timedOut atomic.Bool

		d.Subscribe(event.TypeDocumentSubmitted, func(ctx context.Context, evt *event.Event) error {
			<-ctx.Done()
			timedOut.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		})

		d.DispatchAsync(context.Background(), newSubmitted())
		_ = d.Close()

		if !timedOut.Load() {
			t.Error("expected handler deadline to fire")
		}
	})

	t.Run("logs async errors", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeDocumentSubmitted, func(ctx context.Context, evt *event.Event) error {
			return errors.New("broker down")
		})

		d.DispatchAsync(context.Background(), newSubmitted())
		_ = d.Close()

		if logger.ErrorCount() != 1 {
			t.Errorf("expected 1 logged error, got %d", logger.ErrorCount())
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("waits for async handlers to complete", func(t *testing.T) {
		d := NewDispatcher()
		var completed atomic.Bool

		d.Subscribe(event.TypeDocumentSubmitted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(50 * time.Millisecond)
			completed.Store(true)
			return nil
		})

		d.DispatchAsync(context.Background(), newSubmitted())

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if !completed.Load() {
			t.Error("expected async handler to complete before Close returns")
		}
	})

	t.Run("returns error on double close", func(t *testing.T) {
		d := NewDispatcher()

		if err := d.Close(); err != nil {
			t.Fatalf("first close failed: %v", err)
		}
		if err := d.Close(); err == nil {
			t.Fatal("expected error on second close")
		}
	})
}

func TestConcurrency(t *testing.T) {
	d := NewDispatcher()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.SubscribeNamed(event.TypeDocumentSubmitted, fmt.Sprintf("handler-%d", id), func(ctx context.Context, evt *event.Event) error {
				return nil
			})
		}(i)
	}
	wg.Wait()

	if handlers := d.ListHandlers(event.TypeDocumentSubmitted); len(handlers) != 10 {
		t.Errorf("expected 10 handlers, got %d", len(handlers))
	}
}
