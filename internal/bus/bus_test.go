package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	b := New(nil)
	if err := b.Publish(context.Background(), "nobody-home", Message{}, true); err != nil {
		t.Fatalf("expected nil error publishing to an empty topic, got %v", err)
	}
}

func TestPublishBlockingInvokesAllHandlers(t *testing.T) {
	b := New(nil)
	var count int32
	for i := 0; i < 3; i++ {
		b.Subscribe("topic", func(ctx context.Context, msg Message) error {
			atomic.AddInt32(&count, 1)
			return nil
		})
	}

	if err := b.Publish(context.Background(), "topic", Message{"k": "v"}, true); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 3 {
		t.Fatalf("expected all 3 handlers invoked, got %d", count)
	}
}

func TestPublishBlockingIsolatesHandlerErrors(t *testing.T) {
	b := New(nil)
	var goodCalled int32
	b.Subscribe("topic", func(ctx context.Context, msg Message) error {
		return errors.New("handler A failed")
	})
	b.Subscribe("topic", func(ctx context.Context, msg Message) error {
		atomic.AddInt32(&goodCalled, 1)
		return nil
	})

	err := b.Publish(context.Background(), "topic", Message{}, true)
	if err == nil {
		t.Fatal("expected an aggregate error from the failing handler")
	}
	if goodCalled != 1 {
		t.Fatalf("expected the second handler to still run despite the first's error, got %d calls", goodCalled)
	}
}

func TestPublishNonBlockingReturnsImmediately(t *testing.T) {
	b := New(nil)
	done := make(chan struct{})
	b.Subscribe("topic", func(ctx context.Context, msg Message) error {
		<-done
		return nil
	})

	start := time.Now()
	if err := b.Publish(context.Background(), "topic", Message{}, false); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("expected Publish to return immediately, took %v", elapsed)
	}
	close(done)
}

func TestSubscribeAfterPublishBeginsNotObserved(t *testing.T) {
	b := New(nil)
	proceed := make(chan struct{})
	var seen int32
	b.Subscribe("topic", func(ctx context.Context, msg Message) error {
		<-proceed
		atomic.AddInt32(&seen, 1)
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Publish(context.Background(), "topic", Message{}, true)
	}()

	// Give the publish goroutine time to snapshot the (single-handler) list.
	time.Sleep(20 * time.Millisecond)
	b.Subscribe("topic", func(ctx context.Context, msg Message) error {
		atomic.AddInt32(&seen, 1)
		return nil
	})
	close(proceed)
	wg.Wait()

	if seen != 1 {
		t.Fatalf("expected only the pre-publish handler to run, got %d invocations", seen)
	}
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := New(nil)
	var called int32
	h := func(ctx context.Context, msg Message) error {
		atomic.AddInt32(&called, 1)
		return nil
	}
	b.Subscribe("topic", h)
	b.Unsubscribe("topic", h)

	if err := b.Publish(context.Background(), "topic", Message{}, true); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if called != 0 {
		t.Fatalf("expected no handler invocations after unsubscribe, got %d", called)
	}
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	b := New(nil)
	var goodCalled int32
	b.Subscribe("topic", func(ctx context.Context, msg Message) error {
		panic("boom")
	})
	b.Subscribe("topic", func(ctx context.Context, msg Message) error {
		atomic.AddInt32(&goodCalled, 1)
		return nil
	})

	err := b.Publish(context.Background(), "topic", Message{}, true)
	if err == nil {
		t.Fatal("expected the panic to surface as an aggregate error")
	}
	if goodCalled != 1 {
		t.Fatalf("expected the sibling handler to still run, got %d calls", goodCalled)
	}
}

func TestOnHandlerErrorCallback(t *testing.T) {
	var captured error
	b := New(func(ctx context.Context, topic string, err error) {
		captured = err
	})
	b.Subscribe("topic", func(ctx context.Context, msg Message) error {
		return errors.New("fail")
	})
	b.Publish(context.Background(), "topic", Message{}, true)
	if captured == nil {
		t.Fatal("expected onHandlerError to be invoked")
	}
}
