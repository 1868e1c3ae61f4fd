package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func TestInFlightRegistryRegisterAndCancel(t *testing.T) {
	r := NewInFlightRegistry()

	cancelled := false
	r.Register("req_abc123", func() { cancelled = true })

	ok := r.Cancel("req_abc123")
	if !ok {
		t.Error("Cancel should return true for registered ID")
	}
	if !cancelled {
		t.Error("cancel function should have been called")
	}

	// Second cancel should return false (already removed).
	ok = r.Cancel("req_abc123")
	if ok {
		t.Error("Cancel should return false after already cancelled")
	}
}

func TestInFlightRegistryCancelUnknown(t *testing.T) {
	r := NewInFlightRegistry()

	ok := r.Cancel("req_nonexistent")
	if ok {
		t.Error("Cancel should return false for unknown ID")
	}
}

func TestInFlightRegistryRemove(t *testing.T) {
	r := NewInFlightRegistry()

	cancelled := false
	r.Register("req_abc123", func() { cancelled = true })

	r.Remove("req_abc123")

	ok := r.Cancel("req_abc123")
	if ok {
		t.Error("Cancel should return false after Remove")
	}
	if cancelled {
		t.Error("cancel function should not have been called by Remove")
	}
}

func TestInFlightRegistryRemoveUnknown(t *testing.T) {
	r := NewInFlightRegistry()
	// Should not panic.
	r.Remove("req_nonexistent")
}

func TestInFlightRegistryConcurrentAccess(t *testing.T) {
	r := NewInFlightRegistry()
	var cancelCount atomic.Int64
	const numEntries = 100

	// Register entries concurrently.
	var wg sync.WaitGroup
	for i := 0; i < numEntries; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Register(id, func() { cancelCount.Add(1) })
		}(idForIndex(i))
	}
	wg.Wait()

	// Cancel half concurrently.
	for i := 0; i < numEntries/2; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Cancel(id)
		}(idForIndex(i))
	}
	wg.Wait()

	if cancelCount.Load() != numEntries/2 {
		t.Errorf("expected %d cancellations, got %d", numEntries/2, cancelCount.Load())
	}

	// Remove the other half concurrently.
	for i := numEntries / 2; i < numEntries; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Remove(id)
		}(idForIndex(i))
	}
	wg.Wait()
}

func idForIndex(i int) string {
	return "req_" + string(rune('A'+i%26)) + string(rune('0'+i/26))
}

func TestInFlightRegistryCancelAll(t *testing.T) {
	r := NewInFlightRegistry()
	var cancelCount atomic.Int64
	for i := 0; i < 5; i++ {
		r.Register(idForIndex(i), func() { cancelCount.Add(1) })
	}

	if n := r.CancelAll(); n != 5 {
		t.Errorf("CancelAll = %d, want 5", n)
	}
	if cancelCount.Load() != 5 {
		t.Errorf("expected 5 cancellations, got %d", cancelCount.Load())
	}
	if r.Len() != 0 {
		t.Errorf("Len after CancelAll = %d, want 0", r.Len())
	}
}

func TestTrackRegistersForRequestDuration(t *testing.T) {
	reg := NewInFlightRegistry()

	var during int
	handler := Track(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = reg.Len()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if during != 1 {
		t.Errorf("Len during request = %d, want 1", during)
	}
	if reg.Len() != 0 {
		t.Errorf("Len after request = %d, want 0", reg.Len())
	}
}

func TestTrackCancelAllCancelsRequestContext(t *testing.T) {
	reg := NewInFlightRegistry()
	started := make(chan struct{})
	done := make(chan error, 1)

	handler := Track(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
		done <- r.Context().Err()
	}))

	go handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	<-started

	if n := reg.CancelAll(); n != 1 {
		t.Errorf("CancelAll = %d, want 1", n)
	}
	if err := <-done; err != context.Canceled {
		t.Errorf("request context error = %v, want context.Canceled", err)
	}
}
