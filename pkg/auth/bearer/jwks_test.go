package bearer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/tenantgate/pkg/auth"
)

func TestKeySet_CancelledWaiterDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(unblock)

	ks := newKeySet(srv.URL, srv.Client(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := ks.get(ctx, "kid-1")
		first <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("key set fetch never started")
	}

	second := make(chan error, 1)
	go func() {
		_, err := ks.get(context.Background(), "kid-1")
		second <- err
	}()
	// Give the second caller time to join the in-flight refresh.
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	unblock()
	select {
	case err := <-second:
		if errors.Is(err, auth.ErrSchemeUnavailable) {
			t.Fatalf("live caller err = %v, refresh was cancelled by another request", err)
		}
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Errorf("live caller err = %v, want ErrInvalidCredentials for unknown kid", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live caller did not return")
	}
}
