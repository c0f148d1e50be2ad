package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vegather/Disruptive-sub002/events"
	"github.com/vegather/Disruptive-sub002/request"
)

type staticAuth struct{}

func (staticAuth) GetActive(context.Context) (string, error) { return "Bearer t", nil }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStream_DispatchesTouchEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"result":{"event":{"eventType":"touch","targetName":"projects/x/devices/D1","data":{"touch":{"updateTime":"2021-01-01T00:00:00.000Z"}}}}}`)
		if flusher != nil {
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	var mu sync.Mutex
	var gotDeviceID string
	var gotTouch events.TouchEvent

	req := request.New(http.MethodGet, srv.URL, "/stream")
	s := New(context.Background(), req, staticAuth{}, WithCallbacks(Callbacks{
		OnTouch: func(deviceID string, e events.TouchEvent) {
			mu.Lock()
			defer mu.Unlock()
			gotDeviceID = deviceID
			gotTouch = e
		},
	}))
	defer s.Close()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotDeviceID != ""
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "D1", gotDeviceID)
	assert.Equal(t, 2021, gotTouch.UpdateTime.Year())
}

func TestStream_NonFatalErrorCodeDoesNotInvokeOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"error":{"code":4,"message":"timeout","details":[]}}`)
		if flusher != nil {
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	var mu sync.Mutex
	errCalled := false

	req := request.New(http.MethodGet, srv.URL, "/stream")
	s := New(context.Background(), req, staticAuth{}, WithCallbacks(Callbacks{
		OnError: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			errCalled = true
		},
	}))
	defer s.Close()

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, errCalled)
}

func TestStream_LabelsChangedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"result":{"event":{"eventType":"labelsChanged","targetName":"projects/x/devices/D2","data":{"added":{"k":"v"},"modified":{},"removed":["x"]}}}}`)
		if flusher != nil {
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got *events.LabelsChangedEvent
	var gotDeviceID string

	req := request.New(http.MethodGet, srv.URL, "/stream")
	s := New(context.Background(), req, staticAuth{}, WithCallbacks(Callbacks{
		OnLabelsChanged: func(deviceID string, e events.LabelsChangedEvent) {
			mu.Lock()
			defer mu.Unlock()
			gotDeviceID = deviceID
			got = &e
		},
	}))
	defer s.Close()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "D2", gotDeviceID)
	assert.Equal(t, map[string]string{"k": "v"}, got.Added)
	assert.Equal(t, []string{"x"}, got.Removed)
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	req := request.New(http.MethodGet, srv.URL, "/stream")
	s := New(context.Background(), req, staticAuth{})

	s.Close()
	s.Close()
	s.Close()

	assert.Equal(t, StateClosed, s.State())
}

func TestStream_SetCallbacksIsSafeConcurrently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	req := request.New(http.MethodGet, srv.URL, "/stream")
	s := New(context.Background(), req, staticAuth{})
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SetCallbacks(Callbacks{})
		}()
	}
	wg.Wait()
}

func TestState_StringsAreStable(t *testing.T) {
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "streaming", StateStreaming.String())
	require.Equal(t, "backoff", StateBackoff.String())
	require.Equal(t, "closed", StateClosed.String())
}
