package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "github.com/vegather/Disruptive-sub002/errors"
	"github.com/vegather/Disruptive-sub002/request"
)

type staticAuth struct{ token string }

func (a staticAuth) GetActive(context.Context) (string, error) { return a.token, nil }

func TestSend_RateLimitRetryHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"x":7}`))
	}))
	defer srv.Close()

	c := New(staticAuth{token: "Bearer t"})
	req := request.New(http.MethodGet, srv.URL, "/thing")

	start := time.Now()
	got, err := SendDecode[struct {
		X int `json:"x"`
	}](context.Background(), c, req)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 7, got.X)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSend_MapsNotFoundStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"missing","code":5,"help":"https://example.com/help"}`))
	}))
	defer srv.Close()

	c := New(staticAuth{token: "Bearer t"})
	req := request.New(http.MethodGet, srv.URL, "/thing")

	err := c.Send(context.Background(), req)
	require.Error(t, err)
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierrors.KindNotFound, apiErr.Kind)
}

func TestSendAll_PaginationWalk(t *testing.T) {
	pages := []string{
		`{"devices":[{"id":"a"}], "nextPageToken":"p2"}`,
		`{"devices":[{"id":"b"}], "nextPageToken":""}`,
	}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pages[n-1]))
	}))
	defer srv.Close()

	c := New(staticAuth{token: "Bearer t"})
	req := request.New(http.MethodGet, srv.URL, "/devices")

	type device struct {
		ID string `json:"id"`
	}
	got, err := SendAll[device](context.Background(), c, req, 100, "devices")
	require.NoError(t, err)
	assert.Equal(t, []device{{ID: "a"}, {ID: "b"}}, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSendPage_EmptyNextPageTokenNormalizesToAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"devices":[{"id":"a"}], "nextPageToken":""}`))
	}))
	defer srv.Close()

	c := New(staticAuth{token: "Bearer t"})
	req := request.New(http.MethodGet, srv.URL, "/devices")

	type device struct {
		ID string `json:"id"`
	}
	page, err := SendPage[device](context.Background(), c, req, 100, "", "devices")
	require.NoError(t, err)
	assert.Equal(t, "", page.NextPageToken)
	assert.Equal(t, []device{{ID: "a"}}, page.Results)
}

func TestSend_TransportFailureYieldsServerUnavailable(t *testing.T) {
	c := New(staticAuth{token: "Bearer t"})
	req := request.New(http.MethodGet, "http://127.0.0.1:0", "/unreachable")

	err := c.Send(context.Background(), req)
	require.Error(t, err)
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierrors.KindServerUnavailable, apiErr.Kind)
}
