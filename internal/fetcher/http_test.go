package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{RequestsPerSec: 1000, MaxRetries: 3})
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	body, err := testFetcher().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher().Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetSendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{UserAgent: "listener-test/0.1", RequestsPerSec: 1000})
	body, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, "listener-test/0.1", gotUA)
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name": "golang", "count": 7}`))
	}))
	defer srv.Close()

	var out struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, testFetcher().GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "golang", out.Name)
	assert.Equal(t, 7, out.Count)
}

func TestGetJSONBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out map[string]any
	err := testFetcher().GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode json")
}

func TestAdaptiveLimiterAdjusts(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 2)
	assert.Equal(t, rate.Limit(10), lim.Limit())

	lim.OnRateLimit()
	assert.Equal(t, rate.Limit(5), lim.Limit())

	// The floor is a quarter of the initial budget.
	for range 10 {
		lim.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(2.5), lim.Limit())

	// Recovery climbs back up but never past 2x initial.
	for range 50 {
		lim.OnSuccess()
	}
	assert.Equal(t, rate.Limit(20), lim.Limit())
}

func TestLimiterSharedPerHost(t *testing.T) {
	f := testFetcher()
	a := f.limiterFor("https://example.com/a.json")
	b := f.limiterFor("https://example.com/b.json")
	c := f.limiterFor("https://other.org/c.json")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
