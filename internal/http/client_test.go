package http

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/test", r.URL.Path)
		assert.Equal(t, "test-value", r.Header.Get("X-Test-Header"))
		assert.Equal(t, "surge-test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"success"}`))
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(),
		WithBaseURL(server.URL+"/api"),
		WithHeader("User-Agent", "surge-test"),
	)

	req := NewRequest("GET", "/test").WithHeader("X-Test-Header", "test-value")
	resp, err := client.Send(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "application/json", resp.Header("Content-Type"))
	assert.Equal(t, `{"message":"success"}`, resp.BodyString())
	assert.Equal(t, "GET /test", resp.Name)
	assert.Greater(t, resp.Timing.TotalTime, time.Duration(0))
	assert.Equal(t, resp.Timing.TotalTime, resp.Duration())

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, "success", body.Message)
}

func TestClient_Send_JSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig())
	req := NewRequest("post", server.URL).WithBody(map[string]string{"name": "surge"})

	resp, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestClient_Send_ClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := DefaultClientConfig()
	cfg.Timeout = 50 * time.Millisecond
	client := NewClient(cfg)

	_, err := client.Send(context.Background(), NewRequest("GET", server.URL))
	require.Error(t, err)

	var httpErr *Error
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, CategoryTimeout, httpErr.Category)
	assert.True(t, httpErr.Timeout())
}

func TestClient_Send_RequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig())
	req := NewRequest("GET", server.URL).WithTimeout(50 * time.Millisecond)

	_, err := client.Send(context.Background(), req)
	assert.Equal(t, CategoryTimeout, CategoryOf(err))
}

func TestClient_Send_ConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	client := NewClient(DefaultClientConfig())
	_, err = client.Send(context.Background(), NewRequest("GET", "http://"+addr+"/"))

	assert.Equal(t, CategoryConnectionRefused, CategoryOf(err))
}

func TestClient_Send_TLS(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Run("verification fails on self-signed certificate", func(t *testing.T) {
		client := NewClient(DefaultClientConfig())
		assert.False(t, client.InsecureSkipVerify())

		_, err := client.Send(context.Background(), NewRequest("GET", server.URL))
		assert.Equal(t, CategoryTLS, CategoryOf(err))
	})

	t.Run("skip verification", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.InsecureSkipVerify = true
		client := NewClient(cfg)
		assert.True(t, client.InsecureSkipVerify())

		resp, err := client.Send(context.Background(), NewRequest("GET", server.URL))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Greater(t, resp.Timing.TLSHandshakeTime, time.Duration(0))
	})
}

func TestClient_Send_BuildError(t *testing.T) {
	client := NewClient(DefaultClientConfig())

	_, err := client.Send(context.Background(), NewRequest("GET", "/relative"))
	assert.Equal(t, CategoryOther, CategoryOf(err))
}

func TestWithRateLimit(t *testing.T) {
	client := NewClient(DefaultClientConfig(), WithRateLimit(20))
	require.NotNil(t, client.limiter)
	assert.InDelta(t, 20.0, float64(client.limiter.Limit()), 0.001)
	assert.Equal(t, 20, client.limiter.Burst())

	client = NewClient(DefaultClientConfig(), WithRateLimit(0.5))
	require.NotNil(t, client.limiter)
	assert.Equal(t, 1, client.limiter.Burst())

	client = NewClient(DefaultClientConfig(), WithRateLimit(0))
	assert.Nil(t, client.limiter)
}

func TestClient_Send_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Burst of 1 at 20 rps: the fourth request cannot start before ~150ms.
	client := NewClient(DefaultClientConfig())
	client.limiter = rate.NewLimiter(20, 1)

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := client.Send(context.Background(), NewRequest("GET", server.URL))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestClient_Send_ConcurrentHostname(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	// A host name goes through DNS and may dial in parallel, which exercises
	// every trace hook.
	url := strings.Replace(server.URL, "127.0.0.1", "localhost", 1)
	cfg := DefaultClientConfig()
	cfg.DisableKeepAlives = true
	client := NewClient(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Send(context.Background(), NewRequest("GET", url))
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.GreaterOrEqual(t, resp.Timing.TotalTime, resp.Timing.TimeToFirstByte)
		}()
	}
	wg.Wait()
}
