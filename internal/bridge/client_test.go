package bridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/tracing"
)

func TestClientProxyUnreachable(t *testing.T) {
	client := NewClient("http://"+closedAddr(t), proxyPath, WithRetries(1))

	_, err := client.Fetch(context.Background(), Request{URL: "http://example.com"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestClientUpstreamFailureResolves(t *testing.T) {
	client := newBridge(t, NewProxy(ProxyOptions{Timeout: 2 * time.Second}))

	resp, err := client.Fetch(context.Background(), Request{URL: "http://" + closedAddr(t)})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Contains(t, resp.BodyText, ErrProxyFailed)
}

func TestClientSendsWidgetID(t *testing.T) {
	got := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get(HeaderWidgetID)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, proxyPath)
	_, err := client.Fetch(WithWidgetID(context.Background(), "wgt_a"), Request{URL: "http://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "wgt_a", <-got)

	_, err = client.Fetch(context.Background(), Request{URL: "http://example.com"})
	require.NoError(t, err)
	assert.Empty(t, <-got)
}

func TestClientDoesNotRetryHTTPErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, proxyPath, WithRetries(3))
	resp, err := client.Fetch(context.Background(), Request{URL: "http://example.com"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientPostsWireFormat(t *testing.T) {
	var got Request
	var trace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace = r.Header.Get(HeaderTraceID)
		assert.Equal(t, proxyPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		buf, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, sonic.Unmarshal(buf, &got))
		w.Header().Set("X-Custom", "v")
		_, _ = w.Write([]byte("done"))
	}))
	defer srv.Close()

	body := "payload"
	ctx := tracing.WithTraceID(context.Background(), "trace-7")
	resp, err := NewClient(srv.URL+"/", proxyPath).Fetch(ctx, Request{
		URL:     "https://api.example.com/x",
		Method:  "PUT",
		Headers: map[string]string{"A": "b"},
		Body:    &body,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/x", got.URL)
	assert.Equal(t, "PUT", got.Method)
	assert.Equal(t, map[string]string{"A": "b"}, got.Headers)
	require.NotNil(t, got.Body)
	assert.Equal(t, "payload", *got.Body)
	assert.Equal(t, "trace-7", trace)

	v, ok := resp.Header("X-CUSTOM")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, "https://api.example.com/x", resp.URL)
}

func TestClientCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(srv.URL, proxyPath).Fetch(ctx, Request{URL: "http://example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsUnavailable(err))
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "OK", statusText("200 OK", 200))
	assert.Equal(t, "Bad Gateway", statusText("", 502))
	assert.Equal(t, "weird", statusText("weird", 299))
}
