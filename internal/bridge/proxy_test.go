package bridge

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/resilience"
)

const proxyPath = "/api/proxy"

// newBridge serves p behind gin and returns a client pointed at it.
func newBridge(t *testing.T, p *Proxy) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST(proxyPath, p.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, proxyPath, WithRetries(0), WithClientTimeout(5*time.Second))
}

func postProxy(t *testing.T, p *Proxy, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST(proxyPath, p.Handle)
	req := httptest.NewRequest(http.MethodPost, proxyPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestProxyInjectsHeaders(t *testing.T) {
	var got http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":1}`))
	}))
	defer upstream.Close()

	client := newBridge(t, NewProxy(ProxyOptions{}))
	resp, err := client.Fetch(context.Background(), Request{
		URL:     upstream.URL + "/data?q=1",
		Headers: map[string]string{"Connection": "close", "X-Token": "t"},
	})
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "OK", resp.StatusText)
	assert.JSONEq(t, `{"ok":1}`, resp.BodyText)

	assert.Equal(t, upstream.URL, got.Get("Origin"))
	assert.Equal(t, upstream.URL+"/", got.Get("Referer"))
	assert.Equal(t, DefaultUserAgent, got.Get("User-Agent"))
	assert.Equal(t, "t", got.Get("X-Token"))
}

func TestProxyKeepsCallerOriginAndReferer(t *testing.T) {
	var got http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer upstream.Close()

	client := newBridge(t, NewProxy(ProxyOptions{}))
	_, err := client.Fetch(context.Background(), Request{
		URL:     upstream.URL,
		Headers: map[string]string{"origin": "https://app.example", "Referer": "https://app.example/login"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://app.example", got.Get("Origin"))
	assert.Equal(t, "https://app.example/login", got.Get("Referer"))
	assert.Equal(t, DefaultUserAgent, got.Get("User-Agent"))

	_, err = client.Fetch(context.Background(), Request{
		URL:     upstream.URL,
		Headers: map[string]string{"Origin": "https://app.example"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://app.example", got.Get("Origin"))
	assert.Equal(t, upstream.URL+"/", got.Get("Referer"))
}

func TestProxyKeepsWidgetUserAgent(t *testing.T) {
	var ua string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
	}))
	defer upstream.Close()

	client := newBridge(t, NewProxy(ProxyOptions{}))
	_, err := client.Fetch(context.Background(), Request{
		URL:     upstream.URL,
		Headers: map[string]string{"user-agent": "widget/1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "widget/1", ua)
}

func TestProxyEchoesSetCookie(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "1"})
		http.SetCookie(w, &http.Cookie{Name: "theme", Value: "dark"})
		_, _ = w.Write([]byte("hi"))
	}))
	defer upstream.Close()

	client := newBridge(t, NewProxy(ProxyOptions{}))
	resp, err := client.Fetch(context.Background(), Request{URL: upstream.URL})
	require.NoError(t, err)

	cookie, ok := resp.Header("Set-Cookie")
	require.True(t, ok)
	assert.Equal(t, "sid=1, theme=dark", cookie)
	assert.Equal(t, "hi", resp.BodyText)

	_, hasRaw := resp.Headers["x-set-cookie"]
	assert.False(t, hasRaw)
}

func TestProxyForwardsMethodAndBody(t *testing.T) {
	var method, body, contentType string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		body = buf.String()
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	payload := `{"name":"x"}`
	client := newBridge(t, NewProxy(ProxyOptions{}))
	resp, err := client.Fetch(context.Background(), Request{
		URL:     upstream.URL,
		Method:  "post",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    &payload,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, payload, body)
	assert.Equal(t, "application/json", contentType)
}

func TestProxyUpstreamErrorStatusIsForwarded(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer upstream.Close()

	client := newBridge(t, NewProxy(ProxyOptions{}))
	resp, err := client.Fetch(context.Background(), Request{URL: upstream.URL})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "nope\n", resp.BodyText)
}

func TestProxyInvalidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "relative", url: "/just/a/path"},
		{name: "unsupported scheme", url: "ftp://example.com/file"},
		{name: "file scheme", url: "file:///etc/passwd"},
		{name: "garbage", url: "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := sonic.MarshalString(Request{URL: tt.url})
			rec := postProxy(t, NewProxy(ProxyOptions{}), body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			e := decodeError(t, rec)
			assert.Equal(t, ErrInvalidURL, e.Error)
			assert.NotEmpty(t, e.Details)
		})
	}
}

func TestProxyInvalidBody(t *testing.T) {
	rec := postProxy(t, NewProxy(ProxyOptions{}), "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrInvalidRequest, decodeError(t, rec).Error)
}

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestProxyConnectionFailureIs502(t *testing.T) {
	body, _ := sonic.MarshalString(Request{URL: "http://" + closedAddr(t) + "/"})
	rec := postProxy(t, NewProxy(ProxyOptions{Timeout: 2 * time.Second}), body)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, ErrProxyFailed, e.Error)
	assert.NotEmpty(t, e.Details)
	assert.Contains(t, e.Cause, "refused")
}

func TestProxyBreakerOpensPerHost(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("up"))
	}))
	defer healthy.Close()

	p := NewProxy(ProxyOptions{BreakerFailures: 2, BreakerTimeout: time.Minute, Timeout: 2 * time.Second})
	dead := "http://" + closedAddr(t) + "/"

	for i := 0; i < 2; i++ {
		_, f := p.Forward(context.Background(), Request{URL: dead})
		require.NotNil(t, f)
	}

	_, f := p.Forward(context.Background(), Request{URL: dead})
	require.NotNil(t, f)
	assert.Equal(t, http.StatusBadGateway, f.Status)
	assert.Equal(t, CauseCircuitOpen, f.Body.Cause)

	res, f := p.Forward(context.Background(), Request{URL: healthy.URL})
	require.Nil(t, f)
	assert.Equal(t, "up", string(res.Body))

	states := p.Breakers()
	assert.Equal(t, resilience.StateOpen, states[strings.TrimPrefix(strings.TrimSuffix(dead, "/"), "http://")])
}

func TestProxyDecodesGzip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/plain")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte("compressed hello"))
		_ = zw.Close()
	}))
	defer upstream.Close()

	client := newBridge(t, NewProxy(ProxyOptions{}))
	resp, err := client.Fetch(context.Background(), Request{
		URL:     upstream.URL,
		Headers: map[string]string{"Accept-Encoding": "gzip"},
	})
	require.NoError(t, err)
	assert.Equal(t, "compressed hello", resp.BodyText)
	_, encoded := resp.Header("content-encoding")
	assert.False(t, encoded)
}

func TestProxyTranscodesLatin1(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String("café")
	require.NoError(t, err)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		_, _ = w.Write([]byte(latin1))
	}))
	defer upstream.Close()

	client := newBridge(t, NewProxy(ProxyOptions{}))
	resp, err := client.Fetch(context.Background(), Request{URL: upstream.URL})
	require.NoError(t, err)
	assert.Equal(t, "café", resp.BodyText)

	ct, _ := resp.Header("Content-Type")
	assert.Equal(t, "text/plain; charset=utf-8", ct)
}

func TestProxyBodyLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 64))
	}))
	defer upstream.Close()

	_, f := NewProxy(ProxyOptions{MaxBodyBytes: 16}).Forward(context.Background(), Request{URL: upstream.URL})
	require.NotNil(t, f)
	assert.Equal(t, http.StatusBadGateway, f.Status)
}

func TestProxyToleratesSelfSignedTLS(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer upstream.Close()

	res, f := NewProxy(ProxyOptions{InsecureTLS: true}).Forward(context.Background(), Request{URL: upstream.URL})
	require.Nil(t, f)
	assert.Equal(t, "secure", string(res.Body))

	_, f = NewProxy(ProxyOptions{InsecureTLS: false}).Forward(context.Background(), Request{URL: upstream.URL})
	require.NotNil(t, f)
	assert.Equal(t, http.StatusBadGateway, f.Status)
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []int
	breakers []string
}

func (o *recordingObserver) ObserveProxy(status int, _ time.Duration) {
	o.mu.Lock()
	o.statuses = append(o.statuses, status)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveBreaker(host string, state resilience.State) {
	o.mu.Lock()
	o.breakers = append(o.breakers, state.String())
	o.mu.Unlock()
}

func TestProxyObserver(t *testing.T) {
	obs := &recordingObserver{}
	p := NewProxy(ProxyOptions{BreakerFailures: 1, Timeout: 2 * time.Second}, WithProxyObserver(obs))

	body, _ := sonic.MarshalString(Request{URL: "http://" + closedAddr(t) + "/"})
	rec := postProxy(t, p, body)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	rec = postProxy(t, p, `{"url":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []int{http.StatusBadGateway, http.StatusBadRequest}, obs.statuses)
	assert.Equal(t, []string{"open"}, obs.breakers)
}
