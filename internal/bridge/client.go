package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/tracing"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// Client is the engine-side half of the bridge: it posts widget requests to
// the proxy endpoint and never contacts a target directly.
type Client struct {
	http     *resty.Client
	endpoint string
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout  time.Duration
	retryMax int
	base     *http.Client
}

// WithClientTimeout bounds each bridge call end to end.
func WithClientTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d }
}

// WithRetries sets how often a failed connection to the proxy is retried.
func WithRetries(n int) ClientOption {
	return func(c *clientConfig) { c.retryMax = n }
}

// WithHTTPClient replaces the transport client underneath the retry layer.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) { c.base = hc }
}

// NewClient targets baseURL+path, e.g. "http://127.0.0.1:8000" + "/api/proxy".
func NewClient(baseURL, path string, opts ...ClientOption) *Client {
	cfg := clientConfig{timeout: 60 * time.Second, retryMax: 2}
	for _, o := range opts {
		o(&cfg)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.retryMax
	retryClient.RetryWaitMin = 50 * time.Millisecond
	retryClient.RetryWaitMax = 500 * time.Millisecond
	retryClient.Logger = nil
	retryClient.CheckRetry = retryConnectionErrors
	if cfg.base != nil {
		retryClient.HTTPClient = cfg.base
	}

	rc := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		OnBeforeRequest(tracing.RestyMiddleware())

	return &Client{
		http:     rc,
		endpoint: strings.TrimRight(baseURL, "/") + path,
	}
}

// retryConnectionErrors retries only when the proxy could not be reached.
// Any HTTP answer, including 5xx, is final: the proxy already reports
// upstream failures in-band.
func retryConnectionErrors(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil, nil
}

type widgetIDKey struct{}

// WithWidgetID marks ctx as belonging to widget id; Fetch sends it to the
// proxy so each widget gets its own rate budget.
func WithWidgetID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, widgetIDKey{}, id)
}

// WidgetIDFrom returns the widget id stored by WithWidgetID.
func WidgetIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(widgetIDKey{}).(string)
	return id
}

// Fetch posts req to the proxy. A non-nil error means the proxy itself was
// unreachable (wrapping ErrUnavailable) or ctx ended.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	r := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req)
	if id := WidgetIDFrom(ctx); id != "" {
		r.SetHeader(HeaderWidgetID, id)
	}
	resp, err := r.Post(c.endpoint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, rootCause(err))
	}

	status := resp.StatusCode()
	out := &Response{
		OK:         status >= 200 && status < 300,
		Status:     status,
		StatusText: statusText(resp.Status(), status),
		URL:        req.URL,
		Headers:    make(map[string]string, len(resp.Header())),
		BodyText:   string(resp.Body()),
		SetCookie:  resp.Header().Get(HeaderSetCookie),
	}
	for k, v := range resp.Header() {
		lower := strings.ToLower(k)
		if lower == strings.ToLower(HeaderSetCookie) {
			continue
		}
		out.Headers[lower] = strings.Join(v, ", ")
	}
	return out, nil
}

// statusText strips the code from "200 OK".
func statusText(status string, code int) string {
	if text, ok := strings.CutPrefix(status, fmt.Sprintf("%d ", code)); ok {
		return text
	}
	if status == "" {
		return http.StatusText(code)
	}
	return status
}

// IsUnavailable reports whether err came from an unreachable proxy.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
