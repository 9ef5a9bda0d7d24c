package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/resilience"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultUserAgent is sent upstream when the widget sets none.
const DefaultUserAgent = "Mozilla/5.0 (compatible; DashboardProxy/1.0)"

// ProxyOptions configures the server half of the bridge.
type ProxyOptions struct {
	Timeout         time.Duration
	InsecureTLS     bool
	UserAgent       string
	MaxBodyBytes    int64
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Observer receives proxy outcomes; monitoring implements it.
type Observer interface {
	ObserveProxy(status int, elapsed time.Duration)
	ObserveBreaker(host string, state resilience.State)
}

type nopObserver struct{}

func (nopObserver) ObserveProxy(int, time.Duration)        {}
func (nopObserver) ObserveBreaker(string, resilience.State) {}

// stripped request headers, lower-cased.
var strippedHeaders = map[string]bool{
	"host":           true,
	"content-length": true,
	"connection":     true,
}

// headers never copied from the upstream response.
var hopHeaders = map[string]bool{
	"connection":        true,
	"content-length":    true,
	"content-encoding":  true,
	"keep-alive":        true,
	"set-cookie":        true,
	"transfer-encoding": true,
	"upgrade":           true,
}

// Proxy is the same-origin reverse proxy widget code reaches through
// proxyFetch. Each upstream host gets its own circuit breaker.
type Proxy struct {
	client   *resty.Client
	breakers *resilience.Group
	opts     ProxyOptions
	logger   *zap.Logger
	observer Observer
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithProxyLogger sets the logger.
func WithProxyLogger(l *zap.Logger) ProxyOption {
	return func(p *Proxy) { p.logger = l }
}

// WithProxyObserver sets the metrics observer.
func WithProxyObserver(o Observer) ProxyOption {
	return func(p *Proxy) { p.observer = o }
}

// NewProxy creates the proxy.
func NewProxy(opts ProxyOptions, options ...ProxyOption) *Proxy {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	p := &Proxy{
		opts:     opts,
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, o := range options {
		o(p)
	}

	p.client = resty.New().
		SetTimeout(opts.Timeout).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: opts.InsecureTLS}) //nolint:gosec // widgets target self-signed homelab services

	p.breakers = resilience.NewGroup(resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: resilience.TripAfter(opts.BreakerFailures),
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(host string, from, to resilience.State) {
			p.logger.Warn("proxy breaker state changed",
				zap.String("host", host),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
			p.observer.ObserveBreaker(host, to)
		},
	})
	return p
}

// Breakers reports the state of every upstream host seen so far.
func (p *Proxy) Breakers() map[string]resilience.State {
	return p.breakers.States()
}

// Result is an upstream answer ready to be written back.
type Result struct {
	Status    int
	Header    http.Header
	Body      []byte
	SetCookie string
}

// Failure is a proxy error with its wire status.
type Failure struct {
	Status int
	Body   ErrorBody
}

func (f *Failure) Error() string {
	if f.Body.Details == "" {
		return f.Body.Error
	}
	return f.Body.Error + ": " + f.Body.Details
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

// Forward performs req against its target. Upstream HTTP errors are
// results, not failures; only invalid input and transport problems fail.
func (p *Proxy) Forward(ctx context.Context, req Request) (*Result, *Failure) {
	target, err := ValidateURL(req.URL)
	if err != nil {
		return nil, &Failure{
			Status: http.StatusBadRequest,
			Body:   ErrorBody{Error: ErrInvalidURL, Details: err.Error()},
		}
	}

	resp, err := resilience.Call(p.breakers.Get(target.Host), func() (*resty.Response, error) {
		r := p.client.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			SetHeaders(forwardHeaders(req.Headers, target, p.opts.UserAgent))
		if req.Body != nil {
			r.SetBody([]byte(*req.Body))
		}
		return r.Execute(req.NormalizedMethod(), target.String())
	})
	if err != nil {
		return nil, p.transportFailure(target, err)
	}

	raw := resp.RawBody()
	defer raw.Close()

	reader := io.Reader(raw)
	if p.opts.MaxBodyBytes > 0 {
		reader = io.LimitReader(raw, p.opts.MaxBodyBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, p.transportFailure(target, err)
	}

	header := resp.Header()
	body, err := Decode(data, header.Get("Content-Encoding"), header.Get("Content-Type"), p.opts.MaxBodyBytes)
	if err != nil {
		return nil, &Failure{
			Status: http.StatusBadGateway,
			Body:   ErrorBody{Error: ErrProxyFailed, Details: err.Error(), Cause: rootCause(err)},
		}
	}

	out := &Result{
		Status:    resp.StatusCode(),
		Header:    make(http.Header),
		Body:      body.Data,
		SetCookie: strings.Join(header.Values("Set-Cookie"), ", "),
	}
	for k, v := range header {
		if !hopHeaders[strings.ToLower(k)] {
			out.Header[k] = v
		}
	}
	if body.Charset != "" || header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", utf8ContentType(body.ContentType))
	}
	return out, nil
}

func (p *Proxy) transportFailure(target *url.URL, err error) *Failure {
	cause := rootCause(err)
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		cause = CauseCircuitOpen
	}
	p.logger.Warn("proxy request failed",
		zap.String("host", target.Host),
		zap.String("cause", cause),
		zap.Error(err))
	return &Failure{
		Status: http.StatusBadGateway,
		Body:   ErrorBody{Error: ErrProxyFailed, Details: err.Error(), Cause: cause},
	}
}

// Handle is the gin handler for the proxy route.
func (p *Proxy) Handle(c *gin.Context) {
	start := time.Now()
	status := p.handle(c)
	p.observer.ObserveProxy(status, time.Since(start))
}

func (p *Proxy) handle(c *gin.Context) int {
	body := io.Reader(c.Request.Body)
	if p.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, p.opts.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return p.fail(c, &Failure{
			Status: http.StatusBadRequest,
			Body:   ErrorBody{Error: ErrInvalidRequest, Details: err.Error()},
		})
	}

	var req Request
	if err := sonic.Unmarshal(data, &req); err != nil {
		return p.fail(c, &Failure{
			Status: http.StatusBadRequest,
			Body:   ErrorBody{Error: ErrInvalidRequest, Details: err.Error()},
		})
	}

	res, failure := p.Forward(c.Request.Context(), req)
	if failure != nil {
		return p.fail(c, failure)
	}

	for k, v := range res.Header {
		lower := strings.ToLower(k)
		if lower == "content-type" || strings.HasPrefix(lower, "access-control-") {
			continue
		}
		for _, vv := range v {
			c.Writer.Header().Add(k, vv)
		}
	}
	if res.SetCookie != "" {
		c.Header(HeaderSetCookie, res.SetCookie)
	}

	contentType := utf8ContentType(res.Header.Get("Content-Type"))
	if len(res.Body) > 0 && sonic.Valid(res.Body) {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(res.Status, contentType, res.Body)
	return res.Status
}

func (p *Proxy) fail(c *gin.Context, f *Failure) int {
	c.JSON(f.Status, f.Body)
	return f.Status
}

// forwardHeaders drops headers the transport owns and fills in Origin,
// Referer and User-Agent from the target when the caller left them out.
func forwardHeaders(in map[string]string, target *url.URL, userAgent string) map[string]string {
	out := make(map[string]string, len(in)+3)
	var hasOrigin, hasReferer, hasUA bool
	for k, v := range in {
		lower := strings.ToLower(k)
		switch {
		case strippedHeaders[lower]:
			continue
		case lower == "origin":
			hasOrigin = true
		case lower == "referer":
			hasReferer = true
		case lower == "user-agent":
			hasUA = true
		}
		out[http.CanonicalHeaderKey(k)] = v
	}

	origin := target.Scheme + "://" + target.Host
	if !hasOrigin {
		out["Origin"] = origin
	}
	if !hasReferer {
		out["Referer"] = origin + "/"
	}
	if !hasUA {
		out["User-Agent"] = userAgent
	}
	return out
}

func utf8ContentType(contentType string) string {
	if contentType == "" {
		return "text/plain; charset=utf-8"
	}
	media := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if strings.HasPrefix(media, "text/") || strings.HasSuffix(media, "json") ||
		strings.HasSuffix(media, "xml") || strings.Contains(media, "javascript") {
		return media + "; charset=utf-8"
	}
	return contentType
}

// rootCause returns the innermost error's message, e.g. "connection refused".
func rootCause(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
