package http

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Client sends requests on behalf of virtual users.
//
// A single Client is shared by all VUs of a run so connections are pooled.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	baseURL    string
	headers    map[string]string
	limiter    *rate.Limiter
}

// ClientConfig contains transport-level settings.
type ClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultClientConfig returns sensible defaults for load testing.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a client from cfg and the given options.
func NewClient(cfg ClientConfig, options ...ClientOption) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		ForceAttemptHTTP2:   true,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}

	client := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		transport: transport,
		headers:   make(map[string]string),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithBaseURL sets the base URL relative request URLs are resolved against.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithRateLimit caps the request rate across all VUs. rps <= 0 means unlimited.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTransport replaces the underlying round tripper, mainly for tests.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// InsecureSkipVerify reports whether TLS verification is disabled.
func (c *Client) InsecureSkipVerify() bool {
	return c.transport.TLSClientConfig != nil && c.transport.TLSClientConfig.InsecureSkipVerify
}

// Send executes req and returns the fully read response.
//
// Failures are returned as *Error with a Category; they are never retried.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.wrapError(req, err)
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := req.Build(ctx, c.baseURL)
	if err != nil {
		return nil, &Error{Category: CategoryOther, Method: req.Method, URL: req.URL, Err: err}
	}

	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}

	trace := newTraceRecorder(time.Now())
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), trace.clientTrace()))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.wrapError(req, err)
	}
	defer httpResp.Body.Close()

	transferStart := time.Now()
	body, err := io.ReadAll(httpResp.Body)
	timing := trace.timing()
	timing.ContentTransferTime = time.Since(transferStart)
	timing.TotalTime = time.Since(timing.StartTime)
	if err != nil {
		return nil, c.wrapError(req, err)
	}

	return &Response{
		Name:       req.MetricName(),
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    httpResp.Header,
		Body:       body,
		Timing:     timing,
	}, nil
}

// CloseIdleConnections releases pooled connections at the end of a run.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) wrapError(req *Request, err error) error {
	return &Error{
		Category: Classify(err),
		Method:   req.Method,
		URL:      req.URL,
		Err:      err,
	}
}

// traceRecorder collects connection phase timings. Hooks fire on dial and
// read goroutines, and a parallel dial may report after Send returns; mu
// guards every field.
type traceRecorder struct {
	mu sync.Mutex
	t  TimingInfo

	dnsStart, connectStart, tlsStart time.Time
	lastPhaseEnd                     time.Time
}

func newTraceRecorder(start time.Time) *traceRecorder {
	return &traceRecorder{t: TimingInfo{StartTime: start}, lastPhaseEnd: start}
}

// timing returns a copy of the timings recorded so far.
func (r *traceRecorder) timing() TimingInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t
}

func (r *traceRecorder) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			r.mu.Lock()
			r.dnsStart = time.Now()
			r.mu.Unlock()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if !r.dnsStart.IsZero() {
				r.lastPhaseEnd = time.Now()
				r.t.DNSLookupTime = r.lastPhaseEnd.Sub(r.dnsStart)
			}
		},
		ConnectStart: func(string, string) {
			r.mu.Lock()
			r.connectStart = time.Now()
			r.mu.Unlock()
		},
		ConnectDone: func(_, _ string, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if err == nil && !r.connectStart.IsZero() {
				r.lastPhaseEnd = time.Now()
				r.t.TCPConnectTime = r.lastPhaseEnd.Sub(r.connectStart)
			}
		},
		TLSHandshakeStart: func() {
			r.mu.Lock()
			r.tlsStart = time.Now()
			r.mu.Unlock()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if err == nil && !r.tlsStart.IsZero() {
				r.lastPhaseEnd = time.Now()
				r.t.TLSHandshakeTime = r.lastPhaseEnd.Sub(r.tlsStart)
			}
		},
		GotFirstResponseByte: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.t.TimeToFirstByte = time.Since(r.lastPhaseEnd)
		},
	}
}
