package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request describes one request issued by a virtual user.
type Request struct {
	// Name groups the request in metrics (defaults to "METHOD URL")
	Name string

	Method  string
	URL     string
	Headers map[string]string

	// Body may be a string, []byte, io.Reader or any JSON-marshalable value
	Body interface{}

	// Timeout overrides the client timeout when > 0
	Timeout time.Duration
}

// NewRequest creates a new request.
func NewRequest(method, rawURL string) *Request {
	return &Request{
		Method:  method,
		URL:     rawURL,
		Headers: make(map[string]string),
	}
}

// WithName sets the metrics name of the request.
func (r *Request) WithName(name string) *Request {
	r.Name = name
	return r
}

// WithHeader adds a header to the request
func (r *Request) WithHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// WithBody sets the body of the request
func (r *Request) WithBody(body interface{}) *Request {
	r.Body = body
	return r
}

// WithTimeout sets a per-request timeout.
func (r *Request) WithTimeout(timeout time.Duration) *Request {
	r.Timeout = timeout
	return r
}

// MetricName returns the name the request is recorded under.
func (r *Request) MetricName() string {
	if r.Name != "" {
		return r.Name
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + r.URL
}

// Build constructs a *http.Request, resolving a relative URL against baseURL.
func (r *Request) Build(ctx context.Context, baseURL string) (*http.Request, error) {
	target, err := resolveURL(baseURL, r.URL)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	contentType := ""
	if r.Body != nil {
		switch body := r.Body.(type) {
		case string:
			bodyReader = strings.NewReader(body)
		case []byte:
			bodyReader = bytes.NewReader(body)
		case io.Reader:
			bodyReader = body
		default:
			jsonBody, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewReader(jsonBody)
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, value := range r.Headers {
		if strings.ContainsAny(key, "\r\n") || strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header %q", key)
		}
		req.Header.Set(key, value)
	}

	return req, nil
}

func resolveURL(baseURL, rawURL string) (string, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if ref.IsAbs() || baseURL == "" {
		if !ref.IsAbs() {
			return "", fmt.Errorf("URL %q is relative and no base URL is configured", rawURL)
		}
		return ref.String(), nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	// Join paths so "/api" + "users" and "/api/" + "/users" both give "/api/users".
	joined := *base
	joined.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	joined.RawQuery = ref.RawQuery
	return joined.String(), nil
}
