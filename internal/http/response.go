package http

import (
	"encoding/json"
	"net/http"
	"time"
)

// TimingInfo breaks a request down into its network phases.
type TimingInfo struct {
	StartTime        time.Time     `json:"startTime"`
	DNSLookupTime    time.Duration `json:"dnsLookup"`
	TCPConnectTime   time.Duration `json:"tcpConnect"`
	TLSHandshakeTime time.Duration `json:"tlsHandshake"`
	TimeToFirstByte  time.Duration `json:"timeToFirstByte"`

	// ContentTransferTime is the time spent reading the body
	ContentTransferTime time.Duration `json:"contentTransfer"`

	// TotalTime is the full request latency including the body
	TotalTime time.Duration `json:"total"`
}

// Response is a fully read HTTP response.
type Response struct {
	Name       string
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
	Timing     TimingInfo
}

// BodyString returns the body as a string.
func (r *Response) BodyString() string {
	return string(r.Body)
}

// JSON unmarshals the body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Header returns the first value of the named header.
func (r *Response) Header(key string) string {
	return r.Headers.Get(key)
}

// Duration returns the total request latency.
func (r *Response) Duration() time.Duration {
	return r.Timing.TotalTime
}

// IsSuccess returns true if the response status code is in the 2xx range
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsClientError returns true if the response status code is in the 4xx range
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError returns true if the response status code is in the 5xx range
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}
