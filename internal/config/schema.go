// Package config provides configuration parsing and validation for load tests.
package config

import (
	"time"

	"github.com/wesleyorama2/surge/internal/check"
)

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "API Load Test"
//	settings:
//	  baseUrl: "https://api.example.com"
//	  timeout: 10s
//	stages:
//	  - duration: 30s
//	    target: 50
//	  - duration: 1m
//	    target: 50
//	  - duration: 10s
//	    target: 0
//	pause:
//	  type: random
//	  min: 500ms
//	  max: 1500ms
//	requests:
//	  - name: "List users"
//	    method: GET
//	    url: "{{baseUrl}}/api/users"
//	    checks:
//	      - name: "status is 200"
//	        type: status
//	        value: "200"
//	thresholds:
//	  http_req_duration: ["p95 < 500ms"]
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains global HTTP settings
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are available to every request as {{name}}
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Stages is the concurrency schedule
	Stages []StageConfig `json:"stages" yaml:"stages"`

	// Pause is applied after every iteration
	Pause *PauseConfig `json:"pause,omitempty" yaml:"pause,omitempty"`

	// Requests are executed in order once per iteration
	Requests []RequestConfig `json:"requests" yaml:"requests"`

	// Thresholds define pass/fail criteria for the run
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// TickInterval is how often the VU pool is reconciled (default: 100ms)
	TickInterval Duration `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`
}

// Settings contains global HTTP settings.
type Settings struct {
	// BaseURL is the default base URL for all requests
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the default HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// RPS caps the request rate across all VUs (0 = unlimited)
	RPS float64 `json:"rps,omitempty" yaml:"rps,omitempty"`
}

// StageConfig defines a single stage of the schedule.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PauseConfig controls the pause between iterations.
type PauseConfig struct {
	// Type is the pacing strategy: "none", "constant", "random"
	Type string `json:"type" yaml:"type"`

	// Duration is the wait time for constant pacing
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min is the minimum wait time for random pacing
	Min string `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the maximum wait time for random pacing
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	// Name for this request (used in metrics)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is the HTTP method (GET, POST, PUT, DELETE, etc.)
	Method string `json:"method" yaml:"method"`

	// URL is the request URL (supports variable substitution)
	URL string `json:"url" yaml:"url"`

	// Headers are request-specific headers
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is the request body (supports variable substitution)
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Timeout is request-specific timeout (overrides global)
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ThinkTime is wait time after this request
	ThinkTime string `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// Extract defines variable extraction from response
	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`

	// Checks are named assertions evaluated on the response
	Checks []CheckConfig `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// ExtractConfig defines how to extract variables from a response.
type ExtractConfig struct {
	// Name of the variable to store
	Name string `json:"name" yaml:"name"`

	// Source is where to extract from: "body", "header", "status"
	Source string `json:"source" yaml:"source"`

	// Path is the header name, or JSONPath for body
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Regex is an optional pattern; the first capture group (or the whole
	// match) becomes the value
	Regex string `json:"regex,omitempty" yaml:"regex,omitempty"`
}

// CheckConfig is a named assertion.
type CheckConfig struct {
	// Name identifies the check in results (defaults to "<type> <condition> <value>")
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	check.Spec `yaml:",inline"`
}

// ThresholdsConfig defines pass/fail criteria for the test.
type ThresholdsConfig struct {
	// HTTPReqDuration thresholds for request duration
	// e.g., ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds for failure rate
	// e.g., ["rate < 0.01"] (less than 1% failures)
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds for request count/rate
	// e.g., ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`

	// Checks thresholds for the check pass rate
	// e.g., ["rate > 0.99"]
	Checks []string `json:"checks,omitempty" yaml:"checks,omitempty"`

	// Iterations thresholds for iteration count/rate
	Iterations []string `json:"iterations,omitempty" yaml:"iterations,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
