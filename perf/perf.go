package perf

import (
	"context"
	"io"

	"github.com/wesleyorama2/surge/internal/check"
	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/engine"
	"github.com/wesleyorama2/surge/internal/http"
	"github.com/wesleyorama2/surge/internal/output"
	"github.com/wesleyorama2/surge/internal/vu"
)

// TestConfig is a complete test definition: stages, pacing, requests and
// thresholds.
type TestConfig = config.TestConfig

// Stage is one ramp segment of a test.
type Stage = config.StageConfig

// Result contains the complete results of a run.
type Result = engine.Result

// Iteration is handed to a custom body once per loop of a virtual user.
type Iteration = vu.Iteration

// BodyFunc adapts a function into an iteration body.
type BodyFunc = vu.BodyFunc

// Request is an HTTP request sent from an iteration body.
type Request = http.Request

// Response is the buffered response to a Request.
type Response = http.Response

// Predicate is a check evaluated against a response.
type Predicate = check.Predicate

// NewRequest creates a request. Relative URLs are resolved against
// settings.baseUrl.
func NewRequest(method, url string) *Request {
	return http.NewRequest(method, url)
}

// Status passes when the response has the given status code.
func Status(code int) Predicate {
	return check.Status(code)
}

// Option configures a Runner.
type Option = engine.Option

// WithBody replaces the configured requests with a custom iteration body.
func WithBody(fn BodyFunc) Option {
	return engine.WithBody(fn)
}

// LoadConfig loads a test configuration from a YAML or JSON file.
func LoadConfig(path string) (*TestConfig, error) {
	return config.LoadConfig(path)
}

// Runner provides a high-level API for running load tests.
//
// For programmatic test execution, create a Runner and call Run:
//
//	cfg, _ := perf.LoadConfig("test.yaml")
//	runner, _ := perf.NewRunner(cfg)
//	result, _ := runner.Run(context.Background())
type Runner struct {
	engine *engine.Engine
}

// NewRunner validates cfg and prepares a runner. Schedule and configuration
// errors are returned here, before any virtual user starts.
func NewRunner(cfg *TestConfig, opts ...Option) (*Runner, error) {
	e, err := engine.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Runner{engine: e}, nil
}

// Run executes the test and blocks until the schedule finishes or ctx is
// cancelled. A cancelled run still returns the partial result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.engine.Run(ctx)
}

// RunTest is a convenience wrapper around NewRunner and Run.
func RunTest(ctx context.Context, cfg *TestConfig, opts ...Option) (*Result, error) {
	r, err := NewRunner(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// WriteReport writes result to w as "text", "json", "yaml" or "junit".
func WriteReport(w io.Writer, format string, result *Result) error {
	f, err := output.ParseFormat(format)
	if err != nil {
		return err
	}
	console := output.NewConsole(output.ConsoleConfig{Writer: w, NoColor: true})
	return output.Write(w, f, result, console)
}
