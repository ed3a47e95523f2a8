// Package scenario turns the requests of a test configuration into a
// vu.Body: each iteration sends the requests in order, extracts variables
// and evaluates checks.
package scenario

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/surge/internal/check"
	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/http"
	"github.com/wesleyorama2/surge/internal/vu"
)

// Scenario is a compiled list of requests. It is immutable and shared by
// every VU of a run; per-VU state lives in the iteration's variable scope.
type Scenario struct {
	name      string
	variables map[string]string
	steps     []*step
}

type step struct {
	name      string
	method    string
	url       string
	headers   map[string]string
	body      string
	timeout   time.Duration
	thinkTime time.Duration
	extract   []extractor
	checks    []namedCheck
}

type extractor struct {
	name   string
	source string
	path   string
	regex  *regexp.Regexp
}

type namedCheck struct {
	name string
	pred check.Predicate
}

// New compiles the requests of cfg. Checks and extract patterns are compiled
// once here.
func New(cfg *config.TestConfig) (*Scenario, error) {
	if len(cfg.Requests) == 0 {
		return nil, fmt.Errorf("scenario has no requests")
	}

	s := &Scenario{
		name:      cfg.Name,
		variables: make(map[string]string, len(cfg.Variables)+1),
	}
	for k, v := range cfg.Variables {
		s.variables[k] = v
	}
	if _, ok := s.variables["baseUrl"]; !ok && cfg.Settings.BaseURL != "" {
		s.variables["baseUrl"] = strings.TrimSuffix(cfg.Settings.BaseURL, "/")
	}

	for i, rc := range cfg.Requests {
		st, err := compileStep(rc)
		if err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
		s.steps = append(s.steps, st)
	}

	return s, nil
}

func compileStep(rc config.RequestConfig) (*step, error) {
	st := &step{
		name:    rc.Name,
		method:  strings.ToUpper(rc.Method),
		url:     rc.URL,
		headers: rc.Headers,
		body:    rc.Body,
	}
	if st.method == "" {
		st.method = "GET"
	}

	var err error
	if st.timeout, err = config.ParseDurationString(rc.Timeout); err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}
	if st.thinkTime, err = config.ParseDurationString(rc.ThinkTime); err != nil {
		return nil, fmt.Errorf("thinkTime: %w", err)
	}

	for j, ec := range rc.Extract {
		ext := extractor{name: ec.Name, source: ec.Source, path: ec.Path}
		if ec.Regex != "" {
			if ext.regex, err = regexp.Compile(ec.Regex); err != nil {
				return nil, fmt.Errorf("extract[%d]: invalid regex: %w", j, err)
			}
		}
		st.extract = append(st.extract, ext)
	}

	for j, cc := range rc.Checks {
		pred, err := check.Build(cc.Spec)
		if err != nil {
			return nil, fmt.Errorf("checks[%d]: %w", j, err)
		}
		name := cc.Name
		if name == "" {
			name = fmt.Sprintf("%s %s", cc.Type, cc.Value)
		}
		st.checks = append(st.checks, namedCheck{name: name, pred: pred})
	}

	return st, nil
}

// Name returns the scenario name.
func (s *Scenario) Name() string {
	return s.name
}

var _ vu.Body = (*Scenario)(nil)

// Execute runs one iteration. A failed request is recorded by the iteration
// and its checks fail; the remaining requests still run.
func (s *Scenario) Execute(ctx context.Context, it *vu.Iteration) error {
	for i, st := range s.steps {
		vars := s.scope(it)

		req := http.NewRequest(st.method, resolve(st.url, vars))
		req.WithName(st.name).WithTimeout(st.timeout)
		for k, v := range st.headers {
			req.WithHeader(k, resolve(v, vars))
		}
		if st.body != "" {
			req.WithBody(resolve(st.body, vars))
		}

		resp, err := it.Send(ctx, req)
		for _, c := range st.checks {
			it.Check(c.name, resp, c.pred)
		}
		if err == nil {
			for _, ext := range st.extract {
				if value, ok := ext.apply(resp); ok {
					it.Set(ext.name, value)
				}
			}
		}

		if st.thinkTime > 0 && i < len(s.steps)-1 {
			sleep(ctx, st.thinkTime)
		}
	}
	return nil
}

// scope merges scenario variables with the VU's extracted values; extracted
// values win.
func (s *Scenario) scope(it *vu.Iteration) map[string]string {
	vars := make(map[string]string, len(s.variables))
	for k, v := range s.variables {
		vars[k] = v
	}
	for k, v := range it.Vars() {
		vars[k] = v
	}
	vars["__VU"] = strconv.FormatUint(it.VUID(), 10)
	vars["__ITER"] = strconv.FormatUint(it.Number(), 10)
	return vars
}

// resolve replaces {{name}} placeholders. Unknown placeholders are left as-is.
func resolve(input string, vars map[string]string) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	result := input
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

func (e extractor) apply(resp *http.Response) (string, bool) {
	var value string

	switch e.source {
	case "header":
		value = resp.Header(e.path)
	case "status":
		value = strconv.Itoa(resp.StatusCode)
	case "body":
		if e.path != "" {
			v, err := check.ExtractJSON(resp.BodyString(), e.path)
			if err != nil {
				return "", false
			}
			value = v
		} else {
			value = resp.BodyString()
		}
	default:
		return "", false
	}

	if e.regex != nil {
		m := e.regex.FindStringSubmatch(value)
		switch {
		case m == nil:
			return "", false
		case len(m) > 1:
			value = m[1]
		default:
			value = m[0]
		}
	}

	return value, value != ""
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
