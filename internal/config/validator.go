package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/wesleyorama2/surge/internal/check"
	"github.com/wesleyorama2/surge/internal/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a *ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	return c.validate(true)
}

// ValidateLoad validates everything except the presence of requests. It is
// used when the iteration body is supplied in code.
func (c *TestConfig) ValidateLoad() error {
	return c.validate(false)
}

func (c *TestConfig) validate(requireRequests bool) error {
	errs := &ValidationErrors{}

	validateStages(c.Stages, errs)
	validateSettings(&c.Settings, errs)

	if c.Pause != nil {
		if _, err := c.Pacing(); err != nil {
			errs.Add("pause", err.Error())
		}
	}

	if requireRequests && len(c.Requests) == 0 {
		errs.Add("requests", "at least one request is required")
	}
	for i := range c.Requests {
		validateRequest(fmt.Sprintf("requests[%d]", i), &c.Requests[i], errs)
	}

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if c.TickInterval < 0 {
		errs.Add("tickInterval", "must be non-negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateStages(stages []StageConfig, errs *ValidationErrors) {
	if len(stages) == 0 {
		errs.Add("stages", "at least one stage is required")
		return
	}

	for i, stage := range stages {
		prefix := fmt.Sprintf("stages[%d]", i)

		d, err := ParseDurationString(stage.Duration)
		switch {
		case stage.Duration == "":
			errs.Add(prefix+".duration", "duration is required")
		case err != nil:
			errs.Add(prefix+".duration", err.Error())
		case d < 0:
			errs.Add(prefix+".duration", "duration must be non-negative")
		}

		if stage.Target < 0 {
			errs.Add(prefix+".target", "target must be non-negative")
		}
	}
}

func validateSettings(s *Settings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %s", s.BaseURL))
		}
	}
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "must be non-negative")
	}
	if s.RPS < 0 {
		errs.Add("settings.rps", "must be non-negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "must be non-negative")
	}
}

func validateRequest(prefix string, req *RequestConfig, errs *ValidationErrors) {
	if req.URL == "" {
		errs.Add(prefix+".url", "url is required")
	}

	if req.Method != "" && !validMethods[strings.ToUpper(req.Method)] {
		errs.Add(prefix+".method", fmt.Sprintf("unsupported HTTP method: %s", req.Method))
	}

	if _, err := ParseDurationString(req.Timeout); err != nil {
		errs.Add(prefix+".timeout", err.Error())
	}
	if _, err := ParseDurationString(req.ThinkTime); err != nil {
		errs.Add(prefix+".thinkTime", err.Error())
	}

	for i, ext := range req.Extract {
		field := fmt.Sprintf("%s.extract[%d]", prefix, i)
		if ext.Name == "" {
			errs.Add(field+".name", "name is required")
		}
		switch ext.Source {
		case "body", "status":
		case "header":
			if ext.Path == "" {
				errs.Add(field+".path", "header extraction requires a path")
			}
		default:
			errs.Add(field+".source", fmt.Sprintf("unknown source: %q", ext.Source))
		}
		if ext.Regex != "" {
			if _, err := regexp.Compile(ext.Regex); err != nil {
				errs.Add(field+".regex", err.Error())
			}
		}
	}

	for i, c := range req.Checks {
		if _, err := check.Build(c.Spec); err != nil {
			errs.Add(fmt.Sprintf("%s.checks[%d]", prefix, i), err.Error())
		}
	}
}

type thresholdGroup struct {
	metric threshold.Metric
	exprs  []string
}

func (t *ThresholdsConfig) groups() []thresholdGroup {
	return []thresholdGroup{
		{threshold.HTTPReqDuration, t.HTTPReqDuration},
		{threshold.HTTPReqFailed, t.HTTPReqFailed},
		{threshold.HTTPReqs, t.HTTPReqs},
		{threshold.Checks, t.Checks},
		{threshold.Iterations, t.Iterations},
	}
}

func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	for _, g := range t.groups() {
		for i, expr := range g.exprs {
			if _, err := threshold.Parse(g.metric, expr); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", g.metric, i), err.Error())
			}
		}
	}
}

// Expressions parses every configured threshold, in a stable order.
func (t *ThresholdsConfig) Expressions() ([]threshold.Expression, error) {
	if t == nil {
		return nil, nil
	}

	var out []threshold.Expression
	for _, g := range t.groups() {
		for _, expr := range g.exprs {
			e, err := threshold.Parse(g.metric, expr)
			if err != nil {
				return nil, fmt.Errorf("thresholds.%s: %w", g.metric, err)
			}
			out = append(out, e)
		}
	}
	return out, nil
}
