package check

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/surge/internal/http"
)

// Spec is a declarative assertion, as written in a test configuration.
type Spec struct {
	// Type is the assertion type: "status", "header", "body", "jsonpath", "schema", "duration"
	Type string `json:"type" yaml:"type"`

	// Condition is the comparison: "eq", "ne", "gt", "lt", "gte", "lte", "contains", "matches", "exists"
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Value is the expected value (a JSON schema document for "schema")
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Path is the header name or JSONPath expression
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Build compiles a Spec into a Predicate. Regexes and schemas are compiled
// once here rather than on every evaluation.
func Build(spec Spec) (Predicate, error) {
	condition := spec.Condition
	if condition == "" {
		condition = "eq"
	}

	switch spec.Type {
	case "status":
		return compare(condition, spec.Value, func(resp *http.Response) (string, bool) {
			return strconv.Itoa(resp.StatusCode), true
		})

	case "header":
		if spec.Path == "" {
			return nil, fmt.Errorf("header assertion requires a path (header name)")
		}
		return compare(condition, spec.Value, func(resp *http.Response) (string, bool) {
			values := resp.Headers.Values(spec.Path)
			if len(values) == 0 {
				return "", false
			}
			return strings.Join(values, ", "), true
		})

	case "body":
		return compare(condition, spec.Value, func(resp *http.Response) (string, bool) {
			return resp.BodyString(), true
		})

	case "jsonpath":
		if spec.Path == "" {
			return nil, fmt.Errorf("jsonpath assertion requires a path")
		}
		return compare(condition, spec.Value, func(resp *http.Response) (string, bool) {
			value, err := ExtractJSON(resp.BodyString(), spec.Path)
			if err != nil {
				return "", false
			}
			return value, true
		})

	case "schema":
		return JSONSchema(spec.Value)

	case "duration":
		limit, err := time.ParseDuration(spec.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", spec.Value, err)
		}
		if condition == "eq" {
			condition = "lt"
		}
		return compare(condition, strconv.FormatInt(int64(limit), 10), func(resp *http.Response) (string, bool) {
			return strconv.FormatInt(int64(resp.Duration()), 10), true
		})

	default:
		return nil, fmt.Errorf("unknown assertion type: %q", spec.Type)
	}
}

// Status passes when the response has the given status code.
func Status(code int) Predicate {
	return Func(func(resp *http.Response) bool {
		return resp != nil && resp.StatusCode == code
	})
}

// StatusBetween passes for status codes in [lo, hi].
func StatusBetween(lo, hi int) Predicate {
	return Func(func(resp *http.Response) bool {
		return resp != nil && resp.StatusCode >= lo && resp.StatusCode <= hi
	})
}

// BodyContains passes when the body contains substr.
func BodyContains(substr string) Predicate {
	return Func(func(resp *http.Response) bool {
		return resp != nil && strings.Contains(resp.BodyString(), substr)
	})
}

// DurationBelow passes when the request finished in less than limit.
func DurationBelow(limit time.Duration) Predicate {
	return Func(func(resp *http.Response) bool {
		return resp != nil && resp.Duration() < limit
	})
}

// compare builds a predicate that extracts a string from the response and
// compares it to expected. extract returning false means "value absent".
func compare(condition, expected string, extract func(*http.Response) (string, bool)) (Predicate, error) {
	var re *regexp.Regexp
	switch condition {
	case "eq", "ne", "contains", "exists":
	case "gt", "lt", "gte", "lte":
		if _, err := strconv.ParseFloat(expected, 64); err != nil {
			return nil, fmt.Errorf("condition %q needs a numeric value, got %q", condition, expected)
		}
	case "matches":
		var err error
		re, err = regexp.Compile(expected)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", expected, err)
		}
	default:
		return nil, fmt.Errorf("unknown condition: %q", condition)
	}

	return func(resp *http.Response) (bool, error) {
		if resp == nil {
			return false, nil
		}

		actual, ok := extract(resp)
		if condition == "exists" {
			return ok, nil
		}
		if !ok {
			return false, nil
		}

		switch condition {
		case "eq":
			return actual == expected, nil
		case "ne":
			return actual != expected, nil
		case "contains":
			return strings.Contains(actual, expected), nil
		case "matches":
			return re.MatchString(actual), nil
		default:
			return compareNumeric(condition, actual, expected)
		}
	}, nil
}

func compareNumeric(condition, actual, expected string) (bool, error) {
	a, err := strconv.ParseFloat(actual, 64)
	if err != nil {
		return false, fmt.Errorf("value %q is not numeric", actual)
	}
	e, _ := strconv.ParseFloat(expected, 64)

	switch condition {
	case "gt":
		return a > e, nil
	case "lt":
		return a < e, nil
	case "gte":
		return a >= e, nil
	case "lte":
		return a <= e, nil
	}
	return false, fmt.Errorf("unknown condition: %q", condition)
}
