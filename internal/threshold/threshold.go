// Package threshold parses and evaluates pass/fail criteria such as
// "p95 < 500ms" against a metrics snapshot.
package threshold

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/surge/internal/metrics"
)

// Metric names a thresholded metric.
type Metric string

const (
	// HTTPReqDuration thresholds request latency, e.g. "p95 < 500ms"
	HTTPReqDuration Metric = "http_req_duration"
	// HTTPReqFailed thresholds the failed request rate, e.g. "rate < 0.01"
	HTTPReqFailed Metric = "http_req_failed"
	// HTTPReqs thresholds request count or throughput, e.g. "count > 1000"
	HTTPReqs Metric = "http_reqs"
	// Checks thresholds the check pass rate, e.g. "rate > 0.99"
	Checks Metric = "checks"
	// Iterations thresholds iteration count or rate, e.g. "count > 10"
	Iterations Metric = "iterations"
)

var expressionRe = regexp.MustCompile(`^([\w()]+)\s*([<>=!]+)\s*(.+)$`)

var validOps = map[string]bool{"<": true, "<=": true, ">": true, ">=": true, "==": true, "=": true, "!=": true, "<>": true}

// Expression is a parsed threshold like "p95 < 500ms".
type Expression struct {
	Metric Metric
	Stat   string
	Op     string

	// Value is nanoseconds for http_req_duration, a plain number otherwise
	Value float64

	Raw string
}

// Result contains the result of a threshold evaluation.
type Result struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// Parse parses expr for metric.
func Parse(metric Metric, expr string) (Expression, error) {
	raw := strings.TrimSpace(expr)
	matches := expressionRe.FindStringSubmatch(raw)
	if len(matches) != 4 {
		return Expression{}, fmt.Errorf("invalid expression format: %s", expr)
	}

	e := Expression{
		Metric: metric,
		Stat:   normalizeStat(matches[1]),
		Op:     matches[2],
		Raw:    raw,
	}
	valueStr := strings.TrimSpace(matches[3])

	if !validOps[e.Op] {
		return Expression{}, fmt.Errorf("unknown operator %q in %s", e.Op, expr)
	}

	switch metric {
	case HTTPReqDuration:
		if _, ok := (metrics.LatencyStats{}).Percentile(e.Stat); !ok {
			return Expression{}, fmt.Errorf("%s: unknown statistic %q", metric, e.Stat)
		}
		d, err := time.ParseDuration(valueStr)
		if err != nil {
			return Expression{}, fmt.Errorf("failed to parse threshold value: %w", err)
		}
		e.Value = float64(d)
		return e, nil

	case HTTPReqFailed, Checks:
		if e.Stat != "rate" {
			return Expression{}, fmt.Errorf("%s only supports 'rate' metric, got: %s", metric, e.Stat)
		}
	case HTTPReqs, Iterations:
		if e.Stat != "count" && e.Stat != "rate" {
			return Expression{}, fmt.Errorf("%s only supports 'count' or 'rate' metrics, got: %s", metric, e.Stat)
		}
	default:
		return Expression{}, fmt.Errorf("unknown metric: %s", metric)
	}

	v, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Expression{}, fmt.Errorf("failed to parse threshold value: %w", err)
	}
	e.Value = v
	return e, nil
}

// normalizeStat accepts "p(95)" as well as "p95".
func normalizeStat(stat string) string {
	stat = strings.ToLower(stat)
	if strings.HasPrefix(stat, "p(") && strings.HasSuffix(stat, ")") {
		return "p" + stat[2:len(stat)-1]
	}
	return stat
}

// Evaluate checks e against snap. elapsed is the run duration, used for
// rate statistics.
func (e Expression) Evaluate(snap *metrics.Snapshot, elapsed time.Duration) Result {
	result := Result{Metric: string(e.Metric), Expression: e.Raw}

	switch e.Metric {
	case HTTPReqDuration:
		if snap.Latency.Count == 0 {
			result.Value = "no samples"
			result.Message = "no successful requests recorded a latency"
			return result
		}
		actual, _ := snap.Latency.Percentile(e.Stat)
		result.Value = actual.String()
		result.Passed = compareValues(float64(actual), e.Op, e.Value)
		if !result.Passed {
			result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", e.Stat, actual, e.Op, time.Duration(e.Value))
		}
		return result

	case HTTPReqFailed:
		return e.rate(result, "error rate", snap.ErrorRate())

	case Checks:
		return e.rate(result, "check pass rate", snap.CheckRate())

	case HTTPReqs:
		return e.countOrRate(result, snap.Requests, elapsed)

	case Iterations:
		return e.countOrRate(result, snap.Iterations, elapsed)
	}

	result.Message = fmt.Sprintf("unknown metric: %s", e.Metric)
	return result
}

func (e Expression) rate(result Result, label string, actual float64) Result {
	result.Value = fmt.Sprintf("%.4f", actual)
	result.Passed = compareValues(actual, e.Op, e.Value)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.4f, threshold: %s %.4f", label, actual, e.Op, e.Value)
	}
	return result
}

func (e Expression) countOrRate(result Result, count int64, elapsed time.Duration) Result {
	actual := float64(count)
	if e.Stat == "rate" {
		actual = 0
		if elapsed > 0 {
			actual = float64(count) / elapsed.Seconds()
		}
	}

	result.Value = fmt.Sprintf("%.2f", actual)
	result.Passed = compareValues(actual, e.Op, e.Value)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.2f, threshold: %s %.2f", e.Stat, actual, e.Op, e.Value)
	}
	return result
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=", "<>":
		return actual != threshold
	default:
		return false
	}
}
