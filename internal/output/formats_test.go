package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/surge/internal/engine"
	"github.com/wesleyorama2/surge/internal/http"
	"github.com/wesleyorama2/surge/internal/metrics"
	"github.com/wesleyorama2/surge/internal/schedule"
	"github.com/wesleyorama2/surge/internal/threshold"
)

func sampleResult() *engine.Result {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &engine.Result{
		RunID:     "3b241101-e2bb-4255-8caf-4136c566a962",
		Name:      "checkout",
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		Duration:  90 * time.Second,
		Stages: []schedule.Stage{
			{Duration: 30 * time.Second, Target: 50, Name: "ramp"},
			{Duration: time.Minute, Target: 50, Name: "hold"},
		},
		Metrics: metrics.Snapshot{
			Iterations:     1200,
			Requests:       2400,
			FailedRequests: 24,
			Bytes:          3 << 20,
			Errors:         map[http.Category]int64{http.CategoryTimeout: 20},
			Checks: map[string]metrics.CheckStats{
				"status is 200": {Passed: 2376, Failed: 24},
				"has token":     {Passed: 1200},
			},
			ChecksPassed: 3576,
			ChecksFailed: 24,
			Latency: metrics.LatencyStats{
				Min: 2 * time.Millisecond, Max: 900 * time.Millisecond, Mean: 40 * time.Millisecond,
				P50: 30 * time.Millisecond, P90: 80 * time.Millisecond, P95: 120 * time.Millisecond,
				P99: 400 * time.Millisecond, Count: 2380,
			},
			RequestLatency: map[string]metrics.LatencyStats{
				"login":   {Mean: 50 * time.Millisecond, P95: 150 * time.Millisecond, Count: 1190},
				"profile": {Mean: 30 * time.Millisecond, P95: 90 * time.Millisecond, Count: 1190},
			},
			IterationDuration: metrics.LatencyStats{Mean: 1100 * time.Millisecond, P95: 1500 * time.Millisecond, Count: 1200},
			Phase:             metrics.PhaseDone,
			PhaseHistory: []metrics.PhaseChange{
				{Phase: metrics.PhaseInit, Timestamp: start},
				{Phase: metrics.PhaseRampUp, Timestamp: start},
				{Phase: metrics.PhaseSteady, Timestamp: start.Add(30 * time.Second)},
				{Phase: metrics.PhaseDone, Timestamp: start.Add(90 * time.Second)},
			},
			MaxVUs: 50,
			Frozen: true,
		},
		Passed: false,
		Thresholds: []threshold.Result{
			{Metric: "http_req_duration", Expression: "p95 < 500ms", Passed: true, Value: "120ms"},
			{Metric: "http_req_failed", Expression: "rate < 0.001", Passed: false, Value: "0.0100",
				Message: "error rate is 0.0100, threshold: < 0.0010"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"junit", FormatJUnit, false},
		{"csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleResult()); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var decoded struct {
		RunID   string `json:"runId"`
		Passed  bool   `json:"passed"`
		Metrics struct {
			Requests int64            `json:"requests"`
			Errors   map[string]int64 `json:"errors"`
		} `json:"metrics"`
		Thresholds []threshold.Result `json:"thresholds"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if decoded.RunID != "3b241101-e2bb-4255-8caf-4136c566a962" {
		t.Errorf("runId = %q", decoded.RunID)
	}
	if decoded.Passed {
		t.Error("passed should be false")
	}
	if decoded.Metrics.Requests != 2400 {
		t.Errorf("metrics.requests = %d, want 2400", decoded.Metrics.Requests)
	}
	if decoded.Metrics.Errors["timeout"] != 20 {
		t.Errorf("metrics.errors.timeout = %d, want 20", decoded.Metrics.Errors["timeout"])
	}
	if len(decoded.Thresholds) != 2 {
		t.Errorf("thresholds = %d, want 2", len(decoded.Thresholds))
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteYAML(&buf, sampleResult()); err != nil {
		t.Fatalf("WriteYAML() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if decoded["name"] != "checkout" {
		t.Errorf("name = %v, want checkout", decoded["name"])
	}
	if !strings.Contains(buf.String(), "runId:") {
		t.Errorf("YAML keys should follow JSON names:\n%s", buf.String())
	}
}

func TestBuildJUnit(t *testing.T) {
	suites := BuildJUnit(sampleResult())

	if suites.Tests != 4 {
		t.Errorf("Tests = %d, want 4", suites.Tests)
	}
	if suites.Failures != 2 {
		t.Errorf("Failures = %d, want 2", suites.Failures)
	}
	if len(suites.TestSuites) != 2 {
		t.Fatalf("TestSuites = %d, want 2", len(suites.TestSuites))
	}

	thresholds := suites.TestSuites[0]
	if thresholds.TestCases[0].Failure != nil {
		t.Error("passing threshold should not have a failure")
	}
	if f := thresholds.TestCases[1].Failure; f == nil || f.Type != "ThresholdFailure" {
		t.Errorf("failing threshold failure = %+v", f)
	}

	checks := suites.TestSuites[1]
	if checks.TestCases[0].Name != "has token" || checks.TestCases[0].Failure != nil {
		t.Errorf("first check case = %+v, want passing 'has token'", checks.TestCases[0])
	}
	if f := checks.TestCases[1].Failure; f == nil || !strings.Contains(f.Message, "24 of 2400") {
		t.Errorf("failing check failure = %+v", f)
	}
}

func TestWriteJUnit(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJUnit(&buf, sampleResult()); err != nil {
		t.Fatalf("WriteJUnit() error = %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, xml.Header) {
		t.Error("JUnit output should start with the XML header")
	}
	if !strings.Contains(out, `<testsuite name="thresholds" tests="2" failures="1"`) {
		t.Errorf("missing thresholds suite:\n%s", out)
	}

	var decoded JUnitTestSuites
	if err := xml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid XML: %v", err)
	}
	if decoded.Tests != 4 {
		t.Errorf("decoded tests = %d, want 4", decoded.Tests)
	}
}

func TestWrite_Text(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})

	if err := Write(&buf, FormatText, sampleResult(), console); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), "checkout - Failed") {
		t.Errorf("text output should contain the summary header:\n%s", buf.String())
	}
}
