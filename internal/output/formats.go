package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/surge/internal/engine"
)

// OutputFormat represents the available output formats
type OutputFormat string

const (
	// FormatText is the default human-readable summary
	FormatText OutputFormat = "text"
	// FormatJSON outputs the full result as JSON
	FormatJSON OutputFormat = "json"
	// FormatYAML outputs the full result as YAML
	FormatYAML OutputFormat = "yaml"
	// FormatJUnit outputs thresholds and checks as JUnit XML (for CI/CD integration)
	FormatJUnit OutputFormat = "junit"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML, FormatJUnit:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected text, json, yaml or junit)", s)
	}
}

// Write renders result to w in the given format. Text output goes through
// console.
func Write(w io.Writer, format OutputFormat, result *engine.Result, console *Console) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, result)
	case FormatYAML:
		return WriteYAML(w, result)
	case FormatJUnit:
		return WriteJUnit(w, result)
	default:
		console.PrintSummary(result)
		return nil
	}
}

// WriteJSON writes result as indented JSON.
func WriteJSON(w io.Writer, result *engine.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// WriteYAML writes result as YAML. Keys follow the JSON field names.
func WriteYAML(w io.Writer, result *engine.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return enc.Close()
}

// JUnitTestSuites represents the root element containing all test suites
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a JUnit test suite
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemOut string          `xml:"system-out,omitempty"`
}

// JUnitTestCase represents a JUnit test case
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

// JUnitFailure represents a JUnit test failure
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// BuildJUnit converts a result into JUnit suites: one case per threshold and
// one per named check. A check fails its case when any evaluation failed.
func BuildJUnit(result *engine.Result) *JUnitTestSuites {
	seconds := result.Duration.Seconds()
	timestamp := result.StartTime.Format(time.RFC3339)

	thresholds := JUnitTestSuite{
		Name:      "thresholds",
		Time:      seconds,
		Timestamp: timestamp,
		TestCases: []JUnitTestCase{},
	}
	for _, t := range result.Thresholds {
		tc := JUnitTestCase{
			Name:      fmt.Sprintf("%s: %s", t.Metric, t.Expression),
			Classname: "surge." + result.Name + ".thresholds",
			SystemOut: "actual: " + t.Value,
		}
		if !t.Passed {
			tc.Failure = &JUnitFailure{Message: t.Message, Type: "ThresholdFailure", Content: t.Message}
			thresholds.Failures++
		}
		thresholds.TestCases = append(thresholds.TestCases, tc)
	}
	thresholds.Tests = len(thresholds.TestCases)

	checks := JUnitTestSuite{
		Name:      "checks",
		Time:      seconds,
		Timestamp: timestamp,
		TestCases: []JUnitTestCase{},
	}
	for _, name := range sortedKeys(result.Metrics.Checks) {
		cs := result.Metrics.Checks[name]
		tc := JUnitTestCase{
			Name:      name,
			Classname: "surge." + result.Name + ".checks",
			SystemOut: fmt.Sprintf("passed %d of %d", cs.Passed, cs.Total()),
		}
		if cs.Failed > 0 {
			msg := fmt.Sprintf("%d of %d evaluations failed", cs.Failed, cs.Total())
			if cs.EvalErrors > 0 {
				msg += fmt.Sprintf(" (%d evaluation errors)", cs.EvalErrors)
			}
			tc.Failure = &JUnitFailure{Message: msg, Type: "CheckFailure", Content: msg}
			checks.Failures++
		}
		checks.TestCases = append(checks.TestCases, tc)
	}
	checks.Tests = len(checks.TestCases)

	return &JUnitTestSuites{
		Name:       result.Name,
		Tests:      thresholds.Tests + checks.Tests,
		Failures:   thresholds.Failures + checks.Failures,
		Time:       seconds,
		TestSuites: []JUnitTestSuite{thresholds, checks},
	}
}

// WriteJUnit writes the JUnit XML report for result.
func WriteJUnit(w io.Writer, result *engine.Result) error {
	output, err := xml.MarshalIndent(BuildJUnit(result), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JUnit report: %w", err)
	}

	if _, err := io.WriteString(w, xml.Header+string(output)+"\n"); err != nil {
		return err
	}
	return nil
}
