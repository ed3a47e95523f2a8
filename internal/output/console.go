// Package output renders load test results for people and machines.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/surge/internal/engine"
	"github.com/wesleyorama2/surge/internal/schedule"
)

const ruleWidth = 56

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
}

// Console prints the run header and the end-of-run summary.
type Console struct {
	writer io.Writer
	colors *ColorScheme
	quiet  bool

	mu sync.Mutex
}

// NewConsole creates a console printer. Colors are used only when the writer
// is a terminal, unless forced or disabled.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	useColors := !config.NoColor && (config.ForceColors || (isTerminal(config.Writer) && supportsColors()))

	colors := NoColorScheme()
	if useColors {
		colors = ForcedColorScheme()
	}

	return &Console{
		writer: config.Writer,
		colors: colors,
		quiet:  config.Quiet,
	}
}

// isTerminal checks if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return checkIsTerminal(f)
	}
	return false
}

// supportsColors checks if the terminal supports colors.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// PrintHeader prints the test name and its stage plan.
func (c *Console) PrintHeader(name string, sched *schedule.Schedule) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rule()
	c.writeln(c.colors.Title.Sprintf("%s - Running", name))
	c.rule()

	c.writeln(fmt.Sprintf("Duration:   %s", c.colors.Value.Sprint(formatDuration(sched.TotalDuration()))))
	c.writeln(fmt.Sprintf("Max VUs:    %s", c.colors.Value.Sprint(sched.MaxTarget())))
	c.writeln(c.colors.Title.Sprint("Stages:"))
	for i, stage := range sched.Stages() {
		c.writeln(fmt.Sprintf("  %d. %-12s %8s -> %d VUs", i+1, stage.Name, formatDuration(stage.Duration), stage.Target))
	}
	c.writeln("")
}

// PrintSummary prints the final test summary.
func (c *Console) PrintSummary(result *engine.Result) {
	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Error.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.colors.Success.Sprint("Completed " + SuccessIcon(true))
	switch {
	case !result.Passed:
		status = c.colors.Error.Sprint("Failed " + ErrorIcon(true))
	case result.Aborted:
		status = c.colors.Warn.Sprint("Aborted " + WarningIcon(true))
	}

	m := result.Metrics
	seconds := result.Duration.Seconds()

	c.writeln("")
	c.rule()
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(result.Name), status))
	c.rule()
	c.writeln("")

	c.writeln(fmt.Sprintf("Run ID:        %s", result.RunID))
	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
	c.writeln(fmt.Sprintf("VUs:           %s max", c.colors.Value.Sprint(m.MaxVUs)))
	c.writeln(fmt.Sprintf("Iterations:    %s (%s/s)", c.colors.Value.Sprint(formatNumber(m.Iterations)), formatRate(m.Iterations, seconds)))
	c.writeln(fmt.Sprintf("Requests:      %s (%s/s)", c.colors.Value.Sprint(formatNumber(m.Requests)), formatRate(m.Requests, seconds)))
	c.writeln(fmt.Sprintf("Failed:        %s",
		c.colors.rateColor(m.ErrorRate()).Sprintf("%s (%.2f%%)", formatNumber(m.FailedRequests), m.ErrorRate()*100)))
	c.writeln(fmt.Sprintf("Data received: %s", formatBytes(m.Bytes)))
	c.writeln("")

	if m.TotalErrors() > 0 || m.BodyErrors > 0 {
		c.writeln(c.colors.Title.Sprint("Errors:"))
		for _, category := range sortedKeys(m.Errors) {
			c.writeln(fmt.Sprintf("  %-20s %s", category, c.colors.Error.Sprint(formatNumber(m.Errors[category]))))
		}
		if m.BodyErrors > 0 {
			c.writeln(fmt.Sprintf("  %-20s %s", "iteration", c.colors.Error.Sprint(formatNumber(m.BodyErrors))))
		}
		c.writeln("")
	}

	if m.Latency.Count > 0 {
		c.writeln(c.colors.Title.Sprint("Latency Distribution:"))
		c.latencyRow("Min", m.Latency.Min)
		c.latencyRow("Avg", m.Latency.Mean)
		c.latencyRow("P50", m.Latency.P50)
		c.latencyRow("P90", m.Latency.P90)
		c.latencyRow("P95", m.Latency.P95)
		c.latencyRow("P99", m.Latency.P99)
		c.latencyRow("Max", m.Latency.Max)
		c.writeln("")
	}

	if len(m.RequestLatency) > 1 {
		c.writeln(c.colors.Title.Sprint("Requests:"))
		for _, name := range sortedKeys(m.RequestLatency) {
			stats := m.RequestLatency[name]
			c.writeln(fmt.Sprintf("  %-32s count=%-8s avg=%-8s p95=%s",
				name, formatNumber(stats.Count),
				formatDurationShort(stats.Mean), c.colors.Latency.Sprint(formatDurationShort(stats.P95))))
		}
		c.writeln("")
	}

	if m.IterationDuration.Count > 0 {
		c.writeln(fmt.Sprintf("Iteration:     avg=%s p95=%s",
			formatDurationShort(m.IterationDuration.Mean), formatDurationShort(m.IterationDuration.P95)))
		c.writeln("")
	}

	if len(m.Checks) > 0 {
		c.writeln(c.colors.Title.Sprintf("Checks: %.2f%%", m.CheckRate()*100))
		for _, name := range sortedKeys(m.Checks) {
			cs := m.Checks[name]
			icon := c.colors.Success.Sprint(SuccessIcon(true))
			if cs.Failed > 0 {
				icon = c.colors.Error.Sprint(ErrorIcon(true))
			}
			line := fmt.Sprintf("  %s %s  %d/%d", icon, name, cs.Passed, cs.Total())
			if cs.EvalErrors > 0 {
				line += c.colors.Warn.Sprintf(" (%d errors)", cs.EvalErrors)
			}
			c.writeln(line)
		}
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(c.colors.Title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			icon := c.colors.Success.Sprint(SuccessIcon(true))
			if !t.Passed {
				icon = c.colors.Error.Sprint(ErrorIcon(true))
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}

	if len(m.PhaseHistory) > 0 {
		c.writeln(c.colors.Title.Sprint("Phases:"))
		for _, p := range m.PhaseHistory {
			c.writeln(fmt.Sprintf("  %8s  %s", formatDuration(p.Timestamp.Sub(result.StartTime)), c.colors.Phase.Sprint(p.Phase)))
		}
		c.writeln("")
	}

	if m.DroppedAfterFreeze > 0 {
		c.writeln(c.colors.Warn.Sprintf("%s %d records arrived after the run ended and were dropped",
			WarningIcon(true), m.DroppedAfterFreeze))
	}
}

func (c *Console) latencyRow(label string, d time.Duration) {
	c.writeln(fmt.Sprintf("  %-10s %s", label+":", c.colors.Latency.Sprint(formatDurationShort(d))))
}

func (c *Console) rule() {
	c.writeln(c.colors.Rule.Sprint(strings.Repeat("━", ruleWidth)))
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a duration in a short format.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

func formatRate(count int64, seconds float64) string {
	if seconds <= 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(count)/seconds)
}

// formatBytes formats a byte count with binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
