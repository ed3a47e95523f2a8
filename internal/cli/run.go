package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/surge/internal/check"
	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/engine"
	"github.com/wesleyorama2/surge/internal/output"
)

type runOptions struct {
	configFile string

	// Quick mode
	url       string
	method    string
	headers   []string
	body      string
	stages    string
	pause     string
	timeout   string
	insecure  bool
	rps       float64
	expect    int
	threshold []string

	// Output
	format  string
	outFile string
	json    bool
	quiet   bool
	verbose bool
	noColor bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run a staged load test from a configuration file, or against a single URL.

Config file mode:
  surge run --config test.yaml

Quick mode:
  surge run --url https://api.example.com/health \
    --stages "30s:50,1m:50,10s:0" \
    --pause 500ms-1500ms

Press Ctrl+C to abort: users finish their current iteration and the partial
results are reported.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "Path to a YAML or JSON test configuration")
	f.StringVarP(&opts.url, "url", "u", "", "Target URL (quick mode)")
	f.StringVarP(&opts.method, "method", "X", "GET", "HTTP method (quick mode)")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, "Request header 'Key: Value' (repeatable)")
	f.StringVarP(&opts.body, "data", "d", "", "Request body (quick mode)")
	f.StringVarP(&opts.stages, "stages", "s", "30s:10", "Stages as duration:target pairs, e.g. 30s:50,1m:50,10s:0")
	f.StringVar(&opts.pause, "pause", "", "Pause between iterations: a duration (1s) or a range (500ms-1500ms)")
	f.StringVar(&opts.timeout, "timeout", "", "Request timeout")
	f.BoolVarP(&opts.insecure, "insecure", "k", false, "Skip TLS certificate verification")
	f.Float64Var(&opts.rps, "rps", 0, "Global request rate limit (0 = unlimited)")
	f.IntVar(&opts.expect, "expect-status", 0, "Add a check that the response has this status (quick mode)")
	f.StringArrayVar(&opts.threshold, "threshold", nil, "Threshold as metric:expression, e.g. 'http_req_duration:p95 < 500ms' (repeatable)")

	f.StringVarP(&opts.format, "output", "o", "text", "Output format: text, json, yaml or junit")
	f.StringVar(&opts.outFile, "out-file", "", "Write the report to a file instead of stdout")
	f.BoolVar(&opts.json, "json", false, "Shorthand for --output json")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Only print PASSED or FAILED")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine diagnostics to stderr")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runLoadTest(cmd *cobra.Command, opts *runOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if opts.json {
		format = output.FormatJSON
	}

	cfg, err := loadRunConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	console := output.NewConsole(output.ConsoleConfig{
		Writer:  stdout,
		Quiet:   opts.quiet,
		NoColor: opts.noColor,
	})

	if format == output.FormatText || opts.outFile != "" {
		console.PrintHeader(eng.Config().Name, eng.Schedule())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := eng.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if err := writeReport(stdout, console, format, opts.outFile, result); err != nil {
		return err
	}

	if !result.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// loadRunConfig builds the test configuration from a file or from the quick
// mode flags. Flags that were set explicitly override the file.
func loadRunConfig(cmd *cobra.Command, opts *runOptions) (*config.TestConfig, error) {
	var cfg *config.TestConfig
	var err error

	switch {
	case opts.configFile != "":
		cfg, err = config.LoadConfig(opts.configFile)
		if err != nil {
			return nil, err
		}
		if cmd.Flags().Changed("stages") {
			if cfg.Stages, err = config.ParseStages(opts.stages); err != nil {
				return nil, err
			}
		}
	case opts.url != "":
		cfg, err = buildQuickConfig(opts)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("either --config or --url is required")
	}

	flags := cmd.Flags()
	if flags.Changed("pause") {
		if cfg.Pause, err = parsePause(opts.pause); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		d, err := config.ParseDurationString(opts.timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.Settings.Timeout = config.Duration(d)
	}
	if flags.Changed("insecure") {
		cfg.Settings.InsecureSkipVerify = opts.insecure
	}
	if flags.Changed("rps") {
		cfg.Settings.RPS = opts.rps
	}
	if len(opts.threshold) > 0 {
		if cfg.Thresholds == nil {
			cfg.Thresholds = &config.ThresholdsConfig{}
		}
		for _, t := range opts.threshold {
			if err := addThreshold(cfg.Thresholds, t); err != nil {
				return nil, err
			}
		}
	}

	return cfg, nil
}

// buildQuickConfig builds a single-request TestConfig from CLI flags.
func buildQuickConfig(opts *runOptions) (*config.TestConfig, error) {
	stages, err := config.ParseStages(opts.stages)
	if err != nil {
		return nil, fmt.Errorf("invalid stages format: %w", err)
	}

	headers := make(map[string]string, len(opts.headers))
	for _, h := range opts.headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q: expected 'Key: Value'", h)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	req := config.RequestConfig{
		Name:    "quick",
		Method:  strings.ToUpper(opts.method),
		URL:     opts.url,
		Headers: headers,
		Body:    opts.body,
	}
	if opts.expect > 0 {
		req.Checks = append(req.Checks, config.CheckConfig{
			Name: fmt.Sprintf("status is %d", opts.expect),
			Spec: check.Spec{Type: "status", Value: strconv.Itoa(opts.expect)},
		})
	}

	return &config.TestConfig{
		Name:        "Quick Test",
		Description: fmt.Sprintf("Test generated from CLI flags for %s", opts.url),
		Stages:      stages,
		Requests:    []config.RequestConfig{req},
	}, nil
}

// parsePause parses "1s" as a constant pause and "500ms-1500ms" as a random
// one. An empty string or "0" disables pausing.
func parsePause(s string) (*config.PauseConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return nil, nil
	}

	if lo, hi, ok := strings.Cut(s, "-"); ok {
		for _, part := range []string{lo, hi} {
			if _, err := config.ParseDurationString(part); err != nil {
				return nil, fmt.Errorf("invalid --pause range %q: %w", s, err)
			}
		}
		return &config.PauseConfig{Type: "random", Min: strings.TrimSpace(lo), Max: strings.TrimSpace(hi)}, nil
	}

	if _, err := config.ParseDurationString(s); err != nil {
		return nil, fmt.Errorf("invalid --pause: %w", err)
	}
	return &config.PauseConfig{Type: "constant", Duration: s}, nil
}

// addThreshold parses "metric:expression" and appends it to t.
func addThreshold(t *config.ThresholdsConfig, s string) error {
	metric, expr, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("invalid --threshold %q: expected metric:expression", s)
	}
	expr = strings.TrimSpace(expr)

	switch strings.TrimSpace(metric) {
	case "http_req_duration":
		t.HTTPReqDuration = append(t.HTTPReqDuration, expr)
	case "http_req_failed":
		t.HTTPReqFailed = append(t.HTTPReqFailed, expr)
	case "http_reqs":
		t.HTTPReqs = append(t.HTTPReqs, expr)
	case "checks":
		t.Checks = append(t.Checks, expr)
	case "iterations":
		t.Iterations = append(t.Iterations, expr)
	default:
		return fmt.Errorf("invalid --threshold %q: unknown metric %q", s, metric)
	}
	return nil
}

// writeReport prints the summary and, when requested, writes the report to
// outFile. A report file always gets the console summary alongside it.
func writeReport(stdout io.Writer, console *output.Console, format output.OutputFormat, outFile string, result *engine.Result) error {
	if outFile == "" {
		return output.Write(stdout, format, result, console)
	}

	if dir := filepath.Dir(outFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if format == output.FormatText {
		output.NewConsole(output.ConsoleConfig{Writer: f, NoColor: true}).PrintSummary(result)
	} else if err := output.Write(f, format, result, nil); err != nil {
		return err
	}

	console.PrintSummary(result)
	fmt.Fprintf(stdout, "Report: %s\n", outFile)
	return nil
}
