package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/surge/internal/dispatcher"
	"github.com/wesleyorama2/surge/internal/http"
	"github.com/wesleyorama2/surge/internal/schedule"
	"github.com/wesleyorama2/surge/internal/vu"
)

// DefaultUserAgent is sent when settings.userAgent is empty.
const DefaultUserAgent = "surge/1.0"

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ParseStages parses the compact "duration:target" list used on the command
// line, e.g. "30s:50,1m:50,10s:0".
func ParseStages(s string) ([]StageConfig, error) {
	var stages []StageConfig

	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		colonIdx := strings.LastIndex(part, ":")
		if colonIdx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}

		durationStr := part[:colonIdx]
		targetStr := part[colonIdx+1:]

		if _, err := ParseDurationString(durationStr); err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, durationStr, err)
		}

		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, targetStr, err)
		}

		stages = append(stages, StageConfig{
			Duration: durationStr,
			Target:   target,
			Name:     fmt.Sprintf("stage-%d", i+1),
		})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	return stages, nil
}

// ApplyDefaults fills in unset settings.
func ApplyDefaults(config *TestConfig) {
	if config.Name == "" {
		config.Name = "surge"
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(30 * time.Second)
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = 100
	}
	if config.Settings.UserAgent == "" {
		config.Settings.UserAgent = DefaultUserAgent
	}
	if config.TickInterval == 0 {
		config.TickInterval = Duration(dispatcher.DefaultTickInterval)
	}

	for i := range config.Stages {
		if config.Stages[i].Name == "" {
			config.Stages[i].Name = fmt.Sprintf("stage-%d", i+1)
		}
	}

	for i := range config.Requests {
		req := &config.Requests[i]
		if req.Method == "" {
			req.Method = "GET"
		}
		req.Method = strings.ToUpper(req.Method)
		if req.Name == "" {
			req.Name = fmt.Sprintf("%s %s", req.Method, req.URL)
		}
		for j := range req.Checks {
			c := &req.Checks[j]
			if c.Name == "" {
				c.Name = defaultCheckName(c)
			}
		}
	}
}

// Clone returns a deep copy of c, so defaults can be applied without touching
// the caller's configuration.
func (c *TestConfig) Clone() *TestConfig {
	out := *c
	out.Variables = maps.Clone(c.Variables)
	out.Settings.Headers = maps.Clone(c.Settings.Headers)
	out.Stages = slices.Clone(c.Stages)
	if c.Pause != nil {
		p := *c.Pause
		out.Pause = &p
	}
	if c.Thresholds != nil {
		t := ThresholdsConfig{
			HTTPReqDuration: slices.Clone(c.Thresholds.HTTPReqDuration),
			HTTPReqFailed:   slices.Clone(c.Thresholds.HTTPReqFailed),
			HTTPReqs:        slices.Clone(c.Thresholds.HTTPReqs),
			Checks:          slices.Clone(c.Thresholds.Checks),
			Iterations:      slices.Clone(c.Thresholds.Iterations),
		}
		out.Thresholds = &t
	}
	if c.Requests != nil {
		out.Requests = make([]RequestConfig, len(c.Requests))
		for i, req := range c.Requests {
			req.Headers = maps.Clone(req.Headers)
			req.Extract = slices.Clone(req.Extract)
			req.Checks = slices.Clone(req.Checks)
			out.Requests[i] = req
		}
	}
	return &out
}

func defaultCheckName(c *CheckConfig) string {
	parts := []string{c.Type}
	if c.Path != "" {
		parts = append(parts, c.Path)
	}
	if c.Condition != "" {
		parts = append(parts, c.Condition)
	}
	if c.Value != "" && c.Type != "schema" {
		parts = append(parts, c.Value)
	}
	return strings.Join(parts, " ")
}

// Schedule builds the run schedule from the configured stages.
func (c *TestConfig) Schedule() (*schedule.Schedule, error) {
	stages := make([]schedule.Stage, 0, len(c.Stages))
	for i, sc := range c.Stages {
		d, err := ParseDurationString(sc.Duration)
		if err != nil {
			return nil, fmt.Errorf("stages[%d]: %w", i, err)
		}
		stages = append(stages, schedule.Stage{Duration: d, Target: sc.Target, Name: sc.Name})
	}
	return schedule.New(stages)
}

// Pacing converts the pause configuration.
func (c *TestConfig) Pacing() (vu.Pacing, error) {
	if c.Pause == nil {
		return vu.Pacing{Type: vu.PacingNone}, nil
	}

	var p vu.Pacing
	var err error

	if p.Duration, err = ParseDurationString(c.Pause.Duration); err != nil {
		return vu.Pacing{}, fmt.Errorf("pause.duration: %w", err)
	}
	if p.Min, err = ParseDurationString(c.Pause.Min); err != nil {
		return vu.Pacing{}, fmt.Errorf("pause.min: %w", err)
	}
	if p.Max, err = ParseDurationString(c.Pause.Max); err != nil {
		return vu.Pacing{}, fmt.Errorf("pause.max: %w", err)
	}

	p.Type = vu.PacingType(strings.ToLower(c.Pause.Type))
	if p.Type == "" {
		p.Type = vu.PacingConstant
		if p.Max > 0 {
			p.Type = vu.PacingRandom
		}
	}

	if err := p.Validate(); err != nil {
		return vu.Pacing{}, fmt.Errorf("pause: %w", err)
	}
	return p, nil
}

// ClientConfig converts the HTTP settings.
func (c *TestConfig) ClientConfig() http.ClientConfig {
	cfg := http.DefaultClientConfig()
	cfg.Timeout = c.Settings.Timeout.GetDuration(cfg.Timeout)
	cfg.InsecureSkipVerify = c.Settings.InsecureSkipVerify
	if c.Settings.MaxIdleConnsPerHost > 0 {
		cfg.MaxIdleConnsPerHost = c.Settings.MaxIdleConnsPerHost
	}
	return cfg
}
