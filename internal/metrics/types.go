package metrics

import (
	"time"

	"github.com/wesleyorama2/surge/internal/check"
	"github.com/wesleyorama2/surge/internal/http"
)

// Phase represents a phase of the load test.
type Phase string

const (
	// PhaseInit is the phase before the first VU is spawned
	PhaseInit Phase = "init"

	// PhaseRampUp is the ramp-up phase when load is increasing
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is the steady-state phase at target load
	PhaseSteady Phase = "steady"

	// PhaseRampDown is the ramp-down phase when load is decreasing
	PhaseRampDown Phase = "ramp-down"

	// PhaseDraining means the schedule is exhausted and VUs are finishing
	PhaseDraining Phase = "draining"

	// PhaseDone indicates the test has completed
	PhaseDone Phase = "done"
)

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase      Phase     `json:"phase"`
	Timestamp  time.Time `json:"timestamp"`
	Iterations int64     `json:"iterations"`
}

// RequestSample is the outcome of one request made during an iteration.
type RequestSample struct {
	Name    string        `json:"name"`
	Status  int           `json:"status,omitempty"`
	Latency time.Duration `json:"latency"`
	Bytes   int64         `json:"bytes"`

	// ErrCategory is empty when a response was received
	ErrCategory http.Category `json:"errCategory,omitempty"`
}

// Failed reports whether the request errored or returned a 4xx/5xx status.
func (s RequestSample) Failed() bool {
	return s.ErrCategory != "" || s.Status >= 400
}

// IterationRecord is the outcome of one completed iteration of one VU.
type IterationRecord struct {
	VUID      uint64          `json:"vuId"`
	Iteration uint64          `json:"iteration"`
	Start     time.Time       `json:"start"`
	Duration  time.Duration   `json:"duration"`
	Requests  []RequestSample `json:"requests,omitempty"`
	Checks    []check.Result  `json:"checks,omitempty"`

	// Pause is the think time actually applied after the body returned
	Pause time.Duration `json:"pause"`

	// BodyErr is set when the iteration body returned an error or panicked
	BodyErr string `json:"bodyErr,omitempty"`
}

// Snapshot is a consistent point-in-time view of aggregated metrics.
//
// Snapshots carry no wall-clock fields of their own: two snapshots taken
// without a Record in between compare equal.
type Snapshot struct {
	Iterations     int64 `json:"iterations"`
	Requests       int64 `json:"requests"`
	FailedRequests int64 `json:"failedRequests"`
	Bytes          int64 `json:"bytes"`

	// Errors counts transport failures by category
	Errors map[http.Category]int64 `json:"errors"`

	// BodyErrors counts iterations whose body failed; they are category "other"
	BodyErrors int64 `json:"bodyErrors"`

	Checks       map[string]CheckStats `json:"checks"`
	ChecksPassed int64                 `json:"checksPassed"`
	ChecksFailed int64                 `json:"checksFailed"`

	Latency           LatencyStats            `json:"latency"`
	RequestLatency    map[string]LatencyStats `json:"requestLatency"`
	IterationDuration LatencyStats            `json:"iterationDuration"`

	Phase        Phase         `json:"phase"`
	PhaseHistory []PhaseChange `json:"phaseHistory"`
	ActiveVUs    int           `json:"activeVUs"`
	MaxVUs       int           `json:"maxVUs"`

	Frozen             bool  `json:"frozen"`
	DroppedAfterFreeze int64 `json:"droppedAfterFreeze,omitempty"`
}

// ErrorRate is the fraction of failed requests (0.0 to 1.0).
func (s *Snapshot) ErrorRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.FailedRequests) / float64(s.Requests)
}

// CheckRate is the fraction of passed checks (0.0 to 1.0). With no checks
// recorded the rate is 1.
func (s *Snapshot) CheckRate() float64 {
	total := s.ChecksPassed + s.ChecksFailed
	if total == 0 {
		return 1
	}
	return float64(s.ChecksPassed) / float64(total)
}

// TotalErrors sums transport errors over all categories.
func (s *Snapshot) TotalErrors() int64 {
	var n int64
	for _, count := range s.Errors {
		n += count
	}
	return n
}

// CheckStats holds the counts for one named check.
type CheckStats struct {
	Passed int64 `json:"passed"`
	Failed int64 `json:"failed"`

	// EvalErrors counts failures caused by a broken predicate (a subset of Failed)
	EvalErrors int64 `json:"evalErrors,omitempty"`
}

// Total returns Passed + Failed.
func (c CheckStats) Total() int64 {
	return c.Passed + c.Failed
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// Percentile returns the named percentile ("p50", "p90", "p95", "p99"),
// or one of "min", "max", "avg"/"mean".
func (l LatencyStats) Percentile(name string) (time.Duration, bool) {
	switch name {
	case "min":
		return l.Min, true
	case "max":
		return l.Max, true
	case "avg", "mean":
		return l.Mean, true
	case "p50", "med":
		return l.P50, true
	case "p90":
		return l.P90, true
	case "p95":
		return l.P95, true
	case "p99":
		return l.P99, true
	}
	return 0, false
}
