// Package metrics aggregates iteration records into run-wide statistics.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/surge/internal/clock"
	"github.com/wesleyorama2/surge/internal/http"
)

// Aggregator collects IterationRecords from concurrently running VUs.
//
// Latencies go into HDR histograms (1µs to 1h, 3 significant figures);
// values outside the range are clamped so recording cannot fail.
//
// # Thread Safety
//
// Aggregator is safe for concurrent use. All state sits behind a single
// mutex so a Snapshot never observes half of a record: for every check
// Passed + Failed equals the number of evaluations recorded so far.
type Aggregator struct {
	mu sync.Mutex

	clock  clock.Clock
	config Config

	latencyHist   *hdrhistogram.Histogram
	iterationHist *hdrhistogram.Histogram
	requestHists  map[string]*hdrhistogram.Histogram

	iterations     int64
	requests       int64
	failedRequests int64
	bytes          int64
	errors         map[http.Category]int64
	bodyErrors     int64

	checks       map[string]*CheckStats
	checksPassed int64
	checksFailed int64

	phase        Phase
	phaseHistory []PhaseChange
	activeVUs    int
	maxVUs       int

	frozen  bool
	dropped int64
}

// Config contains histogram settings for the aggregator.
type Config struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

// NewAggregator creates an aggregator with default configuration. A nil
// clock uses the real clock.
func NewAggregator(c clock.Clock) *Aggregator {
	return NewAggregatorWithConfig(c, DefaultConfig())
}

// NewAggregatorWithConfig creates an aggregator with custom configuration.
func NewAggregatorWithConfig(c clock.Clock, config Config) *Aggregator {
	if c == nil {
		c = clock.Real{}
	}
	def := DefaultConfig()
	if config.HistogramMin <= 0 {
		config.HistogramMin = def.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = def.HistogramMax
	}
	if config.HistogramSigFigs < 1 || config.HistogramSigFigs > 5 {
		config.HistogramSigFigs = def.HistogramSigFigs
	}

	return &Aggregator{
		clock:         c,
		config:        config,
		latencyHist:   config.newHistogram(),
		iterationHist: config.newHistogram(),
		requestHists:  make(map[string]*hdrhistogram.Histogram),
		errors:        make(map[http.Category]int64),
		checks:        make(map[string]*CheckStats),
		phase:         PhaseInit,
	}
}

func (c Config) newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(c.HistogramMin, c.HistogramMax, c.HistogramSigFigs)
}

// Record merges one iteration into the aggregate. It never fails; records
// arriving after Freeze are dropped and counted.
func (a *Aggregator) Record(rec IterationRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		a.dropped++
		return
	}

	a.iterations++
	a.recordValue(a.iterationHist, rec.Duration)

	if rec.BodyErr != "" {
		a.bodyErrors++
	}

	for _, req := range rec.Requests {
		a.requests++
		a.bytes += req.Bytes
		if req.Failed() {
			a.failedRequests++
		}
		if req.ErrCategory != "" {
			a.errors[req.ErrCategory]++
			continue
		}

		// Only requests that produced a response have a meaningful latency.
		a.recordValue(a.latencyHist, req.Latency)
		if req.Name != "" {
			hist, ok := a.requestHists[req.Name]
			if !ok {
				hist = a.config.newHistogram()
				a.requestHists[req.Name] = hist
			}
			a.recordValue(hist, req.Latency)
		}
	}

	for _, res := range rec.Checks {
		stats, ok := a.checks[res.Name]
		if !ok {
			stats = &CheckStats{}
			a.checks[res.Name] = stats
		}
		if res.Passed {
			stats.Passed++
			a.checksPassed++
		} else {
			stats.Failed++
			a.checksFailed++
			if res.EvalError != "" {
				stats.EvalErrors++
			}
		}
	}
}

// recordValue clamps d to the histogram range. Callers hold a.mu.
func (a *Aggregator) recordValue(hist *hdrhistogram.Histogram, d time.Duration) {
	micros := d.Microseconds()
	if micros < a.config.HistogramMin {
		micros = a.config.HistogramMin
	}
	if micros > a.config.HistogramMax {
		micros = a.config.HistogramMax
	}
	// In range after clamping, so RecordValue cannot return an error.
	_ = hist.RecordValue(micros)
}

// SetPhase updates the current test phase.
func (a *Aggregator) SetPhase(phase Phase) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase == phase {
		return
	}

	a.phase = phase
	a.phaseHistory = append(a.phaseHistory, PhaseChange{
		Phase:      phase,
		Timestamp:  a.clock.Now(),
		Iterations: a.iterations,
	})
}

// Phase returns the current test phase.
func (a *Aggregator) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// SetActiveVUs updates the active VU count and the high-water mark.
func (a *Aggregator) SetActiveVUs(count int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.activeVUs = count
	if count > a.maxVUs {
		a.maxVUs = count
	}
}

// Freeze marks the end of the run. The aggregate is immutable afterwards.
func (a *Aggregator) Freeze() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frozen = true
}

// Snapshot returns a consistent copy of the aggregate.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Iterations:         a.iterations,
		Requests:           a.requests,
		FailedRequests:     a.failedRequests,
		Bytes:              a.bytes,
		Errors:             make(map[http.Category]int64, len(a.errors)),
		BodyErrors:         a.bodyErrors,
		Checks:             make(map[string]CheckStats, len(a.checks)),
		ChecksPassed:       a.checksPassed,
		ChecksFailed:       a.checksFailed,
		Latency:            latencyStats(a.latencyHist),
		RequestLatency:     make(map[string]LatencyStats, len(a.requestHists)),
		IterationDuration:  latencyStats(a.iterationHist),
		Phase:              a.phase,
		PhaseHistory:       make([]PhaseChange, len(a.phaseHistory)),
		ActiveVUs:          a.activeVUs,
		MaxVUs:             a.maxVUs,
		Frozen:             a.frozen,
		DroppedAfterFreeze: a.dropped,
	}

	for category, count := range a.errors {
		snap.Errors[category] = count
	}
	for name, stats := range a.checks {
		snap.Checks[name] = *stats
	}
	for name, hist := range a.requestHists {
		snap.RequestLatency[name] = latencyStats(hist)
	}
	copy(snap.PhaseHistory, a.phaseHistory)

	return snap
}

func latencyStats(hist *hdrhistogram.Histogram) LatencyStats {
	if hist.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(hist.StdDev() * float64(time.Microsecond)),
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}
