package vu

import (
	"context"
	"errors"
	"sync"

	"github.com/wesleyorama2/surge/internal/check"
	"github.com/wesleyorama2/surge/internal/http"
	"github.com/wesleyorama2/surge/internal/metrics"
)

// Body is the user scenario executed once per iteration.
type Body interface {
	Execute(ctx context.Context, it *Iteration) error
}

// BodyFunc adapts a function into a Body.
type BodyFunc func(ctx context.Context, it *Iteration) error

// Execute calls f.
func (f BodyFunc) Execute(ctx context.Context, it *Iteration) error {
	return f(ctx, it)
}

// Sender is the HTTP collaborator. *http.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Recorder receives one record per completed iteration. *metrics.Aggregator
// satisfies it.
type Recorder interface {
	Record(rec metrics.IterationRecord)
}

// Iteration is the handle a Body uses to make requests and register checks.
// Everything it does is captured in the iteration's record.
type Iteration struct {
	vu     *VirtualUser
	number uint64

	mu       sync.Mutex
	requests []metrics.RequestSample
	checks   []check.Result
}

// VUID returns the id of the VU running this iteration.
func (it *Iteration) VUID() uint64 {
	return it.vu.id
}

// Number returns the 1-based iteration number within the VU.
func (it *Iteration) Number() uint64 {
	return it.number
}

var errNoResponse = errors.New("sender returned no response")

// Send issues req through the VU's sender and records the outcome. On a
// transport failure the response is nil and the error carries its category.
func (it *Iteration) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := it.vu.clock.Now()
	resp, err := it.vu.sender.Send(ctx, req)
	if err == nil && resp == nil {
		err = &http.Error{Category: http.CategoryOther, Method: req.Method, URL: req.URL, Err: errNoResponse}
	}

	sample := metrics.RequestSample{Name: req.MetricName()}
	if err != nil {
		sample.Latency = it.vu.clock.Now().Sub(start)
		sample.ErrCategory = http.CategoryOf(err)
	} else {
		sample.Status = resp.StatusCode
		sample.Latency = resp.Duration()
		sample.Bytes = int64(len(resp.Body))
	}

	it.mu.Lock()
	it.requests = append(it.requests, sample)
	it.mu.Unlock()

	return resp, err
}

// Check evaluates a named predicate against resp, records the result and
// reports whether it passed.
func (it *Iteration) Check(name string, resp *http.Response, pred check.Predicate) bool {
	result := it.vu.evaluator.Evaluate(name, pred, resp)

	it.mu.Lock()
	it.checks = append(it.checks, result)
	it.mu.Unlock()

	return result.Passed
}

// Set stores a value in the VU's variable scope. Values survive across
// iterations of the same VU.
func (it *Iteration) Set(key, value string) {
	it.vu.dataMu.Lock()
	defer it.vu.dataMu.Unlock()
	it.vu.data[key] = value
}

// Get retrieves a value from the VU's variable scope.
func (it *Iteration) Get(key string) (string, bool) {
	it.vu.dataMu.RLock()
	defer it.vu.dataMu.RUnlock()
	value, ok := it.vu.data[key]
	return value, ok
}

// Vars returns a copy of the VU's variable scope.
func (it *Iteration) Vars() map[string]string {
	it.vu.dataMu.RLock()
	defer it.vu.dataMu.RUnlock()

	vars := make(map[string]string, len(it.vu.data))
	for k, v := range it.vu.data {
		vars[k] = v
	}
	return vars
}

func (it *Iteration) snapshot() ([]metrics.RequestSample, []check.Result) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.requests, it.checks
}
