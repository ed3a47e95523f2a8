// Package check evaluates named pass/fail assertions against responses.
//
// A broken assertion never escapes the evaluator: predicate errors and
// panics become failed results with EvalError set, so a bad check degrades
// to a recorded failure instead of taking down the VU that ran it.
package check

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/surge/internal/clock"
	"github.com/wesleyorama2/surge/internal/http"
)

// Predicate decides whether a response passes. resp is nil when the request
// failed at the transport level.
type Predicate func(resp *http.Response) (bool, error)

// Func adapts a plain boolean function into a Predicate.
func Func(fn func(resp *http.Response) bool) Predicate {
	return func(resp *http.Response) (bool, error) {
		return fn(resp), nil
	}
}

// Result is the immutable outcome of one check evaluation.
type Result struct {
	Name      string    `json:"name"`
	Passed    bool      `json:"passed"`
	EvalError string    `json:"evalError,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Evaluator runs predicates and stamps results with the evaluator's clock.
type Evaluator struct {
	clock clock.Clock
}

// NewEvaluator creates an evaluator. A nil clock uses the real clock.
func NewEvaluator(c clock.Clock) *Evaluator {
	if c == nil {
		c = clock.Real{}
	}
	return &Evaluator{clock: c}
}

// Evaluate runs pred against resp and returns the result.
func (e *Evaluator) Evaluate(name string, pred Predicate, resp *http.Response) (result Result) {
	result.Name = name

	defer func() {
		if r := recover(); r != nil {
			result.Passed = false
			result.EvalError = fmt.Sprintf("panic: %v", r)
		}
		result.Timestamp = e.clock.Now()
	}()

	if pred == nil {
		result.EvalError = "no predicate"
		return result
	}

	passed, err := pred(resp)
	if err != nil {
		result.EvalError = err.Error()
		return result
	}
	result.Passed = passed
	return result
}
