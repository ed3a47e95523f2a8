package vu

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/surge/internal/check"
	"github.com/wesleyorama2/surge/internal/http"
	"github.com/wesleyorama2/surge/internal/metrics"
)

type recorder struct {
	mu   sync.Mutex
	recs []metrics.IterationRecord
}

func (r *recorder) Record(rec metrics.IterationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

func (r *recorder) records() []metrics.IterationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]metrics.IterationRecord, len(r.recs))
	copy(out, r.recs)
	return out
}

type fakeSender struct {
	resp *http.Response
	err  error
}

func (s *fakeSender) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func waitDone(t *testing.T, v *VirtualUser, timeout time.Duration) {
	t.Helper()
	select {
	case <-v.Done():
	case <-time.After(timeout):
		t.Fatalf("VU %d did not stop within %s (state %s)", v.ID(), timeout, v.State())
	}
}

func TestVirtualUser_RunsUntilDrained(t *testing.T) {
	rec := &recorder{}
	body := BodyFunc(func(ctx context.Context, it *Iteration) error {
		time.Sleep(time.Millisecond)
		return nil
	})

	v := New(1, Config{Body: body, Recorder: rec})
	assert.Equal(t, StateStarting, v.State())

	go v.Run(context.Background())

	require.Eventually(t, func() bool { return v.Iterations() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, StateRunning, v.State())

	assert.True(t, v.RequestDrain())
	assert.False(t, v.RequestDrain(), "second drain request is a no-op")
	waitDone(t, v, time.Second)

	assert.Equal(t, StateStopped, v.State())
	recs := rec.records()
	assert.Equal(t, int(v.Iterations()), len(recs), "exactly one record per completed iteration")
	for i, r := range recs {
		assert.Equal(t, uint64(1), r.VUID)
		assert.Equal(t, uint64(i+1), r.Iteration)
	}
}

func TestVirtualUser_DrainDoesNotInterruptIteration(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	release := make(chan struct{})

	body := BodyFunc(func(ctx context.Context, it *Iteration) error {
		close(started)
		<-release
		return ctx.Err()
	})

	v := New(7, Config{Body: body, Recorder: rec})
	go v.Run(context.Background())

	<-started
	v.RequestDrain()
	assert.Equal(t, StateDraining, v.State())

	select {
	case <-v.Done():
		t.Fatal("VU stopped while its iteration was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	waitDone(t, v, time.Second)

	recs := rec.records()
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].BodyErr, "the iteration context must not be cancelled by drain")
}

func TestVirtualUser_CancelDoesNotCancelIterationContext(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	release := make(chan struct{})

	body := BodyFunc(func(ctx context.Context, it *Iteration) error {
		if it.Number() == 1 {
			close(started)
		}
		<-release
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	v := New(1, Config{Body: body, Recorder: rec})
	go v.Run(ctx)

	<-started
	cancel()
	close(release)
	waitDone(t, v, time.Second)

	recs := rec.records()
	require.NotEmpty(t, recs)
	assert.Empty(t, recs[0].BodyErr)
}

func TestVirtualUser_PanicIsolation(t *testing.T) {
	rec := &recorder{}
	body := BodyFunc(func(ctx context.Context, it *Iteration) error {
		if it.Number()%2 == 1 {
			panic("scenario bug")
		}
		return nil
	})

	v := New(3, Config{Body: body, Recorder: rec})
	go v.Run(context.Background())

	require.Eventually(t, func() bool { return v.Iterations() >= 4 }, time.Second, time.Millisecond)
	v.RequestDrain()
	waitDone(t, v, time.Second)

	recs := rec.records()
	require.GreaterOrEqual(t, len(recs), 4)
	assert.Equal(t, "panic: scenario bug", recs[0].BodyErr)
	assert.Empty(t, recs[1].BodyErr)
	assert.Equal(t, "panic: scenario bug", recs[2].BodyErr)
}

func TestVirtualUser_BodyError(t *testing.T) {
	rec := &recorder{}
	body := BodyFunc(func(ctx context.Context, it *Iteration) error {
		it.vu.RequestDrain()
		return errors.New("login failed")
	})

	v := New(1, Config{Body: body, Recorder: rec})
	go v.Run(context.Background())
	waitDone(t, v, time.Second)

	recs := rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "login failed", recs[0].BodyErr)
}

func TestVirtualUser_PauseCutShortByDrain(t *testing.T) {
	rec := &recorder{}
	body := BodyFunc(func(ctx context.Context, it *Iteration) error { return nil })

	v := New(1, Config{Body: body, Recorder: rec, Pacing: Constant(10 * time.Second)})
	go v.Run(context.Background())

	// The first iteration returns immediately; the VU is now pausing.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.records(), "the record is submitted after the pause")

	v.RequestDrain()
	waitDone(t, v, time.Second)

	recs := rec.records()
	require.Len(t, recs, 1)
	assert.Less(t, recs[0].Pause, 10*time.Second)
	assert.Greater(t, recs[0].Pause, time.Duration(0))
}

func TestVirtualUser_DrainBeforeRun(t *testing.T) {
	rec := &recorder{}
	v := New(1, Config{Body: BodyFunc(func(ctx context.Context, it *Iteration) error { return nil }), Recorder: rec})

	assert.True(t, v.RequestDrain())
	v.Run(context.Background())

	assert.Equal(t, StateStopped, v.State())
	assert.Empty(t, rec.records())
	assert.False(t, v.RequestDrain())
}

func TestVirtualUser_NoBody(t *testing.T) {
	rec := &recorder{}
	v := New(1, Config{Recorder: rec})
	go v.Run(context.Background())

	require.Eventually(t, func() bool { return v.Iterations() >= 1 }, time.Second, time.Millisecond)
	v.RequestDrain()
	waitDone(t, v, time.Second)

	assert.Equal(t, "no scenario body", rec.records()[0].BodyErr)
}

func TestIteration_SendAndCheck(t *testing.T) {
	rec := &recorder{}
	sender := &fakeSender{resp: &http.Response{
		StatusCode: 200,
		Body:       []byte("hello"),
		Timing:     http.TimingInfo{TotalTime: 15 * time.Millisecond},
	}}

	body := BodyFunc(func(ctx context.Context, it *Iteration) error {
		resp, err := it.Send(ctx, http.NewRequest("GET", "/hello").WithName("hello"))
		if err != nil {
			return err
		}
		it.Check("is 200", resp, check.Status(200))
		it.Check("is 404", resp, check.Status(404))
		it.vu.RequestDrain()
		return nil
	})

	v := New(1, Config{Body: body, Sender: sender, Recorder: rec})
	go v.Run(context.Background())
	waitDone(t, v, time.Second)

	recs := rec.records()
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Requests, 1)
	assert.Equal(t, metrics.RequestSample{Name: "hello", Status: 200, Latency: 15 * time.Millisecond, Bytes: 5}, recs[0].Requests[0])

	require.Len(t, recs[0].Checks, 2)
	assert.True(t, recs[0].Checks[0].Passed)
	assert.False(t, recs[0].Checks[1].Passed)
}

func TestIteration_SendFailure(t *testing.T) {
	rec := &recorder{}
	sender := &fakeSender{err: &http.Error{Category: http.CategoryTimeout, Method: "GET", URL: "/slow", Err: context.DeadlineExceeded}}

	body := BodyFunc(func(ctx context.Context, it *Iteration) error {
		resp, err := it.Send(ctx, http.NewRequest("GET", "/slow"))
		assert.Nil(t, resp)
		assert.Error(t, err)
		it.Check("is 200", resp, check.Status(200))
		it.vu.RequestDrain()
		return nil
	})

	v := New(1, Config{Body: body, Sender: sender, Recorder: rec})
	go v.Run(context.Background())
	waitDone(t, v, time.Second)

	recs := rec.records()
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Requests, 1)
	assert.Equal(t, http.CategoryTimeout, recs[0].Requests[0].ErrCategory)
	assert.Equal(t, "GET /slow", recs[0].Requests[0].Name)
	assert.False(t, recs[0].Checks[0].Passed)
	assert.Empty(t, recs[0].BodyErr)
}

func TestIteration_SendNilResponse(t *testing.T) {
	rec := &recorder{}

	body := BodyFunc(func(ctx context.Context, it *Iteration) error {
		resp, err := it.Send(ctx, http.NewRequest("GET", "/empty"))
		assert.Nil(t, resp)
		assert.Equal(t, http.CategoryOther, http.CategoryOf(err))
		it.Check("is 200", resp, check.Status(200))
		it.vu.RequestDrain()
		return nil
	})

	v := New(1, Config{Body: body, Sender: &fakeSender{}, Recorder: rec})
	go v.Run(context.Background())
	waitDone(t, v, time.Second)

	recs := rec.records()
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Requests, 1)
	assert.Equal(t, http.CategoryOther, recs[0].Requests[0].ErrCategory)
	assert.False(t, recs[0].Checks[0].Passed)
	assert.Empty(t, recs[0].BodyErr)
}

func TestIteration_VariablesPersistAcrossIterations(t *testing.T) {
	body := BodyFunc(func(ctx context.Context, it *Iteration) error {
		if it.Number() == 1 {
			it.Set("token", "abc")
			return nil
		}
		token, ok := it.Get("token")
		if !ok || token != "abc" {
			return errors.New("token lost")
		}
		assert.Equal(t, map[string]string{"token": "abc"}, it.Vars())
		it.vu.RequestDrain()
		return nil
	})

	rec := &recorder{}
	v := New(1, Config{Body: body, Recorder: rec})
	go v.Run(context.Background())
	waitDone(t, v, time.Second)

	recs := rec.records()
	require.Len(t, recs, 2)
	assert.Empty(t, recs[1].BodyErr)
}

func TestPacing(t *testing.T) {
	assert.Equal(t, time.Duration(0), Pacing{}.Next())
	assert.Equal(t, time.Duration(0), Pacing{Type: PacingNone, Duration: time.Second}.Next())
	assert.Equal(t, time.Second, Constant(time.Second).Next())
	assert.Equal(t, time.Second, Random(time.Second, time.Second).Next())

	p := Random(100*time.Millisecond, 200*time.Millisecond)
	for i := 0; i < 100; i++ {
		d := p.Next()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 200*time.Millisecond)
	}
}

func TestPacing_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pacing  Pacing
		wantErr bool
	}{
		{"zero value", Pacing{}, false},
		{"none", Pacing{Type: PacingNone}, false},
		{"constant", Constant(time.Second), false},
		{"negative constant", Constant(-time.Second), true},
		{"random", Random(time.Second, 2*time.Second), false},
		{"inverted random", Random(2*time.Second, time.Second), true},
		{"negative random", Random(-time.Second, time.Second), true},
		{"unknown", Pacing{Type: "poisson"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pacing.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}
