package check_test

import (
	"errors"
	nethttp "net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/surge/internal/check"
	"github.com/wesleyorama2/surge/internal/clock"
	"github.com/wesleyorama2/surge/internal/http"
)

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: 200,
		Status:     "200 OK",
		Headers:    nethttp.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"status":"ok","users":[{"name":"ada","age":36}],"count":3}`),
		Timing:     http.TimingInfo{TotalTime: 40 * time.Millisecond},
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eval := check.NewEvaluator(clock.NewManual(now))

	t.Run("passing predicate", func(t *testing.T) {
		r := eval.Evaluate("is status 200", check.Status(200), okResponse())
		assert.Equal(t, "is status 200", r.Name)
		assert.True(t, r.Passed)
		assert.Empty(t, r.EvalError)
		assert.Equal(t, now, r.Timestamp)
	})

	t.Run("failing predicate", func(t *testing.T) {
		r := eval.Evaluate("is status 201", check.Status(201), okResponse())
		assert.False(t, r.Passed)
		assert.Empty(t, r.EvalError)
	})

	t.Run("predicate error becomes failure", func(t *testing.T) {
		pred := func(*http.Response) (bool, error) { return true, errors.New("cannot decide") }
		r := eval.Evaluate("broken", pred, okResponse())
		assert.False(t, r.Passed)
		assert.Equal(t, "cannot decide", r.EvalError)
	})

	t.Run("panic becomes failure", func(t *testing.T) {
		pred := check.Func(func(resp *http.Response) bool {
			var m map[string]int
			m["boom"] = 1
			return true
		})
		r := eval.Evaluate("panics", pred, okResponse())
		assert.False(t, r.Passed)
		assert.Contains(t, r.EvalError, "panic")
		assert.Equal(t, now, r.Timestamp)
	})

	t.Run("nil predicate", func(t *testing.T) {
		r := eval.Evaluate("nothing", nil, okResponse())
		assert.False(t, r.Passed)
		assert.NotEmpty(t, r.EvalError)
	})

	t.Run("nil response", func(t *testing.T) {
		r := eval.Evaluate("is status 200", check.Status(200), nil)
		assert.False(t, r.Passed)
		assert.Empty(t, r.EvalError)
	})
}

func TestBuiltinPredicates(t *testing.T) {
	resp := okResponse()

	tests := []struct {
		name string
		pred check.Predicate
		want bool
	}{
		{"status between", check.StatusBetween(200, 299), true},
		{"status between miss", check.StatusBetween(400, 499), false},
		{"body contains", check.BodyContains(`"status":"ok"`), true},
		{"duration below", check.DurationBelow(100 * time.Millisecond), true},
		{"duration above", check.DurationBelow(10 * time.Millisecond), false},
		{"jsonpath", check.JSONPath("$.users[0].name", "ada"), true},
		{"jsonpath mismatch", check.JSONPath("$.users[0].name", "bob"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.pred(resp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuild(t *testing.T) {
	resp := okResponse()

	tests := []struct {
		name string
		spec check.Spec
		want bool
	}{
		{"status eq", check.Spec{Type: "status", Value: "200"}, true},
		{"status ne", check.Spec{Type: "status", Condition: "ne", Value: "200"}, false},
		{"status lt", check.Spec{Type: "status", Condition: "lt", Value: "300"}, true},
		{"status gte", check.Spec{Type: "status", Condition: "gte", Value: "500"}, false},
		{"header eq", check.Spec{Type: "header", Path: "Content-Type", Value: "application/json"}, true},
		{"header contains", check.Spec{Type: "header", Path: "content-type", Condition: "contains", Value: "json"}, true},
		{"header exists", check.Spec{Type: "header", Path: "X-Missing", Condition: "exists"}, false},
		{"body contains", check.Spec{Type: "body", Condition: "contains", Value: "ada"}, true},
		{"body matches", check.Spec{Type: "body", Condition: "matches", Value: `"count":\d+`}, true},
		{"jsonpath eq", check.Spec{Type: "jsonpath", Path: "$.status", Value: "ok"}, true},
		{"jsonpath gt", check.Spec{Type: "jsonpath", Path: "$.count", Condition: "gt", Value: "2"}, true},
		{"jsonpath missing", check.Spec{Type: "jsonpath", Path: "$.nope", Value: "x"}, false},
		{"jsonpath exists", check.Spec{Type: "jsonpath", Path: "$.users", Condition: "exists"}, true},
		{"duration default lt", check.Spec{Type: "duration", Value: "500ms"}, true},
		{"duration gt", check.Spec{Type: "duration", Condition: "gt", Value: "500ms"}, false},
		{
			"schema valid",
			check.Spec{Type: "schema", Value: `{"type":"object","required":["status"],"properties":{"status":{"type":"string"}}}`},
			true,
		},
		{
			"schema invalid",
			check.Spec{Type: "schema", Value: `{"type":"object","required":["missing"]}`},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := check.Build(tt.spec)
			require.NoError(t, err)

			got, err := pred(resp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			got, err = pred(nil)
			require.NoError(t, err)
			assert.False(t, got, "nil response must never pass")
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	specs := []check.Spec{
		{Type: "unknown"},
		{Type: "status", Condition: "approximately", Value: "200"},
		{Type: "status", Condition: "gt", Value: "two hundred"},
		{Type: "body", Condition: "matches", Value: "("},
		{Type: "header", Value: "x"},
		{Type: "jsonpath", Value: "x"},
		{Type: "duration", Value: "soon"},
		{Type: "schema", Value: ""},
		{Type: "schema", Value: `{"type": 12}`},
	}

	for _, spec := range specs {
		_, err := check.Build(spec)
		assert.Error(t, err, "Build(%+v) should fail", spec)
	}
}

func TestSchemaPredicate_NonJSONBody(t *testing.T) {
	pred, err := check.JSONSchema(`{"type":"object"}`)
	require.NoError(t, err)

	eval := check.NewEvaluator(nil)
	r := eval.Evaluate("schema", pred, &http.Response{StatusCode: 200, Body: []byte("<html>")})
	assert.False(t, r.Passed)
	assert.Contains(t, r.EvalError, "invalid JSON")
}

func TestExtractJSON(t *testing.T) {
	doc := `{"users":[{"name":"ada"}],"meta":{"next":null},"weird key":1}`

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "$.users[0].name", want: "ada"},
		{path: "users.0.name", want: "ada"},
		{path: "$['users'][0]['name']", want: "ada"},
		{path: "$.meta.next", want: "null"},
		{path: "$.missing", wantErr: true},
		{path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := check.ExtractJSON(doc, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := check.ExtractJSON("", "$.x")
	assert.Error(t, err)
}
