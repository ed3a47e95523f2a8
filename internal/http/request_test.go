package http

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_Build(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		url     string
		want    string
		wantErr bool
	}{
		{name: "absolute URL ignores base", baseURL: "http://base", url: "http://other/x", want: "http://other/x"},
		{name: "relative joined to base", baseURL: "http://base/api", url: "/users", want: "http://base/api/users"},
		{name: "trailing slash on base", baseURL: "http://base/api/", url: "users?page=2", want: "http://base/api/users?page=2"},
		{name: "relative without base", url: "/users", wantErr: true},
		{name: "invalid base", baseURL: "://bad", url: "/users", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest("GET", tt.url).Build(context.Background(), tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.URL.String())
		})
	}
}

func TestRequest_Build_Body(t *testing.T) {
	req, err := NewRequest("PUT", "http://x").WithBody("raw").Build(context.Background(), "")
	require.NoError(t, err)
	body, _ := io.ReadAll(req.Body)
	assert.Equal(t, "raw", string(body))
	assert.Empty(t, req.Header.Get("Content-Type"))

	req, err = NewRequest("PUT", "http://x").WithBody(map[string]int{"a": 1}).Build(context.Background(), "")
	require.NoError(t, err)
	body, _ = io.ReadAll(req.Body)
	assert.JSONEq(t, `{"a":1}`, string(body))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestRequest_Build_RejectsHeaderInjection(t *testing.T) {
	_, err := NewRequest("GET", "http://x").WithHeader("X-Bad", "a\r\nInjected: 1").Build(context.Background(), "")
	assert.Error(t, err)
}

func TestRequest_MetricName(t *testing.T) {
	assert.Equal(t, "GET http://x", NewRequest("", "http://x").MetricName())
	assert.Equal(t, "home", NewRequest("GET", "http://x").WithName("home").MetricName())
}
