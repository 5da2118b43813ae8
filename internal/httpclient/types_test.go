package httpclient_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/toolhive-update-agent/internal/httpclient"
)

func TestHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		url        string
		message    string
		expected   string
	}{
		{
			name:       "all fields",
			statusCode: 404,
			url:        "http://example.com/v1/updates/check",
			message:    "404 Not Found",
			expected:   "HTTP 404 for URL http://example.com/v1/updates/check: 404 Not Found",
		},
		{
			name:       "empty message",
			statusCode: 500,
			url:        "http://example.com",
			expected:   "HTTP 500 for URL http://example.com: ",
		},
		{
			name:       "query string kept",
			statusCode: 400,
			url:        "http://example.com/check?deploymentKey=abc",
			message:    "Bad Request",
			expected:   "HTTP 400 for URL http://example.com/check?deploymentKey=abc: Bad Request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := httpclient.NewHTTPError(tt.statusCode, tt.url, tt.message)
			assert.Equal(t, tt.expected, err.Error())
			assert.Equal(t, tt.statusCode, err.StatusCode)
		})
	}
}
