// Package httpclient provides the HTTP plumbing used to talk to the update server
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed size of a JSON response (10MB)
	MaxResponseSize = 10 * 1024 * 1024

	// MaxDownloadSize is the maximum allowed size of a package download (1GB)
	MaxDownloadSize = 1024 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "toolhive-update-agent/1.0"

	downloadChunkSize = 32 * 1024
)

// ProgressFunc receives the number of bytes received so far and the expected total.
// total is -1 when the server did not announce a Content-Length.
type ProgressFunc func(received, total int64)

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string) ([]byte, error)

	// Download streams the body of url into w, reporting progress as it goes.
	// It returns the number of bytes written.
	Download(ctx context.Context, url string, w io.Writer, progress ProgressFunc) (int64, error)

	// Send performs a request with a JSON body and returns the response body.
	// Any 2xx status counts as success.
	Send(ctx context.Context, method, url string, body []byte) ([]byte, error)
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client *http.Client
}

// NewDefaultClient creates a new default HTTP client with the specified timeout.
// A zero timeout uses DefaultTimeout.
func NewDefaultClient(timeout time.Duration) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &DefaultClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, url, "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return readLimited(resp)
}

// Send performs an HTTP request carrying an optional JSON body
func (c *DefaultClient) Send(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	resp, err := c.do(ctx, method, url, "application/json", reader)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return readLimited(resp)
}

func readLimited(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes (%.2f MB)",
			resp.ContentLength, MaxResponseSize, float64(MaxResponseSize)/(1024*1024))
	}

	// +1 to detect if limit exceeded
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes (%.2f MB)",
			MaxResponseSize, float64(MaxResponseSize)/(1024*1024))
	}

	return body, nil
}

// Download streams a package archive into w
func (c *DefaultClient) Download(ctx context.Context, url string, w io.Writer, progress ProgressFunc) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, url, "application/octet-stream", nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	total := resp.ContentLength
	if total > MaxDownloadSize {
		return 0, fmt.Errorf("download size %d bytes exceeds maximum allowed size of %d bytes", total, MaxDownloadSize)
	}

	var received int64
	buf := make([]byte, downloadChunkSize)
	body := io.LimitReader(resp.Body, MaxDownloadSize+1)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return received, fmt.Errorf("failed to write download: %w", err)
			}
			received += int64(n)
			if received > MaxDownloadSize {
				return received, fmt.Errorf("download exceeds maximum allowed size of %d bytes", MaxDownloadSize)
			}
			if progress != nil {
				progress(received, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return received, fmt.Errorf("failed to read download: %w", readErr)
		}
	}

	if total >= 0 && received != total {
		return received, fmt.Errorf("download truncated: received %d of %d bytes", received, total)
	}
	return received, nil
}

func (c *DefaultClient) do(ctx context.Context, method, url, accept string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	ok := resp.StatusCode == http.StatusOK
	if method != http.MethodGet {
		ok = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	if !ok {
		_ = resp.Body.Close()
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}
	return resp, nil
}
