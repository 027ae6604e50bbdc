// Package clients provides the ambient HTTP client every control-plane
// component uses to call its peers: node agent -> orchestrator,
// orchestrator -> node agent, controller -> orchestrator. It wraps
// *http.Client with JSON marshal/unmarshal helpers since every call here
// exchanges a JSON request/response pair.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/edgeless-project/edgeless/common/apierr"
)

// Logger interface for HTTP client logging.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// HTTPClient wraps http.Client with context-aware JSON helpers.
type HTTPClient struct {
	client *http.Client
	logger Logger
}

// NewHTTPClient creates a new HTTP client wrapper.
func NewHTTPClient(client *http.Client, logger Logger) *HTTPClient {
	return &HTTPClient{client: client, logger: logger}
}

// DoRequest creates and executes an HTTP request, propagating trace
// metadata from ctx.
func (c *HTTPClient) DoRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if traceID, ok := GetTraceID(ctx); ok {
		req.Header.Set("X-Trace-ID", traceID)
	}
	return c.client.Do(req)
}

// PostJSON marshals in, POSTs it to url, and unmarshals a 2xx body into
// out. A non-2xx response is decoded as apierr.ResponseError and returned
// wrapped as a Transport-kind error. A connection failure is also
// Transport-kind (summary "peer unreachable"), so apierr.KindOf alone does
// not tell the two apart.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return apierr.Wrap(apierr.Internal, "encode request", err)
		}
		body = bytes.NewReader(buf)
	}
	resp, err := c.DoRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return apierr.Wrap(apierr.Transport, "peer unreachable", err)
	}
	defer resp.Body.Close()
	return c.decode(resp, out)
}

// GetJSON performs a GET and unmarshals a 2xx body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, out interface{}) error {
	resp, err := c.DoRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apierr.Wrap(apierr.Transport, "peer unreachable", err)
	}
	defer resp.Body.Close()
	return c.decode(resp, out)
}

// PatchJSON marshals in, PATCHes it to url, and unmarshals a 2xx body into
// out, used for the Function/Resource Instance API's patch calls.
func (c *HTTPClient) PatchJSON(ctx context.Context, url string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return apierr.Wrap(apierr.Internal, "encode request", err)
		}
		body = bytes.NewReader(buf)
	}
	resp, err := c.DoRequest(ctx, http.MethodPatch, url, body)
	if err != nil {
		return apierr.Wrap(apierr.Transport, "peer unreachable", err)
	}
	defer resp.Body.Close()
	return c.decode(resp, out)
}

// DeleteJSON issues a DELETE and unmarshals a 2xx body into out (if any),
// used for the Function/Resource Instance API's stop calls.
func (c *HTTPClient) DeleteJSON(ctx context.Context, url string, out interface{}) error {
	resp, err := c.DoRequest(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return apierr.Wrap(apierr.Transport, "peer unreachable", err)
	}
	defer resp.Body.Close()
	return c.decode(resp, out)
}

func (c *HTTPClient) decode(resp *http.Response, out interface{}) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Wrap(apierr.Transport, "read response body", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return apierr.Wrap(apierr.Internal, "decode response", err)
		}
		return nil
	}
	var respErr apierr.ResponseError
	if err := json.Unmarshal(data, &respErr); err != nil {
		return apierr.New(apierr.Transport, fmt.Sprintf("peer returned status %d", resp.StatusCode), string(data))
	}
	return apierr.New(apierr.Transport, respErr.Summary, respErr.Detail)
}
