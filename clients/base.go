package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/golang/glog"
)

var UserAgent string

type BaseClient struct {
	*http.Client
	BaseUrl     string
	BaseHeaders map[string]string
}

type Request struct {
	Method, URL string
	Body        io.Reader
	ContentType string
	Headers     map[string]string
}

// HTTPStatusError is returned for any non-success response from a host API.
// The upload driver classifies retriability on the Status field.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d %s: %q", e.Status, http.StatusText(e.Status), e.Body)
}

func (c *BaseClient) DoRequest(ctx context.Context, r Request, output interface{}) error {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if (r.Method == "GET" && resp.StatusCode != http.StatusOK) || (resp.StatusCode >= 300) {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			glog.Warningf("Error reading response body: url=%s err=%v", r.URL, err)
		}
		return &HTTPStatusError{resp.StatusCode, string(body)}
	}
	if output == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(output)
}

func (c *BaseClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *BaseClient) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	url := c.BaseUrl + r.URL
	req, err := http.NewRequestWithContext(ctx, r.Method, url, r.Body)
	if err != nil {
		return nil, err
	}
	if UserAgent != "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	for key, value := range c.BaseHeaders {
		req.Header.Set(key, value)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	return req, nil
}
