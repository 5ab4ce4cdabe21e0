// Package cli implements the cobra command tree for the `minifly`
// binary (spec §6 CLI surface): deploy/serve/stop in depth, plus thin
// HTTP clients for apps/machines/logs/status/secrets.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// apiClient is a thin wrapper over net/http pointed at a running
// `minifly serve` instance. None of the core/library logic lives here:
// every call is a plain HTTP request, matching spec §6's "thin HTTP
// clients" instruction for non-core CLI surfaces.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(port int) *apiClient {
	return &apiClient{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("connect to minifly serve at %s: %w (is `minifly serve` running?)", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

// apiError is the wire shape of spec §7's error responses.
type apiError struct {
	Error string `json:"error"`
}

func (c *apiClient) request(method, path string, body any, out any) error {
	raw, status, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		var apiErr apiError
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("request failed with status %d", status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}
