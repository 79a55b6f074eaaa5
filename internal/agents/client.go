package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Health struct {
	Agent     string `json:"agent"`
	Status    string `json:"status"` // healthy, degraded, unreachable
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Client talks to the hosted agent platform through its proxy.
type Client interface {
	Health(ctx context.Context, agent string) (*Health, error)
	Run(ctx context.Context, agent, taskType string, input map[string]interface{}) (map[string]interface{}, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) doReq(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("agent proxy %s %s: %d %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *HTTPClient) Health(ctx context.Context, agent string) (*Health, error) {
	start := time.Now()
	data, err := c.doReq(ctx, http.MethodGet, "/agents/"+agent+"/health", nil)
	if err != nil {
		return nil, err
	}
	h := Health{Agent: agent}
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	if h.Status == "" {
		h.Status = "healthy"
	}
	h.LatencyMs = time.Since(start).Milliseconds()
	return &h, nil
}

type runRequest struct {
	TaskType string                 `json:"task_type"`
	Input    map[string]interface{} `json:"input,omitempty"`
}

type runResponse struct {
	Output map[string]interface{} `json:"output"`
	Error  string                 `json:"error,omitempty"`
}

func (c *HTTPClient) Run(ctx context.Context, agent, taskType string, input map[string]interface{}) (map[string]interface{}, error) {
	data, err := c.doReq(ctx, http.MethodPost, "/agents/"+agent+"/tasks", runRequest{TaskType: taskType, Input: input})
	if err != nil {
		return nil, err
	}
	var resp runResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode agent response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("agent %s: %s", agent, resp.Error)
	}
	return resp.Output, nil
}
