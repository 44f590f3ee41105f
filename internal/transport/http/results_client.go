package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"proctored-quiz-service/internal/domain"
	"proctored-quiz-service/internal/submit"
)

// ResultsClient talks to the results API over HTTP.
type ResultsClient struct {
	baseURL string
	client  *http.Client
}

var _ submit.ResultsAPI = (*ResultsClient)(nil)

func NewResultsClient(baseURL string, client *http.Client) *ResultsClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ResultsClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *ResultsClient) AttemptIDs(ctx context.Context, userID string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/results/check/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	var check AttemptIDsResponse
	if _, err := c.do(req, &check); err != nil {
		return nil, err
	}
	if check.AttemptIDs == nil {
		check.AttemptIDs = []string{}
	}
	return check.AttemptIDs, nil
}

// Submit posts a result. A 4xx answer is a permanent ErrInvalidResult; a
// duplicate acknowledgement maps to ErrDuplicateAttempt.
func (c *ResultsClient) Submit(ctx context.Context, sub domain.ResultSubmission) (domain.AttemptRecord, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return domain.AttemptRecord{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/results", bytes.NewReader(body))
	if err != nil {
		return domain.AttemptRecord{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var saved SaveResponse
	if _, err := c.do(req, &saved); err != nil {
		return domain.AttemptRecord{}, err
	}
	if saved.Duplicate {
		return saved.Record, domain.ErrDuplicateAttempt
	}
	return saved.Record, nil
}

func (c *ResultsClient) do(req *http.Request, data any) (int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, fmt.Errorf("%s %s: rate limited", req.Method, req.URL.Path)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return resp.StatusCode, fmt.Errorf("%w: %s", domain.ErrInvalidResult, env.Error)
	case resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("%s %s: server error %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if decodeErr != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", decodeErr)
	}
	if !env.Success {
		return resp.StatusCode, fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, env.Error)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return resp.StatusCode, fmt.Errorf("decode data: %w", err)
		}
	}
	return resp.StatusCode, nil
}
