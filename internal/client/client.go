// Package client talks to the broker over HTTP: it submits async chat turns
// and polls their status until they finish.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/models"
)

// Message is one turn of the conversation sent with a submission.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SubmitRequest is an async chat submission.
type SubmitRequest struct {
	Messages     []Message `json:"messages"`
	ChatID       string    `json:"chatId"`
	UserID       string    `json:"userId"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
}

type submitBody struct {
	SubmitRequest
	Async bool `json:"async"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	JobID   string           `json:"jobId"`
	Success bool             `json:"success"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message"`
	Error   string           `json:"error,omitempty"`
}

// Client is a broker API client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the broker at baseURL. A nil httpClient uses a
// client with a 15s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Submit posts an async chat turn and returns the job id to poll.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	body, err := json.Marshal(submitBody{SubmitRequest: req, Async: true})
	if err != nil {
		return SubmitResponse{}, errors.Wrap(err, "encode submission")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return SubmitResponse{}, errors.Wrap(err, "build submission")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SubmitResponse{}, errors.Wrap(err, "submit chat")
	}
	defer resp.Body.Close()

	var out SubmitResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out)
		return SubmitResponse{}, errors.Newf("failed to start chat: %d %s %s", resp.StatusCode, http.StatusText(resp.StatusCode), out.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SubmitResponse{}, errors.Wrap(err, "decode submission response")
	}
	if !out.Success || out.JobID == "" {
		return SubmitResponse{}, errors.New("failed to create chat job")
	}
	return out, nil
}

// Status fetches a job snapshot. Unknown jobs yield an apperr.ErrNotFound error.
func (c *Client) Status(ctx context.Context, jobID string) (models.JobView, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/chat/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return models.JobView{}, errors.Wrap(err, "build status request")
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.JobView{}, errors.Wrap(err, "get job status")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.JobView{}, apperr.NotFound("job %s not found", jobID)
	case resp.StatusCode != http.StatusOK:
		return models.JobView{}, errors.Newf("failed to get job status: %d", resp.StatusCode)
	}
	var view models.JobView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return models.JobView{}, errors.Wrap(err, "decode job status")
	}
	return view, nil
}
