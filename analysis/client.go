// Package analysis is the HTTP client for the remote video analysis service.
// The service is a black box that decodes video segments, recognizes cards
// and actions, and reports per-job progress.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"poker-pipeline/apperror"
	"poker-pipeline/constant"
	"poker-pipeline/entities"
)

// SubmitRequest is the wire shape of POST /analyze.
type SubmitRequest struct {
	StreamId     string             `json:"streamId"`
	VideoLocator string             `json:"videoLocator"`
	Segments     []entities.Segment `json:"segments"`
	PlatformHint string             `json:"platformHint,omitempty"`
}

type SubmitResponse struct {
	JobId string `json:"jobId"`
}

// StatusResponse is the wire shape of GET /status/{jobId}. Status uses the
// service's lowercase vocabulary; MapStatus converts it.
type StatusResponse struct {
	Id           string     `json:"id"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// MapStatus converts the remote status vocabulary to the pipeline's job
// status enum.
func MapStatus(remote string) (constant.JobStatus, error) {
	switch remote {
	case "pending":
		return constant.JobStatusPending, nil
	case "executing":
		return constant.JobStatusExecuting, nil
	case "success":
		return constant.JobStatusSuccess, nil
	case "failure":
		return constant.JobStatusFailure, nil
	default:
		return "", fmt.Errorf("unknown remote job status %q", remote)
	}
}

// Client talks to the analysis service. Submit uses a short timeout since it
// only hands work over; it never waits for the job to run.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
	Status(ctx context.Context, jobId string) (*StatusResponse, error)
}

type client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the service at baseURL. An empty baseURL is
// allowed here; Submit and Status report it as a configuration error so the
// missing setting surfaces at dispatch time, not at startup.
func NewClient(baseURL string, submitTimeout time.Duration) Client {
	if submitTimeout <= 0 {
		submitTimeout = 10 * time.Second
	}
	return &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: submitTimeout},
	}
}

func (c *client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if c.baseURL == "" {
		return nil, apperror.Configuration("analysis service url is not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperror.RemoteService("analysis service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperror.RemoteService(fmt.Sprintf("analysis service returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg)), nil)
	}

	var out SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperror.RemoteService("invalid submit response", err)
	}
	if out.JobId == "" {
		return nil, apperror.RemoteService("submit response missing jobId", nil)
	}
	return &out, nil
}

func (c *client) Status(ctx context.Context, jobId string) (*StatusResponse, error) {
	if c.baseURL == "" {
		return nil, apperror.Configuration("analysis service url is not configured")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+url.PathEscape(jobId), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperror.RemoteService("analysis service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperror.RemoteService(fmt.Sprintf("status query returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg)), nil)
	}

	var out StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperror.RemoteService("invalid status response", err)
	}
	return &out, nil
}
