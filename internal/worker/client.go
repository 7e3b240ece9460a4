package worker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"offload-desktop/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Client is the HTTP/JSON client for the transfer worker daemon. Every
// mutating call is a request/acknowledge round trip; the worker remains the
// source of truth and pushes the resulting state change on the event feed.
type Client struct {
	baseURL string
	http    *resty.Client
}

// CreateJobRequest carries the domain-specific fields for job creation.
// RequestID is a client-generated idempotency key so a retried create cannot
// spawn a second job.
type CreateJobRequest struct {
	Domain          models.Domain `json:"domain"`
	SourcePath      string        `json:"source_path,omitempty"`
	SelectedFiles   []string      `json:"selected_files,omitempty"`
	DestinationPath string        `json:"destination_path"`
	DestinationName string        `json:"destination_name,omitempty"`
	Template        string        `json:"template,omitempty"`
	RequestID       string        `json:"request_id"`
}

// NewClient creates a worker client. An empty token means an unauthenticated
// connection against a local worker.
func NewClient(baseURL, token string) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	client.http = resty.New().
		SetHeader("User-Agent", "offload-desktop").
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on 429 (Too Many Requests) and 5xx server errors
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	if token != "" {
		client.http.SetAuthToken(token)
	}

	return client
}

// Ping checks that the worker daemon is reachable.
func (c *Client) Ping() error {
	resp, err := c.http.R().Get(c.buildURL("api/health"))
	if err != nil {
		return fmt.Errorf("worker unreachable: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("worker health check failed: %s", resp.Status())
	}
	return nil
}

// ListJobs fetches the full job list for one domain. This is the ground
// truth the reconciliation poller replaces the store with.
func (c *Client) ListJobs(domain models.Domain) ([]models.Job, error) {
	resp, err := c.http.R().
		SetQueryParam("domain", string(domain)).
		Get(c.buildURL("api/jobs"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s jobs: %w", domain, err)
	}
	if !resp.IsSuccess() {
		return nil, c.apiError(resp, "list jobs")
	}

	var result struct {
		Jobs []models.Job `json:"jobs"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse job list: %w", err)
	}

	return result.Jobs, nil
}

// StartJob asks the worker to begin executing a pending job and returns the
// updated record.
func (c *Client) StartJob(jobID string) (*models.Job, error) {
	resp, err := c.http.R().Post(c.buildURL(fmt.Sprintf("api/jobs/%s/start", jobID)))
	if err != nil {
		return nil, fmt.Errorf("failed to start job %s: %w", jobID, err)
	}
	if !resp.IsSuccess() {
		return nil, c.apiError(resp, "start job")
	}

	var job models.Job
	if err := json.Unmarshal(resp.Body(), &job); err != nil {
		return nil, fmt.Errorf("failed to parse started job: %w", err)
	}

	return &job, nil
}

// CancelJob asks the worker to cancel a pending or in-progress job. The
// request is advisory; the cancelled status arrives through the usual
// push/poll channels once the worker honours it.
func (c *Client) CancelJob(jobID string) error {
	resp, err := c.http.R().Post(c.buildURL(fmt.Sprintf("api/jobs/%s/cancel", jobID)))
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	if !resp.IsSuccess() {
		return c.apiError(resp, "cancel job")
	}
	return nil
}

// RemoveJob deletes a terminal job's persisted record on the worker.
func (c *Client) RemoveJob(jobID string) error {
	resp, err := c.http.R().Delete(c.buildURL(fmt.Sprintf("api/jobs/%s", jobID)))
	if err != nil {
		return fmt.Errorf("failed to remove job %s: %w", jobID, err)
	}
	if !resp.IsSuccess() {
		return c.apiError(resp, "remove job")
	}
	return nil
}

// CreateJob registers a new job with the worker. The job comes back in
// status pending.
func (c *Client) CreateJob(req CreateJobRequest) (*models.Job, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	resp, err := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(c.buildURL("api/jobs"))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s job: %w", req.Domain, err)
	}
	if !resp.IsSuccess() {
		return nil, c.apiError(resp, "create job")
	}

	var job models.Job
	if err := json.Unmarshal(resp.Body(), &job); err != nil {
		return nil, fmt.Errorf("failed to parse created job: %w", err)
	}

	return &job, nil
}

// ListVolumes fetches the current removable volume snapshot.
func (c *Client) ListVolumes() ([]models.Volume, error) {
	resp, err := c.http.R().Get(c.buildURL("api/volumes"))
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, c.apiError(resp, "list volumes")
	}

	var result struct {
		Volumes []models.Volume `json:"volumes"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse volume list: %w", err)
	}

	return result.Volumes, nil
}

// CancelTransfer aborts a low-level transfer on the engine. Transfer ids are
// a distinct id space from job ids.
func (c *Client) CancelTransfer(transferID string) error {
	resp, err := c.http.R().Post(c.buildURL(fmt.Sprintf("api/transfers/%s/cancel", transferID)))
	if err != nil {
		return fmt.Errorf("failed to cancel transfer %s: %w", transferID, err)
	}
	if !resp.IsSuccess() {
		return c.apiError(resp, "cancel transfer")
	}
	return nil
}

// apiError turns a non-2xx worker response into an error, preferring the
// worker's own error message when the body carries one.
func (c *Client) apiError(resp *resty.Response, op string) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return fmt.Errorf("%s: %s", op, body.Error)
	}
	return fmt.Errorf("%s: worker returned %s", op, resp.Status())
}

// buildURL constructs the full URL for an endpoint
func (c *Client) buildURL(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}
