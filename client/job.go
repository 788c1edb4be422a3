package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// SubmitRequest describes a job to submit. Zero fields fall back to the
// server's defaults for the type.
type SubmitRequest struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Priority   job.Priority    `json:"priority,omitempty"`
	StoreID    string          `json:"store_id,omitempty"`
	MaxRetries *int            `json:"max_retries,omitempty"`
	RunAt      *time.Time      `json:"run_at,omitempty"`
}

// Submission is the server's answer to a submit.
type Submission struct {
	JobID  id.JobID   `json:"job_id"`
	Status job.Status `json:"status"`
}

// Submit creates a job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	var out Submission
	if _, err := c.do(ctx, request{method: http.MethodPost, path: "/v1/jobs", body: req, resource: "job"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Enqueue marshals payload to JSON and submits it as a job of jobType.
func (c *Client) Enqueue(ctx context.Context, jobType string, payload any) (*Submission, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dispatch/client: marshal payload: %w", err)
	}
	return c.Submit(ctx, SubmitRequest{Type: jobType, Payload: raw})
}

// Status returns the status view of a job.
func (c *Client) Status(ctx context.Context, jobID id.JobID) (*job.StatusReport, error) {
	var out job.StatusReport
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/jobs/" + jobID.String(), resource: "job"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel cancels a pending job. Jobs already claimed or finished are not
// an error: the result says which case applied.
func (c *Client) Cancel(ctx context.Context, jobID id.JobID) (job.CancelResult, error) {
	var out struct {
		Result job.CancelResult `json:"result"`
	}
	_, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/v1/jobs/" + jobID.String() + "/cancel",
		resource: "job",
		accept:   []int{http.StatusConflict},
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Result, nil
}

// Retry resets a failed or cancelled job to pending.
func (c *Client) Retry(ctx context.Context, jobID id.JobID) (*job.StatusReport, error) {
	var out job.StatusReport
	if _, err := c.do(ctx, request{method: http.MethodPost, path: "/v1/jobs/" + jobID.String() + "/retry", resource: "job"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListJobs returns jobs matching opts, newest first.
func (c *Client) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	q := pageQuery(opts.Limit, opts.Offset)
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if opts.StoreID != "" {
		q.Set("store_id", opts.StoreID)
	}
	if !opts.CronID.IsNil() {
		q.Set("cron_id", opts.CronID.String())
	}

	var out []*job.Job
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/jobs", query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// JobCounts returns the number of jobs per status, optionally for one
// tenant.
func (c *Client) JobCounts(ctx context.Context, storeID string) (map[job.Status]int64, error) {
	q := pageQuery(0, 0)
	if storeID != "" {
		q.Set("store_id", storeID)
	}
	out := map[job.Status]int64{}
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/jobs/counts", query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
