package client

import (
	"context"
	"net/http"
	"time"

	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
)

// CreateCron creates a cron definition. spec is encoded as the request
// body, so engine.CronSpec or any struct with the same JSON shape works.
func (c *Client) CreateCron(ctx context.Context, spec any) (*cron.Entry, error) {
	var out cron.Entry
	if _, err := c.do(ctx, request{method: http.MethodPost, path: "/v1/crons", body: spec, resource: "cron"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCron applies a partial update. patch is encoded as the request
// body, typically an engine.CronPatch.
func (c *Client) UpdateCron(ctx context.Context, cronID id.CronID, patch any) (*cron.Entry, error) {
	var out cron.Entry
	if _, err := c.do(ctx, request{method: http.MethodPut, path: "/v1/crons/" + cronID.String(), body: patch, resource: "cron"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCron returns one definition.
func (c *Client) GetCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	var out cron.Entry
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/crons/" + cronID.String(), resource: "cron"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCrons returns every definition.
func (c *Client) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	var out []*cron.Entry
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/crons"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteCron removes a definition.
func (c *Client) DeleteCron(ctx context.Context, cronID id.CronID) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: "/v1/crons/" + cronID.String(), resource: "cron"}, nil)
	return err
}

func (c *Client) PauseCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return c.cronAction(ctx, cronID, "pause")
}

func (c *Client) ResumeCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return c.cronAction(ctx, cronID, "resume")
}

func (c *Client) ActivateCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return c.cronAction(ctx, cronID, "activate")
}

func (c *Client) DeactivateCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	return c.cronAction(ctx, cronID, "deactivate")
}

func (c *Client) cronAction(ctx context.Context, cronID id.CronID, action string) (*cron.Entry, error) {
	var out cron.Entry
	path := "/v1/crons/" + cronID.String() + "/" + action
	if _, err := c.do(ctx, request{method: http.MethodPost, path: path, resource: "cron"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListExecutions returns one page of execution history, newest first.
func (c *Client) ListExecutions(ctx context.Context, opts execution.ListOpts) (*execution.Page, error) {
	q := pageQuery(opts.Limit, opts.Offset)
	if !opts.CronID.IsNil() {
		q.Set("cron_id", opts.CronID.String())
	}
	if !opts.JobID.IsNil() {
		q.Set("job_id", opts.JobID.String())
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if !opts.From.IsZero() {
		q.Set("from", opts.From.UTC().Format(time.RFC3339))
	}
	if !opts.To.IsZero() {
		q.Set("to", opts.To.UTC().Format(time.RFC3339))
	}

	var out execution.Page
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/executions", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
