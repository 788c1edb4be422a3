package api

import (
	"encoding/json"
	"net/http"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// SubmitJobRequest is the body of POST /v1/jobs.
type SubmitJobRequest struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Priority   job.Priority    `json:"priority,omitempty"`
	StoreID    string          `json:"store_id,omitempty"`
	MaxRetries *int            `json:"max_retries,omitempty"`
	RunAt      *time.Time      `json:"run_at,omitempty"`
}

// SubmitJobResponse is returned with 201 Created.
type SubmitJobResponse struct {
	JobID  id.JobID   `json:"job_id"`
	Status job.Status `json:"status"`
}

// CancelJobResponse carries the cancel outcome. It is sent with 200 when
// the job was cancelled and 409 otherwise.
type CancelJobResponse struct {
	Result job.CancelResult `json:"result"`
	Error  string           `json:"error,omitempty"`
}

func (a *API) submitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	var opts []job.Option
	if req.Priority != "" {
		opts = append(opts, job.WithPriority(req.Priority))
	}
	if req.StoreID != "" {
		opts = append(opts, job.WithStoreID(req.StoreID))
	}
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			a.writeError(w, invalid("max_retries must not be negative"))
			return
		}
		opts = append(opts, job.WithMaxRetries(*req.MaxRetries))
	}
	if req.RunAt != nil {
		opts = append(opts, job.WithRunAt(*req.RunAt))
	}

	j, err := a.eng.Submit(r.Context(), req.Type, req.Payload, opts...)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitJobResponse{JobID: j.ID, Status: j.Status})
}

func jobIDParam(r *http.Request) (id.JobID, error) {
	jobID, err := id.ParseJobID(r.PathValue("jobId"))
	if err != nil {
		return id.Nil, invalid("invalid job ID: " + err.Error())
	}
	return jobID, nil
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	report, err := a.eng.GetStatus(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	res, err := a.eng.Cancel(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if res != job.CancelCancelled {
		writeJSON(w, http.StatusConflict, CancelJobResponse{Result: res, Error: dispatch.ErrJobNotPending.Error()})
		return
	}
	writeJSON(w, http.StatusOK, CancelJobResponse{Result: res})
}

func (a *API) retryJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	j, err := a.eng.Retry(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j.Report())
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	q := r.URL.Query()
	opts := job.ListOpts{
		Status:  job.Status(q.Get("status")),
		Type:    q.Get("type"),
		StoreID: q.Get("store_id"),
		Limit:   limit,
		Offset:  offset,
	}
	if s := q.Get("cron_id"); s != "" {
		if opts.CronID, err = id.ParseCronID(s); err != nil {
			a.writeError(w, invalid("invalid cron_id: "+err.Error()))
			return
		}
	}

	jobs, err := a.eng.ListJobs(r.Context(), opts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) jobCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := a.eng.JobCounts(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
