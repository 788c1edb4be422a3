package api

import (
	"net/http"

	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
)

func (a *API) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	q := r.URL.Query()
	opts := execution.ListOpts{
		Status: execution.Status(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	if s := q.Get("cron_id"); s != "" {
		if opts.CronID, err = id.ParseCronID(s); err != nil {
			a.writeError(w, invalid("invalid cron_id: "+err.Error()))
			return
		}
	}
	if s := q.Get("job_id"); s != "" {
		if opts.JobID, err = id.ParseJobID(s); err != nil {
			a.writeError(w, invalid("invalid job_id: "+err.Error()))
			return
		}
	}
	if opts.From, err = parseTime(r, "from"); err != nil {
		a.writeError(w, err)
		return
	}
	if opts.To, err = parseTime(r, "to"); err != nil {
		a.writeError(w, err)
		return
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && !opts.From.Before(opts.To) {
		a.writeError(w, invalid("from must be before to"))
		return
	}

	page, err := a.eng.ListExecutions(r.Context(), opts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
