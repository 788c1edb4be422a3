package api

import (
	"net/http"

	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/engine"
	"github.com/assaka/daino-sub010/id"
)

func cronIDParam(r *http.Request) (id.CronID, error) {
	cronID, err := id.ParseCronID(r.PathValue("cronId"))
	if err != nil {
		return id.Nil, invalid("invalid cron ID: " + err.Error())
	}
	return cronID, nil
}

func (a *API) listCrons(w http.ResponseWriter, r *http.Request) {
	entries, err := a.eng.ListCrons(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*cron.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) createCron(w http.ResponseWriter, r *http.Request) {
	var spec engine.CronSpec
	if err := decodeBody(w, r, &spec); err != nil {
		a.writeError(w, err)
		return
	}
	e, err := a.eng.CreateCron(r.Context(), spec)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) getCron(w http.ResponseWriter, r *http.Request) {
	cronID, err := cronIDParam(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	e, err := a.eng.GetCron(r.Context(), cronID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) updateCron(w http.ResponseWriter, r *http.Request) {
	cronID, err := cronIDParam(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	var patch engine.CronPatch
	if err := decodeBody(w, r, &patch); err != nil {
		a.writeError(w, err)
		return
	}
	e, err := a.eng.UpdateCron(r.Context(), cronID, patch)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) deleteCron(w http.ResponseWriter, r *http.Request) {
	cronID, err := cronIDParam(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.eng.DeleteCron(r.Context(), cronID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) cronAction(w http.ResponseWriter, r *http.Request) {
	cronID, err := cronIDParam(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	var e *cron.Entry
	ctx := r.Context()
	switch action := r.PathValue("action"); action {
	case "pause":
		e, err = a.eng.PauseCron(ctx, cronID)
	case "resume":
		e, err = a.eng.ResumeCron(ctx, cronID)
	case "activate":
		e, err = a.eng.ActivateCron(ctx, cronID)
	case "deactivate":
		e, err = a.eng.DeactivateCron(ctx, cronID)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown cron action " + action})
		return
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
