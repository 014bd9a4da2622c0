// CLAUDE:SUMMARY chi admin API over templates, settings, pages, trigger, fill history, dry run and update check, plus the bus endpoint under /bus.
package autoconfirm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/history"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/store"
	"github.com/hazyhaar/autoconfirm/bus"
	"github.com/hazyhaar/autoconfirm/rules"
	"github.com/hazyhaar/autoconfirm/shield"
)

// Handler returns the admin API:
//
//	GET    /health
//	GET    /api/templates              POST /api/templates
//	PATCH  /api/templates/{id}         DELETE /api/templates/{id}
//	POST   /api/templates/{id}/toggle  POST /api/templates/reset
//	GET    /api/settings               PUT  /api/settings
//	GET    /api/pages                  POST /api/pages
//	DELETE /api/pages/{id}
//	POST   /api/trigger
//	GET    /api/history?page_id=&limit=
//	POST   /api/dry-run
//	GET    /api/update
//	POST   /bus/{service}
func (d *Daemon) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(d.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/templates", func(r chi.Router) {
		r.Get("/", d.handleListTemplates)
		r.Post("/", d.handleAddTemplate)
		r.Post("/reset", d.handleResetTemplates)
		r.Patch("/{id}", d.handleUpdateTemplate)
		r.Delete("/{id}", d.handleDeleteTemplate)
		r.Post("/{id}/toggle", d.handleToggleTemplate)
	})

	r.Get("/api/settings", d.handleGetSettings)
	r.Put("/api/settings", d.handleSaveSettings)

	r.Route("/api/pages", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, d.Status())
		})
		r.Post("/", d.handleOpenPage)
		r.Delete("/{id}", d.handleClosePage)
	})

	r.Post("/api/trigger", d.handleTrigger)
	r.Get("/api/history", d.handleHistory)
	r.Post("/api/dry-run", d.handleDryRun)
	r.Get("/api/update", d.handleCheckUpdate)

	r.Route("/bus", d.router.Routes)
	return r
}

func (d *Daemon) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := d.store.Templates(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tpls)
}

func (d *Daemon) handleAddTemplate(w http.ResponseWriter, r *http.Request) {
	var req addTemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	tpl, err := d.store.AddTemplate(r.Context(), rules.Template{
		Name:        req.Name,
		Description: req.Description,
		Enabled:     enabled,
		Matcher:     req.Matcher,
		FillValue:   req.FillValue,
	})
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

func (d *Daemon) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var patch store.TemplatePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	tpl, err := d.store.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (d *Daemon) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := d.store.DeleteTemplate(r.Context(), id); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, deleteReply{Deleted: id})
}

func (d *Daemon) handleToggleTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := d.store.ToggleTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (d *Daemon) handleResetTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := d.store.ResetTemplates(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tpls)
}

func (d *Daemon) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := d.store.Settings(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (d *Daemon) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var st rules.Settings
	if !decodeBody(w, r, &st) {
		return
	}
	if err := d.store.SaveSettings(r.Context(), st); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (d *Daemon) handleOpenPage(w http.ResponseWriter, r *http.Request) {
	var req openPageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	id, err := d.OpenPage(r.Context(), req.ID, req.URL)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, pageRequest{PageID: id})
}

func (d *Daemon) handleClosePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := d.ClosePage(id); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, deleteReply{Deleted: id})
}

func (d *Daemon) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	ok, err := d.TriggerFill(r.Context(), req.PageID)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, bus.FillReply{Success: true, Filled: ok})
}

func (d *Daemon) handleHistory(w http.ResponseWriter, r *http.Request) {
	f := history.Filter{PageID: r.URL.Query().Get("page_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		f.Limit = n
	}
	entries, err := d.History(r.Context(), f)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (d *Daemon) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var req dryRunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := d.DryRun(r.Context(), req.URL, req.HTML)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d *Daemon) handleCheckUpdate(w http.ResponseWriter, r *http.Request) {
	info, err := d.CheckUpdate(r.Context())
	if err != nil {
		shield.Logger(r.Context()).Warn("autoconfirm: update check failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func errorStatus(err error) int {
	var (
		tnf *store.ErrTemplateNotFound
		pnf *ErrPageNotFound
		pex *ErrPageExists
	)
	switch {
	case errors.As(err, &tnf), errors.As(err, &pnf):
		return http.StatusNotFound
	case errors.As(err, &pex):
		return http.StatusConflict
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
