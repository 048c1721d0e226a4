package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/taskmirror/pkg/cerr"
)

// Routes registers the JSON endpoints. Responses are written by
// cerr.NewJSONResponseChiMiddleware, which must be installed on r.
func Routes(svc *Service) func(r chi.Router) {
	return func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			cerr.SetJSONResponse(req.Context(), svc.Status())
		})
		r.Get("/export-state", func(w http.ResponseWriter, req *http.Request) {
			cerr.SetJSONResponse(req.Context(), svc.ExportState())
		})
		r.Post("/trigger", func(w http.ResponseWriter, req *http.Request) {
			report, err := svc.Trigger(req.Context())
			if err != nil {
				cerr.SetJSONError(req.Context(), err)
				return
			}
			cerr.SetJSONResponse(req.Context(), &TriggerResponse{Report: report})
		})
		r.Post("/reset", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.Reset(req.Context()); err != nil {
				cerr.SetJSONError(req.Context(), err)
				return
			}
			cerr.SetJSONResponse(req.Context(), &ResetResponse{ResetAt: time.Now().UTC()})
		})
		r.Post("/roster/invalidate", func(w http.ResponseWriter, req *http.Request) {
			svc.InvalidateRoster(req.Context())
			cerr.SetJSONStatus(req.Context(), http.StatusAccepted)
			cerr.SetJSONResponse(req.Context(), &InvalidateRosterResponse{})
		})
	}
}
