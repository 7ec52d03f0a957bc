package telemetry

import (
	"errors"
	"net/http"

	"brewlink/internal/devauth"
	"brewlink/internal/logs"
	"brewlink/internal/middleware"
	"brewlink/internal/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type HTTP struct {
	rec  *Recorder
	auth func(http.Handler) http.Handler
}

func NewHTTP(rec *Recorder, auth func(http.Handler) http.Handler) *HTTP {
	return &HTTP{rec: rec, auth: auth}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	r.Handle("/telemetry", h.auth(http.HandlerFunc(h.report))).Methods(http.MethodPost)
}

// POST /telemetry
func (h *HTTP) report(w http.ResponseWriter, r *http.Request) {
	id, _ := devauth.FromContext(r.Context())

	bucket, err := h.rec.Record(r.Context(), id.RecordID, devauth.Body(r.Context()))
	if err != nil {
		log := logs.Logger.WithFields(logrus.Fields{
			"request_id": middleware.GetRequestID(r.Context()),
			"device":     id.DeviceKey,
		})
		switch {
		case errors.Is(err, ErrEmptyBody):
			models.WriteError(w, http.StatusBadRequest, "empty_body")
		case errors.Is(err, ErrInvalidPayload):
			models.WriteError(w, http.StatusBadRequest, "invalid_json")
		case errors.Is(err, ErrWriteCounters):
			log.Errorf("telemetry: %v", err)
			models.WriteError(w, http.StatusInternalServerError, "write_counters_failed")
		case errors.Is(err, ErrWriteStatus):
			log.Errorf("telemetry: %v", err)
			models.WriteError(w, http.StatusInternalServerError, "write_status_failed")
		default:
			log.Errorf("telemetry: %v", err)
			models.WriteError(w, http.StatusInternalServerError, "internal")
		}
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "ts_bucket": FormatBucket(bucket)})
}
