package commands

import (
	"errors"
	"net/http"

	"brewlink/internal/devauth"
	"brewlink/internal/logs"
	"brewlink/internal/middleware"
	"brewlink/internal/models"
	"brewlink/internal/payload"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type HTTP struct {
	queue *Queue
	auth  func(http.Handler) http.Handler
}

// NewHTTP wires the device-facing queue endpoints behind the shared device auth.
func NewHTTP(q *Queue, auth func(http.Handler) http.Handler) *HTTP {
	return &HTTP{queue: q, auth: auth}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	r.Handle("/commands", h.auth(http.HandlerFunc(h.poll))).Methods(http.MethodGet)
	r.Handle("/commands/ack", h.auth(http.HandlerFunc(h.ack))).Methods(http.MethodPost)
}

// GET /commands
func (h *HTTP) poll(w http.ResponseWriter, r *http.Request) {
	id, _ := devauth.FromContext(r.Context())
	log := logs.Logger.WithFields(logrus.Fields{
		"request_id": middleware.GetRequestID(r.Context()),
		"device":     id.DeviceKey,
	})

	cmd, err := h.queue.Poll(r.Context(), id.RecordID)
	if err != nil {
		log.Errorf("poll: %v", err)
		code := "load_commands"
		if errors.Is(err, ErrMarkSentFailed) {
			code = "update_command_status"
		}
		models.WriteError(w, http.StatusInternalServerError, code)
		return
	}
	if cmd == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	log.WithField("command_id", cmd.ID).Info("command sent")
	models.WriteJSON(w, http.StatusOK, map[string]any{"command": cmd})
}

// POST /commands/ack  {command_id, status}
func (h *HTTP) ack(w http.ResponseWriter, r *http.Request) {
	id, _ := devauth.FromContext(r.Context())
	log := logs.Logger.WithFields(logrus.Fields{
		"request_id": middleware.GetRequestID(r.Context()),
		"device":     id.DeviceKey,
	})

	body, err := payload.Parse(devauth.Body(r.Context()))
	if err != nil && !errors.Is(err, payload.ErrNotObject) {
		models.WriteError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	// ids and statuses may arrive as numbers; a non-object body has no fields at all
	commandID := body.Text("command_id")
	status := body.Text("status")
	message := body.Text("message")

	matched, err := h.queue.Acknowledge(r.Context(), id.RecordID, commandID, status)
	switch {
	case errors.Is(err, ErrMissingFields):
		models.WriteError(w, http.StatusBadRequest, "missing_fields")
		return
	case errors.Is(err, ErrInvalidStatus):
		models.WriteError(w, http.StatusBadRequest, "invalid_status")
		return
	case err != nil:
		log.Errorf("ack: %v", err)
		models.WriteError(w, http.StatusInternalServerError, "ack_failed")
		return
	}

	entry := log.WithFields(logrus.Fields{"command_id": commandID, "status": status})
	if message != "" {
		entry = entry.WithField("message", message)
	}
	if !matched {
		entry.Warn("ack matched no command of this device")
	} else {
		entry.Info("command acknowledged")
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
