package inventory

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
	engine *Engine
	auth   func(http.Handler) http.Handler
}

func NewHTTP(engine *Engine, auth func(http.Handler) http.Handler) *HTTP {
	return &HTTP{engine: engine, auth: auth}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	r.Handle("/telemetry/products", h.auth(http.HandlerFunc(h.products))).Methods(http.MethodPost)
}

// POST /telemetry/products
func (h *HTTP) products(w http.ResponseWriter, r *http.Request) {
	id, _ := devauth.FromContext(r.Context())
	log := logs.Logger.WithFields(logrus.Fields{
		"request_id": middleware.GetRequestID(r.Context()),
		"device":     id.DeviceKey,
	})

	counts, err := ParseCounts(devauth.Body(r.Context()))
	switch {
	case errors.Is(err, ErrEmptyBody):
		models.WriteError(w, http.StatusBadRequest, "empty_body")
		return
	case err != nil:
		models.WriteError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	res, err := h.engine.Apply(r.Context(), id.MachineID, counts)
	if err != nil {
		var code string
		switch {
		case errors.Is(err, ErrDeviceNotLinked):
			models.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "device_not_linked",
				"message": "Device not linked to machine",
			})
			return
		case errors.Is(err, ErrLoadMachine):
			code = "load_machine"
		case errors.Is(err, ErrLoadRecipes):
			code = "load_recipes"
		case errors.Is(err, ErrLoadConsumables):
			code = "load_consumables"
		default:
			code = "update_consumables_failed"
		}
		log.Errorf("products: %v", err)
		models.WriteError(w, http.StatusInternalServerError, code)
		return
	}

	if res.Applied == 0 {
		models.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "applied": 0})
		return
	}
	if len(res.Warnings) > 0 {
		log.WithField("warnings", res.Warnings).Warn("inventory applied with warnings")
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "applied": res.Applied, "warnings": res.Warnings})
}
