package health

import (
	"context"
	"net/http"
	"time"

	"brewlink/internal/models"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// RegisterRoutes: no store to check (in-memory mode), /readyz mirrors /healthz.
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", liveness).Methods(http.MethodGet, http.MethodHead)
}

// RegisterRoutesWithDB: /healthz plus /readyz that pings the database.
func RegisterRoutesWithDB(r *mux.Router, db *gorm.DB) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			models.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": "unreachable"})
			return
		}
		models.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "ok"})
	}).Methods(http.MethodGet, http.MethodHead)
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	models.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
