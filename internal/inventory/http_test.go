package inventory_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"brewlink/internal/devauth"
	"brewlink/internal/inventory"
	"brewlink/internal/memstore"

	"github.com/gorilla/mux"
)

func newServer(t *testing.T, st *memstore.Store) func(key, body string) *httptest.ResponseRecorder {
	t.Helper()
	now := time.Unix(1_760_000_000, 0)
	auth := devauth.NewAuthenticator(st, 0)
	auth.Now = func() time.Time { return now }
	r := mux.NewRouter()
	inventory.NewHTTP(inventory.NewEngine(st), auth.RequireDevice(devauth.DefaultMaxBody)).RegisterRoutes(r)

	return func(key, body string) *httptest.ResponseRecorder {
		ts := strconv.FormatInt(now.Unix(), 10)
		req := httptest.NewRequest(http.MethodPost, "/telemetry/products", bytes.NewBufferString(body))
		req.Header.Set("X-Device-Id", key)
		req.Header.Set("X-Timestamp", ts)
		req.Header.Set("X-Signature", devauth.Sign("secret", ts, []byte(body)))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}
}

func TestProductsHandler(t *testing.T) {
	r := newRig(t, false)
	r.store.AddDevice("linked", "secret", &r.machine)
	r.store.AddDevice("loose", "secret", nil)
	send := newServer(t, r.store)

	rec := send("linked", `{"counts":{"coffee":2}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var out struct {
		OK       bool     `json:"ok"`
		Applied  float64  `json:"applied"`
		Warnings []string `json:"warnings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.OK || out.Applied != 2 || len(out.Warnings) != 1 {
		t.Fatalf("out = %+v", out)
	}
	if got := r.level(t, r.beans); got != 464 {
		t.Errorf("beans = %v, want 464", got)
	}

	rec = send("loose", `{"counts":{"coffee":0}}`)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"applied":0`)) {
		t.Fatalf("zero total from unlinked device: %d %s", rec.Code, rec.Body)
	}

	tests := []struct {
		name string
		key  string
		body string
		fail string
		code int
		want string
	}{
		{"not linked", "loose", `{"counts":{"coffee":1}}`, "", http.StatusBadRequest, "Device not linked to machine"},
		{"empty", "linked", ``, "", http.StatusBadRequest, "empty_body"},
		{"malformed", "linked", `{"counts"`, "", http.StatusBadRequest, "invalid_json"},
		{"machine", "linked", `{"counts":{"coffee":1}}`, "WaterTankEnabled", http.StatusInternalServerError, "load_machine"},
		{"recipes", "linked", `{"counts":{"coffee":1}}`, "ListRecipes", http.StatusInternalServerError, "load_recipes"},
		{"consumables", "linked", `{"counts":{"coffee":1}}`, "ListConsumables", http.StatusInternalServerError, "load_consumables"},
		{"update", "linked", `{"counts":{"coffee":1}}`, "AdjustConsumable", http.StatusInternalServerError, "update_consumables_failed"},
		{"unsigned device", "ghost", `{}`, "", http.StatusUnauthorized, "unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.fail != "" {
				r.store.Fail(tt.fail, errors.New("boom"))
				defer r.store.Fail(tt.fail, nil)
			}
			rec := send(tt.key, tt.body)
			if rec.Code != tt.code || !bytes.Contains(rec.Body.Bytes(), []byte(tt.want)) {
				t.Fatalf("got %d %s, want %d %s", rec.Code, rec.Body, tt.code, tt.want)
			}
		})
	}
}
