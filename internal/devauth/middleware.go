package devauth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"brewlink/internal/logs"
	"brewlink/internal/middleware"
	"brewlink/internal/models"

	"github.com/sirupsen/logrus"
)

// DefaultMaxBody caps a signed request body.
const DefaultMaxBody = 2 << 20

type ctxKey int

const (
	identityKey ctxKey = iota
	bodyKey
)

// RequireDevice authenticates every request before next runs. The raw body is read
// once (it is part of the signature), then made available through Body and r.Body.
// GET and HEAD requests are always verified against an empty body.
// All credential failures answer the same 401 body; the reason is only logged.
func (a *Authenticator) RequireDevice(maxBody int64) func(http.Handler) http.Handler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// GET/HEAD are signed over an empty body; whatever they carry is ignored
			var body []byte
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
				if err != nil {
					var tooBig *http.MaxBytesError
					if errors.As(err, &tooBig) {
						models.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large")
						return
					}
					models.WriteError(w, http.StatusBadRequest, "bad_body")
					return
				}
				body = b
			}

			h := Headers{
				DeviceID:  r.Header.Get(HeaderDeviceID),
				Timestamp: r.Header.Get(HeaderTimestamp),
				Signature: r.Header.Get(HeaderSignature),
			}
			id, err := a.Authenticate(r.Context(), h, body)
			if err != nil {
				entry := logs.Logger.WithFields(logrus.Fields{
					"request_id": middleware.GetRequestID(r.Context()),
					"device":     h.DeviceID,
					"path":       r.URL.Path,
				})
				if IsAuthFailure(err) {
					entry.Infof("auth rejected: %v", err)
					models.WriteError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				entry.Errorf("auth: %v", err)
				models.WriteError(w, http.StatusInternalServerError, "lookup_failed")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			ctx = context.WithValue(ctx, bodyKey, body)
			r = r.WithContext(ctx)
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// FromContext returns the identity established by RequireDevice.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Body returns the raw signed body established by RequireDevice.
func Body(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyKey).([]byte)
	return b
}
