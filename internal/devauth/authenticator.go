package devauth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxSkew bounds |now - x-timestamp| in both directions.
const DefaultMaxSkew = 600 * time.Second

const (
	HeaderDeviceID  = "X-Device-Id"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

var (
	ErrMissingCredentials  = errors.New("missing auth headers")
	ErrInvalidTimestamp    = errors.New("invalid timestamp")
	ErrTimestampOutOfRange = errors.New("timestamp out of range")
	ErrUnknownDevice       = errors.New("unknown device")
	ErrInvalidSignature    = errors.New("invalid signature")

	// ErrLookupFailed is a store failure, not a credential problem.
	ErrLookupFailed = errors.New("device lookup failed")
)

// IsAuthFailure reports whether err should be answered with 401.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrTimestampOutOfRange) ||
		errors.Is(err, ErrUnknownDevice) ||
		errors.Is(err, ErrInvalidSignature)
}

type Headers struct {
	DeviceID  string
	Timestamp string
	Signature string
}

// Record is what the lookup collaborator knows about a device key.
type Record struct {
	ID          uint
	Key         string
	Credentials Credentials
	MachineID   *uint
}

// Identity is the authenticated caller handed to endpoint handlers.
type Identity struct {
	DeviceKey string
	RecordID  uint
	MachineID *uint
}

type DeviceLookup interface {
	// LookupDevice returns ok=false when no device has that key.
	LookupDevice(ctx context.Context, deviceKey string) (Record, bool, error)
}

type Authenticator struct {
	lookup  DeviceLookup
	maxSkew time.Duration

	Now func() time.Time
}

func NewAuthenticator(lookup DeviceLookup, maxSkew time.Duration) *Authenticator {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &Authenticator{lookup: lookup, maxSkew: maxSkew, Now: time.Now}
}

// Authenticate verifies a signed device request. Order of checks: headers present,
// timestamp numeric, timestamp within the skew window, device known, signature valid
// under the current or the next secret.
func (a *Authenticator) Authenticate(ctx context.Context, h Headers, rawBody []byte) (Identity, error) {
	if h.DeviceID == "" || h.Timestamp == "" || h.Signature == "" {
		return Identity{}, ErrMissingCredentials
	}

	ts, err := parseTimestamp(h.Timestamp)
	if err != nil {
		return Identity{}, err
	}
	now := float64(a.Now().Unix())
	if math.Abs(now-ts) > a.maxSkew.Seconds() {
		return Identity{}, ErrTimestampOutOfRange
	}

	rec, ok, err := a.lookup.LookupDevice(ctx, h.DeviceID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if !ok {
		return Identity{}, ErrUnknownDevice
	}

	if !verify(rec.Credentials, h.Signature, SigningString(h.Timestamp, rawBody)) {
		return Identity{}, ErrInvalidSignature
	}
	return Identity{DeviceKey: h.DeviceID, RecordID: rec.ID, MachineID: rec.MachineID}, nil
}

// verify checks every active secret, without returning early, so the timing does not
// tell which secret matched.
func verify(c Credentials, signature, message string) bool {
	valid := false
	for _, secret := range c.Active() {
		if secret == "" {
			continue
		}
		if ConstantTimeEqual(signature, HMACHex(secret, message)) {
			valid = true
		}
	}
	return valid
}

func parseTimestamp(s string) (float64, error) {
	ts, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return 0, ErrInvalidTimestamp
	}
	return ts, nil
}
