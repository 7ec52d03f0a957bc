package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"brewlink/internal/models"
	"brewlink/internal/payload"
)

const DefaultIntervalS int64 = 30

// BucketLayout is how bucket starts are reported back to devices.
const BucketLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	ErrEmptyBody      = errors.New("empty body")
	ErrInvalidPayload = errors.New("invalid JSON payload")
	ErrWriteCounters  = errors.New("write counters")
	ErrWriteStatus    = errors.New("write status")
)

type Store interface {
	// UpsertCounters replaces the counters of (DeviceID, TSBucket) or inserts them.
	UpsertCounters(ctx context.Context, b *models.DeviceCounterBucket) error
	// UpsertStatus overwrites the single status row of the device.
	UpsertStatus(ctx context.Context, s *models.DeviceStatus) error
}

// Counts are the per-category dispense counts of one report.
type Counts struct {
	Idle       int64
	Coffee     int64
	Cappuccino int64
	Powders    int64
	Unknown    int64
}

// Report is a decoded telemetry body.
type Report struct {
	IntervalS int64
	Counts    Counts
	FWVersion *string
}

// ParseReport decodes a telemetry body. Missing or junk fields fall back to defaults;
// only an empty body or something that is not a JSON object is an error.
func ParseReport(body []byte, defaultInterval int64) (Report, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Report{}, ErrEmptyBody
	}
	obj, err := payload.Parse(body)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if defaultInterval <= 0 {
		defaultInterval = DefaultIntervalS
	}
	rep := Report{IntervalS: obj.Int("interval_s", defaultInterval)}
	if rep.IntervalS <= 0 {
		rep.IntervalS = defaultInterval
	}
	rep.Counts = CountsFrom(obj.Object("counts"))
	if fw, ok := obj.String("fw_version"); ok {
		rep.FWVersion = &fw
	}
	return rep, nil
}

// CountsFrom reads the category counts out of a counts object.
func CountsFrom(c payload.Object) Counts {
	return Counts{
		Idle:       c.Int("idle", 0),
		Coffee:     c.Int("coffee", 0),
		Cappuccino: c.Int("cappuccino", 0),
		Powders:    c.Int("powders", 0),
		Unknown:    c.Int("unknown", 0),
	}
}

// BucketStart floors t to a multiple of interval seconds since the epoch.
func BucketStart(t time.Time, intervalS int64) time.Time {
	if intervalS <= 0 {
		intervalS = DefaultIntervalS
	}
	sec := t.Unix()
	start := sec - sec%intervalS
	if sec < 0 && sec%intervalS != 0 {
		start -= intervalS
	}
	return time.Unix(start, 0).UTC()
}

func FormatBucket(t time.Time) string {
	return t.UTC().Format(BucketLayout)
}

type Recorder struct {
	store           Store
	defaultInterval int64

	Now func() time.Time
}

func NewRecorder(store Store, defaultInterval int64) *Recorder {
	if defaultInterval <= 0 {
		defaultInterval = DefaultIntervalS
	}
	return &Recorder{store: store, defaultInterval: defaultInterval, Now: time.Now}
}

// Record stores one report of the device: counters into the bucket containing the
// receipt time, then the device status. It returns the bucket start.
func (rc *Recorder) Record(ctx context.Context, deviceID uint, body []byte) (time.Time, error) {
	rep, err := ParseReport(body, rc.defaultInterval)
	if err != nil {
		return time.Time{}, err
	}
	now := rc.Now().UTC()
	bucket := BucketStart(now, rep.IntervalS)

	err = rc.store.UpsertCounters(ctx, &models.DeviceCounterBucket{
		DeviceID:        deviceID,
		TSBucket:        bucket,
		IntervalS:       rep.IntervalS,
		IdleCount:       rep.Counts.Idle,
		CoffeeCount:     rep.Counts.Coffee,
		CappuccinoCount: rep.Counts.Cappuccino,
		PowdersCount:    rep.Counts.Powders,
		UnknownCount:    rep.Counts.Unknown,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrWriteCounters, err)
	}

	err = rc.store.UpsertStatus(ctx, &models.DeviceStatus{
		DeviceID:   deviceID,
		LastSeenAt: now,
		FWVersion:  rep.FWVersion,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrWriteStatus, err)
	}
	return bucket, nil
}
