package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"brewlink/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	ErrMissingFields = errors.New("command_id and status are required")
	ErrInvalidStatus = errors.New("status not allowed")

	ErrLoadFailed     = errors.New("load pending command")
	ErrMarkSentFailed = errors.New("mark command sent")
	ErrAckFailed      = errors.New("acknowledge command")
	ErrEnqueueFailed  = errors.New("enqueue command")
)

// Store is the persistence contract of the queue.
type Store interface {
	// OldestPending returns the oldest pending command of the device, nil if none.
	OldestPending(ctx context.Context, deviceID uint) (*models.DeviceCommand, error)
	// MarkSent moves the command pending -> sent. It reports false when the command
	// was no longer pending (another poll claimed it first).
	MarkSent(ctx context.Context, commandID uint, at time.Time) (bool, error)
	// Acknowledge sets the status of the command with that public id owned by deviceID.
	// It reports whether a row matched.
	Acknowledge(ctx context.Context, deviceID uint, commandUUID, status string, at time.Time) (bool, error)
	Enqueue(ctx context.Context, cmd *models.DeviceCommand) error
}

// Command is what a polling device receives.
type Command struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

type Queue struct {
	store         Store
	claimAttempts int
	ackStatuses   map[string]struct{}

	Now func() time.Time
}

// NewQueue builds a queue. An empty ackStatuses accepts any device-reported status
// verbatim; a non-empty one is the closed set of allowed statuses (config validation
// keeps pending/sent out of it).
func NewQueue(store Store, claimAttempts int, ackStatuses []string) *Queue {
	if claimAttempts < 1 {
		claimAttempts = 1
	}
	q := &Queue{store: store, claimAttempts: claimAttempts, Now: time.Now}
	if len(ackStatuses) > 0 {
		q.ackStatuses = make(map[string]struct{}, len(ackStatuses))
		for _, s := range ackStatuses {
			q.ackStatuses[strings.TrimSpace(s)] = struct{}{}
		}
	}
	return q
}

// Poll hands out the oldest pending command of the device and marks it sent.
// It returns nil when nothing is pending. A command is only returned after the
// pending -> sent write succeeded.
func (q *Queue) Poll(ctx context.Context, deviceID uint) (*Command, error) {
	for attempt := 0; attempt < q.claimAttempts; attempt++ {
		cmd, err := q.store.OldestPending(ctx, deviceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
		if cmd == nil {
			return nil, nil
		}

		claimed, err := q.store.MarkSent(ctx, cmd.ID, q.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMarkSentFailed, err)
		}
		if !claimed {
			// a concurrent poll got it, look at the next one
			continue
		}
		return &Command{ID: cmd.UUID, Command: cmd.Command, Payload: json.RawMessage(cmd.Payload)}, nil
	}
	return nil, nil
}

// Acknowledge records the device-reported status of one of its own commands.
// Acknowledging a command of another device matches nothing and changes nothing.
func (q *Queue) Acknowledge(ctx context.Context, deviceID uint, commandID, status string) (bool, error) {
	if commandID == "" || status == "" {
		return false, ErrMissingFields
	}
	if q.ackStatuses != nil {
		if _, ok := q.ackStatuses[status]; !ok {
			return false, ErrInvalidStatus
		}
	}
	matched, err := q.store.Acknowledge(ctx, deviceID, commandID, status, q.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAckFailed, err)
	}
	return matched, nil
}

// Enqueue adds a pending command for the device. Payload must be valid JSON or empty.
func (q *Queue) Enqueue(ctx context.Context, deviceID uint, command string, payload json.RawMessage) (*models.DeviceCommand, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("command name is required")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return nil, errors.New("payload is not valid JSON")
	}
	cmd := &models.DeviceCommand{
		UUID:      uuid.NewString(),
		DeviceID:  deviceID,
		Status:    models.CommandPending,
		Command:   command,
		Payload:   datatypes.JSON(payload),
		CreatedAt: q.Now().UTC(),
	}
	if err := q.store.Enqueue(ctx, cmd); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnqueueFailed, err)
	}
	return cmd, nil
}
