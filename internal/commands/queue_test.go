package commands

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"brewlink/internal/memstore"
	"brewlink/internal/models"
)

var t0 = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func newQueue(t *testing.T) (*Queue, *memstore.Store, uint) {
	t.Helper()
	st := memstore.New()
	dev := st.AddDevice("dev-1", "secret", nil)
	q := NewQueue(st, 3, nil)
	now := t0
	q.Now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return q, st, dev.ID
}

func TestPoll_OldestFirstAndOnlyOnce(t *testing.T) {
	q, _, dev := newQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, dev, "reboot", json.RawMessage(`{"delay":5}`))
	if err != nil {
		t.Fatal(err)
	}
	second, err := q.Enqueue(ctx, dev, "update", nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := q.Poll(ctx, dev)
	if err != nil || got == nil {
		t.Fatalf("poll 1: %v, %v", got, err)
	}
	if got.ID != first.UUID || got.Command != "reboot" || string(got.Payload) != `{"delay":5}` {
		t.Fatalf("poll 1 = %+v", got)
	}

	got, err = q.Poll(ctx, dev)
	if err != nil || got == nil || got.ID != second.UUID {
		t.Fatalf("poll 2 = %+v, %v", got, err)
	}

	got, err = q.Poll(ctx, dev)
	if err != nil || got != nil {
		t.Fatalf("poll 3 = %+v, %v; want nothing", got, err)
	}
}

func TestPoll_MarksSent(t *testing.T) {
	q, st, dev := newQueue(t)
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, dev, "reboot", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Poll(ctx, dev); err != nil {
		t.Fatal(err)
	}
	cmds := st.Commands(dev)
	if len(cmds) != 1 || cmds[0].Status != models.CommandSent || cmds[0].SentAt == nil {
		t.Fatalf("commands = %+v", cmds)
	}
}

func TestPoll_OtherDeviceSeesNothing(t *testing.T) {
	q, st, dev := newQueue(t)
	other := st.AddDevice("dev-2", "secret", nil)
	if _, err := q.Enqueue(context.Background(), dev, "reboot", nil); err != nil {
		t.Fatal(err)
	}
	got, err := q.Poll(context.Background(), other.ID)
	if err != nil || got != nil {
		t.Fatalf("poll = %+v, %v", got, err)
	}
}

func TestPoll_MarkSentFailureReturnsNoCommand(t *testing.T) {
	q, st, dev := newQueue(t)
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, dev, "reboot", nil); err != nil {
		t.Fatal(err)
	}
	st.Fail("MarkSent", errors.New("disk full"))

	got, err := q.Poll(ctx, dev)
	if !errors.Is(err, ErrMarkSentFailed) || got != nil {
		t.Fatalf("poll = %+v, %v; want ErrMarkSentFailed", got, err)
	}
	if c := st.Commands(dev)[0]; c.Status != models.CommandPending {
		t.Fatalf("status = %q, want still pending", c.Status)
	}
}

func TestPoll_LoadFailure(t *testing.T) {
	q, st, dev := newQueue(t)
	st.Fail("OldestPending", errors.New("conn reset"))
	if _, err := q.Poll(context.Background(), dev); !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("err = %v, want ErrLoadFailed", err)
	}
}

// racingStore loses the first claims to a simulated concurrent poll.
type racingStore struct {
	cmds  []*models.DeviceCommand
	steal int
}

func (s *racingStore) OldestPending(context.Context, uint) (*models.DeviceCommand, error) {
	for _, c := range s.cmds {
		if c.Status == models.CommandPending {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *racingStore) MarkSent(_ context.Context, id uint, _ time.Time) (bool, error) {
	for _, c := range s.cmds {
		if c.ID != id || c.Status != models.CommandPending {
			continue
		}
		c.Status = models.CommandSent
		if s.steal > 0 {
			s.steal--
			return false, nil
		}
		return true, nil
	}
	return false, nil
}

func (s *racingStore) Acknowledge(context.Context, uint, string, string, time.Time) (bool, error) {
	return false, nil
}

func (s *racingStore) Enqueue(context.Context, *models.DeviceCommand) error { return nil }

func TestPoll_LostClaimMovesToNext(t *testing.T) {
	st := &racingStore{
		cmds: []*models.DeviceCommand{
			{ID: 1, UUID: "a", Status: models.CommandPending},
			{ID: 2, UUID: "b", Status: models.CommandPending},
		},
		steal: 1,
	}
	q := NewQueue(st, 3, nil)
	got, err := q.Poll(context.Background(), 1)
	if err != nil || got == nil || got.ID != "b" {
		t.Fatalf("poll = %+v, %v; want command b", got, err)
	}
}

func TestPoll_GivesUpAfterClaimAttempts(t *testing.T) {
	st := &racingStore{
		cmds: []*models.DeviceCommand{
			{ID: 1, UUID: "a", Status: models.CommandPending},
			{ID: 2, UUID: "b", Status: models.CommandPending},
			{ID: 3, UUID: "c", Status: models.CommandPending},
		},
		steal: 2,
	}
	q := NewQueue(st, 2, nil)
	got, err := q.Poll(context.Background(), 1)
	if err != nil || got != nil {
		t.Fatalf("poll = %+v, %v; want nothing after 2 lost claims", got, err)
	}
}

func TestAcknowledge(t *testing.T) {
	q, st, dev := newQueue(t)
	other := st.AddDevice("dev-2", "secret", nil)
	ctx := context.Background()
	cmd, err := q.Enqueue(ctx, dev, "reboot", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Poll(ctx, dev); err != nil {
		t.Fatal(err)
	}

	matched, err := q.Acknowledge(ctx, other.ID, cmd.UUID, "done")
	if err != nil || matched {
		t.Fatalf("cross-device ack = %v, %v; want no match", matched, err)
	}
	if c := st.Commands(dev)[0]; c.Status != models.CommandSent || c.AckAt != nil {
		t.Fatalf("cross-device ack changed the command: %+v", c)
	}

	matched, err = q.Acknowledge(ctx, dev, cmd.UUID, "done")
	if err != nil || !matched {
		t.Fatalf("ack = %v, %v", matched, err)
	}
	if c := st.Commands(dev)[0]; c.Status != "done" || c.AckAt == nil {
		t.Fatalf("after ack: %+v", c)
	}
}

func TestAcknowledge_Validation(t *testing.T) {
	q, _, dev := newQueue(t)
	closed := NewQueue(memstore.New(), 1, []string{"done", "failed"})

	tests := []struct {
		name    string
		q       *Queue
		id      string
		status  string
		wantErr error
	}{
		{"missing id", q, "", "done", ErrMissingFields},
		{"missing status", q, "x", "", ErrMissingFields},
		{"pending verbatim in open set", q, "x", "pending", nil},
		{"sent verbatim in open set", q, "x", "sent", nil},
		{"pending outside closed set", closed, "x", "pending", ErrInvalidStatus},
		{"outside closed set", closed, "x", "weird", ErrInvalidStatus},
		{"inside closed set", closed, "x", "failed", nil},
		{"open set", q, "x", "anything", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.q.Acknowledge(context.Background(), dev, tt.id, tt.status)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnqueue_Validation(t *testing.T) {
	q, _, dev := newQueue(t)
	if _, err := q.Enqueue(context.Background(), dev, "  ", nil); err == nil {
		t.Error("empty command name accepted")
	}
	if _, err := q.Enqueue(context.Background(), dev, "x", json.RawMessage(`{`)); err == nil {
		t.Error("invalid payload accepted")
	}
	if _, err := q.Enqueue(context.Background(), 999, "x", nil); !errors.Is(err, ErrEnqueueFailed) {
		t.Errorf("unknown device: err = %v", err)
	}
}

func TestAcknowledge_OpenSetStoresStatusVerbatim(t *testing.T) {
	q, st, dev := newQueue(t)
	ctx := context.Background()
	cmd, err := q.Enqueue(ctx, dev, "reboot", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Poll(ctx, dev); err != nil {
		t.Fatal(err)
	}
	matched, err := q.Acknowledge(ctx, dev, cmd.UUID, "Sent ")
	if err != nil || !matched {
		t.Fatalf("ack = %v, %v", matched, err)
	}
	if c := st.Commands(dev)[0]; c.Status != "Sent " {
		t.Fatalf("status = %q, want the reported value unchanged", c.Status)
	}
}
