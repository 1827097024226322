package core

// scheduler.go delivers deferred messages.
//
// A message is persisted as pending, then a one-shot gocron job marks it
// sent when its time comes. Jobs live only in memory, so ReplayPending must
// run on startup to re-arm every pending message that is still due in the
// future. Delivery failures are logged and leave the message pending.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
)

// ScheduleLayout is the accepted date and time format, "YYYY-MM-DD HH:MM".
const ScheduleLayout = "2006-01-02 15:04"

var (
	// ErrScheduleMissingField means message, date or time was empty.
	ErrScheduleMissingField = errors.New("missing required field: message, date and time are required")

	// ErrInvalidSchedule means date and time did not form a valid instant.
	ErrInvalidSchedule = errors.New("invalid schedule date or time")

	// ErrMessageNotFound is returned by MessageStore.MarkSent when no pending
	// message has the id.
	ErrMessageNotFound = errors.New("scheduled message not found")
)

// MessageScheduler arms and fires deferred message jobs.
type MessageScheduler struct {
	store MessageStore
	loc   *time.Location
	now   func() time.Time

	// mu serializes gocron's builder chain, which is not safe for
	// concurrent use.
	mu   sync.Mutex
	cron *gocron.Scheduler
}

// NewMessageScheduler creates a scheduler interpreting dates in loc. A nil
// loc means time.Local.
func NewMessageScheduler(store MessageStore, loc *time.Location) *MessageScheduler {
	if loc == nil {
		loc = time.Local
	}
	return &MessageScheduler{
		store: store,
		cron:  gocron.NewScheduler(loc),
		loc:   loc,
		now:   time.Now,
	}
}

// ParseSchedule combines a YYYY-MM-DD date and an HH:MM time in loc.
func ParseSchedule(date, clock string, loc *time.Location) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, ErrScheduleMissingField
	}
	t, err := time.ParseInLocation(ScheduleLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrInvalidSchedule, date, clock)
	}
	return t, nil
}

// Schedule validates and persists a message for date and clock, then arms
// its delivery job.
func (s *MessageScheduler) Schedule(ctx context.Context, message, date, clock string) (ScheduledMessage, error) {
	if strings.TrimSpace(message) == "" {
		return ScheduledMessage{}, ErrScheduleMissingField
	}
	at, err := ParseSchedule(date, clock, s.loc)
	if err != nil {
		return ScheduledMessage{}, err
	}
	return s.ScheduleAt(ctx, message, at)
}

// ScheduleAt persists a pending message for at and arms its job. A time
// already in the past is delivered right away.
func (s *MessageScheduler) ScheduleAt(ctx context.Context, message string, at time.Time) (ScheduledMessage, error) {
	msg := ScheduledMessage{
		ID:          uuid.New(),
		Message:     message,
		ScheduledAt: at,
		Status:      MessagePending,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return ScheduledMessage{}, fmt.Errorf("save scheduled message: %w", err)
	}
	if err := s.arm(msg); err != nil {
		return ScheduledMessage{}, err
	}

	slog.Info("message scheduled", "message_id", msg.ID, "scheduled_at", at)
	return msg, nil
}

// ReplayPending re-arms every pending message scheduled after now and
// returns how many were armed.
func (s *MessageScheduler) ReplayPending(ctx context.Context) (int, error) {
	msgs, err := s.store.PendingMessages(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list pending messages: %w", err)
	}

	armed := 0
	for _, msg := range msgs {
		if err := s.arm(msg); err != nil {
			slog.Error("failed to re-arm scheduled message", "message_id", msg.ID, "error", err)
			continue
		}
		armed++
	}

	slog.Info("pending messages replayed", "pending", len(msgs), "armed", armed)
	return armed, nil
}

// Start runs armed jobs in the background.
func (s *MessageScheduler) Start() {
	s.cron.StartAsync()
}

// Stop halts the scheduler. Jobs not yet fired stay pending in the store.
func (s *MessageScheduler) Stop() {
	s.cron.Stop()
}

// Pending returns the number of armed jobs.
func (s *MessageScheduler) Pending() int {
	return s.cron.Len()
}

func (s *MessageScheduler) arm(msg ScheduledMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.cron.Every(1).Day().LimitRunsTo(1).Tag(msg.ID.String())
	if msg.ScheduledAt.After(s.now()) {
		job = job.StartAt(msg.ScheduledAt.In(s.loc))
	} else {
		job = job.StartImmediately()
	}

	if _, err := job.Do(s.deliver, msg.ID); err != nil {
		return fmt.Errorf("arm message %s: %w", msg.ID, err)
	}
	return nil
}

// deliver marks the message sent. LimitRunsTo drops the job afterwards.
func (s *MessageScheduler) deliver(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.MarkSent(ctx, id, s.now()); err != nil {
		slog.Error("failed to mark message sent", "message_id", id, "error", err)
		return
	}
	slog.Info("scheduled message sent", "message_id", id)
}
