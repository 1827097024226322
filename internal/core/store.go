package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store hands out sessions. Each chunk holds exactly one session for its
// whole run and releases it on every exit path.
type Store interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is the storage contract the chunk processor relies on.
//
// UpsertNames and UpsertUsers must be atomic per key: two sessions racing on
// the same key leave exactly one row, and an existing row is never changed.
// InsertPolicies attempts every row; refused rows are reported as *RowError
// values, combined when there are several.
type Session interface {
	UpsertNames(ctx context.Context, dim Dimension, keys []string) error
	UpsertUsers(ctx context.Context, users []User) error
	LookupIDs(ctx context.Context, dim Dimension, keys []string) (map[string]uuid.UUID, error)
	InsertPolicies(ctx context.Context, policies []PolicyInfo) (int64, error)
	Release()
}

// MessageStore persists scheduled messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg ScheduledMessage) error
	PendingMessages(ctx context.Context, after time.Time) ([]ScheduledMessage, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
}
