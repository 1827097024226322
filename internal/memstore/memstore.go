// Package memstore is an in-memory core.Store, core.MessageStore and
// core.RunStore.
//
// It follows the same contract as the Postgres store: dimension upserts are
// insert-if-absent per key, lookups return only keys that exist, and policy
// rows with an unknown reference are refused the way a foreign key would
// refuse them. Failure hooks let tests inject errors at any step.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/policyingest/internal/core"
)

// Store keeps every table in maps guarded by one mutex.
//
// Hooks must be set before the store is shared between goroutines.
type Store struct {
	// FailAcquire, if set, is called by Acquire; a non-nil error is returned.
	FailAcquire func() error
	// FailUpsert, if set, can fail an upsert for dim before anything is written.
	FailUpsert func(dim core.Dimension, keys []string) error
	// FailLookup, if set, can fail a lookup for dim.
	FailLookup func(dim core.Dimension, keys []string) error
	// RejectPolicy, if set, can refuse a single policy row.
	RejectPolicy func(p core.PolicyInfo) error

	mu       sync.Mutex
	names    map[core.Dimension]map[string]uuid.UUID
	users    map[string]userRecord
	policies []core.PolicyInfo
	messages map[uuid.UUID]core.ScheduledMessage
	runs     []core.IngestRun

	open     int
	maxOpen  int
	acquired int
}

type userRecord struct {
	id   uuid.UUID
	user core.User
}

func New() *Store {
	return &Store{
		names:    make(map[core.Dimension]map[string]uuid.UUID),
		users:    make(map[string]userRecord),
		messages: make(map[uuid.UUID]core.ScheduledMessage),
	}
}

func (s *Store) Acquire(ctx context.Context) (core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailAcquire != nil {
		if err := s.FailAcquire(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.open++
	s.acquired++
	s.maxOpen = max(s.maxOpen, s.open)
	return &session{store: s}, nil
}

type session struct {
	store    *Store
	released sync.Once
}

func (ss *session) Release() {
	ss.released.Do(func() {
		ss.store.mu.Lock()
		ss.store.open--
		ss.store.mu.Unlock()
	})
}

func (ss *session) UpsertNames(ctx context.Context, dim core.Dimension, keys []string) error {
	if dim == core.DimUser || dim.Column() == "" {
		return fmt.Errorf("upsert names: %s is not a name dimension", dim)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s := ss.store
	if s.FailUpsert != nil {
		if err := s.FailUpsert(dim, keys); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.names[dim]
	if !ok {
		table = make(map[string]uuid.UUID)
		s.names[dim] = table
	}
	for _, k := range keys {
		if _, exists := table[k]; !exists {
			table[k] = uuid.New()
		}
	}
	return nil
}

func (ss *session) UpsertUsers(ctx context.Context, users []core.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := ss.store
	if s.FailUpsert != nil {
		keys := make([]string, len(users))
		for i, u := range users {
			keys[i] = u.Email
		}
		if err := s.FailUpsert(core.DimUser, keys); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		if _, exists := s.users[u.Email]; !exists {
			s.users[u.Email] = userRecord{id: uuid.New(), user: u}
		}
	}
	return nil
}

func (ss *session) LookupIDs(ctx context.Context, dim core.Dimension, keys []string) (map[string]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := ss.store
	if s.FailLookup != nil {
		if err := s.FailLookup(dim, keys); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]uuid.UUID, len(keys))
	for _, k := range keys {
		if id, ok := s.idLocked(dim, k); ok {
			ids[k] = id
		}
	}
	return ids, nil
}

// InsertPolicies attempts every row and reports refused rows as
// *core.RowError values.
func (ss *session) InsertPolicies(ctx context.Context, policies []core.PolicyInfo) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := ss.store

	var (
		inserted int64
		failed   *multierror.Error
	)
	for i, p := range policies {
		if err := ss.checkPolicy(p); err != nil {
			failed = multierror.Append(failed, &core.RowError{Index: i, Err: err})
			continue
		}
		s.mu.Lock()
		s.policies = append(s.policies, p)
		s.mu.Unlock()
		inserted++
	}

	if failed != nil {
		failed.ErrorFormat = core.RowErrorFormat
	}
	return inserted, failed.ErrorOrNil()
}

func (ss *session) checkPolicy(p core.PolicyInfo) error {
	s := ss.store
	if s.RejectPolicy != nil {
		if err := s.RejectPolicy(p); err != nil {
			return err
		}
	}

	refs := []struct {
		dim core.Dimension
		ref pgtype.UUID
	}{
		{core.DimAgent, p.AgentID},
		{core.DimUser, p.UserID},
		{core.DimAccount, p.AccountID},
		{core.DimCategory, p.CategoryID},
		{core.DimCarrier, p.CarrierID},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range refs {
		if r.ref.Valid && !s.hasIDLocked(r.dim, r.ref.Bytes) {
			return fmt.Errorf("violates foreign key: unknown %s %s", r.dim, core.PgUUIDToString(r.ref))
		}
	}
	return nil
}

func (s *Store) idLocked(dim core.Dimension, key string) (uuid.UUID, bool) {
	if dim == core.DimUser {
		rec, ok := s.users[key]
		return rec.id, ok
	}
	id, ok := s.names[dim][key]
	return id, ok
}

func (s *Store) hasIDLocked(dim core.Dimension, id uuid.UUID) bool {
	if dim == core.DimUser {
		for _, rec := range s.users {
			if rec.id == id {
				return true
			}
		}
		return false
	}
	for _, v := range s.names[dim] {
		if v == id {
			return true
		}
	}
	return false
}

// ID returns the id stored for key in dim.
func (s *Store) ID(dim core.Dimension, key string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idLocked(dim, key)
}

// Keys returns the sorted natural keys stored for dim.
func (s *Store) Keys(dim core.Dimension) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	if dim == core.DimUser {
		for k := range s.users {
			keys = append(keys, k)
		}
	} else {
		for k := range s.names[dim] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// User returns the stored profile for email.
func (s *Store) User(email string) (core.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[email]
	return rec.user, ok
}

// Policies returns a copy of every stored policy in insertion order.
func (s *Store) Policies() []core.PolicyInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PolicyInfo(nil), s.policies...)
}

// OpenSessions returns the number of sessions not yet released.
func (s *Store) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// MaxOpenSessions returns the highest number of sessions held at once.
func (s *Store) MaxOpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOpen
}

// Acquired returns how many sessions were ever handed out.
func (s *Store) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

func (s *Store) CreateMessage(ctx context.Context, msg core.ScheduledMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return fmt.Errorf("duplicate key: message %s", msg.ID)
	}
	s.messages[msg.ID] = msg
	return nil
}

func (s *Store) PendingMessages(ctx context.Context, after time.Time) ([]core.ScheduledMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.ScheduledMessage
	for _, m := range s.messages {
		if m.Status == core.MessagePending && m.ScheduledAt.After(after) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.Status != core.MessagePending {
		return fmt.Errorf("message %s: %w", id, core.ErrMessageNotFound)
	}
	m.Status = core.MessageSent
	s.messages[id] = m
	return nil
}

// Message returns the stored message with id.
func (s *Store) Message(id uuid.UUID) (core.ScheduledMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	return m, ok
}

// RecordRun appends run to the history.
func (s *Store) RecordRun(ctx context.Context, run core.IngestRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]core.IngestRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.IngestRun, 0, min(limit, len(s.runs)))
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}
