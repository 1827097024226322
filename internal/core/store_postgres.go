package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	db "github.com/JonMunkholm/policyingest/internal/database"
	"github.com/JonMunkholm/policyingest/internal/logging"
)

var nameTables = map[Dimension]db.NameTable{
	DimAgent:    db.Agents,
	DimAccount:  db.Accounts,
	DimCategory: db.Categories,
	DimCarrier:  db.Carriers,
}

// PgStore implements Store on a pgx pool. Each session pins one pooled
// connection until Release.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Acquire(ctx context.Context) (Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &pgSession{conn: conn, q: db.New(conn)}, nil
}

type pgSession struct {
	conn *pgxpool.Conn
	q    *db.Queries
}

func (s *pgSession) Release() {
	s.conn.Release()
}

func (s *pgSession) UpsertNames(ctx context.Context, dim Dimension, keys []string) error {
	t, ok := nameTables[dim]
	if !ok {
		return fmt.Errorf("upsert names: %s is not a name dimension", dim)
	}
	_, err := s.q.UpsertNames(ctx, t, keys)
	return err
}

func (s *pgSession) UpsertUsers(ctx context.Context, users []User) error {
	rows := make([]db.User, len(users))
	for i, u := range users {
		rows[i] = db.User{
			Email:     u.Email,
			FirstName: ToPgText(u.FirstName),
			Dob:       u.DOB,
			Address:   ToPgText(u.Address),
			Phone:     ToPgText(u.Phone),
			State:     ToPgText(u.State),
			Zip:       ToPgText(u.Zip),
			Gender:    ToPgText(u.Gender),
			UserType:  ToPgText(u.UserType),
		}
	}
	_, err := s.q.UpsertUsers(ctx, rows)
	return err
}

func (s *pgSession) LookupIDs(ctx context.Context, dim Dimension, keys []string) (map[string]uuid.UUID, error) {
	var (
		found []db.KeyID
		err   error
	)
	if dim == DimUser {
		found, err = s.q.ListUserIDs(ctx, keys)
	} else {
		t, ok := nameTables[dim]
		if !ok {
			return nil, fmt.Errorf("lookup: unknown dimension %q", dim)
		}
		found, err = s.q.ListNameIDs(ctx, t, keys)
	}
	if err != nil {
		return nil, err
	}

	ids := make(map[string]uuid.UUID, len(found))
	for _, k := range found {
		ids[k.Key] = uuid.UUID(k.ID.Bytes)
	}
	return ids, nil
}

// InsertPolicies loads the batch with COPY. If COPY fails, every row is
// retried on its own behind a savepoint so one bad row does not take the
// rest of the chunk with it.
func (s *pgSession) InsertPolicies(ctx context.Context, policies []PolicyInfo) (int64, error) {
	if len(policies) == 0 {
		return 0, nil
	}

	rows := make([]db.Policy, len(policies))
	for i, p := range policies {
		rows[i] = toDBPolicy(p)
	}

	n, err := s.q.CopyPolicies(ctx, rows)
	if err == nil {
		return n, nil
	}
	if ctx.Err() != nil || isConnectionError(err) {
		return 0, err
	}

	logging.FromContext(ctx).Warn("policy copy failed, inserting row by row",
		"rows", len(rows),
		"error", err,
	)
	return s.insertPoliciesScalar(ctx, rows)
}

func (s *pgSession) insertPoliciesScalar(ctx context.Context, rows []db.Policy) (int64, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q := s.q.WithTx(tx)

	var (
		inserted int64
		failed   *multierror.Error
	)
	for i, row := range rows {
		if _, err := tx.Exec(ctx, "SAVEPOINT policy_row"); err != nil {
			return 0, fmt.Errorf("create savepoint: %w", err)
		}

		if err := q.InsertPolicy(ctx, row); err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT policy_row"); rbErr != nil {
				return 0, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			failed = multierror.Append(failed, &RowError{Index: i, Err: err})
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT policy_row"); err != nil {
			return 0, fmt.Errorf("release savepoint: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	if failed != nil {
		failed.ErrorFormat = RowErrorFormat
	}
	return inserted, failed.ErrorOrNil()
}

func toDBPolicy(p PolicyInfo) db.Policy {
	return db.Policy{
		ID:                    pgtype.UUID{Bytes: p.ID, Valid: true},
		PolicyNumber:          ToPgText(p.PolicyNumber),
		PolicyStartDate:       p.PolicyStartDate,
		PolicyEndDate:         p.PolicyEndDate,
		AgentID:               p.AgentID,
		UserID:                p.UserID,
		AccountID:             p.AccountID,
		CategoryID:            p.CategoryID,
		CarrierID:             p.CarrierID,
		PolicyMode:            ToPgText(p.PolicyMode),
		PremiumAmountWritten:  p.PremiumAmountWritten,
		PremiumAmount:         p.PremiumAmount,
		PolicyType:            ToPgText(p.PolicyType),
		Csr:                   ToPgText(p.CSR),
		HasActiveClientPolicy: p.HasActiveClientPolicy,
	}
}

// PgMessageStore implements MessageStore on a pgx pool.
type PgMessageStore struct {
	q *db.Queries
}

func NewPgMessageStore(pool *pgxpool.Pool) *PgMessageStore {
	return &PgMessageStore{q: db.New(pool)}
}

func (s *PgMessageStore) CreateMessage(ctx context.Context, msg ScheduledMessage) error {
	_, err := s.q.CreateScheduledMessage(ctx, db.CreateScheduledMessageParams{
		ID:          pgtype.UUID{Bytes: msg.ID, Valid: true},
		Message:     msg.Message,
		ScheduledAt: pgtype.Timestamptz{Time: msg.ScheduledAt, Valid: true},
	})
	return err
}

func (s *PgMessageStore) PendingMessages(ctx context.Context, after time.Time) ([]ScheduledMessage, error) {
	rows, err := s.q.ListPendingMessages(ctx, pgtype.Timestamptz{Time: after, Valid: true})
	if err != nil {
		return nil, err
	}
	msgs := make([]ScheduledMessage, len(rows))
	for i, r := range rows {
		msgs[i] = ScheduledMessage{
			ID:          uuid.UUID(r.ID.Bytes),
			Message:     r.Message,
			ScheduledAt: r.ScheduledAt.Time,
			Status:      MessageStatus(r.Status),
		}
	}
	return msgs, nil
}

func (s *PgMessageStore) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	n, err := s.q.MarkMessageSent(ctx,
		pgtype.UUID{Bytes: id, Valid: true},
		pgtype.Timestamptz{Time: sentAt, Valid: true},
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
	}
	return nil
}

// PgRunStore implements RunStore on a pgx pool.
type PgRunStore struct {
	q *db.Queries
}

func NewPgRunStore(pool *pgxpool.Pool) *PgRunStore {
	return &PgRunStore{q: db.New(pool)}
}

func (s *PgRunStore) RecordRun(ctx context.Context, run IngestRun) error {
	return s.q.InsertIngestRun(ctx, db.IngestRun{
		ID:           pgtype.UUID{Bytes: run.ID, Valid: true},
		FileName:     ToPgText(run.FileName),
		Status:       string(run.Status),
		RowsTotal:    int32(run.Rows),
		Chunks:       int32(run.Chunks),
		FailedChunks: int32(run.FailedChunks),
		Error:        ToPgText(run.Error),
		ClientIp:     ToPgText(run.ClientIP),
		UserAgent:    ToPgText(run.UserAgent),
		StartedAt:    pgtype.Timestamptz{Time: run.StartedAt, Valid: true},
		DurationMs:   run.DurationMs,
	})
}

func (s *PgRunStore) RecentRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	rows, err := s.q.ListIngestRuns(ctx, int32(limit))
	if err != nil {
		return nil, err
	}
	runs := make([]IngestRun, len(rows))
	for i, r := range rows {
		runs[i] = IngestRun{
			ID:           uuid.UUID(r.ID.Bytes),
			FileName:     r.FileName.String,
			Status:       RunStatus(r.Status),
			Rows:         int(r.RowsTotal),
			Chunks:       int(r.Chunks),
			FailedChunks: int(r.FailedChunks),
			Error:        r.Error.String,
			ClientIP:     r.ClientIp.String,
			UserAgent:    r.UserAgent.String,
			StartedAt:    r.StartedAt.Time,
			DurationMs:   r.DurationMs,
		}
	}
	return runs, nil
}

// ClassifyStoreError buckets a store failure for metrics labels.
func ClassifyStoreError(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
			return "constraint"
		case pgerrcode.IsDataException(pgErr.Code):
			return "data"
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return "connection"
		case pgerrcode.IsTransactionRollback(pgErr.Code):
			return "rollback"
		case pgerrcode.IsInsufficientResources(pgErr.Code):
			return "resources"
		default:
			return "other"
		}
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case pgconn.Timeout(err):
		return "timeout"
	case isConnectionError(err):
		return "connection"
	}
	return "unknown"
}

// isConnectionError reports failures where retrying row by row on the same
// connection cannot succeed.
func isConnectionError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) || pgerrcode.IsOperatorIntervention(pgErr.Code)
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
