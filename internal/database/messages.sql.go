package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createScheduledMessage = `
INSERT INTO scheduled_messages (id, message, scheduled_at, status)
VALUES ($1, $2, $3, 'pending')
RETURNING id, message, scheduled_at, status, sent_at, created_at
`

type CreateScheduledMessageParams struct {
	ID          pgtype.UUID
	Message     string
	ScheduledAt pgtype.Timestamptz
}

func (q *Queries) CreateScheduledMessage(ctx context.Context, arg CreateScheduledMessageParams) (ScheduledMessage, error) {
	row := q.db.QueryRow(ctx, createScheduledMessage, arg.ID, arg.Message, arg.ScheduledAt)
	var i ScheduledMessage
	err := row.Scan(
		&i.ID,
		&i.Message,
		&i.ScheduledAt,
		&i.Status,
		&i.SentAt,
		&i.CreatedAt,
	)
	return i, err
}

const listPendingMessages = `
SELECT id, message, scheduled_at, status, sent_at, created_at
FROM scheduled_messages
WHERE status = 'pending' AND scheduled_at > $1
ORDER BY scheduled_at
`

func (q *Queries) ListPendingMessages(ctx context.Context, after pgtype.Timestamptz) ([]ScheduledMessage, error) {
	rows, err := q.db.Query(ctx, listPendingMessages, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ScheduledMessage
	for rows.Next() {
		var i ScheduledMessage
		if err := rows.Scan(
			&i.ID,
			&i.Message,
			&i.ScheduledAt,
			&i.Status,
			&i.SentAt,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markMessageSent = `
UPDATE scheduled_messages SET status = 'sent', sent_at = $2
WHERE id = $1 AND status = 'pending'
`

func (q *Queries) MarkMessageSent(ctx context.Context, id pgtype.UUID, sentAt pgtype.Timestamptz) (int64, error) {
	tag, err := q.db.Exec(ctx, markMessageSent, id, sentAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
