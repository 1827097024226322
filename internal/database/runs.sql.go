package database

import (
	"context"
)

const insertIngestRun = `
INSERT INTO ingest_runs (
    id, file_name, status, rows_total, chunks, failed_chunks,
    error, client_ip, user_agent, started_at, duration_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

func (q *Queries) InsertIngestRun(ctx context.Context, arg IngestRun) error {
	_, err := q.db.Exec(ctx, insertIngestRun,
		arg.ID,
		arg.FileName,
		arg.Status,
		arg.RowsTotal,
		arg.Chunks,
		arg.FailedChunks,
		arg.Error,
		arg.ClientIp,
		arg.UserAgent,
		arg.StartedAt,
		arg.DurationMs,
	)
	return err
}

const listIngestRuns = `
SELECT id, file_name, status, rows_total, chunks, failed_chunks,
       error, client_ip, user_agent, started_at, duration_ms
FROM ingest_runs
ORDER BY started_at DESC
LIMIT $1
`

func (q *Queries) ListIngestRuns(ctx context.Context, limit int32) ([]IngestRun, error) {
	rows, err := q.db.Query(ctx, listIngestRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []IngestRun
	for rows.Next() {
		var i IngestRun
		if err := rows.Scan(
			&i.ID,
			&i.FileName,
			&i.Status,
			&i.RowsTotal,
			&i.Chunks,
			&i.FailedChunks,
			&i.Error,
			&i.ClientIp,
			&i.UserAgent,
			&i.StartedAt,
			&i.DurationMs,
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
