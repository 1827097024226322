package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// UpsertNames creates one row per key that does not exist yet. Existing rows
// are left untouched; ON CONFLICT makes the check and the insert one atomic
// step per key, so racing callers never produce duplicates.
func (q *Queries) UpsertNames(ctx context.Context, t NameTable, keys []string) (int64, error) {
	sql := fmt.Sprintf(
		`INSERT INTO %s (%s) SELECT unnest($1::text[]) ON CONFLICT (%s) DO NOTHING`,
		ident(t.Table), ident(t.Column), ident(t.Column),
	)
	tag, err := q.db.Exec(ctx, sql, keys)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListNameIDs returns the id of every row whose key is in keys.
func (q *Queries) ListNameIDs(ctx context.Context, t NameTable, keys []string) ([]KeyID, error) {
	sql := fmt.Sprintf(
		`SELECT id, %s FROM %s WHERE %s = ANY($1::text[])`,
		ident(t.Column), ident(t.Table), ident(t.Column),
	)
	return q.scanKeyIDs(ctx, sql, keys)
}

const upsertUsers = `
INSERT INTO users (email, first_name, dob, address, phone, state, zip, gender, user_type)
SELECT * FROM unnest(
    $1::text[], $2::text[], $3::date[], $4::text[], $5::text[],
    $6::text[], $7::text[], $8::text[], $9::text[]
)
ON CONFLICT (email) DO NOTHING
`

// UpsertUsers creates users whose email is not stored yet. Profile columns
// are written on creation only.
func (q *Queries) UpsertUsers(ctx context.Context, users []User) (int64, error) {
	n := len(users)
	var (
		emails    = make([]string, n)
		firstName = make([]pgtype.Text, n)
		dob       = make([]pgtype.Date, n)
		address   = make([]pgtype.Text, n)
		phone     = make([]pgtype.Text, n)
		state     = make([]pgtype.Text, n)
		zip       = make([]pgtype.Text, n)
		gender    = make([]pgtype.Text, n)
		userType  = make([]pgtype.Text, n)
	)
	for i, u := range users {
		emails[i] = u.Email
		firstName[i] = u.FirstName
		dob[i] = u.Dob
		address[i] = u.Address
		phone[i] = u.Phone
		state[i] = u.State
		zip[i] = u.Zip
		gender[i] = u.Gender
		userType[i] = u.UserType
	}

	tag, err := q.db.Exec(ctx, upsertUsers,
		emails, firstName, dob, address, phone, state, zip, gender, userType,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listUserIDs = `SELECT id, email FROM users WHERE email = ANY($1::text[])`

func (q *Queries) ListUserIDs(ctx context.Context, emails []string) ([]KeyID, error) {
	return q.scanKeyIDs(ctx, listUserIDs, emails)
}

func (q *Queries) scanKeyIDs(ctx context.Context, sql string, keys []string) ([]KeyID, error) {
	rows, err := q.db.Query(ctx, sql, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]KeyID, 0, len(keys))
	for rows.Next() {
		var i KeyID
		if err := rows.Scan(&i.ID, &i.Key); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
