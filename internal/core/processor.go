package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/policyingest/internal/logging"
)

// RefTable maps natural keys to ids for one chunk. It is rebuilt for every
// chunk because sibling chunks may create dimension rows at any moment.
type RefTable struct {
	ids map[Dimension]map[string]uuid.UUID
}

func newRefTable() *RefTable {
	return &RefTable{ids: make(map[Dimension]map[string]uuid.UUID, len(Dimensions))}
}

// Ref returns the id for key as a nullable reference. miss is true when the
// key is non-empty but was not resolved.
func (t *RefTable) Ref(dim Dimension, key string) (ref pgtype.UUID, miss bool) {
	if key == "" {
		return pgtype.UUID{}, false
	}
	id, ok := t.ids[dim][key]
	return ToPgUUID(id, ok), !ok
}

// chunkRun tracks where a chunk is so a recovered panic is reported at the
// right stage.
type chunkRun struct {
	chunk Chunk
	stage Stage
	dim   Dimension
	log   *slog.Logger
}

// processChunk resolves the five dimensions, builds one fact per row and
// writes them in one bulk call. It returns nil on success.
func processChunk(ctx context.Context, sess Session, chunk Chunk) (cerr *ChunkError) {
	run := &chunkRun{
		chunk: chunk,
		stage: StageDimension,
		log:   logging.FromContext(ctx),
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			cerr = &ChunkError{
				Stage:     run.stage,
				Chunk:     chunk.Index,
				Dimension: run.dim,
				Message:   err.Error(),
				Err:       err,
			}
			run.log.Error("chunk worker panicked", "stage", run.stage, "panic", r)
		}
	}()

	refs := newRefTable()
	for _, dim := range Dimensions {
		run.dim = dim
		ids, derr := run.resolve(ctx, sess, dim)
		if derr != nil {
			return derr
		}
		refs.ids[dim] = ids
	}
	run.dim = ""

	run.stage = StageFact
	facts, misses := buildPolicies(chunk.Rows, refs)
	if misses > 0 {
		run.log.Debug("unresolved dimension keys left as null references", "misses", misses)
	}

	inserted, err := sess.InsertPolicies(ctx, facts)
	if err != nil {
		return run.factError(facts, err)
	}
	run.log.Debug("chunk persisted", "rows", len(chunk.Rows), "inserted", inserted)
	return nil
}

// resolve runs create-if-absent followed by a re-fetch for one dimension.
// The re-fetch picks up rows that racing chunks created, which the upsert
// itself does not report.
func (r *chunkRun) resolve(ctx context.Context, sess Session, dim Dimension) (map[string]uuid.UUID, *ChunkError) {
	keys := distinctKeys(r.chunk.Rows, dim.Column())
	if len(keys) == 0 {
		return map[string]uuid.UUID{}, nil
	}

	var err error
	if dim == DimUser {
		err = sess.UpsertUsers(ctx, usersFromRows(r.chunk.Rows, keys))
	} else {
		err = sess.UpsertNames(ctx, dim, keys)
	}
	if err != nil {
		return nil, r.dimensionError(dim, keys, fmt.Errorf("upsert %s: %w", dim, err))
	}

	ids, err := sess.LookupIDs(ctx, dim, keys)
	if err != nil {
		return nil, r.dimensionError(dim, keys, fmt.Errorf("lookup %s: %w", dim, err))
	}
	return ids, nil
}

func (r *chunkRun) dimensionError(dim Dimension, keys []string, err error) *ChunkError {
	cerr := newChunkError(StageDimension, r.chunk.Index, err)
	cerr.Dimension = dim
	if len(keys) == 1 {
		cerr.Key = keys[0]
	}
	return cerr
}

// factError reports the first refused row. Row numbers are 1-based over the
// data rows of the whole file.
func (r *chunkRun) factError(facts []PolicyInfo, err error) *ChunkError {
	cerr := newChunkError(StageFact, r.chunk.Index, err)

	var rowErr *RowError
	if errors.As(err, &rowErr) && rowErr.Index >= 0 && rowErr.Index < len(facts) {
		cerr.Row = r.chunk.Offset + rowErr.Index + 1
		cerr.Key = facts[rowErr.Index].PolicyNumber
	}
	return cerr
}

// distinctKeys returns the sorted set of non-empty values of col.
func distinctKeys(rows []Row, col string) []string {
	seen := make(map[string]struct{}, len(rows))
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		v, _ := row.Get(col)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		keys = append(keys, v)
	}
	slices.Sort(keys)
	return keys
}

// usersFromRows builds one profile per email from the first row carrying it.
// emails must be the sorted distinct set from distinctKeys.
func usersFromRows(rows []Row, emails []string) []User {
	first := make(map[string]Row, len(emails))
	for _, row := range rows {
		email, _ := row.Get(ColEmail)
		if email == "" {
			continue
		}
		if _, ok := first[email]; !ok {
			first[email] = row
		}
	}

	users := make([]User, 0, len(emails))
	for _, email := range emails {
		row := first[email]
		users = append(users, User{
			Email:     email,
			FirstName: row[ColFirstName],
			DOB:       ParseDate(row[ColDOB]),
			Address:   row[ColAddress],
			Phone:     row[ColPhone],
			State:     row[ColState],
			Zip:       row[ColZip],
			Gender:    row[ColGender],
			UserType:  row[ColUserType],
		})
	}
	return users
}

// buildPolicies builds one fact per row. Data problems never fail a row;
// misses counts non-empty keys without a resolved id.
func buildPolicies(rows []Row, refs *RefTable) (facts []PolicyInfo, misses int) {
	facts = make([]PolicyInfo, len(rows))
	for i, row := range rows {
		ref := func(dim Dimension) pgtype.UUID {
			id, miss := refs.Ref(dim, row[dim.Column()])
			if miss {
				misses++
			}
			return id
		}

		facts[i] = PolicyInfo{
			ID:                    uuid.New(),
			PolicyNumber:          row[ColPolicyNumber],
			PolicyStartDate:       ParseDate(row[ColPolicyStartDate]),
			PolicyEndDate:         ParseDate(row[ColPolicyEndDate]),
			AgentID:               ref(DimAgent),
			UserID:                ref(DimUser),
			AccountID:             ref(DimAccount),
			CategoryID:            ref(DimCategory),
			CarrierID:             ref(DimCarrier),
			PolicyMode:            row[ColPolicyMode],
			PremiumAmountWritten:  ParseAmount(row[ColPremiumAmountWritten]),
			PremiumAmount:         ParseAmount(row[ColPremiumAmount]),
			PolicyType:            row[ColPolicyType],
			CSR:                   row[ColCSR],
			HasActiveClientPolicy: ParseActive(row[ColActiveClientPolicy]),
		}
	}
	return facts, misses
}

// RowErrorFormat renders combined row failures on one line so they read
// well inside a JSON error list.
func RowErrorFormat(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	noun := "policies"
	if len(errs) == 1 {
		noun = "policy"
	}
	return fmt.Sprintf("%d %s rejected: %s", len(errs), noun, strings.Join(parts, "; "))
}
