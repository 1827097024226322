package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

var policyColumns = []string{
	"id",
	"policy_number",
	"policy_start_date",
	"policy_end_date",
	"agent_id",
	"user_id",
	"account_id",
	"category_id",
	"carrier_id",
	"policy_mode",
	"premium_amount_written",
	"premium_amount",
	"policy_type",
	"csr",
	"has_active_client_policy",
}

func policyValues(p Policy) []interface{} {
	return []interface{}{
		p.ID,
		p.PolicyNumber,
		p.PolicyStartDate,
		p.PolicyEndDate,
		p.AgentID,
		p.UserID,
		p.AccountID,
		p.CategoryID,
		p.CarrierID,
		p.PolicyMode,
		p.PremiumAmountWritten,
		p.PremiumAmount,
		p.PolicyType,
		p.Csr,
		p.HasActiveClientPolicy,
	}
}

// CopyPolicies bulk loads policies with the COPY protocol. COPY is all or
// nothing: one bad row fails the whole call.
func (q *Queries) CopyPolicies(ctx context.Context, policies []Policy) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"policies"},
		policyColumns,
		pgx.CopyFromSlice(len(policies), func(i int) ([]interface{}, error) {
			return policyValues(policies[i]), nil
		}),
	)
}

const insertPolicy = `
INSERT INTO policies (
    id, policy_number, policy_start_date, policy_end_date,
    agent_id, user_id, account_id, category_id, carrier_id,
    policy_mode, premium_amount_written, premium_amount,
    policy_type, csr, has_active_client_policy
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`

func (q *Queries) InsertPolicy(ctx context.Context, p Policy) error {
	_, err := q.db.Exec(ctx, insertPolicy, policyValues(p)...)
	return err
}

const countPolicies = `SELECT count(*) FROM policies`

func (q *Queries) CountPolicies(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countPolicies).Scan(&n)
	return n, err
}
