package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// NameTable is a dimension table keyed by a single unique text column.
type NameTable struct {
	Table  string
	Column string
}

var (
	Agents     = NameTable{Table: "agents", Column: "agent_name"}
	Accounts   = NameTable{Table: "accounts", Column: "account_name"}
	Categories = NameTable{Table: "policy_categories", Column: "category_name"}
	Carriers   = NameTable{Table: "policy_carriers", Column: "company_name"}
)

// KeyID pairs a natural key with its generated identifier.
type KeyID struct {
	ID  pgtype.UUID
	Key string
}

type User struct {
	Email     string
	FirstName pgtype.Text
	Dob       pgtype.Date
	Address   pgtype.Text
	Phone     pgtype.Text
	State     pgtype.Text
	Zip       pgtype.Text
	Gender    pgtype.Text
	UserType  pgtype.Text
}

type Policy struct {
	ID                    pgtype.UUID
	PolicyNumber          pgtype.Text
	PolicyStartDate       pgtype.Date
	PolicyEndDate         pgtype.Date
	AgentID               pgtype.UUID
	UserID                pgtype.UUID
	AccountID             pgtype.UUID
	CategoryID            pgtype.UUID
	CarrierID             pgtype.UUID
	PolicyMode            pgtype.Text
	PremiumAmountWritten  float64
	PremiumAmount         float64
	PolicyType            pgtype.Text
	Csr                   pgtype.Text
	HasActiveClientPolicy bool
}

type ScheduledMessage struct {
	ID          pgtype.UUID
	Message     string
	ScheduledAt pgtype.Timestamptz
	Status      string
	SentAt      pgtype.Timestamptz
	CreatedAt   pgtype.Timestamptz
}

type IngestRun struct {
	ID           pgtype.UUID
	FileName     pgtype.Text
	Status       string
	RowsTotal    int32
	Chunks       int32
	FailedChunks int32
	Error        pgtype.Text
	ClientIp     pgtype.Text
	UserAgent    pgtype.Text
	StartedAt    pgtype.Timestamptz
	DurationMs   int64
}
