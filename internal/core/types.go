package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Column names recognized in an upload header. Header matching is
// case-insensitive, so these are the lower-cased forms.
const (
	ColAgent                = "agent"
	ColEmail                = "email"
	ColFirstName            = "firstname"
	ColDOB                  = "dob"
	ColAddress              = "address"
	ColPhone                = "phone"
	ColState                = "state"
	ColZip                  = "zip"
	ColGender               = "gender"
	ColUserType             = "usertype"
	ColAccountName          = "account_name"
	ColCategoryName         = "category_name"
	ColCompanyName          = "company_name"
	ColPolicyNumber         = "policy_number"
	ColPolicyStartDate      = "policy_start_date"
	ColPolicyEndDate        = "policy_end_date"
	ColPolicyMode           = "policy_mode"
	ColPremiumAmountWritten = "premium_amount_written"
	ColPremiumAmount        = "premium_amount"
	ColPolicyType           = "policy_type"
	ColCSR                  = "csr"
	ColActiveClientPolicy   = "hasactive_clientpolicy"
)

// Row is one parsed record keyed by lower-cased header name.
type Row map[string]string

// Get returns the value for col and whether the column was present.
func (r Row) Get(col string) (string, bool) {
	v, ok := r[col]
	return v, ok
}

// Chunk is an ordered slice of rows processed as one unit of work.
// Offset is the 0-based position of Rows[0] among the data rows of the file.
type Chunk struct {
	Index  int
	Offset int
	Rows   []Row
}

// Dimension identifies one of the five normalized reference entities.
type Dimension string

const (
	DimAgent    Dimension = "agent"
	DimUser     Dimension = "user"
	DimAccount  Dimension = "account"
	DimCategory Dimension = "category"
	DimCarrier  Dimension = "carrier"
)

// Dimensions lists every dimension in resolution order.
var Dimensions = []Dimension{DimAgent, DimUser, DimAccount, DimCategory, DimCarrier}

// Column returns the row column holding the dimension's natural key.
func (d Dimension) Column() string {
	switch d {
	case DimAgent:
		return ColAgent
	case DimUser:
		return ColEmail
	case DimAccount:
		return ColAccountName
	case DimCategory:
		return ColCategoryName
	case DimCarrier:
		return ColCompanyName
	default:
		return ""
	}
}

// User is the profile written when an email is first seen.
type User struct {
	Email     string
	FirstName string
	DOB       pgtype.Date
	Address   string
	Phone     string
	State     string
	Zip       string
	Gender    string
	UserType  string
}

// PolicyInfo is one fact row. Null references mean the key was absent
// or could not be resolved.
type PolicyInfo struct {
	ID                    uuid.UUID
	PolicyNumber          string
	PolicyStartDate       pgtype.Date
	PolicyEndDate         pgtype.Date
	AgentID               pgtype.UUID
	UserID                pgtype.UUID
	AccountID             pgtype.UUID
	CategoryID            pgtype.UUID
	CarrierID             pgtype.UUID
	PolicyMode            string
	PremiumAmountWritten  float64
	PremiumAmount         float64
	PolicyType            string
	CSR                   string
	HasActiveClientPolicy bool
}

// Outcome is the single report of one chunk. A nil Err means success.
type Outcome struct {
	Chunk int
	Err   *ChunkError
}

// Result is the terminal decision for one ingestion.
type Result struct {
	UploadID string        `json:"upload_id"`
	Chunks   int           `json:"chunks"`
	Rows     int           `json:"rows"`
	Errors   []*ChunkError `json:"errors,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether every chunk succeeded.
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

// MessageStatus is the lifecycle state of a scheduled message.
type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
)

// ScheduledMessage is a message to be delivered at ScheduledAt.
type ScheduledMessage struct {
	ID          uuid.UUID
	Message     string
	ScheduledAt time.Time
	Status      MessageStatus
}
