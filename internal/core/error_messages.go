package core

// error_messages.go maps technical errors to user-facing messages with a
// code support staff can look up.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate value: a unique key already exists
//	DB002 - Missing reference: a referenced dimension row does not exist
//	DB003 - Database unavailable: connection refused, reset or lost
//	DB004 - Timeout: the operation ran out of time
//	DB005 - Conflict: deadlock or serialization failure
//	DB006 - Invalid value: the database rejected a value's format or range
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: body exceeds UPLOAD_MAX_FILE_SIZE
//	FILE002 - Invalid CSV: the stream could not be parsed
//	FILE003 - Empty file: no header row
//	FILE004 - No file: the multipart field "file" is missing
//	FILE005 - Bad header: a header column is blank, repeated, unreadable or missing
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: every upload slot is taken
//	UPL002 - Request cancelled
//	UPL003 - Request timed out
//
// # Schedule Errors (SCH001-SCH099)
//
//	SCH001 - Missing field: message, date or time is empty
//	SCH002 - Invalid date or time
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check the application logs for the original error
//
// Typed errors are resolved first: known sentinels via errors.Is, then
// Postgres errors by SQLSTATE via pgerrcode. Anything left is matched
// case-insensitively against errorPatterns, first match wins.

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgDuplicate = UserMessage{
		Message: "A record with this value already exists",
		Action:  "Check for duplicate entries in your CSV",
		Code:    "DB001",
	}
	msgMissingRef = UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Check the agent, account, category and carrier columns",
		Code:    "DB002",
	}
	msgDBUnavailable = UserMessage{
		Message: "Unable to reach the database",
		Action:  "Please try again in a few moments",
		Code:    "DB003",
	}
	msgDBTimeout = UserMessage{
		Message: "Operation timed out",
		Action:  "Try uploading a smaller file or try again later",
		Code:    "DB004",
	}
	msgDBConflict = UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB005",
	}
	msgDBInvalid = UserMessage{
		Message: "A value was rejected by the database",
		Action:  "Check dates, amounts and text lengths in your CSV",
		Code:    "DB006",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure file is comma-separated with consistent columns",
		Code:    "FILE002",
	}
	msgEmptyFile = UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a CSV file with a header row",
		Code:    "FILE003",
	}
	msgNoFile = UserMessage{
		Message: "No file was selected",
		Action:  "Please select a CSV file to upload",
		Code:    "FILE004",
	}
	msgBadHeader = UserMessage{
		Message: "The header row is not valid",
		Action:  "Name every column once and include agent, email, account_name, category_name and company_name",
		Code:    "FILE005",
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL001",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL002",
	}
	msgRequestTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try uploading a smaller file or check your connection",
		Code:    "UPL003",
	}
	msgScheduleMissing = UserMessage{
		Message: "Message, date and time are required",
		Action:  "Fill in every field",
		Code:    "SCH001",
	}
	msgScheduleInvalid = UserMessage{
		Message: "Invalid date or time",
		Action:  "Use YYYY-MM-DD for the date and HH:MM for the time",
		Code:    "SCH002",
	}
	msgRateLimited = UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}
)

// sentinels are checked with errors.Is before any pattern.
var sentinels = []struct {
	err error
	msg UserMessage
}{
	{ErrTooManyUploads, msgBusy},
	{ErrMissingColumn, msgBadHeader},
	{ErrEmptyInput, msgEmptyFile},
	{ErrScheduleMissingField, msgScheduleMissing},
	{ErrInvalidSchedule, msgScheduleInvalid},
	{http.ErrMissingFile, msgNoFile},
	{context.DeadlineExceeded, msgRequestTimeout},
	{context.Canceled, msgCancelled},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers errors that arrive as plain text, such as driver
// errors without a SQLSTATE. More specific patterns come first.
var errorPatterns = []errorPattern{
	{"duplicate key", msgDuplicate},
	{"violates unique", msgDuplicate},
	{"violates foreign key", msgMissingRef},
	{"connection refused", msgDBUnavailable},
	{"connection reset", msgDBUnavailable},
	{"deadlock", msgDBConflict},
	{"timeout", msgDBTimeout},
	{"request body too large", msgTooLarge},
	{"file too large", msgTooLarge},
	{"header column", msgBadHeader},
	{"parse error", msgInvalidCSV},
	{"no file provided", msgNoFile},
	{"rate limit", msgRateLimited},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. If
// nothing matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := mapPgError(pgErr); ok {
			return msg
		}
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return msgTooLarge
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapPgError(pgErr *pgconn.PgError) (UserMessage, bool) {
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return msgDuplicate, true
	case pgErr.Code == pgerrcode.ForeignKeyViolation:
		return msgMissingRef, true
	case pgErr.Code == pgerrcode.QueryCanceled:
		return msgDBTimeout, true
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsOperatorIntervention(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code):
		return msgDBUnavailable, true
	case pgerrcode.IsTransactionRollback(pgErr.Code):
		return msgDBConflict, true
	case pgerrcode.IsDataException(pgErr.Code),
		pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
		return msgDBInvalid, true
	}
	return UserMessage{}, false
}

// IsUserFacing reports whether err maps to something more specific than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its
// user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
