package core

// convert.go turns raw cell text into typed fact and profile values.
//
// Bad data never fails a row. Dates that are absent or not in MM-DD-YYYY
// become NULL, amounts that do not parse become 0, and the active flag is
// only set for the exact literal "true".

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// DateLayout is the only accepted date format (MM-DD-YYYY).
const DateLayout = "01-02-2006"

// ParseDate parses s as MM-DD-YYYY. Anything else yields an invalid date.
func ParseDate(s string) pgtype.Date {
	if s == "" {
		return pgtype.Date{Valid: false}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// ParseAmount parses a premium amount. The whole trimmed cell must be a
// number: "100 USD" and "12,345.67" are not read as a numeric prefix.
// Absent, non-numeric, NaN and infinite values all yield 0.
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseActive is case-sensitive: "True", "1" and "yes" are all false.
func ParseActive(s string) bool {
	return s == "true"
}

// ToPgText converts a string to pgtype.Text, NULL when empty.
func ToPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgUUID converts a resolved id to pgtype.UUID. ok=false yields NULL.
func ToPgUUID(id uuid.UUID, ok bool) pgtype.UUID {
	if !ok {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

// PgUUIDToString converts a pgtype.UUID to its string representation.
// Returns empty string if the UUID is invalid.
func PgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// CleanHeader normalizes a header cell so that "hasActive_ClientPolicy"
// and " HASACTIVE_CLIENTPOLICY " address the same column. Excel formula
// wrappers (="...") and stray quotes are removed.
func CleanHeader(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.ToLower(strings.TrimSpace(s))
}
