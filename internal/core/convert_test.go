package core

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantDate  time.Time
	}{
		{
			name:      "month day year",
			input:     "01-15-2023",
			wantValid: true,
			wantDate:  time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "end of year",
			input:     "12-31-1999",
			wantValid: true,
			wantDate:  time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "leap day",
			input:     "02-29-2024",
			wantValid: true,
			wantDate:  time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},

		// Invalid: null rather than failure
		{name: "empty string", input: "", wantValid: false},
		{name: "garbage", input: "not a date", wantValid: false},
		{name: "ISO format", input: "2023-01-15", wantValid: false},
		{name: "slashes", input: "01/15/2023", wantValid: false},
		{name: "unpadded month", input: "1-15-2023", wantValid: false},
		{name: "day first", input: "15-01-2023", wantValid: false},
		{name: "not a leap year", input: "02-29-2023", wantValid: false},
		{name: "two digit year", input: "01-15-23", wantValid: false},
		{name: "surrounding spaces", input: " 01-15-2023 ", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDate(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ParseDate(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if tt.wantValid && !got.Time.Equal(tt.wantDate) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got.Time, tt.wantDate)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseAmount Tests
// ----------------------------------------------------------------------------

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"123.45", 123.45},
		{"0", 0},
		{"-12.5", -12.5},
		{"1e3", 1000},
		{" 42 ", 42},
		{"", 0},
		{"abc", 0},
		{"$100", 0},
		{"1,000", 0},
		{"12,345.67", 0},
		{"100 USD", 0},
		{"NaN", 0},
		{"Inf", 0},
		{"-Infinity", 0},
	}

	for _, tt := range tests {
		got := ParseAmount(tt.input)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseAmount(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// ParseActive Tests
// ----------------------------------------------------------------------------

func TestParseActive(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"true", true},
		{"True", false},
		{"TRUE", false},
		{"1", false},
		{"yes", false},
		{"", false},
		{"false", false},
		{" true", false},
	}

	for _, tt := range tests {
		if got := ParseActive(tt.input); got != tt.want {
			t.Errorf("ParseActive(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// Small helpers
// ----------------------------------------------------------------------------

func TestToPgText(t *testing.T) {
	if got := ToPgText(""); got.Valid {
		t.Error("ToPgText(\"\") should be NULL")
	}
	got := ToPgText(" CA ")
	if !got.Valid || got.String != " CA " {
		t.Errorf("ToPgText(\" CA \") = %+v, want the value unchanged", got)
	}
}

func TestToPgUUID(t *testing.T) {
	id := uuid.New()

	got := ToPgUUID(id, true)
	if !got.Valid || PgUUIDToString(got) != id.String() {
		t.Errorf("ToPgUUID(%s, true) = %v", id, PgUUIDToString(got))
	}

	if got := ToPgUUID(id, false); got.Valid {
		t.Error("ToPgUUID(id, false) should be NULL")
	}
	if s := PgUUIDToString(ToPgUUID(uuid.Nil, false)); s != "" {
		t.Errorf("PgUUIDToString(NULL) = %q, want empty", s)
	}
}

func TestCleanHeader(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"agent", "agent"},
		{"hasActive_ClientPolicy", "hasactive_clientpolicy"},
		{"  Email  ", "email"},
		{`="userType"`, "usertype"},
		{`"policy_number"`, "policy_number"},
		{"=csr", "csr"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CleanHeader(tt.input); got != tt.want {
			t.Errorf("CleanHeader(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
