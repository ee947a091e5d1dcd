package enums

import "fmt"

// StatementStatus tracks a royalty statement through its lifecycle.
type StatementStatus string

const (
	StatementStatusUploaded  StatementStatus = "uploaded"
	StatementStatusProcessed StatementStatus = "processed"
	StatementStatusPublished StatementStatus = "published"
	StatementStatusError     StatementStatus = "error"
)

var validStatementStatuses = []StatementStatus{
	StatementStatusUploaded,
	StatementStatusProcessed,
	StatementStatusPublished,
	StatementStatusError,
}

// String implements fmt.Stringer.
func (s StatementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StatementStatus.
func (s StatementStatus) IsValid() bool {
	for _, candidate := range validStatementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStatementStatus converts raw input into a StatementStatus.
func ParseStatementStatus(value string) (StatementStatus, error) {
	for _, candidate := range validStatementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid statement status %q", value)
}
