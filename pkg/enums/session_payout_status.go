package enums

import "fmt"

// SessionPayoutStatus tracks a recording-session payout request.
type SessionPayoutStatus string

const (
	SessionPayoutStatusPending   SessionPayoutStatus = "pending"
	SessionPayoutStatusApproved  SessionPayoutStatus = "approved"
	SessionPayoutStatusCompleted SessionPayoutStatus = "completed"
	SessionPayoutStatusRejected  SessionPayoutStatus = "rejected"
)

var validSessionPayoutStatuses = []SessionPayoutStatus{
	SessionPayoutStatusPending,
	SessionPayoutStatusApproved,
	SessionPayoutStatusCompleted,
	SessionPayoutStatusRejected,
}

// String implements fmt.Stringer.
func (s SessionPayoutStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SessionPayoutStatus.
func (s SessionPayoutStatus) IsValid() bool {
	for _, candidate := range validSessionPayoutStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s SessionPayoutStatus) IsTerminal() bool {
	switch s {
	case SessionPayoutStatusCompleted, SessionPayoutStatusRejected:
		return true
	default:
		return false
	}
}

// ParseSessionPayoutStatus converts raw input into a SessionPayoutStatus.
func ParseSessionPayoutStatus(value string) (SessionPayoutStatus, error) {
	for _, candidate := range validSessionPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session payout status %q", value)
}
