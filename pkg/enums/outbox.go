package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateStatement     OutboxAggregateType = "statement"
	AggregateWithdrawal    OutboxAggregateType = "withdrawal_request"
	AggregateSessionPayout OutboxAggregateType = "session_payout_request"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateStatement,
	AggregateWithdrawal,
	AggregateSessionPayout,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventStatementPublished     OutboxEventType = "statement_published"
	EventStatementPaid          OutboxEventType = "statement_paid"
	EventWithdrawalApproved     OutboxEventType = "withdrawal_approved"
	EventWithdrawalCompleted    OutboxEventType = "withdrawal_completed"
	EventWithdrawalFailed       OutboxEventType = "withdrawal_failed"
	EventWithdrawalCancelled    OutboxEventType = "withdrawal_cancelled"
	EventSessionPayoutApproved  OutboxEventType = "session_payout_approved"
	EventSessionPayoutCompleted OutboxEventType = "session_payout_completed"
	EventSessionPayoutRejected  OutboxEventType = "session_payout_rejected"
)

var validOutboxEventTypes = []OutboxEventType{
	EventStatementPublished,
	EventStatementPaid,
	EventWithdrawalApproved,
	EventWithdrawalCompleted,
	EventWithdrawalFailed,
	EventWithdrawalCancelled,
	EventSessionPayoutApproved,
	EventSessionPayoutCompleted,
	EventSessionPayoutRejected,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
