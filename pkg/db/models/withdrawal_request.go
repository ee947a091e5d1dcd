package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
)

// WithdrawalRequest is a writer-initiated withdrawal against their balance.
// The balance is debited at approval, not completion, so concurrent requests
// cannot double-spend; a failed gateway transfer restores the debit.
type WithdrawalRequest struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WriterID          uuid.UUID              `gorm:"column:writer_id;type:uuid;not null;index"`
	Amount            decimal.Decimal        `gorm:"column:amount;type:numeric(14,4);not null"`
	Status            enums.WithdrawalStatus `gorm:"column:status;type:withdrawal_status;not null;default:'pending'"`
	RequestedAt       time.Time              `gorm:"column:requested_at;not null"`
	CompletedAt       *time.Time             `gorm:"column:completed_at"`
	GatewayTransferID *string                `gorm:"column:gateway_transfer_id"`
	AdminNotes        *string                `gorm:"column:admin_notes"`
	FailureReason     *string                `gorm:"column:failure_reason"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
