package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
)

// SessionPayoutRequest reimburses a recording session directly through the
// gateway; it never touches a writer balance. The cost fields are immutable
// once the request exists.
type SessionPayoutRequest struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WorkOrderNumber   string                    `gorm:"column:work_order_number;not null"`
	SubmittedBy       uuid.UUID                 `gorm:"column:submitted_by;type:uuid;not null;index"`
	PayoutAmount      decimal.Decimal           `gorm:"column:payout_amount;type:numeric(14,4);not null"`
	StudioCost        decimal.Decimal           `gorm:"column:studio_cost;type:numeric(14,4);not null"`
	EngineerFee       decimal.Decimal           `gorm:"column:engineer_fee;type:numeric(14,4);not null"`
	DepositPaid       decimal.Decimal           `gorm:"column:deposit_paid;type:numeric(14,4);not null;default:0"`
	TotalSessionCost  decimal.Decimal           `gorm:"column:total_session_cost;type:numeric(14,4);not null"`
	Status            enums.SessionPayoutStatus `gorm:"column:status;type:session_payout_status;not null;default:'pending'"`
	ReviewedAt        *time.Time                `gorm:"column:reviewed_at"`
	PaidAt            *time.Time                `gorm:"column:paid_at"`
	GatewayTransferID *string                   `gorm:"column:gateway_transfer_id"`
	RejectionReason   *string                   `gorm:"column:rejection_reason"`
	FailureReason     *string                   `gorm:"column:failure_reason"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
