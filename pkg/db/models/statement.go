package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
)

// Statement is an ingested PRO royalty statement. Totals are zero until
// publish bakes them in; after that they never change, even when commission
// settings do. A paid statement is immutable except for deletion.
type Statement struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProType            enums.ProType         `gorm:"column:pro_type;type:pro_type;not null"`
	Filename           string                `gorm:"column:filename;not null"`
	UploadedAt         time.Time             `gorm:"column:uploaded_at;not null"`
	Status             enums.StatementStatus `gorm:"column:status;type:statement_status;not null;default:'uploaded'"`
	PaymentStatus      enums.PaymentStatus   `gorm:"column:payment_status;type:payment_status;not null;default:'unpaid'"`
	TotalRevenue       decimal.Decimal       `gorm:"column:total_revenue;type:numeric(14,4);not null;default:0"`
	TotalNet           decimal.Decimal       `gorm:"column:total_net;type:numeric(14,4);not null;default:0"`
	TotalCommission    decimal.Decimal       `gorm:"column:total_commission;type:numeric(14,4);not null;default:0"`
	ItemCount          int                   `gorm:"column:item_count;not null;default:0"`
	PaymentProcessedAt *time.Time            `gorm:"column:payment_processed_at"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`

	Rows []StatementRow `gorm:"foreignKey:StatementID"`
}
