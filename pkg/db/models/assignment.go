package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Assignment allocates a split of one statement row to one writer. The
// commission fields stay null until publish, which bakes the resolved rate and
// the computed amounts in; they are never recomputed afterwards.
type Assignment struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StatementID        uuid.UUID       `gorm:"column:statement_id;type:uuid;not null;index"`
	RowID              uuid.UUID       `gorm:"column:row_id;type:uuid;not null;index"`
	Position           int             `gorm:"column:position;not null"`
	WriterID           uuid.UUID       `gorm:"column:writer_id;type:uuid;not null;index"`
	WriterIPINumber    string          `gorm:"column:writer_ipi_number"`
	PublisherIPINumber string          `gorm:"column:publisher_ipi_number"`
	SplitPercentage    decimal.Decimal `gorm:"column:split_percentage;type:numeric(7,4);not null"`

	CommissionRate   *decimal.Decimal `gorm:"column:commission_rate;type:numeric(7,4)"`
	CommissionAmount *decimal.Decimal `gorm:"column:commission_amount;type:numeric(14,4)"`
	NetAmount        *decimal.Decimal `gorm:"column:net_amount;type:numeric(14,4)"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
