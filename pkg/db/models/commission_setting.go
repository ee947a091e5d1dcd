package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionSetting is one record of the append-only commission rate history.
// Updates insert a new active record and deactivate the previous one; existing
// records are never edited in place.
type CommissionSetting struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CommissionRate decimal.Decimal `gorm:"column:commission_rate;type:numeric(7,4);not null"`
	RecipientName  string          `gorm:"column:recipient_name;not null"`
	Description    *string         `gorm:"column:description"`
	EffectiveDate  time.Time       `gorm:"column:effective_date;not null"`
	IsActive       bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
