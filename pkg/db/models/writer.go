package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Writer is a songwriter (or publisher principal) that statement revenue is
// attributed to. Balance is credited only by statement payment processing and
// debited only by withdrawal settlements.
type Writer struct {
	ID                        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FirstName                 string           `gorm:"column:first_name;not null"`
	LastName                  string           `gorm:"column:last_name;not null"`
	Role                      string           `gorm:"column:role;not null;default:'writer'"`
	WriterIPINumber           *string          `gorm:"column:writer_ipi_number;index"`
	PublisherIPINumber        *string          `gorm:"column:publisher_ipi_number"`
	CommissionOverrideRate    *decimal.Decimal `gorm:"column:commission_override_rate;type:numeric(7,4)"`
	GatewayOnboardingComplete bool             `gorm:"column:gateway_onboarding_complete;not null;default:false"`
	GatewayAccountID          *string          `gorm:"column:gateway_account_id"`
	Balance                   decimal.Decimal  `gorm:"column:balance;type:numeric(14,4);not null;default:0"`
	CreatedAt                 time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                 time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// FullName joins the writer's name parts for display and matching.
func (w Writer) FullName() string {
	return strings.TrimSpace(w.FirstName + " " + w.LastName)
}
