package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
)

// StatementRow is one revenue line of a statement: a song for BMI/ASCAP/SESAC,
// or a publisher/platform tuple for MLC. Rows are owned by their Statement and
// never shared across statements.
type StatementRow struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StatementID  uuid.UUID       `gorm:"column:statement_id;type:uuid;not null;index"`
	Position     int             `gorm:"column:position;not null"`
	WorkTitle    string          `gorm:"column:work_title;not null"`
	Revenue      decimal.Decimal `gorm:"column:revenue;type:numeric(14,4);not null"`
	Performances int             `gorm:"column:performances;not null;default:0"`

	// Embedded writer-of-record metadata from the source file, when present.
	WriterName    *string `gorm:"column:writer_name"`
	WriterIPI     *string `gorm:"column:writer_ipi"`
	PublisherName *string `gorm:"column:publisher_name"`
	PublisherIPI  *string `gorm:"column:publisher_ipi"`
	Platform      *string `gorm:"column:platform"`
	Territory     *string `gorm:"column:territory"`

	Collaborators pq.StringArray `gorm:"column:collaborators;type:text[]"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Key returns the identity key for this row. MLC statements list the same work
// once per publisher share, so the key widens to title + publisher IPI +
// platform there; everywhere else the normalized title suffices.
func (r StatementRow) Key(pro enums.ProType) string {
	title := strings.ToLower(strings.TrimSpace(r.WorkTitle))
	if !pro.UsesCompositeRowKey() {
		return title
	}
	ipi := ""
	if r.PublisherIPI != nil {
		ipi = strings.TrimSpace(*r.PublisherIPI)
	}
	platform := ""
	if r.Platform != nil {
		platform = strings.ToLower(strings.TrimSpace(*r.Platform))
	}
	return fmt.Sprintf("%s|%s|%s", title, ipi, platform)
}
