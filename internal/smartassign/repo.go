package smartassign

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
)

type writerDirectory struct {
	db *gorm.DB
}

// NewDirectory returns the full writer directory the matcher scores against.
func NewDirectory(db *gorm.DB) WriterDirectory {
	return &writerDirectory{db: db}
}

func (r *writerDirectory) ListAll(ctx context.Context) ([]models.Writer, error) {
	var rows []models.Writer
	if err := r.db.WithContext(ctx).Order("last_name").Order("first_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistory returns an assignment-history lookup bound to the provided database.
func NewHistory(db *gorm.DB) History {
	return &historyRepository{db: db}
}

// collapsedTitleExpr lowercases, trims, and collapses runs of spaces in the
// stored work title so the SQL comparison matches NormalizeTitle output. The
// nested REPLACEs turn any run of spaces into a single space.
const collapsedTitleExpr = `LOWER(TRIM(REPLACE(REPLACE(REPLACE(statement_rows.work_title, ' ', ' <>'), '<> ', ''), '<>', '')))`

// WritersForTitle lists writers previously assigned any row with the same
// normalized work title. Only published or paid statements count as history.
func (r *historyRepository) WritersForTitle(ctx context.Context, normalizedTitle string) ([]uuid.UUID, error) {
	if normalizedTitle == "" {
		return nil, nil
	}
	var writerIDs []uuid.UUID
	err := r.db.WithContext(ctx).
		Table("assignments").
		Distinct("assignments.writer_id").
		Joins("JOIN statement_rows ON statement_rows.id = assignments.row_id").
		Joins("JOIN statements ON statements.id = assignments.statement_id").
		Where(collapsedTitleExpr+" = ?", normalizedTitle).
		Where("statements.status = ?", "published").
		Pluck("assignments.writer_id", &writerIDs).Error
	if err != nil {
		return nil, err
	}
	return writerIDs, nil
}
