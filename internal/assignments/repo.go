package assignments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
)

// Repository manages persistence for statement assignments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ReplaceForStatement(ctx context.Context, statementID uuid.UUID, rows []models.Assignment) error
	ListByStatement(ctx context.Context, statementID uuid.UUID) ([]models.Assignment, error)
	UpdateComputedAmounts(ctx context.Context, assignment *models.Assignment) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an assignment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ReplaceForStatement swaps the statement's on-record assignments for the
// given set. Callers run this inside the commit transaction.
func (r *repository) ReplaceForStatement(ctx context.Context, statementID uuid.UUID, rows []models.Assignment) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("statement_id = ?", statementID).Delete(&models.Assignment{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
	}
	return db.Create(&rows).Error
}

func (r *repository) ListByStatement(ctx context.Context, statementID uuid.UUID) ([]models.Assignment, error) {
	var rows []models.Assignment
	if err := r.db.WithContext(ctx).
		Where("statement_id = ?", statementID).
		Order("row_id ASC").
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateComputedAmounts bakes the resolved commission fields onto one
// assignment at publish time.
func (r *repository) UpdateComputedAmounts(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ?", assignment.ID).
		Updates(map[string]any{
			"commission_rate":   assignment.CommissionRate,
			"commission_amount": assignment.CommissionAmount,
			"net_amount":        assignment.NetAmount,
		}).Error
}
