package statements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	"github.com/clearwaterpub/royaltyops-backend/pkg/pagination"
)

// ListFilter narrows statement listings.
type ListFilter struct {
	Status        *enums.StatementStatus
	PaymentStatus *enums.PaymentStatus
	ProType       *enums.ProType
}

// Totals are the amounts baked onto a statement at publish.
type Totals struct {
	TotalRevenue    decimal.Decimal
	TotalCommission decimal.Decimal
	TotalNet        decimal.Decimal
}

// Repository manages persistence for statements and their rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, statement *models.Statement) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Statement, error)
	ListRows(ctx context.Context, statementID uuid.UUID) ([]models.StatementRow, error)
	List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.Statement, error)
	TransitionStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to enums.StatementStatus) (bool, error)
	TransitionPaymentStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to enums.PaymentStatus) (bool, error)
	SetTotalsTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, totals Totals) error
	MarkPaymentProcessedTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, processedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a statement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, statement *models.Statement) error {
	return r.db.WithContext(ctx).Create(statement).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Statement, error) {
	var statement models.Statement
	if err := r.db.WithContext(ctx).First(&statement, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &statement, nil
}

func (r *repository) ListRows(ctx context.Context, statementID uuid.UUID) ([]models.StatementRow, error) {
	var rows []models.StatementRow
	if err := r.db.WithContext(ctx).
		Where("statement_id = ?", statementID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.Statement, error) {
	query := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filter.PaymentStatus)
	}
	if filter.ProType != nil {
		query = query.Where("pro_type = ?", *filter.ProType)
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Statement
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TransitionStatusTx performs the guarded status write. Exactly one of two
// racing callers sees rowsAffected=1; the loser must re-read and report the
// definitive state.
func (r *repository) TransitionStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to enums.StatementStatus) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	result := db.WithContext(ctx).
		Model(&models.Statement{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) TransitionPaymentStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to enums.PaymentStatus) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	result := db.WithContext(ctx).
		Model(&models.Statement{}).
		Where("id = ? AND payment_status = ?", id, from).
		Update("payment_status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetTotalsTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, totals Totals) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).
		Model(&models.Statement{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_revenue":    totals.TotalRevenue,
			"total_commission": totals.TotalCommission,
			"total_net":        totals.TotalNet,
		}).Error
}

func (r *repository) MarkPaymentProcessedTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, processedAt time.Time) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).
		Model(&models.Statement{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payment_status":       enums.PaymentStatusPaid,
			"payment_processed_at": processedAt,
		}).Error
}

// Delete removes a statement; rows and assignments cascade.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Statement{}, "id = ?", id).Error
}
