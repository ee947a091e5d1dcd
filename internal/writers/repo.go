package writers

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	"github.com/clearwaterpub/royaltyops-backend/pkg/pagination"
)

// Repository manages persistence for writers and their balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, writer *models.Writer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Writer, error)
	FindByIPI(ctx context.Context, ipi string) (*models.Writer, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Writer, error)
	List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Writer, error)
	CreditBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	DebitBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a writer repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, writer *models.Writer) error {
	return r.db.WithContext(ctx).Create(writer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Writer, error) {
	var writer models.Writer
	if err := r.db.WithContext(ctx).First(&writer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &writer, nil
}

func (r *repository) FindByIPI(ctx context.Context, ipi string) (*models.Writer, error) {
	var writer models.Writer
	if err := r.db.WithContext(ctx).First(&writer, "writer_ipi_number = ?", ipi).Error; err != nil {
		return nil, err
	}
	return &writer, nil
}

func (r *repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Writer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Writer
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Writer, error) {
	query := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Writer
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CreditBalance adds to a writer's balance. Callers run this inside the same
// transaction as the state change that earns the credit.
func (r *repository) CreditBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Writer{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}

// DebitBalance subtracts from a writer's balance only when sufficient funds
// remain. Returns false when the guard rejected the debit.
func (r *repository) DebitBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Writer{}).
		Where("id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
