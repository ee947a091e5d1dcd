package commission

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
)

// Repository manages the append-only commission settings history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveAsOf(ctx context.Context, asOf time.Time) (*models.CommissionSetting, error)
	DeactivateActive(ctx context.Context) error
	Create(ctx context.Context, setting *models.CommissionSetting) error
	ListHistory(ctx context.Context) ([]models.CommissionSetting, error)
}

// ErrNoActiveSetting is returned when the history holds no active record.
var ErrNoActiveSetting = errors.New("no active commission setting")

type repository struct {
	db *gorm.DB
}

// NewRepository returns a commission settings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindActiveAsOf returns the most recent active setting effective at asOf.
// Normally exactly one setting is active; ordering guards against drift.
func (r *repository) FindActiveAsOf(ctx context.Context, asOf time.Time) (*models.CommissionSetting, error) {
	var setting models.CommissionSetting
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND effective_date <= ?", true, asOf).
		Order("effective_date DESC").
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveSetting
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *repository) DeactivateActive(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&models.CommissionSetting{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error
}

func (r *repository) Create(ctx context.Context, setting *models.CommissionSetting) error {
	return r.db.WithContext(ctx).Create(setting).Error
}

func (r *repository) ListHistory(ctx context.Context) ([]models.CommissionSetting, error) {
	var rows []models.CommissionSetting
	if err := r.db.WithContext(ctx).
		Order("effective_date DESC").
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
