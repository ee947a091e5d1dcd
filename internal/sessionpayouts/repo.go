package sessionpayouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	"github.com/clearwaterpub/royaltyops-backend/pkg/pagination"
)

// Repository manages persistence for session payout requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.SessionPayoutRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SessionPayoutRequest, error)
	ListBySubmitter(ctx context.Context, submittedBy uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.SessionPayoutRequest, error)
	ListByStatus(ctx context.Context, status enums.SessionPayoutStatus, limit int, cursor *pagination.Cursor) ([]models.SessionPayoutRequest, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SessionPayoutStatus, updates map[string]any) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, reason string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a session payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.SessionPayoutRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SessionPayoutRequest, error) {
	var request models.SessionPayoutRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListBySubmitter(ctx context.Context, submittedBy uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.SessionPayoutRequest, error) {
	query := r.db.WithContext(ctx).
		Where("submitted_by = ?", submittedBy).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.SessionPayoutRequest
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByStatus(ctx context.Context, status enums.SessionPayoutStatus, limit int, cursor *pagination.Cursor) ([]models.SessionPayoutRequest, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.SessionPayoutRequest
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SessionPayoutStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.SessionPayoutRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RecordFailure captures why settlement did not complete. The request stays
// approved so an admin can retry; there is no failed state in this lifecycle.
func (r *repository) RecordFailure(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.SessionPayoutRequest{}).
		Where("id = ? AND status = ?", id, enums.SessionPayoutStatusApproved).
		Update("failure_reason", reason).Error
}
