package commission

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
	"github.com/clearwaterpub/royaltyops-backend/pkg/money"
)

// MsgNoActiveRate is the message carried when no commission rate is
// configured. Publishing halts on it rather than assuming zero.
const MsgNoActiveRate = "no active commission rate configured"

// Service defines the commission rate history and rate resolution operations.
type Service interface {
	ResolveRate(ctx context.Context, writer *models.Writer, asOf time.Time) (decimal.Decimal, error)
	UpdateRate(ctx context.Context, input UpdateRateInput) (*models.CommissionSetting, error)
	ActiveSetting(ctx context.Context) (*models.CommissionSetting, error)
	History(ctx context.Context) ([]models.CommissionSetting, error)
}

// UpdateRateInput carries a new commission rate record.
type UpdateRateInput struct {
	CommissionRate decimal.Decimal
	RecipientName  string
	Description    *string
	EffectiveDate  time.Time
}

type service struct {
	client *db.Client
	repo   Repository
	logg   *logger.Logger
}

// NewService wires a commission service with its repository.
func NewService(client *db.Client, repo Repository, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commission repository required")
	}
	return &service{client: client, repo: repo, logg: logg}, nil
}

// ResolveRate returns the writer's override rate when one is set, otherwise
// the rate active at asOf. The writer may be nil for the global default.
func (s *service) ResolveRate(ctx context.Context, writer *models.Writer, asOf time.Time) (decimal.Decimal, error) {
	if writer != nil && writer.CommissionOverrideRate != nil {
		return *writer.CommissionOverrideRate, nil
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	setting, err := s.repo.FindActiveAsOf(ctx, asOf)
	if err != nil {
		if err == ErrNoActiveSetting {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeStateConflict, MsgNoActiveRate)
		}
		return decimal.Zero, err
	}
	return setting.CommissionRate, nil
}

// UpdateRate appends a new active setting and deactivates the previous one.
// Existing records are never edited, so published statements keep the rate
// they were settled with.
func (s *service) UpdateRate(ctx context.Context, input UpdateRateInput) (*models.CommissionSetting, error) {
	rate := input.CommissionRate
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 100")
	}
	recipient := strings.TrimSpace(input.RecipientName)
	if recipient == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient name is required")
	}
	effective := input.EffectiveDate
	if effective.IsZero() {
		effective = time.Now()
	}

	setting := &models.CommissionSetting{
		ID:             uuid.New(),
		CommissionRate: rate,
		RecipientName:  recipient,
		Description:    input.Description,
		EffectiveDate:  effective,
		IsActive:       true,
	}

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeactivateActive(ctx); err != nil {
			return err
		}
		return repo.Create(ctx, setting)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"commission_rate": rate.String(),
			"recipient":       recipient,
		})
		s.logg.Info(logCtx, "commission rate updated")
	}
	return setting, nil
}

func (s *service) ActiveSetting(ctx context.Context) (*models.CommissionSetting, error) {
	setting, err := s.repo.FindActiveAsOf(ctx, time.Now())
	if err == ErrNoActiveSetting {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, MsgNoActiveRate)
	}
	return setting, err
}

func (s *service) History(ctx context.Context) ([]models.CommissionSetting, error) {
	return s.repo.ListHistory(ctx)
}

// Apply splits a gross amount into commission and net at the given rate.
func Apply(gross, rate decimal.Decimal) (commissionAmount, net decimal.Decimal) {
	commissionAmount = money.Share(gross, rate)
	net = money.Round(gross.Sub(commissionAmount))
	return commissionAmount, net
}
