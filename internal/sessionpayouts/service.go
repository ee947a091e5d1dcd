package sessionpayouts

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/internal/writers"
	"github.com/clearwaterpub/royaltyops-backend/pkg/config"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/gateway"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
	"github.com/clearwaterpub/royaltyops-backend/pkg/metrics"
	"github.com/clearwaterpub/royaltyops-backend/pkg/outbox"
	"github.com/clearwaterpub/royaltyops-backend/pkg/pagination"
)

// Fixed messages for session payout state conflicts.
const (
	MsgNotPending           = "session payout request is not pending"
	MsgNotApproved          = "session payout request is not approved"
	MsgAlreadyApproved      = "session payout request is already approved"
	MsgAlreadyCompleted     = "session payout request is already completed"
	MsgAlreadyRejected      = "session payout request is already rejected"
	MsgOnboardingIncomplete = "submitter has not completed gateway onboarding"
)

// CreateInput describes a recording session reimbursement request. The payout
// settles directly to the submitter; it never draws on a writer balance.
type CreateInput struct {
	WorkOrderNumber string
	SubmittedBy     uuid.UUID
	StudioCost      decimal.Decimal
	EngineerFee     decimal.Decimal
	DepositPaid     decimal.Decimal
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.SessionPayoutRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.SessionPayoutRequest, error)
	ListBySubmitter(ctx context.Context, submittedBy uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.SessionPayoutRequest, error)
	ListByStatus(ctx context.Context, status enums.SessionPayoutStatus, limit int, cursor *pagination.Cursor) ([]models.SessionPayoutRequest, error)
	Approve(ctx context.Context, id uuid.UUID) (*models.SessionPayoutRequest, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*models.SessionPayoutRequest, error)
	ProcessPayment(ctx context.Context, id uuid.UUID) (*models.SessionPayoutRequest, error)
}

type service struct {
	client     *db.Client
	repo       Repository
	writerRepo writers.Repository
	transfers  gateway.TransferCreator
	settlement config.SettlementConfig
	events     *outbox.Service
	metrics    *metrics.SettlementMetrics
	logg       *logger.Logger
}

func NewService(
	client *db.Client,
	repo Repository,
	writerRepo writers.Repository,
	transfers gateway.TransferCreator,
	settlement config.SettlementConfig,
	events *outbox.Service,
	settlementMetrics *metrics.SettlementMetrics,
	logg *logger.Logger,
) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session payout repository required")
	}
	if writerRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "writer repository required")
	}
	if transfers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transfer gateway required")
	}
	return &service{
		client:     client,
		repo:       repo,
		writerRepo: writerRepo,
		transfers:  transfers,
		settlement: settlement,
		events:     events,
		metrics:    settlementMetrics,
		logg:       logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.SessionPayoutRequest, error) {
	if strings.TrimSpace(input.WorkOrderNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "work order number is required")
	}
	if input.StudioCost.IsNegative() || input.EngineerFee.IsNegative() || input.DepositPaid.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session cost fields must not be negative")
	}
	totalCost := input.StudioCost.Add(input.EngineerFee)
	payout := totalCost.Sub(input.DepositPaid)
	if !payout.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	if _, err := s.writerRepo.FindByID(ctx, input.SubmittedBy); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "submitter not found")
		}
		return nil, err
	}

	request := &models.SessionPayoutRequest{
		ID:               uuid.New(),
		WorkOrderNumber:  strings.TrimSpace(input.WorkOrderNumber),
		SubmittedBy:      input.SubmittedBy,
		PayoutAmount:     payout,
		StudioCost:       input.StudioCost,
		EngineerFee:      input.EngineerFee,
		DepositPaid:      input.DepositPaid,
		TotalSessionCost: totalCost,
		Status:           enums.SessionPayoutStatusPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(ctx, fmt.Sprintf("session payout requested: %s for work order %s", request.ID, request.WorkOrderNumber))
	}
	return request, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.SessionPayoutRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session payout request not found")
		}
		return nil, err
	}
	return request, nil
}

func (s *service) ListBySubmitter(ctx context.Context, submittedBy uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.SessionPayoutRequest, error) {
	return s.repo.ListBySubmitter(ctx, submittedBy, pagination.NormalizeLimit(limit), cursor)
}

func (s *service) ListByStatus(ctx context.Context, status enums.SessionPayoutStatus, limit int, cursor *pagination.Cursor) ([]models.SessionPayoutRequest, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid session payout status")
	}
	return s.repo.ListByStatus(ctx, status, pagination.NormalizeLimit(limit), cursor)
}

func (s *service) Approve(ctx context.Context, id uuid.UUID) (*models.SessionPayoutRequest, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	now := time.Now()
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).TransitionStatus(ctx, id, enums.SessionPayoutStatusPending, enums.SessionPayoutStatusApproved, map[string]any{
			"reviewed_at": now,
		})
		if err != nil {
			return err
		}
		if !moved {
			return s.statusConflict(ctx, tx, id, MsgNotPending)
		}
		return s.emit(ctx, tx, enums.EventSessionPayoutApproved, id, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *service) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.SessionPayoutRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	now := time.Now()
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).TransitionStatus(ctx, id, enums.SessionPayoutStatusPending, enums.SessionPayoutStatusRejected, map[string]any{
			"rejection_reason": reason,
			"reviewed_at":      now,
		})
		if err != nil {
			return err
		}
		if !moved {
			return s.statusConflict(ctx, tx, id, MsgNotPending)
		}
		return s.emit(ctx, tx, enums.EventSessionPayoutRejected, id, map[string]any{
			"rejection_reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ProcessPayment settles an approved request directly to the submitter. The
// gateway idempotency key makes the transfer safe against resubmission, and
// the guarded status write lets exactly one caller record completion. A
// gateway failure captures the reason and leaves the request approved so an
// admin can retry explicitly.
func (s *service) ProcessPayment(ctx context.Context, id uuid.UUID) (*models.SessionPayoutRequest, error) {
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.SessionPayoutStatusApproved {
		return nil, s.statusConflict(ctx, nil, id, MsgNotApproved)
	}
	submitter, err := s.writerRepo.FindByID(ctx, request.SubmittedBy)
	if err != nil {
		return nil, err
	}
	if !submitter.GatewayOnboardingComplete || submitter.GatewayAccountID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, MsgOnboardingIncomplete)
	}

	transfer, transferErr := s.createTransfer(ctx, gateway.TransferRequest{
		AccountID:      *submitter.GatewayAccountID,
		Amount:         request.PayoutAmount,
		IdempotencyKey: fmt.Sprintf("session-payout-%s", id),
		Description:    fmt.Sprintf("session payout for work order %s", request.WorkOrderNumber),
		Metadata: map[string]string{
			"session_payout_request_id": id.String(),
			"work_order_number":         request.WorkOrderNumber,
		},
	})
	if transferErr != nil {
		if err := s.repo.RecordFailure(ctx, id, transferErr.Error()); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.IncSettlement("session_payout", "failed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, transferErr, "gateway transfer failed")
	}

	now := time.Now()
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).TransitionStatus(ctx, id, enums.SessionPayoutStatusApproved, enums.SessionPayoutStatusCompleted, map[string]any{
			"paid_at":             now,
			"gateway_transfer_id": transfer.ID,
			"failure_reason":      nil,
		})
		if err != nil {
			return err
		}
		if !moved {
			return s.statusConflict(ctx, tx, id, MsgNotApproved)
		}
		return s.emit(ctx, tx, enums.EventSessionPayoutCompleted, id, map[string]any{
			"submitted_by":        request.SubmittedBy.String(),
			"payout_amount":       request.PayoutAmount.String(),
			"gateway_transfer_id": transfer.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncSettlement("session_payout", "completed")
	}
	if s.logg != nil {
		s.logg.Info(ctx, fmt.Sprintf("session payout settled: %s transfer %s", id, transfer.ID))
	}
	return s.Get(ctx, id)
}

func (s *service) createTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	attempts := s.settlement.GatewayMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		transfer, err := s.transfers.CreateTransfer(ctx, req)
		if err == nil {
			return transfer, nil
		}
		lastErr = err
		var gatewayErr *gateway.TransferError
		if !stderrors.As(err, &gatewayErr) || !gatewayErr.Retryable() {
			break
		}
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.settlement.GatewayRetryDelay):
			}
		}
	}
	return nil, lastErr
}

func (s *service) statusConflict(ctx context.Context, tx *gorm.DB, id uuid.UUID, fallback string) error {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	switch current.Status {
	case enums.SessionPayoutStatusApproved:
		if fallback == MsgNotPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, MsgAlreadyApproved)
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, fallback)
	case enums.SessionPayoutStatusCompleted:
		return pkgerrors.New(pkgerrors.CodeStateConflict, MsgAlreadyCompleted)
	case enums.SessionPayoutStatusRejected:
		return pkgerrors.New(pkgerrors.CodeStateConflict, MsgAlreadyRejected)
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, fallback)
	}
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, id uuid.UUID, data map[string]any) error {
	if s.events == nil {
		return nil
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSessionPayout,
		AggregateID:   id,
		Data:          data,
		Version:       1,
	})
}
