package withdrawals

import (
	"context"
	stderrors "errors"
	"fmt"
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

// Fixed messages for withdrawal state conflicts.
const (
	MsgNotPending           = "withdrawal request is not pending"
	MsgAlreadyApproved      = "withdrawal request is already approved"
	MsgNotApproved          = "withdrawal request is not approved"
	MsgOnboardingIncomplete = "writer has not completed gateway onboarding"
	MsgInsufficientBalance  = "withdrawal amount exceeds available balance"
	MsgSettlementInProgress = "withdrawal settlement is already processing"
	MsgAlreadyCompleted     = "withdrawal request is already completed"
	MsgAlreadyFailed        = "withdrawal request has already failed"
	MsgAlreadyCancelled     = "withdrawal request is already cancelled"
)

// CreateInput is a writer's request to withdraw part of their balance.
type CreateInput struct {
	WriterID uuid.UUID
	Amount   decimal.Decimal
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.WithdrawalRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	ListByWriter(ctx context.Context, writerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status enums.WithdrawalStatus, limit int, cursor *pagination.Cursor) ([]models.WithdrawalRequest, error)
	Approve(ctx context.Context, id uuid.UUID, adminNotes *string) (*models.WithdrawalRequest, error)
	Settle(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	Cancel(ctx context.Context, id uuid.UUID, reason *string) (*models.WithdrawalRequest, error)
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
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "withdrawal repository required")
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

func (s *service) Create(ctx context.Context, input CreateInput) (*models.WithdrawalRequest, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}
	writer, err := s.writerRepo.FindByID(ctx, input.WriterID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "writer not found")
		}
		return nil, err
	}
	if input.Amount.GreaterThan(writer.Balance) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, MsgInsufficientBalance)
	}

	request := &models.WithdrawalRequest{
		ID:          uuid.New(),
		WriterID:    writer.ID,
		Amount:      input.Amount,
		Status:      enums.WithdrawalStatusPending,
		RequestedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithWriterID(ctx, writer.ID.String())
		s.logg.Info(ctx, fmt.Sprintf("withdrawal requested: %s for %s", request.ID, input.Amount.StringFixed(4)))
	}
	return request, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal request not found")
		}
		return nil, err
	}
	return request, nil
}

func (s *service) ListByWriter(ctx context.Context, writerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.WithdrawalRequest, error) {
	return s.repo.ListByWriter(ctx, writerID, pagination.NormalizeLimit(limit), cursor)
}

func (s *service) ListByStatus(ctx context.Context, status enums.WithdrawalStatus, limit int, cursor *pagination.Cursor) ([]models.WithdrawalRequest, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid withdrawal status")
	}
	return s.repo.ListByStatus(ctx, status, pagination.NormalizeLimit(limit), cursor)
}

// Approve moves a pending request to approved and debits the writer's balance
// in the same transaction. Debiting here, not at completion, means two
// approved withdrawals can never spend the same funds.
func (s *service) Approve(ctx context.Context, id uuid.UUID, adminNotes *string) (*models.WithdrawalRequest, error) {
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	writer, err := s.writerRepo.FindByID(ctx, request.WriterID)
	if err != nil {
		return nil, err
	}
	if !writer.GatewayOnboardingComplete {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, MsgOnboardingIncomplete)
	}

	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{}
		if adminNotes != nil {
			updates["admin_notes"] = *adminNotes
		}
		moved, err := s.repo.WithTx(tx).TransitionStatus(ctx, id, enums.WithdrawalStatusPending, enums.WithdrawalStatusApproved, updates)
		if err != nil {
			return err
		}
		if !moved {
			return s.statusConflict(ctx, tx, id, enums.WithdrawalStatusPending, MsgNotPending)
		}
		debited, err := s.writerRepo.WithTx(tx).DebitBalance(ctx, request.WriterID, request.Amount)
		if err != nil {
			return err
		}
		if !debited {
			return pkgerrors.New(pkgerrors.CodeStateConflict, MsgInsufficientBalance)
		}
		return s.emit(ctx, tx, enums.EventWithdrawalApproved, id, map[string]any{
			"writer_id": request.WriterID.String(),
			"amount":    request.Amount.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithWriterID(ctx, request.WriterID.String())
		s.logg.Info(ctx, fmt.Sprintf("withdrawal approved: %s", id))
	}
	return s.Get(ctx, id)
}

// Settle submits an approved withdrawal to the transfer gateway. A failed
// transfer restores the balance debited at approval.
func (s *service) Settle(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	writer, err := s.writerRepo.FindByID(ctx, request.WriterID)
	if err != nil {
		return nil, err
	}
	if writer.GatewayAccountID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, MsgOnboardingIncomplete)
	}

	moved, err := s.repo.TransitionStatus(ctx, id, enums.WithdrawalStatusApproved, enums.WithdrawalStatusProcessing, nil)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, s.statusConflict(ctx, nil, id, enums.WithdrawalStatusApproved, MsgNotApproved)
	}

	transfer, transferErr := s.createTransfer(ctx, gateway.TransferRequest{
		AccountID:      *writer.GatewayAccountID,
		Amount:         request.Amount,
		IdempotencyKey: fmt.Sprintf("withdrawal-%s", id),
		Description:    "royalty withdrawal",
		Metadata: map[string]string{
			"withdrawal_request_id": id.String(),
			"writer_id":             request.WriterID.String(),
		},
	})
	if transferErr != nil {
		if err := s.recordFailure(ctx, request, transferErr); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.IncSettlement("withdrawal", "failed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, transferErr, "gateway transfer failed")
	}

	now := time.Now()
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).TransitionStatus(ctx, id, enums.WithdrawalStatusProcessing, enums.WithdrawalStatusCompleted, map[string]any{
			"gateway_transfer_id": transfer.ID,
			"completed_at":        now,
		})
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal status changed during settlement")
		}
		return s.emitOnce(ctx, tx, enums.EventWithdrawalCompleted, id, map[string]any{
			"writer_id":           request.WriterID.String(),
			"amount":              request.Amount.String(),
			"gateway_transfer_id": transfer.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncSettlement("withdrawal", "completed")
	}
	if s.logg != nil {
		ctx = s.logg.WithWriterID(ctx, request.WriterID.String())
		s.logg.Info(ctx, fmt.Sprintf("withdrawal settled: %s transfer %s", id, transfer.ID))
	}
	return s.Get(ctx, id)
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, reason *string) (*models.WithdrawalRequest, error) {
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{}
		if reason != nil {
			updates["admin_notes"] = *reason
		}
		moved, err := s.repo.WithTx(tx).TransitionStatus(ctx, id, enums.WithdrawalStatusPending, enums.WithdrawalStatusCancelled, updates)
		if err != nil {
			return err
		}
		if !moved {
			return s.statusConflict(ctx, tx, id, enums.WithdrawalStatusPending, MsgNotPending)
		}
		return s.emit(ctx, tx, enums.EventWithdrawalCancelled, id, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// createTransfer calls the gateway with bounded retries. Only transient
// gateway responses are retried; the idempotency key makes resubmission safe.
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

// recordFailure marks the request failed and restores the balance that was
// debited at approval, in one transaction.
func (s *service) recordFailure(ctx context.Context, request *models.WithdrawalRequest, cause error) error {
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).TransitionStatus(ctx, request.ID, enums.WithdrawalStatusProcessing, enums.WithdrawalStatusFailed, map[string]any{
			"failure_reason": cause.Error(),
		})
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal status changed during settlement")
		}
		if err := s.writerRepo.WithTx(tx).CreditBalance(ctx, request.WriterID, request.Amount); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventWithdrawalFailed, request.ID, map[string]any{
			"writer_id":      request.WriterID.String(),
			"amount":         request.Amount.String(),
			"failure_reason": cause.Error(),
		})
	})
}

// statusConflict re-reads a request after a lost transition race and reports
// the definitive state.
func (s *service) statusConflict(ctx context.Context, tx *gorm.DB, id uuid.UUID, expected enums.WithdrawalStatus, fallback string) error {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	switch current.Status {
	case enums.WithdrawalStatusApproved:
		if expected == enums.WithdrawalStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, MsgAlreadyApproved)
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, fallback)
	case enums.WithdrawalStatusProcessing:
		return pkgerrors.New(pkgerrors.CodeStateConflict, MsgSettlementInProgress)
	case enums.WithdrawalStatusCompleted:
		return pkgerrors.New(pkgerrors.CodeStateConflict, MsgAlreadyCompleted)
	case enums.WithdrawalStatusFailed:
		return pkgerrors.New(pkgerrors.CodeStateConflict, MsgAlreadyFailed)
	case enums.WithdrawalStatusCancelled:
		return pkgerrors.New(pkgerrors.CodeStateConflict, MsgAlreadyCancelled)
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
		AggregateType: enums.AggregateWithdrawal,
		AggregateID:   id,
		Data:          data,
		Version:       1,
	})
}

// emitOnce queues the event only if an identical one is not already pending,
// so a completed withdrawal can never notify twice.
func (s *service) emitOnce(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, id uuid.UUID, data map[string]any) error {
	if s.events == nil {
		return nil
	}
	return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateWithdrawal,
		AggregateID:   id,
		Data:          data,
		Version:       1,
	})
}
