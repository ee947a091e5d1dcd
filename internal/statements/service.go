package statements

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/internal/assignments"
	"github.com/clearwaterpub/royaltyops-backend/internal/commission"
	"github.com/clearwaterpub/royaltyops-backend/internal/writers"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
	"github.com/clearwaterpub/royaltyops-backend/pkg/metrics"
	"github.com/clearwaterpub/royaltyops-backend/pkg/money"
	"github.com/clearwaterpub/royaltyops-backend/pkg/outbox"
	"github.com/clearwaterpub/royaltyops-backend/pkg/pagination"
)

// Fixed messages for statement state conflicts. Two racing callers resolve to
// exactly one winner; the loser re-reads and reports one of these.
const (
	MsgNotProcessed      = "statement is not in processed state"
	MsgAlreadyPublished  = "statement is already published"
	MsgNotPublished      = "statement is not published"
	MsgPaymentInProgress = "statement payment is already processing"
	MsgAlreadyPaid       = "statement is already paid"
	MsgNoAssignments     = "statement has no assignments"
	MsgPaymentOnDelete   = "statement payment is processing"
)

// IngestRowInput is one parsed revenue line from a PRO statement file.
type IngestRowInput struct {
	WorkTitle     string
	Revenue       decimal.Decimal
	Performances  int
	WriterName    *string
	WriterIPI     *string
	PublisherName *string
	PublisherIPI  *string
	Platform      *string
	Territory     *string
	Collaborators []string
}

// IngestInput carries a parsed statement ready for persistence.
type IngestInput struct {
	ProType  enums.ProType
	Filename string
	Rows     []IngestRowInput
}

// WriterBreakdown is one writer's share of a statement's money.
type WriterBreakdown struct {
	WriterID   uuid.UUID
	WriterName string
	Gross      decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal
}

// PaymentSummary is the read-only money projection for one statement.
type PaymentSummary struct {
	StatementID     uuid.UUID
	Status          enums.StatementStatus
	PaymentStatus   enums.PaymentStatus
	TotalRevenue    decimal.Decimal
	TotalCommission decimal.Decimal
	TotalNet        decimal.Decimal
	PerWriter       []WriterBreakdown
}

// BulkResult reports the outcome of one statement inside a bulk payment run.
type BulkResult struct {
	StatementID uuid.UUID
	Err         error
}

// Service drives the statement lifecycle from ingestion through payment.
type Service interface {
	Exporter
	Ingest(ctx context.Context, input IngestInput) (*models.Statement, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Statement, error)
	Rows(ctx context.Context, id uuid.UUID) ([]models.StatementRow, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Statement, string, error)
	Publish(ctx context.Context, id uuid.UUID) (*models.Statement, error)
	ProcessPayment(ctx context.Context, id uuid.UUID) (*models.Statement, error)
	ProcessPayments(ctx context.Context, ids []uuid.UUID) []BulkResult
	PaymentSummary(ctx context.Context, id uuid.UUID) (*PaymentSummary, error)
	MarkIngestFailed(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	client     *db.Client
	repo       Repository
	assignRepo assignments.Repository
	writerRepo writers.Repository
	commission commission.Service
	events     *outbox.Service
	metrics    *metrics.SettlementMetrics
	logg       *logger.Logger
}

// NewService wires the statement lifecycle service.
func NewService(
	client *db.Client,
	repo Repository,
	assignRepo assignments.Repository,
	writerRepo writers.Repository,
	commissionSvc commission.Service,
	events *outbox.Service,
	settlementMetrics *metrics.SettlementMetrics,
	logg *logger.Logger,
) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "statement repository required")
	}
	if assignRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "assignment repository required")
	}
	if writerRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "writer repository required")
	}
	if commissionSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commission service required")
	}
	return &service{
		client:     client,
		repo:       repo,
		assignRepo: assignRepo,
		writerRepo: writerRepo,
		commission: commissionSvc,
		events:     events,
		metrics:    settlementMetrics,
		logg:       logg,
	}, nil
}

func (s *service) Ingest(ctx context.Context, input IngestInput) (*models.Statement, error) {
	if !input.ProType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid pro type")
	}
	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "filename is required")
	}
	if len(input.Rows) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "statement has no rows")
	}

	statement := &models.Statement{
		ID:         uuid.New(),
		ProType:    input.ProType,
		Filename:   filename,
		UploadedAt: time.Now(),
		Status:     enums.StatementStatusUploaded,
		ItemCount:  len(input.Rows),
		Rows:       make([]models.StatementRow, len(input.Rows)),
	}
	for i, row := range input.Rows {
		title := strings.TrimSpace(row.WorkTitle)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "row work title is required")
		}
		if row.Revenue.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "row revenue must not be negative")
		}
		statement.Rows[i] = models.StatementRow{
			ID:            uuid.New(),
			StatementID:   statement.ID,
			Position:      i,
			WorkTitle:     title,
			Revenue:       money.Round(row.Revenue),
			Performances:  row.Performances,
			WriterName:    row.WriterName,
			WriterIPI:     row.WriterIPI,
			PublisherName: row.PublisherName,
			PublisherIPI:  row.PublisherIPI,
			Platform:      row.Platform,
			Territory:     row.Territory,
			Collaborators: row.Collaborators,
		}
	}

	if err := s.repo.Create(ctx, statement); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithStatementID(ctx, statement.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"pro_type":  statement.ProType.String(),
			"row_count": statement.ItemCount,
		})
		s.logg.Info(logCtx, "statement ingested")
	}
	return statement, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Statement, error) {
	statement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "statement not found")
		}
		return nil, err
	}
	return statement, nil
}

func (s *service) Rows(ctx context.Context, id uuid.UUID) ([]models.StatementRow, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListRows(ctx, id)
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Statement, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	rows, err := s.repo.List(ctx, filter, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// Publish resolves the commission rate per writer, bakes the computed
// amounts onto every assignment, fixes the statement totals, and moves
// PROCESSED to PUBLISHED. The totals never change afterwards, even when
// commission settings do.
func (s *service) Publish(ctx context.Context, id uuid.UUID) (*models.Statement, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	publishedAt := time.Now()
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.TransitionStatusTx(ctx, tx, id, enums.StatementStatusProcessed, enums.StatementStatusPublished)
		if err != nil {
			return err
		}
		if !moved {
			return s.publishConflict(ctx, tx, id)
		}

		rows, err := s.repo.WithTx(tx).ListRows(ctx, id)
		if err != nil {
			return err
		}
		revenueByRow := make(map[uuid.UUID]decimal.Decimal, len(rows))
		totalRevenue := decimal.Zero
		for _, row := range rows {
			revenueByRow[row.ID] = row.Revenue
			totalRevenue = totalRevenue.Add(row.Revenue)
		}

		assignRepo := s.assignRepo.WithTx(tx)
		assigned, err := assignRepo.ListByStatement(ctx, id)
		if err != nil {
			return err
		}
		if len(assigned) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, MsgNoAssignments)
		}

		writerByID, err := s.loadWriters(ctx, tx, assigned)
		if err != nil {
			return err
		}

		totalCommission := decimal.Zero
		totalNet := decimal.Zero
		for i := range assigned {
			assignment := &assigned[i]
			gross := money.Share(revenueByRow[assignment.RowID], assignment.SplitPercentage)

			writer := writerByID[assignment.WriterID]
			rate, err := s.commission.ResolveRate(ctx, writer, publishedAt)
			if err != nil {
				return err
			}

			commissionAmount, net := commission.Apply(gross, rate)
			assignment.CommissionRate = &rate
			assignment.CommissionAmount = &commissionAmount
			assignment.NetAmount = &net
			if err := assignRepo.UpdateComputedAmounts(ctx, assignment); err != nil {
				return err
			}

			totalCommission = totalCommission.Add(commissionAmount)
			totalNet = totalNet.Add(net)
		}

		if err := s.repo.SetTotalsTx(ctx, tx, id, Totals{
			TotalRevenue:    money.Round(totalRevenue),
			TotalCommission: money.Round(totalCommission),
			TotalNet:        money.Round(totalNet),
		}); err != nil {
			return err
		}

		return s.emit(ctx, tx, enums.EventStatementPublished, id, map[string]any{
			"totalRevenue":    totalRevenue.String(),
			"totalCommission": totalCommission.String(),
			"totalNet":        totalNet.String(),
		})
	})
	if err != nil {
		s.metrics.IncPublish(failureOutcome(err))
		return nil, err
	}

	s.metrics.IncPublish("success")
	if s.logg != nil {
		s.logg.Info(s.logg.WithStatementID(ctx, id.String()), "statement published")
	}
	return s.Get(ctx, id)
}

// ProcessPayment credits every assigned writer's balance with their baked net
// share and flips the payment status to PAID. The credits and the status flip
// commit together or not at all; this is the single place writer balances are
// credited.
func (s *service) ProcessPayment(ctx context.Context, id uuid.UUID) (*models.Statement, error) {
	statement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if statement.Status != enums.StatementStatusPublished {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, MsgNotPublished)
	}

	processedAt := time.Now()
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.TransitionPaymentStatusTx(ctx, tx, id, enums.PaymentStatusUnpaid, enums.PaymentStatusPending)
		if err != nil {
			return err
		}
		if !moved {
			return s.paymentConflict(ctx, tx, id)
		}

		assigned, err := s.assignRepo.WithTx(tx).ListByStatement(ctx, id)
		if err != nil {
			return err
		}
		if len(assigned) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, MsgNoAssignments)
		}

		credits := make(map[uuid.UUID]decimal.Decimal)
		for _, assignment := range assigned {
			if assignment.NetAmount == nil {
				return pkgerrors.New(pkgerrors.CodeInternal, "assignment missing computed net amount")
			}
			credits[assignment.WriterID] = credits[assignment.WriterID].Add(*assignment.NetAmount)
		}

		writerRepo := s.writerRepo.WithTx(tx)
		payload := make(map[string]any, len(credits))
		for writerID, amount := range credits {
			if err := writerRepo.CreditBalance(ctx, writerID, amount); err != nil {
				return err
			}
			payload[writerID.String()] = amount.String()
		}

		if err := s.repo.MarkPaymentProcessedTx(ctx, tx, id, processedAt); err != nil {
			return err
		}

		return s.emitOnce(ctx, tx, enums.EventStatementPaid, id, map[string]any{
			"credits":     payload,
			"processedAt": processedAt,
		})
	})
	if err != nil {
		s.metrics.IncPayment(failureOutcome(err))
		return nil, err
	}

	s.metrics.IncPayment("success")
	if s.logg != nil {
		s.logg.Info(s.logg.WithStatementID(ctx, id.String()), "statement payment processed")
	}
	return s.Get(ctx, id)
}

// ProcessPayments runs each statement as an independent atomic operation;
// one failure never rolls back or blocks the others.
func (s *service) ProcessPayments(ctx context.Context, ids []uuid.UUID) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		_, err := s.ProcessPayment(ctx, id)
		results = append(results, BulkResult{StatementID: id, Err: err})
	}
	return results
}

func (s *service) PaymentSummary(ctx context.Context, id uuid.UUID) (*PaymentSummary, error) {
	statement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	assigned, err := s.assignRepo.ListByStatement(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListRows(ctx, id)
	if err != nil {
		return nil, err
	}
	revenueByRow := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		revenueByRow[row.ID] = row.Revenue
	}

	type bucket struct {
		gross      decimal.Decimal
		commission decimal.Decimal
		net        decimal.Decimal
	}
	buckets := make(map[uuid.UUID]*bucket)
	var order []uuid.UUID
	for _, assignment := range assigned {
		b, ok := buckets[assignment.WriterID]
		if !ok {
			b = &bucket{}
			buckets[assignment.WriterID] = b
			order = append(order, assignment.WriterID)
		}
		b.gross = b.gross.Add(money.Share(revenueByRow[assignment.RowID], assignment.SplitPercentage))
		if assignment.CommissionAmount != nil {
			b.commission = b.commission.Add(*assignment.CommissionAmount)
		}
		if assignment.NetAmount != nil {
			b.net = b.net.Add(*assignment.NetAmount)
		}
	}

	writerRows, err := s.writerRepo.ListByIDs(ctx, order)
	if err != nil {
		return nil, err
	}
	nameByID := make(map[uuid.UUID]string, len(writerRows))
	for _, writer := range writerRows {
		nameByID[writer.ID] = writer.FullName()
	}

	summary := &PaymentSummary{
		StatementID:     statement.ID,
		Status:          statement.Status,
		PaymentStatus:   statement.PaymentStatus,
		TotalRevenue:    statement.TotalRevenue,
		TotalCommission: statement.TotalCommission,
		TotalNet:        statement.TotalNet,
	}
	for _, writerID := range order {
		b := buckets[writerID]
		summary.PerWriter = append(summary.PerWriter, WriterBreakdown{
			WriterID:   writerID,
			WriterName: nameByID[writerID],
			Gross:      b.gross,
			Commission: b.commission,
			Net:        b.net,
		})
	}
	return summary, nil
}

// MarkIngestFailed moves an UPLOADED statement to ERROR when upstream parsing
// turned out to be bad. ERROR statements are read-only.
func (s *service) MarkIngestFailed(ctx context.Context, id uuid.UUID) error {
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.TransitionStatusTx(ctx, tx, id, enums.StatementStatusUploaded, enums.StatementStatusError)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "statement is not in uploaded state")
		}
		return nil
	})
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	statement, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if statement.PaymentStatus == enums.PaymentStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, MsgPaymentOnDelete)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithStatementID(ctx, id.String()), "statement deleted")
	}
	return nil
}

// publishConflict re-reads the status after a lost publish race and reports
// the definitive state.
func (s *service) publishConflict(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	current, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == enums.StatementStatusPublished {
		return pkgerrors.New(pkgerrors.CodeStateConflict, MsgAlreadyPublished)
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, MsgNotProcessed)
}

func (s *service) paymentConflict(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	current, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		return err
	}
	switch current.PaymentStatus {
	case enums.PaymentStatusPending:
		return pkgerrors.New(pkgerrors.CodeStateConflict, MsgPaymentInProgress)
	case enums.PaymentStatusPaid:
		return pkgerrors.New(pkgerrors.CodeStateConflict, MsgAlreadyPaid)
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "statement payment status changed concurrently")
	}
}

func (s *service) loadWriters(ctx context.Context, tx *gorm.DB, assigned []models.Assignment) (map[uuid.UUID]*models.Writer, error) {
	seen := make(map[uuid.UUID]bool, len(assigned))
	var ids []uuid.UUID
	for _, assignment := range assigned {
		if !seen[assignment.WriterID] {
			seen[assignment.WriterID] = true
			ids = append(ids, assignment.WriterID)
		}
	}
	rows, err := s.writerRepo.WithTx(tx).ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*models.Writer, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	for _, id := range ids {
		if byID[id] == nil {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "assignment references unknown writer")
		}
	}
	return byID, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, id uuid.UUID, data map[string]any) error {
	if s.events == nil {
		return nil
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateStatement,
		AggregateID:   id,
		Data:          data,
		Version:       1,
	})
}

// failureOutcome buckets an operation error for the metrics label: lost
// status races count as conflicts, everything else as errors.
func failureOutcome(err error) string {
	if coded := pkgerrors.As(err); coded != nil && coded.Code() == pkgerrors.CodeStateConflict {
		return "conflict"
	}
	return "error"
}

// emitOnce is for terminal events that must never be queued twice for the
// same statement, such as the paid event consumers pay notifications from.
func (s *service) emitOnce(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, id uuid.UUID, data map[string]any) error {
	if s.events == nil {
		return nil
	}
	return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateStatement,
		AggregateID:   id,
		Data:          data,
		Version:       1,
	})
}
