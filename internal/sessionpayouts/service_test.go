package sessionpayouts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/internal/writers"
	"github.com/clearwaterpub/royaltyops-backend/pkg/config"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/gateway"
)

func setupSessionPayoutsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS writers (
  id TEXT PRIMARY KEY,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'writer',
  writer_ipi_number TEXT,
  publisher_ipi_number TEXT,
  commission_override_rate TEXT,
  gateway_onboarding_complete INTEGER NOT NULL DEFAULT 0,
  gateway_account_id TEXT,
  balance NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS session_payout_requests (
  id TEXT PRIMARY KEY,
  work_order_number TEXT NOT NULL,
  submitted_by TEXT NOT NULL,
  payout_amount NUMERIC NOT NULL,
  studio_cost NUMERIC NOT NULL,
  engineer_fee NUMERIC NOT NULL,
  deposit_paid NUMERIC NOT NULL DEFAULT 0,
  total_session_cost NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  reviewed_at DATETIME,
  paid_at DATETIME,
  gateway_transfer_id TEXT,
  rejection_reason TEXT,
  failure_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	for _, table := range []string{"session_payout_requests", "writers"} {
		require.NoError(t, conn.Exec("DELETE FROM "+table).Error)
	}
	return conn
}

type stubGateway struct {
	calls    int
	failures []error
	lastReq  gateway.TransferRequest
}

func (s *stubGateway) CreateTransfer(_ context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	s.calls++
	s.lastReq = req
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	return &gateway.Transfer{
		ID:        "tr_session",
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Currency:  "usd",
		Status:    "paid",
	}, nil
}

type payoutsEnv struct {
	conn       *gorm.DB
	svc        Service
	writerRepo writers.Repository
	transfers  *stubGateway
}

func setupPayoutsEnv(t *testing.T) *payoutsEnv {
	t.Helper()

	conn := setupSessionPayoutsTestDB(t)
	client := db.NewFromConn(conn)
	writerRepo := writers.NewRepository(conn)
	transfers := &stubGateway{}
	settlement := config.SettlementConfig{GatewayMaxAttempts: 3, GatewayRetryDelay: time.Millisecond}

	svc, err := NewService(client, NewRepository(conn), writerRepo, transfers, settlement, nil, nil, nil)
	require.NoError(t, err)

	return &payoutsEnv{conn: conn, svc: svc, writerRepo: writerRepo, transfers: transfers}
}

func seedSubmitter(t *testing.T, env *payoutsEnv, onboarded bool) *models.Writer {
	t.Helper()

	writer := &models.Writer{
		ID:                        uuid.New(),
		FirstName:                 "Marcus",
		LastName:                  "Okafor",
		GatewayOnboardingComplete: onboarded,
	}
	if onboarded {
		accountID := "acct_" + uuid.NewString()[:8]
		writer.GatewayAccountID = &accountID
	}
	require.NoError(t, env.writerRepo.Create(context.Background(), writer))
	return writer
}

func seedPendingPayout(t *testing.T, env *payoutsEnv, submitter *models.Writer) *models.SessionPayoutRequest {
	t.Helper()

	request, err := env.svc.Create(context.Background(), CreateInput{
		WorkOrderNumber: "WO-2041",
		SubmittedBy:     submitter.ID,
		StudioCost:      decimal.RequireFromString("800"),
		EngineerFee:     decimal.RequireFromString("350"),
		DepositPaid:     decimal.RequireFromString("150"),
	})
	require.NoError(t, err)
	return request
}

func TestCreateComputesPayoutFromSessionCosts(t *testing.T) {
	env := setupPayoutsEnv(t)
	submitter := seedSubmitter(t, env, true)

	request := seedPendingPayout(t, env, submitter)
	require.Equal(t, enums.SessionPayoutStatusPending, request.Status)
	require.True(t, request.TotalSessionCost.Equal(decimal.RequireFromString("1150")))
	require.True(t, request.PayoutAmount.Equal(decimal.RequireFromString("1000")))
}

func TestCreateRejectsNonPositivePayout(t *testing.T) {
	env := setupPayoutsEnv(t)
	submitter := seedSubmitter(t, env, true)

	_, err := env.svc.Create(context.Background(), CreateInput{
		WorkOrderNumber: "WO-2042",
		SubmittedBy:     submitter.ID,
		StudioCost:      decimal.RequireFromString("100"),
		EngineerFee:     decimal.RequireFromString("50"),
		DepositPaid:     decimal.RequireFromString("150"),
	})
	require.Error(t, err)
}

func TestApproveCapturesReviewedAt(t *testing.T) {
	env := setupPayoutsEnv(t)
	ctx := context.Background()
	submitter := seedSubmitter(t, env, true)
	request := seedPendingPayout(t, env, submitter)

	approved, err := env.svc.Approve(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SessionPayoutStatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedAt)

	_, err = env.svc.Approve(ctx, request.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgAlreadyApproved))
}

func TestRejectIsTerminal(t *testing.T) {
	env := setupPayoutsEnv(t)
	ctx := context.Background()
	submitter := seedSubmitter(t, env, true)
	request := seedPendingPayout(t, env, submitter)

	rejected, err := env.svc.Reject(ctx, request.ID, "duplicate work order")
	require.NoError(t, err)
	require.Equal(t, enums.SessionPayoutStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	require.Equal(t, "duplicate work order", *rejected.RejectionReason)

	_, err = env.svc.Approve(ctx, request.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgAlreadyRejected))

	_, err = env.svc.ProcessPayment(ctx, request.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgAlreadyRejected))
}

func TestRejectRequiresReason(t *testing.T) {
	env := setupPayoutsEnv(t)
	submitter := seedSubmitter(t, env, true)
	request := seedPendingPayout(t, env, submitter)

	_, err := env.svc.Reject(context.Background(), request.ID, "  ")
	require.Error(t, err)
}

func TestProcessPaymentSettlesToSubmitter(t *testing.T) {
	env := setupPayoutsEnv(t)
	ctx := context.Background()
	submitter := seedSubmitter(t, env, true)
	request := seedPendingPayout(t, env, submitter)

	_, err := env.svc.Approve(ctx, request.ID)
	require.NoError(t, err)

	paid, err := env.svc.ProcessPayment(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SessionPayoutStatusCompleted, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.GatewayTransferID)
	require.Equal(t, "tr_session", *paid.GatewayTransferID)

	require.Equal(t, 1, env.transfers.calls)
	require.Equal(t, *submitter.GatewayAccountID, env.transfers.lastReq.AccountID)
	require.True(t, env.transfers.lastReq.Amount.Equal(request.PayoutAmount))
	require.Equal(t, "session-payout-"+request.ID.String(), env.transfers.lastReq.IdempotencyKey)

	balance, err := env.writerRepo.FindByID(ctx, submitter.ID)
	require.NoError(t, err)
	require.True(t, balance.Balance.IsZero(), "session payouts never touch the writer balance")
}

func TestProcessPaymentRequiresOnboarding(t *testing.T) {
	env := setupPayoutsEnv(t)
	ctx := context.Background()
	submitter := seedSubmitter(t, env, false)
	request := seedPendingPayout(t, env, submitter)

	_, err := env.svc.Approve(ctx, request.ID)
	require.NoError(t, err)

	_, err = env.svc.ProcessPayment(ctx, request.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgOnboardingIncomplete))
	require.Zero(t, env.transfers.calls)
}

func TestProcessPaymentRequiresApproval(t *testing.T) {
	env := setupPayoutsEnv(t)
	submitter := seedSubmitter(t, env, true)
	request := seedPendingPayout(t, env, submitter)

	_, err := env.svc.ProcessPayment(context.Background(), request.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgNotApproved))
	require.Zero(t, env.transfers.calls)
}

func TestProcessPaymentFailureKeepsRequestApproved(t *testing.T) {
	env := setupPayoutsEnv(t)
	ctx := context.Background()
	submitter := seedSubmitter(t, env, true)
	request := seedPendingPayout(t, env, submitter)

	_, err := env.svc.Approve(ctx, request.ID)
	require.NoError(t, err)

	env.transfers.failures = []error{&gateway.TransferError{StatusCode: 400, Body: "account frozen"}}

	_, err = env.svc.ProcessPayment(ctx, request.ID)
	require.Error(t, err)

	current, err := env.svc.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SessionPayoutStatusApproved, current.Status, "failure leaves the request retryable by an admin")
	require.NotNil(t, current.FailureReason)
	require.Contains(t, *current.FailureReason, "account frozen")
	require.Nil(t, current.PaidAt)

	env.transfers.failures = nil
	paid, err := env.svc.ProcessPayment(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SessionPayoutStatusCompleted, paid.Status)
	require.Nil(t, paid.FailureReason, "completing clears the stale failure reason")
}

func TestProcessPaymentRetriesTransientErrors(t *testing.T) {
	env := setupPayoutsEnv(t)
	ctx := context.Background()
	submitter := seedSubmitter(t, env, true)
	request := seedPendingPayout(t, env, submitter)

	_, err := env.svc.Approve(ctx, request.ID)
	require.NoError(t, err)

	env.transfers.failures = []error{
		&gateway.TransferError{StatusCode: 502, Body: "bad gateway"},
	}

	paid, err := env.svc.ProcessPayment(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SessionPayoutStatusCompleted, paid.Status)
	require.Equal(t, 2, env.transfers.calls)
}
