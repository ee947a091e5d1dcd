package withdrawals

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

func setupWithdrawalsTestDB(t *testing.T) *gorm.DB {
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
		`CREATE TABLE IF NOT EXISTS withdrawal_requests (
  id TEXT PRIMARY KEY,
  writer_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  requested_at DATETIME NOT NULL,
  completed_at DATETIME,
  gateway_transfer_id TEXT,
  admin_notes TEXT,
  failure_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	for _, table := range []string{"withdrawal_requests", "writers"} {
		require.NoError(t, conn.Exec("DELETE FROM "+table).Error)
	}
	return conn
}

type fakeGateway struct {
	calls    int
	failures []error
	lastReq  gateway.TransferRequest
}

func (f *fakeGateway) CreateTransfer(_ context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	f.calls++
	f.lastReq = req
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	return &gateway.Transfer{
		ID:        "tr_test",
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Currency:  "usd",
		Status:    "paid",
	}, nil
}

type withdrawalsEnv struct {
	conn       *gorm.DB
	svc        Service
	writerRepo writers.Repository
	transfers  *fakeGateway
}

func setupWithdrawalsEnv(t *testing.T) *withdrawalsEnv {
	t.Helper()

	conn := setupWithdrawalsTestDB(t)
	client := db.NewFromConn(conn)
	writerRepo := writers.NewRepository(conn)
	transfers := &fakeGateway{}
	settlement := config.SettlementConfig{GatewayMaxAttempts: 3, GatewayRetryDelay: time.Millisecond}

	svc, err := NewService(client, NewRepository(conn), writerRepo, transfers, settlement, nil, nil, nil)
	require.NoError(t, err)

	return &withdrawalsEnv{conn: conn, svc: svc, writerRepo: writerRepo, transfers: transfers}
}

func seedPayableWriter(t *testing.T, env *withdrawalsEnv, balance string) *models.Writer {
	t.Helper()

	accountID := "acct_" + uuid.NewString()[:8]
	writer := &models.Writer{
		ID:                        uuid.New(),
		FirstName:                 "Nina",
		LastName:                  "Valdez",
		Balance:                   decimal.RequireFromString(balance),
		GatewayOnboardingComplete: true,
		GatewayAccountID:          &accountID,
	}
	require.NoError(t, env.writerRepo.Create(context.Background(), writer))
	return writer
}

func TestApproveDebitsWriterBalance(t *testing.T) {
	env := setupWithdrawalsEnv(t)
	ctx := context.Background()
	writer := seedPayableWriter(t, env, "100")

	request, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("40")})
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalStatusPending, request.Status)

	notes := "verified tax form"
	approved, err := env.svc.Approve(ctx, request.ID, &notes)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalStatusApproved, approved.Status)
	require.NotNil(t, approved.AdminNotes)
	require.Equal(t, notes, *approved.AdminNotes)

	updated, err := env.writerRepo.FindByID(ctx, writer.ID)
	require.NoError(t, err)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("60")),
		"expected balance 60, got %s", updated.Balance)
}

func TestApproveRequiresGatewayOnboarding(t *testing.T) {
	env := setupWithdrawalsEnv(t)
	ctx := context.Background()
	writer := seedPayableWriter(t, env, "100")
	require.NoError(t, env.conn.Model(&models.Writer{}).
		Where("id = ?", writer.ID).
		Update("gateway_onboarding_complete", false).Error)

	request, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("25")})
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, request.ID, nil)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgOnboardingIncomplete))

	current, err := env.svc.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalStatusPending, current.Status)

	updated, err := env.writerRepo.FindByID(ctx, writer.ID)
	require.NoError(t, err)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("100")))
}

func TestApproveTwiceLosesRace(t *testing.T) {
	env := setupWithdrawalsEnv(t)
	ctx := context.Background()
	writer := seedPayableWriter(t, env, "100")

	request, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("30")})
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, request.ID, nil)
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, request.ID, nil)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgAlreadyApproved))

	updated, err := env.writerRepo.FindByID(ctx, writer.ID)
	require.NoError(t, err)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("70")), "balance must be debited exactly once")
}

func TestApproveRollsBackWhenBalanceExhausted(t *testing.T) {
	env := setupWithdrawalsEnv(t)
	ctx := context.Background()
	writer := seedPayableWriter(t, env, "100")

	first, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("60")})
	require.NoError(t, err)
	second, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("60")})
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, first.ID, nil)
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, second.ID, nil)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgInsufficientBalance))

	current, err := env.svc.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalStatusPending, current.Status, "failed approval must not leave the request approved")

	updated, err := env.writerRepo.FindByID(ctx, writer.ID)
	require.NoError(t, err)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("40")))
}

func TestSettleCompletesTransfer(t *testing.T) {
	env := setupWithdrawalsEnv(t)
	ctx := context.Background()
	writer := seedPayableWriter(t, env, "100")

	request, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("50")})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, request.ID, nil)
	require.NoError(t, err)

	settled, err := env.svc.Settle(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalStatusCompleted, settled.Status)
	require.NotNil(t, settled.GatewayTransferID)
	require.Equal(t, "tr_test", *settled.GatewayTransferID)
	require.NotNil(t, settled.CompletedAt)

	require.Equal(t, 1, env.transfers.calls)
	require.Equal(t, *writer.GatewayAccountID, env.transfers.lastReq.AccountID)
	require.Equal(t, "withdrawal-"+request.ID.String(), env.transfers.lastReq.IdempotencyKey)
}

func TestSettleFailureRestoresBalance(t *testing.T) {
	env := setupWithdrawalsEnv(t)
	ctx := context.Background()
	writer := seedPayableWriter(t, env, "100")

	request, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("50")})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, request.ID, nil)
	require.NoError(t, err)

	env.transfers.failures = []error{&gateway.TransferError{StatusCode: 400, Body: "account disabled"}}

	_, err = env.svc.Settle(ctx, request.ID)
	require.Error(t, err)
	require.Equal(t, 1, env.transfers.calls, "non-retryable failures must not be retried")

	current, err := env.svc.Get(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalStatusFailed, current.Status)
	require.NotNil(t, current.FailureReason)
	require.Contains(t, *current.FailureReason, "account disabled")

	updated, err := env.writerRepo.FindByID(ctx, writer.ID)
	require.NoError(t, err)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("100")), "failed settlement must restore the debit")
}

func TestSettleRetriesTransientGatewayErrors(t *testing.T) {
	env := setupWithdrawalsEnv(t)
	ctx := context.Background()
	writer := seedPayableWriter(t, env, "100")

	request, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("20")})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, request.ID, nil)
	require.NoError(t, err)

	env.transfers.failures = []error{
		&gateway.TransferError{StatusCode: 503, Body: "upstream timeout"},
		&gateway.TransferError{StatusCode: 429, Body: "rate limited"},
	}

	settled, err := env.svc.Settle(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalStatusCompleted, settled.Status)
	require.Equal(t, 3, env.transfers.calls)
}

func TestSettleRequiresApprovedState(t *testing.T) {
	env := setupWithdrawalsEnv(t)
	ctx := context.Background()
	writer := seedPayableWriter(t, env, "100")

	request, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("20")})
	require.NoError(t, err)

	_, err = env.svc.Settle(ctx, request.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgNotApproved))
	require.Zero(t, env.transfers.calls)
}

func TestCancelPendingRequest(t *testing.T) {
	env := setupWithdrawalsEnv(t)
	ctx := context.Background()
	writer := seedPayableWriter(t, env, "100")

	request, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("20")})
	require.NoError(t, err)

	reason := "requested by writer"
	cancelled, err := env.svc.Cancel(ctx, request.ID, &reason)
	require.NoError(t, err)
	require.Equal(t, enums.WithdrawalStatusCancelled, cancelled.Status)

	_, err = env.svc.Cancel(ctx, request.ID, nil)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgAlreadyCancelled))

	updated, err := env.writerRepo.FindByID(ctx, writer.ID)
	require.NoError(t, err)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("100")), "cancelling before approval never touches the balance")
}

func TestCreateValidatesAmount(t *testing.T) {
	env := setupWithdrawalsEnv(t)
	ctx := context.Background()
	writer := seedPayableWriter(t, env, "10")

	_, err := env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.Zero})
	require.Error(t, err)

	_, err = env.svc.Create(ctx, CreateInput{WriterID: writer.ID, Amount: decimal.RequireFromString("10.01")})
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgInsufficientBalance))
}
