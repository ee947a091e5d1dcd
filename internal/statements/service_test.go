package statements

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/internal/assignments"
	"github.com/clearwaterpub/royaltyops-backend/internal/commission"
	"github.com/clearwaterpub/royaltyops-backend/internal/writers"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
)

func setupStatementsTestDB(t *testing.T) *gorm.DB {
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
		`CREATE TABLE IF NOT EXISTS commission_settings (
  id TEXT PRIMARY KEY,
  commission_rate NUMERIC NOT NULL,
  recipient_name TEXT NOT NULL,
  description TEXT,
  effective_date DATETIME NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS statements (
  id TEXT PRIMARY KEY,
  pro_type TEXT NOT NULL,
  filename TEXT NOT NULL,
  uploaded_at DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'uploaded',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  total_revenue NUMERIC NOT NULL DEFAULT 0,
  total_net NUMERIC NOT NULL DEFAULT 0,
  total_commission NUMERIC NOT NULL DEFAULT 0,
  item_count INTEGER NOT NULL DEFAULT 0,
  payment_processed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS statement_rows (
  id TEXT PRIMARY KEY,
  statement_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  work_title TEXT NOT NULL,
  revenue NUMERIC NOT NULL,
  performances INTEGER NOT NULL DEFAULT 0,
  writer_name TEXT,
  writer_ipi TEXT,
  publisher_name TEXT,
  publisher_ipi TEXT,
  platform TEXT,
  territory TEXT,
  collaborators TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  statement_id TEXT NOT NULL,
  row_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  writer_id TEXT NOT NULL,
  writer_ipi_number TEXT,
  publisher_ipi_number TEXT,
  split_percentage NUMERIC NOT NULL,
  commission_rate NUMERIC,
  commission_amount NUMERIC,
  net_amount NUMERIC,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	for _, table := range []string{"assignments", "statement_rows", "statements", "commission_settings", "writers"} {
		require.NoError(t, conn.Exec("DELETE FROM "+table).Error)
	}
	return conn
}

type testEnv struct {
	conn       *gorm.DB
	client     *db.Client
	svc        Service
	assignSvc  assignments.Service
	commission commission.Service
	writerRepo writers.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn := setupStatementsTestDB(t)
	client := db.NewFromConn(conn)

	statementRepo := NewRepository(conn)
	assignRepo := assignments.NewRepository(conn)
	writerRepo := writers.NewRepository(conn)
	commissionRepo := commission.NewRepository(conn)

	commissionSvc, err := commission.NewService(client, commissionRepo, nil)
	require.NoError(t, err)

	assignSvc, err := assignments.NewService(client, assignRepo, statementRepo, nil)
	require.NoError(t, err)

	svc, err := NewService(client, statementRepo, assignRepo, writerRepo, commissionSvc, nil, nil, nil)
	require.NoError(t, err)

	return &testEnv{
		conn:       conn,
		client:     client,
		svc:        svc,
		assignSvc:  assignSvc,
		commission: commissionSvc,
		writerRepo: writerRepo,
	}
}

func (e *testEnv) createWriter(t *testing.T, first, last string, override *decimal.Decimal) *models.Writer {
	t.Helper()
	writer := &models.Writer{
		ID:                     uuid.New(),
		FirstName:              first,
		LastName:               last,
		CommissionOverrideRate: override,
	}
	require.NoError(t, e.conn.Create(writer).Error)
	return writer
}

func (e *testEnv) setCommissionRate(t *testing.T, rate string) {
	t.Helper()
	_, err := e.commission.UpdateRate(context.Background(), commission.UpdateRateInput{
		CommissionRate: decimal.RequireFromString(rate),
		RecipientName:  "Clearwater Publishing",
	})
	require.NoError(t, err)
}

func (e *testEnv) ingestSingleRow(t *testing.T, revenue string) (*models.Statement, models.StatementRow) {
	t.Helper()
	statement, err := e.svc.Ingest(context.Background(), IngestInput{
		ProType:  enums.ProTypeBMI,
		Filename: "bmi_q1.csv",
		Rows: []IngestRowInput{
			{WorkTitle: "Midnight Dreams", Revenue: decimal.RequireFromString(revenue), Performances: 1200},
		},
	})
	require.NoError(t, err)

	rows, err := e.svc.Rows(context.Background(), statement.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return statement, rows[0]
}

func (e *testEnv) commitFullAssignment(t *testing.T, statement *models.Statement, row models.StatementRow, writerID uuid.UUID) {
	t.Helper()
	ledger := assignments.NewLedger(statement, []models.StatementRow{row})
	key := row.Key(statement.ProType)
	require.NoError(t, ledger.AssignAllTo(writerID, "", []string{key}))
	_, err := e.assignSvc.Commit(context.Background(), ledger)
	require.NoError(t, err)
}

func TestPublishAndProcessPaymentCreditsWriter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	env.setCommissionRate(t, "10")
	statement, row := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, statement, row, writer.ID)

	published, err := env.svc.Publish(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, enums.StatementStatusPublished, published.Status)
	require.True(t, published.TotalRevenue.Equal(decimal.RequireFromString("100")), "revenue %s", published.TotalRevenue)
	require.True(t, published.TotalCommission.Equal(decimal.RequireFromString("10")), "commission %s", published.TotalCommission)
	require.True(t, published.TotalNet.Equal(decimal.RequireFromString("90")), "net %s", published.TotalNet)

	paid, err := env.svc.ProcessPayment(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPaid, paid.PaymentStatus)
	require.NotNil(t, paid.PaymentProcessedAt)

	credited, err := env.writerRepo.FindByID(ctx, writer.ID)
	require.NoError(t, err)
	require.True(t, credited.Balance.Equal(decimal.RequireFromString("90")), "balance %s", credited.Balance)
}

func TestProcessPaymentIsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	env.setCommissionRate(t, "10")
	statement, row := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, statement, row, writer.ID)

	_, err := env.svc.Publish(ctx, statement.ID)
	require.NoError(t, err)
	_, err = env.svc.ProcessPayment(ctx, statement.ID)
	require.NoError(t, err)

	_, err = env.svc.ProcessPayment(ctx, statement.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgAlreadyPaid), "got %v", err)

	credited, err := env.writerRepo.FindByID(ctx, writer.ID)
	require.NoError(t, err)
	require.True(t, credited.Balance.Equal(decimal.RequireFromString("90")), "duplicate payment must not re-credit, balance %s", credited.Balance)
}

func TestPublishRequiresProcessedState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.setCommissionRate(t, "10")
	statement, _ := env.ingestSingleRow(t, "100.00")

	_, err := env.svc.Publish(ctx, statement.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgNotProcessed), "got %v", err)
}

func TestPublishTwiceReportsAlreadyPublished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	env.setCommissionRate(t, "10")
	statement, row := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, statement, row, writer.ID)

	_, err := env.svc.Publish(ctx, statement.ID)
	require.NoError(t, err)

	_, err = env.svc.Publish(ctx, statement.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgAlreadyPublished), "got %v", err)
}

func TestProcessPaymentRequiresPublish(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	env.setCommissionRate(t, "10")
	statement, row := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, statement, row, writer.ID)

	_, err := env.svc.ProcessPayment(ctx, statement.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, MsgNotPublished), "got %v", err)
}

func TestPublishUsesWriterCommissionOverride(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	override := decimal.RequireFromString("20")
	writer := env.createWriter(t, "Omar", "Bell", &override)
	env.setCommissionRate(t, "10")
	statement, row := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, statement, row, writer.ID)

	published, err := env.svc.Publish(ctx, statement.ID)
	require.NoError(t, err)
	require.True(t, published.TotalCommission.Equal(decimal.RequireFromString("20")), "commission %s", published.TotalCommission)
	require.True(t, published.TotalNet.Equal(decimal.RequireFromString("80")), "net %s", published.TotalNet)
}

func TestPublishWithoutCommissionRateFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	statement, row := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, statement, row, writer.ID)

	_, err := env.svc.Publish(ctx, statement.ID)
	require.Error(t, err)
	require.True(t, pkgerrors.HasMessage(err, commission.MsgNoActiveRate), "got %v", err)

	// The failed publish must not leave the statement published.
	current, getErr := env.svc.Get(ctx, statement.ID)
	require.NoError(t, getErr)
	require.Equal(t, enums.StatementStatusProcessed, current.Status)
}

func TestPaymentSummaryBreaksDownPerWriter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.createWriter(t, "Wendy", "Arcos", nil)
	second := env.createWriter(t, "Omar", "Bell", nil)
	env.setCommissionRate(t, "10")

	statement, err := env.svc.Ingest(ctx, IngestInput{
		ProType:  enums.ProTypeBMI,
		Filename: "bmi_q2.csv",
		Rows: []IngestRowInput{
			{WorkTitle: "Midnight Dreams", Revenue: decimal.RequireFromString("100.00")},
		},
	})
	require.NoError(t, err)
	rows, err := env.svc.Rows(ctx, statement.ID)
	require.NoError(t, err)

	ledger := assignments.NewLedger(statement, rows)
	key := rows[0].Key(statement.ProType)
	require.NoError(t, ledger.Stage(key, []assignments.StagedAssignment{
		{WriterID: first.ID, SplitPercentage: decimal.RequireFromString("60")},
		{WriterID: second.ID, SplitPercentage: decimal.RequireFromString("40")},
	}))
	_, err = env.assignSvc.Commit(ctx, ledger)
	require.NoError(t, err)

	_, err = env.svc.Publish(ctx, statement.ID)
	require.NoError(t, err)

	summary, err := env.svc.PaymentSummary(ctx, statement.ID)
	require.NoError(t, err)
	require.Len(t, summary.PerWriter, 2)

	byName := map[string]WriterBreakdown{}
	for _, breakdown := range summary.PerWriter {
		byName[breakdown.WriterName] = breakdown
	}
	require.True(t, byName["Wendy Arcos"].Gross.Equal(decimal.RequireFromString("60")))
	require.True(t, byName["Wendy Arcos"].Net.Equal(decimal.RequireFromString("54")))
	require.True(t, byName["Omar Bell"].Gross.Equal(decimal.RequireFromString("40")))
	require.True(t, byName["Omar Bell"].Net.Equal(decimal.RequireFromString("36")))
}

func TestProcessPaymentsBulkIsIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	env.setCommissionRate(t, "10")

	good, goodRow := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, good, goodRow, writer.ID)
	_, err := env.svc.Publish(ctx, good.ID)
	require.NoError(t, err)

	// Second statement never published, so its payment must fail alone.
	bad, badRow := env.ingestSingleRow(t, "50.00")
	env.commitFullAssignment(t, bad, badRow, writer.ID)

	results := env.svc.ProcessPayments(ctx, []uuid.UUID{bad.ID, good.ID})
	require.Len(t, results, 2)
	require.Error(t, results[0].Err)
	require.NoError(t, results[1].Err)

	paid, err := env.svc.Get(ctx, good.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPaid, paid.PaymentStatus)
}

func TestExportCSVUsesDisplayRule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	env.setCommissionRate(t, "0")
	statement, row := env.ingestSingleRow(t, "0.0007")
	env.commitFullAssignment(t, statement, row, writer.ID)
	_, err := env.svc.Publish(ctx, statement.ID)
	require.NoError(t, err)

	out, err := env.svc.ExportCSV(ctx, statement.ID)
	require.NoError(t, err)

	body := string(out)
	require.Contains(t, body, "Midnight Dreams")
	require.Contains(t, body, "Wendy Arcos")
	require.Contains(t, body, "$0.0007", "sub-cent amounts keep four decimals")
}

func TestExportQuickBooksBalancedJournal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	env.setCommissionRate(t, "10")
	statement, row := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, statement, row, writer.ID)
	_, err := env.svc.Publish(ctx, statement.ID)
	require.NoError(t, err)

	out, err := env.svc.ExportQuickBooks(ctx, statement.ID)
	require.NoError(t, err)

	body := string(out)
	require.Contains(t, body, "!TRNS")
	require.Contains(t, body, "Royalties Payable\tWendy Arcos\t-90.00")
	require.Contains(t, body, "Royalty Expense\tWendy Arcos\t90.00")
	require.Contains(t, body, "ENDTRNS")
}

func TestCommissionRateChangeAfterPublishKeepsBakedTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	env.setCommissionRate(t, "10")
	statement, row := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, statement, row, writer.ID)

	published, err := env.svc.Publish(ctx, statement.ID)
	require.NoError(t, err)
	require.True(t, published.TotalCommission.Equal(decimal.RequireFromString("10")), "commission %s", published.TotalCommission)

	env.setCommissionRate(t, "50")

	refetched, err := env.svc.Get(ctx, statement.ID)
	require.NoError(t, err)
	require.True(t, refetched.TotalCommission.Equal(decimal.RequireFromString("10")), "baked commission must survive rate changes, got %s", refetched.TotalCommission)
	require.True(t, refetched.TotalNet.Equal(decimal.RequireFromString("90")), "baked net must survive rate changes, got %s", refetched.TotalNet)

	paid, err := env.svc.ProcessPayment(ctx, statement.ID)
	require.NoError(t, err)
	require.True(t, paid.TotalNet.Equal(decimal.RequireFromString("90")), "payment must credit the baked net, got %s", paid.TotalNet)

	credited, err := env.writerRepo.FindByID(ctx, writer.ID)
	require.NoError(t, err)
	require.True(t, credited.Balance.Equal(decimal.RequireFromString("90")), "balance %s", credited.Balance)
}

func TestProcessPaymentConcurrentRunsCreditOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	env.setCommissionRate(t, "10")
	statement, row := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, statement, row, writer.ID)

	_, err := env.svc.Publish(ctx, statement.ID)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.ProcessPayment(ctx, statement.ID)
		}(i)
	}
	wg.Wait()

	// The guarded status flip lets exactly one run through; the loser gets
	// either the definitive conflict error or a lock error from the engine.
	successes := 0
	for _, runErr := range errs {
		if runErr == nil {
			successes++
		}
	}
	require.Equal(t, 1, successes, "exactly one concurrent run may credit, errs: %v", errs)

	credited, err := env.writerRepo.FindByID(ctx, writer.ID)
	require.NoError(t, err)
	require.True(t, credited.Balance.Equal(decimal.RequireFromString("90")), "concurrent runs must credit once, balance %s", credited.Balance)

	refetched, err := env.svc.Get(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPaid, refetched.PaymentStatus)
}

func TestFailureOutcomeBucketsStatusRaces(t *testing.T) {
	conflict := pkgerrors.New(pkgerrors.CodeStateConflict, MsgNotProcessed)
	require.Equal(t, "conflict", failureOutcome(conflict))
	require.Equal(t, "error", failureOutcome(pkgerrors.New(pkgerrors.CodeNotFound, "statement not found")))
	require.Equal(t, "error", failureOutcome(stderrors.New("connection reset")))
}

func TestDeleteRemovesStatement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writer := env.createWriter(t, "Wendy", "Arcos", nil)
	env.setCommissionRate(t, "10")
	statement, row := env.ingestSingleRow(t, "100.00")
	env.commitFullAssignment(t, statement, row, writer.ID)

	require.NoError(t, env.svc.Delete(ctx, statement.ID))

	_, err := env.svc.Get(ctx, statement.ID)
	require.Error(t, err)
}
