package assignments

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
)

func newTestLedger(t *testing.T, titles ...string) (*Ledger, []string) {
	t.Helper()
	statement := &models.Statement{ID: uuid.New(), ProType: enums.ProTypeBMI}
	rows := make([]models.StatementRow, len(titles))
	keys := make([]string, len(titles))
	for i, title := range titles {
		rows[i] = models.StatementRow{ID: uuid.New(), WorkTitle: title, Position: i}
		keys[i] = rows[i].Key(statement.ProType)
	}
	return NewLedger(statement, rows), keys
}

func TestAddWriterRebalancesToEqualSplits(t *testing.T) {
	ledger, keys := newTestLedger(t, "Midnight Dreams")
	key := keys[0]

	for i := 0; i < 3; i++ {
		if err := ledger.AddWriter(key); err != nil {
			t.Fatalf("AddWriter error: %v", err)
		}
	}

	entries := ledger.Entries(key)
	if len(entries) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(entries))
	}
	if !entries[0].SplitPercentage.Equal(decimal.RequireFromString("33.34")) {
		t.Fatalf("first slot should absorb remainder, got %s", entries[0].SplitPercentage)
	}
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.SplitPercentage)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("splits must sum to 100, got %s", total)
	}
}

func TestRemoveWriterKeepsLastSlot(t *testing.T) {
	ledger, keys := newTestLedger(t, "Midnight Dreams")
	key := keys[0]

	if err := ledger.AddWriter(key); err != nil {
		t.Fatalf("AddWriter error: %v", err)
	}
	if err := ledger.RemoveWriter(key, 0); err != nil {
		t.Fatalf("RemoveWriter error: %v", err)
	}
	if got := len(ledger.Entries(key)); got != 1 {
		t.Fatalf("expected 1 slot after removal, got %d", got)
	}
	// Removing the only remaining slot is a no-op.
	if err := ledger.RemoveWriter(key, 0); err != nil {
		t.Fatalf("RemoveWriter error: %v", err)
	}
	if got := len(ledger.Entries(key)); got != 1 {
		t.Fatalf("last slot must survive, got %d", got)
	}
	if !ledger.Entries(key)[0].SplitPercentage.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("survivor should rebalance to 100%%")
	}
}

func TestSetSplitDoesNotRebalance(t *testing.T) {
	ledger, keys := newTestLedger(t, "Midnight Dreams")
	key := keys[0]

	ledger.AddWriter(key)
	ledger.AddWriter(key)
	if err := ledger.SetSplit(key, 0, decimal.RequireFromString("70")); err != nil {
		t.Fatalf("SetSplit error: %v", err)
	}

	entries := ledger.Entries(key)
	if !entries[0].SplitPercentage.Equal(decimal.RequireFromString("70")) {
		t.Fatalf("expected slot 0 at 70, got %s", entries[0].SplitPercentage)
	}
	if !entries[1].SplitPercentage.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("other slots must not rebalance, got %s", entries[1].SplitPercentage)
	}
}

func TestAssignAllToOnlyTouchesVisibleRows(t *testing.T) {
	ledger, keys := newTestLedger(t, "Midnight Dreams", "Harbor Lights")
	writerID := uuid.New()

	if err := ledger.AssignAllTo(writerID, "00123", keys[:1]); err != nil {
		t.Fatalf("AssignAllTo error: %v", err)
	}

	visible := ledger.Entries(keys[0])
	if len(visible) != 1 || visible[0].WriterID != writerID || !visible[0].SplitPercentage.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("visible row should hold one 100%% assignment, got %+v", visible)
	}
	if hidden := ledger.Entries(keys[1]); len(hidden) != 0 {
		t.Fatalf("hidden row must be untouched, got %+v", hidden)
	}
}

func TestValidateRejectsIncompleteRows(t *testing.T) {
	ledger, keys := newTestLedger(t, "Midnight Dreams", "Harbor Lights")
	ledger.AssignAllTo(uuid.New(), "", keys[:1])

	_, err := ledger.Validate()
	if err == nil {
		t.Fatal("expected validation error for row with no assignments")
	}
	if !pkgerrors.HasMessage(err, MsgIncompleteAssignment) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMissingWriterIdentity(t *testing.T) {
	ledger, keys := newTestLedger(t, "Midnight Dreams")
	ledger.AddWriter(keys[0])

	if _, err := ledger.Validate(); err == nil {
		t.Fatal("expected validation error for blank writer slot")
	}
}

func TestValidateSplitDeviationIsWarningOnly(t *testing.T) {
	ledger, keys := newTestLedger(t, "Midnight Dreams")
	key := keys[0]
	ledger.Stage(key, []StagedAssignment{
		{WriterID: uuid.New(), SplitPercentage: decimal.RequireFromString("60")},
		{WriterID: uuid.New(), SplitPercentage: decimal.RequireFromString("30")},
	})

	warnings, err := ledger.Validate()
	if err != nil {
		t.Fatalf("split deviation must not fail validation: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if warnings[0].RowKey != key {
		t.Fatalf("warning should reference the deviating row")
	}
}

func TestRowsCarriesStatementAndRowIdentity(t *testing.T) {
	statement := &models.Statement{ID: uuid.New(), ProType: enums.ProTypeMLC}
	publisherIPI := "55511"
	platform := "spotify"
	row := models.StatementRow{
		ID:           uuid.New(),
		WorkTitle:    "Midnight Dreams",
		PublisherIPI: &publisherIPI,
		Platform:     &platform,
	}
	ledger := NewLedger(statement, []models.StatementRow{row})
	key := row.Key(statement.ProType)

	writerID := uuid.New()
	if err := ledger.AssignAllTo(writerID, "00123", []string{key}); err != nil {
		t.Fatalf("AssignAllTo error: %v", err)
	}

	rows := ledger.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(rows))
	}
	if rows[0].StatementID != statement.ID || rows[0].RowID != row.ID || rows[0].WriterID != writerID {
		t.Fatalf("assignment identity mismatch: %+v", rows[0])
	}
}
