package assignments

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
)

// MsgIncompleteAssignment is carried when a statement cannot be committed
// because a row is missing an assignment or a writer identity.
const MsgIncompleteAssignment = "statement has incomplete assignments"

// StagedAssignment is one editable split slot in the ledger. Nothing here is
// persisted until Commit.
type StagedAssignment struct {
	WriterID           uuid.UUID
	WriterIPINumber    string
	PublisherIPINumber string
	SplitPercentage    decimal.Decimal
}

// Warning annotates a row the operator should review before publishing.
// Warnings never block a commit.
type Warning struct {
	RowKey  string
	Message string
}

// Ledger stages the per-row assignment splits for one statement. Edits are
// in-memory and last-write-wins; a single operator edits a statement at a
// time, and nothing touches the database until Commit.
type Ledger struct {
	statementID uuid.UUID
	rowIDByKey  map[string]uuid.UUID
	staged      map[string][]StagedAssignment
	keyOrder    []string
}

// NewLedger builds an empty ledger over the statement's rows, keyed by each
// row's identity key for the statement's PRO.
func NewLedger(statement *models.Statement, rows []models.StatementRow) *Ledger {
	ledger := &Ledger{
		statementID: statement.ID,
		rowIDByKey:  make(map[string]uuid.UUID, len(rows)),
		staged:      make(map[string][]StagedAssignment, len(rows)),
		keyOrder:    make([]string, 0, len(rows)),
	}
	for _, row := range rows {
		key := row.Key(statement.ProType)
		if _, seen := ledger.rowIDByKey[key]; !seen {
			ledger.keyOrder = append(ledger.keyOrder, key)
		}
		ledger.rowIDByKey[key] = row.ID
	}
	return ledger
}

// Stage replaces a row's staged splits wholesale, used to seed the ledger
// from existing assignments or an accepted match proposal.
func (l *Ledger) Stage(rowKey string, entries []StagedAssignment) error {
	if _, ok := l.rowIDByKey[rowKey]; !ok {
		return unknownRowError(rowKey)
	}
	l.staged[rowKey] = append([]StagedAssignment(nil), entries...)
	return nil
}

// AddWriter appends a blank slot to the row and rebalances every slot to
// equal splits.
func (l *Ledger) AddWriter(rowKey string) error {
	if _, ok := l.rowIDByKey[rowKey]; !ok {
		return unknownRowError(rowKey)
	}
	l.staged[rowKey] = append(l.staged[rowKey], StagedAssignment{})
	l.rebalance(rowKey)
	return nil
}

// RemoveWriter deletes the slot at index and rebalances the survivors. A row
// keeps at least one slot; removing the last one is a no-op.
func (l *Ledger) RemoveWriter(rowKey string, index int) error {
	entries, ok := l.staged[rowKey]
	if !ok {
		return unknownRowError(rowKey)
	}
	if index < 0 || index >= len(entries) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("assignment index %d out of range", index))
	}
	if len(entries) == 1 {
		return nil
	}
	l.staged[rowKey] = append(entries[:index], entries[index+1:]...)
	l.rebalance(rowKey)
	return nil
}

// SetWriter updates one slot's writer identity without rebalancing.
func (l *Ledger) SetWriter(rowKey string, index int, writerID uuid.UUID, writerIPI string) error {
	entry, err := l.entryAt(rowKey, index)
	if err != nil {
		return err
	}
	entry.WriterID = writerID
	entry.WriterIPINumber = strings.TrimSpace(writerIPI)
	return nil
}

// SetPublisherIPI updates one slot's publisher IPI without rebalancing.
func (l *Ledger) SetPublisherIPI(rowKey string, index int, publisherIPI string) error {
	entry, err := l.entryAt(rowKey, index)
	if err != nil {
		return err
	}
	entry.PublisherIPINumber = strings.TrimSpace(publisherIPI)
	return nil
}

// SetSplit updates one slot's split percentage without rebalancing. Splits
// that stop summing to 100 surface as warnings at validation, not errors.
func (l *Ledger) SetSplit(rowKey string, index int, split decimal.Decimal) error {
	if split.IsNegative() || split.GreaterThan(decimal.NewFromInt(100)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "split percentage must be between 0 and 100")
	}
	entry, err := l.entryAt(rowKey, index)
	if err != nil {
		return err
	}
	entry.SplitPercentage = split
	return nil
}

// AssignAllTo overwrites each of the given rows with a single 100% assignment
// to one writer. Callers pass only their currently visible row subset so a
// filtered view never silently rewrites hidden rows.
func (l *Ledger) AssignAllTo(writerID uuid.UUID, writerIPI string, visibleKeys []string) error {
	if writerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "writer id is required")
	}
	for _, key := range visibleKeys {
		if _, ok := l.rowIDByKey[key]; !ok {
			return unknownRowError(key)
		}
	}
	for _, key := range visibleKeys {
		l.staged[key] = []StagedAssignment{{
			WriterID:        writerID,
			WriterIPINumber: strings.TrimSpace(writerIPI),
			SplitPercentage: decimal.NewFromInt(100),
		}}
	}
	return nil
}

// Validate checks the staged map is complete enough to commit. Rows with zero
// assignments or a missing writer identity are errors; splits that do not sum
// to 100 come back as warnings only.
func (l *Ledger) Validate() ([]Warning, error) {
	var warnings []Warning
	var incomplete []string

	for _, key := range l.keyOrder {
		entries := l.staged[key]
		if len(entries) == 0 {
			incomplete = append(incomplete, key)
			continue
		}
		total := decimal.Zero
		for _, entry := range entries {
			if entry.WriterID == uuid.Nil {
				incomplete = append(incomplete, key)
				break
			}
			total = total.Add(entry.SplitPercentage)
		}
		if !total.Equal(decimal.NewFromInt(100)) {
			warnings = append(warnings, Warning{
				RowKey:  key,
				Message: fmt.Sprintf("splits sum to %s%%, expected 100%%", total),
			})
		}
	}

	if len(incomplete) > 0 {
		return warnings, pkgerrors.New(pkgerrors.CodeValidation, MsgIncompleteAssignment).
			WithDetails(map[string]any{"rows": incomplete})
	}
	return warnings, nil
}

// Rows flattens the staged map into persistable assignment models, ordered by
// row then slot position.
func (l *Ledger) Rows() []models.Assignment {
	var out []models.Assignment
	for _, key := range l.keyOrder {
		rowID := l.rowIDByKey[key]
		for i, entry := range l.staged[key] {
			out = append(out, models.Assignment{
				StatementID:        l.statementID,
				RowID:              rowID,
				Position:           i,
				WriterID:           entry.WriterID,
				WriterIPINumber:    entry.WriterIPINumber,
				PublisherIPINumber: entry.PublisherIPINumber,
				SplitPercentage:    entry.SplitPercentage,
			})
		}
	}
	return out
}

// Entries returns a copy of the staged slots for a row.
func (l *Ledger) Entries(rowKey string) []StagedAssignment {
	return append([]StagedAssignment(nil), l.staged[rowKey]...)
}

// Keys returns the row keys in statement order.
func (l *Ledger) Keys() []string {
	return append([]string(nil), l.keyOrder...)
}

func (l *Ledger) entryAt(rowKey string, index int) (*StagedAssignment, error) {
	entries, ok := l.staged[rowKey]
	if !ok {
		return nil, unknownRowError(rowKey)
	}
	if index < 0 || index >= len(entries) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("assignment index %d out of range", index))
	}
	return &entries[index], nil
}

// rebalance resets every slot on the row to equal shares of 100, remainder on
// the first slot so the sum stays exact.
func (l *Ledger) rebalance(rowKey string) {
	entries := l.staged[rowKey]
	n := len(entries)
	if n == 0 {
		return
	}
	hundred := decimal.NewFromInt(100)
	base := hundred.Div(decimal.NewFromInt(int64(n))).Round(2)
	total := decimal.Zero
	for i := 1; i < n; i++ {
		entries[i].SplitPercentage = base
		total = total.Add(base)
	}
	entries[0].SplitPercentage = hundred.Sub(total)
}

func unknownRowError(rowKey string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown statement row %q", rowKey))
}
