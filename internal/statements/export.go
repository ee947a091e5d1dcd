package statements

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/money"
)

// Exporter renders read-only finance projections of a published statement.
type Exporter interface {
	ExportCSV(ctx context.Context, id uuid.UUID) ([]byte, error)
	ExportQuickBooks(ctx context.Context, id uuid.UUID) ([]byte, error)
}

const iifDateLayout = "01/02/2006"

// ExportCSV renders one line per assignment with the baked amounts. Amounts
// use the finance display rule, so sub-cent rows never export as $0.00.
func (s *service) ExportCSV(ctx context.Context, id uuid.UUID) ([]byte, error) {
	statement, rows, assigned, err := s.loadExport(ctx, id)
	if err != nil {
		return nil, err
	}

	titleByRow := make(map[uuid.UUID]string, len(rows))
	revenueByRow := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		titleByRow[row.ID] = row.WorkTitle
		revenueByRow[row.ID] = row.Revenue
	}

	nameByWriter, err := s.writerNames(ctx, assigned)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"Work Title", "Writer", "Split %", "Gross", "Commission", "Net"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, assignment := range assigned {
		gross := money.Share(revenueByRow[assignment.RowID], assignment.SplitPercentage)
		record := []string{
			titleByRow[assignment.RowID],
			nameByWriter[assignment.WriterID],
			assignment.SplitPercentage.StringFixed(2),
			money.Format(gross),
			money.Format(derefAmount(assignment.CommissionAmount)),
			money.Format(derefAmount(assignment.NetAmount)),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	totals := []string{
		"TOTAL", "", "",
		money.Format(statement.TotalRevenue),
		money.Format(statement.TotalCommission),
		money.Format(statement.TotalNet),
	}
	if err := w.Write(totals); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportQuickBooks renders an IIF journal: one general-journal transaction per
// writer, crediting royalties payable and debiting royalty expense.
func (s *service) ExportQuickBooks(ctx context.Context, id uuid.UUID) ([]byte, error) {
	statement, _, assigned, err := s.loadExport(ctx, id)
	if err != nil {
		return nil, err
	}

	nameByWriter, err := s.writerNames(ctx, assigned)
	if err != nil {
		return nil, err
	}

	netByWriter := make(map[uuid.UUID]decimal.Decimal)
	var order []uuid.UUID
	for _, assignment := range assigned {
		if _, ok := netByWriter[assignment.WriterID]; !ok {
			order = append(order, assignment.WriterID)
		}
		netByWriter[assignment.WriterID] = netByWriter[assignment.WriterID].Add(derefAmount(assignment.NetAmount))
	}

	date := statement.UploadedAt.Format(iifDateLayout)
	memo := fmt.Sprintf("%s royalties (%s)", strings.ToUpper(statement.ProType.String()), statement.Filename)

	var b strings.Builder
	b.WriteString("!TRNS\tTRNSTYPE\tDATE\tACCNT\tNAME\tAMOUNT\tMEMO\n")
	b.WriteString("!SPL\tTRNSTYPE\tDATE\tACCNT\tNAME\tAMOUNT\tMEMO\n")
	b.WriteString("!ENDTRNS\n")
	for _, writerID := range order {
		net := netByWriter[writerID]
		name := sanitizeIIF(nameByWriter[writerID])
		fmt.Fprintf(&b, "TRNS\tGENERAL JOURNAL\t%s\tRoyalties Payable\t%s\t%s\t%s\n",
			date, name, net.Neg().StringFixed(2), sanitizeIIF(memo))
		fmt.Fprintf(&b, "SPL\tGENERAL JOURNAL\t%s\tRoyalty Expense\t%s\t%s\t%s\n",
			date, name, net.StringFixed(2), sanitizeIIF(memo))
		b.WriteString("ENDTRNS\n")
	}
	return []byte(b.String()), nil
}

func (s *service) loadExport(ctx context.Context, id uuid.UUID) (*models.Statement, []models.StatementRow, []models.Assignment, error) {
	statement, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if statement.Status != enums.StatementStatusPublished {
		return nil, nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, MsgNotPublished)
	}
	rows, err := s.repo.ListRows(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	assigned, err := s.assignRepo.ListByStatement(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return statement, rows, assigned, nil
}

func (s *service) writerNames(ctx context.Context, assigned []models.Assignment) (map[uuid.UUID]string, error) {
	seen := make(map[uuid.UUID]bool, len(assigned))
	var ids []uuid.UUID
	for _, assignment := range assigned {
		if !seen[assignment.WriterID] {
			seen[assignment.WriterID] = true
			ids = append(ids, assignment.WriterID)
		}
	}
	rows, err := s.writerRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(rows))
	for _, writer := range rows {
		names[writer.ID] = writer.FullName()
	}
	return names, nil
}

func derefAmount(amount *decimal.Decimal) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return *amount
}

func sanitizeIIF(value string) string {
	return strings.NewReplacer("\t", " ", "\n", " ").Replace(value)
}
