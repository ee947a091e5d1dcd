package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/api/responses"
	"github.com/clearwaterpub/royaltyops-backend/api/validators"
	"github.com/clearwaterpub/royaltyops-backend/internal/assignments"
	"github.com/clearwaterpub/royaltyops-backend/internal/smartassign"
	"github.com/clearwaterpub/royaltyops-backend/internal/statements"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
)

// SuggestAssignments runs the matcher over a statement's rows and returns the
// tiered proposal. Nothing is persisted; the operator commits separately.
func SuggestAssignments(stmtSvc statements.Service, matcher smartassign.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		statement, err := stmtSvc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := stmtSvc.Rows(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := matcher.Match(r.Context(), statement, rows)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type assignmentEntryRequest struct {
	WriterID           string `json:"writer_id" validate:"required,uuid"`
	WriterIPINumber    string `json:"writer_ipi_number,omitempty"`
	PublisherIPINumber string `json:"publisher_ipi_number,omitempty"`
	SplitPercentage    string `json:"split_percentage" validate:"required"`
}

type assignmentRowRequest struct {
	RowKey  string                   `json:"row_key" validate:"required"`
	Entries []assignmentEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

type commitAssignmentsRequest struct {
	Rows []assignmentRowRequest `json:"rows" validate:"required,min=1,dive"`
}

// CommitAssignments replaces the statement's assignments with the submitted
// splits and moves it from uploaded to processed.
func CommitAssignments(stmtSvc statements.Service, assignSvc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body commitAssignmentsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statement, err := stmtSvc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := stmtSvc.Rows(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ledger := assignments.NewLedger(statement, rows)
		for _, row := range body.Rows {
			entries := make([]assignments.StagedAssignment, 0, len(row.Entries))
			for _, entry := range row.Entries {
				writerID, err := uuid.Parse(entry.WriterID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid writer id").WithDetails(map[string]any{"row_key": row.RowKey}))
					return
				}
				split, err := decimal.NewFromString(entry.SplitPercentage)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid split percentage").WithDetails(map[string]any{"row_key": row.RowKey}))
					return
				}
				entries = append(entries, assignments.StagedAssignment{
					WriterID:           writerID,
					WriterIPINumber:    entry.WriterIPINumber,
					PublisherIPINumber: entry.PublisherIPINumber,
					SplitPercentage:    split,
				})
			}
			if err := ledger.Stage(row.RowKey, entries); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		warnings, err := assignSvc.Commit(r.Context(), ledger)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"statement_id": id.String(),
			"warnings":     warnings,
		})
	}
}

func ListAssignments(assignSvc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stored, err := assignSvc.ListByStatement(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stored)
	}
}
