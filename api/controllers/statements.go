package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/api/responses"
	"github.com/clearwaterpub/royaltyops-backend/api/validators"
	"github.com/clearwaterpub/royaltyops-backend/internal/statements"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
	"github.com/clearwaterpub/royaltyops-backend/pkg/pagination"
)

type ingestRowRequest struct {
	WorkTitle     string   `json:"work_title" validate:"required"`
	Revenue       string   `json:"revenue" validate:"required"`
	Performances  int      `json:"performances" validate:"min=0"`
	WriterName    *string  `json:"writer_name,omitempty"`
	WriterIPI     *string  `json:"writer_ipi,omitempty"`
	PublisherName *string  `json:"publisher_name,omitempty"`
	PublisherIPI  *string  `json:"publisher_ipi,omitempty"`
	Platform      *string  `json:"platform,omitempty"`
	Territory     *string  `json:"territory,omitempty"`
	Collaborators []string `json:"collaborators,omitempty"`
}

type ingestStatementRequest struct {
	ProType  string             `json:"pro_type" validate:"required"`
	Filename string             `json:"filename" validate:"required"`
	Rows     []ingestRowRequest `json:"rows" validate:"required,min=1,dive"`
}

// IngestStatement accepts a parsed PRO statement from the upstream parser.
func IngestStatement(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body ingestStatementRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		proType, err := enums.ParseProType(body.ProType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pro type"))
			return
		}

		input := statements.IngestInput{
			ProType:  proType,
			Filename: validators.SanitizeString(body.Filename, 255),
		}
		for _, row := range body.Rows {
			revenue, err := decimal.NewFromString(strings.TrimSpace(row.Revenue))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid revenue amount").WithDetails(map[string]any{"work_title": row.WorkTitle}))
				return
			}
			input.Rows = append(input.Rows, statements.IngestRowInput{
				WorkTitle:     row.WorkTitle,
				Revenue:       revenue,
				Performances:  row.Performances,
				WriterName:    row.WriterName,
				WriterIPI:     row.WriterIPI,
				PublisherName: row.PublisherName,
				PublisherIPI:  row.PublisherIPI,
				Platform:      row.Platform,
				Territory:     row.Territory,
				Collaborators: row.Collaborators,
			})
		}

		statement, err := svc.Ingest(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, statement)
	}
}

func StatementDetail(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		statement, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statement)
	}
}

func StatementRows(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Rows(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func StatementList(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := statements.ListFilter{}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseStatementStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
			status, err := enums.ParsePaymentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status filter"))
				return
			}
			filter.PaymentStatus = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("pro_type")); raw != "" {
			proType, err := enums.ParseProType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pro type filter"))
				return
			}
			filter.ProType = &proType
		}

		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		list, next, err := svc.List(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"statements":  list,
			"next_cursor": next,
		})
	}
}

func PublishStatement(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		statement, err := svc.Publish(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statement)
	}
}

func ProcessStatementPayment(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		statement, err := svc.ProcessPayment(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statement)
	}
}

type bulkPaymentRequest struct {
	StatementIDs []string `json:"statement_ids" validate:"required,min=1,dive,uuid"`
}

type bulkPaymentOutcome struct {
	StatementID string `json:"statement_id"`
	Ok          bool   `json:"ok"`
	Error       string `json:"error,omitempty"`
}

// ProcessStatementPayments runs each selected statement as an independent
// payment; one failure never blocks the rest.
func ProcessStatementPayments(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body bulkPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ids := make([]uuid.UUID, 0, len(body.StatementIDs))
		for _, raw := range body.StatementIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid statement id"))
				return
			}
			ids = append(ids, id)
		}

		results := svc.ProcessPayments(r.Context(), ids)
		outcomes := make([]bulkPaymentOutcome, 0, len(results))
		for _, result := range results {
			outcome := bulkPaymentOutcome{
				StatementID: result.StatementID.String(),
				Ok:          result.Err == nil,
			}
			if result.Err != nil {
				outcome.Error = result.Err.Error()
			}
			outcomes = append(outcomes, outcome)
		}
		responses.WriteSuccess(w, outcomes)
	}
}

func StatementPaymentSummary(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.PaymentSummary(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func MarkStatementIngestFailed(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.MarkIngestFailed(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "error"})
	}
}

func DeleteStatement(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func ExportStatementCSV(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload, err := svc.ExportCSV(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="statement-`+id.String()+`.csv"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}
}

func ExportStatementQuickBooks(svc statements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload, err := svc.ExportQuickBooks(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="statement-`+id.String()+`.iif"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}
}

func parseStatementID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "statementId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "statement id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid statement id")
	}
	return id, nil
}
