package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/api/responses"
	"github.com/clearwaterpub/royaltyops-backend/api/validators"
	"github.com/clearwaterpub/royaltyops-backend/internal/sessionpayouts"
	"github.com/clearwaterpub/royaltyops-backend/pkg/enums"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
	"github.com/clearwaterpub/royaltyops-backend/pkg/pagination"
)

type createSessionPayoutRequest struct {
	WorkOrderNumber string `json:"work_order_number" validate:"required"`
	SubmittedBy     string `json:"submitted_by" validate:"required,uuid"`
	StudioCost      string `json:"studio_cost" validate:"required"`
	EngineerFee     string `json:"engineer_fee" validate:"required"`
	DepositPaid     string `json:"deposit_paid,omitempty"`
}

func CreateSessionPayout(svc sessionpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createSessionPayoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		submittedBy, err := uuid.Parse(body.SubmittedBy)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid submitter id"))
			return
		}
		studioCost, err := parseAmountField(body.StudioCost, "studio_cost")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		engineerFee, err := parseAmountField(body.EngineerFee, "engineer_fee")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		depositPaid := decimal.Zero
		if strings.TrimSpace(body.DepositPaid) != "" {
			depositPaid, err = parseAmountField(body.DepositPaid, "deposit_paid")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		request, err := svc.Create(r.Context(), sessionpayouts.CreateInput{
			WorkOrderNumber: validators.SanitizeString(body.WorkOrderNumber, 64),
			SubmittedBy:     submittedBy,
			StudioCost:      studioCost,
			EngineerFee:     engineerFee,
			DepositPaid:     depositPaid,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

func SessionPayoutDetail(svc sessionpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseSessionPayoutID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func SessionPayoutList(svc sessionpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := parseCursorParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("submitted_by")); raw != "" {
			submittedBy, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid submitter id"))
				return
			}
			list, err := svc.ListBySubmitter(r.Context(), submittedBy, limit, cursor)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, list)
			return
		}

		raw := strings.TrimSpace(r.URL.Query().Get("status"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "submitted_by or status filter required"))
			return
		}
		status, err := enums.ParseSessionPayoutStatus(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session payout status"))
			return
		}
		list, err := svc.ListByStatus(r.Context(), status, limit, cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func ApproveSessionPayout(svc sessionpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseSessionPayoutID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Approve(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

type rejectSessionPayoutRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func RejectSessionPayout(svc sessionpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseSessionPayoutID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body rejectSessionPayoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Reject(r.Context(), id, validators.SanitizeString(body.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func ProcessSessionPayment(svc sessionpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseSessionPayoutID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.ProcessPayment(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func parseSessionPayoutID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "payoutId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "session payout id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session payout id")
	}
	return id, nil
}

func parseAmountField(raw, field string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount").WithDetails(map[string]any{"field": field})
	}
	return value, nil
}
