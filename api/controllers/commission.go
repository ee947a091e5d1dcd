package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearwaterpub/royaltyops-backend/api/responses"
	"github.com/clearwaterpub/royaltyops-backend/api/validators"
	"github.com/clearwaterpub/royaltyops-backend/internal/commission"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
)

func ActiveCommission(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setting, err := svc.ActiveSetting(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, setting)
	}
}

func CommissionHistory(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := svc.History(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

type updateCommissionRequest struct {
	CommissionRate string  `json:"commission_rate" validate:"required"`
	RecipientName  string  `json:"recipient_name" validate:"required"`
	Description    *string `json:"description,omitempty"`
	EffectiveDate  string  `json:"effective_date,omitempty"`
}

// UpdateCommission deactivates the current rate and installs the new one.
// Already-published statements keep the amounts baked at publish time.
func UpdateCommission(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body updateCommissionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(body.CommissionRate))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid commission rate"))
			return
		}

		effectiveDate := time.Now()
		if strings.TrimSpace(body.EffectiveDate) != "" {
			effectiveDate, err = time.Parse(time.RFC3339, strings.TrimSpace(body.EffectiveDate))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid effective date"))
				return
			}
		}

		setting, err := svc.UpdateRate(r.Context(), commission.UpdateRateInput{
			CommissionRate: rate,
			RecipientName:  validators.SanitizeString(body.RecipientName, 255),
			Description:    body.Description,
			EffectiveDate:  effectiveDate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, setting)
	}
}
