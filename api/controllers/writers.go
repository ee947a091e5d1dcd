package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearwaterpub/royaltyops-backend/api/responses"
	"github.com/clearwaterpub/royaltyops-backend/api/validators"
	"github.com/clearwaterpub/royaltyops-backend/internal/writers"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db/models"
	pkgerrors "github.com/clearwaterpub/royaltyops-backend/pkg/errors"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
	"github.com/clearwaterpub/royaltyops-backend/pkg/pagination"
)

type createWriterRequest struct {
	FirstName              string  `json:"first_name" validate:"required"`
	LastName               string  `json:"last_name" validate:"required"`
	Role                   string  `json:"role,omitempty"`
	WriterIPINumber        *string `json:"writer_ipi_number,omitempty"`
	PublisherIPINumber     *string `json:"publisher_ipi_number,omitempty"`
	CommissionOverrideRate *string `json:"commission_override_rate,omitempty"`
	GatewayAccountID       *string `json:"gateway_account_id,omitempty"`
}

func CreateWriter(repo writers.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createWriterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writer := &models.Writer{
			ID:                 uuid.New(),
			FirstName:          validators.SanitizeString(body.FirstName, 100),
			LastName:           validators.SanitizeString(body.LastName, 100),
			Role:               "writer",
			WriterIPINumber:    body.WriterIPINumber,
			PublisherIPINumber: body.PublisherIPINumber,
			GatewayAccountID:   body.GatewayAccountID,
		}
		if role := validators.SanitizeString(body.Role, 32); role != "" {
			writer.Role = role
		}
		if body.CommissionOverrideRate != nil {
			rate, err := decimal.NewFromString(strings.TrimSpace(*body.CommissionOverrideRate))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid commission override rate"))
				return
			}
			writer.CommissionOverrideRate = &rate
		}

		if err := repo.Create(r.Context(), writer); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create writer"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, writer)
	}
}

func WriterDetail(repo writers.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(chi.URLParam(r, "writerId"))
		id, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid writer id"))
			return
		}
		writer, err := repo.FindByID(r.Context(), id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "writer not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load writer"))
			return
		}
		responses.WriteSuccess(w, writer)
	}
}

func WriterList(repo writers.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ipi := strings.TrimSpace(r.URL.Query().Get("ipi")); ipi != "" {
			writer, err := repo.FindByIPI(r.Context(), ipi)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "writer not found"))
					return
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find writer by ipi"))
				return
			}
			responses.WriteSuccess(w, []models.Writer{*writer})
			return
		}

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
		list, err := repo.List(r.Context(), pagination.NormalizeLimit(limit), cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list writers"))
			return
		}
		responses.WriteSuccess(w, list)
	}
}
