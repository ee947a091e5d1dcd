package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearwaterpub/royaltyops-backend/api/controllers"
	"github.com/clearwaterpub/royaltyops-backend/api/middleware"
	"github.com/clearwaterpub/royaltyops-backend/internal/assignments"
	"github.com/clearwaterpub/royaltyops-backend/internal/commission"
	"github.com/clearwaterpub/royaltyops-backend/internal/sessionpayouts"
	"github.com/clearwaterpub/royaltyops-backend/internal/smartassign"
	"github.com/clearwaterpub/royaltyops-backend/internal/statements"
	"github.com/clearwaterpub/royaltyops-backend/internal/withdrawals"
	"github.com/clearwaterpub/royaltyops-backend/internal/writers"
	"github.com/clearwaterpub/royaltyops-backend/pkg/config"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
	"github.com/clearwaterpub/royaltyops-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	metricsRegistry *prometheus.Registry,
	writerRepo writers.Repository,
	statementsService statements.Service,
	assignmentsService assignments.Service,
	matcherService smartassign.Service,
	commissionService commission.Service,
	withdrawalsService withdrawals.Service,
	sessionPayoutsService sessionpayouts.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	var redisP redis.Pinger
	var idemStore redis.IdempotencyStore
	if redisClient != nil {
		redisP = redisClient
		idemStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/statements", func(r chi.Router) {
			r.Get("/", controllers.StatementList(statementsService, logg))
			r.Post("/", controllers.IngestStatement(statementsService, logg))
			r.Post("/process-payments", controllers.ProcessStatementPayments(statementsService, logg))
			r.Route("/{statementId}", func(r chi.Router) {
				r.Get("/", controllers.StatementDetail(statementsService, logg))
				r.Delete("/", controllers.DeleteStatement(statementsService, logg))
				r.Get("/rows", controllers.StatementRows(statementsService, logg))
				r.Get("/payment-summary", controllers.StatementPaymentSummary(statementsService, logg))
				r.Get("/export/csv", controllers.ExportStatementCSV(statementsService, logg))
				r.Get("/export/quickbooks", controllers.ExportStatementQuickBooks(statementsService, logg))
				r.Post("/publish", controllers.PublishStatement(statementsService, logg))
				r.Post("/process-payment", controllers.ProcessStatementPayment(statementsService, logg))
				r.Post("/ingest-failed", controllers.MarkStatementIngestFailed(statementsService, logg))
				r.Route("/assignments", func(r chi.Router) {
					r.Get("/", controllers.ListAssignments(assignmentsService, logg))
					r.Get("/suggest", controllers.SuggestAssignments(statementsService, matcherService, logg))
					r.Post("/commit", controllers.CommitAssignments(statementsService, assignmentsService, logg))
				})
			})
		})

		r.Route("/writers", func(r chi.Router) {
			r.Get("/", controllers.WriterList(writerRepo, logg))
			r.Post("/", controllers.CreateWriter(writerRepo, logg))
			r.Get("/{writerId}", controllers.WriterDetail(writerRepo, logg))
		})

		r.Route("/commission", func(r chi.Router) {
			r.Get("/", controllers.ActiveCommission(commissionService, logg))
			r.Get("/history", controllers.CommissionHistory(commissionService, logg))
			r.Post("/", controllers.UpdateCommission(commissionService, logg))
		})

		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/", controllers.WithdrawalList(withdrawalsService, logg))
			r.Post("/", controllers.CreateWithdrawal(withdrawalsService, logg))
			r.Route("/{withdrawalId}", func(r chi.Router) {
				r.Get("/", controllers.WithdrawalDetail(withdrawalsService, logg))
				r.Post("/approve", controllers.ApproveWithdrawal(withdrawalsService, logg))
				r.Post("/settle", controllers.SettleWithdrawal(withdrawalsService, logg))
				r.Post("/cancel", controllers.CancelWithdrawal(withdrawalsService, logg))
			})
		})

		r.Route("/session-payouts", func(r chi.Router) {
			r.Get("/", controllers.SessionPayoutList(sessionPayoutsService, logg))
			r.Post("/", controllers.CreateSessionPayout(sessionPayoutsService, logg))
			r.Route("/{payoutId}", func(r chi.Router) {
				r.Get("/", controllers.SessionPayoutDetail(sessionPayoutsService, logg))
				r.Post("/approve", controllers.ApproveSessionPayout(sessionPayoutsService, logg))
				r.Post("/reject", controllers.RejectSessionPayout(sessionPayoutsService, logg))
				r.Post("/process-payment", controllers.ProcessSessionPayment(sessionPayoutsService, logg))
			})
		})
	})

	return r
}
