package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/middleware"
	"github.com/segyhp/lending-engine/pkg/response"
)

// Routes groups what the router needs. Idempotency may be nil to disable replay.
type Routes struct {
	Lending     *LendingHandler
	Admin       *AdminHandler
	Health      *HealthHandler
	Auth        *middleware.Authenticator
	Idempotency func(http.Handler) http.Handler
}

func NewRouter(rt Routes) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.RequestIDMiddleware, response.LoggingMiddleware, response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", rt.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", rt.Health.Ready).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(rt.Auth.Authenticate)
	if rt.Idempotency != nil {
		api.Use(rt.Idempotency)
	}

	l := rt.Lending
	api.HandleFunc("/wallets", l.OpenWallet).Methods(http.MethodPost)
	api.HandleFunc("/wallets/me", l.GetWallet).Methods(http.MethodGet)
	api.HandleFunc("/wallets/me/transactions", l.ListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/wallets/me/deposits", l.Deposit).Methods(http.MethodPost)

	// /loans/mine must be registered before /loans/{loanId}
	api.HandleFunc("/loans", l.RequestLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans", l.BrowseLoans).Methods(http.MethodGet)
	api.HandleFunc("/loans/mine", l.MyLoans).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}", l.GetLoan).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/schedule", l.Schedule).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/fundings", l.FundLoan).Methods(http.MethodPost)
	api.HandleFunc("/fundings/mine", l.MyFundings).Methods(http.MethodGet)
	api.HandleFunc("/repayments/{repaymentId}/pay", l.PayInstallment).Methods(http.MethodPost)
	api.HandleFunc("/dashboard", l.Dashboard).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireRole(domain.RoleAdmin))
	admin.HandleFunc("/loans", rt.Admin.ListLoans).Methods(http.MethodGet)
	admin.HandleFunc("/loans/{loanId}/approve", rt.Admin.Approve).Methods(http.MethodPost)
	admin.HandleFunc("/loans/{loanId}/reject", rt.Admin.Reject).Methods(http.MethodPost)

	return router
}
