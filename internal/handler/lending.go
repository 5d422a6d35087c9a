package handler

import (
	"net/http"
	"strconv"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/pkg/logger"
	"github.com/segyhp/lending-engine/pkg/response"
)

// LendingHandler serves the wallet, loan, funding and repayment routes.
type LendingHandler struct {
	wallets    WalletService
	loans      LoanService
	funding    FundingService
	repayments RepaymentService
	queries    QueryService
	validator  *requestValidator
}

func NewLendingHandler(wallets WalletService, loans LoanService, funding FundingService, repayments RepaymentService, queries QueryService) *LendingHandler {
	return &LendingHandler{
		wallets:    wallets,
		loans:      loans,
		funding:    funding,
		repayments: repayments,
		queries:    queries,
		validator:  newRequestValidator(),
	}
}

func (h *LendingHandler) OpenWallet(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	wallet, err := h.wallets.OpenWallet(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, wallet)
}

func (h *LendingHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	wallet, err := h.wallets.GetWallet(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, wallet)
}

func (h *LendingHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(w, "limit must be a non-negative integer", err)
			return
		}
		limit = n
	}

	txns, err := h.wallets.ListTransactions(r.Context(), p.UserID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, txns)
}

func (h *LendingHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req domain.DepositRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}

	txn, err := h.wallets.Deposit(r.Context(), p, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, txn)
}

func (h *LendingHandler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req domain.CreateLoanRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}

	loan, err := h.loans.RequestLoan(r.Context(), p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, loan)
}

func (h *LendingHandler) BrowseLoans(w http.ResponseWriter, r *http.Request) {
	listings, err := h.queries.BrowseLoans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, listings)
}

func (h *LendingHandler) MyLoans(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	listings, err := h.queries.MyLoans(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, listings)
}

func (h *LendingHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}
	loan, err := h.loans.GetLoan(r.Context(), loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, loan)
}

func (h *LendingHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}
	view, err := h.queries.Schedule(r.Context(), p, loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, view)
}

func (h *LendingHandler) FundLoan(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}
	var req domain.FundLoanRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}

	result, err := h.funding.ContributeFunding(r.Context(), p, loanID, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Debug().
		Str("loan_id", loanID.String()).
		Str("status", string(result.LoanStatus)).
		Msg("Funding accepted")
	response.Created(w, result)
}

func (h *LendingHandler) MyFundings(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	views, err := h.queries.MyFundings(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, views)
}

func (h *LendingHandler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	repaymentID, ok := pathUUID(w, r, "repaymentId")
	if !ok {
		return
	}
	result, err := h.repayments.PayInstallment(r.Context(), p, repaymentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, result)
}

func (h *LendingHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	dash, err := h.queries.Dashboard(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, dash)
}
