package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/pkg/response"
)

// AdminHandler serves the loan approval queue.
type AdminHandler struct {
	loans LoanService
}

func NewAdminHandler(loans LoanService) *AdminHandler {
	return &AdminHandler{loans: loans}
}

// ListLoans returns loans in ?status=, Pending when omitted.
func (h *AdminHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	status := domain.LoanStatusPending
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = domain.LoanStatus(raw)
		if !validStatus(status) {
			response.BadRequest(w, "Unknown loan status "+raw, nil)
			return
		}
	}

	loans, err := h.loans.ListByStatus(r.Context(), p, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, loans)
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.loans.Approve)
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.loans.Reject)
}

type reviewFunc func(ctx context.Context, admin domain.Principal, loanID uuid.UUID) (*domain.LoanRequest, error)

func (h *AdminHandler) review(w http.ResponseWriter, r *http.Request, fn reviewFunc) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}
	loan, err := fn(r.Context(), p, loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, loan)
}

func validStatus(s domain.LoanStatus) bool {
	switch s {
	case domain.LoanStatusPending, domain.LoanStatusApproved, domain.LoanStatusRejected,
		domain.LoanStatusFunded, domain.LoanStatusRepaying, domain.LoanStatusCompleted:
		return true
	}
	return false
}
