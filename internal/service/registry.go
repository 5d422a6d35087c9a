package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/logger"
	"github.com/segyhp/lending-engine/pkg/utils"
)

const (
	minPurposeLength = 10
	maxPurposeLength = 500
)

// LoanRegistry owns loan requests and every status change they go through.
type LoanRegistry struct {
	deps Dependencies
}

func NewLoanRegistry(deps Dependencies) *LoanRegistry {
	return &LoanRegistry{deps: deps.withDefaults()}
}

// RequestLoan creates a Pending loan for the calling borrower.
func (s *LoanRegistry) RequestLoan(ctx context.Context, p domain.Principal, req domain.CreateLoanRequest) (*domain.LoanRequest, error) {
	if err := requireRole(p, domain.RoleBorrower, "request loans"); err != nil {
		return nil, err
	}

	purpose := strings.TrimSpace(req.Purpose)
	if err := s.validateRequest(req, purpose); err != nil {
		return nil, err
	}

	if s.deps.Options.RequireKYC && s.deps.KYC != nil {
		ok, err := s.deps.KYC.HasApprovedKYC(ctx, p.UserID)
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		if !ok {
			return nil, customError.WrapKYCRequired(p.UserID.String())
		}
	}

	now := s.deps.Clock.Now()
	loan := &domain.LoanRequest{
		ID:              uuid.New(),
		BorrowerID:      p.UserID,
		AmountRequested: req.AmountRequested,
		Currency:        s.deps.Options.Currency,
		Purpose:         purpose,
		InterestRatePct: req.InterestRatePct,
		TermWeeks:       domain.DefaultTermWeeks,
		Status:          domain.LoanStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := withRetry(ctx, s.deps.Options, func() error {
		return s.deps.UoW.WithinTx(ctx, func(r repository.Repos) error {
			return r.Loans.Create(ctx, loan)
		})
	})
	if err != nil {
		return nil, finish(err, nil)
	}

	logger.FromContext(ctx).Info().
		Str("loan_id", loan.ID.String()).
		Str("borrower_id", p.UserID.String()).
		Str("amount", loan.AmountRequested.StringFixed(2)).
		Msg("Loan requested")
	recordAudit(ctx, s.deps, p.UserID, "loan.request", "requested loan %s for %s at %s%%",
		loan.ID, loan.AmountRequested.StringFixed(2), loan.InterestRatePct.String())

	return loan, nil
}

func (s *LoanRegistry) validateRequest(req domain.CreateLoanRequest, purpose string) error {
	opts := s.deps.Options

	if !utils.IsPositiveAmount(req.AmountRequested) {
		return customError.WrapInvalidAmount(req.AmountRequested)
	}
	if req.AmountRequested.LessThan(opts.MinLoanAmount) || req.AmountRequested.GreaterThan(opts.MaxLoanAmount) {
		return customError.WrapValidationFailed(fmt.Sprintf("amount must be between %s and %s",
			opts.MinLoanAmount.StringFixed(2), opts.MaxLoanAmount.StringFixed(2)))
	}
	if !utils.IsCurrencyAmount(req.InterestRatePct) ||
		req.InterestRatePct.LessThan(opts.MinInterestRate) || req.InterestRatePct.GreaterThan(opts.MaxInterestRate) {
		return customError.WrapValidationFailed(fmt.Sprintf("interest rate must be between %s%% and %s%%",
			opts.MinInterestRate.String(), opts.MaxInterestRate.String()))
	}
	if n := utf8.RuneCountInString(purpose); n < minPurposeLength || n > maxPurposeLength {
		return customError.WrapValidationFailed(fmt.Sprintf("purpose must be between %d and %d characters",
			minPurposeLength, maxPurposeLength))
	}
	return nil
}

// Approve moves a Pending loan to Approved on behalf of an admin.
func (s *LoanRegistry) Approve(ctx context.Context, admin domain.Principal, loanID uuid.UUID) (*domain.LoanRequest, error) {
	return s.review(ctx, admin, loanID, domain.LoanStatusApproved)
}

// Reject moves a Pending loan to Rejected on behalf of an admin.
func (s *LoanRegistry) Reject(ctx context.Context, admin domain.Principal, loanID uuid.UUID) (*domain.LoanRequest, error) {
	return s.review(ctx, admin, loanID, domain.LoanStatusRejected)
}

func (s *LoanRegistry) review(ctx context.Context, admin domain.Principal, loanID uuid.UUID, next domain.LoanStatus) (*domain.LoanRequest, error) {
	if err := requireRole(admin, domain.RoleAdmin, "review loans"); err != nil {
		return nil, err
	}

	var reviewed *domain.LoanRequest
	err := withRetry(ctx, s.deps.Options, func() error {
		return s.deps.UoW.WithinLoanTx(ctx, loanID, func(r repository.Repos, loan *domain.LoanRequest) error {
			approver := admin.UserID
			loan.ApproverID = &approver
			if err := s.transition(ctx, r, loan, next); err != nil {
				return err
			}
			reviewed = loan
			return nil
		})
	})
	if err != nil {
		return nil, finish(err, customError.WrapLoanNotFound(loanID.String()))
	}

	if next == domain.LoanStatusApproved {
		invalidateListings(ctx, s.deps)
	}

	logger.FromContext(ctx).Info().
		Str("loan_id", loanID.String()).
		Str("admin_id", admin.UserID.String()).
		Str("status", string(next)).
		Msg("Loan reviewed")
	recordAudit(ctx, s.deps, admin.UserID, "loan.review", "moved loan %s to %s", loanID, next)

	return reviewed, nil
}

// transition applies one state-machine step to a locked loan and stamps the lifecycle timestamps.
func (s *LoanRegistry) transition(ctx context.Context, r repository.Repos, loan *domain.LoanRequest, next domain.LoanStatus) error {
	if !loan.Status.CanTransitionTo(next) {
		return customError.WrapInvalidLoanState(loan.ID.String(), string(loan.Status), string(next))
	}

	now := s.deps.Clock.Now()
	switch next {
	case domain.LoanStatusApproved:
		loan.ApprovedAt = &now
	case domain.LoanStatusFunded:
		loan.FundedAt = &now
	case domain.LoanStatusCompleted:
		loan.CompletedAt = &now
	}
	loan.Status = next
	loan.UpdatedAt = now

	return r.Loans.Update(ctx, loan)
}

// GetLoan returns a loan from a snapshot read.
func (s *LoanRegistry) GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.LoanRequest, error) {
	loan, err := s.deps.UoW.Reader().Loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, finish(err, customError.WrapLoanNotFound(loanID.String()))
	}
	return loan, nil
}

// ListByStatus is the admin approval queue.
func (s *LoanRegistry) ListByStatus(ctx context.Context, admin domain.Principal, status domain.LoanStatus) ([]*domain.LoanRequest, error) {
	if err := requireRole(admin, domain.RoleAdmin, "list loans by status"); err != nil {
		return nil, err
	}
	loans, err := s.deps.UoW.Reader().Loans.ListByStatus(ctx, status)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return loans, nil
}
