package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/logger"
	"github.com/segyhp/lending-engine/pkg/utils"
)

// QueryService serves display reads. Results come from snapshot reads and may be stale.
type QueryService struct {
	deps Dependencies
}

func NewQueryService(deps Dependencies) *QueryService {
	return &QueryService{deps: deps.withDefaults()}
}

// BrowseLoans lists approved loans that still accept funding.
func (s *QueryService) BrowseLoans(ctx context.Context) ([]*domain.LoanListing, error) {
	log := logger.FromContext(ctx)

	// the generation is read before storage so a concurrent invalidation wins
	cacheable := false
	var generation int64
	if s.deps.Cache != nil {
		listings, found, err := s.deps.Cache.GetListings(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Loan listing cache read failed")
		} else if found {
			return listings, nil
		}
		if generation, err = s.deps.Cache.Generation(ctx); err != nil {
			log.Warn().Err(err).Msg("Loan listing cache generation read failed")
		} else {
			cacheable = true
		}
	}

	reader := s.deps.UoW.Reader()
	loans, err := reader.Loans.ListByStatus(ctx, domain.LoanStatusApproved)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	listings, err := s.listings(ctx, reader, loans)
	if err != nil {
		return nil, err
	}

	open := make([]*domain.LoanListing, 0, len(listings))
	for _, l := range listings {
		if l.Remaining.IsPositive() {
			open = append(open, l)
		}
	}

	if cacheable {
		if err := s.deps.Cache.SetListings(ctx, generation, open); err != nil {
			log.Warn().Err(err).Msg("Loan listing cache write failed")
		}
	}
	return open, nil
}

// MyLoans lists the calling borrower's loans with their funding progress.
func (s *QueryService) MyLoans(ctx context.Context, p domain.Principal) ([]*domain.LoanListing, error) {
	if err := requireRole(p, domain.RoleBorrower, "list borrower loans"); err != nil {
		return nil, err
	}
	reader := s.deps.UoW.Reader()
	loans, err := reader.Loans.ListByBorrower(ctx, p.UserID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return s.listings(ctx, reader, loans)
}

func (s *QueryService) listings(ctx context.Context, reader repository.Repos, loans []*domain.LoanRequest) ([]*domain.LoanListing, error) {
	ids := make([]uuid.UUID, 0, len(loans))
	for _, l := range loans {
		ids = append(ids, l.ID)
	}
	totals, err := reader.Fundings.TotalsByLoanIDs(ctx, ids)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	listings := make([]*domain.LoanListing, 0, len(loans))
	for _, l := range loans {
		t := totals[l.ID]
		funded := t.Total
		remaining := l.AmountRequested.Sub(funded)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		listings = append(listings, &domain.LoanListing{
			Loan:        l,
			FundedTotal: funded,
			Remaining:   remaining,
			LenderCount: t.Lenders,
		})
	}
	return listings, nil
}

// MyFundings lists the calling lender's contributions with the loans they went to.
func (s *QueryService) MyFundings(ctx context.Context, p domain.Principal) ([]*domain.FundingView, error) {
	if err := requireRole(p, domain.RoleLender, "list lender fundings"); err != nil {
		return nil, err
	}
	reader := s.deps.UoW.Reader()
	fundings, err := reader.Fundings.ListByLenderID(ctx, p.UserID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	loans := make(map[uuid.UUID]*domain.LoanRequest)
	views := make([]*domain.FundingView, 0, len(fundings))
	for _, f := range fundings {
		loan, ok := loans[f.LoanID]
		if !ok {
			loan, err = reader.Loans.GetByID(ctx, f.LoanID)
			if err != nil {
				return nil, finish(err, customError.WrapLoanNotFound(f.LoanID.String()))
			}
			loans[f.LoanID] = loan
		}
		views = append(views, &domain.FundingView{Funding: f, Loan: loan})
	}
	return views, nil
}

// Schedule returns a loan's installments with running totals. Visible to the borrower,
// to lenders who funded the loan and to admins.
func (s *QueryService) Schedule(ctx context.Context, p domain.Principal, loanID uuid.UUID) (*domain.ScheduleView, error) {
	reader := s.deps.UoW.Reader()

	loan, err := reader.Loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, finish(err, customError.WrapLoanNotFound(loanID.String()))
	}
	if err := s.canView(ctx, reader, p, loan); err != nil {
		return nil, err
	}

	repayments, err := reader.Repayments.ListByLoanID(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	view := &domain.ScheduleView{
		Loan:           loan,
		Repayments:     repayments,
		TotalInterest:  loan.TotalInterest(),
		TotalRepayment: loan.TotalRepayment(),
		TotalPaid:      decimal.Zero,
		TotalRemaining: decimal.Zero,
		WalletBalance:  decimal.Zero,
	}
	if len(repayments) > 0 {
		view.WeeklyPayment = repayments[0].Total()
	} else {
		view.WeeklyPayment = utils.SplitEvenly(loan.TotalRepayment(), max(loan.TermWeeks, 1))[0]
	}
	for _, rp := range repayments {
		if rp.Status == domain.RepaymentStatusPaid {
			view.PaidCount++
			view.TotalPaid = view.TotalPaid.Add(rp.Total())
		} else {
			view.TotalRemaining = view.TotalRemaining.Add(rp.Total())
		}
	}

	if p.UserID == loan.BorrowerID {
		if w, err := reader.Wallets.GetByOwnerID(ctx, p.UserID); err == nil {
			view.WalletBalance = w.Balance
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapDatabaseError(err)
		}
	}
	return view, nil
}

func (s *QueryService) canView(ctx context.Context, reader repository.Repos, p domain.Principal, loan *domain.LoanRequest) error {
	switch p.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleBorrower:
		if loan.BorrowerID == p.UserID {
			return nil
		}
	case domain.RoleLender:
		fundings, err := reader.Fundings.ListByLoanID(ctx, loan.ID)
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		for _, f := range fundings {
			if f.LenderID == p.UserID {
				return nil
			}
		}
	}
	return customError.WrapForbidden("not a party to this loan")
}

// Dashboard summarises the caller's position.
func (s *QueryService) Dashboard(ctx context.Context, p domain.Principal) (*domain.Dashboard, error) {
	reader := s.deps.UoW.Reader()

	dash := &domain.Dashboard{
		UserID:        p.UserID,
		Role:          p.Role,
		WalletBalance: decimal.Zero,
		Currency:      s.deps.Options.Currency,
		TotalInvested: decimal.Zero,
	}

	w, err := reader.Wallets.GetByOwnerID(ctx, p.UserID)
	switch {
	case err == nil:
		dash.WalletBalance = w.Balance
		dash.Currency = w.Currency
	case !errors.Is(err, sql.ErrNoRows):
		return nil, customError.WrapDatabaseError(err)
	}

	switch p.Role {
	case domain.RoleBorrower:
		loans, err := reader.Loans.ListByBorrower(ctx, p.UserID)
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		for _, l := range loans {
			if l.Status.IsActive() {
				dash.ActiveLoansCount++
			}
		}
		pending, err := reader.Repayments.CountPendingByBorrower(ctx, p.UserID)
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		dash.PendingInstallments = pending
	case domain.RoleLender:
		fundings, err := reader.Fundings.ListByLenderID(ctx, p.UserID)
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		dash.FundingsCount = len(fundings)
		for _, f := range fundings {
			dash.TotalInvested = dash.TotalInvested.Add(f.Amount)
		}
	}

	return dash, nil
}

// DueInstallments returns pending installments due within window from now, overdue ones included.
func (s *QueryService) DueInstallments(ctx context.Context, window time.Duration) ([]*domain.DueInstallment, error) {
	now := s.deps.Clock.Now()
	due, err := s.deps.UoW.Reader().Repayments.ListPendingDueBefore(ctx, now.Add(window))
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	for _, d := range due {
		d.Overdue = utils.IsDateOverdue(d.Repayment.ScheduledDate, now)
	}
	return due, nil
}
