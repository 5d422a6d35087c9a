package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/mocks"
	"github.com/segyhp/lending-engine/internal/repository"
	customError "github.com/segyhp/lending-engine/pkg/errors"
)

func TestBrowseLoans_OnlyOpenApprovedLoans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	borrower := newPrincipal(domain.RoleBorrower)
	lender := newPrincipal(domain.RoleLender)
	env.openWallet(t, lender, "20000.00")

	env.requestLoan(t, borrower, "5000", "10")
	open := env.approvedLoan(t, borrower, "8000", "10")
	full := env.approvedLoan(t, borrower, "2000", "10")

	_, err := env.engine.Funding.ContributeFunding(ctx, lender, open.ID, dec("3000"))
	require.NoError(t, err)
	_, err = env.engine.Funding.ContributeFunding(ctx, lender, full.ID, dec("2000"))
	require.NoError(t, err)

	listings, err := env.engine.Queries.BrowseLoans(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, open.ID, listings[0].Loan.ID)
	assert.True(t, listings[0].FundedTotal.Equal(dec("3000")))
	assert.True(t, listings[0].Remaining.Equal(dec("5000")))
	assert.Equal(t, 1, listings[0].LenderCount)
}

func TestBrowseLoans_ServesCacheHit(t *testing.T) {
	cached := []*domain.LoanListing{{Loan: &domain.LoanRequest{ID: uuid.New()}, Remaining: dec("10")}}
	cache := &mocks.MockListingCache{}
	cache.On("Invalidate", mock.Anything).Return(nil)
	cache.On("GetListings", mock.Anything).Return(cached, true, nil)

	env := newTestEnv(t, func(d *Dependencies) { d.Cache = cache })
	env.approvedLoan(t, newPrincipal(domain.RoleBorrower), "8000", "10")

	listings, err := env.engine.Queries.BrowseLoans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached, listings)
	cache.AssertNotCalled(t, "SetListings", mock.Anything, mock.Anything, mock.Anything)
}

func TestBrowseLoans_CacheErrorFallsBackToStorage(t *testing.T) {
	cache := &mocks.MockListingCache{}
	cache.On("Invalidate", mock.Anything).Return(nil)
	cache.On("GetListings", mock.Anything).Return(nil, false, assert.AnError)
	cache.On("Generation", mock.Anything).Return(int64(3), nil)
	cache.On("SetListings", mock.Anything, int64(3), mock.MatchedBy(func(l []*domain.LoanListing) bool { return len(l) == 1 })).Return(nil)

	env := newTestEnv(t, func(d *Dependencies) { d.Cache = cache })
	env.approvedLoan(t, newPrincipal(domain.RoleBorrower), "8000", "10")

	listings, err := env.engine.Queries.BrowseLoans(context.Background())
	require.NoError(t, err)
	assert.Len(t, listings, 1)
	cache.AssertExpectations(t)
}

func TestBrowseLoans_SkipsCacheWriteWithoutGeneration(t *testing.T) {
	cache := &mocks.MockListingCache{}
	cache.On("Invalidate", mock.Anything).Return(nil)
	cache.On("GetListings", mock.Anything).Return(nil, false, nil)
	cache.On("Generation", mock.Anything).Return(int64(0), assert.AnError)

	env := newTestEnv(t, func(d *Dependencies) { d.Cache = cache })
	env.approvedLoan(t, newPrincipal(domain.RoleBorrower), "8000", "10")

	listings, err := env.engine.Queries.BrowseLoans(context.Background())
	require.NoError(t, err)
	assert.Len(t, listings, 1)
	cache.AssertNotCalled(t, "SetListings", mock.Anything, mock.Anything, mock.Anything)
}

func TestMyLoansAndFundings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fl := env.fundLoan(t, "4000.00", "10", "1500", "2500")

	loans, err := env.engine.Queries.MyLoans(ctx, fl.borrower)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, domain.LoanStatusFunded, loans[0].Loan.Status)
	assert.True(t, loans[0].Remaining.IsZero())
	assert.Equal(t, 2, loans[0].LenderCount)

	views, err := env.engine.Queries.MyFundings(ctx, fl.lenders[1])
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Funding.Amount.Equal(dec("2500")))
	assert.Equal(t, fl.loan.ID, views[0].Loan.ID)

	_, err = env.engine.Queries.MyLoans(ctx, fl.lenders[0])
	requireCode(t, err, customError.ErrCodeForbidden)
	_, err = env.engine.Queries.MyFundings(ctx, fl.borrower)
	requireCode(t, err, customError.ErrCodeForbidden)
}

func TestSchedule_VisibilityAndTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fl := env.fundLoan(t, "4000.00", "10", "4000")

	_, err := env.engine.Distributor.PayInstallment(ctx, fl.borrower, fl.schedule[0].ID)
	require.NoError(t, err)

	view, err := env.engine.Queries.Schedule(ctx, fl.borrower, fl.loan.ID)
	require.NoError(t, err)
	require.Len(t, view.Repayments, 4)
	assert.Equal(t, 1, view.PaidCount)
	assert.Equal(t, "400.00", view.TotalInterest.StringFixed(2))
	assert.Equal(t, "4400.00", view.TotalRepayment.StringFixed(2))
	assert.Equal(t, "1100.00", view.WeeklyPayment.StringFixed(2))
	assert.Equal(t, "1100.00", view.TotalPaid.StringFixed(2))
	assert.Equal(t, "3300.00", view.TotalRemaining.StringFixed(2))
	assert.Equal(t, "12900.00", view.WalletBalance.StringFixed(2))

	lenderView, err := env.engine.Queries.Schedule(ctx, fl.lenders[0], fl.loan.ID)
	require.NoError(t, err)
	assert.True(t, lenderView.WalletBalance.IsZero())

	_, err = env.engine.Queries.Schedule(ctx, newPrincipal(domain.RoleAdmin), fl.loan.ID)
	require.NoError(t, err)

	_, err = env.engine.Queries.Schedule(ctx, newPrincipal(domain.RoleLender), fl.loan.ID)
	requireCode(t, err, customError.ErrCodeForbidden)
	_, err = env.engine.Queries.Schedule(ctx, newPrincipal(domain.RoleBorrower), fl.loan.ID)
	requireCode(t, err, customError.ErrCodeForbidden)
	_, err = env.engine.Queries.Schedule(ctx, fl.borrower, uuid.New())
	requireCode(t, err, customError.ErrCodeLoanNotFound)
}

func TestSchedule_BeforeFundingProjectsWeeklyPayment(t *testing.T) {
	env := newTestEnv(t)
	borrower := newPrincipal(domain.RoleBorrower)
	loan := env.approvedLoan(t, borrower, "1000.01", "3.33")

	view, err := env.engine.Queries.Schedule(context.Background(), borrower, loan.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Repayments)
	assert.Equal(t, "258.32", view.WeeklyPayment.StringFixed(2))
	assert.True(t, view.WalletBalance.IsZero())
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fl := env.fundLoan(t, "4000.00", "10", "1000", "3000")

	_, err := env.engine.Distributor.PayInstallment(ctx, fl.borrower, fl.schedule[0].ID)
	require.NoError(t, err)

	dash, err := env.engine.Queries.Dashboard(ctx, fl.borrower)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.ActiveLoansCount)
	assert.Equal(t, 3, dash.PendingInstallments)
	assert.Equal(t, "12900.00", dash.WalletBalance.StringFixed(2))
	assert.Equal(t, "RWF", dash.Currency)

	dash, err = env.engine.Queries.Dashboard(ctx, fl.lenders[1])
	require.NoError(t, err)
	assert.Equal(t, 1, dash.FundingsCount)
	assert.Equal(t, "3000.00", dash.TotalInvested.StringFixed(2))
	assert.Equal(t, "7825.00", dash.WalletBalance.StringFixed(2))

	dash, err = env.engine.Queries.Dashboard(ctx, newPrincipal(domain.RoleLender))
	require.NoError(t, err)
	assert.True(t, dash.WalletBalance.IsZero())
	assert.Zero(t, dash.FundingsCount)
}

func TestDueInstallments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fl := env.fundLoan(t, "4000.00", "10", "4000")

	due, err := env.engine.Queries.DueInstallments(ctx, 3*24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, due)

	env.clock.Advance(8 * 24 * time.Hour)
	due, err = env.engine.Queries.DueInstallments(ctx, 3*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, fl.schedule[0].ID, due[0].Repayment.ID)
	assert.Equal(t, fl.borrower.UserID, due[0].BorrowerID)
	assert.True(t, due[0].Overdue)

	_, err = env.engine.Distributor.PayInstallment(ctx, fl.borrower, fl.schedule[0].ID)
	require.NoError(t, err)
	due, err = env.engine.Queries.DueInstallments(ctx, 3*24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestReconciler_ReportsTamperedBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := newPrincipal(domain.RoleLender)
	env.openWallet(t, p, "10000.00")
	env.requireClean(t)

	w, err := env.engine.Ledger.GetWallet(ctx, p.UserID)
	require.NoError(t, err)
	require.NoError(t, env.store.WithinTx(ctx, func(r repository.Repos) error {
		return r.Wallets.UpdateBalance(ctx, w.ID, dec("12000"), env.clock.Now())
	}))

	report, err := env.engine.Reconciler.Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Equal(t, 1, report.WalletsChecked)
	require.Len(t, report.Wallets, 1)
	assert.Equal(t, w.ID, report.Wallets[0].WalletID)
	assert.Equal(t, "10000.00", report.Wallets[0].LedgerSum.StringFixed(2))
	assert.Empty(t, report.Fundings)
}
