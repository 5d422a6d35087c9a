package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/mocks"
	"github.com/segyhp/lending-engine/internal/repository/memory"
	customError "github.com/segyhp/lending-engine/pkg/errors"
)

func TestRequestLoan_Validation(t *testing.T) {
	tests := []struct {
		name    string
		role    domain.Role
		amount  string
		rate    string
		purpose string
		code    string
	}{
		{name: "valid", role: domain.RoleBorrower, amount: "25000.50", rate: "12.5", purpose: "  Restock the grocery shop  "},
		{name: "lender role", role: domain.RoleLender, amount: "25000", rate: "10", purpose: "Restock the grocery shop", code: customError.ErrCodeForbidden},
		{name: "zero amount", role: domain.RoleBorrower, amount: "0", rate: "10", purpose: "Restock the grocery shop", code: customError.ErrCodeInvalidAmount},
		{name: "three decimals", role: domain.RoleBorrower, amount: "1000.123", rate: "10", purpose: "Restock the grocery shop", code: customError.ErrCodeInvalidAmount},
		{name: "below minimum", role: domain.RoleBorrower, amount: "999.99", rate: "10", purpose: "Restock the grocery shop", code: customError.ErrCodeValidationFailed},
		{name: "above maximum", role: domain.RoleBorrower, amount: "10000000.01", rate: "10", purpose: "Restock the grocery shop", code: customError.ErrCodeValidationFailed},
		{name: "rate too low", role: domain.RoleBorrower, amount: "5000", rate: "0.5", purpose: "Restock the grocery shop", code: customError.ErrCodeValidationFailed},
		{name: "rate too high", role: domain.RoleBorrower, amount: "5000", rate: "20.01", purpose: "Restock the grocery shop", code: customError.ErrCodeValidationFailed},
		{name: "purpose too short", role: domain.RoleBorrower, amount: "5000", rate: "10", purpose: "  Seeds   ", code: customError.ErrCodeValidationFailed},
		{name: "purpose too long", role: domain.RoleBorrower, amount: "5000", rate: "10", purpose: strings.Repeat("a", 501), code: customError.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := newPrincipal(tt.role)

			loan, err := env.engine.Registry.RequestLoan(context.Background(), p, domain.CreateLoanRequest{
				AmountRequested: dec(tt.amount),
				InterestRatePct: dec(tt.rate),
				Purpose:         tt.purpose,
			})
			if tt.code != "" {
				requireCode(t, err, tt.code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.LoanStatusPending, loan.Status)
			assert.Equal(t, "Restock the grocery shop", loan.Purpose)
			assert.Equal(t, domain.DefaultTermWeeks, loan.TermWeeks)
			assert.Equal(t, "RWF", loan.Currency)
			assert.Equal(t, p.UserID, loan.BorrowerID)
			assert.Nil(t, loan.ApprovedAt)
		})
	}
}

func TestRequestLoan_KYCGate(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) {
		d.Options.RequireKYC = true
		d.KYC = d.UoW.(*memory.Store)
	})
	ctx := context.Background()
	p := newPrincipal(domain.RoleBorrower)
	req := domain.CreateLoanRequest{AmountRequested: dec("5000"), InterestRatePct: dec("10"), Purpose: "Buy a delivery motorbike"}

	_, err := env.engine.Registry.RequestLoan(ctx, p, req)
	requireCode(t, err, customError.ErrCodeKYCRequired)

	env.store.SetKYCApproved(p.UserID, true)
	_, err = env.engine.Registry.RequestLoan(ctx, p, req)
	require.NoError(t, err)
}

func TestRequestLoan_KYCLookupFailure(t *testing.T) {
	kyc := &mocks.MockKYCGate{}
	kyc.On("HasApprovedKYC", mock.Anything, mock.Anything).Return(false, errors.New("timeout"))

	env := newTestEnv(t, func(d *Dependencies) {
		d.Options.RequireKYC = true
		d.KYC = kyc
	})
	_, err := env.engine.Registry.RequestLoan(context.Background(), newPrincipal(domain.RoleBorrower), domain.CreateLoanRequest{
		AmountRequested: dec("5000"), InterestRatePct: dec("10"), Purpose: "Buy a delivery motorbike",
	})
	requireCode(t, err, customError.ErrCodeDatabaseError)
	kyc.AssertExpectations(t)
}

func TestReview_StateMachine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := newPrincipal(domain.RoleAdmin)
	borrower := newPrincipal(domain.RoleBorrower)

	loan := env.requestLoan(t, borrower, "5000", "10")

	_, err := env.engine.Registry.Approve(ctx, borrower, loan.ID)
	requireCode(t, err, customError.ErrCodeForbidden)

	approved, err := env.engine.Registry.Approve(ctx, admin, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.NotNil(t, approved.ApproverID)
	assert.Equal(t, admin.UserID, *approved.ApproverID)

	_, err = env.engine.Registry.Approve(ctx, admin, loan.ID)
	requireCode(t, err, customError.ErrCodeInvalidLoanState)
	_, err = env.engine.Registry.Reject(ctx, admin, loan.ID)
	requireCode(t, err, customError.ErrCodeInvalidLoanState)

	other := env.requestLoan(t, borrower, "6000", "10")
	rejected, err := env.engine.Registry.Reject(ctx, admin, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusRejected, rejected.Status)
	assert.Nil(t, rejected.ApprovedAt)

	_, err = env.engine.Registry.Approve(ctx, admin, other.ID)
	requireCode(t, err, customError.ErrCodeInvalidLoanState)

	_, err = env.engine.Registry.Approve(ctx, admin, uuid.New())
	requireCode(t, err, customError.ErrCodeLoanNotFound)
}

func TestListByStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := newPrincipal(domain.RoleAdmin)
	borrower := newPrincipal(domain.RoleBorrower)

	env.requestLoan(t, borrower, "5000", "10")
	env.approvedLoan(t, borrower, "7000", "10")

	pending, err := env.engine.Registry.ListByStatus(ctx, admin, domain.LoanStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].AmountRequested.Equal(dec("5000")))

	_, err = env.engine.Registry.ListByStatus(ctx, borrower, domain.LoanStatusPending)
	requireCode(t, err, customError.ErrCodeForbidden)
}

func TestLoanStatus_Transitions(t *testing.T) {
	allowed := map[domain.LoanStatus][]domain.LoanStatus{
		domain.LoanStatusPending:  {domain.LoanStatusApproved, domain.LoanStatusRejected},
		domain.LoanStatusApproved: {domain.LoanStatusFunded},
		domain.LoanStatusFunded:   {domain.LoanStatusRepaying, domain.LoanStatusCompleted},
		domain.LoanStatusRepaying: {domain.LoanStatusRepaying, domain.LoanStatusCompleted},
	}
	all := []domain.LoanStatus{
		domain.LoanStatusPending, domain.LoanStatusApproved, domain.LoanStatusRejected,
		domain.LoanStatusFunded, domain.LoanStatusRepaying, domain.LoanStatusCompleted,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, domain.LoanStatusRejected.IsTerminal())
	assert.True(t, domain.LoanStatusCompleted.IsTerminal())
	assert.False(t, domain.LoanStatusRepaying.IsTerminal())
}
