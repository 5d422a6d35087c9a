package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/lending-engine/internal/domain"
)

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) OpenWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletService) GetWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletService) ListTransactions(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.WalletTransaction, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.WalletTransaction), args.Error(1)
}

func (m *MockWalletService) Deposit(ctx context.Context, p domain.Principal, amount decimal.Decimal) (*domain.WalletTransaction, error) {
	args := m.Called(ctx, p, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WalletTransaction), args.Error(1)
}

type MockLoanService struct {
	mock.Mock
}

func (m *MockLoanService) RequestLoan(ctx context.Context, p domain.Principal, req domain.CreateLoanRequest) (*domain.LoanRequest, error) {
	args := m.Called(ctx, p, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanRequest), args.Error(1)
}

func (m *MockLoanService) GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.LoanRequest, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanRequest), args.Error(1)
}

func (m *MockLoanService) Approve(ctx context.Context, admin domain.Principal, loanID uuid.UUID) (*domain.LoanRequest, error) {
	args := m.Called(ctx, admin, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanRequest), args.Error(1)
}

func (m *MockLoanService) Reject(ctx context.Context, admin domain.Principal, loanID uuid.UUID) (*domain.LoanRequest, error) {
	args := m.Called(ctx, admin, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanRequest), args.Error(1)
}

func (m *MockLoanService) ListByStatus(ctx context.Context, admin domain.Principal, status domain.LoanStatus) ([]*domain.LoanRequest, error) {
	args := m.Called(ctx, admin, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanRequest), args.Error(1)
}

type MockFundingService struct {
	mock.Mock
}

func (m *MockFundingService) ContributeFunding(ctx context.Context, p domain.Principal, loanID uuid.UUID, amount decimal.Decimal) (*domain.FundingResult, error) {
	args := m.Called(ctx, p, loanID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FundingResult), args.Error(1)
}

type MockRepaymentService struct {
	mock.Mock
}

func (m *MockRepaymentService) PayInstallment(ctx context.Context, p domain.Principal, repaymentID uuid.UUID) (*domain.PaymentResult, error) {
	args := m.Called(ctx, p, repaymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentResult), args.Error(1)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) BrowseLoans(ctx context.Context) ([]*domain.LoanListing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanListing), args.Error(1)
}

func (m *MockQueryService) MyLoans(ctx context.Context, p domain.Principal) ([]*domain.LoanListing, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanListing), args.Error(1)
}

func (m *MockQueryService) MyFundings(ctx context.Context, p domain.Principal) ([]*domain.FundingView, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FundingView), args.Error(1)
}

func (m *MockQueryService) Schedule(ctx context.Context, p domain.Principal, loanID uuid.UUID) (*domain.ScheduleView, error) {
	args := m.Called(ctx, p, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduleView), args.Error(1)
}

func (m *MockQueryService) Dashboard(ctx context.Context, p domain.Principal) (*domain.Dashboard, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Dashboard), args.Error(1)
}
