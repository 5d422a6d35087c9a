package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/lending-engine/internal/domain"
)

type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) Record(ctx context.Context, entry domain.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type MockKYCGate struct {
	mock.Mock
}

func (m *MockKYCGate) HasApprovedKYC(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type MockListingCache struct {
	mock.Mock
}

func (m *MockListingCache) GetListings(ctx context.Context) ([]*domain.LoanListing, bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]*domain.LoanListing), args.Bool(1), args.Error(2)
}

func (m *MockListingCache) Generation(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockListingCache) SetListings(ctx context.Context, generation int64, listings []*domain.LoanListing) error {
	args := m.Called(ctx, generation, listings)
	return args.Error(0)
}

func (m *MockListingCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
