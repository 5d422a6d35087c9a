package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/middleware"
	"github.com/segyhp/lending-engine/internal/mocks"
	customError "github.com/segyhp/lending-engine/pkg/errors"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	router     http.Handler
	auth       *middleware.Authenticator
	wallets    *mocks.MockWalletService
	loans      *mocks.MockLoanService
	funding    *mocks.MockFundingService
	repayments *mocks.MockRepaymentService
	queries    *mocks.MockQueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		auth:       middleware.NewAuthenticator("handler-test-secret"),
		wallets:    new(mocks.MockWalletService),
		loans:      new(mocks.MockLoanService),
		funding:    new(mocks.MockFundingService),
		repayments: new(mocks.MockRepaymentService),
		queries:    new(mocks.MockQueryService),
	}
	f.router = NewRouter(Routes{
		Lending: NewLendingHandler(f.wallets, f.loans, f.funding, f.repayments, f.queries),
		Admin:   NewAdminHandler(f.loans),
		Health:  NewHealthHandler(nil, nil, time.Second),
		Auth:    f.auth,
	})
	t.Cleanup(func() {
		f.wallets.AssertExpectations(t)
		f.loans.AssertExpectations(t)
		f.funding.AssertExpectations(t)
		f.repayments.AssertExpectations(t)
		f.queries.AssertExpectations(t)
	})
	return f
}

func (f *fixture) do(t *testing.T, p *domain.Principal, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		token, err := f.auth.IssueToken(p.UserID, p.Role, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func user(role domain.Role) *domain.Principal {
	return &domain.Principal{UserID: uuid.New(), Role: role}
}

func decEq(s string) interface{} {
	want := decimal.RequireFromString(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{customError.ErrCodeLoanNotFound, http.StatusNotFound},
		{customError.ErrCodeWalletNotFound, http.StatusNotFound},
		{customError.ErrCodeRepaymentNotFound, http.StatusNotFound},
		{customError.ErrCodeInvalidLoanState, http.StatusConflict},
		{customError.ErrCodeAlreadyFullyFunded, http.StatusConflict},
		{customError.ErrCodeOverfundingAttempt, http.StatusConflict},
		{customError.ErrCodeAlreadyPaid, http.StatusConflict},
		{customError.ErrCodeConcurrencyConflict, http.StatusConflict},
		{customError.ErrCodeInvalidAmount, http.StatusUnprocessableEntity},
		{customError.ErrCodeInsufficientFunds, http.StatusUnprocessableEntity},
		{customError.ErrCodeValidationFailed, http.StatusUnprocessableEntity},
		{customError.ErrCodeKYCRequired, http.StatusUnprocessableEntity},
		{customError.ErrCodeForbidden, http.StatusForbidden},
		{customError.ErrCodeCacheError, http.StatusServiceUnavailable},
		{customError.ErrCodeDatabaseError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.code))
		})
	}
}

func TestRoutes_RequireToken(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, nil, http.MethodGet, "/api/v1/dashboard", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := f.do(t, nil, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	lender := user(domain.RoleLender)

	txn := &domain.WalletTransaction{
		ID:           uuid.New(),
		Kind:         domain.TransactionKindDeposit,
		Direction:    domain.DirectionCredit,
		Amount:       decimal.RequireFromString("500.00"),
		BalanceAfter: decimal.RequireFromString("10500.00"),
	}
	f.wallets.On("Deposit", mock.Anything, *lender, decEq("500")).Return(txn, nil).Once()

	rec, env := f.do(t, lender, http.MethodPost, "/api/v1/wallets/me/deposits", `{"amount":"500"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got domain.WalletTransaction
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, txn.ID, got.ID)
	assert.True(t, got.BalanceAfter.Equal(txn.BalanceAfter))
}

func TestDeposit_RejectedBeforeService(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "broken json", body: `{"amount":`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"amount":"5","note":"x"}`, status: http.StatusBadRequest},
		{name: "zero amount", body: `{"amount":"0"}`, status: http.StatusUnprocessableEntity, code: customError.ErrCodeValidationFailed},
		{name: "negative amount", body: `{"amount":-10}`, status: http.StatusUnprocessableEntity, code: customError.ErrCodeValidationFailed},
		{name: "missing amount", body: `{}`, status: http.StatusUnprocessableEntity, code: customError.ErrCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec, env := f.do(t, user(domain.RoleLender), http.MethodPost, "/api/v1/wallets/me/deposits", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, env.Code)
		})
	}
}

func TestRequestLoan(t *testing.T) {
	f := newFixture(t)
	borrower := user(domain.RoleBorrower)
	loan := &domain.LoanRequest{ID: uuid.New(), BorrowerID: borrower.UserID, Status: domain.LoanStatusPending}

	f.loans.On("RequestLoan", mock.Anything, *borrower, mock.MatchedBy(func(req domain.CreateLoanRequest) bool {
		return req.AmountRequested.Equal(decimal.NewFromInt(50000)) && req.Purpose == "Buy a second sewing machine"
	})).Return(loan, nil).Once()

	rec, env := f.do(t, borrower, http.MethodPost, "/api/v1/loans",
		`{"amount_requested":"50000","interest_rate_pct":"12","purpose":"Buy a second sewing machine"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got domain.LoanRequest
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, loan.ID, got.ID)

	rec, env = f.do(t, borrower, http.MethodPost, "/api/v1/loans",
		`{"amount_requested":"50000","interest_rate_pct":"12","purpose":"short"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, env.Message, "purpose")
}

func TestFundLoan_MapsBusinessErrors(t *testing.T) {
	f := newFixture(t)
	lender := user(domain.RoleLender)
	loanID := uuid.New()

	f.funding.On("ContributeFunding", mock.Anything, *lender, loanID, decEq("2500")).
		Return(nil, customError.WrapOverfundingAttempt(decimal.NewFromInt(2500), decimal.NewFromInt(1000))).Once()

	rec, env := f.do(t, lender, http.MethodPost, "/api/v1/loans/"+loanID.String()+"/fundings", `{"amount":2500}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, customError.ErrCodeOverfundingAttempt, env.Code)
	assert.False(t, env.Success)

	rec, _ = f.do(t, lender, http.MethodPost, "/api/v1/loans/not-a-uuid/fundings", `{"amount":2500}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFundLoan_Success(t *testing.T) {
	f := newFixture(t)
	lender := user(domain.RoleLender)
	loanID := uuid.New()
	result := &domain.FundingResult{
		Funding:    &domain.LoanFunding{ID: uuid.New(), LoanID: loanID, LenderID: lender.UserID},
		LoanStatus: domain.LoanStatusFunded,
		Remaining:  decimal.Zero,
	}
	f.funding.On("ContributeFunding", mock.Anything, *lender, loanID, decEq("1000")).Return(result, nil).Once()

	rec, env := f.do(t, lender, http.MethodPost, "/api/v1/loans/"+loanID.String()+"/fundings", `{"amount":"1000.00"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got domain.FundingResult
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, domain.LoanStatusFunded, got.LoanStatus)
}

func TestPayInstallment(t *testing.T) {
	f := newFixture(t)
	borrower := user(domain.RoleBorrower)
	paid := uuid.New()
	done := uuid.New()

	f.repayments.On("PayInstallment", mock.Anything, *borrower, paid).
		Return(&domain.PaymentResult{LoanStatus: domain.LoanStatusRepaying}, nil).Once()
	f.repayments.On("PayInstallment", mock.Anything, *borrower, done).
		Return(nil, customError.WrapAlreadyPaid(done.String())).Once()

	rec, _ := f.do(t, borrower, http.MethodPost, "/api/v1/repayments/"+paid.String()+"/pay", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := f.do(t, borrower, http.MethodPost, "/api/v1/repayments/"+done.String()+"/pay", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, customError.ErrCodeAlreadyPaid, env.Code)
}

func TestLoanRoutes_MineIsNotALoanID(t *testing.T) {
	f := newFixture(t)
	borrower := user(domain.RoleBorrower)
	loanID := uuid.New()

	f.queries.On("MyLoans", mock.Anything, *borrower).Return([]*domain.LoanListing{}, nil).Once()
	f.loans.On("GetLoan", mock.Anything, loanID).Return(nil, customError.WrapLoanNotFound(loanID.String())).Once()
	f.queries.On("BrowseLoans", mock.Anything).Return(nil, customError.WrapDatabaseError(errors.New("connection reset"))).Once()

	rec, _ := f.do(t, borrower, http.MethodGet, "/api/v1/loans/mine", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := f.do(t, borrower, http.MethodGet, "/api/v1/loans/"+loanID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, customError.ErrCodeLoanNotFound, env.Code)

	rec, env = f.do(t, borrower, http.MethodGet, "/api/v1/loans", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", env.Message)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestScheduleAndDashboard(t *testing.T) {
	f := newFixture(t)
	lender := user(domain.RoleLender)
	loanID := uuid.New()

	f.queries.On("Schedule", mock.Anything, *lender, loanID).
		Return(nil, customError.WrapForbidden("not a party to this loan")).Once()
	f.queries.On("Dashboard", mock.Anything, *lender).
		Return(&domain.Dashboard{UserID: lender.UserID, Role: domain.RoleLender, FundingsCount: 2}, nil).Once()
	f.queries.On("MyFundings", mock.Anything, *lender).Return([]*domain.FundingView{}, nil).Once()

	rec, env := f.do(t, lender, http.MethodGet, "/api/v1/loans/"+loanID.String()+"/schedule", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, customError.ErrCodeForbidden, env.Code)

	rec, env = f.do(t, lender, http.MethodGet, "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dash domain.Dashboard
	require.NoError(t, json.Unmarshal(env.Data, &dash))
	assert.Equal(t, 2, dash.FundingsCount)

	rec, _ = f.do(t, lender, http.MethodGet, "/api/v1/fundings/mine", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWalletRoutes(t *testing.T) {
	f := newFixture(t)
	p := user(domain.RoleBorrower)
	wallet := &domain.Wallet{ID: uuid.New(), OwnerID: p.UserID, Balance: decimal.RequireFromString("10000.00"), Currency: "RWF"}

	f.wallets.On("OpenWallet", mock.Anything, p.UserID).Return(wallet, nil).Once()
	f.wallets.On("GetWallet", mock.Anything, p.UserID).Return(wallet, nil).Once()
	f.wallets.On("ListTransactions", mock.Anything, p.UserID, 5).Return([]*domain.WalletTransaction{}, nil).Once()

	rec, _ := f.do(t, p, http.MethodPost, "/api/v1/wallets", "")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env := f.do(t, p, http.MethodGet, "/api/v1/wallets/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Wallet
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.Balance.Equal(wallet.Balance))

	rec, _ = f.do(t, p, http.MethodGet, "/api/v1/wallets/me/transactions?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, p, http.MethodGet, "/api/v1/wallets/me/transactions?limit=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	admin := user(domain.RoleAdmin)
	loanID := uuid.New()

	f.loans.On("ListByStatus", mock.Anything, *admin, domain.LoanStatusPending).Return([]*domain.LoanRequest{}, nil).Once()
	f.loans.On("ListByStatus", mock.Anything, *admin, domain.LoanStatusApproved).Return([]*domain.LoanRequest{}, nil).Once()
	f.loans.On("Approve", mock.Anything, *admin, loanID).
		Return(&domain.LoanRequest{ID: loanID, Status: domain.LoanStatusApproved}, nil).Once()
	f.loans.On("Reject", mock.Anything, *admin, loanID).
		Return(nil, customError.WrapInvalidLoanState(loanID.String(), "Approved", "Rejected")).Once()

	rec, _ := f.do(t, admin, http.MethodGet, "/api/v1/admin/loans", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, admin, http.MethodGet, "/api/v1/admin/loans?status=Approved", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, admin, http.MethodGet, "/api/v1/admin/loans?status=Lost", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := f.do(t, admin, http.MethodPost, "/api/v1/admin/loans/"+loanID.String()+"/approve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.LoanRequest
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, domain.LoanStatusApproved, got.Status)

	rec, env = f.do(t, admin, http.MethodPost, "/api/v1/admin/loans/"+loanID.String()+"/reject", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, customError.ErrCodeInvalidLoanState, env.Code)

	rec, _ = f.do(t, user(domain.RoleLender), http.MethodPost, "/api/v1/admin/loans/"+loanID.String()+"/approve", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIdempotentFunding(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	funding := new(mocks.MockFundingService)
	auth := middleware.NewAuthenticator("handler-test-secret")
	router := NewRouter(Routes{
		Lending:     NewLendingHandler(nil, nil, funding, nil, nil),
		Admin:       NewAdminHandler(nil),
		Health:      NewHealthHandler(nil, rdb, time.Second),
		Auth:        auth,
		Idempotency: middleware.Idempotency(rdb, time.Minute),
	})

	lender := user(domain.RoleLender)
	loanID := uuid.New()
	funding.On("ContributeFunding", mock.Anything, *lender, loanID, decEq("300")).
		Return(&domain.FundingResult{LoanStatus: domain.LoanStatusApproved}, nil).Once()

	token, err := auth.IssueToken(lender.UserID, lender.Role, time.Minute)
	require.NoError(t, err)
	key := uuid.NewString()

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/"+loanID.String()+"/fundings", strings.NewReader(`{"amount":"300"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(middleware.IdempotencyKeyHeader, key)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	second := send()
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(middleware.IdempotentReplayHeader))
	funding.AssertExpectations(t)
}

func TestReady(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil, time.Second).Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"memory"`)
	assert.Contains(t, rec.Body.String(), `"redis":"disabled"`)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	h := NewHealthHandler(nil, rdb, time.Second)

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed")
}
