package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository/memory"
	customError "github.com/segyhp/lending-engine/pkg/errors"
)

var testStart = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine *Engine
	store  *memory.Store
	clock  *testClock
	deps   Dependencies
}

func newTestEnv(t *testing.T, mutate ...func(*Dependencies)) *testEnv {
	t.Helper()

	store := memory.NewStore()
	clock := &testClock{now: testStart}

	opts := DefaultOptions()
	opts.RequireKYC = false
	opts.RetryBackoff = time.Millisecond

	deps := Dependencies{
		UoW:     store,
		Clock:   clock,
		Audit:   store,
		Options: opts,
	}
	for _, m := range mutate {
		m(&deps)
	}

	return &testEnv{engine: NewEngine(deps), store: store, clock: clock, deps: deps}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newPrincipal(role domain.Role) domain.Principal {
	return domain.Principal{UserID: uuid.New(), Role: role}
}

// openWallet opens p's wallet and tops it up to balance.
func (e *testEnv) openWallet(t *testing.T, p domain.Principal, balance string) {
	t.Helper()
	ctx := context.Background()

	w, err := e.engine.Ledger.OpenWallet(ctx, p.UserID)
	require.NoError(t, err)

	if top := dec(balance).Sub(w.Balance); top.IsPositive() {
		_, err := e.engine.Ledger.Deposit(ctx, p, top)
		require.NoError(t, err)
	}
}

func (e *testEnv) balance(t *testing.T, p domain.Principal) decimal.Decimal {
	t.Helper()
	w, err := e.engine.Ledger.GetWallet(context.Background(), p.UserID)
	require.NoError(t, err)
	return w.Balance
}

func (e *testEnv) requestLoan(t *testing.T, borrower domain.Principal, amount, rate string) *domain.LoanRequest {
	t.Helper()
	loan, err := e.engine.Registry.RequestLoan(context.Background(), borrower, domain.CreateLoanRequest{
		AmountRequested: dec(amount),
		InterestRatePct: dec(rate),
		Purpose:         "Expand the tailoring workshop",
	})
	require.NoError(t, err)
	return loan
}

func (e *testEnv) approvedLoan(t *testing.T, borrower domain.Principal, amount, rate string) *domain.LoanRequest {
	t.Helper()
	loan := e.requestLoan(t, borrower, amount, rate)
	approved, err := e.engine.Registry.Approve(context.Background(), newPrincipal(domain.RoleAdmin), loan.ID)
	require.NoError(t, err)
	return approved
}

func (e *testEnv) loan(t *testing.T, id uuid.UUID) *domain.LoanRequest {
	t.Helper()
	loan, err := e.engine.Registry.GetLoan(context.Background(), id)
	require.NoError(t, err)
	return loan
}

func (e *testEnv) requireClean(t *testing.T) {
	t.Helper()
	report, err := e.engine.Reconciler.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Clean(), "reconciliation found discrepancies: %+v", report)
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, customError.CodeOf(err), "unexpected error: %v", err)
}
