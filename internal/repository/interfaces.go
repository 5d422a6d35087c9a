package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/lending-engine/internal/domain"
)

// Lookups that find nothing return sql.ErrNoRows, as sqlx does.

// WalletRepository defines the interface for wallet and ledger data operations
type WalletRepository interface {
	// Create inserts a new wallet
	Create(ctx context.Context, wallet *domain.Wallet) error

	// EnsureForOwner returns the owner's wallet, inserting an empty one first if missing.
	// created reports whether this call inserted it.
	EnsureForOwner(ctx context.Context, ownerID uuid.UUID, currency string, now time.Time) (wallet *domain.Wallet, created bool, err error)

	// GetByID retrieves a wallet by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)

	// GetByOwnerID retrieves the wallet owned by a user
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)

	// LockForUpdate row-locks the given wallets in ascending ID order and returns them in that order.
	// Missing IDs are absent from the result.
	LockForUpdate(ctx context.Context, ids []uuid.UUID) ([]*domain.Wallet, error)

	// UpdateBalance overwrites the stored balance
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, now time.Time) error

	// AppendTransaction appends a ledger row
	AppendTransaction(ctx context.Context, txn *domain.WalletTransaction) error

	// ListTransactions returns the newest ledger rows of a wallet first
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit int) ([]*domain.WalletTransaction, error)

	// LedgerSums returns the signed sum of ledger rows per wallet
	LedgerSums(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error)

	// ListAll returns every wallet
	ListAll(ctx context.Context) ([]*domain.Wallet, error)
}

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.LoanRequest) error

	// GetByID retrieves a loan by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LoanRequest, error)

	// GetByIDForUpdate retrieves a loan and holds its row lock until the transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.LoanRequest, error)

	// Update persists status and lifecycle timestamps
	Update(ctx context.Context, loan *domain.LoanRequest) error

	// ListByStatus returns loans in the given status, oldest first
	ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.LoanRequest, error)

	// ListByBorrower returns a borrower's loans, newest first
	ListByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*domain.LoanRequest, error)

	// ListAll returns every loan
	ListAll(ctx context.Context) ([]*domain.LoanRequest, error)
}

// FundingRepository defines the interface for loan funding data operations
type FundingRepository interface {
	// Create records a funding row
	Create(ctx context.Context, funding *domain.LoanFunding) error

	// ListByLoanID returns a loan's fundings ordered by (funded_at, id)
	ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanFunding, error)

	// SumByLoanID returns the total funded for a loan
	SumByLoanID(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error)

	// ListByLenderID returns a lender's fundings, newest first
	ListByLenderID(ctx context.Context, lenderID uuid.UUID) ([]*domain.LoanFunding, error)

	// TotalsByLoanIDs aggregates funding per loan; loans without fundings are absent
	TotalsByLoanIDs(ctx context.Context, loanIDs []uuid.UUID) (map[uuid.UUID]domain.FundingTotal, error)
}

// RepaymentRepository defines the interface for repayment schedule data operations
type RepaymentRepository interface {
	// CreateBatch inserts a loan's installments
	CreateBatch(ctx context.Context, repayments []*domain.Repayment) error

	// GetByID retrieves an installment
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Repayment, error)

	// ListByLoanID returns a loan's installments ordered by installment number
	ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.Repayment, error)

	// MarkPaid flips a Pending installment to Paid. It reports false when the row was not Pending.
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)

	// ListPendingDueBefore returns pending installments scheduled before the cutoff, with their borrower
	ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]*domain.DueInstallment, error)

	// CountPendingByBorrower counts a borrower's unpaid installments
	CountPendingByBorrower(ctx context.Context, borrowerID uuid.UUID) (int, error)
}

// AuditRepository persists audit entries
type AuditRepository interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
}

// KYCRepository answers the KYC gate
type KYCRepository interface {
	HasApprovedKYC(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Repos groups the aggregate repositories bound to one transaction or snapshot
type Repos struct {
	Wallets    WalletRepository
	Loans      LoanRepository
	Fundings   FundingRepository
	Repayments RepaymentRepository
}

// UnitOfWork scopes repository access to an explicit transaction
type UnitOfWork interface {
	// WithinTx runs fn in one transaction; fn's error rolls everything back
	WithinTx(ctx context.Context, fn func(r Repos) error) error

	// WithinLoanTx locks the loan row first, then runs fn with it
	WithinLoanTx(ctx context.Context, loanID uuid.UUID, fn func(r Repos, loan *domain.LoanRequest) error) error

	// WithinSnapshot runs fn against one consistent read-only view of committed state
	WithinSnapshot(ctx context.Context, fn func(r Repos) error) error

	// Reader returns non-locking repositories for display reads, which may be stale
	Reader() Repos
}
