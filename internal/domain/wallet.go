package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind classifies a wallet ledger row
type TransactionKind string

const (
	TransactionKindDeposit          TransactionKind = "Deposit"
	TransactionKindLoanFunding      TransactionKind = "LoanFunding"
	TransactionKindLoanDisbursement TransactionKind = "LoanDisbursement"
	TransactionKindLoanRepayment    TransactionKind = "LoanRepayment"
)

// Direction carries the sign of a ledger row; Amount itself is always positive.
type Direction string

const (
	DirectionCredit Direction = "Credit"
	DirectionDebit  Direction = "Debit"
)

// Wallet is a user's balance in the closed-loop ledger
type Wallet struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OwnerID   uuid.UUID       `json:"owner_id" db:"owner_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Currency  string          `json:"currency" db:"currency"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// WalletTransaction is an append-only ledger row
type WalletTransaction struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	WalletID      uuid.UUID       `json:"wallet_id" db:"wallet_id"`
	Kind          TransactionKind `json:"kind" db:"kind"`
	Direction     Direction       `json:"direction" db:"direction"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	RelatedLoanID *uuid.UUID      `json:"related_loan_id,omitempty" db:"related_loan_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Signed returns the amount with the sign implied by Direction.
func (t *WalletTransaction) Signed() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"decimal_gt=0"`
}

// WalletDiscrepancy is reported by reconciliation when a balance disagrees with its log.
type WalletDiscrepancy struct {
	WalletID  uuid.UUID       `json:"wallet_id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
}

// FundingDiscrepancy is reported when a loan has more funding than it requested.
type FundingDiscrepancy struct {
	LoanID          uuid.UUID       `json:"loan_id"`
	AmountRequested decimal.Decimal `json:"amount_requested"`
	FundedTotal     decimal.Decimal `json:"funded_total"`
}

type ReconciliationReport struct {
	WalletsChecked int                  `json:"wallets_checked"`
	LoansChecked   int                  `json:"loans_checked"`
	Wallets        []WalletDiscrepancy  `json:"wallets"`
	Fundings       []FundingDiscrepancy `json:"fundings"`
}

// Clean reports whether no discrepancy was found.
func (r *ReconciliationReport) Clean() bool {
	return len(r.Wallets) == 0 && len(r.Fundings) == 0
}
