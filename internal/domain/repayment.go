package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RepaymentStatus string

const (
	RepaymentStatusPending RepaymentStatus = "Pending"
	RepaymentStatusPaid    RepaymentStatus = "Paid"
)

// Repayment represents one scheduled installment of a funded loan
type Repayment struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	LoanID          uuid.UUID       `json:"loan_id" db:"loan_id"`
	InstallmentNo   int             `json:"installment_no" db:"installment_no"`
	ScheduledDate   time.Time       `json:"scheduled_date" db:"scheduled_date"`
	PrincipalAmount decimal.Decimal `json:"principal_amount" db:"principal_amount"`
	InterestAmount  decimal.Decimal `json:"interest_amount" db:"interest_amount"`
	Status          RepaymentStatus `json:"status" db:"status"`
	PaidAt          *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
}

// Total returns principal plus interest for the installment.
func (r *Repayment) Total() decimal.Decimal {
	return r.PrincipalAmount.Add(r.InterestAmount)
}

// LenderShare is the portion of one installment credited back to a funding row.
type LenderShare struct {
	FundingID     uuid.UUID       `json:"funding_id"`
	LenderID      uuid.UUID       `json:"lender_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID uuid.UUID       `json:"transaction_id"`
}

type PaymentResult struct {
	Repayment       *Repayment      `json:"repayment"`
	TotalPayment    decimal.Decimal `json:"total_payment"`
	BorrowerBalance decimal.Decimal `json:"borrower_balance"`
	Shares          []LenderShare   `json:"shares"`
	LoanStatus      LoanStatus      `json:"loan_status"`
}

// ScheduleView is the borrower-facing schedule with running totals.
type ScheduleView struct {
	Loan           *LoanRequest    `json:"loan"`
	Repayments     []*Repayment    `json:"repayments"`
	TotalInterest  decimal.Decimal `json:"total_interest"`
	TotalRepayment decimal.Decimal `json:"total_repayment"`
	WeeklyPayment  decimal.Decimal `json:"weekly_payment"`
	PaidCount      int             `json:"paid_count"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	TotalRemaining decimal.Decimal `json:"total_remaining"`
	WalletBalance  decimal.Decimal `json:"wallet_balance"`
}

// DueInstallment is a pending installment reported by the due-date job.
type DueInstallment struct {
	Repayment  *Repayment `json:"repayment"`
	BorrowerID uuid.UUID  `json:"borrower_id"`
	Overdue    bool       `json:"overdue"`
}
