package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan request.
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "Pending"
	LoanStatusApproved  LoanStatus = "Approved"
	LoanStatusRejected  LoanStatus = "Rejected"
	LoanStatusFunded    LoanStatus = "Funded"
	LoanStatusRepaying  LoanStatus = "Repaying"
	LoanStatusCompleted LoanStatus = "Completed"
)

// DefaultTermWeeks is the number of weekly installments every funded loan is split into.
const DefaultTermWeeks = 4

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:  {LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved: {LoanStatusFunded},
	LoanStatusFunded:   {LoanStatusRepaying, LoanStatusCompleted},
	LoanStatusRepaying: {LoanStatusRepaying, LoanStatusCompleted},
}

// CanTransitionTo reports whether the state machine permits moving from s to next.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s LoanStatus) IsTerminal() bool {
	return len(loanTransitions[s]) == 0
}

// IsActive reports whether the loan counts as active on the borrower dashboard.
func (s LoanStatus) IsActive() bool {
	return s == LoanStatusApproved || s == LoanStatusFunded || s == LoanStatusRepaying
}

// LoanRequest represents a borrower's request for funding
type LoanRequest struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	BorrowerID      uuid.UUID       `json:"borrower_id" db:"borrower_id"`
	AmountRequested decimal.Decimal `json:"amount_requested" db:"amount_requested"`
	Currency        string          `json:"currency" db:"currency"`
	Purpose         string          `json:"purpose" db:"purpose"`
	InterestRatePct decimal.Decimal `json:"interest_rate_pct" db:"interest_rate_pct"`
	TermWeeks       int             `json:"term_weeks" db:"term_weeks"`
	Status          LoanStatus      `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	ApproverID      *uuid.UUID      `json:"approver_id,omitempty" db:"approver_id"`
	FundedAt        *time.Time      `json:"funded_at,omitempty" db:"funded_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// TotalInterest returns the flat interest owed over the whole term, rounded to the minor unit.
func (l *LoanRequest) TotalInterest() decimal.Decimal {
	return l.AmountRequested.Mul(l.InterestRatePct).Div(decimal.NewFromInt(100)).Round(2)
}

// TotalRepayment returns principal plus interest.
func (l *LoanRequest) TotalRepayment() decimal.Decimal {
	return l.AmountRequested.Add(l.TotalInterest())
}

// LoanFunding is one lender's contribution to a loan. Immutable once created.
type LoanFunding struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	LoanID   uuid.UUID       `json:"loan_id" db:"loan_id"`
	LenderID uuid.UUID       `json:"lender_id" db:"lender_id"`
	Amount   decimal.Decimal `json:"amount" db:"amount"`
	FundedAt time.Time       `json:"funded_at" db:"funded_at"`
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	AmountRequested decimal.Decimal `json:"amount_requested" validate:"decimal_gt=0"`
	InterestRatePct decimal.Decimal `json:"interest_rate_pct" validate:"decimal_gt=0"`
	Purpose         string          `json:"purpose" validate:"required,min=10,max=500"`
}

type FundLoanRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"decimal_gt=0"`
}

type FundingResult struct {
	Funding       *LoanFunding    `json:"funding"`
	FundedTotal   decimal.Decimal `json:"funded_total"`
	Remaining     decimal.Decimal `json:"remaining"`
	LoanStatus    LoanStatus      `json:"loan_status"`
	LenderBalance decimal.Decimal `json:"lender_balance"`
	Schedule      []*Repayment    `json:"schedule,omitempty"`
}

// LoanListing is the browse-page projection of an approved loan.
type LoanListing struct {
	Loan        *LoanRequest    `json:"loan"`
	FundedTotal decimal.Decimal `json:"funded_total"`
	Remaining   decimal.Decimal `json:"remaining"`
	LenderCount int             `json:"lender_count"`
}

// FundingView is a lender's funding joined with the loan it went to.
type FundingView struct {
	Funding *LoanFunding `json:"funding"`
	Loan    *LoanRequest `json:"loan"`
}

// FundingTotal aggregates the funding rows of one loan.
type FundingTotal struct {
	LoanID  uuid.UUID       `json:"loan_id" db:"loan_id"`
	Total   decimal.Decimal `json:"total" db:"total"`
	Lenders int             `json:"lenders" db:"lenders"`
}
