package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleBorrower Role = "Borrower"
	RoleLender   Role = "Lender"
	RoleAdmin    Role = "Admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleBorrower || r == RoleLender || r == RoleAdmin
}

// Principal is the authenticated caller handed to every engine operation.
type Principal struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

// AuditEntry is a best-effort description of an operation for the audit collaborator.
type AuditEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	Details   string    `json:"details" db:"details"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Dashboard summarises a user's position; lender and borrower fields are filled by role.
type Dashboard struct {
	UserID              uuid.UUID       `json:"user_id"`
	Role                Role            `json:"role"`
	WalletBalance       decimal.Decimal `json:"wallet_balance"`
	Currency            string          `json:"currency"`
	ActiveLoansCount    int             `json:"active_loans_count,omitempty"`
	FundingsCount       int             `json:"fundings_count,omitempty"`
	TotalInvested       decimal.Decimal `json:"total_invested"`
	PendingInstallments int             `json:"pending_installments,omitempty"`
}
