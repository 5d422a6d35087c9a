package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/lending-engine/internal/domain"
)

const loanColumns = `id, borrower_id, amount_requested, currency, purpose, interest_rate_pct, term_weeks, status,
		created_at, updated_at, approved_at, approver_id, funded_at, completed_at`

type loanRepository struct {
	db sqlx.ExtContext
}

func NewLoanRepository(db sqlx.ExtContext) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.LoanRequest) error {
	query := `
		INSERT INTO loans (id, borrower_id, amount_requested, currency, purpose, interest_rate_pct, term_weeks, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		loan.ID,
		loan.BorrowerID,
		loan.AmountRequested,
		loan.Currency,
		loan.Purpose,
		loan.InterestRatePct,
		loan.TermWeeks,
		loan.Status,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LoanRequest, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	var loan domain.LoanRequest
	if err := sqlx.GetContext(ctx, r.db, &loan, query, id); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.LoanRequest, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`

	var loan domain.LoanRequest
	if err := sqlx.GetContext(ctx, r.db, &loan, query, id); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.LoanRequest) error {
	query := `
		UPDATE loans
		SET status = $2, updated_at = $3, approved_at = $4, approver_id = $5, funded_at = $6, completed_at = $7
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		loan.ID,
		loan.Status,
		loan.UpdatedAt,
		loan.ApprovedAt,
		loan.ApproverID,
		loan.FundedAt,
		loan.CompletedAt,
	)

	return err
}

func (r *loanRepository) ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.LoanRequest, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE status = $1 ORDER BY created_at, id`

	var loans []*domain.LoanRequest
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, status); err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*domain.LoanRequest, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE borrower_id = $1 ORDER BY created_at DESC, id`

	var loans []*domain.LoanRequest
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, borrowerID); err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListAll(ctx context.Context) ([]*domain.LoanRequest, error) {
	query := `SELECT ` + loanColumns + ` FROM loans ORDER BY created_at, id`

	var loans []*domain.LoanRequest
	if err := sqlx.SelectContext(ctx, r.db, &loans, query); err != nil {
		return nil, err
	}
	return loans, nil
}
