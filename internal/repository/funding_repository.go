package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/segyhp/lending-engine/internal/domain"
)

type fundingRepository struct {
	db sqlx.ExtContext
}

func NewFundingRepository(db sqlx.ExtContext) FundingRepository {
	return &fundingRepository{db: db}
}

func (r *fundingRepository) Create(ctx context.Context, funding *domain.LoanFunding) error {
	query := `
		INSERT INTO loan_fundings (id, loan_id, lender_id, amount, funded_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		funding.ID,
		funding.LoanID,
		funding.LenderID,
		funding.Amount,
		funding.FundedAt,
	)

	return err
}

func (r *fundingRepository) ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanFunding, error) {
	query := `
		SELECT id, loan_id, lender_id, amount, funded_at
		FROM loan_fundings
		WHERE loan_id = $1
		ORDER BY funded_at, id
	`

	var fundings []*domain.LoanFunding
	if err := sqlx.SelectContext(ctx, r.db, &fundings, query, loanID); err != nil {
		return nil, err
	}
	return fundings, nil
}

func (r *fundingRepository) SumByLoanID(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM loan_fundings WHERE loan_id = $1`

	var total decimal.Decimal
	if err := sqlx.GetContext(ctx, r.db, &total, query, loanID); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *fundingRepository) ListByLenderID(ctx context.Context, lenderID uuid.UUID) ([]*domain.LoanFunding, error) {
	query := `
		SELECT id, loan_id, lender_id, amount, funded_at
		FROM loan_fundings
		WHERE lender_id = $1
		ORDER BY funded_at DESC, id
	`

	var fundings []*domain.LoanFunding
	if err := sqlx.SelectContext(ctx, r.db, &fundings, query, lenderID); err != nil {
		return nil, err
	}
	return fundings, nil
}

func (r *fundingRepository) TotalsByLoanIDs(ctx context.Context, loanIDs []uuid.UUID) (map[uuid.UUID]domain.FundingTotal, error) {
	totals := make(map[uuid.UUID]domain.FundingTotal, len(loanIDs))
	if len(loanIDs) == 0 {
		return totals, nil
	}
	keys := make([]string, 0, len(loanIDs))
	for _, id := range loanIDs {
		keys = append(keys, id.String())
	}

	query := `
		SELECT loan_id, COALESCE(SUM(amount), 0) AS total, COUNT(DISTINCT lender_id) AS lenders
		FROM loan_fundings
		WHERE loan_id = ANY($1::uuid[])
		GROUP BY loan_id
	`

	var rows []domain.FundingTotal
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, pq.Array(keys)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		totals[row.LoanID] = row
	}
	return totals, nil
}
