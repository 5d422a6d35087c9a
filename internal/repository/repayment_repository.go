package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/lending-engine/internal/domain"
)

const repaymentColumns = `id, loan_id, installment_no, scheduled_date, principal_amount, interest_amount, status, paid_at`

type repaymentRepository struct {
	db sqlx.ExtContext
}

func NewRepaymentRepository(db sqlx.ExtContext) RepaymentRepository {
	return &repaymentRepository{db: db}
}

func (r *repaymentRepository) CreateBatch(ctx context.Context, repayments []*domain.Repayment) error {
	query := `
		INSERT INTO repayments (id, loan_id, installment_no, scheduled_date, principal_amount, interest_amount, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, rp := range repayments {
		_, err := r.db.ExecContext(ctx, query,
			rp.ID,
			rp.LoanID,
			rp.InstallmentNo,
			rp.ScheduledDate,
			rp.PrincipalAmount,
			rp.InterestAmount,
			rp.Status,
			rp.PaidAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *repaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Repayment, error) {
	query := `SELECT ` + repaymentColumns + ` FROM repayments WHERE id = $1`

	var rp domain.Repayment
	if err := sqlx.GetContext(ctx, r.db, &rp, query, id); err != nil {
		return nil, err
	}
	return &rp, nil
}

func (r *repaymentRepository) ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.Repayment, error) {
	query := `SELECT ` + repaymentColumns + ` FROM repayments WHERE loan_id = $1 ORDER BY installment_no`

	var repayments []*domain.Repayment
	if err := sqlx.SelectContext(ctx, r.db, &repayments, query, loanID); err != nil {
		return nil, err
	}
	return repayments, nil
}

func (r *repaymentRepository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	query := `
		UPDATE repayments
		SET status = $2, paid_at = $3
		WHERE id = $1 AND status = $4
	`

	res, err := r.db.ExecContext(ctx, query, id, domain.RepaymentStatusPaid, paidAt, domain.RepaymentStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *repaymentRepository) ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]*domain.DueInstallment, error) {
	query := `
		SELECT r.id, r.loan_id, r.installment_no, r.scheduled_date, r.principal_amount, r.interest_amount,
		       r.status, r.paid_at, l.borrower_id
		FROM repayments r
		JOIN loans l ON l.id = r.loan_id
		WHERE r.status = $1 AND r.scheduled_date < $2
		ORDER BY r.scheduled_date, r.loan_id, r.installment_no
	`

	var rows []struct {
		domain.Repayment
		BorrowerID uuid.UUID `db:"borrower_id"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, domain.RepaymentStatusPending, cutoff); err != nil {
		return nil, err
	}

	due := make([]*domain.DueInstallment, 0, len(rows))
	for i := range rows {
		rp := rows[i].Repayment
		due = append(due, &domain.DueInstallment{Repayment: &rp, BorrowerID: rows[i].BorrowerID})
	}
	return due, nil
}

func (r *repaymentRepository) CountPendingByBorrower(ctx context.Context, borrowerID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM repayments r
		JOIN loans l ON l.id = r.loan_id
		WHERE l.borrower_id = $1 AND r.status = $2
	`

	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, borrowerID, domain.RepaymentStatusPending); err != nil {
		return 0, err
	}
	return count, nil
}
