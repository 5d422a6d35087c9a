package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/segyhp/lending-engine/internal/domain"
	customError "github.com/segyhp/lending-engine/pkg/errors"
)

// Postgres error codes surfaced as a retryable conflict.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

type SQLUnitOfWork struct {
	db       *sqlx.DB
	opts     *sql.TxOptions
	snapshot *sql.TxOptions
}

// NewSQLUnitOfWork runs transactions at READ COMMITTED; correctness comes from
// the explicit row locks taken by the repositories.
func NewSQLUnitOfWork(db *sqlx.DB) *SQLUnitOfWork {
	return &SQLUnitOfWork{
		db:       db,
		opts:     &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		snapshot: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	}
}

func reposFor(db sqlx.ExtContext) Repos {
	return Repos{
		Wallets:    NewWalletRepository(db),
		Loans:      NewLoanRepository(db),
		Fundings:   NewFundingRepository(db),
		Repayments: NewRepaymentRepository(db),
	}
}

func (u *SQLUnitOfWork) WithinTx(ctx context.Context, fn func(r Repos) error) (err error) {
	tx, err := u.db.BeginTxx(ctx, u.opts)
	if err != nil {
		return translate(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(reposFor(tx)); err != nil {
		_ = tx.Rollback()
		return translate(err)
	}

	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func (u *SQLUnitOfWork) WithinLoanTx(ctx context.Context, loanID uuid.UUID, fn func(r Repos, loan *domain.LoanRequest) error) error {
	return u.WithinTx(ctx, func(r Repos) error {
		// lock the loan row up-front to serialize writers on the same loan
		loan, err := r.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		return fn(r, loan)
	})
}

// WithinSnapshot runs fn in a read-only REPEATABLE READ transaction so every
// statement sees the same committed state.
func (u *SQLUnitOfWork) WithinSnapshot(ctx context.Context, fn func(r Repos) error) error {
	tx, err := u.db.BeginTxx(ctx, u.snapshot)
	if err != nil {
		return translate(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(reposFor(tx)); err != nil {
		_ = tx.Rollback()
		return translate(err)
	}
	return translate(tx.Commit())
}

func (u *SQLUnitOfWork) Reader() Repos {
	return reposFor(u.db)
}

// translate maps lock and serialization failures to ConcurrencyConflict and leaves
// everything else untouched.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return customError.WrapConcurrencyConflict(err)
		}
	}
	return err
}
