package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/lending-engine/internal/repository"
	customError "github.com/segyhp/lending-engine/pkg/errors"
)

var loanColumns = []string{"id", "borrower_id", "amount_requested", "currency", "purpose", "interest_rate_pct", "term_weeks", "status", "created_at", "updated_at", "approved_at", "approver_id", "funded_at", "completed_at"}

func newSQLReconciler(t *testing.T) (*Reconciler, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	uow := repository.NewSQLUnitOfWork(sqlx.NewDb(sqlDB, "postgres"))
	return NewReconciler(Dependencies{UoW: uow, Clock: &testClock{now: testStart}}), mock
}

func TestReconciler_ReadsOneSnapshot(t *testing.T) {
	reconciler, mock := newSQLReconciler(t)

	walletID, loanID := uuid.New(), uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM wallets ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "balance", "currency", "created_at", "updated_at"}).
			AddRow(walletID.String(), uuid.NewString(), "150.00", "RWF", testStart, testStart))
	mock.ExpectQuery(regexp.QuoteMeta(`GROUP BY wallet_id`)).
		WillReturnRows(sqlmock.NewRows([]string{"wallet_id", "total"}).AddRow(walletID.String(), "150.00"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM loans ORDER BY created_at, id`)).
		WillReturnRows(sqlmock.NewRows(loanColumns).AddRow(
			loanID.String(), uuid.NewString(), "1000.00", "RWF", "Expand the tailoring workshop", "10.00", 4,
			"Approved", testStart, testStart, testStart, uuid.NewString(), nil, nil,
		))
	mock.ExpectQuery(regexp.QuoteMeta(`GROUP BY loan_id`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"loan_id", "total", "lenders"}).AddRow(loanID.String(), "600.00", 2))
	mock.ExpectCommit()

	report, err := reconciler.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, 1, report.WalletsChecked)
	assert.Equal(t, 1, report.LoansChecked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciler_QueryFailureRollsBack(t *testing.T) {
	reconciler, mock := newSQLReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM wallets ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "balance", "currency", "created_at", "updated_at"}))
	mock.ExpectQuery(regexp.QuoteMeta(`GROUP BY wallet_id`)).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	report, err := reconciler.Run(context.Background())
	assert.Nil(t, report)
	assert.Equal(t, customError.ErrCodeDatabaseError, customError.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
