package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/segyhp/lending-engine/internal/domain"
)

const walletColumns = `id, owner_id, balance, currency, created_at, updated_at`

type walletRepository struct {
	db sqlx.ExtContext
}

func NewWalletRepository(db sqlx.ExtContext) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) Create(ctx context.Context, wallet *domain.Wallet) error {
	query := `
		INSERT INTO wallets (id, owner_id, balance, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		wallet.ID,
		wallet.OwnerID,
		wallet.Balance,
		wallet.Currency,
		wallet.CreatedAt,
		wallet.UpdatedAt,
	)

	return err
}

func (r *walletRepository) EnsureForOwner(ctx context.Context, ownerID uuid.UUID, currency string, now time.Time) (*domain.Wallet, bool, error) {
	query := `
		INSERT INTO wallets (id, owner_id, balance, currency, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $4, $4)
		ON CONFLICT (owner_id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query, uuid.New(), ownerID, currency, now)
	if err != nil {
		return nil, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	wallet, err := r.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, false, err
	}
	return wallet, affected > 0, nil
}

func (r *walletRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	var wallet domain.Wallet
	if err := sqlx.GetContext(ctx, r.db, &wallet, query, id); err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *walletRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1`

	var wallet domain.Wallet
	if err := sqlx.GetContext(ctx, r.db, &wallet, query, ownerID); err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *walletRepository) LockForUpdate(ctx context.Context, ids []uuid.UUID) ([]*domain.Wallet, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	sort.Strings(keys)

	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`

	var wallets []*domain.Wallet
	if err := sqlx.SelectContext(ctx, r.db, &wallets, query, pq.Array(keys)); err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *walletRepository) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, now time.Time) error {
	query := `UPDATE wallets SET balance = $2, updated_at = $3 WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, balance, now)
	return err
}

func (r *walletRepository) AppendTransaction(ctx context.Context, txn *domain.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (id, wallet_id, kind, direction, amount, balance_after, related_loan_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		txn.ID,
		txn.WalletID,
		txn.Kind,
		txn.Direction,
		txn.Amount,
		txn.BalanceAfter,
		txn.RelatedLoanID,
		txn.CreatedAt,
	)

	return err
}

func (r *walletRepository) ListTransactions(ctx context.Context, walletID uuid.UUID, limit int) ([]*domain.WalletTransaction, error) {
	query := `
		SELECT id, wallet_id, kind, direction, amount, balance_after, related_loan_id, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	var txns []*domain.WalletTransaction
	if err := sqlx.SelectContext(ctx, r.db, &txns, query, walletID, limit); err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *walletRepository) LedgerSums(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	query := `
		SELECT wallet_id,
		       COALESCE(SUM(CASE WHEN direction = 'Debit' THEN -amount ELSE amount END), 0) AS total
		FROM wallet_transactions
		GROUP BY wallet_id
	`

	var rows []struct {
		WalletID uuid.UUID       `db:"wallet_id"`
		Total    decimal.Decimal `db:"total"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, query); err != nil {
		return nil, err
	}

	sums := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		sums[row.WalletID] = row.Total
	}
	return sums, nil
}

func (r *walletRepository) ListAll(ctx context.Context) ([]*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets ORDER BY id`

	var wallets []*domain.Wallet
	if err := sqlx.SelectContext(ctx, r.db, &wallets, query); err != nil {
		return nil, err
	}
	return wallets, nil
}
