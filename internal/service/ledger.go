package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/logger"
	"github.com/segyhp/lending-engine/pkg/utils"
)

const defaultTransactionsLimit = 50

// WalletLedger is the only component that writes wallet balances.
type WalletLedger struct {
	deps Dependencies
}

func NewWalletLedger(deps Dependencies) *WalletLedger {
	return &WalletLedger{deps: deps.withDefaults()}
}

// Credit increases the wallet balance inside the caller's transaction.
func (l *WalletLedger) Credit(ctx context.Context, r repository.Repos, walletID uuid.UUID, amount decimal.Decimal, kind domain.TransactionKind, relatedLoanID *uuid.UUID) (*domain.WalletTransaction, error) {
	return l.apply(ctx, r, walletID, amount, kind, domain.DirectionCredit, relatedLoanID)
}

// Debit decreases the wallet balance inside the caller's transaction and fails with
// InsufficientFunds rather than going negative.
func (l *WalletLedger) Debit(ctx context.Context, r repository.Repos, walletID uuid.UUID, amount decimal.Decimal, kind domain.TransactionKind, relatedLoanID *uuid.UUID) (*domain.WalletTransaction, error) {
	return l.apply(ctx, r, walletID, amount, kind, domain.DirectionDebit, relatedLoanID)
}

func (l *WalletLedger) apply(ctx context.Context, r repository.Repos, walletID uuid.UUID, amount decimal.Decimal, kind domain.TransactionKind, dir domain.Direction, relatedLoanID *uuid.UUID) (*domain.WalletTransaction, error) {
	if !utils.IsPositiveAmount(amount) {
		return nil, customError.WrapInvalidAmount(amount)
	}

	locked, err := r.Wallets.LockForUpdate(ctx, []uuid.UUID{walletID})
	if err != nil {
		return nil, err
	}
	if len(locked) == 0 {
		return nil, customError.WrapWalletNotFound(walletID.String())
	}
	wallet := locked[0]

	next := wallet.Balance.Add(amount)
	if dir == domain.DirectionDebit {
		if amount.GreaterThan(wallet.Balance) {
			return nil, customError.WrapInsufficientFunds(amount, wallet.Balance)
		}
		next = wallet.Balance.Sub(amount)
	}

	now := l.deps.Clock.Now()
	if err := r.Wallets.UpdateBalance(ctx, wallet.ID, next, now); err != nil {
		return nil, err
	}

	txn := &domain.WalletTransaction{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Kind:          kind,
		Direction:     dir,
		Amount:        amount,
		BalanceAfter:  next,
		RelatedLoanID: relatedLoanID,
		CreatedAt:     now,
	}
	if err := r.Wallets.AppendTransaction(ctx, txn); err != nil {
		return nil, err
	}

	return txn, nil
}

// OpenWallet creates the owner's wallet with the starting balance. Calling it again
// returns the existing wallet unchanged.
func (l *WalletLedger) OpenWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	var (
		wallet  *domain.Wallet
		created bool
	)

	err := withRetry(ctx, l.deps.Options, func() error {
		return l.deps.UoW.WithinTx(ctx, func(r repository.Repos) error {
			w, c, err := r.Wallets.EnsureForOwner(ctx, ownerID, l.deps.Options.Currency, l.deps.Clock.Now())
			if err != nil {
				return err
			}
			if c && l.deps.Options.StartingBalance.IsPositive() {
				txn, err := l.Credit(ctx, r, w.ID, l.deps.Options.StartingBalance, domain.TransactionKindDeposit, nil)
				if err != nil {
					return err
				}
				w.Balance = txn.BalanceAfter
			}
			wallet, created = w, c
			return nil
		})
	})
	if err != nil {
		return nil, finish(err, nil)
	}

	if created {
		logger.FromContext(ctx).Info().
			Str("owner_id", ownerID.String()).
			Str("wallet_id", wallet.ID.String()).
			Str("balance", wallet.Balance.StringFixed(2)).
			Msg("Wallet opened")
		recordAudit(ctx, l.deps, ownerID, "wallet.open", "opened wallet %s with %s %s",
			wallet.ID, wallet.Balance.StringFixed(2), wallet.Currency)
	}

	return wallet, nil
}

// Deposit credits the caller's wallet, creating an empty one first if needed.
func (l *WalletLedger) Deposit(ctx context.Context, p domain.Principal, amount decimal.Decimal) (*domain.WalletTransaction, error) {
	opts := l.deps.Options
	if !utils.IsPositiveAmount(amount) {
		return nil, customError.WrapInvalidAmount(amount)
	}
	if amount.LessThan(opts.MinDeposit) || amount.GreaterThan(opts.MaxDeposit) {
		return nil, customError.WrapValidationFailed(fmt.Sprintf("deposit must be between %s and %s",
			opts.MinDeposit.StringFixed(2), opts.MaxDeposit.StringFixed(2)))
	}

	var txn *domain.WalletTransaction
	err := withRetry(ctx, opts, func() error {
		return l.deps.UoW.WithinTx(ctx, func(r repository.Repos) error {
			w, _, err := r.Wallets.EnsureForOwner(ctx, p.UserID, opts.Currency, l.deps.Clock.Now())
			if err != nil {
				return err
			}
			txn, err = l.Credit(ctx, r, w.ID, amount, domain.TransactionKindDeposit, nil)
			return err
		})
	})
	if err != nil {
		return nil, finish(err, nil)
	}

	logger.FromContext(ctx).Info().
		Str("user_id", p.UserID.String()).
		Str("amount", amount.StringFixed(2)).
		Str("balance", txn.BalanceAfter.StringFixed(2)).
		Msg("Deposit recorded")
	recordAudit(ctx, l.deps, p.UserID, "wallet.deposit", "deposited %s", amount.StringFixed(2))

	return txn, nil
}

// GetWallet returns the owner's wallet from a snapshot read.
func (l *WalletLedger) GetWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	w, err := l.deps.UoW.Reader().Wallets.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, finish(err, customError.WrapWalletNotFound(ownerID.String()))
	}
	return w, nil
}

// ListTransactions returns the owner's ledger rows, newest first.
func (l *WalletLedger) ListTransactions(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.WalletTransaction, error) {
	if limit <= 0 {
		limit = defaultTransactionsLimit
	}
	reader := l.deps.UoW.Reader()

	w, err := reader.Wallets.GetByOwnerID(ctx, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapWalletNotFound(ownerID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	txns, err := reader.Wallets.ListTransactions(ctx, w.ID, limit)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return txns, nil
}
