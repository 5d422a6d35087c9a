package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/logger"
	"github.com/segyhp/lending-engine/pkg/utils"
)

// RepaymentDistributor collects installments from borrowers and pays them out to lenders.
type RepaymentDistributor struct {
	deps     Dependencies
	ledger   *WalletLedger
	registry *LoanRegistry
}

func NewRepaymentDistributor(deps Dependencies, ledger *WalletLedger, registry *LoanRegistry) *RepaymentDistributor {
	return &RepaymentDistributor{
		deps:     deps.withDefaults(),
		ledger:   ledger,
		registry: registry,
	}
}

// PayInstallment debits the borrower for one installment and credits every lender its
// proportional share. A second payment of the same installment fails with AlreadyPaid.
func (s *RepaymentDistributor) PayInstallment(ctx context.Context, p domain.Principal, repaymentID uuid.UUID) (*domain.PaymentResult, error) {
	if err := requireRole(p, domain.RoleBorrower, "pay installments"); err != nil {
		return nil, err
	}

	notFound := customError.WrapRepaymentNotFound(repaymentID.String())
	rp, err := s.deps.UoW.Reader().Repayments.GetByID(ctx, repaymentID)
	if err != nil {
		return nil, finish(err, notFound)
	}

	var result *domain.PaymentResult
	err = withRetry(ctx, s.deps.Options, func() error {
		result = nil
		return s.deps.UoW.WithinLoanTx(ctx, rp.LoanID, func(r repository.Repos, loan *domain.LoanRequest) error {
			res, err := s.pay(ctx, r, p, loan, repaymentID)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, finish(err, notFound)
	}

	logger.FromContext(ctx).Info().
		Str("loan_id", rp.LoanID.String()).
		Str("repayment_id", repaymentID.String()).
		Int("installment_no", result.Repayment.InstallmentNo).
		Str("amount", result.TotalPayment.StringFixed(2)).
		Int("lenders", len(result.Shares)).
		Str("loan_status", string(result.LoanStatus)).
		Msg("Installment paid")
	recordAudit(ctx, s.deps, p.UserID, "repayment.pay", "paid installment %d of loan %s: %s split across %d lenders",
		result.Repayment.InstallmentNo, rp.LoanID, result.TotalPayment.StringFixed(2), len(result.Shares))

	return result, nil
}

func (s *RepaymentDistributor) pay(ctx context.Context, r repository.Repos, p domain.Principal, loan *domain.LoanRequest, repaymentID uuid.UUID) (*domain.PaymentResult, error) {
	rp, err := r.Repayments.GetByID(ctx, repaymentID)
	if err != nil {
		return nil, err
	}
	if loan.BorrowerID != p.UserID {
		return nil, customError.WrapForbidden("only the borrower may pay this installment")
	}
	if rp.Status == domain.RepaymentStatusPaid {
		return nil, customError.WrapAlreadyPaid(rp.ID.String())
	}
	if loan.Status != domain.LoanStatusFunded && loan.Status != domain.LoanStatusRepaying {
		return nil, customError.WrapInvalidLoanState(loan.ID.String(), string(loan.Status), string(domain.LoanStatusRepaying))
	}

	fundings, err := r.Fundings.ListByLoanID(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	if len(fundings) == 0 {
		return nil, customError.WrapInvalidLoanState(loan.ID.String(), string(loan.Status), string(domain.LoanStatusRepaying))
	}

	now := s.deps.Clock.Now()

	borrowerWallet, err := r.Wallets.GetByOwnerID(ctx, loan.BorrowerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapWalletNotFound(loan.BorrowerID.String())
	}
	if err != nil {
		return nil, err
	}

	// lenders without a wallet get an empty one so no share is dropped
	lenderWallets := make(map[uuid.UUID]uuid.UUID, len(fundings))
	lockIDs := []uuid.UUID{borrowerWallet.ID}
	for _, f := range fundings {
		if _, ok := lenderWallets[f.LenderID]; ok {
			continue
		}
		w, _, err := r.Wallets.EnsureForOwner(ctx, f.LenderID, s.deps.Options.Currency, now)
		if err != nil {
			return nil, err
		}
		lenderWallets[f.LenderID] = w.ID
		lockIDs = append(lockIDs, w.ID)
	}
	if _, err := r.Wallets.LockForUpdate(ctx, lockIDs); err != nil {
		return nil, err
	}

	total := rp.Total()
	debit, err := s.ledger.Debit(ctx, r, borrowerWallet.ID, total, domain.TransactionKindLoanRepayment, &loan.ID)
	if err != nil {
		return nil, err
	}

	ok, err := r.Repayments.MarkPaid(ctx, rp.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, customError.WrapAlreadyPaid(rp.ID.String())
	}
	rp.Status = domain.RepaymentStatusPaid
	rp.PaidAt = &now

	weights := make([]decimal.Decimal, len(fundings))
	for i, f := range fundings {
		weights[i] = f.Amount
	}
	amounts := utils.AllocateProportional(total, weights)

	shares := make([]domain.LenderShare, 0, len(fundings))
	for i, f := range fundings {
		share := domain.LenderShare{FundingID: f.ID, LenderID: f.LenderID, Amount: amounts[i]}
		if amounts[i].IsPositive() {
			txn, err := s.ledger.Credit(ctx, r, lenderWallets[f.LenderID], amounts[i], domain.TransactionKindLoanRepayment, &loan.ID)
			if err != nil {
				return nil, err
			}
			share.TransactionID = txn.ID
		}
		shares = append(shares, share)
	}

	installments, err := r.Repayments.ListByLoanID(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	next := domain.LoanStatusCompleted
	for _, inst := range installments {
		if inst.ID != rp.ID && inst.Status != domain.RepaymentStatusPaid {
			next = domain.LoanStatusRepaying
			break
		}
	}
	if err := s.registry.transition(ctx, r, loan, next); err != nil {
		return nil, err
	}

	return &domain.PaymentResult{
		Repayment:       rp,
		TotalPayment:    total,
		BorrowerBalance: debit.BalanceAfter,
		Shares:          shares,
		LoanStatus:      loan.Status,
	}, nil
}
