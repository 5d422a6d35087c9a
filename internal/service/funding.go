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

// FundingAggregator moves lender money into approved loans and closes them once fully funded.
type FundingAggregator struct {
	deps      Dependencies
	ledger    *WalletLedger
	registry  *LoanRegistry
	scheduler *RepaymentScheduler
}

func NewFundingAggregator(deps Dependencies, ledger *WalletLedger, registry *LoanRegistry, scheduler *RepaymentScheduler) *FundingAggregator {
	return &FundingAggregator{
		deps:      deps.withDefaults(),
		ledger:    ledger,
		registry:  registry,
		scheduler: scheduler,
	}
}

// ContributeFunding records one lender contribution. The loan row stays locked for the
// whole unit so concurrent contributions see each other's totals.
func (s *FundingAggregator) ContributeFunding(ctx context.Context, p domain.Principal, loanID uuid.UUID, amount decimal.Decimal) (*domain.FundingResult, error) {
	if err := requireRole(p, domain.RoleLender, "fund loans"); err != nil {
		return nil, err
	}

	var result *domain.FundingResult
	err := withRetry(ctx, s.deps.Options, func() error {
		result = nil
		return s.deps.UoW.WithinLoanTx(ctx, loanID, func(r repository.Repos, loan *domain.LoanRequest) error {
			res, err := s.contribute(ctx, r, p, loan, amount)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, finish(err, customError.WrapLoanNotFound(loanID.String()))
	}

	invalidateListings(ctx, s.deps)

	event := logger.FromContext(ctx).Info().
		Str("loan_id", loanID.String()).
		Str("lender_id", p.UserID.String()).
		Str("amount", amount.StringFixed(2)).
		Str("funded_total", result.FundedTotal.StringFixed(2))
	if result.LoanStatus == domain.LoanStatusFunded {
		event.Int("installments", len(result.Schedule)).Msg("Loan fully funded")
	} else {
		event.Msg("Loan funding recorded")
	}
	recordAudit(ctx, s.deps, p.UserID, "loan.fund", "funded loan %s with %s (total %s, status %s)",
		loanID, amount.StringFixed(2), result.FundedTotal.StringFixed(2), result.LoanStatus)

	return result, nil
}

func (s *FundingAggregator) contribute(ctx context.Context, r repository.Repos, p domain.Principal, loan *domain.LoanRequest, amount decimal.Decimal) (*domain.FundingResult, error) {
	if loan.BorrowerID == p.UserID {
		return nil, customError.WrapForbidden("lenders cannot fund their own loan")
	}
	if loan.Status != domain.LoanStatusApproved {
		return nil, customError.WrapInvalidLoanState(loan.ID.String(), string(loan.Status), string(domain.LoanStatusFunded))
	}

	fundedSoFar, err := r.Fundings.SumByLoanID(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	remaining := loan.AmountRequested.Sub(fundedSoFar)
	if !remaining.IsPositive() {
		return nil, customError.WrapAlreadyFullyFunded(loan.ID.String())
	}
	if !utils.IsPositiveAmount(amount) {
		return nil, customError.WrapInvalidAmount(amount)
	}
	if amount.GreaterThan(remaining) {
		return nil, customError.WrapOverfundingAttempt(amount, remaining)
	}

	now := s.deps.Clock.Now()

	lenderWallet, err := r.Wallets.GetByOwnerID(ctx, p.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapWalletNotFound(p.UserID.String())
	}
	if err != nil {
		return nil, err
	}
	borrowerWallet, _, err := r.Wallets.EnsureForOwner(ctx, loan.BorrowerID, s.deps.Options.Currency, now)
	if err != nil {
		return nil, err
	}
	if _, err := r.Wallets.LockForUpdate(ctx, []uuid.UUID{lenderWallet.ID, borrowerWallet.ID}); err != nil {
		return nil, err
	}

	debit, err := s.ledger.Debit(ctx, r, lenderWallet.ID, amount, domain.TransactionKindLoanFunding, &loan.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Credit(ctx, r, borrowerWallet.ID, amount, domain.TransactionKindLoanDisbursement, &loan.ID); err != nil {
		return nil, err
	}

	funding := &domain.LoanFunding{
		ID:       uuid.New(),
		LoanID:   loan.ID,
		LenderID: p.UserID,
		Amount:   amount,
		FundedAt: now,
	}
	if err := r.Fundings.Create(ctx, funding); err != nil {
		return nil, err
	}

	newFunded := fundedSoFar.Add(amount)
	result := &domain.FundingResult{
		Funding:       funding,
		FundedTotal:   newFunded,
		Remaining:     loan.AmountRequested.Sub(newFunded),
		LoanStatus:    loan.Status,
		LenderBalance: debit.BalanceAfter,
	}

	if newFunded.GreaterThanOrEqual(loan.AmountRequested) {
		if err := s.registry.transition(ctx, r, loan, domain.LoanStatusFunded); err != nil {
			return nil, err
		}
		schedule := s.scheduler.GenerateSchedule(loan, now)
		if err := r.Repayments.CreateBatch(ctx, schedule); err != nil {
			return nil, err
		}
		result.LoanStatus = loan.Status
		result.Schedule = schedule
	}

	return result, nil
}
