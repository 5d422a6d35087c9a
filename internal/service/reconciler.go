package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/logger"
)

// Reconciler checks the ledger invariants against stored state. It never writes.
type Reconciler struct {
	deps Dependencies
}

func NewReconciler(deps Dependencies) *Reconciler {
	return &Reconciler{deps: deps.withDefaults()}
}

// Run verifies that every balance equals its signed transaction sum and that no loan
// holds more funding than it requested.
func (s *Reconciler) Run(ctx context.Context) (*domain.ReconciliationReport, error) {
	var (
		wallets []*domain.Wallet
		sums    map[uuid.UUID]decimal.Decimal
		loans   []*domain.LoanRequest
		totals  map[uuid.UUID]domain.FundingTotal
	)
	// balances and ledger sums must come from the same committed state
	err := s.deps.UoW.WithinSnapshot(ctx, func(r repository.Repos) error {
		var err error
		if wallets, err = r.Wallets.ListAll(ctx); err != nil {
			return err
		}
		if sums, err = r.Wallets.LedgerSums(ctx); err != nil {
			return err
		}
		if loans, err = r.Loans.ListAll(ctx); err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(loans))
		for _, l := range loans {
			ids = append(ids, l.ID)
		}
		totals, err = r.Fundings.TotalsByLoanIDs(ctx, ids)
		return err
	})
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	log := logger.FromContext(ctx)
	report := &domain.ReconciliationReport{
		WalletsChecked: len(wallets),
		LoansChecked:   len(loans),
		Wallets:        []domain.WalletDiscrepancy{},
		Fundings:       []domain.FundingDiscrepancy{},
	}

	for _, w := range wallets {
		sum := sums[w.ID]
		if !w.Balance.Equal(sum) || w.Balance.IsNegative() {
			report.Wallets = append(report.Wallets, domain.WalletDiscrepancy{
				WalletID:  w.ID,
				OwnerID:   w.OwnerID,
				Balance:   w.Balance,
				LedgerSum: sum,
			})
			log.Error().
				Str("wallet_id", w.ID.String()).
				Str("balance", w.Balance.StringFixed(2)).
				Str("ledger_sum", sum.StringFixed(2)).
				Msg("Wallet balance disagrees with its transaction log")
		}
	}

	for _, l := range loans {
		funded := decimal.Zero
		if t, ok := totals[l.ID]; ok {
			funded = t.Total
		}
		if funded.GreaterThan(l.AmountRequested) {
			report.Fundings = append(report.Fundings, domain.FundingDiscrepancy{
				LoanID:          l.ID,
				AmountRequested: l.AmountRequested,
				FundedTotal:     funded,
			})
			log.Error().
				Str("loan_id", l.ID.String()).
				Str("amount_requested", l.AmountRequested.StringFixed(2)).
				Str("funded_total", funded.StringFixed(2)).
				Msg("Loan is over-funded")
		}
	}

	log.Info().
		Int("wallets_checked", report.WalletsChecked).
		Int("loans_checked", report.LoansChecked).
		Bool("clean", report.Clean()).
		Msg("Ledger reconciliation finished")

	return report, nil
}
