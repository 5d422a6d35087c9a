package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/lending-engine/internal/config"
	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/logger"
)

// Clock supplies the current time to every operation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Auditor receives a best-effort description of each committed operation.
type Auditor interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
}

// KYCGate answers whether a user may request loans.
type KYCGate interface {
	HasApprovedKYC(ctx context.Context, userID uuid.UUID) (bool, error)
}

// ListingCache stores the browse list of approved loans.
type ListingCache interface {
	GetListings(ctx context.Context) ([]*domain.LoanListing, bool, error)
	Generation(ctx context.Context) (int64, error)
	SetListings(ctx context.Context, generation int64, listings []*domain.LoanListing) error
	Invalidate(ctx context.Context) error
}

// Options are the business settings of the engine.
type Options struct {
	Currency        string
	StartingBalance decimal.Decimal
	MinDeposit      decimal.Decimal
	MaxDeposit      decimal.Decimal
	MinLoanAmount   decimal.Decimal
	MaxLoanAmount   decimal.Decimal
	MinInterestRate decimal.Decimal
	MaxInterestRate decimal.Decimal
	RequireKYC      bool
	MaxRetries      int
	RetryBackoff    time.Duration
}

// OptionsFromConfig copies the business section of the configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Currency:        cfg.Business.Currency,
		StartingBalance: cfg.StartingBalance(),
		MinDeposit:      cfg.MinDeposit(),
		MaxDeposit:      cfg.MaxDeposit(),
		MinLoanAmount:   cfg.MinLoanAmount(),
		MaxLoanAmount:   cfg.MaxLoanAmount(),
		MinInterestRate: cfg.MinInterestRate(),
		MaxInterestRate: cfg.MaxInterestRate(),
		RequireKYC:      cfg.Business.RequireKYC,
		MaxRetries:      cfg.Business.MaxRetries,
		RetryBackoff:    cfg.RetryBackoff(),
	}
}

// DefaultOptions returns the options produced by an empty environment.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// Dependencies are shared by every engine component. Audit, KYC and Cache may be nil.
type Dependencies struct {
	UoW     repository.UnitOfWork
	Clock   Clock
	Audit   Auditor
	KYC     KYCGate
	Cache   ListingCache
	Options Options
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Options.Currency == "" {
		d.Options = DefaultOptions()
	}
	return d
}

// Engine wires the ledger components together.
type Engine struct {
	Ledger      *WalletLedger
	Registry    *LoanRegistry
	Scheduler   *RepaymentScheduler
	Funding     *FundingAggregator
	Distributor *RepaymentDistributor
	Reconciler  *Reconciler
	Queries     *QueryService
}

func NewEngine(deps Dependencies) *Engine {
	deps = deps.withDefaults()

	ledger := NewWalletLedger(deps)
	registry := NewLoanRegistry(deps)
	scheduler := NewRepaymentScheduler()

	return &Engine{
		Ledger:      ledger,
		Registry:    registry,
		Scheduler:   scheduler,
		Funding:     NewFundingAggregator(deps, ledger, registry, scheduler),
		Distributor: NewRepaymentDistributor(deps, ledger, registry),
		Reconciler:  NewReconciler(deps),
		Queries:     NewQueryService(deps),
	}
}

// withRetry re-runs op while it fails with ConcurrencyConflict, up to MaxRetries extra attempts.
func withRetry(ctx context.Context, opts Options, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.RetryBackoff), uint64(max(opts.MaxRetries, 0))),
		ctx,
	)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !customError.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		logger.FromContext(ctx).Warn().Err(err).Int("attempt", attempt).Msg("Concurrent update conflict, retrying")
		return err
	}, policy)
}

// finish converts storage errors into business errors at the operation boundary.
func finish(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if notFound != nil && errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return customError.AsBusinessError(err)
}

// recordAudit hands an entry to the auditor and swallows any failure.
func recordAudit(ctx context.Context, deps Dependencies, userID uuid.UUID, action, format string, args ...interface{}) {
	if deps.Audit == nil {
		return
	}
	entry := domain.AuditEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Details:   fmt.Sprintf(format, args...),
		CreatedAt: deps.Clock.Now(),
	}
	if err := deps.Audit.Record(ctx, entry); err != nil {
		logger.FromContext(ctx).Warn().Err(err).
			Str("action", action).
			Str("user_id", userID.String()).
			Msg("Failed to record audit entry")
	}
}

// invalidateListings drops the cached browse list; failures only cost staleness.
func invalidateListings(ctx context.Context, deps Dependencies) {
	if deps.Cache == nil {
		return
	}
	if err := deps.Cache.Invalidate(ctx); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("Failed to invalidate loan listing cache")
	}
}

func requireRole(p domain.Principal, role domain.Role, action string) error {
	if p.Role != role {
		return customError.WrapForbidden(fmt.Sprintf("role %s may not %s", p.Role, action))
	}
	return nil
}
