package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/pkg/logger"
)

const defaultJobTimeout = 5 * time.Minute

type LedgerReconciler interface {
	Run(ctx context.Context) (*domain.ReconciliationReport, error)
}

type DueInstallmentLister interface {
	DueInstallments(ctx context.Context, window time.Duration) ([]*domain.DueInstallment, error)
}

// Jobs holds the read-only periodic tasks of the scheduler binary.
type Jobs struct {
	reconciler LedgerReconciler
	due        DueInstallmentLister
	dueWindow  time.Duration
	timeout    time.Duration
	log        zerolog.Logger
}

func New(reconciler LedgerReconciler, due DueInstallmentLister, dueWindowDays int, log zerolog.Logger) *Jobs {
	return &Jobs{
		reconciler: reconciler,
		due:        due,
		dueWindow:  time.Duration(dueWindowDays) * 24 * time.Hour,
		timeout:    defaultJobTimeout,
		log:        log.With().Str("component", "scheduler").Logger(),
	}
}

// ReconcileLedger checks the ledger invariants once. Discrepancies are logged by the
// reconciler; the report is returned for callers that want it.
func (j *Jobs) ReconcileLedger(ctx context.Context) (*domain.ReconciliationReport, error) {
	ctx, cancel := context.WithTimeout(logger.WithContext(ctx, &j.log), j.timeout)
	defer cancel()

	start := time.Now()
	report, err := j.reconciler.Run(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Ledger reconciliation failed")
		return nil, err
	}
	if !report.Clean() {
		j.log.Error().
			Int("wallet_discrepancies", len(report.Wallets)).
			Int("funding_discrepancies", len(report.Fundings)).
			Dur("duration", time.Since(start)).
			Msg("Ledger reconciliation found discrepancies")
	}
	return report, nil
}

// ReportDueInstallments logs pending installments that fall due within the window or are overdue.
func (j *Jobs) ReportDueInstallments(ctx context.Context) ([]*domain.DueInstallment, error) {
	ctx, cancel := context.WithTimeout(logger.WithContext(ctx, &j.log), j.timeout)
	defer cancel()

	due, err := j.due.DueInstallments(ctx, j.dueWindow)
	if err != nil {
		j.log.Error().Err(err).Msg("Due installment report failed")
		return nil, err
	}

	overdue := 0
	for _, d := range due {
		event := j.log.Info()
		if d.Overdue {
			overdue++
			event = j.log.Warn()
		}
		event.
			Str("repayment_id", d.Repayment.ID.String()).
			Str("loan_id", d.Repayment.LoanID.String()).
			Str("borrower_id", d.BorrowerID.String()).
			Int("installment_no", d.Repayment.InstallmentNo).
			Time("scheduled_date", d.Repayment.ScheduledDate).
			Str("amount", d.Repayment.Total().StringFixed(2)).
			Bool("overdue", d.Overdue).
			Msg("Installment due")
	}

	j.log.Info().
		Int("due", len(due)).
		Int("overdue", overdue).
		Dur("window", j.dueWindow).
		Msg("Due installment report finished")
	return due, nil
}

// Register adds both jobs to c under the given cron specs.
func (j *Jobs) Register(c *cron.Cron, reconcileSpec, dueReportSpec string) error {
	if _, err := c.AddFunc(reconcileSpec, func() {
		_, _ = j.ReconcileLedger(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule reconciliation %q: %w", reconcileSpec, err)
	}

	if _, err := c.AddFunc(dueReportSpec, func() {
		_, _ = j.ReportDueInstallments(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule due report %q: %w", dueReportSpec, err)
	}

	j.log.Info().
		Str("reconcile_spec", reconcileSpec).
		Str("due_report_spec", dueReportSpec).
		Msg("Cron jobs scheduled successfully")
	return nil
}

// CronLogger adapts zerolog to the cron.Logger interface.
type CronLogger struct {
	Log zerolog.Logger
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
