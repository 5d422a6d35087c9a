package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/pkg/utils"
)

// RepaymentScheduler derives the weekly installments of a funded loan.
type RepaymentScheduler struct{}

func NewRepaymentScheduler() *RepaymentScheduler {
	return &RepaymentScheduler{}
}

// GenerateSchedule splits principal and interest over the loan term.
// Each installment carries the truncated even share and the last one absorbs the
// remainder, so both columns sum to the loan totals exactly. Installment i is due
// i weeks after the UTC day the loan was funded.
func (s *RepaymentScheduler) GenerateSchedule(loan *domain.LoanRequest, fundedAt time.Time) []*domain.Repayment {
	weeks := loan.TermWeeks
	if weeks <= 0 {
		weeks = domain.DefaultTermWeeks
	}

	principal := utils.SplitEvenly(loan.AmountRequested, weeks)
	interest := utils.SplitEvenly(loan.TotalInterest(), weeks)
	start := utils.StartOfDay(fundedAt)

	schedule := make([]*domain.Repayment, 0, weeks)
	for i := 0; i < weeks; i++ {
		schedule = append(schedule, &domain.Repayment{
			ID:              uuid.New(),
			LoanID:          loan.ID,
			InstallmentNo:   i + 1,
			ScheduledDate:   utils.CalculateDueDate(start, i+1),
			PrincipalAmount: principal[i],
			InterestAmount:  interest[i],
			Status:          domain.RepaymentStatusPending,
		})
	}
	return schedule
}
