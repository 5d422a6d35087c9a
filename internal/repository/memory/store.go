// Package memory is a process-local store implementing the repository contracts.
// Transactions are serialized by a single mutex and run against a private copy of
// the state that replaces the committed state only when fn succeeds.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/repository"
)

type state struct {
	wallets    map[uuid.UUID]domain.Wallet
	owners     map[uuid.UUID]uuid.UUID
	txns       []domain.WalletTransaction
	loans      map[uuid.UUID]domain.LoanRequest
	fundings   []domain.LoanFunding
	repayments map[uuid.UUID]domain.Repayment
}

func newState() *state {
	return &state{
		wallets:    make(map[uuid.UUID]domain.Wallet),
		owners:     make(map[uuid.UUID]uuid.UUID),
		loans:      make(map[uuid.UUID]domain.LoanRequest),
		repayments: make(map[uuid.UUID]domain.Repayment),
	}
}

func (s *state) clone() *state {
	c := &state{
		wallets:    make(map[uuid.UUID]domain.Wallet, len(s.wallets)),
		owners:     make(map[uuid.UUID]uuid.UUID, len(s.owners)),
		txns:       append([]domain.WalletTransaction(nil), s.txns...),
		loans:      make(map[uuid.UUID]domain.LoanRequest, len(s.loans)),
		fundings:   append([]domain.LoanFunding(nil), s.fundings...),
		repayments: make(map[uuid.UUID]domain.Repayment, len(s.repayments)),
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.owners {
		c.owners[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.repayments {
		c.repayments[k] = v
	}
	return c
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	state *state

	collabMu sync.Mutex
	audit    []domain.AuditEntry
	kyc      map[uuid.UUID]bool

	faultMu sync.Mutex
	faults  map[string]error
}

func NewStore() *Store {
	return &Store{
		state:  newState(),
		kyc:    make(map[uuid.UUID]bool),
		faults: make(map[string]error),
	}
}

var _ repository.UnitOfWork = (*Store)(nil)

func (s *Store) WithinTx(ctx context.Context, fn func(r repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(s.repos(work)); err != nil {
		return err
	}
	// an abandoned caller never commits
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) WithinLoanTx(ctx context.Context, loanID uuid.UUID, fn func(r repository.Repos, loan *domain.LoanRequest) error) error {
	return s.WithinTx(ctx, func(r repository.Repos) error {
		loan, err := r.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		return fn(r, loan)
	})
}

// WithinSnapshot runs fn over one clone of the committed state.
func (s *Store) WithinSnapshot(ctx context.Context, fn func(r repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.Reader())
}

// Reader returns repositories over a snapshot of the committed state. Writes to it are discarded.
func (s *Store) Reader() repository.Repos {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos(s.state.clone())
}

func (s *Store) repos(st *state) repository.Repos {
	return repository.Repos{
		Wallets:    &walletRepo{store: s, st: st},
		Loans:      &loanRepo{store: s, st: st},
		Fundings:   &fundingRepo{store: s, st: st},
		Repayments: &repaymentRepo{store: s, st: st},
	}
}

// FailNext makes the next call of op (for example "repayments.MarkPaid") return err.
func (s *Store) FailNext(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

// Record implements the audit repository.
func (s *Store) Record(ctx context.Context, entry domain.AuditEntry) error {
	if err := s.fault("audit.Record"); err != nil {
		return err
	}
	s.collabMu.Lock()
	defer s.collabMu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

// AuditEntries returns a copy of everything recorded so far.
func (s *Store) AuditEntries() []domain.AuditEntry {
	s.collabMu.Lock()
	defer s.collabMu.Unlock()
	return append([]domain.AuditEntry(nil), s.audit...)
}

// SetKYCApproved sets the answer of HasApprovedKYC for a user.
func (s *Store) SetKYCApproved(userID uuid.UUID, approved bool) {
	s.collabMu.Lock()
	defer s.collabMu.Unlock()
	s.kyc[userID] = approved
}

func (s *Store) HasApprovedKYC(ctx context.Context, userID uuid.UUID) (bool, error) {
	if err := s.fault("kyc.HasApprovedKYC"); err != nil {
		return false, err
	}
	s.collabMu.Lock()
	defer s.collabMu.Unlock()
	return s.kyc[userID], nil
}

type walletRepo struct {
	store *Store
	st    *state
}

func (r *walletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	if err := r.store.fault("wallets.Create"); err != nil {
		return err
	}
	if _, ok := r.st.owners[wallet.OwnerID]; ok {
		return errDuplicate("wallets.owner_id")
	}
	r.st.wallets[wallet.ID] = *wallet
	r.st.owners[wallet.OwnerID] = wallet.ID
	return nil
}

func (r *walletRepo) EnsureForOwner(ctx context.Context, ownerID uuid.UUID, currency string, now time.Time) (*domain.Wallet, bool, error) {
	if err := r.store.fault("wallets.EnsureForOwner"); err != nil {
		return nil, false, err
	}
	if id, ok := r.st.owners[ownerID]; ok {
		w := r.st.wallets[id]
		return &w, false, nil
	}
	w := domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.st.wallets[w.ID] = w
	r.st.owners[ownerID] = w.ID
	return &w, true, nil
}

func (r *walletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	w, ok := r.st.wallets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &w, nil
}

func (r *walletRepo) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	id, ok := r.st.owners[ownerID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	w := r.st.wallets[id]
	return &w, nil
}

func (r *walletRepo) LockForUpdate(ctx context.Context, ids []uuid.UUID) ([]*domain.Wallet, error) {
	if err := r.store.fault("wallets.LockForUpdate"); err != nil {
		return nil, err
	}
	var out []*domain.Wallet
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if w, ok := r.st.wallets[id]; ok {
			w := w
			out = append(out, &w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *walletRepo) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, now time.Time) error {
	if err := r.store.fault("wallets.UpdateBalance"); err != nil {
		return err
	}
	w, ok := r.st.wallets[id]
	if !ok {
		return sql.ErrNoRows
	}
	if balance.IsNegative() {
		return errCheck("wallets.balance")
	}
	w.Balance = balance
	w.UpdatedAt = now
	r.st.wallets[id] = w
	return nil
}

func (r *walletRepo) AppendTransaction(ctx context.Context, txn *domain.WalletTransaction) error {
	if err := r.store.fault("wallets.AppendTransaction"); err != nil {
		return err
	}
	if !txn.Amount.IsPositive() {
		return errCheck("wallet_transactions.amount")
	}
	r.st.txns = append(r.st.txns, *txn)
	return nil
}

func (r *walletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID, limit int) ([]*domain.WalletTransaction, error) {
	var out []*domain.WalletTransaction
	for i := len(r.st.txns) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.st.txns[i].WalletID == walletID {
			t := r.st.txns[i]
			out = append(out, &t)
		}
	}
	return out, nil
}

func (r *walletRepo) LedgerSums(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	sums := make(map[uuid.UUID]decimal.Decimal)
	for i := range r.st.txns {
		t := &r.st.txns[i]
		sums[t.WalletID] = sums[t.WalletID].Add(t.Signed())
	}
	return sums, nil
}

func (r *walletRepo) ListAll(ctx context.Context) ([]*domain.Wallet, error) {
	out := make([]*domain.Wallet, 0, len(r.st.wallets))
	for _, w := range r.st.wallets {
		w := w
		out = append(out, &w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

type loanRepo struct {
	store *Store
	st    *state
}

func (r *loanRepo) Create(ctx context.Context, loan *domain.LoanRequest) error {
	if err := r.store.fault("loans.Create"); err != nil {
		return err
	}
	if _, ok := r.st.loans[loan.ID]; ok {
		return errDuplicate("loans.id")
	}
	r.st.loans[loan.ID] = *loan
	return nil
}

func (r *loanRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LoanRequest, error) {
	l, ok := r.st.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &l, nil
}

// GetByIDForUpdate needs no lock of its own; the transaction already holds the store mutex.
func (r *loanRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.LoanRequest, error) {
	if err := r.store.fault("loans.GetByIDForUpdate"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *loanRepo) Update(ctx context.Context, loan *domain.LoanRequest) error {
	if err := r.store.fault("loans.Update"); err != nil {
		return err
	}
	if _, ok := r.st.loans[loan.ID]; !ok {
		return sql.ErrNoRows
	}
	r.st.loans[loan.ID] = *loan
	return nil
}

func (r *loanRepo) ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.LoanRequest, error) {
	return r.filter(func(l *domain.LoanRequest) bool { return l.Status == status }, false), nil
}

func (r *loanRepo) ListByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*domain.LoanRequest, error) {
	return r.filter(func(l *domain.LoanRequest) bool { return l.BorrowerID == borrowerID }, true), nil
}

func (r *loanRepo) ListAll(ctx context.Context) ([]*domain.LoanRequest, error) {
	return r.filter(func(*domain.LoanRequest) bool { return true }, false), nil
}

func (r *loanRepo) filter(keep func(*domain.LoanRequest) bool, newestFirst bool) []*domain.LoanRequest {
	var out []*domain.LoanRequest
	for _, l := range r.st.loans {
		l := l
		if keep(&l) {
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if newestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

type fundingRepo struct {
	store *Store
	st    *state
}

func (r *fundingRepo) Create(ctx context.Context, funding *domain.LoanFunding) error {
	if err := r.store.fault("fundings.Create"); err != nil {
		return err
	}
	if !funding.Amount.IsPositive() {
		return errCheck("loan_fundings.amount")
	}
	r.st.fundings = append(r.st.fundings, *funding)
	return nil
}

func (r *fundingRepo) ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanFunding, error) {
	out := r.filter(func(f *domain.LoanFunding) bool { return f.LoanID == loanID })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FundedAt.Equal(out[j].FundedAt) {
			return out[i].FundedAt.Before(out[j].FundedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *fundingRepo) SumByLoanID(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error) {
	if err := r.store.fault("fundings.SumByLoanID"); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for i := range r.st.fundings {
		if r.st.fundings[i].LoanID == loanID {
			total = total.Add(r.st.fundings[i].Amount)
		}
	}
	return total, nil
}

func (r *fundingRepo) ListByLenderID(ctx context.Context, lenderID uuid.UUID) ([]*domain.LoanFunding, error) {
	out := r.filter(func(f *domain.LoanFunding) bool { return f.LenderID == lenderID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].FundedAt.After(out[j].FundedAt) })
	return out, nil
}

func (r *fundingRepo) TotalsByLoanIDs(ctx context.Context, loanIDs []uuid.UUID) (map[uuid.UUID]domain.FundingTotal, error) {
	wanted := make(map[uuid.UUID]bool, len(loanIDs))
	for _, id := range loanIDs {
		wanted[id] = true
	}
	totals := make(map[uuid.UUID]domain.FundingTotal)
	lenders := make(map[uuid.UUID]map[uuid.UUID]bool)
	for i := range r.st.fundings {
		f := &r.st.fundings[i]
		if !wanted[f.LoanID] {
			continue
		}
		t := totals[f.LoanID]
		t.LoanID = f.LoanID
		t.Total = t.Total.Add(f.Amount)
		if lenders[f.LoanID] == nil {
			lenders[f.LoanID] = make(map[uuid.UUID]bool)
		}
		lenders[f.LoanID][f.LenderID] = true
		t.Lenders = len(lenders[f.LoanID])
		totals[f.LoanID] = t
	}
	return totals, nil
}

func (r *fundingRepo) filter(keep func(*domain.LoanFunding) bool) []*domain.LoanFunding {
	var out []*domain.LoanFunding
	for i := range r.st.fundings {
		f := r.st.fundings[i]
		if keep(&f) {
			out = append(out, &f)
		}
	}
	return out
}

type repaymentRepo struct {
	store *Store
	st    *state
}

func (r *repaymentRepo) CreateBatch(ctx context.Context, repayments []*domain.Repayment) error {
	if err := r.store.fault("repayments.CreateBatch"); err != nil {
		return err
	}
	for _, rp := range repayments {
		for _, existing := range r.st.repayments {
			if existing.LoanID == rp.LoanID && existing.InstallmentNo == rp.InstallmentNo {
				return errDuplicate("repayments.loan_id_installment_no")
			}
		}
		r.st.repayments[rp.ID] = *rp
	}
	return nil
}

func (r *repaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Repayment, error) {
	rp, ok := r.st.repayments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rp, nil
}

func (r *repaymentRepo) ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.Repayment, error) {
	var out []*domain.Repayment
	for _, rp := range r.st.repayments {
		rp := rp
		if rp.LoanID == loanID {
			out = append(out, &rp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentNo < out[j].InstallmentNo })
	return out, nil
}

func (r *repaymentRepo) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	if err := r.store.fault("repayments.MarkPaid"); err != nil {
		return false, err
	}
	rp, ok := r.st.repayments[id]
	if !ok || rp.Status != domain.RepaymentStatusPending {
		return false, nil
	}
	rp.Status = domain.RepaymentStatusPaid
	rp.PaidAt = &paidAt
	r.st.repayments[id] = rp
	return true, nil
}

func (r *repaymentRepo) ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]*domain.DueInstallment, error) {
	var out []*domain.DueInstallment
	for _, rp := range r.st.repayments {
		rp := rp
		if rp.Status != domain.RepaymentStatusPending || !rp.ScheduledDate.Before(cutoff) {
			continue
		}
		out = append(out, &domain.DueInstallment{Repayment: &rp, BorrowerID: r.st.loans[rp.LoanID].BorrowerID})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Repayment, out[j].Repayment
		if !a.ScheduledDate.Equal(b.ScheduledDate) {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		if a.LoanID != b.LoanID {
			return a.LoanID.String() < b.LoanID.String()
		}
		return a.InstallmentNo < b.InstallmentNo
	})
	return out, nil
}

func (r *repaymentRepo) CountPendingByBorrower(ctx context.Context, borrowerID uuid.UUID) (int, error) {
	count := 0
	for _, rp := range r.st.repayments {
		if rp.Status == domain.RepaymentStatusPending && r.st.loans[rp.LoanID].BorrowerID == borrowerID {
			count++
		}
	}
	return count, nil
}
