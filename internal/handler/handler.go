package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/segyhp/lending-engine/internal/domain"
	"github.com/segyhp/lending-engine/internal/middleware"
	customError "github.com/segyhp/lending-engine/pkg/errors"
	"github.com/segyhp/lending-engine/pkg/logger"
	"github.com/segyhp/lending-engine/pkg/response"
)

const maxBodyBytes = 1 << 20

type WalletService interface {
	OpenWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	GetWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.WalletTransaction, error)
	Deposit(ctx context.Context, p domain.Principal, amount decimal.Decimal) (*domain.WalletTransaction, error)
}

type LoanService interface {
	RequestLoan(ctx context.Context, p domain.Principal, req domain.CreateLoanRequest) (*domain.LoanRequest, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.LoanRequest, error)
	Approve(ctx context.Context, admin domain.Principal, loanID uuid.UUID) (*domain.LoanRequest, error)
	Reject(ctx context.Context, admin domain.Principal, loanID uuid.UUID) (*domain.LoanRequest, error)
	ListByStatus(ctx context.Context, admin domain.Principal, status domain.LoanStatus) ([]*domain.LoanRequest, error)
}

type FundingService interface {
	ContributeFunding(ctx context.Context, p domain.Principal, loanID uuid.UUID, amount decimal.Decimal) (*domain.FundingResult, error)
}

type RepaymentService interface {
	PayInstallment(ctx context.Context, p domain.Principal, repaymentID uuid.UUID) (*domain.PaymentResult, error)
}

type QueryService interface {
	BrowseLoans(ctx context.Context) ([]*domain.LoanListing, error)
	MyLoans(ctx context.Context, p domain.Principal) ([]*domain.LoanListing, error)
	MyFundings(ctx context.Context, p domain.Principal) ([]*domain.FundingView, error)
	Schedule(ctx context.Context, p domain.Principal, loanID uuid.UUID) (*domain.ScheduleView, error)
	Dashboard(ctx context.Context, p domain.Principal) (*domain.Dashboard, error)
}

// statusFor maps a business error code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case customError.ErrCodeLoanNotFound, customError.ErrCodeWalletNotFound, customError.ErrCodeRepaymentNotFound:
		return http.StatusNotFound
	case customError.ErrCodeInvalidLoanState, customError.ErrCodeAlreadyFullyFunded,
		customError.ErrCodeOverfundingAttempt, customError.ErrCodeAlreadyPaid,
		customError.ErrCodeConcurrencyConflict:
		return http.StatusConflict
	case customError.ErrCodeInvalidAmount, customError.ErrCodeInsufficientFunds,
		customError.ErrCodeValidationFailed, customError.ErrCodeKYCRequired:
		return http.StatusUnprocessableEntity
	case customError.ErrCodeForbidden:
		return http.StatusForbidden
	case customError.ErrCodeCacheError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	var be *customError.BusinessError
	if !errors.As(err, &be) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			response.ServiceUnavailable(w, "Request cancelled")
			return
		}
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled error")
		response.InternalServerError(w, "Internal server error", err)
		return
	}

	status := statusFor(be.Code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", be.Code).Str("path", r.URL.Path).Msg("Request failed")
		response.ErrorWithCode(w, status, be.Code, "Internal server error", nil)
		return
	}
	response.ErrorWithCode(w, status, be.Code, be.Message, nil)
}

// principal is always present behind Authenticate; a missing one means the route was mounted wrong.
func principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		response.Unauthorized(w, "Missing principal")
	}
	return p, ok
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		response.BadRequest(w, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody reads a JSON body into dst and runs struct validation on it.
func (v *requestValidator) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return false
	}
	if err := v.validate(dst); err != nil {
		writeError(w, r, customError.WrapValidationFailed(strings.Join(v.messages(err), "; ")))
		return false
	}
	return true
}
