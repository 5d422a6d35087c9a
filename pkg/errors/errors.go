package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrLoanNotFound        = errors.New("loan not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrRepaymentNotFound   = errors.New("repayment not found")
	ErrInvalidLoanState    = errors.New("invalid loan state")
	ErrAlreadyFullyFunded  = errors.New("loan is already fully funded")
	ErrOverfundingAttempt  = errors.New("funding exceeds remaining amount")
	ErrInsufficientFunds   = errors.New("insufficient wallet balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAlreadyPaid         = errors.New("repayment already paid")
	ErrForbidden           = errors.New("forbidden")
	ErrKYCRequired         = errors.New("approved KYC document required")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	ErrValidationFailed    = errors.New("validation failed")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeLoanNotFound        = "LOAN_NOT_FOUND"
	ErrCodeWalletNotFound      = "WALLET_NOT_FOUND"
	ErrCodeRepaymentNotFound   = "REPAYMENT_NOT_FOUND"
	ErrCodeInvalidLoanState    = "INVALID_LOAN_STATE"
	ErrCodeAlreadyFullyFunded  = "ALREADY_FULLY_FUNDED"
	ErrCodeOverfundingAttempt  = "OVERFUNDING_ATTEMPT"
	ErrCodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeAlreadyPaid         = "ALREADY_PAID"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeKYCRequired         = "KYC_REQUIRED"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
	ErrCodeCacheError          = "CACHE_ERROR"
)

// CodeOf returns the business code carried by err, or "" for plain errors.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsRetryable reports whether the caller may safely re-issue the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// AsBusinessError passes business errors through and wraps anything else as a database error.
func AsBusinessError(err error) error {
	if err == nil {
		return nil
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return err
	}
	return WrapDatabaseError(err)
}

// Wrap common errors with business context
func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapWalletNotFound(ownerID string) *BusinessError {
	return NewBusinessError(
		ErrCodeWalletNotFound,
		fmt.Sprintf("Wallet for %s not found", ownerID),
		ErrWalletNotFound,
	)
}

func WrapRepaymentNotFound(repaymentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeRepaymentNotFound,
		fmt.Sprintf("Repayment with ID %s not found", repaymentID),
		ErrRepaymentNotFound,
	)
}

func WrapInvalidLoanState(loanID, from, to string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidLoanState,
		fmt.Sprintf("Loan %s cannot move from %s to %s", loanID, from, to),
		ErrInvalidLoanState,
	)
}

func WrapAlreadyFullyFunded(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyFullyFunded,
		fmt.Sprintf("Loan with ID %s is already fully funded", loanID),
		ErrAlreadyFullyFunded,
	)
}

func WrapOverfundingAttempt(amount, remaining decimal.Decimal) *BusinessError {
	return NewBusinessError(
		ErrCodeOverfundingAttempt,
		fmt.Sprintf("Funding amount %s exceeds remaining amount %s", amount.StringFixed(2), remaining.StringFixed(2)),
		ErrOverfundingAttempt,
	)
}

func WrapInsufficientFunds(required, available decimal.Decimal) *BusinessError {
	return NewBusinessError(
		ErrCodeInsufficientFunds,
		fmt.Sprintf("Insufficient balance: need %s, have %s", required.StringFixed(2), available.StringFixed(2)),
		ErrInsufficientFunds,
	)
}

func WrapInvalidAmount(amount decimal.Decimal) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidAmount,
		fmt.Sprintf("Invalid amount: %s", amount.String()),
		ErrInvalidAmount,
	)
}

func WrapAlreadyPaid(repaymentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyPaid,
		fmt.Sprintf("Repayment with ID %s has already been paid", repaymentID),
		ErrAlreadyPaid,
	)
}

func WrapForbidden(message string) *BusinessError {
	return NewBusinessError(
		ErrCodeForbidden,
		message,
		ErrForbidden,
	)
}

func WrapKYCRequired(userID string) *BusinessError {
	return NewBusinessError(
		ErrCodeKYCRequired,
		fmt.Sprintf("User %s has no approved KYC document", userID),
		ErrKYCRequired,
	)
}

func WrapConcurrencyConflict(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeConcurrencyConflict,
		"concurrent update detected, retry the operation",
		fmt.Errorf("%w: %v", ErrConcurrencyConflict, err),
	)
}

func WrapValidationFailed(message string) *BusinessError {
	return NewBusinessError(
		ErrCodeValidationFailed,
		message,
		ErrValidationFailed,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
