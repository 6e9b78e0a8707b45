package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrNotFound                      = errors.New("not found")
	ErrForbidden                     = errors.New("forbidden")
	ErrUnauthorized                  = errors.New("unauthorized")
	ErrInvalidAmount                 = errors.New("invalid amount")
	ErrInvalidSchedule               = errors.New("invalid schedule input")
	ErrAlreadyPaid                   = errors.New("installment is already paid")
	ErrNoPendingInstallment          = errors.New("no pending installment")
	ErrOverdueRequiresManualHandling = errors.New("overdue installment requires manual handling")
	ErrInvalidStatusTransition       = errors.New("invalid status transition")
	ErrOverrideConfirmationRequired  = errors.New("override requires explicit confirmation")
	ErrUnknownProvider               = errors.New("unknown payment provider")
	ErrGatewayUnavailable            = errors.New("payment gateway unavailable")
	ErrGatewayRejected               = errors.New("payment gateway rejected the request")
	ErrVerificationFailed            = errors.New("notification verification failed")
	ErrMalformedNotification         = errors.New("malformed notification")
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
	ErrCodeOrderNotFound                 = "ORDER_NOT_FOUND"
	ErrCodeInstallmentNotFound           = "INSTALLMENT_NOT_FOUND"
	ErrCodeUserNotFound                  = "USER_NOT_FOUND"
	ErrCodeForbidden                     = "FORBIDDEN"
	ErrCodeUnauthorized                  = "UNAUTHORIZED"
	ErrCodeInvalidAmount                 = "INVALID_AMOUNT"
	ErrCodeInvalidSchedule               = "INVALID_SCHEDULE"
	ErrCodeAlreadyPaid                   = "ALREADY_PAID"
	ErrCodeNoPendingInstallment          = "NO_PENDING_INSTALLMENT"
	ErrCodeOverdueRequiresManualHandling = "OVERDUE_REQUIRES_MANUAL_HANDLING"
	ErrCodeInvalidStatusTransition       = "INVALID_STATUS_TRANSITION"
	ErrCodeOverrideConfirmationRequired  = "OVERRIDE_CONFIRMATION_REQUIRED"
	ErrCodeUnknownProvider               = "UNKNOWN_PROVIDER"
	ErrCodeGatewayUnavailable            = "GATEWAY_UNAVAILABLE"
	ErrCodeGatewayRejected               = "GATEWAY_REJECTED"
	ErrCodeVerificationFailed            = "VERIFICATION_FAILED"
	ErrCodeMalformedNotification         = "MALFORMED_NOTIFICATION"
	ErrCodeDatabaseError                 = "DATABASE_ERROR"
	ErrCodeCacheError                    = "CACHE_ERROR"
)

// Wrap common errors with business context
func WrapOrderNotFound(orderID string) *BusinessError {
	return NewBusinessError(
		ErrCodeOrderNotFound,
		fmt.Sprintf("Order with ID %s not found", orderID),
		ErrNotFound,
	)
}

func WrapInstallmentNotFound(installmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeInstallmentNotFound,
		fmt.Sprintf("Installment with ID %s not found", installmentID),
		ErrNotFound,
	)
}

func WrapUserNotFound(userID string) *BusinessError {
	return NewBusinessError(
		ErrCodeUserNotFound,
		fmt.Sprintf("User with ID %s not found", userID),
		ErrNotFound,
	)
}

func WrapForbidden(message string) *BusinessError {
	return NewBusinessError(ErrCodeForbidden, message, ErrForbidden)
}

func WrapUnauthorized(message string) *BusinessError {
	return NewBusinessError(ErrCodeUnauthorized, message, ErrUnauthorized)
}

func WrapInvalidAmount(amount int64) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidAmount,
		fmt.Sprintf("Invalid payment amount: %d", amount),
		ErrInvalidAmount,
	)
}

func WrapInvalidSchedule(message string) *BusinessError {
	return NewBusinessError(ErrCodeInvalidSchedule, message, ErrInvalidSchedule)
}

func WrapAlreadyPaid(installmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyPaid,
		fmt.Sprintf("Installment %s has already been paid", installmentID),
		ErrAlreadyPaid,
	)
}

func WrapNoPendingInstallment(orderID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNoPendingInstallment,
		fmt.Sprintf("Order %s has no pending installment", orderID),
		ErrNoPendingInstallment,
	)
}

func WrapOverdueRequiresManualHandling(installmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeOverdueRequiresManualHandling,
		fmt.Sprintf("Installment %s is overdue, please contact support to settle it", installmentID),
		ErrOverdueRequiresManualHandling,
	)
}

func WrapInvalidStatusTransition(from, to string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidStatusTransition,
		fmt.Sprintf("Cannot move installment from %s to %s", from, to),
		ErrInvalidStatusTransition,
	)
}

func WrapOverrideConfirmationRequired(from, to string) *BusinessError {
	return NewBusinessError(
		ErrCodeOverrideConfirmationRequired,
		fmt.Sprintf("Moving installment from %s to %s is an override and must be confirmed", from, to),
		ErrOverrideConfirmationRequired,
	)
}

func WrapUnknownProvider(name string) *BusinessError {
	return NewBusinessError(
		ErrCodeUnknownProvider,
		fmt.Sprintf("Payment provider %q is not configured", name),
		ErrUnknownProvider,
	)
}

func WrapGatewayUnavailable(provider string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeGatewayUnavailable,
		fmt.Sprintf("Payment provider %s is unavailable, please try again", provider),
		fmt.Errorf("%w: %v", ErrGatewayUnavailable, err),
	)
}

func WrapGatewayRejected(provider, detail string) *BusinessError {
	return NewBusinessError(
		ErrCodeGatewayRejected,
		fmt.Sprintf("Payment provider %s rejected the request: %s", provider, detail),
		ErrGatewayRejected,
	)
}

func WrapVerificationFailed(provider string) *BusinessError {
	return NewBusinessError(
		ErrCodeVerificationFailed,
		fmt.Sprintf("Notification from %s failed integrity verification", provider),
		ErrVerificationFailed,
	)
}

func WrapMalformedNotification(provider string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeMalformedNotification,
		fmt.Sprintf("Notification from %s could not be parsed", provider),
		fmt.Errorf("%w: %v", ErrMalformedNotification, err),
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

// Code returns the business code carried by err, or an empty string.
func Code(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
