package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	customError "github.com/segyhp/installment-engine/pkg/errors"
	"github.com/segyhp/installment-engine/pkg/response"
)

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, customError.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, customError.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, customError.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, customError.ErrInvalidAmount),
		errors.Is(err, customError.ErrInvalidSchedule),
		errors.Is(err, customError.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, customError.ErrAlreadyPaid),
		errors.Is(err, customError.ErrNoPendingInstallment),
		errors.Is(err, customError.ErrOverdueRequiresManualHandling),
		errors.Is(err, customError.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, customError.ErrOverrideConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, customError.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, customError.ErrGatewayRejected):
		return http.StatusBadGateway
	case errors.Is(err, customError.ErrVerificationFailed),
		errors.Is(err, customError.ErrMalformedNotification):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	var be *customError.BusinessError
	if !errors.As(err, &be) || status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
		response.Fail(w, status, customError.ErrCodeDatabaseError, "internal error")
		return
	}

	message := be.Message
	if status == http.StatusServiceUnavailable {
		message += ", please try again"
	}
	response.Fail(w, status, be.Code, message)
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		response.BadRequest(w, "validation failed on "+verrs[0].Field(), err)
		return
	}
	response.BadRequest(w, "invalid request", err)
}
