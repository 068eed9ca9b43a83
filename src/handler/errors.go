package handler

import (
	"errors"
	"net/http"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethaccount/gasless/src/service"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var executionErrorCodes = map[domain.ExecutionKind]domain.ErrorCode{
	domain.ExecutionInvalidRequest:               domain.ErrorCodeParameterInvalid,
	domain.ExecutionUnsupportedNetwork:           domain.ErrorCodeParameterInvalid,
	domain.ExecutionUnsupportedBatchInDirectMode: domain.ErrorCodeParameterInvalid,
	domain.ExecutionNotConnected:                 domain.ErrorCodeConflict,
	domain.ExecutionIdentityChanged:              domain.ErrorCodeConflict,
	domain.ExecutionDuplicateSubmission:          domain.ErrorCodeConflict,
	domain.ExecutionWalletUnavailable:            domain.ErrorCodeRemoteProcess,
	domain.ExecutionSessionInitFailed:            domain.ErrorCodeRemoteProcess,
	domain.ExecutionSponsorshipRejected:          domain.ErrorCodeRemoteProcess,
	domain.ExecutionSubmissionFailed:             domain.ErrorCodeRemoteProcess,
	domain.ExecutionAmbiguousOutcome:             domain.ErrorCodeRemoteProcess,
	domain.ExecutionDirectSendFailed:             domain.ErrorCodeRemoteProcess,
}

// toDomainError classifies service errors for the response envelope
func toDomainError(err error) error {
	var domainErr domain.DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	if kind, ok := domain.KindOf(err); ok {
		code, known := executionErrorCodes[kind]
		if !known {
			code = domain.ErrorCodeInternalProcess
		}
		return domain.NewError(code, err,
			domain.WithMsg(err.Error()),
			domain.WithDetail(map[string]interface{}{"kind": kind}),
		)
	}

	var swapErr *service.SwapAPIError
	switch {
	case errors.Is(err, domain.ErrExecutionNotFound):
		return domain.NewError(domain.ErrorCodeResourceNotFound, err, domain.WithMsg("Execution not found"))
	case errors.Is(err, service.ErrInvalidSwapRequest):
		return domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg(err.Error()))
	case errors.As(err, &swapErr):
		return domain.NewError(domain.ErrorCodeRemoteProcess, err,
			domain.WithMsg("Swap provider request failed"),
			domain.WithDetail(map[string]interface{}{"status": swapErr.StatusCode}),
		)
	}
	return domain.NewError(domain.ErrorCodeInternalProcess, err)
}

// respondWithBindingError reports each failed field of a request payload
func respondWithBindingError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("Invalid request payload")))
		return
	}

	details := make([]ErrorDetail, 0, len(validationErrs))
	for _, fe := range validationErrs {
		details = append(details, ErrorDetail{Field: fe.Field(), Reason: fe.Tag()})
	}
	respondWithCustomError(c, http.StatusBadRequest, mapDomainErrorToCode(parseDomainError(domain.NewError(domain.ErrorCodeParameterInvalid, err))), "Invalid request payload", details)
}
