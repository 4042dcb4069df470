package api

import (
	"context"
	stdErrors "errors"
	"net/http"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/job"
)

type errorResponse struct {
	Error string       `json:"error"`
	Code  xerrors.Code `json:"code"`
}

// statusOf 将错误码映射为 HTTP 状态码。
func statusOf(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, fleet.CodeInvalidAddress, fleet.CodeInvalidKeyEncoding,
		fleet.CodeInfeasiblePartition, job.CodeJobValidation:
		return http.StatusBadRequest
	case xerrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case xerrors.CodeNotFound, job.CodeJobNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, job.CodeJobConflict:
		return http.StatusConflict
	case fleet.CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case fleet.CodeQuoteUnavailable, xerrors.CodeUpstreamFailure, fleet.CodeSubmissionFailed:
		return http.StatusBadGateway
	case xerrors.CodeInitializationFailure, fleet.CodeCancelled, job.CodeJobPublish, xerrors.CodeQueueFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeTimeout, fleet.CodeConfirmationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	if code == xerrors.CodeUnknown {
		switch {
		case stdErrors.Is(err, context.Canceled):
			code = fleet.CodeCancelled
		case stdErrors.Is(err, context.DeadlineExceeded):
			code = xerrors.CodeTimeout
		}
	}
	writeJSON(w, statusOf(code), errorResponse{Error: err.Error(), Code: code})
}
