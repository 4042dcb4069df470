package fleet

import (
	xerrors "WalletFleet/internal/errors"
)

// Error taxonomy reported by batch operations. Codes scoped to a single
// account end up in OperationResult.ErrorKind; codes that invalidate a whole
// batch are returned to the caller before anything is submitted.
const (
	CodeInvalidAddress      xerrors.Code = "INVALID_ADDRESS"
	CodeInvalidKeyEncoding  xerrors.Code = "INVALID_KEY_ENCODING"
	CodeInsufficientBalance xerrors.Code = "INSUFFICIENT_BALANCE"
	CodeInfeasiblePartition xerrors.Code = "INFEASIBLE_PARTITION"
	CodeAnchorExpired       xerrors.Code = "ANCHOR_EXPIRED"
	CodeSubmissionFailed    xerrors.Code = "SUBMISSION_FAILED"
	CodeConfirmationTimeout xerrors.Code = "CONFIRMATION_TIMEOUT"
	CodeQuoteUnavailable    xerrors.Code = "QUOTE_UNAVAILABLE"
	CodeCancelled           xerrors.Code = "CANCELLED"
)

var (
	// ErrInvalidAddress is the sentinel for malformed ledger addresses.
	ErrInvalidAddress = xerrors.New(CodeInvalidAddress, "invalid address")
	// ErrInvalidKeyEncoding is the sentinel for undecodable secret keys.
	ErrInvalidKeyEncoding = xerrors.New(CodeInvalidKeyEncoding, "invalid key encoding")
	// ErrInsufficientBalance is the sentinel for balances that cannot cover an operation.
	ErrInsufficientBalance = xerrors.New(CodeInsufficientBalance, "insufficient balance")
	// ErrInfeasiblePartition is the sentinel for share constraints that admit no solution.
	ErrInfeasiblePartition = xerrors.New(CodeInfeasiblePartition, "infeasible partition")
	// ErrQuoteUnavailable is the sentinel for swap quotes that could not be obtained.
	ErrQuoteUnavailable = xerrors.New(CodeQuoteUnavailable, "quote unavailable")
)

func init() {
	xerrors.Register(CodeInvalidAddress, xerrors.Attributes{
		Message:  "invalid address",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidKeyEncoding, xerrors.Attributes{
		Message:  "invalid key encoding",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeInsufficientBalance, xerrors.Attributes{
		Message:  "insufficient balance",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInfeasiblePartition, xerrors.Attributes{
		Message:  "infeasible partition",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeAnchorExpired, xerrors.Attributes{
		Message:   "anchor expired before finalization",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeSubmissionFailed, xerrors.Attributes{
		Message:  "submission failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeConfirmationTimeout, xerrors.Attributes{
		Message:   "confirmation timed out",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeQuoteUnavailable, xerrors.Attributes{
		Message:   "quote unavailable",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeCancelled, xerrors.Attributes{
		Message:  "cancelled before processing",
		Severity: xerrors.SeverityInfo,
	})
}

// KindOf maps an arbitrary error onto the taxonomy. Errors that carry no
// fleet code are reported as submission failures, which is the only stage
// where foreign errors (RPC, signing) surface.
func KindOf(err error) xerrors.Code {
	if err == nil {
		return ""
	}
	code := xerrors.CodeOf(err)
	switch code {
	case CodeInvalidAddress, CodeInvalidKeyEncoding, CodeInsufficientBalance,
		CodeInfeasiblePartition, CodeAnchorExpired, CodeSubmissionFailed,
		CodeConfirmationTimeout, CodeQuoteUnavailable, CodeCancelled:
		return code
	}
	if xerrors.Interrupted(err) {
		return CodeCancelled
	}
	return CodeSubmissionFailed
}
