// Package ledger defines the narrow interface the fleet uses to talk to the
// chain: balance and account queries, recent anchors, submission and
// finalization.
package ledger

import (
	"context"
	"strings"

	"github.com/gagliardetto/solana-go"

	xerrors "WalletFleet/internal/errors"
)

// ErrAccountNotFound is returned by GetAccountState for addresses the ledger
// has never seen.
var ErrAccountNotFound = xerrors.New(xerrors.CodeNotFound, "account not found")

// Commitment levels understood by every client.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// NormalizeCommitment maps user input onto a supported commitment level,
// falling back to def for empty or unknown values.
func NormalizeCommitment(value, def string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case CommitmentProcessed:
		return CommitmentProcessed
	case CommitmentConfirmed:
		return CommitmentConfirmed
	case CommitmentFinalized:
		return CommitmentFinalized
	default:
		return def
	}
}

// Anchor is a recent blockhash together with the last block height at which
// a transaction referencing it can still land.
type Anchor struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// AccountState describes an on-chain account.
type AccountState struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Executable bool   `json:"executable"`
	RentEpoch  string `json:"rentEpoch"`
	DataLength int    `json:"dataLength"`
}

// TokenBalance is a raw token amount together with its mint's decimals.
type TokenBalance struct {
	Amount   uint64
	Decimals uint8
}

// Client is the ledger surface consumed by batch execution.
//
// AwaitFinalization returns nil once the transaction reached the client's
// commitment level. Otherwise the error carries SUBMISSION_FAILED when the
// ledger rejected it, ANCHOR_EXPIRED when the anchor's validity height
// passed first, or CONFIRMATION_TIMEOUT when neither happened in time.
type Client interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetAccountState(ctx context.Context, account solana.PublicKey, commitment string) (AccountState, error)
	GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (TokenBalance, error)
	GetRecentAnchor(ctx context.Context) (Anchor, error)
	Submit(ctx context.Context, tx *solana.Transaction) (string, error)
	AwaitFinalization(ctx context.Context, reference string, anchor Anchor) error
}
