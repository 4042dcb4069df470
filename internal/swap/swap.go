// Package swap obtains swap quotes and unsigned swap transactions from
// external aggregators.
package swap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
)

// NativeMint is the wrapped-SOL mint used to denote the native asset in
// swap routes.
var NativeMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// DefaultSlippageBps applies when a request carries no slippage.
const DefaultSlippageBps = 300

// QuoteRequest asks for a route from InputMint to OutputMint. Amount is in
// the input asset's base units.
type QuoteRequest struct {
	InputMint     solana.PublicKey
	OutputMint    solana.PublicKey
	Amount        uint64
	InputDecimals uint8
	SlippageBps   int
}

// Quote is a priced route. Raw keeps the provider's original payload, which
// some providers need back verbatim to build the transaction.
type Quote struct {
	Provider      string           `json:"provider"`
	InputMint     solana.PublicKey `json:"inputMint"`
	OutputMint    solana.PublicKey `json:"outputMint"`
	InAmount      uint64           `json:"inAmount"`
	OutAmount     uint64           `json:"outAmount"`
	InputDecimals uint8            `json:"inputDecimals"`
	SlippageBps   int              `json:"slippageBps"`
	Raw           json.RawMessage  `json:"raw,omitempty"`
}

// Quoter is the quote/swap collaborator. BuildSwap returns a serialized,
// unsigned transaction paid by payer.
type Quoter interface {
	GetQuote(ctx context.Context, req QuoteRequest) (Quote, error)
	BuildSwap(ctx context.Context, quote Quote, payer solana.PublicKey) ([]byte, error)
}

func (r QuoteRequest) validate() error {
	if r.InputMint.IsZero() || r.OutputMint.IsZero() {
		return xerrors.New(fleet.CodeInvalidAddress, "swap mints must be set")
	}
	if r.InputMint.Equals(r.OutputMint) {
		return xerrors.New(xerrors.CodeInvalidArgument, "input and output mint are the same")
	}
	if r.Amount == 0 {
		return xerrors.New(fleet.CodeInsufficientBalance, "swap amount is zero")
	}
	return nil
}

func slippageOrDefault(bps int) int {
	if bps <= 0 {
		return DefaultSlippageBps
	}
	return bps
}

// unavailable wraps provider failures. Cancellation passes through so the
// executor can tell it apart from a provider outage.
func unavailable(provider string, err error, format string, args ...any) error {
	if err != nil && xerrors.Interrupted(err) {
		return err
	}
	message := provider + ": " + fmt.Sprintf(format, args...)
	if err == nil {
		return xerrors.New(fleet.CodeQuoteUnavailable, message)
	}
	return xerrors.Wrap(fleet.CodeQuoteUnavailable, err, message)
}
