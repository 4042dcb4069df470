package batch

import (
	"context"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/ledger"
	"WalletFleet/internal/swap"
)

// Operation is one resolved leg, ready to be built and signed.
type Operation struct {
	Index    int
	Leg      Leg
	Amount   uint64
	Decimals uint8
	Anchor   ledger.Anchor
}

// Builder turns a resolved operation into a signed transaction.
type Builder interface {
	Build(ctx context.Context, op Operation) (*solana.Transaction, error)
}

// TransferBuilder builds native transfers paid by the source.
type TransferBuilder struct{}

// Build implements Builder.
func (TransferBuilder) Build(_ context.Context, op Operation) (*solana.Transaction, error) {
	from := op.Leg.Source.PublicKey
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(op.Amount, from, op.Leg.Destination).Build()},
		op.Anchor.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, xerrors.Wrap(fleet.CodeSubmissionFailed, err, "build transfer")
	}
	if err := ledger.Sign(tx, op.Leg.Source.Key); err != nil {
		return nil, err
	}
	return tx, nil
}

// SwapBuilder swaps the resolved amount of InputMint into OutputMint through
// a quote provider. The provider's transaction is re-anchored to the fresh
// blockhash before signing.
type SwapBuilder struct {
	Quoter      swap.Quoter
	InputMint   solana.PublicKey
	OutputMint  solana.PublicKey
	SlippageBps int
}

// Build implements Builder.
func (b SwapBuilder) Build(ctx context.Context, op Operation) (*solana.Transaction, error) {
	if b.Quoter == nil {
		return nil, xerrors.New(fleet.CodeQuoteUnavailable, "no quote provider configured")
	}
	payer := op.Leg.Source.PublicKey
	quote, err := b.Quoter.GetQuote(ctx, swap.QuoteRequest{
		InputMint:     b.InputMint,
		OutputMint:    b.OutputMint,
		Amount:        op.Amount,
		InputDecimals: op.Decimals,
		SlippageBps:   b.SlippageBps,
	})
	if err != nil {
		return nil, err
	}
	raw, err := b.Quoter.BuildSwap(ctx, quote, payer)
	if err != nil {
		return nil, err
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, xerrors.Wrap(fleet.CodeQuoteUnavailable, err, "decode swap transaction")
	}
	if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(payer) {
		return nil, xerrors.Newf(fleet.CodeQuoteUnavailable, "swap transaction is not paid by %s", payer)
	}
	tx.Message.RecentBlockhash = op.Anchor.Blockhash
	if err := ledger.Sign(tx, op.Leg.Source.Key); err != nil {
		return nil, err
	}
	return tx, nil
}
