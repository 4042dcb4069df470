package distribution

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"WalletFleet/internal/batch"
	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/swap"
)

// BuyRequest spends Amount SOL from every wallet on Mint.
type BuyRequest struct {
	Mint        string          `json:"mint"`
	Amount      decimal.Decimal `json:"amount"`
	SlippageBps int             `json:"slippageBps,omitempty"`
	FeeReserve  uint64          `json:"feeReserve,omitempty"`
}

// SellRequest sells Percent of every wallet's Mint balance for SOL. Percent
// defaults to 100.
type SellRequest struct {
	Mint        string          `json:"mint"`
	Percent     decimal.Decimal `json:"percentage"`
	SlippageBps int             `json:"slippageBps,omitempty"`
}

// BuyAll swaps a flat SOL amount into Mint from every stored wallet. Each
// wallet must keep the fee reserve on top of the amount.
func (s *Service) BuyAll(ctx context.Context, req BuyRequest) (fleet.Summary, error) {
	if s.quoter == nil {
		return fleet.Summary{}, xerrors.New(xerrors.CodeInitializationFailure, "no swap provider configured")
	}
	mint, err := fleet.ParseAddress(req.Mint)
	if err != nil {
		return fleet.Summary{}, err
	}
	lamports := fleet.FromUnits(req.Amount)
	if lamports == 0 {
		return fleet.Summary{}, xerrors.Newf(xerrors.CodeInvalidArgument, "buy amount %s is below one lamport", req.Amount)
	}
	accounts, err := s.accounts(ctx)
	if err != nil {
		return fleet.Summary{}, err
	}

	s.log.Info("buying on every wallet",
		slog.String("mint", mint.String()),
		slog.Uint64("lamports", lamports),
		slog.Int("wallets", len(accounts)),
	)
	return s.executor.Execute(ctx, batch.Request{
		Kind:       KindBuy,
		Legs:       tradeLegs(accounts, mint),
		Policy:     batch.Flat(lamports),
		FeeReserve: s.reserveOrDefault(req.FeeReserve),
		Builder: batch.SwapBuilder{
			Quoter:      s.quoter,
			InputMint:   swap.NativeMint,
			OutputMint:  mint,
			SlippageBps: s.slippage(req.SlippageBps),
		},
		Balance: batch.NativeBalance(),
	})
}

// SellAll swaps a percentage of each wallet's Mint balance back into SOL.
// Wallets without the token fail with INSUFFICIENT_BALANCE.
func (s *Service) SellAll(ctx context.Context, req SellRequest) (fleet.Summary, error) {
	if s.quoter == nil {
		return fleet.Summary{}, xerrors.New(xerrors.CodeInitializationFailure, "no swap provider configured")
	}
	mint, err := fleet.ParseAddress(req.Mint)
	if err != nil {
		return fleet.Summary{}, err
	}
	pct := req.Percent
	if pct.IsZero() {
		pct = hundred
	}
	accounts, err := s.accounts(ctx)
	if err != nil {
		return fleet.Summary{}, err
	}

	s.log.Info("selling on every wallet",
		slog.String("mint", mint.String()),
		slog.String("percent", pct.String()),
		slog.Int("wallets", len(accounts)),
	)
	return s.executor.Execute(ctx, batch.Request{
		Kind:   KindSell,
		Legs:   tradeLegs(accounts, mint),
		Policy: batch.PercentOfBalance(pct),
		Builder: batch.SwapBuilder{
			Quoter:      s.quoter,
			InputMint:   mint,
			OutputMint:  swap.NativeMint,
			SlippageBps: s.slippage(req.SlippageBps),
		},
		Balance: batch.TokenBalance(mint),
	})
}

// tradeLegs uses the traded mint as each leg's destination so results name
// the asset the wallet traded against.
func tradeLegs(accounts []fleet.Account, mint solana.PublicKey) []batch.Leg {
	legs := make([]batch.Leg, len(accounts))
	for i, account := range accounts {
		legs[i] = batch.Leg{Source: account, Destination: mint}
	}
	return legs
}

func (s *Service) slippage(bps int) int {
	if bps > 0 {
		return bps
	}
	return s.slippageBps
}
