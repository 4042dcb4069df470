package distribution

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"WalletFleet/internal/batch"
	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
)

// Mode selects how Fund splits the budget.
type Mode string

const (
	// ModeFlat sends Amount to every recipient.
	ModeFlat Mode = "flat"
	// ModeBounded draws integer lamport shares within [Min, Max].
	ModeBounded Mode = "bounded"
	// ModeRandom draws percentages within [MinPercent, MaxPercent].
	ModeRandom Mode = "random"
	// ModeArithmetic uses strictly increasing percentages.
	ModeArithmetic Mode = "arithmetic"
)

var (
	defaultMinPercent = decimal.NewFromInt(1)
	defaultMaxPercent = decimal.NewFromInt(10)
	hundred           = decimal.NewFromInt(100)
)

// ParseMode accepts a mode name, defaulting to ModeFlat when empty.
func ParseMode(value string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "":
		return ModeFlat, nil
	case ModeFlat, ModeBounded, ModeRandom, ModeArithmetic:
		return mode, nil
	default:
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "unknown fund mode %q", value)
	}
}

// FundRequest describes a fan-out from the funder. Amounts are lamports.
type FundRequest struct {
	Mode Mode `json:"mode"`
	// Amount is the per-recipient amount for ModeFlat.
	Amount uint64 `json:"amount,omitempty"`
	// Total caps what the partition modes distribute. Zero means the whole
	// budget: funder balance minus one fee reserve per recipient.
	Total      uint64          `json:"total,omitempty"`
	Min        uint64          `json:"min,omitempty"`
	Max        uint64          `json:"max,omitempty"`
	MinPercent decimal.Decimal `json:"minPercent"`
	MaxPercent decimal.Decimal `json:"maxPercent"`
	// Recipients defaults to every stored wallet.
	Recipients []string `json:"recipients,omitempty"`
	FeeReserve uint64   `json:"feeReserve,omitempty"`
}

// Fund sends lamports from the funder to each recipient. Partition failures,
// a missing funder and bad recipient addresses abort before anything is
// submitted.
func (s *Service) Fund(ctx context.Context, req FundRequest) (fleet.Summary, error) {
	if s.funder == nil {
		return fleet.Summary{}, xerrors.New(xerrors.CodeInvalidArgument, "no funder account configured")
	}
	funder := *s.funder
	if !funder.CanSign() {
		if funder.LoadErr != nil {
			return fleet.Summary{}, funder.LoadErr
		}
		return fleet.Summary{}, xerrors.New(fleet.CodeInvalidKeyEncoding, "funder has no signing key")
	}
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return fleet.Summary{}, err
	}

	recipients, err := s.recipients(ctx, req.Recipients)
	if err != nil {
		return fleet.Summary{}, err
	}
	n := uint64(len(recipients))
	feeReserve := s.reserveOrDefault(req.FeeReserve)

	balance, err := s.ledger.GetBalance(ctx, funder.PublicKey)
	if err != nil {
		return fleet.Summary{}, err
	}
	reserved := feeReserve * n
	if reserved/n != feeReserve || balance <= reserved {
		return fleet.Summary{}, xerrors.Newf(fleet.CodeInsufficientBalance,
			"funder balance %d cannot cover %d fee reserves of %d", balance, n, feeReserve)
	}
	budget := balance - reserved

	policy, err := s.fundPolicy(mode, req, len(recipients), budget)
	if err != nil {
		return fleet.Summary{}, err
	}

	legs := make([]batch.Leg, len(recipients))
	for i, recipient := range recipients {
		legs[i] = batch.Leg{Source: funder, Destination: recipient}
	}
	s.log.Info("funding fleet",
		slog.String("mode", string(mode)),
		slog.Int("recipients", len(recipients)),
		slog.Uint64("budget", budget),
	)
	return s.executor.Execute(ctx, batch.Request{
		Kind:       KindFund,
		Legs:       legs,
		Policy:     policy,
		FeeReserve: feeReserve,
		Builder:    batch.TransferBuilder{},
		Balance:    batch.NativeBalance(),
	})
}

func (s *Service) fundPolicy(mode Mode, req FundRequest, n int, budget uint64) (batch.Policy, error) {
	total := req.Total
	if total == 0 {
		total = budget
	}
	if total > budget {
		return batch.Policy{}, xerrors.Newf(fleet.CodeInsufficientBalance,
			"requested total %d exceeds budget %d", total, budget)
	}

	switch mode {
	case ModeFlat:
		if req.Amount == 0 {
			return batch.Policy{}, xerrors.New(xerrors.CodeInvalidArgument, "flat funding needs a positive amount")
		}
		need := req.Amount * uint64(n)
		if need/uint64(n) != req.Amount || need > budget {
			return batch.Policy{}, xerrors.Newf(fleet.CodeInsufficientBalance,
				"%d recipients of %d exceed budget %d", n, req.Amount, budget)
		}
		return batch.Flat(req.Amount), nil
	case ModeBounded:
		min, max := req.Min, req.Max
		if min == 0 {
			min = 1
		}
		if max == 0 {
			max = total
		}
		shares, err := s.generator.BoundedIntegers(n, total, min, max)
		if err != nil {
			return batch.Policy{}, err
		}
		return batch.PerAccountShare(shares), nil
	case ModeRandom:
		min, max := req.MinPercent, req.MaxPercent
		if min.IsZero() && max.IsZero() {
			min, max = defaultMinPercent, defaultMaxPercent
		}
		percents, err := s.generator.RandomPercentages(n, min, max)
		if err != nil {
			return batch.Policy{}, err
		}
		return batch.PerAccountShare(SplitByPercent(total, percents)), nil
	case ModeArithmetic:
		percents, err := s.generator.UniqueArithmeticPercentages(n)
		if err != nil {
			return batch.Policy{}, err
		}
		return batch.PerAccountShare(SplitByPercent(total, percents)), nil
	}
	return batch.Policy{}, xerrors.Newf(xerrors.CodeInvalidArgument, "unknown fund mode %q", mode)
}

// SplitByPercent converts percentages of total into lamports. Each share is
// floored; what the flooring leaves over goes to the last share so the
// result sums to total exactly.
func SplitByPercent(total uint64, percents []decimal.Decimal) []uint64 {
	shares := make([]uint64, len(percents))
	if len(percents) == 0 {
		return shares
	}
	base := fleet.DecimalFromUint64(total)
	var sum uint64
	for i, pct := range percents {
		amount := base.Mul(pct).Div(hundred).Floor()
		if amount.IsNegative() {
			continue
		}
		shares[i] = amount.BigInt().Uint64()
		sum += shares[i]
	}
	last := len(shares) - 1
	if sum <= total {
		shares[last] += total - sum
	} else if over := sum - total; shares[last] >= over {
		shares[last] -= over
	}
	return shares
}

func (s *Service) recipients(ctx context.Context, addresses []string) ([]solana.PublicKey, error) {
	if len(addresses) > 0 {
		out := make([]solana.PublicKey, len(addresses))
		for i, address := range addresses {
			pk, err := fleet.ParseAddress(address)
			if err != nil {
				return nil, err
			}
			out[i] = pk
		}
		return out, nil
	}

	accounts, err := s.accounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]solana.PublicKey, 0, len(accounts))
	for _, account := range accounts {
		if account.PublicKey.IsZero() {
			s.log.Warn("skipping stored wallet with unreadable address", slog.String("address", account.Address))
			continue
		}
		out = append(out, account.PublicKey)
	}
	if len(out) == 0 {
		return nil, xerrors.New(fleet.CodeInvalidAddress, "no stored wallet has a valid address")
	}
	return out, nil
}

// SweepRequest moves a percentage of every wallet's balance to Destination.
// Percent defaults to 100.
type SweepRequest struct {
	Destination string          `json:"destination"`
	Percent     decimal.Decimal `json:"percentage"`
	FeeReserve  uint64          `json:"feeReserve,omitempty"`
}

// Sweep runs PercentOfBalance over the whole fleet.
func (s *Service) Sweep(ctx context.Context, req SweepRequest) (fleet.Summary, error) {
	destination, err := fleet.ParseAddress(req.Destination)
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

	legs := make([]batch.Leg, len(accounts))
	for i, account := range accounts {
		legs[i] = batch.Leg{Source: account, Destination: destination}
	}
	s.log.Info("sweeping fleet",
		slog.String("destination", destination.String()),
		slog.String("percent", pct.String()),
		slog.Int("wallets", len(legs)),
	)
	return s.executor.Execute(ctx, batch.Request{
		Kind:       KindSweep,
		Legs:       legs,
		Policy:     batch.PercentOfBalance(pct),
		FeeReserve: s.reserveOrDefault(req.FeeReserve),
		Builder:    batch.TransferBuilder{},
		Balance:    batch.NativeBalance(),
	})
}
