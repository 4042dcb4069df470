package batch

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/ledger"
)

type policyKind int

const (
	policyFlat policyKind = iota + 1
	policyPercent
	policyShares
)

var hundred = decimal.NewFromInt(100)

// Policy decides how much each leg moves.
type Policy struct {
	kind    policyKind
	amount  uint64
	percent decimal.Decimal
	shares  []uint64
}

// Flat moves the same amount on every leg.
func Flat(amount uint64) Policy {
	return Policy{kind: policyFlat, amount: amount}
}

// PercentOfBalance moves pct percent of each source's current balance.
// pct == 100 moves everything above the fee reserve; smaller percentages are
// floored and then clamped so the fee reserve survives.
func PercentOfBalance(pct decimal.Decimal) Policy {
	return Policy{kind: policyPercent, percent: pct}
}

// PerAccountShare moves shares[i] on leg i.
func PerAccountShare(shares []uint64) Policy {
	return Policy{kind: policyShares, shares: append([]uint64(nil), shares...)}
}

func (p Policy) String() string {
	switch p.kind {
	case policyFlat:
		return "flat"
	case policyPercent:
		return "percent_of_balance"
	case policyShares:
		return "per_account_share"
	default:
		return "unset"
	}
}

func (p Policy) validate(legs int) error {
	switch p.kind {
	case policyFlat:
		if p.amount == 0 {
			return xerrors.New(xerrors.CodeInvalidArgument, "flat amount must be positive")
		}
	case policyPercent:
		if !p.percent.IsPositive() || p.percent.GreaterThan(hundred) {
			return xerrors.Newf(xerrors.CodeInvalidArgument, "percentage %s outside (0, 100]", p.percent)
		}
	case policyShares:
		if len(p.shares) != legs {
			return xerrors.Newf(xerrors.CodeInvalidArgument, "%d shares for %d legs", len(p.shares), legs)
		}
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, "amount policy is not set")
	}
	return nil
}

// resolve computes the amount for leg index. held is nil when the batch has
// no balance source, in which case fixed amounts are not checked up front.
func (p Policy) resolve(index int, held *Holding, feeReserve uint64) (uint64, error) {
	var amount uint64
	switch p.kind {
	case policyFlat:
		amount = p.amount
	case policyShares:
		amount = p.shares[index]
	case policyPercent:
		return percentAmount(p.percent, held.Amount, feeReserve)
	}
	if amount == 0 {
		return 0, xerrors.New(fleet.CodeInsufficientBalance, "resolved amount is zero")
	}
	if held == nil {
		return amount, nil
	}
	if held.Amount < feeReserve || held.Amount-feeReserve < amount {
		return amount, xerrors.Newf(fleet.CodeInsufficientBalance,
			"balance %d cannot cover %d plus reserve %d", held.Amount, amount, feeReserve)
	}
	return amount, nil
}

// percentAmount keeps the historical asymmetry between a full sweep and a
// partial one: 100% leaves exactly the reserve, anything less is floored
// first and only clamped when it would eat into the reserve.
func percentAmount(pct decimal.Decimal, balance, feeReserve uint64) (uint64, error) {
	if balance < feeReserve {
		return 0, xerrors.Newf(fleet.CodeInsufficientBalance, "balance %d below reserve %d", balance, feeReserve)
	}
	var amount uint64
	if pct.Equal(hundred) {
		amount = balance - feeReserve
	} else {
		amount = fleet.DecimalFromUint64(balance).Mul(pct).Div(hundred).Floor().BigInt().Uint64()
		if balance-amount < feeReserve {
			amount = balance - feeReserve
		}
	}
	if amount == 0 {
		return 0, xerrors.Newf(fleet.CodeInsufficientBalance, "nothing to move from balance %d", balance)
	}
	return amount, nil
}

// Holding is a balance together with the decimals of its asset.
type Holding struct {
	Amount   uint64
	Decimals uint8
}

// BalanceSource reads the balance a policy is computed against.
type BalanceSource interface {
	Balance(ctx context.Context, client ledger.Client, owner solana.PublicKey) (Holding, error)
	// ReservesFee reports whether the fee reserve is taken from this balance.
	ReservesFee() bool
}

type nativeBalance struct{}

// NativeBalance reads the lamport balance; the fee reserve applies.
func NativeBalance() BalanceSource { return nativeBalance{} }

func (nativeBalance) Balance(ctx context.Context, client ledger.Client, owner solana.PublicKey) (Holding, error) {
	lamports, err := client.GetBalance(ctx, owner)
	if err != nil {
		return Holding{}, err
	}
	return Holding{Amount: lamports, Decimals: 9}, nil
}

func (nativeBalance) ReservesFee() bool { return true }

type tokenBalance struct {
	mint solana.PublicKey
}

// TokenBalance reads the owner's balance of mint. Fees are paid in lamports,
// so no reserve is taken from it.
func TokenBalance(mint solana.PublicKey) BalanceSource { return tokenBalance{mint: mint} }

func (t tokenBalance) Balance(ctx context.Context, client ledger.Client, owner solana.PublicKey) (Holding, error) {
	balance, err := client.GetTokenBalance(ctx, owner, t.mint)
	if err != nil {
		return Holding{}, err
	}
	return Holding{Amount: balance.Amount, Decimals: balance.Decimals}, nil
}

func (tokenBalance) ReservesFee() bool { return false }
