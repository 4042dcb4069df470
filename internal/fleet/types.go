package fleet

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	xerrors "WalletFleet/internal/errors"
)

// LamportsPerUnit is the fixed minor-unit conversion: 1 SOL = 10^9 lamports.
const LamportsPerUnit uint64 = solana.LAMPORTS_PER_SOL

// Account is a fleet keypair borrowed from the key store for the duration of
// a single call. Balances are deliberately absent: every policy re-queries
// the ledger.
type Account struct {
	Address   string
	PublicKey solana.PublicKey
	Key       solana.PrivateKey
	// LoadErr is set when the stored secret could not be decoded. Such an
	// account still occupies its slot in a batch and fails on its own.
	LoadErr error
}

// CanSign reports whether the account carries a usable signing key.
func (a Account) CanSign() bool {
	return a.LoadErr == nil && len(a.Key) == 64
}

// OperationResult records the outcome of one operation in a batch. Results
// are appended in input order and never modified afterwards.
type OperationResult struct {
	Index       int          `json:"index"`
	Source      string       `json:"source"`
	Destination string       `json:"destination"`
	Amount      uint64       `json:"amount"`
	Success     bool         `json:"success"`
	Reference   string       `json:"reference,omitempty"`
	ErrorKind   xerrors.Code `json:"error_kind,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Summary aggregates the results of one batch invocation.
type Summary struct {
	Kind          string            `json:"kind"`
	TotalResolved uint64            `json:"total_resolved"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	Cancelled     int               `json:"cancelled"`
	Results       []OperationResult `json:"results"`
}

// NewSummary tallies results into a Summary. TotalResolved only counts
// amounts that were actually finalized.
func NewSummary(kind string, results []OperationResult) Summary {
	summary := Summary{Kind: kind, Results: results}
	for _, result := range results {
		switch {
		case result.Success:
			summary.Succeeded++
			summary.TotalResolved += result.Amount
		case result.ErrorKind == CodeCancelled:
			summary.Cancelled++
		default:
			summary.Failed++
		}
	}
	return summary
}

// ZeroSuccess reports a batch where nothing went through.
func (s Summary) ZeroSuccess() bool {
	return len(s.Results) > 0 && s.Succeeded == 0
}

// ToUnits converts lamports to whole units for display.
func ToUnits(lamports uint64) decimal.Decimal {
	return DecimalFromUint64(lamports).Shift(-9)
}

// DecimalFromUint64 lifts an integer amount into decimal arithmetic without
// going through int64.
func DecimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// FromUnits converts a whole-unit amount to lamports, truncating anything
// below one lamport.
func FromUnits(units decimal.Decimal) uint64 {
	if !units.IsPositive() {
		return 0
	}
	return units.Shift(9).Floor().BigInt().Uint64()
}

// ParseAddress decodes a base58 ledger address.
func ParseAddress(address string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, xerrors.Wrap(CodeInvalidAddress, err, "invalid address "+address)
	}
	if pk.IsZero() {
		return solana.PublicKey{}, xerrors.New(CodeInvalidAddress, "zero address is not a valid destination")
	}
	return pk, nil
}
