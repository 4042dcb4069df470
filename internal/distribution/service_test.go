package distribution

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/keystore"
	"WalletFleet/internal/ledger/ledgertest"
	"WalletFleet/internal/partition"
	"WalletFleet/internal/swap"
	"WalletFleet/pkg/logger"
)

type fixture struct {
	ledger  *ledgertest.Fake
	store   *keystore.MemoryStore
	wallets []solana.PublicKey
	funder  fleet.Account
}

func newFixture(t *testing.T, wallets int) *fixture {
	t.Helper()
	entries, err := keystore.Generate(wallets)
	require.NoError(t, err)

	f := &fixture{ledger: ledgertest.New(), store: keystore.NewMemoryStore(entries...)}
	for _, entry := range entries {
		f.wallets = append(f.wallets, solana.MustPublicKeyFromBase58(entry.PublicKey))
	}

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	f.funder = fleet.Account{Address: key.PublicKey().String(), PublicKey: key.PublicKey(), Key: key}
	f.ledger.SetBalance(f.funder.PublicKey, solana.LAMPORTS_PER_SOL)
	return f
}

func (f *fixture) service(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithFunder(f.funder),
		WithGenerator(partition.New(1)),
		WithLogger(logger.Discard()),
	}
	svc, err := New(f.store, f.ledger, append(base, opts...)...)
	require.NoError(t, err)
	return svc
}

func (f *fixture) received() []uint64 {
	out := make([]uint64, len(f.wallets))
	for i, wallet := range f.wallets {
		out[i] = f.ledger.Balance(wallet)
	}
	return out
}

func sum(values []uint64) uint64 {
	var total uint64
	for _, v := range values {
		total += v
	}
	return total
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, ledgertest.New())
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
	_, err = New(keystore.NewMemoryStore(), nil)
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}

func TestFundFlat(t *testing.T) {
	f := newFixture(t, 3)
	summary, err := f.service(t).Fund(context.Background(), FundRequest{Mode: ModeFlat, Amount: 10_000})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, uint64(30_000), summary.TotalResolved)
	assert.Equal(t, []uint64{10_000, 10_000, 10_000}, f.received())
	for _, result := range summary.Results {
		assert.Equal(t, f.funder.Address, result.Source)
	}
}

func TestFundFlatOverBudgetAbortsBeforeSubmitting(t *testing.T) {
	f := newFixture(t, 3)
	_, err := f.service(t).Fund(context.Background(), FundRequest{Mode: ModeFlat, Amount: solana.LAMPORTS_PER_SOL / 2})
	require.Error(t, err)
	assert.Equal(t, fleet.CodeInsufficientBalance, xerrors.CodeOf(err))
	assert.Empty(t, f.ledger.Submitted())
}

func TestFundBounded(t *testing.T) {
	f := newFixture(t, 5)
	summary, err := f.service(t).Fund(context.Background(), FundRequest{
		Mode:  ModeBounded,
		Total: 300_000,
		Min:   50_000,
		Max:   70_000,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Succeeded)

	received := f.received()
	assert.Equal(t, uint64(300_000), sum(received))
	for _, amount := range received {
		assert.GreaterOrEqual(t, amount, uint64(50_000))
		assert.LessOrEqual(t, amount, uint64(70_000))
	}
}

func TestFundInfeasibleAbortsBeforeSubmitting(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.service(t).Fund(context.Background(), FundRequest{
		Mode:  ModeBounded,
		Total: 100,
		Min:   1,
		Max:   10,
	})
	require.Error(t, err)
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))
	assert.Empty(t, f.ledger.Submitted())

	_, err = f.service(t).Fund(context.Background(), FundRequest{Mode: ModeRandom, Total: 1_000_000})
	assert.Equal(t, fleet.CodeInfeasiblePartition, xerrors.CodeOf(err))
	assert.Empty(t, f.ledger.Submitted())
}

func TestFundArithmetic(t *testing.T) {
	f := newFixture(t, 3)
	summary, err := f.service(t).Fund(context.Background(), FundRequest{Mode: ModeArithmetic, Total: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)

	assert.Equal(t, []uint64{333_233, 333_333, 333_434}, f.received())
}

func TestFundRandomUsesWholeBudget(t *testing.T) {
	f := newFixture(t, 12)
	summary, err := f.service(t).Fund(context.Background(), FundRequest{Mode: ModeRandom})
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Succeeded)

	budget := solana.LAMPORTS_PER_SOL - 12*DefaultFeeReserve
	received := f.received()
	assert.Equal(t, budget, sum(received))
	for _, amount := range received {
		assert.GreaterOrEqual(t, amount, budget/100)
		assert.LessOrEqual(t, amount, budget/10+uint64(len(received)))
	}
	assert.Equal(t, uint64(0), f.ledger.Balance(f.funder.PublicKey))
}

func TestFundExplicitRecipients(t *testing.T) {
	f := newFixture(t, 1)
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	_, err = f.service(t).Fund(context.Background(), FundRequest{
		Amount:     1_000,
		Recipients: []string{other.PublicKey().String()},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), f.ledger.Balance(other.PublicKey()))
	assert.Zero(t, f.ledger.Balance(f.wallets[0]))

	_, err = f.service(t).Fund(context.Background(), FundRequest{Amount: 1_000, Recipients: []string{"bogus"}})
	assert.Equal(t, fleet.CodeInvalidAddress, xerrors.CodeOf(err))
}

func TestFundWithoutFunder(t *testing.T) {
	f := newFixture(t, 2)
	svc, err := New(f.store, f.ledger, WithLogger(logger.Discard()))
	require.NoError(t, err)

	_, err = svc.Fund(context.Background(), FundRequest{Amount: 1})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = f.service(t).Fund(context.Background(), FundRequest{Mode: "spiral", Amount: 1})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestSplitByPercent(t *testing.T) {
	percents := []decimal.Decimal{
		decimal.RequireFromString("33.333333"),
		decimal.RequireFromString("33.333333"),
		decimal.RequireFromString("33.333334"),
	}
	shares := SplitByPercent(100, percents)
	assert.Equal(t, []uint64{33, 33, 34}, shares)
	assert.Equal(t, uint64(100), sum(shares))

	assert.Empty(t, SplitByPercent(100, nil))
}

func TestSweepDefaultsToFullBalance(t *testing.T) {
	f := newFixture(t, 3)
	for i, wallet := range f.wallets {
		f.ledger.SetBalance(wallet, uint64(i+1)*100_000)
	}
	f.ledger.SetBalance(f.wallets[2], 3_000)
	destination, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	summary, err := f.service(t).Sweep(context.Background(), SweepRequest{Destination: destination.PublicKey().String()})
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)

	assert.Equal(t, uint64(95_000), summary.Results[0].Amount)
	assert.Equal(t, uint64(195_000), summary.Results[1].Amount)
	assert.Equal(t, fleet.CodeInsufficientBalance, summary.Results[2].ErrorKind)
	assert.Equal(t, uint64(290_000), f.ledger.Balance(destination.PublicKey()))
	assert.Equal(t, 2, summary.Succeeded)
}

func TestSweepPercentage(t *testing.T) {
	f := newFixture(t, 1)
	f.ledger.SetBalance(f.wallets[0], 1_000_000)
	destination, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	summary, err := f.service(t).Sweep(context.Background(), SweepRequest{
		Destination: destination.PublicKey().String(),
		Percent:     decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), summary.Results[0].Amount)
}

func TestSweepRejects(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.service(t).Sweep(context.Background(), SweepRequest{Destination: "nope"})
	assert.Equal(t, fleet.CodeInvalidAddress, xerrors.CodeOf(err))

	empty, err := New(keystore.NewMemoryStore(), f.ledger, WithLogger(logger.Discard()))
	require.NoError(t, err)
	_, err = empty.Sweep(context.Background(), SweepRequest{Destination: f.funder.Address})
	assert.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))
}

func TestCreateWallets(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.service(t)

	addresses, err := svc.CreateWallets(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, addresses, 4)

	entries, err := f.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, address := range addresses {
		assert.Equal(t, address, entries[i+1].PublicKey)
	}

	_, err = svc.CreateWallets(context.Background(), 0)
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestAccountInfo(t *testing.T) {
	f := newFixture(t, 2)
	f.ledger.SetBalance(f.wallets[0], 1_500_000_000)
	require.NoError(t, f.store.Append(context.Background(), keystore.Entry{PublicKey: "not-an-address", SecretKey: "x"}))

	infos, err := f.service(t).AccountInfo(context.Background(), "FINALIZED")
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, uint64(1_500_000_000), infos[0].Lamports)
	assert.Equal(t, "1.5", infos[0].SOL)
	assert.Equal(t, "finalized", infos[0].Commitment)
	assert.Equal(t, solana.SystemProgramID.String(), infos[0].Owner)
	assert.Empty(t, infos[0].Error)

	assert.Equal(t, "account not found", infos[1].Error)
	assert.Equal(t, "invalid address", infos[2].Error)
}

type fakeQuoter struct {
	pool     solana.PublicKey
	requests []swap.QuoteRequest
}

func (q *fakeQuoter) GetQuote(_ context.Context, req swap.QuoteRequest) (swap.Quote, error) {
	q.requests = append(q.requests, req)
	return swap.Quote{Provider: "fake", InputMint: req.InputMint, OutputMint: req.OutputMint, InAmount: req.Amount}, nil
}

func (q *fakeQuoter) BuildSwap(_ context.Context, _ swap.Quote, payer solana.PublicKey) ([]byte, error) {
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, payer, q.pool).Build()},
		solana.Hash{1},
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, err
	}
	tx.Signatures = []solana.Signature{{}}
	return tx.MarshalBinary()
}

func TestBuyAll(t *testing.T) {
	f := newFixture(t, 2)
	for _, wallet := range f.wallets {
		f.ledger.SetBalance(wallet, 100_000_000)
	}
	mint, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	quoter := &fakeQuoter{pool: f.funder.PublicKey}

	summary, err := f.service(t, WithQuoter(quoter), WithSlippageBps(500)).BuyAll(context.Background(), BuyRequest{
		Mint:   mint.PublicKey().String(),
		Amount: decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)

	require.Len(t, quoter.requests, 2)
	for _, req := range quoter.requests {
		assert.Equal(t, swap.NativeMint, req.InputMint)
		assert.Equal(t, mint.PublicKey(), req.OutputMint)
		assert.Equal(t, uint64(10_000_000), req.Amount)
		assert.Equal(t, 500, req.SlippageBps)
	}
}

func TestBuyAllRejects(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.service(t).BuyAll(context.Background(), BuyRequest{Mint: f.funder.Address, Amount: decimal.NewFromInt(1)})
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))

	svc := f.service(t, WithQuoter(&fakeQuoter{}))
	_, err = svc.BuyAll(context.Background(), BuyRequest{Mint: f.funder.Address, Amount: decimal.RequireFromString("0.0000000001")})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	_, err = svc.BuyAll(context.Background(), BuyRequest{Mint: "x", Amount: decimal.NewFromInt(1)})
	assert.Equal(t, fleet.CodeInvalidAddress, xerrors.CodeOf(err))
}

func TestSellAll(t *testing.T) {
	f := newFixture(t, 2)
	mint, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	for _, wallet := range f.wallets {
		f.ledger.SetBalance(wallet, 100_000)
	}
	f.ledger.SetTokenBalance(f.wallets[0], mint.PublicKey(), 2_000_000)
	quoter := &fakeQuoter{pool: f.funder.PublicKey}

	summary, err := f.service(t, WithQuoter(quoter)).SellAll(context.Background(), SellRequest{
		Mint:    mint.PublicKey().String(),
		Percent: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)

	assert.True(t, summary.Results[0].Success)
	assert.Equal(t, uint64(1_000_000), summary.Results[0].Amount)
	assert.Equal(t, fleet.CodeInsufficientBalance, summary.Results[1].ErrorKind)

	require.Len(t, quoter.requests, 1)
	assert.Equal(t, mint.PublicKey(), quoter.requests[0].InputMint)
	assert.Equal(t, swap.NativeMint, quoter.requests[0].OutputMint)
	assert.Equal(t, ledgertest.TokenDecimals, quoter.requests[0].InputDecimals)
	assert.Equal(t, swap.DefaultSlippageBps, quoter.requests[0].SlippageBps)
}
