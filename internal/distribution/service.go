// Package distribution composes the key store, the partition generator and
// the batch executor into the fleet-level operations: funding, sweeping,
// wallet creation, account inspection and fleet-wide swaps.
package distribution

import (
	"context"
	stdErrors "errors"
	"log/slog"

	"WalletFleet/internal/batch"
	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/keystore"
	"WalletFleet/internal/ledger"
	"WalletFleet/internal/partition"
	"WalletFleet/internal/swap"
	"WalletFleet/pkg/logger"
)

// DefaultFeeReserve is kept back per operation when no reserve is configured.
const DefaultFeeReserve uint64 = 5000

// Operation kinds reported in summaries, metrics and jobs.
const (
	KindFund  = "fund"
	KindSweep = "sweep"
	KindBuy   = "buy"
	KindSell  = "sell"
)

// Service runs fleet operations. It holds no balances or keys between calls;
// every call re-reads the key store and the ledger.
type Service struct {
	keys        keystore.Store
	ledger      ledger.Client
	executor    *batch.Executor
	generator   *partition.Generator
	quoter      swap.Quoter
	funder      *fleet.Account
	feeReserve  uint64
	slippageBps int
	log         *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithFunder sets the account that pays for Fund.
func WithFunder(account fleet.Account) Option {
	return func(s *Service) {
		s.funder = &account
	}
}

// WithQuoter enables BuyAll and SellAll.
func WithQuoter(q swap.Quoter) Option {
	return func(s *Service) {
		s.quoter = q
	}
}

// WithFeeReserve overrides DefaultFeeReserve.
func WithFeeReserve(lamports uint64) Option {
	return func(s *Service) {
		s.feeReserve = lamports
	}
}

// WithGenerator replaces the clock-seeded partition generator.
func WithGenerator(g *partition.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.generator = g
		}
	}
}

// WithExecutor replaces the sequential executor.
func WithExecutor(e *batch.Executor) Option {
	return func(s *Service) {
		if e != nil {
			s.executor = e
		}
	}
}

// WithSlippageBps sets the slippage used when a trade request carries none.
func WithSlippageBps(bps int) Option {
	return func(s *Service) {
		if bps > 0 {
			s.slippageBps = bps
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New builds a Service over a key store and a ledger client.
func New(keys keystore.Store, client ledger.Client, opts ...Option) (*Service, error) {
	if keys == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "distribution service requires a key store")
	}
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "distribution service requires a ledger client")
	}
	s := &Service{
		keys:        keys,
		ledger:      client,
		feeReserve:  DefaultFeeReserve,
		slippageBps: swap.DefaultSlippageBps,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.log == nil {
		s.log = logger.Named("distribution")
	}
	if s.generator == nil {
		s.generator = partition.NewRandom()
	}
	if s.executor == nil {
		s.executor = batch.NewExecutor(client, batch.WithLogger(s.log))
	}
	return s, nil
}

// CreateWallets generates count keypairs and appends them to the key store.
// It returns the new addresses in creation order.
func (s *Service) CreateWallets(ctx context.Context, count int) ([]string, error) {
	entries, err := keystore.Generate(count)
	if err != nil {
		return nil, err
	}
	if err := s.keys.Append(ctx, entries...); err != nil {
		return nil, err
	}
	addresses := make([]string, len(entries))
	for i, entry := range entries {
		addresses[i] = entry.PublicKey
	}
	logger.Audit().Info("wallets created", slog.Int("count", len(addresses)))
	s.log.Info("wallets created", slog.Int("count", len(addresses)))
	return addresses, nil
}

// AccountInfo describes one stored wallet as seen by the ledger. Error is set
// instead of the ledger fields when the wallet could not be inspected.
type AccountInfo struct {
	Address    string `json:"address"`
	Lamports   uint64 `json:"lamports"`
	SOL        string `json:"sol"`
	Commitment string `json:"commitment"`
	Executable bool   `json:"executable"`
	Owner      string `json:"owner,omitempty"`
	RentEpoch  string `json:"rentEpoch,omitempty"`
	DataLength int    `json:"dataLength"`
	Error      string `json:"error,omitempty"`
}

// AccountInfo reads the state of every stored wallet at the given commitment
// (confirmed when empty or unknown).
func (s *Service) AccountInfo(ctx context.Context, commitment string) ([]AccountInfo, error) {
	entries, err := s.keys.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, xerrors.New(xerrors.CodeNotFound, "no wallets stored")
	}
	commitment = ledger.NormalizeCommitment(commitment, ledger.CommitmentConfirmed)

	infos := make([]AccountInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info := AccountInfo{Address: entry.PublicKey, Commitment: commitment}
		address, err := fleet.ParseAddress(entry.PublicKey)
		if err != nil {
			info.Error = "invalid address"
			infos = append(infos, info)
			continue
		}
		state, err := s.ledger.GetAccountState(ctx, address, commitment)
		switch {
		case stdErrors.Is(err, ledger.ErrAccountNotFound):
			info.Error = "account not found"
		case err != nil:
			info.Error = err.Error()
		default:
			info.Lamports = state.Lamports
			info.SOL = fleet.ToUnits(state.Lamports).String()
			info.Executable = state.Executable
			info.Owner = state.Owner
			info.RentEpoch = state.RentEpoch
			info.DataLength = state.DataLength
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *Service) accounts(ctx context.Context) ([]fleet.Account, error) {
	accounts, err := keystore.Load(ctx, s.keys)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, xerrors.New(xerrors.CodeNotFound, "no wallets stored")
	}
	return accounts, nil
}

func (s *Service) reserveOrDefault(lamports uint64) uint64 {
	if lamports == 0 {
		return s.feeReserve
	}
	return lamports
}
