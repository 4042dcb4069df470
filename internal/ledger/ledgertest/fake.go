// Package ledgertest provides an in-memory ledger for tests.
package ledgertest

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/gagliardetto/solana-go"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/ledger"
)

// DefaultFee is the per-signature fee charged by the fake.
const DefaultFee uint64 = 5000

// TokenDecimals is reported for every token balance.
const TokenDecimals uint8 = 6

type tokenKey struct {
	owner solana.PublicKey
	mint  solana.PublicKey
}

// Fake is a ledger.Client that applies system transfers to in-memory
// balances. Failures can be injected per fee payer.
type Fake struct {
	mu sync.Mutex

	Fee uint64

	balances   map[solana.PublicKey]uint64
	tokens     map[tokenKey]uint64
	balanceErr map[solana.PublicKey]error
	submitErr  map[solana.PublicKey]error
	awaitErr   map[solana.PublicKey]error
	payers     map[string]solana.PublicKey

	anchors   uint64
	submitted []*solana.Transaction

	// OnSubmit runs after a transaction is accepted, outside the lock.
	OnSubmit func(tx *solana.Transaction)
}

var _ ledger.Client = (*Fake)(nil)

// New returns an empty fake ledger.
func New() *Fake {
	return &Fake{
		Fee:        DefaultFee,
		balances:   make(map[solana.PublicKey]uint64),
		tokens:     make(map[tokenKey]uint64),
		balanceErr: make(map[solana.PublicKey]error),
		submitErr:  make(map[solana.PublicKey]error),
		awaitErr:   make(map[solana.PublicKey]error),
		payers:     make(map[string]solana.PublicKey),
	}
}

// SetBalance sets an account's lamport balance.
func (f *Fake) SetBalance(account solana.PublicKey, lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = lamports
}

// Balance returns an account's lamport balance.
func (f *Fake) Balance(account solana.PublicKey) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[account]
}

// SetTokenBalance sets the owner's token balance for mint.
func (f *Fake) SetTokenBalance(owner, mint solana.PublicKey, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[tokenKey{owner: owner, mint: mint}] = amount
}

// FailBalance makes balance queries for account return err.
func (f *Fake) FailBalance(account solana.PublicKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceErr[account] = err
}

// FailSubmit makes submissions paid by payer return err.
func (f *Fake) FailSubmit(payer solana.PublicKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr[payer] = err
}

// FailAwait makes finalization of transactions paid by payer return err.
func (f *Fake) FailAwait(payer solana.PublicKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaitErr[payer] = err
}

// Submitted returns the accepted transactions in submission order.
func (f *Fake) Submitted() []*solana.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*solana.Transaction(nil), f.submitted...)
}

// AnchorCount reports how many anchors were handed out.
func (f *Fake) AnchorCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.anchors
}

func (f *Fake) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.balanceErr[account]; err != nil {
		return 0, err
	}
	return f.balances[account], nil
}

func (f *Fake) GetAccountState(ctx context.Context, account solana.PublicKey, _ string) (ledger.AccountState, error) {
	if err := ctx.Err(); err != nil {
		return ledger.AccountState{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lamports, ok := f.balances[account]
	if !ok {
		return ledger.AccountState{}, ledger.ErrAccountNotFound
	}
	return ledger.AccountState{
		Lamports:  lamports,
		Owner:     solana.SystemProgramID.String(),
		RentEpoch: "0",
	}, nil
}

func (f *Fake) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (ledger.TokenBalance, error) {
	if err := ctx.Err(); err != nil {
		return ledger.TokenBalance{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.balanceErr[owner]; err != nil {
		return ledger.TokenBalance{}, err
	}
	return ledger.TokenBalance{Amount: f.tokens[tokenKey{owner: owner, mint: mint}], Decimals: TokenDecimals}, nil
}

func (f *Fake) GetRecentAnchor(ctx context.Context) (ledger.Anchor, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Anchor{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anchors++
	var hash solana.Hash
	binary.LittleEndian.PutUint64(hash[:8], f.anchors)
	return ledger.Anchor{Blockhash: hash, LastValidBlockHeight: f.anchors + 150}, nil
}

func (f *Fake) Submit(ctx context.Context, tx *solana.Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := tx.VerifySignatures(); err != nil {
		return "", xerrors.Wrap(fleet.CodeSubmissionFailed, err, "signature verification failed")
	}
	payer := tx.Message.AccountKeys[0]

	f.mu.Lock()
	if err := f.submitErr[payer]; err != nil {
		f.mu.Unlock()
		return "", err
	}
	if err := f.apply(tx, payer); err != nil {
		f.mu.Unlock()
		return "", err
	}
	reference := ledger.Reference(tx)
	f.payers[reference] = payer
	f.submitted = append(f.submitted, tx)
	hook := f.OnSubmit
	f.mu.Unlock()

	if hook != nil {
		hook(tx)
	}
	return reference, nil
}

func (f *Fake) AwaitFinalization(ctx context.Context, reference string, _ ledger.Anchor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payer, ok := f.payers[reference]
	if !ok {
		return xerrors.Newf(fleet.CodeSubmissionFailed, "unknown transaction %s", reference)
	}
	return f.awaitErr[payer]
}

// apply charges the fee and moves lamports for system transfers. Other
// instructions only cost the fee.
func (f *Fake) apply(tx *solana.Transaction, payer solana.PublicKey) error {
	debits := map[solana.PublicKey]uint64{payer: f.Fee}
	credits := map[solana.PublicKey]uint64{}
	for _, inst := range tx.Message.Instructions {
		from, to, lamports, ok := decodeTransfer(tx, inst)
		if !ok {
			continue
		}
		debits[from] += lamports
		credits[to] += lamports
	}
	for account, amount := range debits {
		if f.balances[account] < amount {
			return xerrors.Newf(fleet.CodeSubmissionFailed,
				"insufficient lamports in %s: have %d need %d", account, f.balances[account], amount)
		}
	}
	for account, amount := range debits {
		f.balances[account] -= amount
	}
	for account, amount := range credits {
		f.balances[account] += amount
	}
	return nil
}

func decodeTransfer(tx *solana.Transaction, inst solana.CompiledInstruction) (from, to solana.PublicKey, lamports uint64, ok bool) {
	keys := tx.Message.AccountKeys
	if int(inst.ProgramIDIndex) >= len(keys) || !keys[inst.ProgramIDIndex].Equals(solana.SystemProgramID) {
		return from, to, 0, false
	}
	data := []byte(inst.Data)
	if len(data) != 12 || binary.LittleEndian.Uint32(data[:4]) != 2 || len(inst.Accounts) < 2 {
		return from, to, 0, false
	}
	return keys[inst.Accounts[0]], keys[inst.Accounts[1]], binary.LittleEndian.Uint64(data[4:]), true
}
