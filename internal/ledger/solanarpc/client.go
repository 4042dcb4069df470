// Package solanarpc implements ledger.Client over Solana JSON-RPC.
package solanarpc

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/ledger"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultConfirmTimeout = 90 * time.Second
)

// Config describes how to construct a client.
type Config struct {
	Name           string
	RPCURL         string
	Commitment     string
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	SkipPreflight  bool
}

// Client talks to a single RPC endpoint.
type Client struct {
	name           string
	rpc            *rpc.Client
	commitment     rpc.CommitmentType
	pollInterval   time.Duration
	confirmTimeout time.Duration
	skipPreflight  bool
}

var _ ledger.Client = (*Client)(nil)

// NewClient returns a client for cfg.RPCURL. No request is made until the
// first call.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.RPCURL)
	if endpoint == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "ledger rpc url is empty")
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = defaultConfirmTimeout
	}
	return &Client{
		name:           cfg.Name,
		rpc:            rpc.New(endpoint),
		commitment:     commitmentType(ledger.NormalizeCommitment(cfg.Commitment, ledger.CommitmentConfirmed)),
		pollInterval:   poll,
		confirmTimeout: timeout,
		skipPreflight:  cfg.SkipPreflight,
	}, nil
}

// Name returns the configured cluster name.
func (c *Client) Name() string { return c.name }

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	if c == nil || c.rpc == nil {
		return nil
	}
	return c.rpc.Close()
}

func commitmentType(level string) rpc.CommitmentType {
	switch level {
	case ledger.CommitmentProcessed:
		return rpc.CommitmentProcessed
	case ledger.CommitmentFinalized:
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

func upstream(err error, op string) error {
	if err == nil {
		return nil
	}
	if xerrors.Interrupted(err) {
		return err
	}
	return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, op)
}

// GetBalance returns the lamport balance of account.
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, upstream(err, "getBalance "+account.String())
	}
	return out.Value, nil
}

// GetAccountState returns the account's metadata at the requested
// commitment, or the client default when commitment is empty.
func (c *Client) GetAccountState(ctx context.Context, account solana.PublicKey, commitment string) (ledger.AccountState, error) {
	level := c.commitment
	if commitment != "" {
		level = commitmentType(ledger.NormalizeCommitment(commitment, string(c.commitment)))
	}
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{Commitment: level})
	if stdErrors.Is(err, rpc.ErrNotFound) {
		return ledger.AccountState{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.AccountState{}, upstream(err, "getAccountInfo "+account.String())
	}
	if out == nil || out.Value == nil {
		return ledger.AccountState{}, ledger.ErrAccountNotFound
	}

	state := ledger.AccountState{
		Lamports:   out.Value.Lamports,
		Owner:      out.Value.Owner.String(),
		Executable: out.Value.Executable,
		RentEpoch:  "0",
	}
	if out.Value.RentEpoch != nil {
		state.RentEpoch = out.Value.RentEpoch.String()
	}
	if out.Value.Data != nil {
		state.DataLength = len(out.Value.Data.GetBinary())
	}
	return state, nil
}

// GetTokenBalance returns the raw token amount held in owner's associated
// token account for mint. A missing token account counts as zero.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (ledger.TokenBalance, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return ledger.TokenBalance{}, xerrors.Wrap(fleet.CodeInvalidAddress, err, "derive token account")
	}
	out, err := c.rpc.GetTokenAccountBalance(ctx, ata, c.commitment)
	if err != nil {
		if isMissingAccount(err) {
			return ledger.TokenBalance{}, nil
		}
		return ledger.TokenBalance{}, upstream(err, "getTokenAccountBalance "+ata.String())
	}
	if out == nil || out.Value == nil {
		return ledger.TokenBalance{}, nil
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return ledger.TokenBalance{}, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "parse token amount "+out.Value.Amount)
	}
	return ledger.TokenBalance{Amount: amount, Decimals: out.Value.Decimals}, nil
}

func isMissingAccount(err error) bool {
	if stdErrors.Is(err, rpc.ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") || strings.Contains(msg, "invalid param: could not find")
}

// GetRecentAnchor fetches the latest blockhash.
func (c *Client) GetRecentAnchor(ctx context.Context) (ledger.Anchor, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return ledger.Anchor{}, upstream(err, "getLatestBlockhash")
	}
	if out == nil || out.Value == nil {
		return ledger.Anchor{}, xerrors.New(xerrors.CodeUpstreamFailure, "getLatestBlockhash returned no value")
	}
	return ledger.Anchor{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// Submit sends a signed transaction and returns its signature.
func (c *Client) Submit(ctx context.Context, tx *solana.Transaction) (string, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		if xerrors.Interrupted(err) {
			return "", err
		}
		return "", xerrors.Wrap(fleet.CodeSubmissionFailed, err, "sendTransaction")
	}
	return sig.String(), nil
}

// AwaitFinalization polls the signature status until the transaction reaches
// the client's commitment, fails, outlives its anchor or the confirmation
// timeout elapses. Cancelling ctx stops the wait without changing what the
// ledger does with the transaction.
func (c *Client) AwaitFinalization(ctx context.Context, reference string, anchor ledger.Anchor) error {
	sig, err := solana.SignatureFromBase58(reference)
	if err != nil {
		return xerrors.Wrap(fleet.CodeSubmissionFailed, err, "invalid transaction reference")
	}

	deadline := time.Now().Add(c.confirmTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		done, err := c.checkStatus(ctx, sig)
		if err != nil || done {
			return err
		}

		height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
		if err == nil && anchor.LastValidBlockHeight > 0 && height > anchor.LastValidBlockHeight {
			// The status may have landed between the two calls.
			if done, err := c.checkStatus(ctx, sig); err != nil || done {
				return err
			}
			return xerrors.Newf(fleet.CodeAnchorExpired,
				"block height %d passed anchor validity %d", height, anchor.LastValidBlockHeight)
		}

		if !time.Now().Before(deadline) {
			return xerrors.Newf(fleet.CodeConfirmationTimeout,
				"%s not %s after %s", reference, c.commitment, c.confirmTimeout)
		}

		select {
		case <-ctx.Done():
			return xerrors.Wrap(fleet.CodeConfirmationTimeout, ctx.Err(),
				fmt.Sprintf("stopped waiting for %s", reference))
		case <-ticker.C:
		}
	}
}

// checkStatus reports whether sig reached the target commitment. A ledger
// error on the transaction is returned as SUBMISSION_FAILED. Transient RPC
// errors are swallowed so polling continues.
func (c *Client) checkStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil || out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil
	}
	status := out.Value[0]
	if status.Err != nil {
		return false, xerrors.Newf(fleet.CodeSubmissionFailed, "transaction %s failed: %v", sig, status.Err)
	}
	return reached(status.ConfirmationStatus, c.commitment), nil
}

func reached(status rpc.ConfirmationStatusType, target rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case string(rpc.ConfirmationStatusProcessed):
			return 1
		case string(rpc.ConfirmationStatusConfirmed):
			return 2
		case string(rpc.ConfirmationStatusFinalized):
			return 3
		default:
			return 0
		}
	}
	return rank(string(status)) > 0 && rank(string(status)) >= rank(string(target))
}
