// Package batch runs one ledger operation per leg and reports a result for
// every leg, in input order, whatever happens to its siblings.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/ledger"
	"WalletFleet/internal/observability/metrics"
	"WalletFleet/pkg/logger"
)

// Leg pairs a source account with the address it pays or trades against.
type Leg struct {
	Source      fleet.Account
	Destination solana.PublicKey
}

// Request describes one batch.
type Request struct {
	Kind       string
	Legs       []Leg
	Policy     Policy
	FeeReserve uint64
	Builder    Builder
	// Balance is required by PercentOfBalance. With the other policies it
	// turns on an upfront balance check.
	Balance BalanceSource
}

// Executor runs batches against a ledger.
type Executor struct {
	ledger      ledger.Client
	concurrency int
	log         *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency lets up to n sources progress at once. Legs that share a
// source always run in input order. n <= 1 keeps the batch sequential.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 1 {
			e.concurrency = n
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExecutor returns a sequential executor unless configured otherwise.
func NewExecutor(client ledger.Client, opts ...Option) *Executor {
	e := &Executor{ledger: client, concurrency: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.log == nil {
		e.log = logger.Named("batch")
	}
	return e
}

// Execute validates the request, then processes every leg. A returned error
// means nothing was submitted; otherwise per-leg failures are in the summary.
func (e *Executor) Execute(ctx context.Context, req Request) (fleet.Summary, error) {
	if err := e.validate(req); err != nil {
		return fleet.Summary{}, err
	}

	results := make([]fleet.OperationResult, len(req.Legs))
	if e.concurrency <= 1 {
		for i := range req.Legs {
			results[i] = e.runLeg(ctx, req, i)
		}
	} else {
		e.runGrouped(ctx, req, results)
	}

	summary := fleet.NewSummary(req.Kind, results)
	metrics.ObserveBatch(req.Kind, summary.ZeroSuccess())
	e.log.Info("batch finished",
		slog.String("kind", req.Kind),
		slog.String("policy", req.Policy.String()),
		slog.Int("legs", len(results)),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("cancelled", summary.Cancelled),
		slog.Uint64("total_resolved", summary.TotalResolved),
	)
	return summary, nil
}

func (e *Executor) validate(req Request) error {
	if e.ledger == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "executor has no ledger client")
	}
	if len(req.Legs) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "batch has no legs")
	}
	if req.Builder == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "batch has no operation builder")
	}
	if err := req.Policy.validate(len(req.Legs)); err != nil {
		return err
	}
	if req.Policy.kind == policyPercent && req.Balance == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "percentage policy needs a balance source")
	}
	for i, leg := range req.Legs {
		if leg.Destination.IsZero() {
			return xerrors.Newf(fleet.CodeInvalidAddress, "leg %d has no destination", i)
		}
	}
	return nil
}

// runGrouped fans out by source address. Results land at their input index
// so ordering needs no extra pass.
func (e *Executor) runGrouped(ctx context.Context, req Request, results []fleet.OperationResult) {
	groups := make(map[solana.PublicKey][]int)
	order := make([]solana.PublicKey, 0)
	for i, leg := range req.Legs {
		key := leg.Source.PublicKey
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, key := range order {
		indexes := groups[key]
		g.Go(func() error {
			for _, i := range indexes {
				results[i] = e.runLeg(ctx, req, i)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Executor) runLeg(ctx context.Context, req Request, index int) fleet.OperationResult {
	leg := req.Legs[index]
	result := fleet.OperationResult{
		Index:       index,
		Source:      leg.Source.Address,
		Destination: leg.Destination.String(),
	}
	started := time.Now()

	err := e.process(ctx, req, index, &result)
	if err != nil {
		result.Success = false
		result.ErrorKind = fleet.KindOf(err)
		result.Error = err.Error()
	} else {
		result.Success = true
	}

	outcome := "success"
	if !result.Success {
		outcome = string(result.ErrorKind)
	}
	metrics.ObserveOperation(req.Kind, outcome, time.Since(started))

	attrs := []any{
		slog.String("kind", req.Kind),
		slog.Int("index", index),
		slog.String("source", result.Source),
		slog.String("destination", result.Destination),
		slog.Uint64("amount", result.Amount),
		slog.String("reference", result.Reference),
	}
	if result.Success {
		e.log.Info("operation finalized", attrs...)
	} else {
		e.log.Warn("operation failed", append(attrs,
			slog.String("error_kind", string(result.ErrorKind)),
			slog.String("error", result.Error))...)
	}
	return result
}

// process runs the pipeline for one leg and fills in amount and reference
// as they become known.
func (e *Executor) process(ctx context.Context, req Request, index int, result *fleet.OperationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	leg := req.Legs[index]
	if !leg.Source.CanSign() {
		if leg.Source.LoadErr != nil {
			return leg.Source.LoadErr
		}
		return xerrors.New(fleet.CodeInvalidKeyEncoding, "account has no signing key")
	}

	feeReserve := req.FeeReserve
	decimals := uint8(9)
	var held *Holding
	if req.Balance != nil {
		if !req.Balance.ReservesFee() {
			feeReserve = 0
		}
		holding, err := req.Balance.Balance(ctx, e.ledger, leg.Source.PublicKey)
		if err != nil {
			return err
		}
		held = &holding
		decimals = holding.Decimals
	}

	amount, err := req.Policy.resolve(index, held, feeReserve)
	result.Amount = amount
	if err != nil {
		return err
	}

	anchor, err := e.ledger.GetRecentAnchor(ctx)
	if err != nil {
		return err
	}
	tx, err := req.Builder.Build(ctx, Operation{
		Index:    index,
		Leg:      leg,
		Amount:   amount,
		Decimals: decimals,
		Anchor:   anchor,
	})
	if err != nil {
		return err
	}

	reference, err := e.ledger.Submit(ctx, tx)
	if err != nil {
		return err
	}
	result.Reference = reference
	logger.Audit().Info("ledger submission",
		slog.String("kind", req.Kind),
		slog.String("source", result.Source),
		slog.String("destination", result.Destination),
		slog.Uint64("amount", amount),
		slog.String("reference", reference),
		slog.Uint64("last_valid_block_height", anchor.LastValidBlockHeight),
	)

	return e.ledger.AwaitFinalization(ctx, reference, anchor)
}
