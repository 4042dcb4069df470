package swap

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sony/gobreaker"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/pkg/logger"
)

// BreakerConfig controls when a provider is taken out of rotation.
type BreakerConfig struct {
	// ConsecutiveFailures opens the circuit; zero disables the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before a probe.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// Breaker stops calling a provider after repeated outages. Only
// QUOTE_UNAVAILABLE counts as a failure: bad requests and cancellation say
// nothing about the provider's health.
type Breaker struct {
	next Quoter
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next. With ConsecutiveFailures zero it returns next
// unchanged.
func NewBreaker(name string, next Quoter, cfg BreakerConfig, log *slog.Logger) Quoter {
	if cfg.ConsecutiveFailures == 0 || next == nil {
		return next
	}
	if log == nil {
		log = logger.Named("swap")
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}
	threshold := cfg.ConsecutiveFailures
	b := &Breaker{next: next, name: name}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "swap-" + name,
		MaxRequests: halfOpen,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || xerrors.CodeOf(err) != fleet.CodeQuoteUnavailable
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn("swap provider circuit changed",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return b
}

// State reports the circuit state: closed, half-open or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// GetQuote implements Quoter.
func (b *Breaker) GetQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.GetQuote(ctx, req)
	})
	if err != nil {
		return Quote{}, b.translate(err)
	}
	return out.(Quote), nil
}

// BuildSwap implements Quoter.
func (b *Breaker) BuildSwap(ctx context.Context, quote Quote, payer solana.PublicKey) ([]byte, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.BuildSwap(ctx, quote, payer)
	})
	if err != nil {
		return nil, b.translate(err)
	}
	return out.([]byte), nil
}

func (b *Breaker) translate(err error) error {
	if stdErrors.Is(err, gobreaker.ErrOpenState) || stdErrors.Is(err, gobreaker.ErrTooManyRequests) {
		return unavailable(b.name, err, "circuit %s", b.cb.State())
	}
	return err
}
