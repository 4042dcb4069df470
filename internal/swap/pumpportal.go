package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
)

const (
	defaultPumpPortalBaseURL = "https://pumpportal.fun/api"
	defaultPriorityFee       = "0.00001"
	defaultPool              = "pump"
)

// PumpPortalConfig describes how to reach the PumpPortal local trade API.
type PumpPortalConfig struct {
	BaseURL string
	Timeout time.Duration
	// PriorityFee is in whole SOL.
	PriorityFee string
	Pool        string
}

// PumpPortal implements Quoter over the trade-local endpoint. It only routes
// between SOL and a single token and prices nothing up front, so GetQuote
// just validates and records the trade.
type PumpPortal struct {
	baseURL     string
	priorityFee decimal.Decimal
	pool        string
	httpClient  *http.Client
}

var _ Quoter = (*PumpPortal)(nil)

// NewPumpPortal returns a PumpPortal client.
func NewPumpPortal(cfg PumpPortalConfig) (*PumpPortal, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPumpPortalBaseURL
	}
	fee := strings.TrimSpace(cfg.PriorityFee)
	if fee == "" {
		fee = defaultPriorityFee
	}
	priorityFee, err := decimal.NewFromString(fee)
	if err != nil || priorityFee.IsNegative() {
		return nil, xerrors.Newf(xerrors.CodeInitializationFailure, "invalid priority fee %q", cfg.PriorityFee)
	}
	pool := strings.TrimSpace(cfg.Pool)
	if pool == "" {
		pool = defaultPool
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PumpPortal{
		baseURL:     baseURL,
		priorityFee: priorityFee,
		pool:        pool,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// GetQuote checks that the pair is SOL against a token.
func (p *PumpPortal) GetQuote(_ context.Context, req QuoteRequest) (Quote, error) {
	if err := req.validate(); err != nil {
		return Quote{}, err
	}
	if !req.InputMint.Equals(NativeMint) && !req.OutputMint.Equals(NativeMint) {
		return Quote{}, unavailable("pumpportal", nil, "only SOL pairs are supported")
	}
	return Quote{
		Provider:      "pumpportal",
		InputMint:     req.InputMint,
		OutputMint:    req.OutputMint,
		InAmount:      req.Amount,
		InputDecimals: req.InputDecimals,
		SlippageBps:   slippageOrDefault(req.SlippageBps),
	}, nil
}

// BuildSwap requests a serialized trade transaction for payer.
func (p *PumpPortal) BuildSwap(ctx context.Context, quote Quote, payer solana.PublicKey) ([]byte, error) {
	action, mint, amount := "buy", quote.OutputMint, fleet.ToUnits(quote.InAmount)
	denominatedInSol := "true"
	if quote.OutputMint.Equals(NativeMint) {
		action, mint = "sell", quote.InputMint
		amount = fleet.DecimalFromUint64(quote.InAmount).Shift(-int32(quote.InputDecimals))
		denominatedInSol = "false"
	}

	payload, err := json.Marshal(map[string]any{
		"publicKey":        payer.String(),
		"action":           action,
		"mint":             mint.String(),
		"amount":           json.Number(amount.String()),
		"denominatedInSol": denominatedInSol,
		"slippage":         json.Number(decimal.NewFromInt(int64(quote.SlippageBps)).Shift(-2).String()),
		"priorityFee":      json.Number(p.priorityFee.String()),
		"pool":             p.pool,
	})
	if err != nil {
		return nil, unavailable("pumpportal", err, "encode trade request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/trade-local", bytes.NewReader(payload))
	if err != nil {
		return nil, unavailable("pumpportal", err, "build trade request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, unavailable("pumpportal", err, "request trade-local")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, unavailable("pumpportal", err, "read trade response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, unavailable("pumpportal", nil, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(body) == 0 {
		return nil, unavailable("pumpportal", nil, "empty trade transaction")
	}
	return body, nil
}
