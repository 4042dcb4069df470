package swap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	defaultJupiterBaseURL = "https://lite-api.jup.ag/swap/v1"
	defaultTimeout        = 30 * time.Second
)

// JupiterConfig describes how to reach the Jupiter swap API.
type JupiterConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Jupiter implements Quoter over the Jupiter quote and swap endpoints.
type Jupiter struct {
	baseURL    string
	httpClient *http.Client
}

var _ Quoter = (*Jupiter)(nil)

// NewJupiter returns a Jupiter client.
func NewJupiter(cfg JupiterConfig) *Jupiter {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultJupiterBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Jupiter{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// GetQuote fetches the best route for req.
func (j *Jupiter) GetQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if err := req.validate(); err != nil {
		return Quote{}, err
	}
	slippage := slippageOrDefault(req.SlippageBps)

	query := url.Values{}
	query.Set("inputMint", req.InputMint.String())
	query.Set("outputMint", req.OutputMint.String())
	query.Set("amount", strconv.FormatUint(req.Amount, 10))
	query.Set("slippageBps", strconv.Itoa(slippage))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"/quote?"+query.Encode(), nil)
	if err != nil {
		return Quote{}, unavailable("jupiter", err, "build quote request")
	}
	raw, err := j.do(httpReq)
	if err != nil {
		return Quote{}, err
	}

	var decoded struct {
		InAmount  string `json:"inAmount"`
		OutAmount string `json:"outAmount"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Quote{}, unavailable("jupiter", err, "decode quote")
	}
	outAmount, err := strconv.ParseUint(decoded.OutAmount, 10, 64)
	if err != nil {
		return Quote{}, unavailable("jupiter", err, "quote has no output amount")
	}
	inAmount, err := strconv.ParseUint(decoded.InAmount, 10, 64)
	if err != nil {
		inAmount = req.Amount
	}

	return Quote{
		Provider:      "jupiter",
		InputMint:     req.InputMint,
		OutputMint:    req.OutputMint,
		InAmount:      inAmount,
		OutAmount:     outAmount,
		InputDecimals: req.InputDecimals,
		SlippageBps:   slippage,
		Raw:           raw,
	}, nil
}

// BuildSwap posts the quote back to Jupiter and returns the unsigned
// transaction it produced.
func (j *Jupiter) BuildSwap(ctx context.Context, quote Quote, payer solana.PublicKey) ([]byte, error) {
	if len(quote.Raw) == 0 {
		return nil, unavailable("jupiter", nil, "quote carries no route")
	}
	payload, err := json.Marshal(map[string]any{
		"userPublicKey":           payer.String(),
		"quoteResponse":           quote.Raw,
		"wrapAndUnwrapSol":        true,
		"dynamicComputeUnitLimit": true,
	})
	if err != nil {
		return nil, unavailable("jupiter", err, "encode swap request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, unavailable("jupiter", err, "build swap request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	raw, err := j.do(httpReq)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, unavailable("jupiter", err, "decode swap response")
	}
	if decoded.SwapTransaction == "" {
		return nil, unavailable("jupiter", nil, "swap response has no transaction")
	}
	tx, err := base64.StdEncoding.DecodeString(decoded.SwapTransaction)
	if err != nil {
		return nil, unavailable("jupiter", err, "decode swap transaction")
	}
	return tx, nil
}

func (j *Jupiter) do(req *http.Request) ([]byte, error) {
	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, unavailable("jupiter", err, "request %s", req.URL.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, unavailable("jupiter", nil, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("jupiter", err, "read response")
	}
	return raw, nil
}
