package swap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
)

var tokenMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

func TestJupiterQuoteAndSwap(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	unsigned := []byte{1, 2, 3, 4}
	var swapBody map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			q := r.URL.Query()
			assert.Equal(t, NativeMint.String(), q.Get("inputMint"))
			assert.Equal(t, tokenMint.String(), q.Get("outputMint"))
			assert.Equal(t, "250000000", q.Get("amount"))
			assert.Equal(t, "300", q.Get("slippageBps"))
			_, _ = w.Write([]byte(`{"inputMint":"` + NativeMint.String() + `","inAmount":"250000000","outAmount":"4200000","routePlan":[]}`))
		case "/swap":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&swapBody))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"swapTransaction":      base64.StdEncoding.EncodeToString(unsigned),
				"lastValidBlockHeight": 100,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	jup := NewJupiter(JupiterConfig{BaseURL: srv.URL + "/"})
	quote, err := jup.GetQuote(context.Background(), QuoteRequest{
		InputMint:  NativeMint,
		OutputMint: tokenMint,
		Amount:     250_000_000,
	})
	require.NoError(t, err)
	assert.Equal(t, "jupiter", quote.Provider)
	assert.Equal(t, uint64(4_200_000), quote.OutAmount)
	assert.Equal(t, DefaultSlippageBps, quote.SlippageBps)

	raw, err := jup.BuildSwap(context.Background(), quote, payer)
	require.NoError(t, err)
	assert.Equal(t, unsigned, raw)

	assert.JSONEq(t, `"`+payer.String()+`"`, string(swapBody["userPublicKey"]))
	assert.JSONEq(t, `true`, string(swapBody["wrapAndUnwrapSol"]))
	assert.JSONEq(t, string(quote.Raw), string(swapBody["quoteResponse"]))
}

func TestJupiterFailuresAreQuoteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/quote" {
			_, _ = w.Write([]byte(`{"error":"no route"}`))
			return
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	jup := NewJupiter(JupiterConfig{BaseURL: srv.URL})
	_, err := jup.GetQuote(context.Background(), QuoteRequest{InputMint: NativeMint, OutputMint: tokenMint, Amount: 1})
	assert.Equal(t, fleet.CodeQuoteUnavailable, xerrors.CodeOf(err))

	_, err = jup.BuildSwap(context.Background(), Quote{Raw: json.RawMessage(`{}`)}, solana.NewWallet().PublicKey())
	assert.Equal(t, fleet.CodeQuoteUnavailable, xerrors.CodeOf(err))

	_, err = jup.BuildSwap(context.Background(), Quote{}, solana.NewWallet().PublicKey())
	assert.Equal(t, fleet.CodeQuoteUnavailable, xerrors.CodeOf(err))
}

func TestQuoteRequestValidation(t *testing.T) {
	jup := NewJupiter(JupiterConfig{})
	_, err := jup.GetQuote(context.Background(), QuoteRequest{InputMint: NativeMint, OutputMint: tokenMint})
	assert.Equal(t, fleet.CodeInsufficientBalance, xerrors.CodeOf(err))

	_, err = jup.GetQuote(context.Background(), QuoteRequest{InputMint: NativeMint, OutputMint: NativeMint, Amount: 1})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = jup.GetQuote(context.Background(), QuoteRequest{InputMint: NativeMint, Amount: 1})
	assert.Equal(t, fleet.CodeInvalidAddress, xerrors.CodeOf(err))
}

func TestPumpPortalBuyAndSell(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	var bodies []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-local", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		_, _ = w.Write([]byte{9, 8, 7})
	}))
	defer srv.Close()

	pump, err := NewPumpPortal(PumpPortalConfig{BaseURL: srv.URL, PriorityFee: "0.0005"})
	require.NoError(t, err)

	buy, err := pump.GetQuote(context.Background(), QuoteRequest{
		InputMint: NativeMint, OutputMint: tokenMint, Amount: 1_500_000_000, SlippageBps: 1000,
	})
	require.NoError(t, err)
	raw, err := pump.BuildSwap(context.Background(), buy, payer)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, raw)

	sell, err := pump.GetQuote(context.Background(), QuoteRequest{
		InputMint: tokenMint, OutputMint: NativeMint, Amount: 2_500_000, InputDecimals: 6,
	})
	require.NoError(t, err)
	_, err = pump.BuildSwap(context.Background(), sell, payer)
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.Equal(t, "buy", bodies[0]["action"])
	assert.Equal(t, tokenMint.String(), bodies[0]["mint"])
	assert.Equal(t, 1.5, bodies[0]["amount"])
	assert.Equal(t, "true", bodies[0]["denominatedInSol"])
	assert.Equal(t, 10.0, bodies[0]["slippage"])
	assert.Equal(t, 0.0005, bodies[0]["priorityFee"])
	assert.Equal(t, "pump", bodies[0]["pool"])
	assert.Equal(t, payer.String(), bodies[0]["publicKey"])

	assert.Equal(t, "sell", bodies[1]["action"])
	assert.Equal(t, 2.5, bodies[1]["amount"])
	assert.Equal(t, "false", bodies[1]["denominatedInSol"])
	assert.Equal(t, 3.0, bodies[1]["slippage"])
}

func TestPumpPortalErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad mint", http.StatusBadRequest)
	}))
	defer srv.Close()

	pump, err := NewPumpPortal(PumpPortalConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	other := solana.NewWallet().PublicKey()
	_, err = pump.GetQuote(context.Background(), QuoteRequest{InputMint: tokenMint, OutputMint: other, Amount: 1})
	assert.Equal(t, fleet.CodeQuoteUnavailable, xerrors.CodeOf(err))

	quote, err := pump.GetQuote(context.Background(), QuoteRequest{InputMint: NativeMint, OutputMint: tokenMint, Amount: 1})
	require.NoError(t, err)
	_, err = pump.BuildSwap(context.Background(), quote, solana.NewWallet().PublicKey())
	assert.Equal(t, fleet.CodeQuoteUnavailable, xerrors.CodeOf(err))

	_, err = NewPumpPortal(PumpPortalConfig{PriorityFee: "abc"})
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}
