package solanarpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/ledger"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// rpcServer answers JSON-RPC calls from canned handlers keyed by method.
type rpcServer struct {
	mu       sync.Mutex
	handlers map[string]func(call int) string
	calls    map[string]int
}

func newRPCServer(t *testing.T, handlers map[string]func(call int) string) (*rpcServer, *httptest.Server) {
	t.Helper()
	srv := &rpcServer{handlers: handlers, calls: map[string]int{}}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		srv.mu.Lock()
		call := srv.calls[req.Method]
		srv.calls[req.Method] = call + 1
		handler, ok := srv.handlers[req.Method]
		srv.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + handler(call) + `}`))
	}))
	t.Cleanup(ts.Close)
	return srv, ts
}

func (s *rpcServer) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func constant(result string) func(int) string {
	return func(int) string { return result }
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Name:           "test",
		RPCURL:         url,
		Commitment:     "confirmed",
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

const ctxSlot = `{"slot":10}`

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}

func TestGetBalanceAndAnchor(t *testing.T) {
	hash := solana.Hash{9, 9, 9}
	_, ts := newRPCServer(t, map[string]func(int) string{
		"getBalance":         constant(`{"context":` + ctxSlot + `,"value":1500000000}`),
		"getLatestBlockhash": constant(`{"context":` + ctxSlot + `,"value":{"blockhash":"` + hash.String() + `","lastValidBlockHeight":321}}`),
	})
	client := newTestClient(t, ts.URL)

	balance, err := client.GetBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), balance)

	anchor, err := client.GetRecentAnchor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash, anchor.Blockhash)
	assert.Equal(t, uint64(321), anchor.LastValidBlockHeight)
}

func TestGetAccountState(t *testing.T) {
	owner := solana.SystemProgramID
	_, ts := newRPCServer(t, map[string]func(int) string{
		"getAccountInfo": func(call int) string {
			if call == 0 {
				return `{"context":` + ctxSlot + `,"value":{"lamports":42,"owner":"` + owner.String() +
					`","data":["AQID","base64"],"executable":false,"rentEpoch":18446744073709551615,"space":3}}`
			}
			return `{"context":` + ctxSlot + `,"value":null}`
		},
	})
	client := newTestClient(t, ts.URL)

	state, err := client.GetAccountState(context.Background(), solana.NewWallet().PublicKey(), "finalized")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), state.Lamports)
	assert.Equal(t, owner.String(), state.Owner)
	assert.Equal(t, 3, state.DataLength)
	assert.Equal(t, "18446744073709551615", state.RentEpoch)

	_, err = client.GetAccountState(context.Background(), solana.NewWallet().PublicKey(), "")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestGetTokenBalance(t *testing.T) {
	_, ts := newRPCServer(t, map[string]func(int) string{
		"getTokenAccountBalance": constant(`{"context":` + ctxSlot +
			`,"value":{"amount":"987654321","decimals":6,"uiAmount":987.654321,"uiAmountString":"987.654321"}}`),
	})
	client := newTestClient(t, ts.URL)

	balance, err := client.GetTokenBalance(context.Background(), solana.NewWallet().PublicKey(), solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"))
	require.NoError(t, err)
	assert.Equal(t, uint64(987654321), balance.Amount)
	assert.Equal(t, uint8(6), balance.Decimals)
}

func TestAwaitFinalizationConfirmed(t *testing.T) {
	srv, ts := newRPCServer(t, map[string]func(int) string{
		"getSignatureStatuses": func(call int) string {
			if call < 2 {
				return `{"context":` + ctxSlot + `,"value":[null]}`
			}
			return `{"context":` + ctxSlot + `,"value":[{"slot":11,"confirmations":1,"err":null,"confirmationStatus":"confirmed"}]}`
		},
		"getBlockHeight": constant(`50`),
	})
	client := newTestClient(t, ts.URL)

	ref := solana.Signature{1}.String()
	err := client.AwaitFinalization(context.Background(), ref, ledger.Anchor{LastValidBlockHeight: 100})
	require.NoError(t, err)
	assert.Equal(t, 3, srv.count("getSignatureStatuses"))
}

func TestAwaitFinalizationOutcomes(t *testing.T) {
	pending := constant(`{"context":` + ctxSlot + `,"value":[null]}`)
	cases := []struct {
		name     string
		statuses func(int) string
		height   string
		want     xerrors.Code
	}{
		{
			name:     "ledger rejected",
			statuses: constant(`{"context":` + ctxSlot + `,"value":[{"slot":11,"confirmations":null,"err":{"InstructionError":[0,{"Custom":1}]},"confirmationStatus":"processed"}]}`),
			height:   `50`,
			want:     fleet.CodeSubmissionFailed,
		},
		{name: "anchor expired", statuses: pending, height: `101`, want: fleet.CodeAnchorExpired},
		{name: "timeout", statuses: pending, height: `50`, want: fleet.CodeConfirmationTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ts := newRPCServer(t, map[string]func(int) string{
				"getSignatureStatuses": tc.statuses,
				"getBlockHeight":       constant(tc.height),
			})
			client := newTestClient(t, ts.URL)
			err := client.AwaitFinalization(context.Background(), solana.Signature{2}.String(), ledger.Anchor{LastValidBlockHeight: 100})
			require.Error(t, err)
			assert.Equal(t, tc.want, xerrors.CodeOf(err))
		})
	}
}

func TestAwaitFinalizationStopsOnCancel(t *testing.T) {
	_, ts := newRPCServer(t, map[string]func(int) string{
		"getSignatureStatuses": constant(`{"context":` + ctxSlot + `,"value":[null]}`),
		"getBlockHeight":       constant(`1`),
	})
	client, err := NewClient(Config{RPCURL: ts.URL, PollInterval: time.Hour, ConfirmTimeout: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err = client.AwaitFinalization(ctx, solana.Signature{3}.String(), ledger.Anchor{LastValidBlockHeight: 100})
	// The transaction is already on the wire, so the leg reports a timeout
	// and keeps its reference; the caller's cancellation stays in the chain.
	assert.Equal(t, fleet.CodeConfirmationTimeout, xerrors.CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmitWrapsRPCErrors(t *testing.T) {
	_, ts := newRPCServer(t, map[string]func(int) string{})
	client := newTestClient(t, ts.URL)

	payer := solana.NewWallet().PrivateKey
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, payer.PublicKey(), solana.NewWallet().PublicKey()).Build()},
		solana.Hash{1},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	require.NoError(t, ledger.Sign(tx, payer))

	_, err = client.Submit(context.Background(), tx)
	assert.Equal(t, fleet.CodeSubmissionFailed, xerrors.CodeOf(err))
}
