package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"WalletFleet/internal/auth"
	"WalletFleet/internal/distribution"
	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/job"
	"WalletFleet/pkg/logger"
)

type fakeFleet struct {
	fundReq  distribution.FundRequest
	sweepReq distribution.SweepRequest
	err      error
}

func (f *fakeFleet) CreateWallets(_ context.Context, count int) ([]string, error) {
	if count <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "count must be 1..1000")
	}
	wallets := make([]string, count)
	for i := range wallets {
		wallets[i] = "wallet"
	}
	return wallets, nil
}

func (f *fakeFleet) AccountInfo(_ context.Context, commitment string) ([]distribution.AccountInfo, error) {
	return []distribution.AccountInfo{{Address: "a", Commitment: commitment, Lamports: 7}}, nil
}

func (f *fakeFleet) Fund(_ context.Context, req distribution.FundRequest) (fleet.Summary, error) {
	f.fundReq = req
	if f.err != nil {
		return fleet.Summary{}, f.err
	}
	return fleet.NewSummary("fund", []fleet.OperationResult{{Amount: 10, Success: true}, {ErrorKind: fleet.CodeSubmissionFailed}}), nil
}

func (f *fakeFleet) Sweep(_ context.Context, req distribution.SweepRequest) (fleet.Summary, error) {
	f.sweepReq = req
	return fleet.NewSummary("sweep", nil), nil
}

func (f *fakeFleet) BuyAll(context.Context, distribution.BuyRequest) (fleet.Summary, error) {
	return fleet.Summary{}, xerrors.New(fleet.CodeQuoteUnavailable, "no route")
}

func (f *fakeFleet) SellAll(context.Context, distribution.SellRequest) (fleet.Summary, error) {
	return fleet.NewSummary("sell", nil), nil
}

func newTestServer(f Fleet, opts ...Option) http.Handler {
	opts = append(opts, WithLogger(logger.Discard()))
	return NewServer(":0", f, opts...).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWalletEndpoints(t *testing.T) {
	f := &fakeFleet{}
	h := newTestServer(f)

	rec := do(t, h, http.MethodPost, "/wallets/create-wallets", `{"count":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create-wallets status %d: %s", rec.Code, rec.Body)
	}
	var created createWalletsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created.Count != 3 {
		t.Fatalf("unexpected create response: %s (%v)", rec.Body, err)
	}

	rec = do(t, h, http.MethodPost, "/wallets/create-wallets", `{"count":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad count, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/wallets/info", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"lamports":7`) {
		t.Fatalf("info with empty body failed: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/wallets/fund-wallets", `{"mode":"bounded","total":100,"min":1,"max":60}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("fund status %d: %s", rec.Code, rec.Body)
	}
	var fund map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &fund); err != nil {
		t.Fatalf("decode fund response: %v", err)
	}
	if fund["success"] != true || fund["succeeded"] != float64(1) || fund["failed"] != float64(1) {
		t.Fatalf("unexpected fund response: %v", fund)
	}
	if f.fundReq.Mode != distribution.ModeBounded || f.fundReq.Max != 60 {
		t.Fatalf("fund request not decoded: %+v", f.fundReq)
	}

	rec = do(t, h, http.MethodPost, "/wallets/fund-wallets", `{"mode":"flat","privateKey":"secret"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown fields must be rejected, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/wallets/withdraw-to-wallet", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing destination must be rejected, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/wallets/withdraw-to-wallet", `{"destination":"dest","percentage":"25"}`)
	if rec.Code != http.StatusOK || f.sweepReq.Percent.String() != "25" {
		t.Fatalf("sweep failed: %d %+v", rec.Code, f.sweepReq)
	}

	rec = do(t, h, http.MethodGet, "/wallets/info", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestTradeEndpointsMapErrors(t *testing.T) {
	h := newTestServer(&fakeFleet{})

	rec := do(t, h, http.MethodPost, "/trade/buy-token-all-wallets", `{"mint":"m","amount":"0.1"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != fleet.CodeQuoteUnavailable {
		t.Fatalf("unexpected error body: %s", rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/trade/sell-token-all-wallets", `{"mint":"m","percentage":50}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("sell status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("empty batch must not report success: %s", rec.Body)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := map[xerrors.Code]int{
		fleet.CodeInsufficientBalance: http.StatusUnprocessableEntity,
		fleet.CodeInfeasiblePartition: http.StatusBadRequest,
		xerrors.CodeNotFound:          http.StatusNotFound,
		job.CodeJobNotFound:           http.StatusNotFound,
		fleet.CodeConfirmationTimeout: http.StatusGatewayTimeout,
		xerrors.CodeUnknown:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := statusOf(code); got != want {
			t.Fatalf("%s: expected %d, got %d", code, want, got)
		}
	}
}

func TestJobEndpoints(t *testing.T) {
	store := job.NewMemoryStore()
	jobs := job.NewService(store, job.NewMemoryQueue(8), 1)
	h := newTestServer(&fakeFleet{}, WithJobs(jobs))

	rec := do(t, h, http.MethodPost, "/api/v1/jobs", `{"id":"j-1","kind":"sweep","params":{"destination":"d"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/jobs", `{"kind":"mint"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad kind, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs/j-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status %d", rec.Code)
	}
	var got job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got.Kind != job.KindSweep || got.Status != job.StatusPending {
		t.Fatalf("unexpected job: %s", rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs?status=pending&kind=sweep,fund&limit=5&order=asc", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"j-1"`) {
		t.Fatalf("list failed: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs/stats", "")
	var stats job.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %s", rec.Body)
	}
}

func TestAuthGuardsEverythingButHealth(t *testing.T) {
	svc, err := auth.NewService(auth.Config{Mode: auth.ModeJWT, Secret: "k"})
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	reader, _, err := svc.Issue("viewer", auth.PermissionRead)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	h := newTestServer(&fakeFleet{}, WithAuth(svc))

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz must be public, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/wallets/info", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/wallets/info", "", "Authorization", "Bearer "+reader); rec.Code != http.StatusForbidden {
		t.Fatalf("read-only token must not POST, got %d", rec.Code)
	}
}
