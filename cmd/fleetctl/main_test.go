package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pterm/pterm"

	"WalletFleet/internal/auth"
)

func TestMain(m *testing.M) {
	pterm.DisableOutput()
	os.Exit(m.Run())
}

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func fakeDaemon(t *testing.T, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		if r.Body != nil && r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		requests = append(requests, rec)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSweepCallsEndpoint(t *testing.T) {
	srv, requests := fakeDaemon(t, `{"success":true,"kind":"sweep","succeeded":1,"results":[{"index":0,"source":"a","destination":"d","amount":5,"success":true,"reference":"sig"}]}`)

	_, err := execute(t, "--server", srv.URL, "--token", "tok", "--yes", "wallets", "sweep", "--destination", "dest", "--percent", "40")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	got := (*requests)[0]
	if got.Path != "/wallets/withdraw-to-wallet" || got.Auth != "Bearer tok" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Body["destination"] != "dest" || got.Body["percentage"] != "40" {
		t.Fatalf("unexpected body: %v", got.Body)
	}
}

func TestFundAsyncSubmitsJob(t *testing.T) {
	srv, requests := fakeDaemon(t, `{"id":"job-1","kind":"fund","status":"pending","attempts":0,"max_retries":1}`)

	_, err := execute(t, "--server", srv.URL, "-y", "wallets", "fund", "--mode", "bounded", "--total", "1000", "--min", "10", "--max", "500", "--async")
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	got := (*requests)[0]
	if got.Path != "/api/v1/jobs" || got.Auth != "" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Body["kind"] != "fund" {
		t.Fatalf("unexpected kind: %v", got.Body["kind"])
	}
	params, ok := got.Body["params"].(map[string]any)
	if !ok || params["mode"] != "bounded" || params["total"] != float64(1000) || params["max"] != float64(500) {
		t.Fatalf("unexpected params: %v", got.Body["params"])
	}
}

func TestFlagValidation(t *testing.T) {
	srv, requests := fakeDaemon(t, `{}`)
	cases := [][]string{
		{"wallets", "sweep"},
		{"wallets", "sweep", "--destination", "d", "--percent", "150"},
		{"wallets", "fund", "--min-percent", "abc"},
		{"trade", "buy", "--mint", "m", "--amount", "0"},
		{"trade", "sell"},
		{"jobs", "get"},
	}
	for _, args := range cases {
		if _, err := execute(t, append([]string{"--server", srv.URL}, args...)...); err == nil {
			t.Fatalf("%s: expected error", strings.Join(args, " "))
		}
	}
	if len(*requests) != 0 {
		t.Fatalf("invalid flags must not reach the daemon, got %d requests", len(*requests))
	}
}

func TestAPIErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"funder balance too low","code":"INSUFFICIENT_BALANCE"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "--server", srv.URL, "--yes", "wallets", "fund", "--amount", "10")
	if err == nil || !strings.Contains(err.Error(), "INSUFFICIENT_BALANCE") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestTokenIssueSignsWithConfigSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletfleet.json")
	content := `{"auth":{"mode":"jwt","secret":"cli-secret","issuer":"fleetd"}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, "--config", path, "token", "issue", "--subject", "ops", "--permission", auth.PermissionRead)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc, err := auth.NewService(auth.Config{Mode: auth.ModeJWT, Secret: "cli-secret", Issuer: "fleetd"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	subject, err := svc.Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject.Name != "ops" || !subject.HasPermission(auth.PermissionRead) || subject.HasPermission(auth.PermissionWrite) {
		t.Fatalf("unexpected subject: %+v", subject)
	}
}

func TestTokenIssueRequiresJWTMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletfleet.json")
	if err := os.WriteFile(path, []byte(`{"auth":{"mode":"disabled"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := execute(t, "--config", path, "token", "issue", "--subject", "ops"); err == nil {
		t.Fatal("expected error when auth is disabled")
	}
}
