// Package walletfleet is a Go client for the WalletFleet REST API.
package walletfleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Batch endpoints wait for confirmations, so it is longer than a typical API
// timeout.
const DefaultHTTPTimeout = 5 * time.Minute

// Client wraps the HTTP interactions with a fleetd instance.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// FundRequest mirrors the body of POST /wallets/fund-wallets. Amounts are
// lamports; zero values fall back to server defaults.
type FundRequest struct {
	Mode       string          `json:"mode,omitempty"`
	Amount     uint64          `json:"amount,omitempty"`
	Total      uint64          `json:"total,omitempty"`
	Min        uint64          `json:"min,omitempty"`
	Max        uint64          `json:"max,omitempty"`
	MinPercent decimal.Decimal `json:"minPercent"`
	MaxPercent decimal.Decimal `json:"maxPercent"`
	Recipients []string        `json:"recipients,omitempty"`
	FeeReserve uint64          `json:"feeReserve,omitempty"`
}

// SweepRequest mirrors the body of POST /wallets/withdraw-to-wallet.
type SweepRequest struct {
	Destination string          `json:"destination"`
	Percent     decimal.Decimal `json:"percentage"`
	FeeReserve  uint64          `json:"feeReserve,omitempty"`
}

// BuyRequest mirrors the body of POST /trade/buy-token-all-wallets. Amount is
// in whole SOL.
type BuyRequest struct {
	Mint        string          `json:"mint"`
	Amount      decimal.Decimal `json:"amount"`
	SlippageBps int             `json:"slippageBps,omitempty"`
	FeeReserve  uint64          `json:"feeReserve,omitempty"`
}

// SellRequest mirrors the body of POST /trade/sell-token-all-wallets.
type SellRequest struct {
	Mint        string          `json:"mint"`
	Percent     decimal.Decimal `json:"percentage"`
	SlippageBps int             `json:"slippageBps,omitempty"`
}

// OperationResult is the outcome of one leg of a batch.
type OperationResult struct {
	Index       int    `json:"index"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Amount      uint64 `json:"amount"`
	Success     bool   `json:"success"`
	Reference   string `json:"reference,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Summary aggregates a batch run.
type Summary struct {
	Success       bool              `json:"success"`
	Kind          string            `json:"kind"`
	TotalResolved uint64            `json:"total_resolved"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	Cancelled     int               `json:"cancelled"`
	Results       []OperationResult `json:"results"`
}

// AccountInfo is one wallet as reported by POST /wallets/info.
type AccountInfo struct {
	Address    string `json:"address"`
	Lamports   uint64 `json:"lamports"`
	SOL        string `json:"sol"`
	Commitment string `json:"commitment"`
	Executable bool   `json:"executable"`
	Owner      string `json:"owner,omitempty"`
	RentEpoch  string `json:"rentEpoch,omitempty"`
	DataLength int    `json:"dataLength"`
	Error      string `json:"error,omitempty"`
}

// JobSubmission queues a batch operation. Params is the request body the
// matching synchronous endpoint would take.
type JobSubmission struct {
	ID         string `json:"id,omitempty"`
	Kind       string `json:"kind"`
	Params     any    `json:"params,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty"`
}

// Job is the server view of a queued operation.
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Params     json.RawMessage `json:"params,omitempty"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Summary    *Summary        `json:"summary,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

// Finished reports whether the job reached a terminal state from the
// client's point of view.
func (j Job) Finished() bool {
	switch j.Status {
	case "succeeded":
		return true
	case "failed":
		return j.Attempts >= j.MaxRetries
	}
	return false
}

// JobStats counts jobs per status.
type JobStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// JobQuery filters ListJobs and JobStats.
type JobQuery struct {
	Limit     int
	Offset    int
	Statuses  []string
	Kinds     []string
	Since     time.Time
	Until     time.Time
	Ascending bool
}

func (q JobQuery) values() url.Values {
	values := url.Values{}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if len(q.Statuses) > 0 {
		values.Set("status", strings.Join(q.Statuses, ","))
	}
	if len(q.Kinds) > 0 {
		values.Set("kind", strings.Join(q.Kinds, ","))
	}
	if !q.Since.IsZero() {
		values.Set("since", strconv.FormatInt(q.Since.Unix(), 10))
	}
	if !q.Until.IsZero() {
		values.Set("until", strconv.FormatInt(q.Until.Unix(), 10))
	}
	if q.Ascending {
		values.Set("order", "asc")
	}
	return values
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("walletfleet api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("walletfleet api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the API rooted at rawURL. When
// httpClient is nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// AccessToken returns the currently stored bearer token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken sets the bearer token sent with every request. An empty
// token sends no Authorization header.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// Health calls GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil)
}

// CreateWallets generates count wallets and returns their addresses.
func (c *Client) CreateWallets(ctx context.Context, count int) ([]string, error) {
	var out struct {
		Wallets []string `json:"wallets"`
	}
	if err := c.post(ctx, "/wallets/create-wallets", map[string]int{"count": count}, &out); err != nil {
		return nil, err
	}
	return out.Wallets, nil
}

// AccountInfo reads every stored wallet at the given commitment.
func (c *Client) AccountInfo(ctx context.Context, commitment string) ([]AccountInfo, error) {
	var out struct {
		Results []AccountInfo `json:"results"`
	}
	body := map[string]string{}
	if commitment != "" {
		body["commitment"] = commitment
	}
	if err := c.post(ctx, "/wallets/info", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Fund distributes lamports from the configured funder.
func (c *Client) Fund(ctx context.Context, req FundRequest) (Summary, error) {
	return c.batch(ctx, "/wallets/fund-wallets", req)
}

// Sweep moves a share of every wallet's balance to one destination.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) (Summary, error) {
	return c.batch(ctx, "/wallets/withdraw-to-wallet", req)
}

// BuyAll swaps SOL into a token from every wallet.
func (c *Client) BuyAll(ctx context.Context, req BuyRequest) (Summary, error) {
	return c.batch(ctx, "/trade/buy-token-all-wallets", req)
}

// SellAll swaps a share of every wallet's token balance back to SOL.
func (c *Client) SellAll(ctx context.Context, req SellRequest) (Summary, error) {
	return c.batch(ctx, "/trade/sell-token-all-wallets", req)
}

// SubmitJob queues a batch operation for asynchronous processing.
func (c *Client) SubmitJob(ctx context.Context, submission JobSubmission) (Job, error) {
	var job Job
	if err := c.post(ctx, "/api/v1/jobs", submission, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// GetJob fetches one job by id.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// ListJobs returns jobs matching the query.
func (c *Client) ListJobs(ctx context.Context, query JobQuery) ([]Job, error) {
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.get(ctx, "/api/v1/jobs", query.values(), &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// JobStats counts jobs matching the query.
func (c *Client) JobStats(ctx context.Context, query JobQuery) (JobStats, error) {
	var stats JobStats
	if err := c.get(ctx, "/api/v1/jobs/stats", query.values(), &stats); err != nil {
		return JobStats{}, err
	}
	return stats, nil
}

// WaitForJob polls until the job finishes or ctx is done.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Finished() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) batch(ctx context.Context, endpoint string, payload any) (Summary, error) {
	var summary Summary
	if err := c.post(ctx, endpoint, payload, &summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
