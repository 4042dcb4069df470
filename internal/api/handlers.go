package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"WalletFleet/internal/distribution"
	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/job"
)

// maxBodyBytes 限制请求体大小。
const maxBodyBytes = 1 << 20

type createWalletsRequest struct {
	Count int `json:"count"`
}

type createWalletsResponse struct {
	Count   int      `json:"count"`
	Wallets []string `json:"wallets"`
}

type accountInfoRequest struct {
	Commitment string `json:"commitment"`
}

type accountInfoResponse struct {
	Results []distribution.AccountInfo `json:"results"`
}

// batchResponse 返回批次汇总；success 表示至少有一笔操作完成。
type batchResponse struct {
	Success bool `json:"success"`
	fleet.Summary
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateWallets(w http.ResponseWriter, r *http.Request) {
	var req createWalletsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	wallets, err := s.fleet.CreateWallets(r.Context(), req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createWalletsResponse{Count: len(wallets), Wallets: wallets})
}

func (s *Server) handleAccountInfo(w http.ResponseWriter, r *http.Request) {
	var req accountInfoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	infos, err := s.fleet.AccountInfo(r.Context(), req.Commitment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountInfoResponse{Results: infos})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req distribution.FundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	summary, err := s.fleet.Fund(r.Context(), req)
	writeSummary(w, summary, err)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req distribution.SweepRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Destination) == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "destination is required"))
		return
	}
	summary, err := s.fleet.Sweep(r.Context(), req)
	writeSummary(w, summary, err)
}

func (s *Server) handleBuyAll(w http.ResponseWriter, r *http.Request) {
	var req distribution.BuyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	summary, err := s.fleet.BuyAll(r.Context(), req)
	writeSummary(w, summary, err)
}

func (s *Server) handleSellAll(w http.ResponseWriter, r *http.Request) {
	var req distribution.SellRequest
	if !decodeBody(w, r, &req) {
		return
	}
	summary, err := s.fleet.SellAll(r.Context(), req)
	writeSummary(w, summary, err)
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req job.Request
	if !decodeBody(w, r, &req) {
		return
	}
	submitted, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitted)
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "job id is required"))
		return
	}
	found, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	jobs, err := s.jobs.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.jobs.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listOptions 解析 limit、offset、status、kind、since、until、order 查询参数。
func listOptions(r *http.Request) ([]job.ListOption, error) {
	query := r.URL.Query()
	var opts []job.ListOption

	intParam := func(name string, apply func(int) job.ListOption) error {
		raw := query.Get(name)
		if raw == "" {
			return nil
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return xerrors.Newf(xerrors.CodeInvalidArgument, "invalid %s %q", name, raw)
		}
		opts = append(opts, apply(value))
		return nil
	}
	if err := intParam("limit", job.WithLimit); err != nil {
		return nil, err
	}
	if err := intParam("offset", job.WithOffset); err != nil {
		return nil, err
	}

	if raw := query["status"]; len(raw) > 0 {
		statuses := make([]job.Status, 0, len(raw))
		for _, value := range splitValues(raw) {
			statuses = append(statuses, job.Status(value))
		}
		opts = append(opts, job.WithStatuses(statuses...))
	}
	if raw := query["kind"]; len(raw) > 0 {
		kinds := make([]job.Kind, 0, len(raw))
		for _, value := range splitValues(raw) {
			kinds = append(kinds, job.Kind(value))
		}
		opts = append(opts, job.WithKinds(kinds...))
	}

	timeParam := func(name string, apply func(time.Time) job.ListOption) error {
		raw := query.Get(name)
		if raw == "" {
			return nil
		}
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			opts = append(opts, apply(time.Unix(unix, 0)))
			return nil
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return xerrors.Newf(xerrors.CodeInvalidArgument, "invalid %s %q", name, raw)
		}
		opts = append(opts, apply(ts))
		return nil
	}
	if err := timeParam("since", job.WithUpdatedSince); err != nil {
		return nil, err
	}
	if err := timeParam("until", job.WithUpdatedUntil); err != nil {
		return nil, err
	}

	switch strings.ToLower(query.Get("order")) {
	case "", "desc":
	case "asc":
		opts = append(opts, job.WithSortOrder(job.SortByUpdatedAsc))
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "invalid order %q", query.Get("order"))
	}
	return opts, nil
}

func splitValues(raw []string) []string {
	var values []string
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, strings.ToLower(part))
			}
		}
	}
	return values
}

// decodeBody 严格解析 JSON 请求体，空请求体视为 {}。
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && err != io.EOF {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return false
	}
	return true
}

func writeSummary(w http.ResponseWriter, summary fleet.Summary, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Success: summary.Succeeded > 0, Summary: summary})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
