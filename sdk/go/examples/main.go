package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/shopspring/decimal"

	"WalletFleet/sdk/go/walletfleet"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /wallets/withdraw-to-wallet", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(walletfleet.Summary{
			Success:       true,
			Kind:          "sweep",
			TotalResolved: 995000,
			Succeeded:     1,
			Results: []walletfleet.OperationResult{{
				Source: "demo-wallet", Destination: "demo-treasury", Amount: 995000, Success: true, Reference: "demo-signature",
			}},
		})
	})
	mux.HandleFunc("POST /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(walletfleet.Job{ID: "job-demo", Kind: "sweep", Status: "pending", MaxRetries: 1})
	})
	mux.HandleFunc("GET /api/v1/jobs/job-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(walletfleet.Job{
			ID: "job-demo", Kind: "sweep", Status: "succeeded", Attempts: 1, MaxRetries: 1,
			UpdatedAt: time.Now().Unix(),
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := walletfleet.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}
	client.SetAccessToken("demo-token")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sweep := walletfleet.SweepRequest{Destination: "demo-treasury", Percent: decimal.NewFromInt(100)}
	summary, err := client.Sweep(ctx, sweep)
	if err != nil {
		panic(err)
	}
	fmt.Printf("swept %d lamports from %d wallets\n", summary.TotalResolved, summary.Succeeded)

	job, err := client.SubmitJob(ctx, walletfleet.JobSubmission{Kind: "sweep", Params: sweep})
	if err != nil {
		panic(err)
	}
	done, err := client.WaitForJob(ctx, job.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("job %s finished with status %s\n", done.ID, done.Status)
}
