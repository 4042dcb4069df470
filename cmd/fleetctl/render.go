package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"WalletFleet/sdk/go/walletfleet"
)

func separator() {
	pterm.Println(pterm.Green("----------------------------------------"))
}

func renderWallets(wallets []string) error {
	data := pterm.TableData{{"#", "Address"}}
	for i, address := range wallets {
		data = append(data, []string{strconv.Itoa(i + 1), address})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Success.Printf("%d wallets created\n", len(wallets))
	return nil
}

func renderAccounts(infos []walletfleet.AccountInfo) error {
	data := pterm.TableData{{"Address", "SOL", "Lamports", "Owner", "Status"}}
	var total uint64
	for _, info := range infos {
		status := pterm.Green("ok")
		if info.Error != "" {
			status = pterm.Red(info.Error)
		}
		total += info.Lamports
		data = append(data, []string{info.Address, info.SOL, strconv.FormatUint(info.Lamports, 10), info.Owner, status})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	separator()
	pterm.Info.Printf("%d wallets, %d lamports in total\n", len(infos), total)
	return nil
}

func renderSummary(summary walletfleet.Summary) error {
	data := pterm.TableData{{"#", "Source", "Destination", "Amount", "Result"}}
	for _, result := range summary.Results {
		outcome := pterm.Green(result.Reference)
		if !result.Success {
			outcome = pterm.Red(fmt.Sprintf("%s: %s", result.ErrorKind, result.Error))
		}
		data = append(data, []string{
			strconv.Itoa(result.Index),
			result.Source,
			result.Destination,
			strconv.FormatUint(result.Amount, 10),
			outcome,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	separator()
	line := fmt.Sprintf("%s: %d succeeded, %d failed, %d cancelled, %d lamports resolved",
		summary.Kind, summary.Succeeded, summary.Failed, summary.Cancelled, summary.TotalResolved)
	if summary.Succeeded == 0 && len(summary.Results) > 0 {
		pterm.Warning.Println(line)
		return nil
	}
	pterm.Success.Println(line)
	return nil
}

func renderJob(job walletfleet.Job) error {
	data := pterm.TableData{
		{pterm.Blue("ID"), job.ID},
		{pterm.Blue("Kind"), job.Kind},
		{pterm.Blue("Status"), job.Status},
		{pterm.Blue("Attempts"), fmt.Sprintf("%d/%d", job.Attempts, job.MaxRetries)},
		{pterm.Blue("Updated"), formatUnix(job.UpdatedAt)},
	}
	if job.LastError != "" {
		data = append(data, []string{pterm.Blue("Error"), fmt.Sprintf("%s: %s", job.ErrorCode, job.LastError)})
	}
	if err := pterm.DefaultTable.WithData(data).Render(); err != nil {
		return err
	}
	if job.Summary != nil {
		separator()
		return renderSummary(*job.Summary)
	}
	return nil
}

func renderJobs(jobs []walletfleet.Job) error {
	data := pterm.TableData{{"ID", "Kind", "Status", "Attempts", "Updated"}}
	for _, job := range jobs {
		data = append(data, []string{
			job.ID,
			job.Kind,
			job.Status,
			fmt.Sprintf("%d/%d", job.Attempts, job.MaxRetries),
			formatUnix(job.UpdatedAt),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderStats(stats walletfleet.JobStats) error {
	data := pterm.TableData{
		{pterm.Blue("Total"), strconv.Itoa(stats.Total)},
		{pterm.Blue("Pending"), strconv.Itoa(stats.Pending)},
		{pterm.Blue("Running"), strconv.Itoa(stats.Running)},
		{pterm.Blue("Succeeded"), strconv.Itoa(stats.Succeeded)},
		{pterm.Blue("Failed"), strconv.Itoa(stats.Failed)},
		{pterm.Blue("Oldest"), formatUnix(stats.OldestUpdatedAt)},
		{pterm.Blue("Newest"), formatUnix(stats.NewestUpdatedAt)},
	}
	return pterm.DefaultTable.WithData(data).Render()
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format(time.RFC3339)
}
