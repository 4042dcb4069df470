package job

import (
	"bytes"
	"context"
	"encoding/json"

	"WalletFleet/internal/distribution"
	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
)

// Fleet 是作业可以调度的批量操作集合，由 distribution.Service 实现。
type Fleet interface {
	Fund(ctx context.Context, req distribution.FundRequest) (fleet.Summary, error)
	Sweep(ctx context.Context, req distribution.SweepRequest) (fleet.Summary, error)
	BuyAll(ctx context.Context, req distribution.BuyRequest) (fleet.Summary, error)
	SellAll(ctx context.Context, req distribution.SellRequest) (fleet.Summary, error)
}

// DistributionRunner 按作业类型解码参数并调用对应的批量操作。
type DistributionRunner struct {
	fleet Fleet
}

// NewDistributionRunner 创建 DistributionRunner。
func NewDistributionRunner(f Fleet) *DistributionRunner {
	return &DistributionRunner{fleet: f}
}

// Run 实现 Runner 接口。
func (r *DistributionRunner) Run(ctx context.Context, job *Job) (fleet.Summary, error) {
	if r == nil || r.fleet == nil {
		return fleet.Summary{}, xerrors.New(xerrors.CodeInitializationFailure, "作业执行器未初始化")
	}
	switch job.Kind {
	case KindFund:
		var req distribution.FundRequest
		if err := decodeParams(job.Params, &req); err != nil {
			return fleet.Summary{}, err
		}
		return r.fleet.Fund(ctx, req)
	case KindSweep:
		var req distribution.SweepRequest
		if err := decodeParams(job.Params, &req); err != nil {
			return fleet.Summary{}, err
		}
		return r.fleet.Sweep(ctx, req)
	case KindBuy:
		var req distribution.BuyRequest
		if err := decodeParams(job.Params, &req); err != nil {
			return fleet.Summary{}, err
		}
		return r.fleet.BuyAll(ctx, req)
	case KindSell:
		var req distribution.SellRequest
		if err := decodeParams(job.Params, &req); err != nil {
			return fleet.Summary{}, err
		}
		return r.fleet.SellAll(ctx, req)
	default:
		return fleet.Summary{}, xerrors.Newf(CodeJobValidation, "不支持的作业类型 %q", job.Kind)
	}
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return xerrors.Wrap(CodeJobValidation, err, "解析作业参数失败")
	}
	return nil
}

var _ Runner = (*DistributionRunner)(nil)
