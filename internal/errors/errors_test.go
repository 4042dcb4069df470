package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCodeAndCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeUpstreamFailure, cause, "getBalance")

	if got := CodeOf(err); got != CodeUpstreamFailure {
		t.Fatalf("错误码不正确: %s", got)
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("应能通过 errors.Is 找到原因")
	}
	if err.Error() != "[UPSTREAM_FAILURE] getBalance: connection refused" {
		t.Fatalf("错误信息不正确: %s", err.Error())
	}
}

func TestCodeOfThroughFmtWrap(t *testing.T) {
	inner := New(CodeStorageFailure, "")
	outer := fmt.Errorf("保存作业: %w", inner)

	if CodeOf(outer) != CodeStorageFailure {
		t.Fatalf("应穿透 fmt 包装取得错误码")
	}
	if inner.Error() != "[STORAGE_FAILURE] storage failure" {
		t.Fatalf("空描述应回退到注册描述: %s", inner.Error())
	}
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatalf("普通错误应为 UNKNOWN")
	}
	if CodeOf(nil) != CodeUnknown {
		t.Fatalf("nil 应为 UNKNOWN")
	}
}

func TestIsComparesCodes(t *testing.T) {
	sentinel := New(CodeNotFound, "")
	err := Newf(CodeNotFound, "作业 %s 不存在", "job-1")

	if !stdErrors.Is(err, sentinel) {
		t.Fatalf("相同错误码应视为相同错误")
	}
	if stdErrors.Is(err, New(CodeConflict, "")) {
		t.Fatalf("不同错误码不应匹配")
	}
}

func TestRegisterAndRetryable(t *testing.T) {
	const code Code = "TEST_FLAKY"
	Register(code, Attributes{Message: "flaky", Severity: SeverityWarning, Retryable: true})

	if !RetryableError(New(code, "")) {
		t.Fatalf("注册为可重试的错误码应可重试")
	}
	if RetryableError(New(CodeInvalidArgument, "")) {
		t.Fatalf("参数错误不应重试")
	}
	if RetryableError(stdErrors.New("plain")) {
		t.Fatalf("未分类的错误不应重试")
	}
	if AttributesOf("NOT_REGISTERED").Severity != SeverityCritical {
		t.Fatalf("未注册的错误码应回退到 UNKNOWN 属性")
	}
}

func TestInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if !Interrupted(ctx.Err()) {
		t.Fatalf("取消应视为中断")
	}
	if !Interrupted(fmt.Errorf("rpc: %w", context.DeadlineExceeded)) {
		t.Fatalf("包装后的超时应视为中断")
	}
	if Interrupted(New(CodeTimeout, "")) {
		t.Fatalf("业务超时错误码不是 context 中断")
	}
	if Interrupted(nil) {
		t.Fatalf("nil 不是中断")
	}
}
