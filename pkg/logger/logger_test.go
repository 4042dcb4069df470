package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRedactsKeyMaterial(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newHandler("json", &buf, &slog.HandlerOptions{ReplaceAttr: redact}))

	l.Info("wallet imported",
		slog.String("address", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"),
		slog.String("secret_key", "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP"),
		slog.Group("auth", slog.String("Authorization", "Bearer abc")),
	)

	out := buf.String()
	if strings.Contains(out, "5KQwrPbw") || strings.Contains(out, "Bearer abc") {
		t.Fatalf("敏感字段未被屏蔽: %s", out)
	}
	if strings.Count(out, Redacted) != 2 {
		t.Fatalf("期望两处屏蔽: %s", out)
	}
	if !strings.Contains(out, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin") {
		t.Fatalf("地址不应被屏蔽: %s", out)
	}
}

func TestInitWritesAppAndAuditLogs(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "logs", "fleetd.log")
	auditPath := filepath.Join(dir, "audit", "audit.log")

	err := Init(Config{
		Level:       "debug",
		Format:      "text",
		OutputPaths: []string{appPath},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	})
	if err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	t.Cleanup(func() { _ = Init(Config{OutputPaths: []string{"stderr"}}) })

	Named("batch").Debug("planning", slog.Int("accounts", 3))
	Audit().Info("ledger submission", slog.String("reference", "sig-1"), slog.String("token", "jwt"))
	if err := Sync(); err != nil {
		t.Fatalf("关闭日志失败: %v", err)
	}

	app, err := os.ReadFile(appPath)
	if err != nil {
		t.Fatalf("读取应用日志失败: %v", err)
	}
	if !strings.Contains(string(app), "component=batch") || !strings.Contains(string(app), "accounts=3") {
		t.Fatalf("应用日志内容不正确: %s", app)
	}

	audit, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("读取审计日志失败: %v", err)
	}
	if !strings.Contains(string(audit), `"reference":"sig-1"`) || strings.Contains(string(audit), "jwt") {
		t.Fatalf("审计日志内容不正确: %s", audit)
	}
	if strings.Contains(string(app), "sig-1") {
		t.Fatalf("审计记录不应写入应用日志")
	}
}

func TestInitRejectsAuditWithoutPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("缺少审计路径时应返回错误")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"noise": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
