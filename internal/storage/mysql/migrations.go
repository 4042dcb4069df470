package mysql

import (
	"context"
	"database/sql"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"WalletFleet/deploy/migrations"
	xerrors "WalletFleet/internal/errors"
	"WalletFleet/pkg/logger"
)

const (
	createSchemaTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`
	selectVersionsSQL = `SELECT version FROM schema_migrations`
	recordVersionSQL  = `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`
)

// Migration 是一个按版本号排序执行的 SQL 文件。
type Migration struct {
	Version    string
	Name       string
	Statements []string
}

// Migrator 把 source 中的 *.sql 文件按版本应用到数据库，每个文件一个事务。
type Migrator struct {
	db     *sql.DB
	source fs.FS
	log    *slog.Logger
	now    func() time.Time
}

// NewMigrator 构造迁移器，source 为空时使用内置的 deploy/migrations。
func NewMigrator(db *sql.DB, source fs.FS) *Migrator {
	if source == nil {
		source = migrations.Files
	}
	return &Migrator{db: db, source: source, log: logger.Named("migrate"), now: time.Now}
}

// Migrate 应用内置迁移中尚未执行的部分。
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := NewMigrator(db, nil).Up(ctx)
	return err
}

// Pending 返回尚未记录在 schema_migrations 中的迁移。
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	if _, err := m.db.ExecContext(ctx, createSchemaTableSQL); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 schema_migrations 表失败")
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	all, err := loadMigrations(m.source)
	if err != nil {
		return nil, err
	}
	pending := all[:0]
	for _, migration := range all {
		if _, ok := applied[migration.Version]; !ok {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// Up 依次执行待处理的迁移，返回本次应用的版本号。
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, migration := range pending {
		if err := m.apply(ctx, migration); err != nil {
			return versions, err
		}
		m.log.Info("迁移已应用", slog.String("version", migration.Version), slog.String("file", migration.Name))
		versions = append(versions, migration.Version)
	}
	return versions, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := m.db.QueryContext(ctx, selectVersionsSQL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 schema_migrations 失败")
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 schema_migrations 失败")
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历 schema_migrations 失败")
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启迁移事务失败")
	}
	for _, stmt := range migration.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行迁移 "+migration.Name+" 失败")
		}
	}
	if _, err := tx.ExecContext(ctx, recordVersionSQL, migration.Version, m.now().Unix()); err != nil {
		_ = tx.Rollback()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "记录迁移版本失败")
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交迁移事务失败")
	}
	return nil
}

// loadMigrations 读取 source 根目录下的 *.sql，同一版本号出现两次视为错误。
func loadMigrations(source fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取迁移目录失败")
	}

	seen := make(map[string]string)
	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		content, err := fs.ReadFile(source, name)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取迁移文件 "+name+" 失败")
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		version := parseMigrationVersion(name)
		if previous, dup := seen[version]; dup {
			return nil, xerrors.Newf(xerrors.CodeInitializationFailure, "迁移版本 %s 重复: %s 与 %s", version, previous, name)
		}
		seen[version] = name
		out = append(out, Migration{Version: version, Name: name, Statements: statements})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// splitSQLStatements 以分号切分语句并去掉以 -- 开头的注释行；迁移文件中不允许出现包含分号的字符串字面量。
func splitSQLStatements(content string) []string {
	var cleaned strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteByte('\n')
	}
	var statements []string
	for _, stmt := range strings.Split(cleaned.String(), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

func parseMigrationVersion(name string) string {
	if idx := strings.IndexAny(name, "_."); idx > 0 {
		return name[:idx]
	}
	return name
}
