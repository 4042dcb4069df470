package job

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/internal/fleet"
)

const (
	jobColumns = `id, kind, params, status, attempts, max_retries, last_error, error_code, summary, created_at, updated_at`

	insertJobSQL = `INSERT INTO fleet_jobs
        (id, kind, params, status, attempts, max_retries, last_error, error_code, summary, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, '', '', NULL, ?, ?)`

	selectJobSQL = `SELECT ` + jobColumns + ` FROM fleet_jobs WHERE id = ?`

	claimJobSQL = `UPDATE fleet_jobs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	succeedJobSQL = `UPDATE fleet_jobs SET status = ?, summary = ?, last_error = '', error_code = '', updated_at = ? WHERE id = ?`

	failJobSQL = `UPDATE fleet_jobs SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`
)

// MySQLStore 使用 MySQL 记录作业状态，表结构由 deploy/migrations 维护。
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore 基于已完成迁移的连接池创建 MySQLStore。
func NewMySQLStore(db *sql.DB) (*MySQLStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "MySQL 连接未初始化")
	}
	return &MySQLStore{db: db, now: time.Now}, nil
}

// Create 插入新的作业记录。
func (s *MySQLStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job 不能为空")
	}
	if strings.TrimSpace(job.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "作业 ID 不能为空")
	}

	now := s.now().Unix()
	job.CreatedAt = now
	job.UpdatedAt = now

	params := string(job.Params)
	if params == "" {
		params = "{}"
	}
	_, err := s.db.ExecContext(ctx, insertJobSQL,
		job.ID,
		string(job.Kind),
		params,
		string(job.Status),
		job.Attempts,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrJobConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入作业失败")
	}
	return nil
}

// Get 查询指定作业。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, selectJobSQL, id)
	job, err := scanJob(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job       Job
		params    sql.NullString
		lastError sql.NullString
		summary   sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.Kind,
		&params,
		&job.Status,
		&job.Attempts,
		&job.MaxRetries,
		&lastError,
		&job.ErrorCode,
		&summary,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询作业失败")
	}
	if params.Valid && params.String != "" {
		job.Params = json.RawMessage(params.String)
	}
	job.LastError = lastError.String
	if summary.Valid && summary.String != "" {
		var decoded fleet.Summary
		if err := json.Unmarshal([]byte(summary.String), &decoded); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析作业汇总失败")
		}
		job.Summary = &decoded
	}
	return &job, nil
}

// Claim 将作业标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Job, error) {
	res, err := s.db.ExecContext(ctx, claimJobSQL,
		string(StatusRunning),
		s.now().Unix(),
		id,
		string(StatusPending),
		string(StatusFailed),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新作业状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected > 0 {
		return job, nil
	}
	switch {
	case job.Status == StatusSucceeded:
		return job, ErrJobCompleted
	case job.Status == StatusRunning:
		return job, ErrJobConflict
	case job.Attempts >= job.MaxRetries:
		return job, ErrJobExhausted
	default:
		return job, ErrJobConflict
	}
}

// MarkSucceeded 记录批量执行汇总。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, summary fleet.Summary) error {
	encoded, err := json.Marshal(summary)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码作业汇总失败")
	}
	res, err := s.db.ExecContext(ctx, succeedJobSQL, string(StatusSucceeded), string(encoded), s.now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新作业结果失败")
	}
	return s.ensureUpdated(ctx, res, id)
}

// MarkFailed 标记作业失败。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string) error {
	res, err := s.db.ExecContext(ctx, failJobSQL, string(StatusFailed), lastError, string(code), s.now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新作业失败状态失败")
	}
	return s.ensureUpdated(ctx, res, id)
}

// ensureUpdated 区分“记录不存在”与“值未变化”，MySQL 对后者同样返回 0 行。
func (s *MySQLStore) ensureUpdated(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected > 0 {
		return nil
	}
	_, err = s.Get(ctx, id)
	return err
}

// List 返回符合过滤条件的作业。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	opts.applyDefaults()
	query, args := listQuery(opts)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询作业列表失败")
	}
	defer rows.Close()

	jobs := make([]*Job, 0, opts.Limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历作业列表失败")
	}
	return jobs, nil
}

// Stats 统计符合过滤条件的作业数量与更新时间范围。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()
	where, args := whereClause(opts)
	query := `SELECT status, COUNT(*), MIN(updated_at), MAX(updated_at) FROM fleet_jobs` + where + ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计作业失败")
	}
	defer rows.Close()

	stats := Stats{}
	for rows.Next() {
		var (
			status         Status
			count          int
			oldest, newest int64
		)
		if err := rows.Scan(&status, &count, &oldest, &newest); err != nil {
			return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析作业统计失败")
		}
		stats.merge(status, count, oldest, newest)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历作业统计失败")
	}
	return stats, nil
}

// Close 释放连接池。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func listQuery(opts ListOptions) (string, []any) {
	where, args := whereClause(opts)
	order := "DESC"
	if opts.Order == SortByUpdatedAsc {
		order = "ASC"
	}
	query := `SELECT ` + jobColumns + ` FROM fleet_jobs` + where +
		` ORDER BY updated_at ` + order + `, created_at ` + order + `, id ` + order + ` LIMIT ? OFFSET ?`
	return query, append(args, opts.Limit, opts.Offset)
}

func whereClause(opts ListOptions) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if len(opts.Statuses) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(opts.Statuses))+")")
		for _, status := range opts.Statuses {
			args = append(args, string(status))
		}
	}
	if len(opts.Kinds) > 0 {
		conditions = append(conditions, "kind IN ("+placeholders(len(opts.Kinds))+")")
		for _, kind := range opts.Kinds {
			args = append(args, string(kind))
		}
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var _ Store = (*MySQLStore)(nil)
