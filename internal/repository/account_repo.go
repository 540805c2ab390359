package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/y-cruce/postflow/internal/service"

	"github.com/lib/pq"
)

type accountRepository struct {
	sql sqlExecutor
}

// NewAccountRepository 创建账号仓储
func NewAccountRepository(sqlDB *sql.DB) service.AccountRepository {
	return &accountRepository{sql: sqlDB}
}

const accountColumns = `id, platform_user_id, handle, access_token, timezone, active, pause_reason, consecutive_failures, created_at, updated_at`

func scanAccount(row rowScanner) (*service.Account, error) {
	var a service.Account
	err := row.Scan(
		&a.ID, &a.PlatformUserID, &a.Handle, &a.AccessToken, &a.Timezone,
		&a.Active, &a.PauseReason, &a.ConsecutiveFailures, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) Create(ctx context.Context, account *service.Account) error {
	now := time.Now()
	query := `
		INSERT INTO accounts (platform_user_id, handle, access_token, timezone, active, pause_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (platform_user_id) DO UPDATE
			SET handle = EXCLUDED.handle, access_token = EXCLUDED.access_token, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`
	err := scanSingleRow(ctx, r.sql, query,
		[]any{account.PlatformUserID, account.Handle, account.AccessToken, account.Timezone, account.Active, account.PauseReason, now},
		&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return mapPQError(err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*service.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.sql.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, service.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) GetByPlatformUserID(ctx context.Context, platformUserID string) (*service.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE platform_user_id = $1`
	account, err := scanAccount(r.sql.QueryRowContext(ctx, query, platformUserID))
	if err == sql.ErrNoRows {
		return nil, service.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) List(ctx context.Context) ([]service.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY id`
	rows, err := r.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	accounts := make([]service.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) Update(ctx context.Context, account *service.Account) error {
	query := `
		UPDATE accounts
		   SET handle = $2, access_token = $3, timezone = $4, updated_at = $5
		 WHERE id = $1`
	res, err := r.sql.ExecContext(ctx, query, account.ID, account.Handle, account.AccessToken, account.Timezone, time.Now())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return service.ErrAccountNotFound
	}
	return nil
}

// SetActive 冻结/解冻账号；解冻时清空暂停原因与连续失败计数
func (r *accountRepository) SetActive(ctx context.Context, id int64, active bool, reason string) error {
	var query string
	if active {
		query = `
			UPDATE accounts
			   SET active = TRUE, pause_reason = '', consecutive_failures = 0, updated_at = NOW()
			 WHERE id = $1`
		res, err := r.sql.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return service.ErrAccountNotFound
		}
		return nil
	}
	query = `
		UPDATE accounts
		   SET active = FALSE, pause_reason = $2, updated_at = NOW()
		 WHERE id = $1`
	res, err := r.sql.ExecContext(ctx, query, id, reason)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return service.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) RecordPublishFailure(ctx context.Context, id int64) (int, error) {
	query := `
		UPDATE accounts
		   SET consecutive_failures = consecutive_failures + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING consecutive_failures`
	var failures int
	err := scanSingleRow(ctx, r.sql, query, []any{id}, &failures)
	if err == sql.ErrNoRows {
		return 0, service.ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}
	return failures, nil
}

func (r *accountRepository) RecordPublishSuccess(ctx context.Context, id int64) error {
	_, err := r.sql.ExecContext(ctx,
		`UPDATE accounts SET consecutive_failures = 0, updated_at = NOW() WHERE id = $1 AND consecutive_failures <> 0`, id)
	return err
}

// mapPQError 将驱动错误映射为领域错误（23505 = 唯一约束冲突）
func mapPQError(err error) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return service.ErrDuplicateKey
	}
	return err
}
