package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/y-cruce/postflow/internal/service"

	"github.com/lib/pq"
)

type postRepository struct {
	db  *sql.DB
	sql sqlExecutor
}

// NewPostRepository 创建帖子仓储
func NewPostRepository(sqlDB *sql.DB) service.PostRepository {
	return &postRepository{db: sqlDB, sql: sqlDB}
}

const postColumns = `id, account_id, platform, post_type, media_url, caption, scheduled_at, status, retry_count, error_code, publish_result::text, client_request_id, locked_at, created_at, updated_at`

func scanPost(row rowScanner) (*service.Post, error) {
	var (
		p         service.Post
		errorCode sql.NullString
		clientReq sql.NullString
		lockedAt  sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Platform, &p.PostType, &p.MediaURL, &p.Caption,
		&p.ScheduledAt, &p.Status, &p.RetryCount, &errorCode, &p.PublishResult,
		&clientReq, &lockedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ScheduledAt = p.ScheduledAt.UTC()
	if errorCode.Valid {
		p.ErrorCode = errorCode.String
	}
	if clientReq.Valid {
		v := clientReq.String
		p.ClientRequestID = &v
	}
	if lockedAt.Valid {
		v := lockedAt.Time.UTC()
		p.LockedAt = &v
	}
	return &p, nil
}

// Create 幂等插入：同 (account_id, client_request_id) 的重放返回既有行
func (r *postRepository) Create(ctx context.Context, post *service.Post) (bool, error) {
	now := time.Now()
	var clientReq any
	if post.ClientRequestID != nil {
		clientReq = *post.ClientRequestID
	}
	result := post.PublishResult
	if result == "" {
		result = "{}"
	}

	// The no-op DO UPDATE makes RETURNING yield the existing row on a
	// replay; xmax = 0 distinguishes a fresh insert from that conflict.
	query := `
		INSERT INTO posts (account_id, platform, post_type, media_url, caption, scheduled_at, status, retry_count, publish_result, client_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $11)
		ON CONFLICT (account_id, client_request_id) WHERE client_request_id IS NOT NULL
		DO UPDATE SET updated_at = posts.updated_at
		RETURNING id, status, created_at, updated_at, (xmax = 0) AS inserted`
	var inserted bool
	err := scanSingleRow(ctx, r.sql, query,
		[]any{post.AccountID, post.Platform, post.PostType, post.MediaURL, post.Caption,
			post.ScheduledAt.UTC(), post.Status, post.RetryCount, result, clientReq, now},
		&post.ID, &post.Status, &post.CreatedAt, &post.UpdatedAt, &inserted)
	if err != nil {
		return false, mapPQError(err)
	}
	if !inserted {
		// Replay: surface the stored row, not the request payload.
		existing, err := r.GetByID(ctx, post.ID)
		if err != nil {
			return false, err
		}
		*post = *existing
	}
	return inserted, nil
}

// CreateBatch 单事务批量插入；任一行失败则整块回滚
func (r *postRepository) CreateBatch(ctx context.Context, posts []*service.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	created := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		txRepo := &postRepository{db: r.db, sql: tx}
		for _, post := range posts {
			inserted, err := txRepo.Create(ctx, post)
			if err != nil {
				return fmt.Errorf("insert post for account %d at %s: %w", post.AccountID, post.ScheduledAt, err)
			}
			if inserted {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*service.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.sql.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, service.ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (r *postRepository) GetByClientRequestID(ctx context.Context, accountID int64, clientRequestID string) (*service.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE account_id = $1 AND client_request_id = $2`
	post, err := scanPost(r.sql.QueryRowContext(ctx, query, accountID, clientRequestID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Update 仅改写排期字段；状态流转走 CAS 方法
func (r *postRepository) Update(ctx context.Context, post *service.Post) error {
	query := `
		UPDATE posts
		   SET post_type = $2, media_url = $3, caption = $4, scheduled_at = $5, updated_at = NOW()
		 WHERE id = $1`
	res, err := r.sql.ExecContext(ctx, query, post.ID, post.PostType, post.MediaURL, post.Caption, post.ScheduledAt.UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return service.ErrPostNotFound
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.sql.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return service.ErrPostNotFound
	}
	return nil
}

func (r *postRepository) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.sql.ExecContext(ctx, `DELETE FROM posts WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAfter 删除 T 之后尚未进入执行态的帖子
func (r *postRepository) DeleteAfter(ctx context.Context, accountID int64, after time.Time) (int64, error) {
	query := `
		DELETE FROM posts
		 WHERE account_id = $1
		   AND scheduled_at > $2
		   AND status IN ('scheduled', 'leased')`
	res, err := r.sql.ExecContext(ctx, query, accountID, after.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *postRepository) DeleteBefore(ctx context.Context, accountID int64, cutoff time.Time) (int64, error) {
	query := `DELETE FROM posts WHERE account_id = $1 AND scheduled_at < $2`
	res, err := r.sql.ExecContext(ctx, query, accountID, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteTerminalBefore 维护任务：清理早于 cutoff 的终态帖子
func (r *postRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM posts
		 WHERE scheduled_at < $1
		   AND status IN ('posted', 'failed', 'cancelled')`
	res, err := r.sql.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *postRepository) QueryRange(ctx context.Context, accountID int64, start, end time.Time) ([]service.Post, error) {
	query := `
		SELECT ` + postColumns + `
		  FROM posts
		 WHERE account_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		 ORDER BY scheduled_at, id`
	return r.queryPosts(ctx, query, accountID, start.UTC(), end.UTC())
}

func (r *postRepository) ListActiveBetween(ctx context.Context, accountID int64, start, end time.Time) ([]service.Post, error) {
	query := `
		SELECT ` + postColumns + `
		  FROM posts
		 WHERE account_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		   AND status NOT IN ('failed', 'cancelled')
		 ORDER BY scheduled_at, id`
	return r.queryPosts(ctx, query, accountID, start.UTC(), end.UTC())
}

func (r *postRepository) CountActiveBetween(ctx context.Context, accountID int64, start, end time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		  FROM posts
		 WHERE account_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		   AND status NOT IN ('failed', 'cancelled')`
	var count int
	err := scanSingleRow(ctx, r.sql, query, []any{accountID, start.UTC(), end.UTC()}, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *postRepository) LastPostedScheduledAt(ctx context.Context, accountID int64) (*time.Time, error) {
	query := `SELECT MAX(scheduled_at) FROM posts WHERE account_id = $1 AND status = 'posted'`
	var last sql.NullTime
	if err := scanSingleRow(ctx, r.sql, query, []any{accountID}, &last); err != nil {
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time.UTC()
	return &t, nil
}

// LeaseDue 在单事务内用 SKIP LOCKED 认领到期帖子，保证跨实例 at-most-once
func (r *postRepository) LeaseDue(ctx context.Context, dueBefore time.Time, limit int) (*service.LeasedBatch, error) {
	leasedAt := time.Now().UTC()
	batch := &service.LeasedBatch{LeasedAt: leasedAt}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM posts
			 WHERE status = 'scheduled' AND scheduled_at <= $1
			 ORDER BY scheduled_at, id
			 LIMIT $2
			 FOR UPDATE SKIP LOCKED`, dueBefore.UTC(), limit)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, limit)
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()
		if len(ids) == 0 {
			return nil
		}

		leased, err := tx.QueryContext(ctx, `
			UPDATE posts
			   SET status = 'leased', locked_at = $2, updated_at = $2
			 WHERE id = ANY($1)
			 RETURNING `+postColumns, pq.Array(ids), leasedAt)
		if err != nil {
			return err
		}
		defer func() { _ = leased.Close() }()
		for leased.Next() {
			post, err := scanPost(leased)
			if err != nil {
				return err
			}
			batch.Posts = append(batch.Posts, *post)
		}
		return leased.Err()
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// ReapExpired 看门狗：把超时租约退回 scheduled 并累加重试计数
func (r *postRepository) ReapExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE posts
		   SET status = 'scheduled', locked_at = NULL,
		       retry_count = retry_count + 1, error_code = $2, updated_at = NOW()
		 WHERE status IN ('leased', 'publishing') AND locked_at < $1`
	res, err := r.sql.ExecContext(ctx, query, cutoff.UTC(), service.ErrCodeStuckRecovered)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Heartbeat 刷新租约时间，避免长发布被看门狗误回收
func (r *postRepository) Heartbeat(ctx context.Context, id int64) error {
	_, err := r.sql.ExecContext(ctx,
		`UPDATE posts SET locked_at = NOW() WHERE id = $1 AND status IN ('leased', 'publishing')`, id)
	return err
}

func (r *postRepository) MarkPublishing(ctx context.Context, id int64) (bool, error) {
	res, err := r.sql.ExecContext(ctx,
		`UPDATE posts SET status = 'publishing', updated_at = NOW() WHERE id = $1 AND status = 'leased'`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *postRepository) MarkPosted(ctx context.Context, id int64, publishResult string) (bool, error) {
	res, err := r.sql.ExecContext(ctx, `
		UPDATE posts
		   SET status = 'posted', publish_result = $2::jsonb, error_code = NULL,
		       locked_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = 'publishing'`, id, publishResult)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *postRepository) MarkFailed(ctx context.Context, id int64, errorCode, publishResult string) (bool, error) {
	if publishResult == "" {
		publishResult = "{}"
	}
	res, err := r.sql.ExecContext(ctx, `
		UPDATE posts
		   SET status = 'failed', error_code = $2,
		       publish_result = posts.publish_result || $3::jsonb,
		       locked_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status IN ('scheduled', 'leased', 'publishing')`, id, errorCode, publishResult)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Reschedule 把在租/发布中的帖子退回 scheduled，用于重试与配额回退
func (r *postRepository) Reschedule(ctx context.Context, id int64, at time.Time, retryCount int, errorCode string) (bool, error) {
	var code any
	if errorCode != "" {
		code = errorCode
	}
	res, err := r.sql.ExecContext(ctx, `
		UPDATE posts
		   SET status = 'scheduled', scheduled_at = $2, retry_count = $3,
		       error_code = $4, locked_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status IN ('leased', 'publishing')`, id, at.UTC(), retryCount, code)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *postRepository) Cancel(ctx context.Context, id int64) (bool, error) {
	res, err := r.sql.ExecContext(ctx, `
		UPDATE posts
		   SET status = 'cancelled', locked_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status IN ('scheduled', 'leased', 'publishing')`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetPublishResult 持久化中间产物（如 container_id），崩溃后续跑依赖它
func (r *postRepository) SetPublishResult(ctx context.Context, id int64, publishResult string) error {
	_, err := r.sql.ExecContext(ctx,
		`UPDATE posts SET publish_result = $2::jsonb, updated_at = NOW() WHERE id = $1`, id, publishResult)
	return err
}

func (r *postRepository) FailAllActive(ctx context.Context, accountID int64, errorCode string) (int64, error) {
	res, err := r.sql.ExecContext(ctx, `
		UPDATE posts
		   SET status = 'failed', error_code = $2, locked_at = NULL, updated_at = NOW()
		 WHERE account_id = $1 AND status IN ('scheduled', 'leased', 'publishing')`, accountID, errorCode)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *postRepository) queryPosts(ctx context.Context, query string, args ...any) ([]service.Post, error) {
	rows, err := r.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	posts := make([]service.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}
