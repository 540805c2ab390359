package repository

import (
	"context"
	"database/sql"

	"github.com/y-cruce/postflow/internal/service"
)

type mediaAssetRepository struct {
	sql sqlExecutor
}

// NewMediaAssetRepository 创建媒体资源仓储
func NewMediaAssetRepository(sqlDB *sql.DB) service.MediaAssetRepository {
	return &mediaAssetRepository{sql: sqlDB}
}

const mediaAssetColumns = `id, account_id, stored_path, media_url, bytes, sha256, short_hash, created_at`

func scanMediaAsset(row rowScanner) (*service.MediaAsset, error) {
	var a service.MediaAsset
	err := row.Scan(&a.ID, &a.AccountID, &a.StoredPath, &a.MediaURL, &a.Bytes, &a.SHA256, &a.ShortHash, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Upsert 按 (account_id, sha256) 去重；命中既有行时回填并返回 existing=true
func (r *mediaAssetRepository) Upsert(ctx context.Context, asset *service.MediaAsset) (bool, error) {
	query := `
		INSERT INTO media_assets (id, account_id, stored_path, media_url, bytes, sha256, short_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (account_id, sha256)
		DO UPDATE SET account_id = media_assets.account_id
		RETURNING ` + mediaAssetColumns + `, (xmax = 0) AS inserted`
	var (
		got      service.MediaAsset
		inserted bool
	)
	err := scanSingleRow(ctx, r.sql, query,
		[]any{asset.ID, asset.AccountID, asset.StoredPath, asset.MediaURL, asset.Bytes, asset.SHA256, asset.ShortHash},
		&got.ID, &got.AccountID, &got.StoredPath, &got.MediaURL, &got.Bytes, &got.SHA256, &got.ShortHash, &got.CreatedAt, &inserted)
	if err != nil {
		return false, mapPQError(err)
	}
	*asset = got
	return !inserted, nil
}

func (r *mediaAssetRepository) GetByID(ctx context.Context, id string) (*service.MediaAsset, error) {
	query := `SELECT ` + mediaAssetColumns + ` FROM media_assets WHERE id = $1`
	asset, err := scanMediaAsset(r.sql.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, service.ErrMediaNotFound
	}
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (r *mediaAssetRepository) List(ctx context.Context, accountID int64) ([]service.MediaAsset, error) {
	query := `SELECT ` + mediaAssetColumns + ` FROM media_assets WHERE account_id = $1 ORDER BY created_at DESC, id`
	rows, err := r.sql.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	assets := make([]service.MediaAsset, 0)
	for rows.Next() {
		asset, err := scanMediaAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *mediaAssetRepository) Delete(ctx context.Context, id string) error {
	res, err := r.sql.ExecContext(ctx, `DELETE FROM media_assets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return service.ErrMediaNotFound
	}
	return nil
}
