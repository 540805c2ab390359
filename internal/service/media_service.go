package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"mime"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const slugMaxRunes = 60

// UploadInput 上传参数；Data 为整个文件内容，哈希去重需要全量字节。
type UploadInput struct {
	AccountID   int64
	FileName    string
	ContentType string
	Caption     string
	Data        []byte
}

// UploadResult 上传结果。Deduplicated 表示内容命中已有资产，本次没有写对象
// 存储。
type UploadResult struct {
	Asset           *MediaAsset
	CaptionInferred string
	Deduplicated    bool
}

// MediaService 素材上传与去重。同账号内按内容寻址（sha256），重复内容直接
// 返回已有资产。对象键带账号、日期、句柄和内容短哈希，方便在桶里人工翻找。
type MediaService struct {
	assets   MediaAssetRepository
	accounts AccountRepository
	store    ObjectStore
	clock    Clock
}

func NewMediaService(assets MediaAssetRepository, accounts AccountRepository, store ObjectStore, clock Clock) *MediaService {
	return &MediaService{
		assets:   assets,
		accounts: accounts,
		store:    store,
		clock:    clock,
	}
}

// Upload 落库并写对象存储。先插资产行占住 (account_id, sha256)，命中已有行
// 就跳过存储写入；新行写存储失败时回删资产行。
func (s *MediaService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if s.store == nil {
		return nil, ErrMediaStorageDisabled
	}
	if len(in.Data) == 0 {
		return nil, ErrEmptyUpload
	}
	account, err := s.accounts.GetByID(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(in.Data)
	shaHex := hex.EncodeToString(sum[:])
	shortHash := shaHex[:8]

	slug := in.Caption
	if strings.TrimSpace(slug) == "" {
		slug = strings.TrimSuffix(in.FileName, path.Ext(in.FileName))
	}
	slug = slugify(slug)
	ext := inferExt(in.FileName, in.ContentType)

	when := s.clock.Now().In(account.Location())
	fileName := fmt.Sprintf("%s_%s_%s_%s.%s", when.Format("20060102_1504"), account.Handle, slug, shortHash, ext)
	key := fmt.Sprintf("%d/%s/%s", in.AccountID, when.Format("2006/01/02"), fileName)

	mediaURL, err := s.store.URL(ctx, key)
	if err != nil {
		return nil, err
	}

	asset := &MediaAsset{
		ID:         uuid.NewString(),
		AccountID:  in.AccountID,
		StoredPath: key,
		MediaURL:   mediaURL,
		Bytes:      int64(len(in.Data)),
		SHA256:     shaHex,
		ShortHash:  shortHash,
	}
	existing, err := s.assets.Upsert(ctx, asset)
	if err != nil {
		return nil, err
	}
	inferred := strings.TrimSpace(in.Caption)
	if inferred == "" {
		inferred = slug
	}
	if existing {
		log.Printf("[Media] dedupe hit: account_id=%d sha256=%s asset_id=%s", in.AccountID, shortHash, asset.ID)
		return &UploadResult{Asset: asset, CaptionInferred: inferred, Deduplicated: true}, nil
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.store.Put(ctx, key, in.Data, contentType); err != nil {
		if delErr := s.assets.Delete(ctx, asset.ID); delErr != nil {
			log.Printf("[Media] orphan asset row after failed put: asset_id=%s err=%v", asset.ID, delErr)
		}
		return nil, err
	}
	log.Printf("[Media] uploaded: account_id=%d asset_id=%s key=%s bytes=%d", in.AccountID, asset.ID, key, asset.Bytes)
	return &UploadResult{Asset: asset, CaptionInferred: inferred}, nil
}

// List 返回账号的资产，按上传时间倒序。预签名模式下刷新出新的可用 URL。
func (s *MediaService) List(ctx context.Context, accountID int64) ([]MediaAsset, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	assets, err := s.assets.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		for i := range assets {
			if fresh, urlErr := s.store.URL(ctx, assets[i].StoredPath); urlErr == nil {
				assets[i].MediaURL = fresh
			}
		}
	}
	return assets, nil
}

func (s *MediaService) Get(ctx context.Context, id string) (*MediaAsset, error) {
	return s.assets.GetByID(ctx, id)
}

// Delete 先尽力删对象再删行；对象删不掉只记日志，行必须删成。
func (s *MediaService) Delete(ctx context.Context, id string) error {
	asset, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, asset.StoredPath); err != nil {
			log.Printf("[Media] object delete failed: asset_id=%s key=%s err=%v", id, asset.StoredPath, err)
		}
	}
	if err := s.assets.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[Media] deleted: asset_id=%s account_id=%d", id, asset.AccountID)
	return nil
}

// slugify 压成小写字母数字加连字符，限长 60 个 rune，空结果退回 "post"。
func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '-' })
	slug := strings.Join(parts, "-")
	if runes := []rune(slug); len(runes) > slugMaxRunes {
		slug = string(runes[:slugMaxRunes])
	}
	if slug == "" {
		return "post"
	}
	return slug
}

// inferExt 先看文件名后缀，再按 MIME 猜，最后兜底 bin。
func inferExt(fileName, contentType string) string {
	if ext := strings.TrimPrefix(path.Ext(fileName), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}
