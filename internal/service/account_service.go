package service

import (
	"context"
	"log"
	"time"

	"github.com/y-cruce/postflow/internal/pkg/instagram"
)

// AccountService 账号目录与冻结控制。冻结立刻把该账号所有未终结的帖子置为
// failed，解冻顺带清零连续失败计数。
type AccountService struct {
	accounts AccountRepository
	posts    PostRepository
	cache    AccountSnapshotCache
	client   PlatformAPI
	clock    Clock
}

func NewAccountService(accounts AccountRepository, posts PostRepository, cache AccountSnapshotCache, client PlatformAPI, clock Clock) *AccountService {
	return &AccountService{
		accounts: accounts,
		posts:    posts,
		cache:    cache,
		client:   client,
		clock:    clock,
	}
}

// List 返回全部账号，active 非 nil 时按激活状态过滤。
func (s *AccountService) List(ctx context.Context, active *bool) ([]Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return accounts, nil
	}
	filtered := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Active == *active {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

func (s *AccountService) Get(ctx context.Context, id int64) (*Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// Refresh 用长效令牌发现名下的 IG 商业账号并入库。已有账号只更新 handle 与
// 令牌，时区在首次入库后不再被发现流程覆盖。token 为空时只返回现有列表。
func (s *AccountService) Refresh(ctx context.Context, token, timezone string) (int, []Account, error) {
	if token == "" {
		accounts, err := s.accounts.List(ctx)
		return 0, accounts, err
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return 0, nil, ErrInvalidTimezone
	}

	discovered, err := s.client.DiscoverBusinessAccounts(ctx, token)
	if err != nil {
		return 0, nil, err
	}
	upserted := 0
	for _, info := range discovered {
		account := &Account{
			PlatformUserID: info.UserID,
			Handle:         info.Username,
			AccessToken:    token,
			Timezone:       timezone,
			Active:         true,
		}
		if err := s.accounts.Create(ctx, account); err != nil {
			return upserted, nil, err
		}
		s.dropSnapshot(account.ID)
		upserted++
	}
	log.Printf("[Account] refresh: discovered=%d upserted=%d", len(discovered), upserted)

	accounts, err := s.accounts.List(ctx)
	return upserted, accounts, err
}

// Freeze 人工冻结：账号下所有未终结的帖子立刻置为 failed(account_frozen)，
// 返回被失败掉的帖子数。
func (s *AccountService) Freeze(ctx context.Context, id int64) (int64, error) {
	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		return 0, err
	}
	if err := s.accounts.SetActive(ctx, id, false, PauseReasonManual); err != nil {
		return 0, err
	}
	s.dropSnapshot(id)
	failed, err := s.posts.FailAllActive(ctx, id, ErrCodeAccountFrozen)
	if err != nil {
		return 0, err
	}
	log.Printf("[Account] frozen: account_id=%d failed_posts=%d", id, failed)
	return failed, nil
}

// Unfreeze 解冻并清零连续失败计数。已失败的帖子不会复活。
func (s *AccountService) Unfreeze(ctx context.Context, id int64) error {
	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.accounts.SetActive(ctx, id, true, ""); err != nil {
		return err
	}
	s.dropSnapshot(id)
	log.Printf("[Account] unfrozen: account_id=%d", id)
	return nil
}

// ClearOldPosts 删除该账号 scheduled_at 早于当前时刻的所有帖子，含历史终态行。
func (s *AccountService) ClearOldPosts(ctx context.Context, id int64) (int64, error) {
	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		return 0, err
	}
	deleted, err := s.posts.DeleteBefore(ctx, id, s.clock.Now())
	if err != nil {
		return 0, err
	}
	log.Printf("[Account] old posts cleared: account_id=%d deleted=%d", id, deleted)
	return deleted, nil
}

// CheckTokens 巡检激活账号的令牌。被平台判定失效的账号暂停并快速失败其排队
// 帖子；网络类错误只记日志，等下一轮。
func (s *AccountService) CheckTokens(ctx context.Context) (checked, paused int, err error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	for i := range accounts {
		account := &accounts[i]
		if !account.Active {
			continue
		}
		checked++
		_, infoErr := s.client.GetAccountInfo(ctx, account.AccessToken)
		if infoErr == nil {
			continue
		}
		if !instagram.IsAuthError(infoErr) {
			log.Printf("[Account] token check skipped: account_id=%d err=%v", account.ID, infoErr)
			continue
		}
		if err := s.accounts.SetActive(ctx, account.ID, false, PauseReasonTokenInvalid); err != nil {
			return checked, paused, err
		}
		s.dropSnapshot(account.ID)
		failed, failErr := s.posts.FailAllActive(ctx, account.ID, ErrCodeTokenInvalid)
		if failErr != nil {
			return checked, paused, failErr
		}
		paused++
		log.Printf("[Account] token invalid, paused: account_id=%d handle=%s failed_posts=%d",
			account.ID, account.Handle, failed)
	}
	return checked, paused, nil
}

func (s *AccountService) dropSnapshot(id int64) {
	if s.cache != nil {
		s.cache.Del(id)
	}
}
