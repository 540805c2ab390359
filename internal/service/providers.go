package service

import (
	"github.com/y-cruce/postflow/internal/config"
	"github.com/y-cruce/postflow/internal/pkg/instagram"

	"github.com/google/wire"
)

// ProviderSet 提供业务层的依赖
var ProviderSet = wire.NewSet(
	SystemClock,
	ProvidePlatformAPI,
	NewPostService,
	NewAccountService,
	NewPlannerService,
	NewMediaService,
	NewRateGovernor,
	NewPublisherService,
	NewSchedulerService,
	NewMaintenanceService,
)

// ProvidePlatformAPI 构造 Graph API 客户端
func ProvidePlatformAPI(cfg *config.Config) PlatformAPI {
	return instagram.NewClient(
		instagram.WithBaseURL(cfg.Instagram.GraphBaseURL),
		instagram.WithVersion(cfg.Instagram.APIVersion),
		instagram.WithTimeout(cfg.Instagram.Timeout()),
	)
}
