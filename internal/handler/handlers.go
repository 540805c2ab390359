package handler

import "github.com/google/wire"

// ProviderSet 提供 handler 层的依赖
var ProviderSet = wire.NewSet(
	NewAccountHandler,
	NewPostHandler,
	NewBatchHandler,
	NewMediaHandler,
	NewSystemHandler,
	NewHandlers,
)

// Handlers 聚合全部 HTTP handler，供路由注册使用
type Handlers struct {
	Account *AccountHandler
	Post    *PostHandler
	Batch   *BatchHandler
	Media   *MediaHandler
	System  *SystemHandler
}

func NewHandlers(
	account *AccountHandler,
	post *PostHandler,
	batch *BatchHandler,
	media *MediaHandler,
	system *SystemHandler,
) *Handlers {
	return &Handlers{
		Account: account,
		Post:    post,
		Batch:   batch,
		Media:   media,
		System:  system,
	}
}
