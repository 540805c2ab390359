//go:build wireinject
// +build wireinject

package main

import (
	"github.com/y-cruce/postflow/internal/config"
	"github.com/y-cruce/postflow/internal/handler"
	"github.com/y-cruce/postflow/internal/repository"
	"github.com/y-cruce/postflow/internal/server"
	"github.com/y-cruce/postflow/internal/service"

	"github.com/google/wire"
)

func initializeApp(cfg *config.Config) (*App, error) {
	wire.Build(
		repository.ProviderSet,
		service.ProviderSet,
		handler.ProviderSet,
		server.ProviderSet,
		newApp,
	)
	return nil, nil
}
