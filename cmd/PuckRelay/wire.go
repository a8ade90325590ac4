//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"PuckRelay/internal/biz"
	"PuckRelay/internal/conf"
	"PuckRelay/internal/data"
	"PuckRelay/internal/server"
	"PuckRelay/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Providers, *conf.Pipeline, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newRateLimitSweeper,
		newApp,
	))
}
