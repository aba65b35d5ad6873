//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"govibe/internal/cleanup"
	"govibe/internal/config"
	"govibe/internal/dbmongo"
	"govibe/internal/gateway"
)

func InitializeApplication() (*Application, error) {
	wire.Build(
		config.Load,
		ProvideLogger,
		dbmongo.NewMongoConnection,
		ProvideStore,
		ProvideJWT,
		ProvideUploader,
		ProvideChatOptions,
		gateway.NewServer,
		cleanup.NewService,
		wire.Struct(new(Application), "*"),
	)
	return &Application{}, nil
}
