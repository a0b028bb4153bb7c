//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/ipcq/internal/config"
	"github.com/zeusync/ipcq/internal/demo"
)

func InitializeRunner(cfg *config.Config) (*demo.Runner, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
