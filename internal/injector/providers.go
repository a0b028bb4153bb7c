package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/ipcq/internal/config"
	"github.com/zeusync/ipcq/internal/core/observability/log"
	"github.com/zeusync/ipcq/internal/demo"
)

var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	demo.NewRunner,
)

// ProvideConfig loads path, or returns the defaults when path is empty.
func ProvideConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// ProvideLogger builds the process logger from the log section. It becomes
// the default returned by log.Provide.
func ProvideLogger(cfg *config.Config) (*log.Logger, error) {
	return log.NewWithOptions(log.Options{
		Level:    log.ParseLevel(cfg.Log.Level),
		Encoding: cfg.Log.Encoding,
	})
}
