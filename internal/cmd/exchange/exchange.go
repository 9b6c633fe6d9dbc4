// Package exchange parses exchange service flags and launches the service.
package exchange

import (
	"context"
	"flag"

	entrypoint "github.com/skillswaphq/skillswap/internal/platform/cmd"
	server "github.com/skillswaphq/skillswap/internal/services/exchange/app"
)

// Config holds exchange command configuration.
type Config struct {
	Port int `env:"SKILLSWAP_EXCHANGE_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The exchange HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the exchange HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceExchange, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
