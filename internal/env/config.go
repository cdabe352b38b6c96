package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// Address of the nREPL peer, nrepl://<host>:<port>
	Address string `env:"NREPL_ADDRESS,default=nrepl://127.0.0.1:7888"`

	LogLevel string `env:"NREPL_LOG_LEVEL,default=info"`

	// Timeout bounds each request made by the CLI and the gateway
	Timeout time.Duration `env:"NREPL_TIMEOUT,default=10s"`

	DebugHTTP bool `env:"NREPL_DEBUG_HTTP"`
	Reuseport bool `env:"NREPL_REUSEPORT,default=true"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return loadConfig(ctx, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}
