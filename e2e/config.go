package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// CHATCORE_ADDR is the base URL of a running server, e.g. http://localhost:8080.
	// The suites are skipped when it is empty.
	Addr      string `envconfig:"CHATCORE_ADDR"`
	JWTSecret string `envconfig:"JWT_SECRET"`
	// E2E_DEBUG_JSON allows dumping full request/response bodies
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
