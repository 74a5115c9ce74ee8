package config

import (
	"fmt"
	"os"
)

type AppConfig struct {
	Token       string
	GatewayURL  string
	HTTPBaseURL string
	StatusAddr  string
	LogFile     string
	AppEnv      string
}

// Load reads the process environment. The token is mandatory, the
// rest fall back to sensible defaults.
func Load() (AppConfig, error) {
	cfg := AppConfig{}
	requiredEnv := map[string]*string{
		"LORELEI_TOKEN": &cfg.Token,
	}
	for k, v := range requiredEnv {
		val, ok := os.LookupEnv(k)
		if !ok {
			return cfg, fmt.Errorf("provide: %s", k)
		}
		*v = val
	}
	optionalEnv := map[string]*string{
		"LORELEI_GATEWAY_URL":   &cfg.GatewayURL,
		"LORELEI_HTTP_BASE_URL": &cfg.HTTPBaseURL,
		"LORELEI_STATUS_ADDR":   &cfg.StatusAddr,
		"LORELEI_LOG_FILE":      &cfg.LogFile,
		"APP_ENV":               &cfg.AppEnv,
	}
	for k, v := range optionalEnv {
		if val, ok := os.LookupEnv(k); ok {
			*v = val
		}
	}
	if cfg.StatusAddr == "" {
		cfg.StatusAddr = ":8787"
	}
	return cfg, nil
}
