package app

import "errors"

// Config holds the process-level options an App is started with. Empty
// fields leave the settings file (or its defaults) in charge.
type Config struct {
	ConfigPath string // YAML settings file, optional
	EnvFile    string // .env file, loaded when present

	LogFormat  string
	LogLevel   string
	Port       int // -1 keeps the configured port
	GraphsPath string
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Port < -1 || cfg.Port > 65535 {
		return nil, errors.New("port must be between 0 and 65535")
	}
	return &cfg, nil
}
