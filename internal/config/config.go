package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvRedisURL   = "BOTGRAPH_REDIS_URL"
	EnvDBPassword = "BOTGRAPH_DB_PASSWORD"
	EnvPort       = "BOTGRAPH_PORT"
)

// Definition sources.
const (
	SourceFile = "file"
	SourceSQL  = "sql"
)

// Database types.
const (
	DBSQLite   = "sqlite"
	DBPostgres = "postgres"
)

// Trace backends.
const (
	TraceSQL   = "sql"
	TraceRedis = "redis"
	TraceNone  = "none"
)

// ServerSettings holds the listener details.
type ServerSettings struct {
	Port int `yaml:"port"`
}

// LogSettings selects the log level and output format.
type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefinitionSettings selects where graph definitions are read from.
type DefinitionSettings struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
}

// DataSource holds the database connection details.
type DataSource struct {
	Type     string `yaml:"type"`
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"`
	Options  string `yaml:"options"`
}

// TraceSettings configures trace retention.
type TraceSettings struct {
	HistorySize int    `yaml:"history_size"`
	Backend     string `yaml:"backend"`
	RedisURL    string `yaml:"redis_url"`
	// TTLSeconds bounds how long Redis keeps a trace. Zero keeps it forever.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the trace TTL as a duration.
func (t TraceSettings) TTL() time.Duration {
	return time.Duration(t.TTLSeconds) * time.Second
}

// EngineSettings bounds graph runs.
type EngineSettings struct {
	MaxDepth          int `yaml:"max_depth"`
	MaxLoopIterations int `yaml:"max_loop_iterations"`
}

// Settings is the complete server configuration.
type Settings struct {
	Server      ServerSettings     `yaml:"server"`
	Log         LogSettings        `yaml:"log"`
	Definitions DefinitionSettings `yaml:"definitions"`
	Database    DataSource         `yaml:"database"`
	Traces      TraceSettings      `yaml:"traces"`
	Engine      EngineSettings     `yaml:"engine"`
	// Owners are loaded at startup.
	Owners []string `yaml:"owners"`
}

// Default returns the settings used when nothing is configured.
func Default() *Settings {
	return &Settings{
		Server:      ServerSettings{Port: 8080},
		Log:         LogSettings{Level: "info", Format: "json"},
		Definitions: DefinitionSettings{Source: SourceFile, Path: "graphs"},
		Database:    DataSource{Type: DBSQLite, Path: "botgraph.db"},
		Traces:      TraceSettings{HistorySize: 50, Backend: TraceNone},
		Engine:      EngineSettings{MaxDepth: 1024, MaxLoopIterations: 1000},
	}
}

// Load reads envFile (if it exists) into the process environment, then the
// YAML file at path (if non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path, envFile string) (*Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	if v, ok := os.LookupEnv(EnvRedisURL); ok {
		s.Traces.RedisURL = v
	}
	if v, ok := os.LookupEnv(EnvDBPassword); ok {
		s.Database.Password = v
	}
	if v, ok := os.LookupEnv(EnvPort); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		s.Server.Port = port
	}
	return nil
}

// Validate reports every invalid setting.
func (s *Settings) Validate() error {
	var errs []error
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", s.Server.Port))
	}
	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got '%s'", s.Log.Level))
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be 'text' or 'json', got '%s'", s.Log.Format))
	}
	switch s.Definitions.Source {
	case SourceFile:
		if s.Definitions.Path == "" {
			errs = append(errs, errors.New("definitions.path is required for the file source"))
		}
	case SourceSQL:
	default:
		errs = append(errs, fmt.Errorf("definitions.source must be '%s' or '%s', got '%s'", SourceFile, SourceSQL, s.Definitions.Source))
	}

	needDB := s.Definitions.Source == SourceSQL || s.Traces.Backend == TraceSQL
	if needDB {
		switch s.Database.Type {
		case DBSQLite:
			if s.Database.Path == "" {
				errs = append(errs, errors.New("database.path is required for sqlite"))
			}
		case DBPostgres:
			if s.Database.Hostname == "" || s.Database.Name == "" {
				errs = append(errs, errors.New("database.hostname and database.name are required for postgres"))
			}
		default:
			errs = append(errs, fmt.Errorf("database.type must be '%s' or '%s', got '%s'", DBSQLite, DBPostgres, s.Database.Type))
		}
	}

	switch s.Traces.Backend {
	case TraceNone, TraceSQL:
	case TraceRedis:
		if s.Traces.RedisURL == "" {
			errs = append(errs, fmt.Errorf("traces.redis_url (or %s) is required for the redis backend", EnvRedisURL))
		}
	default:
		errs = append(errs, fmt.Errorf("traces.backend must be '%s', '%s' or '%s', got '%s'", TraceSQL, TraceRedis, TraceNone, s.Traces.Backend))
	}
	if s.Traces.HistorySize < 0 {
		errs = append(errs, errors.New("traces.history_size must not be negative"))
	}
	if s.Engine.MaxDepth < 0 || s.Engine.MaxLoopIterations < 0 {
		errs = append(errs, errors.New("engine limits must not be negative"))
	}
	return errors.Join(errs...)
}
