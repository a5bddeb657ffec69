// Package config loads the tabula.yaml file describing which ledgers a
// deployment serves and how.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/asaidimu/go-tabula/core/view"
	"github.com/asaidimu/go-tabula/export"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvAddr     = "TABULA_ADDR"
	EnvLogLevel = "TABULA_LOG_LEVEL"
	EnvDatabase = "TABULA_DATABASE"
)

// Source types.
const (
	SourceJSON   = "json"
	SourceSQLite = "sqlite"
	SourceStatic = "static"
)

// Config is the root of tabula.yaml.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ledgers  []LedgerConfig `yaml:"ledgers" validate:"required,min=1,unique=Name,dive"`
}

// LoggingConfig selects the logger built by NewLogger.
type LoggingConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
	Encoding    string `yaml:"encoding" validate:"omitempty,oneof=json console"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	CORSOrigins  []string      `yaml:"corsOrigins" validate:"dive,eq=*|http_url"`
	ReadTimeout  time.Duration `yaml:"readTimeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"writeTimeout" validate:"gte=0"`
}

// DatabaseConfig points at the SQLite file backing sqlite sources.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	TablePrefix string `yaml:"tablePrefix"`
}

// LedgerConfig declares one ledger.
type LedgerConfig struct {
	Name   string                  `yaml:"name" validate:"required"`
	Title  string                  `yaml:"title"`
	Schema schema.SchemaDefinition `yaml:"schema"`
	View   view.Definition         `yaml:"view"`
	Export ExportConfig            `yaml:"export"`
	Source SourceConfig            `yaml:"source"`
}

// ExportConfig lists the exported columns in order.
type ExportConfig struct {
	Columns []export.Column `yaml:"columns" validate:"dive"`
	// RowNumbers defaults to true, matching the ledger pages.
	RowNumbers *bool `yaml:"rowNumbers"`
}

// SourceConfig says where a ledger's records come from.
type SourceConfig struct {
	Type string `yaml:"type" validate:"required,oneof=json sqlite static"`
	// Path is the file read by json sources.
	Path string `yaml:"path" validate:"required_if=Type json"`
	// Table is the sqlite table. Empty uses the schema name.
	Table string `yaml:"table"`
	// Records are served by static sources.
	Records []schema.Document `yaml:"records"`
}

// Default returns the settings applied before the file is read.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Encoding: "json"},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: "tabula.db"},
	}
}

// Load reads a config file, applies environment overrides and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates config bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if addr := os.Getenv(EnvAddr); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
	if db := os.Getenv(EnvDatabase); db != "" {
		c.Database.Path = db
	}
}

var validate = validator.New()

// Validate checks struct tags and then each ledger schema.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	for i := range c.Ledgers {
		l := &c.Ledgers[i]
		if l.Schema.Name == "" {
			l.Schema.Name = l.Name
		}
		l.Schema.Normalize()
		if err := l.Schema.Validate(); err != nil {
			return fmt.Errorf("invalid config: ledger '%s': %w", l.Name, err)
		}
		if l.Source.Type == SourceSQLite && c.Database.Path == "" {
			return fmt.Errorf("invalid config: ledger '%s' reads sqlite but database.path is empty", l.Name)
		}
	}
	return nil
}

// Ledger returns the named ledger's config.
func (c *Config) Ledger(name string) (*LedgerConfig, bool) {
	for i := range c.Ledgers {
		if c.Ledgers[i].Name == name {
			return &c.Ledgers[i], true
		}
	}
	return nil, false
}

// RowNumbersEnabled reports whether exports carry the "No" column.
func (e ExportConfig) RowNumbersEnabled() bool {
	return e.RowNumbers == nil || *e.RowNumbers
}
