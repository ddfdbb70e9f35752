package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"taskboard/internal/history"
)

// Config models taskboard.yml.
type Config struct {
	Columns       []ColumnConfig `yaml:"columns"`
	DefaultColumn string         `yaml:"default_column"`
	History       struct {
		Depth int `yaml:"depth"`
	} `yaml:"history"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
}

// ColumnConfig declares one board column. A nil Limit means the column
// accepts any number of cards; an explicit 0 admits none.
type ColumnConfig struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Limit *int   `yaml:"limit"`
}

type StorageConfig struct {
	Backend string   `yaml:"backend"`
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	DisableChecksum bool   `yaml:"disable_checksum"`
}

type ServerConfig struct {
	Addr       string `yaml:"addr"`
	BasePath   string `yaml:"base_path"`
	AuthSecret string `yaml:"auth_secret"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Columns) == 0 {
		return fmt.Errorf("config.columns must declare at least one column")
	}
	seen := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		if col.ID == "" {
			return fmt.Errorf("config.columns contains empty column id")
		}
		if seen[col.ID] {
			return fmt.Errorf("config.columns contains duplicate column id %s", col.ID)
		}
		seen[col.ID] = true
		if col.Limit != nil && *col.Limit < 0 {
			return fmt.Errorf("column %s has negative limit %d", col.ID, *col.Limit)
		}
	}
	if c.DefaultColumn != "" && !seen[c.DefaultColumn] {
		return fmt.Errorf("config.default_column references unknown column %s", c.DefaultColumn)
	}
	if c.History.Depth < 0 {
		return fmt.Errorf("config.history.depth must not be negative")
	}
	switch c.Storage.Backend {
	case "", "file", "sqlite", "memory":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("config.storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config.storage.backend must be one of file, sqlite, s3, memory")
	}
	return nil
}

// ColumnIDs returns the configured column ids in board order.
func (c *Config) ColumnIDs() []string {
	ids := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		ids = append(ids, col.ID)
	}
	return ids
}

// Limits returns the WIP limit per column id. Columns without a limit are
// absent from the map.
func (c *Config) Limits() map[string]int {
	limits := make(map[string]int)
	for _, col := range c.Columns {
		if col.Limit != nil {
			limits[col.ID] = *col.Limit
		}
	}
	return limits
}

// Title returns the display title for a column, falling back to its id.
func (c *Config) Title(columnID string) string {
	for _, col := range c.Columns {
		if col.ID == columnID {
			if col.Title != "" {
				return col.Title
			}
			return col.ID
		}
	}
	return columnID
}

// DefaultColumnID is where adds land when no column is given.
func (c *Config) DefaultColumnID() string {
	if c.DefaultColumn != "" {
		return c.DefaultColumn
	}
	return c.Columns[0].ID
}

// HistoryDepth returns the configured undo cap, defaulted when unset.
func (c *Config) HistoryDepth() int {
	if c.History.Depth > 0 {
		return c.History.Depth
	}
	return history.DefaultDepth
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in default Config.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `columns:
  - id: backlog
    title: Backlog
  - id: todo
    title: To Do
  - id: in-progress
    title: In Progress
    limit: 3
  - id: done
    title: Done

default_column: backlog

history:
  depth: 100

storage:
  backend: file

server:
  addr: ":8080"
  base_path: /v1
`
