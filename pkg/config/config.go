// Package config defines the service configuration tree and its
// loading pipeline: read bytes from a provider, parse YAML, expand
// environment references, decode, default, validate.
package config

import (
	"fmt"
)

// Config is the root of the configuration tree.
type Config struct {
	LLM           LLMConfig           `yaml:"llm,omitempty" json:"llm,omitempty" jsonschema:"title=LLM,description=Local model runtime settings"`
	Store         StoreConfig         `yaml:"store,omitempty" json:"store,omitempty" jsonschema:"title=Store,description=Semantic store settings"`
	Cache         CacheConfig         `yaml:"cache,omitempty" json:"cache,omitempty" jsonschema:"title=Cache,description=Session cache settings"`
	Router        RouterConfig        `yaml:"router,omitempty" json:"router,omitempty" jsonschema:"title=Router,description=Query understanding settings"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator,omitempty" json:"orchestrator,omitempty" jsonschema:"title=Orchestrator,description=Analysis run settings"`
	Ingest        IngestConfig        `yaml:"ingest,omitempty" json:"ingest,omitempty" jsonschema:"title=Ingest,description=Upload parsing and watching"`
	Server        ServerConfig        `yaml:"server,omitempty" json:"server,omitempty" jsonschema:"title=Server,description=HTTP server settings"`
	Auth          AuthConfig          `yaml:"auth,omitempty" json:"auth,omitempty" jsonschema:"title=Auth,description=Session token verification"`
	Audit         AuditConfig         `yaml:"audit,omitempty" json:"audit,omitempty" jsonschema:"title=Audit,description=Local usage bookkeeping"`
	Logging       LoggingConfig       `yaml:"logging,omitempty" json:"logging,omitempty" jsonschema:"title=Logging,description=Log output settings"`
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty" jsonschema:"title=Observability,description=Metrics and tracing"`
}

// SetDefaults applies defaults across the whole tree.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Store.SetDefaults()
	c.Cache.SetDefaults()
	c.Router.SetDefaults()
	c.Orchestrator.SetDefaults()
	c.Ingest.SetDefaults()
	c.Server.SetDefaults()
	c.Auth.SetDefaults()
	c.Audit.SetDefaults()
	c.Logging.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks the whole tree.
func (c *Config) Validate() error {
	validators := []struct {
		name string
		fn   func() error
	}{
		{"llm", c.LLM.Validate},
		{"store", c.Store.Validate},
		{"cache", c.Cache.Validate},
		{"router", c.Router.Validate},
		{"orchestrator", c.Orchestrator.Validate},
		{"ingest", c.Ingest.Validate},
		{"server", c.Server.Validate},
		{"auth", c.Auth.Validate},
		{"audit", c.Audit.Validate},
		{"logging", c.Logging.Validate},
		{"observability", c.Observability.Validate},
	}
	for _, v := range validators {
		if err := v.fn(); err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
	}
	return nil
}

// Default returns a fully defaulted configuration, the zero-config path.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// CacheConfig controls the session insight cache.
type CacheConfig struct {
	// TTLHours is the cached-insights lifetime.
	TTLHours int `yaml:"ttl_hours,omitempty" json:"ttl_hours,omitempty" jsonschema:"title=TTL Hours,description=Cached insights lifetime in hours,minimum=1,default=24"`
}

func (c *CacheConfig) SetDefaults() {
	if c.TTLHours == 0 {
		c.TTLHours = 24
	}
}

func (c *CacheConfig) Validate() error {
	if c.TTLHours < 1 {
		return fmt.Errorf("ttl_hours must be at least 1, got %d", c.TTLHours)
	}
	return nil
}

// RouterConfig controls query understanding.
type RouterConfig struct {
	// MinConfidence below which routing falls back to the conservative
	// default agent for the document type.
	MinConfidence float64 `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty" jsonschema:"title=Min Confidence,description=Routing confidence floor,minimum=0,maximum=1,default=0.5"`
}

func (c *RouterConfig) SetDefaults() {
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.5
	}
}

func (c *RouterConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0,1], got %v", c.MinConfidence)
	}
	return nil
}

// OrchestratorConfig controls analysis runs.
type OrchestratorConfig struct {
	// InsightsTimeoutMinutes bounds one full insights run.
	InsightsTimeoutMinutes int `yaml:"insights_timeout_minutes,omitempty" json:"insights_timeout_minutes,omitempty" jsonschema:"title=Insights Timeout,description=Hard timeout for a full insights run in minutes,minimum=1,default=30"`

	// MaxSources caps exemplar records attached to each agent result.
	MaxSources int `yaml:"max_sources,omitempty" json:"max_sources,omitempty" jsonschema:"title=Max Sources,description=Exemplar records per agent result,minimum=0,default=5"`
}

func (c *OrchestratorConfig) SetDefaults() {
	if c.InsightsTimeoutMinutes == 0 {
		c.InsightsTimeoutMinutes = 30
	}
	if c.MaxSources == 0 {
		c.MaxSources = 5
	}
}

func (c *OrchestratorConfig) Validate() error {
	if c.InsightsTimeoutMinutes < 1 {
		return fmt.Errorf("insights_timeout_minutes must be at least 1, got %d", c.InsightsTimeoutMinutes)
	}
	if c.MaxSources < 0 {
		return fmt.Errorf("max_sources must not be negative, got %d", c.MaxSources)
	}
	return nil
}

// IngestConfig controls upload parsing and the optional drop folder.
type IngestConfig struct {
	// WatchDir, when set, is scanned for drop-folder uploads named
	// <session>_<type>.<ext>.
	WatchDir string `yaml:"watch_dir,omitempty" json:"watch_dir,omitempty" jsonschema:"title=Watch Directory,description=Optional drop folder for local uploads"`

	// MaxFileMB caps accepted upload size.
	MaxFileMB int `yaml:"max_file_mb,omitempty" json:"max_file_mb,omitempty" jsonschema:"title=Max File MB,description=Maximum upload size in megabytes,minimum=1,default=20"`
}

func (c *IngestConfig) SetDefaults() {
	if c.MaxFileMB == 0 {
		c.MaxFileMB = 20
	}
}

func (c *IngestConfig) Validate() error {
	if c.MaxFileMB < 1 {
		return fmt.Errorf("max_file_mb must be at least 1, got %d", c.MaxFileMB)
	}
	return nil
}

// AuditConfig controls local usage bookkeeping.
type AuditConfig struct {
	// Enabled turns the sqlite audit log on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Record upload and query bookkeeping,default=false"`

	// Path is the sqlite database file.
	Path string `yaml:"path,omitempty" json:"path,omitempty" jsonschema:"title=Path,description=SQLite file for audit records,default=mizan_audit.db"`
}

func (c *AuditConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "mizan_audit.db"
	}
}

func (c *AuditConfig) Validate() error {
	if c.Enabled && c.Path == "" {
		return fmt.Errorf("path is required when audit is enabled")
	}
	return nil
}
