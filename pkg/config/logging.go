package config

import (
	"fmt"
)

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"title=Level,enum=debug,enum=info,enum=warn,enum=error,default=info"`

	// Format is text or json.
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"title=Format,enum=text,enum=json,default=text"`

	// File, when set, appends logs to this path instead of stderr.
	File string `yaml:"file,omitempty" json:"file,omitempty" jsonschema:"title=File,description=Optional log file path"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}

// ObservabilityConfig controls metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" jsonschema:"title=Metrics"`
	Tracing TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty" jsonschema:"title=Tracing"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,default=true"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty" jsonschema:"title=Path,default=/metrics"`
}

// TracingConfig controls the otel tracer. Disabled by default: tracing
// exports leave the machine, which the deployment owner must opt into.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,default=false"`
	Exporter     string  `yaml:"exporter,omitempty" json:"exporter,omitempty" jsonschema:"title=Exporter,enum=otlp,enum=stdout,default=stdout"`
	EndpointURL  string  `yaml:"endpoint_url,omitempty" json:"endpoint_url,omitempty" jsonschema:"title=Endpoint URL,description=OTLP gRPC endpoint"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty" jsonschema:"title=Sampling Rate,minimum=0,maximum=1,default=1"`
	ServiceName  string  `yaml:"service_name,omitempty" json:"service_name,omitempty" jsonschema:"title=Service Name,default=mizan"`
}

func (c *ObservabilityConfig) SetDefaults() {
	if c.Metrics.Enabled == nil {
		t := true
		c.Metrics.Enabled = &t
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "mizan"
	}
}

func (c *ObservabilityConfig) Validate() error {
	switch c.Tracing.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("unknown tracing exporter %q", c.Tracing.Exporter)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.EndpointURL == "" {
		return fmt.Errorf("tracing.endpoint_url is required for the otlp exporter")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate must be within [0,1]")
	}
	return nil
}
