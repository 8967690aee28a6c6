// Package config holds the application configuration: source directories,
// database connections, ingest tuning, and the ambient system settings.
// Values come from a YAML file with ${VAR} environment placeholders, overlaid
// on defaults.
package config

import (
	"time"

	"github.com/mitchellh/mapstructure"

	"epingest/internal/domain/model"
	"epingest/internal/support/exception"
)

const stage = "config"

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" mapstructure:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds one named database connection's settings. Path is used
// by sqlite; the network fields by postgres and mysql.
type DatabaseConfig struct {
	Type     string     `yaml:"type" mapstructure:"type"`
	Host     string     `yaml:"host" mapstructure:"host"`
	Port     int        `yaml:"port" mapstructure:"port"`
	Database string     `yaml:"database" mapstructure:"database"`
	User     string     `yaml:"user" mapstructure:"user"`
	Password string     `yaml:"password" mapstructure:"password"`
	Sslmode  string     `yaml:"sslmode" mapstructure:"sslmode"`
	Path     string     `yaml:"path" mapstructure:"path"`
	Pool     PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// IngestConfig tunes the incremental uploader and the per-building runner.
type IngestConfig struct {
	// BatchSize is the number of readings persisted per batch commit.
	BatchSize int `yaml:"batch_size"`
	// Workers is the number of ingestion keys processed concurrently.
	Workers int `yaml:"workers"`
	// SourceDir is the root directory holding per-building simulation output.
	SourceDir string `yaml:"source_dir"`
}

// SimulationConfig describes the simulation run whose output is ingested.
type SimulationConfig struct {
	StartDatetime      string `yaml:"start_datetime"`
	EndDatetime        string `yaml:"end_datetime"`
	TimestepMinutes    int    `yaml:"timestep_minutes"`
	ReportingFrequency string `yaml:"reporting_frequency"`
}

// Settings parses the configured datetimes into runtime simulation settings.
func (s SimulationConfig) Settings() (model.SimulationSettings, error) {
	start, err := time.Parse(model.DatetimeLayout, s.StartDatetime)
	if err != nil {
		return model.SimulationSettings{}, exception.Newf(stage, err, "invalid simulation start_datetime %q", s.StartDatetime)
	}
	end, err := time.Parse(model.DatetimeLayout, s.EndDatetime)
	if err != nil {
		return model.SimulationSettings{}, exception.Newf(stage, err, "invalid simulation end_datetime %q", s.EndDatetime)
	}
	return model.SimulationSettings{
		StartDatetime:      start,
		EndDatetime:        end,
		TimestepMinutes:    s.TimestepMinutes,
		ReportingFrequency: s.ReportingFrequency,
	}, nil
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ExportConfig controls Parquet exports of retrieved readings.
type ExportConfig struct {
	// OutputDir is the storage destination for exported Parquet objects.
	OutputDir string `yaml:"output_dir"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	System     SystemConfig     `yaml:"system"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Simulation SimulationConfig `yaml:"simulation"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Export     ExportConfig     `yaml:"export"`
	// SinkDBRef names the connection in Databases used for readings and the
	// upload ledger.
	SinkDBRef string `yaml:"sink_db_ref"`
	// Databases holds the raw per-connection configuration maps; resolve one
	// with DatabaseConfig().
	Databases map[string]interface{} `yaml:"database"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO"},
		},
		Ingest: IngestConfig{
			BatchSize: 500,
			Workers:   4,
		},
		Simulation: SimulationConfig{
			TimestepMinutes:    5,
			ReportingFrequency: "Timestep",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		SinkDBRef: "sink",
		Databases: map[string]interface{}{},
	}
}

// DatabaseConfig resolves the named connection's raw configuration map into a
// typed DatabaseConfig.
func (c *Config) DatabaseConfig(name string) (DatabaseConfig, error) {
	raw, ok := c.Databases[name]
	if !ok {
		return DatabaseConfig{}, exception.Newf(stage, nil, "database configuration %q not found", name)
	}
	var dbCfg DatabaseConfig
	if err := mapstructure.Decode(raw, &dbCfg); err != nil {
		return DatabaseConfig{}, exception.Newf(stage, err, "failed to decode database config %q", name)
	}
	return dbCfg, nil
}

// SinkDatabaseConfig resolves the connection named by SinkDBRef.
func (c *Config) SinkDatabaseConfig() (DatabaseConfig, error) {
	return c.DatabaseConfig(c.SinkDBRef)
}
