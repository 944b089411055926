package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/cronexpr"
	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// Config represents the top-level YAML configuration file.
type Config struct {
	Include []string `mapstructure:"include" yaml:"include,omitempty"`

	Backup    BackupConfig    `mapstructure:"backup"    yaml:"backup"`
	Graph     GraphConfig     `mapstructure:"graph"     yaml:"graph"`
	Vault     VaultConfig     `mapstructure:"vault"     yaml:"vault"`
	Health    HealthConfig    `mapstructure:"health"    yaml:"health"`
	Restore   RestoreConfig   `mapstructure:"restore"   yaml:"restore"`
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"  yaml:"schedule"`
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Audit     AuditConfig     `mapstructure:"audit"     yaml:"audit"`
}

// BackupConfig contains artifact storage and compression options.
type BackupConfig struct {
	Root                string        `mapstructure:"root"                   yaml:"root"                   validate:"required"`
	TimestampFormat     string        `mapstructure:"timestamp_format"       yaml:"timestamp_format"`
	Compression         string        `mapstructure:"compression"            yaml:"compression"            validate:"oneof=zstd gzip none"`
	Timeout             time.Duration `mapstructure:"timeout"                yaml:"timeout"                validate:"gt=0"`
	MinFreeSpacePercent float64       `mapstructure:"min_free_space_percent" yaml:"min_free_space_percent" validate:"gte=0,lte=100"`
}

// GraphConfig holds connection settings for the graph database: the HTTP
// Cypher endpoint for queries and the admin tool for dump/load.
type GraphConfig struct {
	URI             string        `mapstructure:"uri"              yaml:"uri"              validate:"required,url"`
	Database        string        `mapstructure:"database"         yaml:"database"         validate:"required"`
	Username        string        `mapstructure:"username"         yaml:"username,omitempty"`
	Password        string        `mapstructure:"password"         yaml:"password,omitempty"`
	AdminPath       string        `mapstructure:"admin_path"       yaml:"admin_path,omitempty"`
	Timeout         time.Duration `mapstructure:"timeout"          yaml:"timeout,omitempty"  validate:"gt=0"`
	CredentialsPath string        `mapstructure:"credentials_path" yaml:"credentials_path,omitempty"`
}

// VaultConfig holds connection settings for HashiCorp Vault. When Address is
// empty the graph credentials come from the config file or environment.
type VaultConfig struct {
	Address  string `mapstructure:"address"   yaml:"address,omitempty" validate:"omitempty,url"`
	RoleID   string `mapstructure:"role_id"   yaml:"role_id,omitempty"`
	RoleName string `mapstructure:"role_name" yaml:"role_name,omitempty"`
}

// HealthConfig tunes the consistency checks.
type HealthConfig struct {
	ReachabilityTimeout time.Duration `mapstructure:"reachability_timeout" yaml:"reachability_timeout" validate:"gt=0"`
	QueryTimeout        time.Duration `mapstructure:"query_timeout"        yaml:"query_timeout"        validate:"gt=0"`
	Schema              SchemaConfig  `mapstructure:"schema"               yaml:"schema"`
}

// SchemaConfig declares required-property sets per node label and
// relationship type. Instances missing any listed property count as
// schema violations.
type SchemaConfig struct {
	Nodes         map[string][]string `mapstructure:"nodes"         yaml:"nodes,omitempty"`
	Relationships map[string][]string `mapstructure:"relationships" yaml:"relationships,omitempty"`
}

// RestoreConfig controls provisioning of isolated restore targets.
type RestoreConfig struct {
	TargetPrefix     string        `mapstructure:"target_prefix"     yaml:"target_prefix"     validate:"required,alphanum,lowercase"`
	ProvisionTimeout time.Duration `mapstructure:"provision_timeout" yaml:"provision_timeout" validate:"gt=0"`
}

// RetentionConfig specifies the pruning window and the free-space floor.
type RetentionConfig struct {
	WindowDays          int     `mapstructure:"window_days"            yaml:"window_days"            validate:"gte=1"`
	MinFreeSpacePercent float64 `mapstructure:"min_free_space_percent" yaml:"min_free_space_percent" validate:"gte=0,lte=100"`
}

// ScheduleConfig holds the cron cadences driven by the scheduler.
type ScheduleConfig struct {
	Backup string `mapstructure:"backup" yaml:"backup"`
	Prune  string `mapstructure:"prune"  yaml:"prune"`
}

// ServerConfig configures the HTTP endpoint exposed by `neoback serve`.
type ServerConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// AuditConfig points at the append-only audit log. Empty path disables it.
type AuditConfig struct {
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration from the given YAML file using Viper, merges
// any included files, unmarshals into the Config struct, and validates it.
func (c *Config) Load(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NEOBACK")
	v.AutomaticEnv()

	setDefaults(v)

	// Read base configuration
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
	}

	// Merge include files (if any)
	for _, inc := range v.GetStringSlice("include") {
		data, err := os.ReadFile(inc)
		if err != nil {
			return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
		}
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
		}
	}

	// Unmarshal into the Config struct
	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	return c.Validate()
}

// Validate checks struct-level constraints plus the cron cadences, which
// validator has no notion of.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrValidateConfig, err)
	}

	for name, expr := range map[string]string{
		"schedule.backup": c.Schedule.Backup,
		"schedule.prune":  c.Schedule.Prune,
	} {
		if expr == "" {
			continue
		}
		if _, err := cronexpr.Parse(expr); err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrValidateConfig, name, expr, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backup.timestamp_format", "2006-01-02_15-04-05")
	v.SetDefault("backup.compression", "zstd")
	v.SetDefault("backup.timeout", "30m")
	v.SetDefault("backup.min_free_space_percent", 10)

	v.SetDefault("graph.uri", "http://localhost:7474")
	v.SetDefault("graph.database", "neo4j")
	v.SetDefault("graph.admin_path", "neo4j-admin")
	v.SetDefault("graph.timeout", "15s")

	v.SetDefault("health.reachability_timeout", "3s")
	v.SetDefault("health.query_timeout", "30s")

	v.SetDefault("restore.target_prefix", "restore")
	v.SetDefault("restore.provision_timeout", "5m")

	v.SetDefault("retention.window_days", 30)
	v.SetDefault("retention.min_free_space_percent", 15)

	v.SetDefault("schedule.backup", "0 2 * * *")
	v.SetDefault("schedule.prune", "30 3 * * *")

	v.SetDefault("server.listen", ":8080")
}
