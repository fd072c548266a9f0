package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

var validate = validator.New()

// Config represents the top-level YAML configuration file.
type Config struct {
	Include  []string       `mapstructure:"include"  yaml:"include,omitempty"`
	Project  ProjectConfig  `mapstructure:"project"  yaml:"project"`
	Backup   BackupConfig   `mapstructure:"backup"   yaml:"backup"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	Vault    VaultConfig    `mapstructure:"vault"    yaml:"vault"`
	Log      LogConfig      `mapstructure:"log"      yaml:"log"`
}

// ProjectConfig identifies the hosted project being backed up.
type ProjectConfig struct {
	ID  string `mapstructure:"id"  yaml:"id"  validate:"required"`
	URL string `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
}

// BackupConfig contains global backup options.
type BackupConfig struct {
	OutputDirectory string `mapstructure:"output_directory" yaml:"output_directory" validate:"required"`
}

// DatabaseConfig holds the connection parameters of the project database.
type DatabaseConfig struct {
	Host        string        `mapstructure:"host"          yaml:"host"          validate:"required"`
	Port        int           `mapstructure:"port"          yaml:"port"          validate:"required,min=1,max=65535"`
	Name        string        `mapstructure:"name"          yaml:"name"          validate:"required"`
	User        string        `mapstructure:"user"          yaml:"user"          validate:"required"`
	Password    string        `mapstructure:"password"      yaml:"password"      validate:"required"`
	SSLMode     string        `mapstructure:"sslmode"       yaml:"sslmode"       validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	PgDumpPath  string        `mapstructure:"pg_dump_path"  yaml:"pg_dump_path"  validate:"required"`
	PsqlPath    string        `mapstructure:"psql_path"     yaml:"psql_path"     validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout"       yaml:"timeout"`
	StopOnError bool          `mapstructure:"stop_on_error" yaml:"stop_on_error"`
	// VaultRole is the dynamic credentials path used instead of User/Password
	// when Vault is configured.
	VaultRole string `mapstructure:"vault_role" yaml:"vault_role,omitempty"`
}

// StorageConfig holds the object-storage endpoint and credentials.
type StorageConfig struct {
	Driver       string `mapstructure:"driver"         yaml:"driver"         validate:"oneof=s3 minio"`
	Endpoint     string `mapstructure:"endpoint"       yaml:"endpoint"       validate:"required,url"`
	Region       string `mapstructure:"region"         yaml:"region"`
	AccessKey    string `mapstructure:"access_key"     yaml:"access_key"     validate:"required"`
	SecretKey    string `mapstructure:"secret_key"     yaml:"secret_key"     validate:"required"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
	MaxDepth     int    `mapstructure:"max_depth"      yaml:"max_depth"      validate:"min=0"`
	// VaultPath is a KV path holding access_key/secret_key.
	VaultPath string `mapstructure:"vault_path" yaml:"vault_path,omitempty"`
}

// VaultConfig holds connection settings for HashiCorp Vault.
type VaultConfig struct {
	Address  string `mapstructure:"address"   yaml:"address"`
	Token    string `mapstructure:"token"     yaml:"token,omitempty"`
	RoleID   string `mapstructure:"role_id"   yaml:"role_id,omitempty"`
	RoleName string `mapstructure:"role_name" yaml:"role_name,omitempty"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// envBindings maps config keys to the environment variables that can set
// them. The first name is the tool's own, the rest are the names the
// platform's tooling conventionally exports.
var envBindings = map[string][]string{
	"project.id":              {"SBACKUP_PROJECT_ID", "SUPABASE_PROJECT_ID"},
	"project.url":             {"SBACKUP_PROJECT_URL", "SUPABASE_URL"},
	"backup.output_directory": {"SBACKUP_OUTPUT_DIRECTORY", "BACKUP_DIR"},
	"database.host":           {"SBACKUP_DATABASE_HOST", "SUPABASE_DB_HOST"},
	"database.port":           {"SBACKUP_DATABASE_PORT", "SUPABASE_DB_PORT"},
	"database.name":           {"SBACKUP_DATABASE_NAME", "SUPABASE_DB_NAME"},
	"database.user":           {"SBACKUP_DATABASE_USER", "SUPABASE_DB_USER"},
	"database.password":       {"SBACKUP_DATABASE_PASSWORD", "SUPABASE_DB_PASSWORD"},
	"database.sslmode":        {"SBACKUP_DATABASE_SSLMODE", "PGSSLMODE"},
	"database.pg_dump_path":   {"SBACKUP_DATABASE_PG_DUMP_PATH"},
	"database.psql_path":      {"SBACKUP_DATABASE_PSQL_PATH"},
	"database.timeout":        {"SBACKUP_DATABASE_TIMEOUT"},
	"database.stop_on_error":  {"SBACKUP_DATABASE_STOP_ON_ERROR"},
	"database.vault_role":     {"SBACKUP_DATABASE_VAULT_ROLE"},
	"storage.driver":          {"SBACKUP_STORAGE_DRIVER"},
	"storage.endpoint":        {"SBACKUP_STORAGE_ENDPOINT", "SUPABASE_S3_ENDPOINT"},
	"storage.region":          {"SBACKUP_STORAGE_REGION", "SUPABASE_S3_REGION"},
	"storage.access_key":      {"SBACKUP_STORAGE_ACCESS_KEY", "SUPABASE_S3_ACCESS_KEY_ID"},
	"storage.secret_key":      {"SBACKUP_STORAGE_SECRET_KEY", "SUPABASE_S3_SECRET_ACCESS_KEY"},
	"storage.use_path_style":  {"SBACKUP_STORAGE_USE_PATH_STYLE"},
	"storage.max_depth":       {"SBACKUP_STORAGE_MAX_DEPTH"},
	"storage.vault_path":      {"SBACKUP_STORAGE_VAULT_PATH"},
	"vault.address":           {"SBACKUP_VAULT_ADDRESS", "VAULT_ADDR"},
	"vault.token":             {"SBACKUP_VAULT_TOKEN", "VAULT_TOKEN"},
	"vault.role_id":           {"SBACKUP_VAULT_ROLE_ID"},
	"vault.role_name":         {"SBACKUP_VAULT_ROLE_NAME"},
	"log.level":               {"SBACKUP_LOG_LEVEL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backup.output_directory", "./backups")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.pg_dump_path", "pg_dump")
	v.SetDefault("database.psql_path", "psql")
	v.SetDefault("database.timeout", 30*time.Minute)
	v.SetDefault("storage.driver", "s3")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_path_style", true)
	v.SetDefault("log.level", "info")
}

// Load reads the configuration from the given YAML file using Viper,
// merges any included files, overlays environment variables and unmarshals
// into the Config struct. An empty path loads defaults and environment only.
func (c *Config) Load(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("%w: bind env %s: %v", ErrLoadConfig, key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
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
	}

	// Unmarshal into the Config struct
	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}
	c.Project.URL = strings.TrimRight(c.Project.URL, "/")

	return nil
}

// ValidateProject checks the settings every backup needs.
func (c *Config) ValidateProject() error {
	if err := validate.Struct(c.Project); err != nil {
		return fmt.Errorf("%w: project: %v", ErrValidateConfig, err)
	}
	if err := validate.Struct(c.Backup); err != nil {
		return fmt.Errorf("%w: backup: %v", ErrValidateConfig, err)
	}
	return nil
}

// ValidateDatabase checks the settings needed to dump, replay or query the
// project database.
func (c *Config) ValidateDatabase() error {
	if err := validate.Struct(c.Database); err != nil {
		return fmt.Errorf("%w: database: %v", ErrValidateConfig, err)
	}
	return nil
}

// ValidateStorage checks the settings needed to reach object storage.
func (c *Config) ValidateStorage() error {
	if err := validate.Struct(c.Storage); err != nil {
		return fmt.Errorf("%w: storage: %v", ErrValidateConfig, err)
	}
	return nil
}

// ConnString renders the database settings as a postgres URL accepted by
// pgx and libpq tools.
func (d DatabaseConfig) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}
