// Package config provides configuration loading and management for the update agent.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-update-agent/internal/telemetry"
)

const (
	// EnvPrefix is the prefix for environment variables read through viper
	EnvPrefix = "THV_UPDATE_AGENT"

	// DefaultTriggerRequestName is the request name that triggers a sync
	DefaultTriggerRequestName = "SYNC"

	// DefaultDataDir is the directory where packages, status and file state live
	DefaultDataDir = "./data"

	// DefaultAppVersion is reported to the update server when none is configured
	DefaultAppVersion = "0.0.0"

	// DefaultRequestTimeout bounds a single call to the update server
	DefaultRequestTimeout = 30 * time.Second
)

const (
	// StorageTypeFile keeps agent state in a JSON file under the data directory
	StorageTypeFile = "file"

	// StorageTypeDatabase keeps agent state in PostgreSQL
	StorageTypeDatabase = "database"
)

// InstallMode controls when a downloaded package becomes the current one
type InstallMode string

const (
	// InstallModeImmediate installs the package as soon as it is downloaded
	InstallModeImmediate InstallMode = "immediate"

	// InstallModeOnNextRestart stages the package and installs it on the next agent start
	InstallModeOnNextRestart InstallMode = "onNextRestart"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// DataDir is where downloaded packages, the status file and file-based state are kept
	// Defaults to "./data" if not specified
	DataDir string `yaml:"dataDir,omitempty"`

	// RequestSpoolDir, when set, is watched for files whose names are posted as requests
	RequestSpoolDir string `yaml:"requestSpoolDir,omitempty"`

	// Coordinator controls when the agent synchronizes with the update server
	Coordinator CoordinatorConfig `yaml:"coordinator"`

	// UpdateServer is the remote update service the agent synchronizes against
	UpdateServer UpdateServerConfig `yaml:"updateServer"`

	// Storage selects where the agent keeps its persistent state
	Storage *StorageConfig `yaml:"storage,omitempty"`

	// Telemetry configures OpenTelemetry tracing and metrics
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// CoordinatorConfig decides which events trigger a sync.
// Unset fields take their defaults through the getters; the struct itself is never mutated.
type CoordinatorConfig struct {
	// TriggerRequestName is the name of the request that triggers a sync
	// Defaults to "SYNC"
	TriggerRequestName string `yaml:"triggerRequestName,omitempty"`

	// SyncOnResume syncs every time the application returns to the foreground
	// Defaults to true
	SyncOnResume *bool `yaml:"syncOnResume,omitempty"`

	// SyncOnIntervalSeconds syncs periodically; 0 disables the interval trigger
	SyncOnIntervalSeconds float64 `yaml:"syncOnIntervalSeconds,omitempty"`

	// SyncOnStart syncs once when the coordinator starts
	// Defaults to true
	SyncOnStart *bool `yaml:"syncOnStart,omitempty"`

	// InitialDelaySeconds postpones the very first sync, once per installation
	InitialDelaySeconds float64 `yaml:"initialDelaySeconds,omitempty"`

	// DelayCancelRequestName is the name of a request that ends the initial delay early
	DelayCancelRequestName string `yaml:"delayCancelRequestName,omitempty"`

	// SyncOptions is handed to the synchronizer unchanged
	SyncOptions SyncOptions `yaml:"syncOptions"`
}

// SyncOptions are passed through to the synchronize operation
type SyncOptions struct {
	// DeploymentKey identifies the deployment channel on the update server
	DeploymentKey string `yaml:"deploymentKey"`

	// InstallMode applies to optional updates
	// Defaults to onNextRestart
	InstallMode InstallMode `yaml:"installMode,omitempty"`

	// MandatoryInstallMode applies to updates flagged mandatory by the server
	// Defaults to immediate
	MandatoryInstallMode InstallMode `yaml:"mandatoryInstallMode,omitempty"`
}

// UpdateServerConfig defines how to reach the update service
type UpdateServerConfig struct {
	// Endpoint is the base URL of the update service
	Endpoint string `yaml:"endpoint"`

	// AppVersion is the binary version reported to the server
	// Defaults to "0.0.0"
	AppVersion string `yaml:"appVersion,omitempty"`

	// ClientID identifies this installation; a random ID is generated and persisted when empty
	ClientID string `yaml:"clientId,omitempty"`

	// Timeout bounds a single request to the server (e.g., "30s")
	Timeout string `yaml:"timeout,omitempty"`
}

// StorageConfig selects the state backend
type StorageConfig struct {
	// Type is either "file" or "database"
	// Defaults to "file"
	Type string `yaml:"type,omitempty"`

	// File configures file-based state
	File *FileConfig `yaml:"file,omitempty"`

	// Database configures PostgreSQL-based state
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// FileConfig defines local file state settings
type FileConfig struct {
	// Path is the state file; defaults to <dataDir>/state.json
	Path string `yaml:"path,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error
	if err := c.Coordinator.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("coordinator: %w", err))
	}
	if err := validateUpdateServer(&c.UpdateServer); err != nil {
		errs = append(errs, fmt.Errorf("updateServer: %w", err))
	}
	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// Validate rejects settings the coordinator cannot run with
func (c *CoordinatorConfig) Validate() error {
	if err := validateSeconds("syncOnIntervalSeconds", c.SyncOnIntervalSeconds); err != nil {
		return err
	}
	if err := validateSeconds("initialDelaySeconds", c.InitialDelaySeconds); err != nil {
		return err
	}
	if c.DelayCancelRequestName != "" && c.DelayCancelRequestName == c.GetTriggerRequestName() {
		return fmt.Errorf("delayCancelRequestName must differ from triggerRequestName (%s)", c.GetTriggerRequestName())
	}
	return c.SyncOptions.validate()
}

func validateSeconds(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%s must be a finite number", field)
	}
	if value < 0 {
		return fmt.Errorf("%s must not be negative, got %v", field, value)
	}
	if value > maxSeconds {
		return fmt.Errorf("%s must not exceed %v, got %v", field, maxSeconds, value)
	}
	if value > 0 && secondsToDuration(value) == 0 {
		return fmt.Errorf("%s must be at least one nanosecond, got %v", field, value)
	}
	return nil
}

func (o *SyncOptions) validate() error {
	if o.DeploymentKey == "" {
		return fmt.Errorf("syncOptions.deploymentKey is required")
	}
	for field, mode := range map[string]InstallMode{
		"installMode":          o.InstallMode,
		"mandatoryInstallMode": o.MandatoryInstallMode,
	} {
		switch mode {
		case "", InstallModeImmediate, InstallModeOnNextRestart:
		default:
			return fmt.Errorf("syncOptions.%s must be %s or %s, got %s",
				field, InstallModeImmediate, InstallModeOnNextRestart, mode)
		}
	}
	return nil
}

func validateUpdateServer(s *UpdateServerConfig) error {
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must use http or https, got %q", u.Scheme)
	}
	if s.Timeout != "" {
		if _, err := time.ParseDuration(s.Timeout); err != nil {
			return fmt.Errorf("timeout must be a valid duration (e.g., '30s'): %w", err)
		}
	}
	return nil
}

func validateStorage(s *StorageConfig) error {
	if s == nil {
		return nil
	}
	switch s.Type {
	case "", StorageTypeFile:
		return nil
	case StorageTypeDatabase:
		if s.Database == nil {
			return fmt.Errorf("database configuration is required when type is %s", StorageTypeDatabase)
		}
		return s.Database.validate()
	default:
		return fmt.Errorf("type must be %s or %s, got %s", StorageTypeFile, StorageTypeDatabase, s.Type)
	}
}

func (d *DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if d.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if d.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("database.connMaxLifetime must be a valid duration: %w", err)
		}
	}
	return nil
}

// GetDataDir returns the data directory, using "./data" if not specified
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return DefaultDataDir
	}
	return c.DataDir
}

// GetStorageType returns the storage type, using file storage if not specified
func (c *Config) GetStorageType() string {
	if c.Storage == nil || c.Storage.Type == "" {
		return StorageTypeFile
	}
	return c.Storage.Type
}

// GetStateFilePath returns the path of the file-based state store
func (c *Config) GetStateFilePath() string {
	if c.Storage != nil && c.Storage.File != nil && c.Storage.File.Path != "" {
		return c.Storage.File.Path
	}
	return filepath.Join(c.GetDataDir(), "state.json")
}

// GetTriggerRequestName returns the request name that triggers a sync, "SYNC" if not specified
func (c *CoordinatorConfig) GetTriggerRequestName() string {
	if c.TriggerRequestName == "" {
		return DefaultTriggerRequestName
	}
	return c.TriggerRequestName
}

// GetSyncOnResume reports whether foreground transitions trigger a sync (default true)
func (c *CoordinatorConfig) GetSyncOnResume() bool {
	if c.SyncOnResume == nil {
		return true
	}
	return *c.SyncOnResume
}

// GetSyncOnStart reports whether the coordinator syncs once at start (default true)
func (c *CoordinatorConfig) GetSyncOnStart() bool {
	if c.SyncOnStart == nil {
		return true
	}
	return *c.SyncOnStart
}

// GetSyncInterval returns the periodic sync interval; zero means disabled
func (c *CoordinatorConfig) GetSyncInterval() time.Duration {
	return secondsToDuration(c.SyncOnIntervalSeconds)
}

// GetInitialDelay returns the one-time delay before the first sync; zero means disabled
func (c *CoordinatorConfig) GetInitialDelay() time.Duration {
	return secondsToDuration(c.InitialDelaySeconds)
}

// HasDelayGate reports whether the initial delay gate needs to run at all
func (c *CoordinatorConfig) HasDelayGate() bool {
	return c.GetInitialDelay() > 0 || c.DelayCancelRequestName != ""
}

// maxSeconds is the longest duration, in seconds, that fits in a time.Duration
var maxSeconds = math.Floor(float64(math.MaxInt64) / float64(time.Second))

func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// GetInstallMode returns the install mode for optional updates
func (o *SyncOptions) GetInstallMode() InstallMode {
	if o.InstallMode == "" {
		return InstallModeOnNextRestart
	}
	return o.InstallMode
}

// GetMandatoryInstallMode returns the install mode for mandatory updates
func (o *SyncOptions) GetMandatoryInstallMode() InstallMode {
	if o.MandatoryInstallMode == "" {
		return InstallModeImmediate
	}
	return o.MandatoryInstallMode
}

// GetAppVersion returns the binary version reported to the server
func (s *UpdateServerConfig) GetAppVersion() string {
	if s.AppVersion == "" {
		return DefaultAppVersion
	}
	return s.AppVersion
}

// GetTimeout returns the per-request timeout for the update server
func (s *UpdateServerConfig) GetTimeout() time.Duration {
	if s.Timeout == "" {
		return DefaultRequestTimeout
	}
	timeout, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return DefaultRequestTimeout
	}
	return timeout
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from THV_UPDATE_AGENT_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}
