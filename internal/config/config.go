// Package config loads corpusctl configuration.
//
// Sources, in increasing precedence:
//  1. Hardcoded defaults
//  2. User config ($XDG_CONFIG_HOME/corpusctl/config.yaml)
//  3. Project config (.corpusctl.yaml in the working directory)
//  4. .env file in the working directory
//  5. Process environment
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

const (
	// ProjectConfigFile is the per-directory configuration file.
	ProjectConfigFile = ".corpusctl.yaml"

	// DotEnvFile is read from the working directory when present.
	DotEnvFile = ".env"

	appName = "corpusctl"
)

// Config represents the complete corpusctl configuration.
type Config struct {
	Version        int                  `yaml:"version" json:"version"`
	Search         SearchConfig         `yaml:"search" json:"search"`
	Storage        StorageConfig        `yaml:"storage" json:"storage"`
	KnowledgeStore KnowledgeStoreConfig `yaml:"knowledge_store" json:"knowledge_store"`
	Embedding      EmbeddingConfig      `yaml:"embedding" json:"embedding"`
	Enrichment     EnrichmentConfig     `yaml:"enrichment" json:"enrichment"`
	Provisioning   ProvisioningConfig   `yaml:"provisioning" json:"provisioning"`
	SkillServer    SkillServerConfig    `yaml:"skill_server" json:"skill_server"`
	Logging        LoggingConfig        `yaml:"logging" json:"logging"`
	State          StateConfig          `yaml:"state" json:"state"`
}

// SearchConfig locates the search service.
type SearchConfig struct {
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	AdminKey   string `yaml:"admin_key,omitempty" json:"admin_key,omitempty"`
	APIVersion string `yaml:"api_version" json:"api_version"`

	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
}

// StorageConfig locates the source documents.
type StorageConfig struct {
	ConnectionString string `yaml:"connection_string,omitempty" json:"connection_string,omitempty"`
	Container        string `yaml:"container" json:"container"`
}

// KnowledgeStoreConfig is the storage account projections are written to.
type KnowledgeStoreConfig struct {
	ConnectionString string `yaml:"connection_string,omitempty" json:"connection_string,omitempty"`
}

// EmbeddingConfig configures the custom embedding skill: where the search
// service calls it, and which model the skill server uses.
type EmbeddingConfig struct {
	// SkillEndpoint is the public URL of the skill server.
	SkillEndpoint string            `yaml:"skill_endpoint" json:"skill_endpoint"`
	SkillHeaders  map[string]string `yaml:"skill_headers,omitempty" json:"skill_headers,omitempty"`
	Dimensions    int               `yaml:"dimensions" json:"dimensions"`

	// Provider is "openai" or "azure".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	APIKey   string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	// BaseURL is the Azure OpenAI endpoint, or an OpenAI-compatible base URL.
	BaseURL    string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIVersion string `yaml:"api_version,omitempty" json:"api_version,omitempty"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment,omitempty" json:"deployment,omitempty"`
}

// EnrichmentConfig enables image enrichment stages.
type EnrichmentConfig struct {
	CognitiveServicesKey string `yaml:"cognitive_services_key,omitempty" json:"cognitive_services_key,omitempty"`
}

// ProvisioningConfig tunes the orchestrator.
type ProvisioningConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
	SettleTimeout    time.Duration `yaml:"settle_timeout" json:"settle_timeout"`
	MaxFetchFailures int           `yaml:"max_fetch_failures" json:"max_fetch_failures"`
	// Parallelism bounds how many prefixes are provisioned at once.
	Parallelism int `yaml:"parallelism" json:"parallelism"`
}

// SkillServerConfig configures `corpusctl skill serve`.
type SkillServerConfig struct {
	Addr          string `yaml:"addr" json:"addr"`
	ChunkSize     int    `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxTextLength int    `yaml:"max_text_length" json:"max_text_length"`
	CacheSize     int    `yaml:"cache_size" json:"cache_size"`
	// APIKey, when set, must be sent by callers in the api-key header.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File, when set, keeps a rotated JSON log without --debug.
	File      string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// StateConfig locates local state: the manifest database and prefix locks.
type StateConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			APIVersion:        "2023-11-01",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 10,
		},
		Embedding: EmbeddingConfig{
			Dimensions: 1536,
			Provider:   "openai",
			Model:      "text-embedding-ada-002",
		},
		Provisioning: ProvisioningConfig{
			PollInterval:     5 * time.Second,
			SettleTimeout:    2 * time.Minute,
			MaxFetchFailures: 5,
			Parallelism:      2,
		},
		SkillServer: SkillServerConfig{
			Addr:          ":8088",
			ChunkSize:     1000,
			ChunkOverlap:  200,
			MaxTextLength: 7000,
			CacheSize:     1000,
		},
		Logging: LoggingConfig{Level: "info", MaxSizeMB: 10, MaxFiles: 5},
		State:   StateConfig{Dir: defaultStateDir()},
	}
}

// defaultStateDir returns ~/.corpusctl.
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "."+appName)
	}
	return filepath.Join(home, "."+appName)
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/corpusctl/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/corpusctl/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", appName, "config.yaml")
	}
	return filepath.Join(home, ".config", appName, "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the working directory dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	if projectPath := filepath.Join(dir, ProjectConfigFile); fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	dotenv := map[string]string{}
	if envPath := filepath.Join(dir, DotEnvFile); fileExists(envPath) {
		vals, err := godotenv.Read(envPath)
		if err != nil {
			return nil, cerrors.New(cerrors.ErrCodeConfigInvalid, "failed to parse "+envPath, err)
		}
		dotenv = vals
	}

	// The process environment wins over .env, which is never exported.
	cfg.applyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUserConfig returns the defaults merged with the user config file only.
// Missing settings keep their defaults, which is how `config init --force`
// picks up options added since the file was written.
func LoadUserConfig() (*Config, error) {
	cfg := NewConfig()
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, cerrors.New(cerrors.ErrCodeConfigNotFound, "user config not found: "+path, nil).
			WithSuggestion("Run 'corpusctl config init'")
	}
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cerrors.New(cerrors.ErrCodeConfigNotFound, "failed to read config file "+path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return cerrors.New(cerrors.ErrCodeConfigInvalid, "failed to parse config file "+path, err).
			WithDetail("path", path)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	setString(&c.Search.Endpoint, other.Search.Endpoint)
	setString(&c.Search.AdminKey, other.Search.AdminKey)
	setString(&c.Search.APIVersion, other.Search.APIVersion)
	if other.Search.Timeout > 0 {
		c.Search.Timeout = other.Search.Timeout
	}
	if other.Search.RequestsPerSecond > 0 {
		c.Search.RequestsPerSecond = other.Search.RequestsPerSecond
	}

	setString(&c.Storage.ConnectionString, other.Storage.ConnectionString)
	setString(&c.Storage.Container, other.Storage.Container)
	setString(&c.KnowledgeStore.ConnectionString, other.KnowledgeStore.ConnectionString)

	setString(&c.Embedding.SkillEndpoint, other.Embedding.SkillEndpoint)
	if len(other.Embedding.SkillHeaders) > 0 {
		c.Embedding.SkillHeaders = other.Embedding.SkillHeaders
	}
	if other.Embedding.Dimensions > 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	setString(&c.Embedding.Provider, other.Embedding.Provider)
	setString(&c.Embedding.Model, other.Embedding.Model)
	setString(&c.Embedding.APIKey, other.Embedding.APIKey)
	setString(&c.Embedding.BaseURL, other.Embedding.BaseURL)
	setString(&c.Embedding.APIVersion, other.Embedding.APIVersion)
	setString(&c.Embedding.Deployment, other.Embedding.Deployment)

	setString(&c.Enrichment.CognitiveServicesKey, other.Enrichment.CognitiveServicesKey)

	if other.Provisioning.PollInterval > 0 {
		c.Provisioning.PollInterval = other.Provisioning.PollInterval
	}
	if other.Provisioning.SettleTimeout > 0 {
		c.Provisioning.SettleTimeout = other.Provisioning.SettleTimeout
	}
	if other.Provisioning.MaxFetchFailures > 0 {
		c.Provisioning.MaxFetchFailures = other.Provisioning.MaxFetchFailures
	}
	if other.Provisioning.Parallelism > 0 {
		c.Provisioning.Parallelism = other.Provisioning.Parallelism
	}

	setString(&c.SkillServer.Addr, other.SkillServer.Addr)
	if other.SkillServer.ChunkSize > 0 {
		c.SkillServer.ChunkSize = other.SkillServer.ChunkSize
	}
	if other.SkillServer.ChunkOverlap > 0 {
		c.SkillServer.ChunkOverlap = other.SkillServer.ChunkOverlap
	}
	if other.SkillServer.MaxTextLength > 0 {
		c.SkillServer.MaxTextLength = other.SkillServer.MaxTextLength
	}
	if other.SkillServer.CacheSize > 0 {
		c.SkillServer.CacheSize = other.SkillServer.CacheSize
	}
	setString(&c.SkillServer.APIKey, other.SkillServer.APIKey)

	setString(&c.Logging.Level, other.Logging.Level)
	setString(&c.Logging.File, other.Logging.File)
	if other.Logging.MaxSizeMB > 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles > 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
	setString(&c.State.Dir, other.State.Dir)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// applyEnv applies environment overrides read through lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	num := func(dst *int, key string) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = d
			}
		}
	}

	str(&c.Search.Endpoint, "AZURE_SEARCH_SERVICE_ENDPOINT")
	str(&c.Search.AdminKey, "AZURE_SEARCH_ADMIN_KEY", "AZURE_SEARCH_API_KEY")
	str(&c.Search.APIVersion, "AZURE_SEARCH_API_VERSION")

	str(&c.Storage.ConnectionString, "AZURE_STORAGE_CONNECTION_STRING")
	str(&c.Storage.Container, "AZURE_STORAGE_CONTAINER")
	str(&c.KnowledgeStore.ConnectionString, "AZURE_KNOWLEDGE_STORE_STORAGE_CONNECTION_STRING")

	str(&c.Embedding.SkillEndpoint, "AZURE_SEARCH_EMBEDDING_SKILL_ENDPOINT")
	num(&c.Embedding.Dimensions, "CORPUSCTL_EMBEDDING_DIMENSIONS")
	str(&c.Enrichment.CognitiveServicesKey, "AZURE_COGNITIVE_SERVICES_KEY")

	if v, ok := lookup("AZURE_OPENAI_API_KEY"); ok && v != "" {
		c.Embedding.Provider = "azure"
		c.Embedding.APIKey = v
	} else {
		str(&c.Embedding.APIKey, "OPENAI_API_KEY")
	}
	str(&c.Embedding.Provider, "CORPUSCTL_EMBEDDING_PROVIDER")
	str(&c.Embedding.BaseURL, "AZURE_OPENAI_ENDPOINT", "OPENAI_DEPLOYMENT_ENDPOINT")
	str(&c.Embedding.APIVersion, "AZURE_OPENAI_API_VERSION")
	str(&c.Embedding.Deployment, "AZURE_OPENAI_EMBEDDING_DEPLOYMENT")
	str(&c.Embedding.Model, "OPENAI_EMBEDDING_MODEL_NAME")

	dur(&c.Provisioning.PollInterval, "CORPUSCTL_POLL_INTERVAL")
	dur(&c.Provisioning.SettleTimeout, "CORPUSCTL_SETTLE_TIMEOUT")
	num(&c.Provisioning.Parallelism, "CORPUSCTL_PARALLELISM")

	str(&c.SkillServer.Addr, "CORPUSCTL_SKILL_ADDR")
	str(&c.SkillServer.APIKey, "CORPUSCTL_SKILL_API_KEY")
	str(&c.Logging.Level, "CORPUSCTL_LOG_LEVEL")
	str(&c.Logging.File, "CORPUSCTL_LOG_FILE")
	str(&c.State.Dir, "CORPUSCTL_STATE_DIR")
}

// Validate checks values that are wrong regardless of which command runs.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return invalid("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "openai", "azure":
	default:
		return invalid("embedding.provider must be 'openai' or 'azure', got %s", c.Embedding.Provider)
	}
	if c.Provisioning.PollInterval <= 0 {
		return invalid("provisioning.poll_interval must be positive, got %s", c.Provisioning.PollInterval)
	}
	if c.Provisioning.Parallelism <= 0 {
		return invalid("provisioning.parallelism must be positive, got %d", c.Provisioning.Parallelism)
	}
	if c.SkillServer.ChunkOverlap >= c.SkillServer.ChunkSize {
		return invalid("skill_server.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.SkillServer.ChunkOverlap, c.SkillServer.ChunkSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return invalid("logging.max_size_mb and logging.max_files must not be negative, got %d and %d",
			c.Logging.MaxSizeMB, c.Logging.MaxFiles)
	}
	for _, u := range []struct{ name, value string }{
		{"search.endpoint", c.Search.Endpoint},
		{"embedding.skill_endpoint", c.Embedding.SkillEndpoint},
	} {
		if u.value != "" && !strings.HasPrefix(u.value, "https://") && !strings.HasPrefix(u.value, "http://") {
			return invalid("%s must be an http(s) URL, got %s", u.name, u.value)
		}
	}
	return nil
}

// RequireService checks the settings every remote command needs.
func (c *Config) RequireService() error {
	missing := c.missing(map[string]string{
		"search.endpoint (AZURE_SEARCH_SERVICE_ENDPOINT)": c.Search.Endpoint,
		"search.admin_key (AZURE_SEARCH_ADMIN_KEY)":       c.Search.AdminKey,
	})
	return missingError(missing)
}

// RequireProvisioning checks the settings `provision` needs for the chain.
// The chunk chain only needs the knowledge store.
func (c *Config) RequireProvisioning(chunkOnly bool) error {
	if err := c.RequireService(); err != nil {
		return err
	}
	fields := map[string]string{
		"knowledge_store.connection_string (AZURE_KNOWLEDGE_STORE_STORAGE_CONNECTION_STRING)": c.KnowledgeStore.ConnectionString,
	}
	if !chunkOnly {
		fields["storage.connection_string (AZURE_STORAGE_CONNECTION_STRING)"] = c.Storage.ConnectionString
		fields["storage.container (AZURE_STORAGE_CONTAINER)"] = c.Storage.Container
		fields["embedding.skill_endpoint (AZURE_SEARCH_EMBEDDING_SKILL_ENDPOINT)"] = c.Embedding.SkillEndpoint
	}
	return missingError(c.missing(fields))
}

// RequireTeardown checks the settings `teardown` needs. The knowledge store
// is optional: without it containers are left in place.
func (c *Config) RequireTeardown() error {
	return c.RequireService()
}

// RequireEmbedder checks the settings `skill serve` needs.
func (c *Config) RequireEmbedder() error {
	fields := map[string]string{"embedding.api_key (OPENAI_API_KEY or AZURE_OPENAI_API_KEY)": c.Embedding.APIKey}
	if strings.EqualFold(c.Embedding.Provider, "azure") {
		fields["embedding.base_url (AZURE_OPENAI_ENDPOINT)"] = c.Embedding.BaseURL
		fields["embedding.deployment (AZURE_OPENAI_EMBEDDING_DEPLOYMENT)"] = c.Embedding.Deployment
	}
	return missingError(c.missing(fields))
}

func (c *Config) missing(fields map[string]string) []string {
	var out []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return cerrors.New(cerrors.ErrCodeCredentialMissing, "missing required settings: "+strings.Join(missing, ", "), nil).
		WithSuggestion("Set them in " + ProjectConfigFile + ", " + DotEnvFile + " or the environment")
}

func invalid(format string, args ...any) error {
	return cerrors.New(cerrors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...), nil)
}

// Redacted returns a copy with secrets masked, safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}
	mask(&out.Search.AdminKey)
	mask(&out.Storage.ConnectionString)
	mask(&out.KnowledgeStore.ConnectionString)
	mask(&out.Embedding.APIKey)
	mask(&out.Enrichment.CognitiveServicesKey)
	mask(&out.SkillServer.APIKey)
	if len(c.Embedding.SkillHeaders) > 0 {
		out.Embedding.SkillHeaders = make(map[string]string, len(c.Embedding.SkillHeaders))
		for k := range c.Embedding.SkillHeaders {
			out.Embedding.SkillHeaders[k] = "********"
		}
	}
	return &out
}

// ManifestPath returns the manifest database path.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.State.Dir, "manifests.db")
}

// LockDir returns the directory holding prefix lock files.
func (c *Config) LockDir() string {
	return filepath.Join(c.State.Dir, "locks")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// Secrets may be present, keep the file private.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
