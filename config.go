package forcekit

import (
	"crypto/rsa"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/forcekit/client-go/internal/assertion"
)

// Environment variables read by LoadConfigFromEnv.
const (
	EnvClientID           = "FORCEKIT_CLIENT_ID"
	EnvUsername           = "FORCEKIT_USERNAME"
	EnvPrivateKey         = "FORCEKIT_PRIVATE_KEY"
	EnvPrivateKeyFile     = "FORCEKIT_PRIVATE_KEY_FILE"
	EnvPrivateKeyPassword = "FORCEKIT_PRIVATE_KEY_PASSWORD"
	EnvLoginURL           = "FORCEKIT_LOGIN_URL"
	EnvInstanceURL        = "FORCEKIT_INSTANCE_URL"
	EnvAPIVersion         = "FORCEKIT_API_VERSION"
	EnvTokenTTL           = "FORCEKIT_TOKEN_TTL"
	EnvTimeout            = "FORCEKIT_TIMEOUT"
	EnvMaxRetries         = "FORCEKIT_MAX_RETRIES"
)

var apiVersionPattern = regexp.MustCompile(`^v?[0-9]+\.[0-9]+$`)

// Config is the externally supplied client configuration. Zero values take
// the documented defaults.
type Config struct {
	ClientID string
	Username string

	// PrivateKey is an inline PEM key. Literal "\n" sequences are accepted
	// in place of line breaks.
	PrivateKey string
	// PrivateKeyFile is a PEM file, or a PKCS#12 archive when it ends in
	// .p12 or .pfx.
	PrivateKeyFile string
	// PrivateKeyPassword unlocks a PKCS#12 archive.
	PrivateKeyPassword string

	LoginURL    string        // default: https://login.salesforce.com
	InstanceURL string        // default: https://login.salesforce.com, used only as a fallback
	APIVersion  string        // default: v61.0
	TokenTTL    time.Duration // default: 55m
	Timeout     time.Duration // default: 30s

	// MaxRetries is the retry budget. Nil means the default of 3, so that an
	// explicit zero disables retries.
	MaxRetries *int
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("%w: client ID is required", ErrMissingCredentials))
	}
	if c.Username == "" {
		result = multierror.Append(result, fmt.Errorf("%w: username is required", ErrMissingCredentials))
	}
	switch {
	case c.PrivateKey == "" && c.PrivateKeyFile == "":
		result = multierror.Append(result, fmt.Errorf("%w: private key or private key file is required", ErrMissingCredentials))
	case c.PrivateKey != "" && c.PrivateKeyFile != "":
		result = multierror.Append(result, fmt.Errorf("only one of private key and private key file may be set"))
	}

	for _, u := range []struct{ name, value string }{
		{"login URL", c.LoginURL},
		{"instance URL", c.InstanceURL},
	} {
		if u.value == "" {
			continue
		}
		if err := checkAbsoluteURL(u.value); err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid %s %q: %w", u.name, u.value, err))
		}
	}
	if c.APIVersion != "" && !apiVersionPattern.MatchString(c.APIVersion) {
		result = multierror.Append(result, fmt.Errorf("invalid API version %q, want a form like v61.0", c.APIVersion))
	}
	if c.TokenTTL < 0 {
		result = multierror.Append(result, fmt.Errorf("token TTL must not be negative, got %v", c.TokenTTL))
	}
	if c.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("timeout must not be negative, got %v", c.Timeout))
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		result = multierror.Append(result, fmt.Errorf("max retries must not be negative, got %d", *c.MaxRetries))
	}

	return result.ErrorOrNil()
}

func checkAbsoluteURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL")
	}
	return nil
}

// Options returns the client options the config's non-zero fields select.
func (c *Config) Options() []Option {
	var opts []Option
	if c.LoginURL != "" {
		opts = append(opts, WithLoginURL(c.LoginURL))
	}
	if c.InstanceURL != "" {
		opts = append(opts, WithInstanceURL(c.InstanceURL))
	}
	if c.APIVersion != "" {
		opts = append(opts, WithAPIVersion(c.APIVersion))
	}
	if c.TokenTTL > 0 {
		opts = append(opts, WithTokenTTL(c.TokenTTL))
	}
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	if c.MaxRetries != nil {
		opts = append(opts, WithRetries(*c.MaxRetries))
	}
	return opts
}

// ConfigLoader reads configuration and key material through a filesystem
// abstraction.
type ConfigLoader struct {
	Fs afero.Fs
	// LookupEnv reads process environment variables. Default: os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// NewConfigLoader returns a loader backed by the OS filesystem and environment.
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{Fs: afero.NewOsFs(), LookupEnv: os.LookupEnv}
}

func (l *ConfigLoader) fs() afero.Fs {
	if l.Fs == nil {
		return afero.NewOsFs()
	}
	return l.Fs
}

func (l *ConfigLoader) lookup(key string) (string, bool) {
	if l.LookupEnv == nil {
		return os.LookupEnv(key)
	}
	return l.LookupEnv(key)
}

// FromEnv builds a Config from FORCEKIT_* variables. Each envFile is read
// in order with later files overriding earlier ones; the process
// environment overrides them all. Missing env files are an error.
func (l *ConfigLoader) FromEnv(envFiles ...string) (*Config, error) {
	values := make(map[string]string)
	for _, name := range envFiles {
		f, err := l.fs().Open(name)
		if err != nil {
			return nil, fmt.Errorf("open env file: %w", err)
		}
		parsed, err := godotenv.Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse env file %s: %w", name, err)
		}
		for k, v := range parsed {
			values[k] = v
		}
	}

	get := func(key string) string {
		if v, ok := l.lookup(key); ok {
			return v
		}
		return values[key]
	}

	cfg := &Config{
		ClientID:           get(EnvClientID),
		Username:           get(EnvUsername),
		PrivateKey:         get(EnvPrivateKey),
		PrivateKeyFile:     get(EnvPrivateKeyFile),
		PrivateKeyPassword: get(EnvPrivateKeyPassword),
		LoginURL:           get(EnvLoginURL),
		InstanceURL:        get(EnvInstanceURL),
		APIVersion:         get(EnvAPIVersion),
	}

	var result *multierror.Error
	if v := get(EnvTokenTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", EnvTokenTTL, err))
		}
		cfg.TokenTTL = d
	}
	if v := get(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", EnvTimeout, err))
		}
		cfg.Timeout = d
	}
	if v := get(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", EnvMaxRetries, err))
		} else {
			cfg.MaxRetries = &n
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig is the on-disk shape shared by TOML and YAML files.
type fileConfig struct {
	ClientID           string `toml:"client_id" yaml:"client_id"`
	Username           string `toml:"username" yaml:"username"`
	PrivateKey         string `toml:"private_key" yaml:"private_key"`
	PrivateKeyFile     string `toml:"private_key_file" yaml:"private_key_file"`
	PrivateKeyPassword string `toml:"private_key_password" yaml:"private_key_password"`
	LoginURL           string `toml:"login_url" yaml:"login_url"`
	InstanceURL        string `toml:"instance_url" yaml:"instance_url"`
	APIVersion         string `toml:"api_version" yaml:"api_version"`
	TokenTTL           string `toml:"token_ttl" yaml:"token_ttl"`
	Timeout            string `toml:"timeout" yaml:"timeout"`
	MaxRetries         *int   `toml:"max_retries" yaml:"max_retries"`
}

// FromFile reads a .toml, .yaml or .yml config file. A relative
// private_key_file is resolved against the config file's directory.
func (l *ConfigLoader) FromFile(path string) (*Config, error) {
	data, err := afero.ReadFile(l.fs(), path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}

	cfg := &Config{
		ClientID:           fc.ClientID,
		Username:           fc.Username,
		PrivateKey:         fc.PrivateKey,
		PrivateKeyFile:     fc.PrivateKeyFile,
		PrivateKeyPassword: fc.PrivateKeyPassword,
		LoginURL:           fc.LoginURL,
		InstanceURL:        fc.InstanceURL,
		APIVersion:         fc.APIVersion,
		MaxRetries:         fc.MaxRetries,
	}
	if cfg.PrivateKeyFile != "" && !filepath.IsAbs(cfg.PrivateKeyFile) {
		cfg.PrivateKeyFile = filepath.Join(filepath.Dir(path), cfg.PrivateKeyFile)
	}

	var result *multierror.Error
	if fc.TokenTTL != "" {
		if cfg.TokenTTL, err = time.ParseDuration(fc.TokenTTL); err != nil {
			result = multierror.Append(result, fmt.Errorf("token_ttl: %w", err))
		}
	}
	if fc.Timeout != "" {
		if cfg.Timeout, err = time.ParseDuration(fc.Timeout); err != nil {
			result = multierror.Append(result, fmt.Errorf("timeout: %w", err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPrivateKey parses the key the config names. Failures are SigningErrors.
func (l *ConfigLoader) LoadPrivateKey(cfg *Config) (*rsa.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		return assertion.ParsePrivateKeyPEM([]byte(cfg.PrivateKey))
	}
	if cfg.PrivateKeyFile == "" {
		return nil, fmt.Errorf("%w: private key", ErrMissingCredentials)
	}

	data, err := afero.ReadFile(l.fs(), cfg.PrivateKeyFile)
	if err != nil {
		return nil, &SigningError{Message: "read private key file", Err: err}
	}

	switch strings.ToLower(filepath.Ext(cfg.PrivateKeyFile)) {
	case ".p12", ".pfx":
		return assertion.ParsePKCS12(data, cfg.PrivateKeyPassword)
	default:
		return assertion.ParsePrivateKeyPEM(data)
	}
}

// NewClient validates cfg, loads its key and builds a client. opts are
// applied after the config's own settings.
func (l *ConfigLoader) NewClient(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key, err := l.LoadPrivateKey(cfg)
	if err != nil {
		return nil, err
	}

	return New(Credentials{
		ClientID:   cfg.ClientID,
		Username:   cfg.Username,
		PrivateKey: key,
	}, append(cfg.Options(), opts...)...)
}

// LoadConfigFromEnv reads FORCEKIT_* variables from the process environment
// and the given .env files.
func LoadConfigFromEnv(envFiles ...string) (*Config, error) {
	return NewConfigLoader().FromEnv(envFiles...)
}

// LoadConfigFile reads a TOML or YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	return NewConfigLoader().FromFile(path)
}

// NewFromConfig builds a client from cfg using the OS filesystem.
func NewFromConfig(cfg *Config, opts ...Option) (*Client, error) {
	return NewConfigLoader().NewClient(cfg, opts...)
}
