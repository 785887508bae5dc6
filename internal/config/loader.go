// Package config loads bucketdir configuration from defaults, a YAML file,
// the environment and runtime overrides, in increasing priority.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/bucketdir/pkg/provider"
	"github.com/3leaps/bucketdir/pkg/vdir"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BUCKETDIR"

// ConfigName is the base name of the config file searched for.
const ConfigName = "bucketdir"

// Config is the effective application configuration.
type Config struct {
	Backend    string           `mapstructure:"backend" yaml:"backend"`
	Bucket     string           `mapstructure:"bucket" yaml:"bucket"`
	S3         S3Config         `mapstructure:"s3" yaml:"s3"`
	MinIO      MinIOConfig      `mapstructure:"minio" yaml:"minio"`
	File       FileConfig       `mapstructure:"file" yaml:"file"`
	Listing    ListingConfig    `mapstructure:"listing" yaml:"listing"`
	Operations OperationsConfig `mapstructure:"operations" yaml:"operations"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
}

type S3Config struct {
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Profile         string `mapstructure:"profile" yaml:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	UseIMDSRegion   bool   `mapstructure:"use_imds_region" yaml:"use_imds_region"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	Region    string `mapstructure:"region" yaml:"region"`
}

type FileConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

type ListingConfig struct {
	MaxKeys  int  `mapstructure:"max_keys" yaml:"max_keys"`
	Paginate bool `mapstructure:"paginate" yaml:"paginate"`
	MaxPages int  `mapstructure:"max_pages" yaml:"max_pages"`
}

type OperationsConfig struct {
	Concurrency int             `mapstructure:"concurrency" yaml:"concurrency"`
	KeyTimeout  time.Duration   `mapstructure:"key_timeout" yaml:"key_timeout"`
	RateLimit   float64         `mapstructure:"rate_limit" yaml:"rate_limit"`
	MoveMode    vdir.MoveMode   `mapstructure:"move_mode" yaml:"move_mode"`
	KeyMapping  vdir.KeyMapping `mapstructure:"key_mapping" yaml:"key_mapping"`
	DirPerm     os.FileMode     `mapstructure:"dir_perm" yaml:"dir_perm"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

var (
	configMu   sync.RWMutex
	appConfig  *Config
	configFile string
)

// SetConfigFile pins the config file read by Load. Empty restores the
// search in "." and $HOME/.config/bucketdir.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// Load builds the configuration. Each overrides map is nested by section
// ("server": {"port": 9000}) and wins over every other source.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.RLock()
	file := configFile
	configMu.RUnlock()

	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		for _, p := range getUserConfigPaths() {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(append([]string{spec.Path, spec.Name}, spec.Aliases...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for k, val := range flatten("", o) {
			v.Set(k, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", string(provider.ProviderS3))
	v.SetDefault("bucket", "")

	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.use_imds_region", false)
	v.SetDefault("minio.use_ssl", true)
	v.SetDefault("file.root", "")

	v.SetDefault("listing.max_keys", 100)
	v.SetDefault("listing.paginate", false)
	v.SetDefault("listing.max_pages", 0)

	v.SetDefault("operations.concurrency", 1)
	v.SetDefault("operations.key_timeout", "0s")
	v.SetDefault("operations.rate_limit", 0)
	v.SetDefault("operations.move_mode", string(vdir.MoveModePerKey))
	v.SetDefault("operations.key_mapping", string(vdir.KeyMappingBasename))
	v.SetDefault("operations.dir_perm", "0755")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// envSpec maps an environment variable (and its legacy aliases) to a
// config path.
type envSpec struct {
	Name    string
	Path    string
	Aliases []string
}

func getEnvSpecs() []envSpec {
	specs := []envSpec{
		{Name: "BACKEND", Path: "backend"},
		{Name: "BUCKET", Path: "bucket", Aliases: []string{"AWS_S3_BUCKET"}},
		{Name: "S3_REGION", Path: "s3.region", Aliases: []string{"AWS_S3_REGION"}},
		{Name: "S3_ENDPOINT", Path: "s3.endpoint"},
		{Name: "S3_PROFILE", Path: "s3.profile"},
		{Name: "S3_ACCESS_KEY_ID", Path: "s3.access_key_id", Aliases: []string{"AWS_S3_KEY"}},
		{Name: "S3_SECRET_ACCESS_KEY", Path: "s3.secret_access_key", Aliases: []string{"AWS_S3_SECRET"}},
		{Name: "S3_FORCE_PATH_STYLE", Path: "s3.force_path_style"},
		{Name: "S3_USE_IMDS_REGION", Path: "s3.use_imds_region"},
		{Name: "MINIO_ENDPOINT", Path: "minio.endpoint"},
		{Name: "MINIO_ACCESS_KEY", Path: "minio.access_key"},
		{Name: "MINIO_SECRET_KEY", Path: "minio.secret_key"},
		{Name: "MINIO_USE_SSL", Path: "minio.use_ssl"},
		{Name: "MINIO_REGION", Path: "minio.region"},
		{Name: "FILE_ROOT", Path: "file.root"},
		{Name: "MAX_KEYS", Path: "listing.max_keys"},
		{Name: "PAGINATE", Path: "listing.paginate"},
		{Name: "MAX_PAGES", Path: "listing.max_pages"},
		{Name: "CONCURRENCY", Path: "operations.concurrency"},
		{Name: "KEY_TIMEOUT", Path: "operations.key_timeout"},
		{Name: "RATE_LIMIT", Path: "operations.rate_limit"},
		{Name: "MOVE_MODE", Path: "operations.move_mode"},
		{Name: "KEY_MAPPING", Path: "operations.key_mapping"},
		{Name: "DIR_PERM", Path: "operations.dir_perm"},
		{Name: "LOG_LEVEL", Path: "logging.level"},
		{Name: "LOG_FORMAT", Path: "logging.format"},
		{Name: "HOST", Path: "server.host"},
		{Name: "PORT", Path: "server.port"},
		{Name: "READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: "WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: "IDLE_TIMEOUT", Path: "server.idle_timeout"},
		{Name: "SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
	}
	for i := range specs {
		specs[i].Name = EnvPrefix + "_" + specs[i].Name
	}
	return specs
}

func getUserConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigName))
	}
	return paths
}

// flatten turns {"server": {"port": 1}} into {"server.port": 1}.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToFileModeHook(),
		stringToEnumHook(),
	)
}

func stringToFileModeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(os.FileMode(0)) {
			return data, nil
		}
		s := strings.TrimPrefix(strings.TrimSpace(data.(string)), "0o")
		mode, err := strconv.ParseUint(s, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid file mode %q: %w", data, err)
		}
		return os.FileMode(mode), nil
	}
}

func stringToEnumHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String {
			return data, nil
		}
		switch to {
		case reflect.TypeOf(vdir.MoveMode("")):
			return vdir.ParseMoveMode(strings.ToLower(data.(string)))
		case reflect.TypeOf(vdir.KeyMapping("")):
			return vdir.ParseKeyMapping(strings.ToLower(data.(string)))
		}
		return data, nil
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, ok := provider.ParseProviderType(c.Backend); !ok {
		return fmt.Errorf("backend %q is not supported (want s3, minio or file)", c.Backend)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	return c.Driver().Validate()
}

// Driver returns the directory driver settings.
func (c *Config) Driver() vdir.Config {
	return vdir.Config{
		DefaultBucket: c.Bucket,
		MaxKeys:       c.Listing.MaxKeys,
		Paginate:      c.Listing.Paginate,
		MaxPages:      c.Listing.MaxPages,
		Concurrency:   c.Operations.Concurrency,
		KeyTimeout:    c.Operations.KeyTimeout,
		RateLimit:     c.Operations.RateLimit,
		MoveMode:      c.Operations.MoveMode,
		KeyMapping:    c.Operations.KeyMapping,
		DirPerm:       c.Operations.DirPerm,
	}
}

// Masked returns a copy with secrets obscured for display.
func (c *Config) Masked() *Config {
	out := *c
	if out.S3.AccessKeyID != "" {
		out.S3.AccessKeyID = MaskSecret(out.S3.AccessKeyID)
	}
	if out.S3.SecretAccessKey != "" {
		out.S3.SecretAccessKey = MaskSecret("")
	}
	if out.MinIO.AccessKey != "" {
		out.MinIO.AccessKey = MaskSecret(out.MinIO.AccessKey)
	}
	if out.MinIO.SecretKey != "" {
		out.MinIO.SecretKey = MaskSecret("")
	}
	return &out
}

// MaskSecret keeps the last four characters of keys longer than four.
func MaskSecret(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
