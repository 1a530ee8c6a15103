// Package config loads gocrack configuration.
//
// Sources in increasing precedence: defaults, the config file, GOCRACK_*
// environment variables, runtime overrides (command flags).
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/gocrack/pkg/hashsource"
)

const (
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "GOCRACK"

	// ConfigName is the base name of config files.
	ConfigName = "gocrack"
)

// Config is the merged configuration.
type Config struct {
	Server   ServerConfig        `mapstructure:"server"`
	Logging  LoggingConfig       `mapstructure:"logging"`
	Metrics  MetricsConfig       `mapstructure:"metrics"`
	Health   HealthConfig        `mapstructure:"health"`
	Keyspace KeyspaceConfig      `mapstructure:"keyspace"`
	Digest   DigestConfig        `mapstructure:"digest"`
	Tasks    TasksConfig         `mapstructure:"tasks"`
	Liveness LivenessConfig      `mapstructure:"liveness"`
	Minion   MinionConfig        `mapstructure:"minion"`
	S3       hashsource.S3Config `mapstructure:"s3"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// Profile is STRUCTURED (JSON) or CONSOLE.
	Profile string `mapstructure:"profile"`
}

// JSON reports whether the profile asks for JSON output.
func (l LoggingConfig) JSON() bool {
	return !strings.EqualFold(l.Profile, "console")
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type KeyspaceConfig struct {
	Name string `mapstructure:"name"`
	// File is a YAML keyspace definition; it wins over Name.
	File string `mapstructure:"file"`
}

type DigestConfig struct {
	Algorithm string `mapstructure:"algorithm"`
}

type TasksConfig struct {
	// Slices per hash; zero means one per active minion.
	Slices int `mapstructure:"slices"`
}

type LivenessConfig struct {
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	// SweepInterval zero means HeartbeatTimeout/3.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// EffectiveSweepInterval resolves the zero default.
func (l LivenessConfig) EffectiveSweepInterval() time.Duration {
	if l.SweepInterval > 0 {
		return l.SweepInterval
	}
	return l.HeartbeatTimeout / 3
}

type MinionConfig struct {
	ID                string        `mapstructure:"id"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Capabilities      []string      `mapstructure:"capabilities"`
	CoordinatorURL    string        `mapstructure:"coordinator_url"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PollInterval      int           `mapstructure:"poll_interval"`
	ProgressInterval  int           `mapstructure:"progress_interval"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	IdleDelay         time.Duration `mapstructure:"idle_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		errs = append(errs, fmt.Errorf("metrics.port %d out of range", c.Metrics.Port))
	}
	if c.Tasks.Slices < 0 {
		errs = append(errs, fmt.Errorf("tasks.slices must be >= 0, got %d", c.Tasks.Slices))
	}
	if c.Liveness.HeartbeatTimeout <= 0 {
		errs = append(errs, errors.New("liveness.heartbeat_timeout must be positive"))
	}
	if c.Minion.PollInterval < 0 || c.Minion.ProgressInterval < 0 {
		errs = append(errs, errors.New("minion poll and progress intervals must be >= 0"))
	}
	return errors.Join(errs...)
}

// envSpec maps one environment variable onto a config key.
type envSpec struct {
	Name string
	Path string
}

func getEnvSpecs() []envSpec {
	pairs := [][2]string{
		{"HOST", "server.host"},
		{"PORT", "server.port"},
		{"READ_TIMEOUT", "server.read_timeout"},
		{"WRITE_TIMEOUT", "server.write_timeout"},
		{"IDLE_TIMEOUT", "server.idle_timeout"},
		{"SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{"LOG_LEVEL", "logging.level"},
		{"LOG_PROFILE", "logging.profile"},
		{"METRICS_ENABLED", "metrics.enabled"},
		{"METRICS_PORT", "metrics.port"},
		{"HEALTH_ENABLED", "health.enabled"},
		{"KEYSPACE", "keyspace.name"},
		{"KEYSPACE_FILE", "keyspace.file"},
		{"ALGORITHM", "digest.algorithm"},
		{"SLICES", "tasks.slices"},
		{"HEARTBEAT_TIMEOUT", "liveness.heartbeat_timeout"},
		{"SWEEP_INTERVAL", "liveness.sweep_interval"},
		{"MINION_ID", "minion.id"},
		{"MINION_HOST", "minion.host"},
		{"MINION_PORT", "minion.port"},
		{"MINION_CAPABILITIES", "minion.capabilities"},
		{"COORDINATOR_URL", "minion.coordinator_url"},
		{"HEARTBEAT_INTERVAL", "minion.heartbeat_interval"},
		{"POLL_INTERVAL", "minion.poll_interval"},
		{"PROGRESS_INTERVAL", "minion.progress_interval"},
		{"RETRY_DELAY", "minion.retry_delay"},
		{"IDLE_DELAY", "minion.idle_delay"},
		{"REQUEST_TIMEOUT", "minion.request_timeout"},
		{"S3_REGION", "s3.region"},
		{"S3_ENDPOINT", "s3.endpoint"},
		{"S3_PROFILE", "s3.profile"},
		{"S3_FORCE_PATH_STYLE", "s3.force_path_style"},
	}
	specs := make([]envSpec, 0, len(pairs))
	for _, p := range pairs {
		specs = append(specs, envSpec{Name: EnvPrefix + "_" + p[0], Path: p[1]})
	}
	return specs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("keyspace.name", "israel_phone")
	v.SetDefault("keyspace.file", "")
	v.SetDefault("digest.algorithm", "md5")
	v.SetDefault("tasks.slices", 0)

	v.SetDefault("liveness.heartbeat_timeout", "30s")
	v.SetDefault("liveness.sweep_interval", "0s")

	v.SetDefault("minion.id", "")
	v.SetDefault("minion.host", "127.0.0.1")
	v.SetDefault("minion.port", 8001)
	v.SetDefault("minion.capabilities", []string{})
	v.SetDefault("minion.coordinator_url", "http://localhost:8000")
	v.SetDefault("minion.heartbeat_interval", "5s")
	v.SetDefault("minion.poll_interval", 1000)
	v.SetDefault("minion.progress_interval", 100000)
	v.SetDefault("minion.retry_delay", "5s")
	v.SetDefault("minion.idle_delay", "1s")
	v.SetDefault("minion.request_timeout", "10s")

	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", false)
}

var (
	configMu   sync.RWMutex
	appConfig  *Config
	configFile string
)

// SetConfigFile pins an explicit config file for later Load calls. An empty
// path restores discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// Load merges all sources, validates the result and makes it the current
// config. Overrides are nested maps keyed like the config file.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()

	if err := readConfigFile(v, explicit); err != nil {
		return nil, err
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, value := range flatten("", o) {
			v.Set(key, value)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Minion.Capabilities = trimEmpty(cfg.Minion.Capabilities)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded config, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func readConfigFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	if root, err := findProjectRoot(); err == nil {
		v.AddConfigPath(root)
	}
	for _, p := range getUserConfigPaths() {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// getUserConfigPaths lists per-user config directories, most specific first.
func getUserConfigPaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ConfigName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigName))
	}
	return paths
}

// findProjectRoot walks up from the working directory to the nearest
// directory holding a gocrack.yaml, go.mod or .git. In CI the workspace
// variable wins when it is an absolute directory containing the working
// directory. Without a marker the working directory is returned.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for _, name := range []string{"GITHUB_WORKSPACE", "CI_PROJECT_DIR", "WORKSPACE"} {
		if root := os.Getenv(name); root != "" && isAncestor(root, cwd) {
			return filepath.Clean(root), nil
		}
	}

	for dir := cwd; ; {
		for _, marker := range []string{ConfigName + ".yaml", "go.mod", ".git"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd, nil
		}
		dir = parent
	}
}

func isAncestor(root, dir string) bool {
	if !filepath.IsAbs(root) {
		return false
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return false
	}
	rel, err := filepath.Rel(root, dir)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}

func trimEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
