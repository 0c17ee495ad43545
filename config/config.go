package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// EnvDevelopment is the environment used when APP_ENV is unset.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// EnvVar selects the environment-specific config file.
	EnvVar = "APP_ENV"

	// KeySeparator splits nested environment variable names (SERVER__PORT -> server.port).
	KeySeparator = "__"

	defaultsBaseName = "config.example"
)

var fileExtensions = []string{".json", ".yaml", ".yml"}

// Provider is the read-only view of a loaded configuration.
type Provider interface {
	Get(key string) any
	GetString(key string, defaultVal ...string) string
	GetInt(key string, defaultVal ...int) int
	GetBool(key string, defaultVal ...bool) bool
	GetDuration(key string, defaultVal ...time.Duration) time.Duration
	GetStringSlice(key string, defaultVal ...[]string) []string
	GetRequiredString(key string) (string, error)
	Exists(key string) bool
	All() map[string]any
	Unmarshal(key string, out any) error
}

// Config holds one resolved configuration snapshot.
type Config struct {
	k    *koanf.Koanf
	env  string
	root string
}

// Env returns the environment this snapshot was resolved for.
func (c *Config) Env() string {
	if c == nil {
		return ""
	}
	return c.env
}

// Root returns the directory config files were read from.
func (c *Config) Root() string {
	if c == nil {
		return ""
	}
	return c.root
}

// Loader resolves configuration layers and caches the result.
// The zero value is not usable; create loaders with NewLoader.
type Loader struct {
	root    string
	args    []string
	environ func() []string
	warnf   func(format string, args ...any)

	mu     sync.RWMutex
	cached *Config
	group  singleflight.Group
}

// Option customizes a Loader.
type Option func(*Loader)

// WithRoot sets the directory searched for config files.
func WithRoot(dir string) Option {
	return func(l *Loader) {
		l.root = dir
	}
}

// WithArgs replaces the command-line arguments (os.Args[1:] by default).
func WithArgs(args []string) Option {
	return func(l *Loader) {
		l.args = args
	}
}

// WithEnviron replaces the environment source (os.Environ by default).
func WithEnviron(environ func() []string) Option {
	return func(l *Loader) {
		l.environ = environ
	}
}

// WithWarningf redirects missing or unreadable file warnings.
func WithWarningf(fn func(format string, args ...any)) Option {
	return func(l *Loader) {
		l.warnf = fn
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		warnf: func(format string, args ...any) {
			fmt.Printf("Warning: "+format+"\n", args...)
		},
	}
	if len(os.Args) > 1 {
		l.args = os.Args[1:]
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the cached configuration, resolving it on first use.
// Concurrent first calls share a single resolution.
func (l *Loader) Load() (*Config, error) {
	l.mu.RLock()
	cfg := l.cached
	l.mu.RUnlock()
	if cfg != nil {
		return cfg, nil
	}

	v, err, _ := l.group.Do("load", func() (any, error) {
		l.mu.RLock()
		existing := l.cached
		l.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		return l.resolve()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Config), nil
}

// Reload resolves the configuration again, bypassing and refreshing the cache.
func (l *Loader) Reload() (*Config, error) {
	return l.resolve()
}

// Load resolves configuration with a fresh default Loader.
func Load() (*Config, error) {
	return NewLoader().Load()
}

func (l *Loader) resolve() (*Config, error) {
	root := l.root
	if root == "" {
		root = findRoot()
	}

	var env string
	if l.environ != nil {
		env = lookupEnv(l.environ(), EnvVar)
	} else {
		env = os.Getenv(EnvVar)
	}
	if env == "" {
		env = EnvDevelopment
	}

	k := koanf.New(".")

	// Layers, lowest priority first.
	l.loadFile(k, root, defaultsBaseName)
	l.loadFile(k, root, "config."+env)

	if err := l.loadEnviron(k); err != nil {
		return nil, err
	}

	flags, err := parseArgs(l.args)
	if err != nil {
		return nil, err
	}
	if len(flags) > 0 {
		if err := k.Load(confmap.Provider(flags, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load command-line arguments: %w", err)
		}
	}

	if err := k.Set("env", env); err != nil {
		return nil, fmt.Errorf("failed to set env: %w", err)
	}

	cfg := &Config{k: k, env: env, root: root}

	l.mu.Lock()
	l.cached = cfg
	l.mu.Unlock()

	return cfg, nil
}

// loadFile loads <root>/<base><ext> for the first supported extension that exists.
// JSON is a subset of YAML, so both go through the yaml parser.
func (l *Loader) loadFile(k *koanf.Koanf, root, base string) {
	for _, ext := range fileExtensions {
		path := filepath.Join(root, base+ext)
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				l.warnf("could not stat %s: %v", path, err)
			}
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			l.warnf("could not load %s: %v", path, err)
		}
		return
	}
}

// findRoot returns the nearest ancestor of the working directory holding a go.mod,
// falling back to the working directory itself.
func findRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}

// loadEnviron layers environment variables, mapping A__B to a.b.
func (l *Loader) loadEnviron(k *koanf.Koanf) error {
	var err error
	if l.environ != nil {
		err = k.Load(confmap.Provider(environToMap(l.environ()), "."), nil)
	} else {
		err = k.Load(envprovider.Provider("", ".", envKey), nil)
	}
	if err != nil {
		return &ConfigError{
			Category: "invalid",
			Field:    "environment",
			Message:  fmt.Sprintf("failed to load environment variables: %v", err),
		}
	}
	return nil
}

func envKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, KeySeparator, "."))
}

func lookupEnv(environ []string, key string) string {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if ok && name == key {
			return value
		}
	}
	return ""
}

func environToMap(environ []string) map[string]any {
	out := make(map[string]any, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		out[envKey(name)] = value
	}
	return out
}
