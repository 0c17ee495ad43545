package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDefaults = `{
  "server": {"port": 8080, "host": "0.0.0.0"},
  "logging": {"level": "info", "transports": ["stdout"]},
  "name": "defaults"
}`
	testDevelopment = `{
  "server": {"port": 3000},
  "name": "development"
}`
	testProduction = `
server:
  port: 80
name: production
`
)

func writeConfigFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func staticEnviron(vars ...string) func() []string {
	return func() []string { return vars }
}

func newTestLoader(t *testing.T, dir string, environ []string, args ...string) *Loader {
	t.Helper()
	return NewLoader(
		WithRoot(dir),
		WithEnviron(staticEnviron(environ...)),
		WithArgs(args),
		WithWarningf(func(string, ...any) {}),
	)
}

func TestLoadLayers(t *testing.T) {
	dir := writeConfigFiles(t, map[string]string{
		"config.example.json":     testDefaults,
		"config.development.json": testDevelopment,
		"config.production.yaml":  testProduction,
	})

	tests := []struct {
		name     string
		environ  []string
		args     []string
		wantPort int
		wantName string
		wantEnv  string
	}{
		{
			name:     "defaults overridden by development file",
			wantPort: 3000,
			wantName: "development",
			wantEnv:  EnvDevelopment,
		},
		{
			name:     "env selects yaml file",
			environ:  []string{"APP_ENV=production"},
			wantPort: 80,
			wantName: "production",
			wantEnv:  EnvProduction,
		},
		{
			name:     "environment variables beat files",
			environ:  []string{"SERVER__PORT=4000"},
			wantPort: 4000,
			wantName: "development",
			wantEnv:  EnvDevelopment,
		},
		{
			name:     "argv beats environment",
			environ:  []string{"SERVER__PORT=4000", "NAME=env"},
			args:     []string{"--server.port=5000", "--name", "argv"},
			wantPort: 5000,
			wantName: "argv",
			wantEnv:  EnvDevelopment,
		},
		{
			name:     "unknown environment keeps defaults",
			environ:  []string{"APP_ENV=staging"},
			wantPort: 8080,
			wantName: "defaults",
			wantEnv:  "staging",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := newTestLoader(t, dir, tt.environ, tt.args...).Load()
			require.NoError(t, err)

			assert.Equal(t, tt.wantPort, cfg.GetInt("server.port"))
			assert.Equal(t, tt.wantName, cfg.GetString("name"))
			assert.Equal(t, tt.wantEnv, cfg.GetString("env"))
			assert.Equal(t, tt.wantEnv, cfg.Env())
			assert.Equal(t, "0.0.0.0", cfg.GetString("server.host"))
		})
	}
}

func TestLoadWithoutFiles(t *testing.T) {
	cfg, err := newTestLoader(t, t.TempDir(), nil).Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.GetString("env"))
	assert.False(t, cfg.Exists("server.port"))
	assert.Equal(t, 8080, cfg.GetInt("server.port", 8080))
}

func TestLoadInvalidFileWarns(t *testing.T) {
	dir := writeConfigFiles(t, map[string]string{
		"config.example.json": "{ not: [valid",
	})
	var warnings []string
	loader := NewLoader(
		WithRoot(dir),
		WithEnviron(staticEnviron()),
		WithArgs(nil),
		WithWarningf(func(format string, _ ...any) { warnings = append(warnings, format) }),
	)

	_, err := loader.Load()
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestLoadIsCached(t *testing.T) {
	dir := writeConfigFiles(t, map[string]string{"config.example.json": testDefaults})
	loader := newTestLoader(t, dir, nil)

	first, err := loader.Load()
	require.NoError(t, err)
	second, err := loader.Load()
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.development.json"), []byte(`{"name":"changed"}`), 0o600))

	cached, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "defaults", cached.GetString("name"))

	reloaded, err := loader.Reload()
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Equal(t, "changed", reloaded.GetString("name"))

	after, err := loader.Load()
	require.NoError(t, err)
	assert.Same(t, reloaded, after)
}

func TestLoadConcurrentFirstCallsShareResult(t *testing.T) {
	dir := writeConfigFiles(t, map[string]string{"config.example.json": testDefaults})
	loader := newTestLoader(t, dir, nil)

	const workers = 16
	results := make([]*Config, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg, err := loader.Load()
			assert.NoError(t, err)
			results[i] = cfg
		}(i)
	}
	wg.Wait()

	for _, cfg := range results[1:] {
		assert.Same(t, results[0], cfg)
	}
}

func TestLoadFromProcessEnvironment(t *testing.T) {
	t.Setenv("IGNITION_TEST__NESTED__VALUE", "42")
	t.Setenv(EnvVar, "test")

	cfg, err := NewLoader(WithRoot(t.TempDir()), WithArgs(nil)).Load()
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.GetInt("ignition_test.nested.value"))
	assert.Equal(t, "test", cfg.Env())
}

func TestFindRootUsesNearestGoMod(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/x\n"), 0o600))
	t.Chdir(nested)

	root, err := filepath.EvalSymlinks(findRoot())
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, root)
}

func TestAccessors(t *testing.T) {
	dir := writeConfigFiles(t, map[string]string{
		"config.example.yaml": `
server:
  port: "8081"
  timeout: 15s
  grace: 250
features:
  enabled: "true"
  list: [a, b]
  csv: "x, y,,z"
  bad: "nope"
logging:
  level: warn
  mode: long
`,
	})
	cfg, err := newTestLoader(t, dir, nil).Load()
	require.NoError(t, err)

	t.Run("typed getters", func(t *testing.T) {
		assert.Equal(t, 8081, cfg.GetInt("server.port"))
		assert.Equal(t, 15*time.Second, cfg.GetDuration("server.timeout"))
		assert.Equal(t, 250*time.Millisecond, cfg.GetDuration("server.grace"))
		assert.True(t, cfg.GetBool("features.enabled"))
		assert.Equal(t, []string{"a", "b"}, cfg.GetStringSlice("features.list"))
		assert.Equal(t, []string{"x", "y", "z"}, cfg.GetStringSlice("features.csv"))
		assert.Equal(t, "8081", cfg.GetString("server.port"))
	})

	t.Run("defaults on missing or invalid", func(t *testing.T) {
		assert.Equal(t, 7, cfg.GetInt("missing", 7))
		assert.Equal(t, 9, cfg.GetInt("features.bad", 9))
		assert.True(t, cfg.GetBool("features.bad", true))
		assert.Equal(t, "fallback", cfg.GetString("missing", "fallback"))
		assert.Equal(t, time.Second, cfg.GetDuration("missing", time.Second))
		assert.Equal(t, []string{"d"}, cfg.GetStringSlice("missing", []string{"d"}))
		assert.Nil(t, cfg.Get("missing"))
	})

	t.Run("required string", func(t *testing.T) {
		_, err := cfg.GetRequiredString("missing.key")
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "missing", cfgErr.Category)
		assert.Contains(t, err.Error(), "MISSING__KEY")

		v, err := cfg.GetRequiredString("logging.level")
		require.NoError(t, err)
		assert.Equal(t, "warn", v)
	})

	t.Run("unmarshal section", func(t *testing.T) {
		var out struct {
			Level string `koanf:"level"`
			Mode  string `koanf:"mode"`
		}
		require.NoError(t, cfg.Unmarshal("logging", &out))
		assert.Equal(t, "warn", out.Level)
		assert.Equal(t, "long", out.Mode)
	})

	t.Run("all is flattened", func(t *testing.T) {
		all := cfg.All()
		assert.Equal(t, "warn", all["logging.level"])
		assert.Equal(t, EnvDevelopment, all["env"])
	})
}

func TestNilConfigIsSafe(t *testing.T) {
	var cfg *Config
	assert.False(t, cfg.Exists("a"))
	assert.Equal(t, "x", cfg.GetString("a", "x"))
	assert.Nil(t, cfg.All())
	assert.Error(t, cfg.Unmarshal("", &struct{}{}))
}

func TestProviderInterface(t *testing.T) {
	var _ Provider = (*Config)(nil)
}
