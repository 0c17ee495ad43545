package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-ignition/apperrors"
	"github.com/gaborage/go-ignition/config"
)

func TestWithDefaults(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	o := Options{}.withDefaults()

	assert.Equal(t, config.EnvDevelopment, o.Env)
	assert.Equal(t, "localhost", o.Domain)
	assert.Equal(t, []string{TransportStdout}, o.Transports)
	assert.Equal(t, "info", o.Level)
	assert.Equal(t, ModeShort, o.Mode)
	assert.Equal(t, cwd+"/", o.Path)
	assert.Equal(t, RotationOptions{Enabled: false, Period: "1w", Count: 100}, o.Rotation)
	assert.Equal(t, "logs", o.AMQP.Exchange)
	assert.Equal(t, 5*time.Second, o.Loggly.Timeout)
	assert.Equal(t, os.Stdout, o.Stdout)
	assert.Equal(t, os.Stderr, o.Stderr)
}

func TestWithDefaultsKeepsTrailingSlash(t *testing.T) {
	o := Options{Path: "/var/log/app/"}.withDefaults()

	assert.Equal(t, "/var/log/app/", o.Path)
}

func TestWithEnvOverrides(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantLevel string
		wantMode  string
	}{
		{name: "none", env: nil, wantLevel: "error", wantMode: ModeShort},
		{name: "level", env: map[string]string{EnvLevel: "WARN"}, wantLevel: "warn", wantMode: ModeShort},
		{name: "mode", env: map[string]string{EnvMode: "long"}, wantLevel: "error", wantMode: ModeLong},
		{name: "loin_wins", env: map[string]string{EnvLoin: "true", EnvLevel: "error", EnvMode: "short"}, wantLevel: "info", wantMode: ModeLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }

			o := Options{Level: "error", Mode: ModeShort}.withEnvOverrides(getenv)

			assert.Equal(t, tt.wantLevel, o.Level)
			assert.Equal(t, tt.wantMode, o.Mode)
		})
	}
}

func TestValidateReportsDetails(t *testing.T) {
	err := Options{Env: "x", Domain: "d", Level: "loud", Mode: ModeShort, Rotation: RotationOptions{Period: "1w"}}.validate()

	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.IncorrectUsageError, appErr.Kind)
	require.Len(t, appErr.ErrorDetails, 1)
	assert.Equal(t, "oneof", appErr.ErrorDetails[0]["rule"])
}

func TestParseRotationPeriod(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "500ms", want: 500 * time.Millisecond},
		{in: "6h", want: 6 * time.Hour},
		{in: "1d", want: day},
		{in: "1w", want: 7 * day},
		{in: "2m", want: 60 * day},
		{in: "1y", want: 365 * day},
		{in: "0d", wantErr: true},
		{in: "1x", wantErr: true},
		{in: "w", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRotationPeriod(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.example.yaml"), []byte(`
logging:
  domain: api.example.com
  transports: [stdout, file]
  mode: long
  rotation:
    enabled: true
    period: 1d
    count: 7
  amqp:
    url: amqp://localhost
    exchange: audit
`), 0o600))

	cfg, err := config.NewLoader(
		config.WithRoot(root),
		config.WithArgs(nil),
		config.WithEnviron(func() []string { return []string{"APP_ENV=staging", "LOGGING__LEVEL=warn"} }),
	).Load()
	require.NoError(t, err)

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "staging", opts.Env)
	assert.Equal(t, "api.example.com", opts.Domain)
	assert.Equal(t, []string{"stdout", "file"}, opts.Transports)
	assert.Equal(t, "warn", opts.Level)
	assert.Equal(t, ModeLong, opts.Mode)
	assert.Equal(t, RotationOptions{Enabled: true, Period: "1d", Count: 7}, opts.Rotation)
	assert.Equal(t, "amqp://localhost", opts.AMQP.URL)
	assert.Equal(t, "audit", opts.AMQP.Exchange)
}

func TestOptionsFromNilConfig(t *testing.T) {
	opts, err := OptionsFromConfig(nil)

	require.NoError(t, err)
	assert.Equal(t, Options{}, opts)
}

func TestOptionsFromConfigRejectsIncompleteTransports(t *testing.T) {
	tests := []struct {
		name         string
		yaml         string
		wantCategory string
		wantField    string
		wantAction   string
	}{
		{
			name:         "unknown_transport",
			yaml:         "logging:\n  transports: [stdout, kafka]\n",
			wantCategory: "invalid",
			wantField:    "logging.transports",
			wantAction:   "must be one of: stdout, stderr, file, loggly, amqp, otel",
		},
		{
			name:         "loggly_without_token",
			yaml:         "logging:\n  transports: [loggly]\n",
			wantCategory: "missing",
			wantField:    "logging.loggly.token",
		},
		{
			name:         "amqp_with_empty_url",
			yaml:         "logging:\n  transports: [amqp]\n  amqp:\n    url: \"\"\n",
			wantCategory: "invalid",
			wantField:    "logging.amqp.url",
		},
		{
			name:         "otel_without_endpoint",
			yaml:         "logging:\n  transports: [otel]\n",
			wantCategory: "missing",
			wantField:    "logging.otel.endpoint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, "config.example.yaml"), []byte(tt.yaml), 0o600))
			cfg, err := config.NewLoader(
				config.WithRoot(root),
				config.WithArgs(nil),
				config.WithEnviron(func() []string { return nil }),
			).Load()
			require.NoError(t, err)

			_, err = OptionsFromConfig(cfg)

			var cerr *config.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantCategory, cerr.Category)
			assert.Equal(t, tt.wantField, cerr.Field)
			if tt.wantAction != "" {
				assert.Equal(t, tt.wantAction, cerr.Action)
			}
		})
	}
}
