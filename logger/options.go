package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/gaborage/go-ignition/apperrors"
	"github.com/gaborage/go-ignition/config"
)

const (
	ModeShort = "short"
	ModeLong  = "long"

	// Environment variables read once by New.
	EnvLoin  = "LOIN"
	EnvLevel = "LEVEL"
	EnvMode  = "MODE"
)

// Options configures a logger. Zero fields take the documented defaults.
type Options struct {
	Env        string   `koanf:"env" validate:"required"`
	Domain     string   `koanf:"domain" validate:"required"`
	Transports []string `koanf:"transports" validate:"dive,required"`
	Level      string   `koanf:"level" validate:"oneof=info warn error"`
	Mode       string   `koanf:"mode" validate:"oneof=short long"`
	// Path is the folder for file transports. A trailing slash is added.
	Path     string          `koanf:"path"`
	Rotation RotationOptions `koanf:"rotation"`
	Loggly   LogglyOptions   `koanf:"loggly"`
	AMQP     AMQPOptions     `koanf:"amqp"`
	OTel     OTelOptions     `koanf:"otel"`

	// Console destinations, os.Stdout and os.Stderr by default.
	Stdout io.Writer `koanf:"-"`
	Stderr io.Writer `koanf:"-"`

	clock func() time.Time
	dial  amqpDialFunc
}

// RotationOptions turns the file transport into periodically rotated files.
type RotationOptions struct {
	Enabled bool `koanf:"enabled"`
	// Period is <n><unit> with unit one of ms, h, d, w, m (30 days), y (365 days).
	Period string `koanf:"period" validate:"rotation_period"`
	// Count is the number of rotated files kept.
	Count int `koanf:"count" validate:"gte=0"`
}

// LogglyOptions configures the loggly transport.
type LogglyOptions struct {
	Token     string        `koanf:"token"`
	Subdomain string        `koanf:"subdomain"`
	Tags      []string      `koanf:"tags"`
	Match     string        `koanf:"match"`
	Endpoint  string        `koanf:"endpoint"`
	Timeout   time.Duration `koanf:"timeout"`
	// RateLimit is the maximum number of records per second; 0 disables throttling.
	RateLimit float64 `koanf:"ratelimit" validate:"gte=0"`
	Burst     int     `koanf:"burst" validate:"gte=0"`
}

// AMQPOptions configures the amqp transport.
type AMQPOptions struct {
	URL        string        `koanf:"url"`
	Exchange   string        `koanf:"exchange"`
	RoutingKey string        `koanf:"routingkey"`
	Match      string        `koanf:"match"`
	Timeout    time.Duration `koanf:"timeout"`
}

// OTelOptions configures the otel transport.
type OTelOptions struct {
	// Endpoint is an OTLP/HTTP host:port, or "stdout" for the stdout exporter.
	Endpoint string            `koanf:"endpoint"`
	Insecure bool              `koanf:"insecure"`
	Headers  map[string]string `koanf:"headers"`
	Match    string            `koanf:"match"`
	// Provider takes precedence over Endpoint and is not shut down by Close.
	Provider *sdklog.LoggerProvider `koanf:"-"`
}

// DefaultOptions returns the defaults applied to zero fields.
func DefaultOptions() Options {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return Options{
		Env:        config.EnvDevelopment,
		Domain:     "localhost",
		Transports: []string{TransportStdout},
		Level:      LevelInfo.String(),
		Mode:       ModeShort,
		Path:       cwd,
		Rotation: RotationOptions{
			Period: "1w",
			Count:  100,
		},
		Loggly: LogglyOptions{
			Timeout: 5 * time.Second,
		},
		AMQP: AMQPOptions{
			Exchange:   "logs",
			RoutingKey: "log",
			Timeout:    5 * time.Second,
		},
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// OptionsFromConfig reads the "logging" section. env falls back to the
// configuration's resolved environment. Unknown transports and transports
// missing their required settings are reported as *config.ConfigError.
func OptionsFromConfig(cfg config.Provider) (Options, error) {
	var opts Options
	if cfg == nil {
		return opts, nil
	}
	if cfg.Exists("logging") {
		if err := cfg.Unmarshal("logging", &opts); err != nil {
			return opts, fmt.Errorf("failed to decode logging configuration: %w", err)
		}
	}
	if opts.Env == "" {
		opts.Env = cfg.GetString("env")
	}
	for _, name := range opts.Transports {
		if _, ok := transportFactories[name]; !ok {
			return opts, config.NewInvalidFieldError("logging.transports",
				fmt.Sprintf("unsupported transport %q", name), supportedTransports)
		}
		if key, ok := requiredTransportKeys[name]; ok {
			if _, err := cfg.GetRequiredString(key); err != nil {
				return opts, err
			}
		}
	}
	return opts, nil
}

// requiredTransportKeys are the settings a transport cannot start without
// when it is configured from a config.Provider.
var requiredTransportKeys = map[string]string{
	TransportLoggly: "logging.loggly.token",
	TransportAMQP:   "logging.amqp.url",
	TransportOTel:   "logging.otel.endpoint",
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Env == "" {
		o.Env = d.Env
	}
	if o.Domain == "" {
		o.Domain = d.Domain
	}
	if len(o.Transports) == 0 {
		o.Transports = d.Transports
	}
	if o.Level == "" {
		o.Level = d.Level
	}
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.Path == "" {
		o.Path = d.Path
	}
	if !strings.HasSuffix(o.Path, "/") {
		o.Path += "/"
	}
	if o.Rotation.Period == "" {
		o.Rotation.Period = d.Rotation.Period
	}
	if o.Rotation.Count == 0 {
		o.Rotation.Count = d.Rotation.Count
	}
	if o.Loggly.Timeout == 0 {
		o.Loggly.Timeout = d.Loggly.Timeout
	}
	if o.AMQP.Exchange == "" {
		o.AMQP.Exchange = d.AMQP.Exchange
	}
	if o.AMQP.RoutingKey == "" {
		o.AMQP.RoutingKey = d.AMQP.RoutingKey
	}
	if o.AMQP.Timeout == 0 {
		o.AMQP.Timeout = d.AMQP.Timeout
	}
	if o.Stdout == nil {
		o.Stdout = d.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = d.Stderr
	}
	return o
}

// withEnvOverrides applies LOIN, LEVEL and MODE. LOIN wins over both.
func (o Options) withEnvOverrides(getenv func(string) string) Options {
	if v := getenv(EnvLevel); v != "" {
		o.Level = strings.ToLower(v)
	}
	if v := getenv(EnvMode); v != "" {
		o.Mode = strings.ToLower(v)
	}
	if getenv(EnvLoin) != "" {
		o.Level = LevelInfo.String()
		o.Mode = ModeLong
	}
	return o
}

var rotationPeriodPattern = regexp.MustCompile(`^(\d+)(ms|h|d|w|m|y)$`)

var optionsValidator = newOptionsValidator()

func newOptionsValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("rotation_period", func(fl validator.FieldLevel) bool {
		_, err := ParseRotationPeriod(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	return v
}

func (o Options) validate() error {
	err := optionsValidator.Struct(o)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		ve := apperrors.FromValidationErrors(verrs)
		return apperrors.New(apperrors.IncorrectUsageError,
			apperrors.WithMessage(ve.Message),
			apperrors.WithContext("invalid logger options"),
			apperrors.WithErrorDetails(ve.ErrorDetails...),
		)
	}
	return apperrors.New(apperrors.IncorrectUsageError, apperrors.WithCause(err))
}

// ParseRotationPeriod converts "<n><unit>" into a duration.
func ParseRotationPeriod(s string) (time.Duration, error) {
	m := rotationPeriodPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid rotation period %q", s)
	}
	var n int64
	if _, err := fmt.Sscan(m[1], &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid rotation period %q", s)
	}
	day := 24 * time.Hour
	unit := map[string]time.Duration{
		"ms": time.Millisecond,
		"h":  time.Hour,
		"d":  day,
		"w":  7 * day,
		"m":  30 * day,
		"y":  365 * day,
	}[m[2]]
	return time.Duration(n) * unit, nil
}
