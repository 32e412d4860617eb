// Package config loads the service configuration from the environment.
//
// Every setting has a default. Load reads all variables, then validates the
// result with go-playground/validator; malformed values and failed rules are
// reported together, each under its variable name.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// CORSConfig lists origins allowed to call the API. Empty allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" validate:"gte=0"`
}

// OTELConfig configures trace export over OTLP/gRPC.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" validate:"required_if=Enabled true"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" validate:"required"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" validate:"gte=0,lte=1"`
}

// DBConfig selects the GORM dialector. sqlite uses Path, the server
// databases use DSN.
type DBConfig struct {
	Driver  string `env:"DB_DRIVER" validate:"oneof=sqlite postgres mysql"`
	DSN     string `env:"DB_DSN" validate:"required_unless=Driver sqlite"`
	Path    string `env:"DB_PATH" validate:"required_if=Driver sqlite"`
	Tracing bool   `env:"DB_TRACING"`
}

// WhatsAppConfig configures the Cloud API client and the webhook checks.
type WhatsAppConfig struct {
	APIURL        string        `env:"WHATSAPP_API_URL" validate:"url"`
	APIVersion    string        `env:"WHATSAPP_API_VERSION" validate:"required"`
	AccessToken   string        `env:"WHATSAPP_ACCESS_TOKEN"`
	PhoneNumberID string        `env:"WHATSAPP_PHONE_NUMBER_ID"`
	Timeout       time.Duration `env:"WHATSAPP_TIMEOUT" validate:"gt=0"`
	VerifyToken   string        `env:"WHATSAPP_VERIFY_TOKEN"`
	AppSecret     string        `env:"WHATSAPP_APP_SECRET"`
}

// Enabled reports whether outbound sends can be attempted.
func (w WhatsAppConfig) Enabled() bool {
	return w.AccessToken != "" && w.PhoneNumberID != ""
}

// StorageConfig configures the media bucket.
type StorageConfig struct {
	Root      string `env:"STORAGE_ROOT" validate:"required"`
	PublicURL string `env:"STORAGE_PUBLIC_URL" validate:"url"`
	Bucket    string `env:"STORAGE_BUCKET" validate:"required"`
}

// RealtimeConfig selects the change-notification transport.
type RealtimeConfig struct {
	Driver   string `env:"REALTIME_DRIVER" validate:"oneof=memory redis nats"`
	RedisURL string `env:"REDIS_URL" validate:"required_if=Driver redis"`
	NATSURL  string `env:"NATS_URL" validate:"required_if=Driver nats"`
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET" validate:"min=16"`
	Issuer     string        `env:"JWT_ISSUER" validate:"required"`
	SessionTTL time.Duration `env:"SESSION_TTL" validate:"gt=0"`
}

// Config is the full service configuration.
type Config struct {
	Port              string        `env:"PORT" validate:"required,numeric"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" validate:"gt=0"`
	// SSE and WebSocket streams clear their own write deadline.
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" validate:"gt=0"`
	MaxHeaderBytes int           `env:"MAX_HEADER_BYTES" validate:"gt=0"`
	// Cap for multipart image uploads; other bodies are held to 1 MiB.
	MaxBodyBytes int64  `env:"MAX_BODY_BYTES" validate:"gt=0"`
	GinMode      string `env:"GIN_MODE"`

	LogLevel       string `env:"LOG_LEVEL" validate:"oneof=trace debug info warn error fatal panic"`
	LogPretty      bool   `env:"LOG_PRETTY"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED"`
	APIBasePath    string `env:"API_BASE_PATH"`

	DB DBConfig

	RateRPS   float64 `env:"RATE_RPS" validate:"gte=0"`
	RateBurst int     `env:"RATE_BURST" validate:"gte=1"`

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" validate:"gt=0"`

	WhatsApp WhatsAppConfig
	Storage  StorageConfig
	Realtime RealtimeConfig
	Auth     AuthConfig

	NotifyBatchRPS float64 `env:"NOTIFY_BATCH_RPS" validate:"gt=0"`
	SurveyBaseURL  string  `env:"SURVEY_BASE_URL" validate:"url"`

	// Sweep of expired sessions and idempotency records.
	PurgeInterval time.Duration `env:"PURGE_INTERVAL" validate:"gt=0"`

	OTEL OTELConfig
}

// MustLoad is Load for callers that cannot continue without a config.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, normalizes aliases (warning, postgresql) and
// validates the result.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.duration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(e.integer("MAX_BODY_BYTES", 16<<20)),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.flag("LOG_PRETTY", false),
		SwaggerEnabled: e.flag("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver:  strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			DSN:     e.str("DB_DSN", ""),
			Path:    e.str("DB_PATH", "app.db"),
			Tracing: e.flag("DB_TRACING", true),
		},

		RateRPS:   e.decimal("RATE_RPS", 5),
		RateBurst: e.integer("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		WhatsApp: WhatsAppConfig{
			APIURL:        strings.TrimRight(e.str("WHATSAPP_API_URL", "https://graph.facebook.com"), "/"),
			APIVersion:    e.str("WHATSAPP_API_VERSION", "v18.0"),
			AccessToken:   e.str("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneNumberID: e.str("WHATSAPP_PHONE_NUMBER_ID", ""),
			Timeout:       e.duration("WHATSAPP_TIMEOUT", 10*time.Second),
			VerifyToken:   e.str("WHATSAPP_VERIFY_TOKEN", ""),
			AppSecret:     e.str("WHATSAPP_APP_SECRET", ""),
		},
		Storage: StorageConfig{
			Root:      e.str("STORAGE_ROOT", "data/storage"),
			PublicURL: strings.TrimRight(e.str("STORAGE_PUBLIC_URL", "http://localhost:8080/storage"), "/"),
			Bucket:    e.str("STORAGE_BUCKET", "message-media"),
		},
		Realtime: RealtimeConfig{
			Driver:   strings.ToLower(e.str("REALTIME_DRIVER", "memory")),
			RedisURL: e.str("REDIS_URL", "redis://localhost:6379/0"),
			NATSURL:  e.str("NATS_URL", "nats://127.0.0.1:4222"),
		},
		Auth: AuthConfig{
			JWTSecret:  e.str("JWT_SECRET", "dev-only-secret-change-me"),
			Issuer:     e.str("JWT_ISSUER", "pst-admin-backend"),
			SessionTTL: e.duration("SESSION_TTL", 12*time.Hour),
		},

		NotifyBatchRPS: e.decimal("NOTIFY_BATCH_RPS", 1),
		SurveyBaseURL:  e.str("SURVEY_BASE_URL", "https://pst.example.id"),
		PurgeInterval:  e.duration("PURGE_INTERVAL", 15*time.Minute),

		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "pst-admin-backend"),
			SampleRatio: e.decimal("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	errs := e.errs
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return cfg, err
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: fails %s", fe.Field(), rule(fe)))
		}
	}
	return cfg, errors.Join(errs...)
}

// validate names fields by their env tag so errors point at the variable.
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}()

func rule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// env reads variables, keeping parse failures for Load to report. Unset and
// empty variables take the default; values are trimmed.
type env struct{ errs []error }

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	return parse(e, k, def, strconv.Atoi)
}

func (e *env) decimal(k string, def float64) float64 {
	return parse(e, k, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	return parse(e, k, def, time.ParseDuration)
}

func (e *env) flag(k string, def bool) bool {
	return parse(e, k, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean %q", s)
	})
}

func parse[T any](e *env, k string, def T, conv func(string) (T, error)) T {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	out, err := conv(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return out
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// blank input is the root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
