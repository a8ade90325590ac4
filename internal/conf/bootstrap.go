// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// DefaultInlineSizeLimit is the largest payload sent inline (20MB).
	DefaultInlineSizeLimit int64 = 20 * 1024 * 1024
	// DefaultUploadSizeLimit is the largest payload accepted by the file API (2GB).
	DefaultUploadSizeLimit int64 = 2 * 1024 * 1024 * 1024
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with PUCKRELAY_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Secrets may be supplied without the prefix:
//   - GEMINI_API_KEY: primary provider API key
//   - FALLBACK_API_KEY: secondary provider API key
//   - ENCRYPTION_KEY: AES-256 key for "enc:" API keys
//   - REDIS_ADDR, MYSQL_DSN: storage endpoints
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PUCKRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("providers.primary.api_key", "GEMINI_API_KEY", "PUCKRELAY_PROVIDERS_PRIMARY_API_KEY")
	_ = v.BindEnv("providers.secondary.api_key", "FALLBACK_API_KEY", "PUCKRELAY_PROVIDERS_SECONDARY_API_KEY")
	_ = v.BindEnv("providers.encryption_key", "ENCRYPTION_KEY", "PUCKRELAY_PROVIDERS_ENCRYPTION_KEY")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "PUCKRELAY_DATA_REDIS_ADDR")
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "PUCKRELAY_DATA_DATABASE_SOURCE")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			HTTP: &ServerHTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: v.GetDuration("server.http.timeout"),
			},
		},
		Data: &Data{
			Redis: &DataRedis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				DB:           v.GetInt("data.redis.db"),
				ReadTimeout:  v.GetDuration("data.redis.read_timeout"),
				WriteTimeout: v.GetDuration("data.redis.write_timeout"),
			},
			Database: &DataDatabase{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			RateLimit: &DataRateLimit{
				Store:             strings.ToLower(v.GetString("data.rate_limit.store")),
				ReferenceTimezone: v.GetString("data.rate_limit.reference_timezone"),
				SweepCron:         v.GetString("data.rate_limit.sweep_cron"),
				KeyTTL:            v.GetDuration("data.rate_limit.key_ttl"),
			},
			UploadCache: &DataUploadCache{
				Size: v.GetInt("data.upload_cache.size"),
				TTL:  v.GetDuration("data.upload_cache.ttl"),
			},
		},
		Providers: &Providers{
			Primary:   readProvider(v, "providers.primary"),
			Secondary: readProvider(v, "providers.secondary"),

			EncryptionKey: v.GetString("providers.encryption_key"),
		},
		Pipeline: &Pipeline{
			MaxRetries:           v.GetInt("pipeline.max_retries"),
			RetryDelay:           v.GetDuration("pipeline.retry_delay"),
			TextTimeout:          v.GetDuration("pipeline.text_timeout"),
			MediaTimeout:         v.GetDuration("pipeline.media_timeout"),
			WatchdogGrace:        v.GetDuration("pipeline.watchdog_grace"),
			MaxConcurrentUploads: v.GetInt("pipeline.max_concurrent_uploads"),
			InlineVideoFPS:       v.GetInt("pipeline.inline_video_fps"),
			UploadedVideoFPS:     v.GetInt("pipeline.uploaded_video_fps"),
			Breaker: &Breaker{
				FailureThreshold: v.GetInt("pipeline.breaker.failure_threshold"),
				RecoveryTimeout:  v.GetDuration("pipeline.breaker.recovery_timeout"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// An unconfigured secondary is dropped so validation does not demand its fields.
	if !bc.Providers.Secondary.Configured() {
		bc.Providers.Secondary = nil
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

func readProvider(v *viper.Viper, prefix string) *Provider {
	p := &Provider{
		Identity:        v.GetString(prefix + ".identity"),
		BaseURL:         strings.TrimSuffix(v.GetString(prefix+".base_url"), "/"),
		UploadURL:       v.GetString(prefix + ".upload_url"),
		AuthMethod:      strings.ToLower(v.GetString(prefix + ".auth_method")),
		APIKey:          v.GetString(prefix + ".api_key"),
		Model:           v.GetString(prefix + ".model"),
		ImageModel:      v.GetString(prefix + ".image_model"),
		ProxyURL:        v.GetString(prefix + ".proxy_url"),
		InlineSizeLimit: v.GetInt64(prefix + ".inline_size_limit"),
		UploadSizeLimit: v.GetInt64(prefix + ".upload_size_limit"),
	}
	if p.AuthMethod == "" {
		p.AuthMethod = "header"
	}
	if p.InlineSizeLimit <= 0 {
		p.InlineSizeLimit = DefaultInlineSizeLimit
	}
	if p.UploadSizeLimit <= 0 {
		p.UploadSizeLimit = DefaultUploadSizeLimit
	}
	return p
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 10*time.Minute)

	// Data defaults
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)
	v.SetDefault("data.database.driver", "mysql")

	// Gemini resets its daily quota at midnight Pacific time.
	v.SetDefault("data.rate_limit.store", "redis")
	v.SetDefault("data.rate_limit.reference_timezone", "America/Los_Angeles")
	v.SetDefault("data.rate_limit.sweep_cron", "0 5 0 * * *")
	v.SetDefault("data.rate_limit.key_ttl", 48*time.Hour)

	// Uploaded files are retained for 48h by the provider.
	v.SetDefault("data.upload_cache.size", 256)
	v.SetDefault("data.upload_cache.ttl", 47*time.Hour)

	// Provider defaults
	v.SetDefault("providers.primary.identity", "gemini")
	v.SetDefault("providers.primary.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.primary.upload_url", "https://generativelanguage.googleapis.com/upload/v1beta/files")
	v.SetDefault("providers.primary.auth_method", "header")
	v.SetDefault("providers.primary.model", "gemini-2.5-flash")
	v.SetDefault("providers.primary.image_model", "gemini-2.5-flash-image")

	// Pipeline defaults
	v.SetDefault("pipeline.max_retries", 1)
	v.SetDefault("pipeline.retry_delay", 2*time.Second)
	v.SetDefault("pipeline.text_timeout", 60*time.Second)
	v.SetDefault("pipeline.media_timeout", 300*time.Second)
	v.SetDefault("pipeline.watchdog_grace", 15*time.Second)
	v.SetDefault("pipeline.max_concurrent_uploads", 0)
	v.SetDefault("pipeline.inline_video_fps", 1)
	v.SetDefault("pipeline.uploaded_video_fps", 5)
	v.SetDefault("pipeline.breaker.failure_threshold", 3)
	v.SetDefault("pipeline.breaker.recovery_timeout", 60*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

var validate = validator.New()

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing every offending field.
func Validate(bc *Bootstrap) error {
	if bc == nil {
		return fmt.Errorf("configuration is nil")
	}

	err := validate.Struct(bc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.TrimPrefix(fe.Namespace(), "Bootstrap."), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration fields: %s", strings.Join(fields, ", "))
}
