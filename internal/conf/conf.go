package conf

import "time"

// Bootstrap is the root configuration of the PuckRelay service.
type Bootstrap struct {
	Server    *Server    `validate:"required"`
	Data      *Data      `validate:"required"`
	Providers *Providers `validate:"required"`
	Pipeline  *Pipeline  `validate:"required"`
	Log       *Log       `validate:"required"`
}

// Server holds inbound transport settings.
type Server struct {
	HTTP *ServerHTTP `validate:"required"`
}

// ServerHTTP configures the Kratos HTTP server.
type ServerHTTP struct {
	Network string
	Addr    string `validate:"required"`
	Timeout time.Duration
}

// Data holds storage settings.
type Data struct {
	Redis       *DataRedis
	Database    *DataDatabase
	RateLimit   *DataRateLimit   `validate:"required"`
	UploadCache *DataUploadCache `validate:"required"`
}

// DataRedis configures the Redis client.
type DataRedis struct {
	Network      string
	Addr         string
	Password     string
	DB           int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DataDatabase configures the MySQL client.
type DataDatabase struct {
	Driver string
	Source string
}

// DataRateLimit configures the persisted rate-limit records.
type DataRateLimit struct {
	// Store selects the backend: redis, mysql or memory.
	Store string `validate:"oneof=redis mysql memory"`
	// ReferenceTimezone is the zone in which providers reset their daily quota.
	ReferenceTimezone string `validate:"required"`
	SweepCron         string
	KeyTTL            time.Duration
}

// DataUploadCache configures the uploaded-file URI cache.
type DataUploadCache struct {
	Size int           `validate:"gte=0"`
	TTL  time.Duration `validate:"gte=0"`
}

// Providers lists the generative-AI backends.
type Providers struct {
	Primary   *Provider `validate:"required"`
	Secondary *Provider
	// EncryptionKey opens API keys stored with the "enc:" prefix.
	EncryptionKey string
}

// Provider is a single backend definition.
type Provider struct {
	Identity        string `validate:"required"`
	BaseURL         string `validate:"required,url"`
	UploadURL       string `validate:"omitempty,url"`
	AuthMethod      string `validate:"oneof=query header bearer"`
	APIKey          string
	Model           string `validate:"required"`
	ImageModel      string
	ProxyURL        string `validate:"omitempty,url"`
	InlineSizeLimit int64  `validate:"gt=0"`
	UploadSizeLimit int64  `validate:"gtfield=InlineSizeLimit"`
}

// Configured reports whether the provider block was filled in.
func (p *Provider) Configured() bool {
	return p != nil && p.Identity != "" && p.BaseURL != ""
}

// Pipeline tunes retry, timeout and breaker behaviour.
type Pipeline struct {
	MaxRetries           int           `validate:"gte=0,lte=1"`
	RetryDelay           time.Duration `validate:"gte=0"`
	TextTimeout          time.Duration `validate:"gt=0"`
	MediaTimeout         time.Duration `validate:"gt=0"`
	WatchdogGrace        time.Duration `validate:"gte=0"`
	MaxConcurrentUploads int           `validate:"gte=0"`
	InlineVideoFPS       int           `validate:"gt=0"`
	UploadedVideoFPS     int           `validate:"gt=0"`
	Breaker              *Breaker      `validate:"required"`
}

// Breaker configures the per-provider circuit breaker.
type Breaker struct {
	FailureThreshold int           `validate:"gt=0"`
	RecoveryTimeout  time.Duration `validate:"gt=0"`
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
