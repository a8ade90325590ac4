// Package main is the entry point of PuckRelay service.
// It initializes the Kratos application with the HTTP server and the
// rate limit sweeper.
package main

import (
	"flag"
	"os"

	"PuckRelay/internal/conf"
	zapLogger "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/joho/godotenv"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "PuckRelay"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string
	// flagseal prints the "enc:" form of a secret and exits.
	flagseal string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
	flag.StringVar(&flagseal, "seal", "", "encrypt an api key with ENCRYPTION_KEY and print it, eg: -seal AIza...")
}

func newApp(logger log.Logger, hs *http.Server, sweeper *RateLimitSweeper) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
			sweeper,
		),
	)
}

func main() {
	flag.Parse()

	// 本地开发时从 .env 读取密钥，文件不存在时忽略
	_ = godotenv.Load()

	// Load configuration using Viper with environment variable and CLI flag support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	if flagseal != "" {
		if err := sealSecret(os.Stdout, bc.Providers.EncryptionKey, flagseal); err != nil {
			log.Fatalf("failed to seal secret: %v", err)
		}
		return
	}

	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer func() { _ = zapLog.Sync() }()

	logger := zapLogger.NewKratosAdapter(zapLog)

	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	secondary := ""
	if bc.Providers.Secondary != nil {
		secondary = bc.Providers.Secondary.Identity
	}
	zapLogger.NewLogHelper(logger).Startup("PuckRelay service starting",
		"http.addr", bc.Server.HTTP.Addr,
		"provider.primary", bc.Providers.Primary.Identity,
		"provider.secondary", secondary,
		"rate_limit.store", bc.Data.RateLimit.Store,
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
	)

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Providers, bc.Pipeline, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
