// Package data provides data access layer implementations.
// It implements the repository and transport interfaces declared in biz.
package data

import (
	"context"
	"time"

	"PuckRelay/internal/biz"
	"PuckRelay/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewMySQLClient,
	NewRateLimitRepo,
	NewUploadCache,
	NewProviderEndpoints,
	NewEventAuditor,
	wire.Bind(new(biz.UploadCache), new(*UploadCache)),
	wire.Bind(new(biz.StorageHealth), new(*Data)),
)

// Data contains all data layer dependencies.
type Data struct {
	// rdb is nil when Redis is not configured
	rdb *redis.Client
	// db is nil when MySQL is not configured
	db      *gorm.DB
	auditor *EventAuditor
}

// NewData creates a new Data instance.
// Missing Redis or MySQL does not prevent startup (graceful degradation).
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, db *gorm.DB, auditor *EventAuditor) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, redis rate limit store unavailable")
	}
	if db == nil {
		helper.Info("MySQL is not configured, event audit disabled")
	}

	d := &Data{
		rdb:     rdb,
		db:      db,
		auditor: auditor,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		// Redis and MySQL cleanups are registered by their own constructors
		auditor.Close()
	}

	return d, cleanup, nil
}

// GetRedisClient returns the Redis client, nil when unavailable.
func (d *Data) GetRedisClient() *redis.Client {
	if d == nil {
		return nil
	}
	return d.rdb
}

// GetDB returns the MySQL handle, nil when unavailable.
func (d *Data) GetDB() *gorm.DB {
	if d == nil {
		return nil
	}
	return d.db
}

// healthCheckTimeout bounds each backend ping.
const healthCheckTimeout = time.Second

// Healthy pings every configured backend. Backends that are not configured
// are omitted.
func (d *Data) Healthy(ctx context.Context) map[string]bool {
	status := make(map[string]bool, 2)
	if d == nil {
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if d.rdb != nil {
		status["redis"] = d.rdb.Ping(ctx).Err() == nil
	}
	if d.db != nil {
		sqlDB, err := d.db.DB()
		status["mysql"] = err == nil && sqlDB.PingContext(ctx) == nil
	}
	return status
}
