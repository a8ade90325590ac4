package data

import (
	"fmt"
	"time"

	"PuckRelay/internal/conf"
	plog "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewMySQLClient creates a new GORM MySQL client.
// MySQL is optional: without a DSN, or when the server is unreachable, a nil
// *gorm.DB is returned and the dependent components disable themselves.
func NewMySQLClient(c *conf.Data, l log.Logger) (*gorm.DB, func(), error) {
	helper := log.NewHelper(l)

	if c == nil || c.Database == nil || c.Database.Source == "" {
		return nil, func() {}, nil
	}

	gormLogger := logger.New(
		&gormLogAdapter{helper: helper},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(mysql.Open(c.Database.Source), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		helper.Warnf("failed to connect to MySQL: %v (mysql features disabled)", err)
		return nil, func() {}, nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		helper.Warnf("failed to ping MySQL: %v (mysql features disabled)", err)
		_ = sqlDB.Close()
		return nil, func() {}, nil
	}

	if err := db.AutoMigrate(&ProviderRateLimit{}, &PipelineEventLog{}); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to migrate MySQL schema: %w", err)
	}

	plog.NewLogHelper(l).Database("MySQL connection established, schema migrated",
		"tables", "provider_rate_limits,pipeline_event_logs")

	cleanup := func() {
		helper.Info("closing MySQL connection")
		if err := sqlDB.Close(); err != nil {
			helper.Errorf("failed to close MySQL: %v", err)
		}
	}

	return db, cleanup, nil
}

// gormLogAdapter adapts Kratos log.Helper to GORM logger interface.
type gormLogAdapter struct {
	helper *log.Helper
}

// Printf implements gorm/logger.Writer interface.
func (g *gormLogAdapter) Printf(format string, v ...interface{}) {
	g.helper.Warnf(format, v...)
}
