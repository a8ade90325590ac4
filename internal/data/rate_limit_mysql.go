package data

import (
	"context"
	"fmt"
	"time"

	dberrors "PuckRelay/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderRateLimit is the GORM model for provider_rate_limits table
type ProviderRateLimit struct {
	Provider  string    `gorm:"primaryKey;column:provider;type:varchar(64)"`
	HitDate   string    `gorm:"column:hit_date;type:char(10);not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (ProviderRateLimit) TableName() string {
	return "provider_rate_limits"
}

// MySQLRateLimitRepo implements biz.RateLimitRepo on MySQL.
type MySQLRateLimitRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewMySQLRateLimitRepo creates a MySQL backed rate limit repository.
func NewMySQLRateLimitRepo(db *gorm.DB, logger log.Logger) *MySQLRateLimitRepo {
	return &MySQLRateLimitRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// GetHitDate returns the stored hit day of a provider.
func (r *MySQLRateLimitRepo) GetHitDate(ctx context.Context, provider string) (string, bool, error) {
	var row ProviderRateLimit
	err := r.db.WithContext(ctx).Where("provider = ?", provider).Take(&row).Error
	if err != nil {
		if dberrors.IsNotFoundError(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get hit date: %w", dberrors.ClassifyDBError(err))
	}
	return row.HitDate, true, nil
}

// SetHitDate upserts the hit day. A deadlock is retried once.
func (r *MySQLRateLimitRepo) SetHitDate(ctx context.Context, provider, day string) error {
	upsert := func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{"hit_date", "updated_at"}),
		}).Create(&ProviderRateLimit{Provider: provider, HitDate: day}).Error
	}

	err := upsert()
	if err != nil && dberrors.IsRetryable(err) {
		r.logger.Warnw("msg", "retrying hit date upsert", "provider", provider, "error", err)
		err = upsert()
	}
	if err != nil {
		return fmt.Errorf("failed to set hit date: %w", dberrors.ClassifyDBError(err))
	}
	return nil
}

// ClearHitDate deletes the row only when it still holds day.
func (r *MySQLRateLimitRepo) ClearHitDate(ctx context.Context, provider, day string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("provider = ? AND hit_date = ?", provider, day).
		Delete(&ProviderRateLimit{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to clear hit date: %w", dberrors.ClassifyDBError(res.Error))
	}
	return res.RowsAffected > 0, nil
}

// DeleteHitDate removes the row unconditionally.
func (r *MySQLRateLimitRepo) DeleteHitDate(ctx context.Context, provider string) error {
	err := r.db.WithContext(ctx).Where("provider = ?", provider).Delete(&ProviderRateLimit{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete hit date: %w", dberrors.ClassifyDBError(err))
	}
	return nil
}
