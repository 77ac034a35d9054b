package relational

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reconciler/internal/config"
	"reconciler/internal/domain/entity/reconciled"
)

const uniqueViolation = "23505"

// Open connects to the system of record.
func Open(cfg config.PostgresConfig, logger *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), GormConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// GormConfig routes gorm warnings and slow queries through the service logger.
func GormConfig(logger *logrus.Logger) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             5 * time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// Migrate creates or updates every reconciled table.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&reconciled.LimitOrder{},
		&reconciled.LimitTradeInfo{},
		&reconciled.MarketOrder{},
		&reconciled.TradeInfo{},
		&reconciled.TradeLogItem{},
		&reconciled.BalanceUpdate{},
		&reconciled.ClientBalanceUpdate{},
		&reconciled.CashOperation{},
		&reconciled.CashTransferOperation{},
		&reconciled.Candlestick{},
		&reconciled.UserWallet{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// IsDuplicate reports whether err is a primary or unique key violation.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
