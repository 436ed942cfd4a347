package db

import (
	"fmt"

	"intentrouter/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres database and migrates the router's tables.
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true, // map duplicate-key violations to gorm.ErrDuplicatedKey
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := database.AutoMigrate(
		&models.DepositRecord{},
		&models.UsedNonce{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logrus.Info("database connected and migrated")
	return database, nil
}
