package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/streamnight/nextup/internal/catalog"
	"github.com/streamnight/nextup/internal/users"
	"github.com/streamnight/nextup/internal/vote"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection, performs schema migrations and
// seeds the voting flag row.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.User{},
		&catalog.VotingEntry{},
		&catalog.GiveawayEntry{},
		&catalog.RedeemedKey{},
		&vote.GlobalFlag{},
	); err != nil {
		return nil, err
	}

	if err := vote.EnsureFlags(db); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
