package dbhelper

import (
	"fmt"

	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func OpenDB(config utils.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch config.Driver {
	case "mysql":
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			config.User,
			config.Password,
			config.Host,
			config.Name,
		)
		dialector = mysql.Open(dsn)
	case "sqlite":
		// immediate transactions serialize writers the way row locks do on mysql
		dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate&_foreign_keys=1", config.Path)
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func InitDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.PasswordHistory{},
		&models.BackupCode{},
		&models.InventoryItem{},
		&models.Item{},
		&models.Bid{},
		&models.AuditLog{},
	)
}

// forUpdate locks the selected rows until the transaction ends. SQLite has
// no row locks; there the immediate transaction already holds the write lock.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
