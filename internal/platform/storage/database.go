package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FeedbackRecord is the persisted form of one feedback submission. The raw
// request body is kept alongside the parsed fields so later schema changes
// on the client side are not lost.
type FeedbackRecord struct {
	ID        uint           `gorm:"primaryKey"`
	Score     int            `gorm:"not null"        json:"score"`
	Comment   string         `gorm:"type:text"       json:"comment"`
	Payload   datatypes.JSON `                       json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"index"           json:"created_at"`
}

// OpenDatabase opens (creating if necessary) the SQLite database at path
// and migrates the feedback table.
func OpenDatabase(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&FeedbackRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}
