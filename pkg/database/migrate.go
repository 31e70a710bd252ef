package database

import (
	"fmt"

	"ai-docqa-be/internal/model"

	"gorm.io/gorm"
)

// Models lists every table owned by the service, parents first.
func Models() []interface{} {
	return []interface{}{
		&model.Document{},
		&model.DocumentSegment{},
		&model.ChatSession{},
		&model.ChatMessage{},
	}
}

// Migrate enables the extensions the schema needs and auto-migrates all models.
func Migrate(db *gorm.DB) error {
	for _, ext := range []string{"vector", "pgcrypto"} {
		if err := db.Exec(fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", ext)).Error; err != nil {
			return fmt.Errorf("create extension %s: %w", ext, err)
		}
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
