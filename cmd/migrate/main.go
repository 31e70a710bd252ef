package main

import (
	"log"
	"os"

	"ai-docqa-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn, database.DefaultPoolConfig())
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	// 3. Extensions and AutoMigrate
	log.Printf("Step 1: Running AutoMigrate for %d tables...", len(database.Models()))
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Error: Migration failed: %v", err)
	}

	// 4. Post-Migration: indexes AutoMigrate cannot express
	log.Println("Step 2: Creating composite indexes...")

	postMigrationSQL := []string{
		// Sweeper: pending documents older than the cutoff
		`CREATE INDEX IF NOT EXISTS idx_documents_status_created_at ON documents (status, created_at);`,
		// Session listing, newest first
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_document_created ON chat_sessions (document_id, created_at DESC);`,
		// Ordered message history
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created ON chat_messages (chat_session_id, created_at);`,
	}

	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("Success: Database migration completed.")
}
