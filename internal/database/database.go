package database

import (
	"github.com/artdex/api/internal/config"
	"github.com/artdex/api/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Post{},
		&model.User{},
		&model.RefreshToken{},
		&model.EditSuggestion{},
	)
	if err != nil {
		return err
	}

	// Array membership lookups on the three list fields.
	db.Exec("CREATE INDEX IF NOT EXISTS idx_posts_characters ON posts USING GIN (characters)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_posts_series ON posts USING GIN (series)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_posts_tags ON posts USING GIN (tags)")

	// Create unique index for users (provider, provider_id)
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_users_provider_provider_id ON users(provider, provider_id)")

	// Review queue and history are always served by status.
	db.Exec("CREATE INDEX IF NOT EXISTS idx_edit_suggestions_status_created ON edit_suggestions(status, created_at)")

	return nil
}
