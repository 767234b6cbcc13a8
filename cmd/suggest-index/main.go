package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/artdex/api/internal/cache"
	"github.com/artdex/api/internal/config"
	"github.com/artdex/api/internal/database"
	"github.com/artdex/api/internal/model"
)

// Rebuilds the Redis autocomplete indexes from the published catalog.
// Run after bulk imports or when the indexes drift from the database.
func main() {
	// Parse command line flags
	dryRun := flag.Bool("dry-run", false, "Show what would be indexed without writing to Redis")
	flag.Parse()

	startTime := time.Now()
	log.Println("Starting autocomplete index rebuild...")

	godotenv.Load()
	cfg := config.Load()

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migration to ensure tables exist
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Connect to Redis
	redisCache, err := cache.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	ctx := context.Background()
	totalIndexed := 0

	for _, field := range model.Fields() {
		sql := fmt.Sprintf("SELECT DISTINCT val FROM posts, unnest(%s) AS val WHERE status = ?", string(field))
		var values []string
		if err := db.Raw(sql, model.PostStatusPublished).Scan(&values).Error; err != nil {
			log.Fatalf("Failed to load %s values: %v", field, err)
		}

		if *dryRun {
			log.Printf("[DRY RUN] Would index %d distinct %s values", len(values), field)
			continue
		}

		// Drop first so removed values don't linger in the index.
		if err := redisCache.DropValues(ctx, field); err != nil {
			log.Fatalf("Failed to clear %s index: %v", field, err)
		}

		const batchSize = 1000
		for i := 0; i < len(values); i += batchSize {
			end := i + batchSize
			if end > len(values) {
				end = len(values)
			}
			if err := redisCache.AddValues(ctx, field, values[i:end]...); err != nil {
				log.Fatalf("Failed to index %s values: %v", field, err)
			}
		}

		log.Printf("Indexed %d distinct %s values", len(values), field)
		totalIndexed += len(values)
	}

	if *dryRun {
		log.Println("[DRY RUN] No changes made")
		return
	}

	elapsed := time.Since(startTime)
	log.Printf("Index rebuild complete. Indexed %d values in %v", totalIndexed, elapsed)
}
