package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/artdex/api/internal/config"
	"github.com/artdex/api/internal/database"
	"github.com/artdex/api/internal/model"
	"github.com/artdex/api/internal/normalize"
)

// seedPost is one entry of the export dump produced by the upload
// pipeline.
type seedPost struct {
	PostID       string   `json:"post_id"`
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Characters   []string `json:"characters"`
	Series       []string `json:"series"`
	Tags         []string `json:"tags"`
	Status       string   `json:"status"`
}

func main() {
	// Parse command line flags
	filePath := flag.String("file", "data/posts.json", "Path to post dump file")
	batchSize := flag.Int("batch", 500, "Batch size for inserts")
	flag.Parse()

	log.Printf("Seeding posts from %s", *filePath)

	godotenv.Load()
	cfg := config.Load()

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migration
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	posts, err := loadPostDump(*filePath)
	if err != nil {
		log.Fatalf("Failed to load post dump: %v", err)
	}

	log.Printf("Loaded %d posts from file", len(posts))

	inserted, skipped := seedPosts(db, posts, *batchSize)
	log.Printf("Seeding complete. Inserted: %d, Skipped: %d", inserted, skipped)
}

func loadPostDump(path string) ([]seedPost, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var posts []seedPost
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func seedPosts(db *gorm.DB, posts []seedPost, batchSize int) (inserted int, skipped int) {
	for i := 0; i < len(posts); i += batchSize {
		end := i + batchSize
		if end > len(posts) {
			end = len(posts)
		}

		batchInserted, batchSkipped := insertBatch(db, posts[i:end])
		inserted += batchInserted
		skipped += batchSkipped

		if (i/batchSize+1)%10 == 0 {
			log.Printf("Progress: %d/%d posts processed", end, len(posts))
		}
	}

	return inserted, skipped
}

// insertBatch upserts one batch. List fields are normalized on the way
// in so every row satisfies the catalog invariant from day one.
func insertBatch(db *gorm.DB, posts []seedPost) (inserted int, skipped int) {
	for _, sp := range posts {
		postID, ok := normalize.Text(sp.PostID)
		if !ok {
			log.Printf("Skipping post with empty id (title %q)", sp.Title)
			skipped++
			continue
		}

		status := sp.Status
		if status == "" {
			status = model.PostStatusPublished
		}

		post := model.Post{
			PostID:       postID,
			Title:        sp.Title,
			URL:          sp.URL,
			ThumbnailURL: sp.ThumbnailURL,
			Characters:   normalize.Field(sp.Characters),
			Series:       normalize.Field(sp.Series),
			Tags:         normalize.Field(sp.Tags),
			Status:       status,
		}

		result := db.Exec(`
			INSERT INTO posts (post_id, title, url, thumbnail_url, characters, series, tags, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
			ON CONFLICT (post_id) DO NOTHING
		`, post.PostID, post.Title, post.URL, post.ThumbnailURL,
			post.Characters, post.Series, post.Tags, post.Status)

		if result.Error != nil {
			log.Printf("Error inserting post %s: %v", post.PostID, result.Error)
			skipped++
			continue
		}

		if result.RowsAffected > 0 {
			inserted++
		} else {
			skipped++
		}
	}

	return inserted, skipped
}
