package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/artdex/api/internal/auth"
	"github.com/artdex/api/internal/cache"
	"github.com/artdex/api/internal/config"
	"github.com/artdex/api/internal/database"
	"github.com/artdex/api/internal/edit"
	"github.com/artdex/api/internal/handler"
	"github.com/artdex/api/internal/middleware"
	"github.com/artdex/api/internal/model"
	"github.com/artdex/api/internal/store"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize Redis cache
	var redisCache *cache.RedisCache
	redisCache, err = cache.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		// Continue without Redis cache (fail-open)
	}

	// Warm the autocomplete indexes from the catalog
	if redisCache != nil {
		go warmAutocomplete(db, redisCache)
	}

	// Core edit engine over the Postgres store
	catalogStore := store.New(db)
	editService := edit.NewService(catalogStore, catalogStore, edit.Policy{
		AllowSelfReview: cfg.AllowSelfReview,
	})

	patreonConfig := &oauth2.Config{
		ClientID:     cfg.PatreonClientID,
		ClientSecret: cfg.PatreonClientSecret,
		RedirectURL:  cfg.PatreonRedirectURL,
		Scopes:       []string{"identity", "identity[email]"},
		Endpoint:     auth.PatreonEndpoint,
	}

	// Initialize handlers
	postHandler := handler.NewPostHandler(db, redisCache)
	editHandler := handler.NewEditHandler(editService, redisCache)
	leaderboardHandler := handler.NewLeaderboardHandler(editService, redisCache)
	authHandler := handler.NewAuthHandler(db, cfg.JWTSecret, patreonConfig, cfg.FrontendURL, cfg.AdminEmails)
	adminHandler := handler.NewAdminHandler(db)
	exportHandler := handler.NewExportHandler(db)

	// Setup router
	r := gin.Default()
	r.Use(middleware.MetricsMiddleware())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", cfg.FrontendURL)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// OAuth flow
	r.GET("/auth/patreon", authHandler.PatreonAuth)
	r.GET("/auth/patreon/callback", authHandler.PatreonCallback)
	r.POST("/auth/refresh", authHandler.RefreshToken)
	r.POST("/auth/logout", authHandler.Logout)

	requireAuth := middleware.AuthMiddleware(cfg.JWTSecret)
	requireAdmin := middleware.AdminMiddleware(cfg.JWTSecret)
	optionalAuth := middleware.OptionalAuthMiddleware(cfg.JWTSecret)

	// API routes
	api := r.Group("/api")
	{
		api.GET("/me", requireAuth, authHandler.Me)

		// Posts (public, identity picked up when a token is present)
		api.GET("/posts", optionalAuth, postHandler.List)
		api.GET("/posts/:id", optionalAuth, postHandler.Get)
		api.GET("/values/suggest", optionalAuth, postHandler.SuggestValues)

		// Bulk edit engine
		edits := api.Group("/global-edits", requireAuth)
		{
			edits.POST("/preview", editHandler.Preview)
			edits.POST("/suggest", editHandler.Submit)
			edits.GET("/pending", editHandler.Pending)
			edits.GET("/history", editHandler.History)
			edits.GET("/:id/preview", editHandler.PreviewByID)
			edits.POST("/:id/approve", editHandler.Approve)
			edits.POST("/:id/reject", editHandler.Reject)
			edits.POST("/:id/undo", requireAdmin, editHandler.Undo)
			edits.POST("/:id/reapply", requireAdmin, editHandler.Reapply)
		}

		// Leaderboards
		api.GET("/leaderboard/contributors", leaderboardHandler.Contributors)
		api.GET("/leaderboard/reviewers", leaderboardHandler.Reviewers)

		// Admin
		admin := api.Group("/admin", requireAdmin)
		{
			admin.GET("/stats", adminHandler.GetStats)
			admin.GET("/suggestions", adminHandler.ListSuggestions)
			admin.GET("/users", adminHandler.ListUsers)
			admin.PUT("/users/:id/role", adminHandler.UpdateUserRole)
			admin.GET("/export/history", exportHandler.ExportHistory)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}

	log.Printf("API server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// warmAutocomplete fills each field's Redis index from the published
// catalog when it is empty, so the first edit-form keystroke doesn't
// pay the rebuild.
func warmAutocomplete(db *gorm.DB, redisCache *cache.RedisCache) {
	ctx := context.Background()
	for _, field := range model.Fields() {
		if n, err := redisCache.CountValues(ctx, field); err != nil || n > 0 {
			continue
		}

		sql := fmt.Sprintf("SELECT DISTINCT val FROM posts, unnest(%s) AS val WHERE status = ?", string(field))
		var values []string
		if err := db.Raw(sql, model.PostStatusPublished).Scan(&values).Error; err != nil {
			log.Printf("Warning: Failed to load %s values for autocomplete: %v", field, err)
			continue
		}

		// Batch insert values in chunks to avoid memory issues
		const batchSize = 1000
		for i := 0; i < len(values); i += batchSize {
			end := i + batchSize
			if end > len(values) {
				end = len(values)
			}
			if err := redisCache.AddValues(ctx, field, values[i:end]...); err != nil {
				log.Printf("Warning: Failed to add %s values to Redis autocomplete: %v", field, err)
				break
			}
		}

		log.Printf("Loaded %d %s values to Redis autocomplete", len(values), field)
	}
}
