package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/artdex/api/internal/cache"
	"github.com/artdex/api/internal/edit"
	"github.com/artdex/api/internal/model"
)

// Leaderboards are recomputed from the suggestion table on demand; the
// short Redis TTL just keeps a hot homepage from hammering Postgres.
const leaderboardTTL = time.Minute

type LeaderboardHandler struct {
	svc   *edit.Service
	cache *cache.RedisCache
}

func NewLeaderboardHandler(svc *edit.Service, cache *cache.RedisCache) *LeaderboardHandler {
	return &LeaderboardHandler{svc: svc, cache: cache}
}

// Contributors ranks users by suggestions submitted
func (h *LeaderboardHandler) Contributors(c *gin.Context) {
	h.serve(c, "leaderboard:contributors", h.svc.TopContributors)
}

// Reviewers ranks users by approvals that reached applied
func (h *LeaderboardHandler) Reviewers(c *gin.Context) {
	h.serve(c, "leaderboard:reviewers", h.svc.TopReviewers)
}

func (h *LeaderboardHandler) serve(c *gin.Context, key string, query func(context.Context, int) ([]model.LeaderboardEntry, error)) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	ctx := c.Request.Context()
	cacheKey := fmt.Sprintf("%s:%d", key, limit)

	if h.cache != nil {
		if data, err := h.cache.Get(ctx, cacheKey); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", data)
			return
		}
	}

	entries, err := query(ctx, limit)
	if err != nil {
		log.Printf("leaderboard query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}

	body, err := json.Marshal(gin.H{"data": entries})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, cacheKey, body, leaderboardTTL); err != nil {
			log.Printf("leaderboard cache write failed: %v", err)
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
