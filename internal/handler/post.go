package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/artdex/api/internal/cache"
	"github.com/artdex/api/internal/middleware"
	"github.com/artdex/api/internal/model"
	"github.com/artdex/api/internal/pattern"
)

type PostHandler struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

func NewPostHandler(db *gorm.DB, cache *cache.RedisCache) *PostHandler {
	return &PostHandler{db: db, cache: cache}
}

// List returns published posts with pagination. Each list field can be
// filtered by value; `*` works as a wildcard there too.
func (h *PostHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	offset := (page - 1) * limit

	filters := make(map[model.Field]string)
	for _, f := range model.Fields() {
		if v := c.Query(string(f)); v != "" {
			filters[f] = v
		}
	}

	countQ := h.db.Model(&model.Post{}).Where("status = ?", model.PostStatusPublished)
	listQ := h.db.Where("status = ?", model.PostStatusPublished)
	for f, v := range filters {
		m, err := pattern.Compile(v)
		if err != nil {
			continue
		}
		cond := fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(%s) AS val WHERE val ILIKE ?)", string(f))
		countQ = countQ.Where(cond, m.SQL())
		listQ = listQ.Where(cond, m.SQL())
	}

	var totalCount int64
	countQ.Count(&totalCount)

	var posts []model.Post
	listQ.Order("published_at DESC NULLS LAST, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&posts)

	totalPages := int((totalCount + int64(limit) - 1) / int64(limit))

	c.JSON(http.StatusOK, gin.H{
		"data":       posts,
		"page":       page,
		"limit":      limit,
		"totalCount": totalCount,
		"totalPages": totalPages,
	})
}

// Get returns one post by external id
func (h *PostHandler) Get(c *gin.Context) {
	var post model.Post
	err := h.db.Where("post_id = ?", c.Param("id")).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load post"})
		return
	}
	c.JSON(http.StatusOK, post)
}

// SuggestValues serves autocomplete for the edit form. The Redis index
// is rebuilt from the catalog when empty; on Redis trouble the lookup
// falls back to the database so typing never breaks.
func (h *PostHandler) SuggestValues(c *gin.Context) {
	field, ok := model.ParseField(c.Query("field"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field must be one of characters, series, tags"})
		return
	}

	q := strings.TrimSpace(c.Query("q"))
	if len([]rune(q)) < 2 {
		c.JSON(http.StatusOK, gin.H{"data": []string{}})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 50 {
		limit = 10
	}

	ctx := c.Request.Context()
	if h.cache != nil {
		rebuilt := false
		if n, err := h.cache.CountValues(ctx, field); err == nil && n == 0 {
			if err := h.rebuildIndex(ctx, field); err != nil {
				log.Printf("autocomplete rebuild failed for %s: %v", field, err)
			} else {
				rebuilt = true
			}
		}

		values, err := h.cache.SuggestValues(ctx, field, q, int64(limit))
		if err == nil {
			if values == nil {
				values = []string{}
			}
			middleware.RecordValueSuggest(string(field), rebuilt)
			c.JSON(http.StatusOK, gin.H{"data": values})
			return
		}
		log.Printf("autocomplete lookup failed for %s: %v", field, err)
	}

	values, err := h.distinctValues(ctx, field, q, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load suggestions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": values})
}

// rebuildIndex reloads a field's autocomplete set from the catalog.
func (h *PostHandler) rebuildIndex(ctx context.Context, field model.Field) error {
	sql := fmt.Sprintf("SELECT DISTINCT val FROM posts, unnest(%s) AS val WHERE status = ?", string(field))
	var values []string
	if err := h.db.WithContext(ctx).Raw(sql, model.PostStatusPublished).Scan(&values).Error; err != nil {
		return err
	}
	return h.cache.AddValues(ctx, field, values...)
}

func (h *PostHandler) distinctValues(ctx context.Context, field model.Field, q string, limit int) ([]string, error) {
	sql := fmt.Sprintf(
		"SELECT DISTINCT val FROM posts, unnest(%s) AS val WHERE status = ? AND val ILIKE ? ORDER BY val ASC LIMIT ?",
		string(field))
	values := []string{}
	err := h.db.WithContext(ctx).
		Raw(sql, model.PostStatusPublished, escapeLike(q)+"%", limit).
		Scan(&values).Error
	if err != nil {
		return nil, err
	}
	return values, nil
}

// escapeLike keeps ILIKE metacharacters literal in user input.
func escapeLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '%', '_', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
