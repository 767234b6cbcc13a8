package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/artdex/api/internal/model"
)

type AdminHandler struct {
	db *gorm.DB
}

func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

type DashboardStats struct {
	TotalPosts          int64            `json:"total_posts"`
	PublishedPosts      int64            `json:"published_posts"`
	TotalUsers          int64            `json:"total_users"`
	TotalSuggestions    int64            `json:"total_suggestions"`
	SuggestionsByStatus map[string]int64 `json:"suggestions_by_status"`
	SuggestionsByAction map[string]int64 `json:"suggestions_by_action"`
	TopTags             []ValueCount     `json:"top_tags"`
}

type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// GetStats returns dashboard statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	var stats DashboardStats

	h.db.Model(&model.Post{}).Count(&stats.TotalPosts)
	h.db.Model(&model.Post{}).Where("status = ?", model.PostStatusPublished).Count(&stats.PublishedPosts)
	h.db.Model(&model.User{}).Count(&stats.TotalUsers)
	h.db.Model(&model.EditSuggestion{}).Count(&stats.TotalSuggestions)

	// Suggestions by status
	stats.SuggestionsByStatus = make(map[string]int64)
	type StatusCount struct {
		Status string
		Count  int64
	}
	var statusCounts []StatusCount
	h.db.Model(&model.EditSuggestion{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts)
	for _, sc := range statusCounts {
		stats.SuggestionsByStatus[sc.Status] = sc.Count
	}

	// Suggestions by action
	stats.SuggestionsByAction = make(map[string]int64)
	type ActionCount struct {
		Action string
		Count  int64
	}
	var actionCounts []ActionCount
	h.db.Model(&model.EditSuggestion{}).
		Select("action, count(*) as count").
		Group("action").
		Scan(&actionCounts)
	for _, ac := range actionCounts {
		stats.SuggestionsByAction[ac.Action] = ac.Count
	}

	// Most used tags across the published catalog
	h.db.Raw(
		"SELECT val AS value, count(*) AS count FROM posts, unnest(tags) AS val WHERE status = ? GROUP BY val ORDER BY count DESC LIMIT 10",
		model.PostStatusPublished).
		Scan(&stats.TopTags)

	c.JSON(http.StatusOK, stats)
}

// ListSuggestions returns all suggestions with pagination and filters
func (h *AdminHandler) ListSuggestions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	status := c.Query("status")
	action := c.Query("action")

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	offset := (page - 1) * limit

	query := h.db.Model(&model.EditSuggestion{})

	if status != "" {
		query = query.Where("status = ?", status)
	}
	if action != "" {
		query = query.Where("action = ?", action)
	}

	var totalCount int64
	query.Count(&totalCount)

	var suggestions []model.EditSuggestion
	query.Preload("Suggester").
		Preload("Approver").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&suggestions)

	totalPages := int((totalCount + int64(limit) - 1) / int64(limit))

	c.JSON(http.StatusOK, gin.H{
		"data":       suggestions,
		"page":       page,
		"limit":      limit,
		"totalCount": totalCount,
		"totalPages": totalPages,
	})
}

// ListUsers returns all users with pagination
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	offset := (page - 1) * limit

	var totalCount int64
	h.db.Model(&model.User{}).Count(&totalCount)

	var users []model.User
	h.db.Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&users)

	totalPages := int((totalCount + int64(limit) - 1) / int64(limit))

	c.JSON(http.StatusOK, gin.H{
		"data":       users,
		"page":       page,
		"limit":      limit,
		"totalCount": totalCount,
		"totalPages": totalPages,
	})
}

type UpdateUserRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateUserRole changes a user's role
func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req UpdateUserRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	switch req.Role {
	case model.RolePatron, model.RoleCreator, model.RoleAdmin:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	res := h.db.Model(&model.User{}).Where("id = ?", id).Update("role", req.Role)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update role"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "role updated"})
}
