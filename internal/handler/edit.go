package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/artdex/api/internal/cache"
	"github.com/artdex/api/internal/edit"
	"github.com/artdex/api/internal/middleware"
	"github.com/artdex/api/internal/model"
	"github.com/artdex/api/internal/pattern"
)

type EditHandler struct {
	svc   *edit.Service
	cache *cache.RedisCache
}

func NewEditHandler(svc *edit.Service, cache *cache.RedisCache) *EditHandler {
	return &EditHandler{svc: svc, cache: cache}
}

// PreviewRequest accepts the current shape and the legacy one the
// first frontend shipped ({field_name, old_value}).
type PreviewRequest struct {
	FieldName string `json:"field_name"`
	Pattern   string `json:"pattern"`
	OldValue  string `json:"old_value"`
}

// SuggestRequest covers the canonical shape and the legacy rename form
// ({field_name, old_value, new_value}), which maps to an ADD on the
// same field.
type SuggestRequest struct {
	ConditionField string `json:"condition_field"`
	Pattern        string `json:"pattern"`
	Action         string `json:"action"`
	ActionField    string `json:"action_field"`
	ActionValue    string `json:"action_value"`

	FieldName string `json:"field_name"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
}

// draft folds the legacy form into the canonical one. The request is
// legacy when it carries field_name but neither action nor
// condition_field.
func (r *SuggestRequest) draft() edit.Draft {
	if r.Action == "" && r.ConditionField == "" && r.FieldName != "" {
		return edit.Draft{
			ConditionField: r.FieldName,
			Pattern:        r.OldValue,
			Action:         model.ActionAdd,
			ActionField:    r.FieldName,
			ActionValue:    r.NewValue,
		}
	}
	return edit.Draft{
		ConditionField: r.ConditionField,
		Pattern:        r.Pattern,
		Action:         r.Action,
		ActionField:    r.ActionField,
		ActionValue:    r.ActionValue,
	}
}

// Preview reports which posts a pattern would touch, without writing
// anything.
func (h *EditHandler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	field, ok := model.ParseField(req.FieldName)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []edit.Issue{
			{Msg: "field_name must be one of characters, series, tags"},
		}})
		return
	}

	raw := req.Pattern
	if raw == "" {
		raw = req.OldValue
	}

	res, err := h.svc.Preview(c.Request.Context(), field, raw)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Submit creates a pending suggestion from the request body.
func (h *EditHandler) Submit(c *gin.Context) {
	var req SuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var suggesterID *int64
	if v, exists := c.Get("userID"); exists {
		id := v.(int64)
		suggesterID = &id
	}

	sug, err := h.svc.Submit(c.Request.Context(), suggesterID, req.draft())
	if err != nil {
		h.renderError(c, err)
		return
	}

	middleware.RecordSuggestionSubmitted(sug.Action)
	c.JSON(http.StatusCreated, sug)
}

// Pending lists suggestions awaiting review, oldest first.
func (h *EditHandler) Pending(c *gin.Context) {
	pending, err := h.svc.Pending(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	if pending == nil {
		pending = []model.EditSuggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"data": pending, "count": len(pending)})
}

// PreviewByID recomputes a stored suggestion's preview against the
// current catalog, so reviewers see what approval would do now.
func (h *EditHandler) PreviewByID(c *gin.Context) {
	id, ok := suggestionID(c)
	if !ok {
		return
	}
	res, err := h.svc.PreviewSuggestion(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Approve applies a pending suggestion. The response carries the final
// state, including the apply report.
func (h *EditHandler) Approve(c *gin.Context) {
	id, ok := suggestionID(c)
	if !ok {
		return
	}

	sug, err := h.svc.Approve(c.Request.Context(), id, reviewerFromContext(c))
	if err != nil {
		h.renderError(c, err)
		return
	}

	middleware.RecordReview("approved", sug.Status)
	if report, found := edit.LastApplyReport(sug); found {
		middleware.RecordApplyPosts(report.MutatedCount, report.SkippedCount, len(report.Failures))
	}
	h.refreshAutocomplete(c, sug)

	c.JSON(http.StatusOK, sug)
}

// Reject resolves a pending suggestion without mutating any post.
func (h *EditHandler) Reject(c *gin.Context) {
	id, ok := suggestionID(c)
	if !ok {
		return
	}

	sug, err := h.svc.Reject(c.Request.Context(), id, reviewerFromContext(c))
	if err != nil {
		h.renderError(c, err)
		return
	}

	middleware.RecordReview("rejected", sug.Status)
	c.JSON(http.StatusOK, sug)
}

// Reapply re-runs a failed apply. Admin only.
func (h *EditHandler) Reapply(c *gin.Context) {
	id, ok := suggestionID(c)
	if !ok {
		return
	}

	sug, err := h.svc.Reapply(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	if report, found := edit.LastApplyReport(sug); found {
		middleware.RecordApplyPosts(report.MutatedCount, report.SkippedCount, len(report.Failures))
	}
	h.refreshAutocomplete(c, sug)

	c.JSON(http.StatusOK, sug)
}

// Undo restores the field contents captured before the apply run.
// Admin only.
func (h *EditHandler) Undo(c *gin.Context) {
	id, ok := suggestionID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	sug, err := h.svc.Get(ctx, id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	res, err := h.svc.Undo(ctx, id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	if field, ok := model.ParseField(sug.ActionField); ok && h.cache != nil {
		if err := h.cache.DropValues(ctx, field); err != nil {
			log.Printf("autocomplete drop failed: %v", err)
		}
	}
	c.JSON(http.StatusOK, res)
}

// History lists applied suggestions, most recently applied first.
func (h *EditHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	history, err := h.svc.History(c.Request.Context(), limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if history == nil {
		history = []model.EditSuggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"data": history, "count": len(history)})
}

func suggestionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid suggestion id"})
		return 0, false
	}
	return id, true
}

func reviewerFromContext(c *gin.Context) edit.Reviewer {
	var reviewer edit.Reviewer
	if v, exists := c.Get("userID"); exists {
		reviewer.ID = v.(int64)
	}
	if v, exists := c.Get("userIsAdmin"); exists {
		reviewer.Admin = v.(bool)
	}
	return reviewer
}

// refreshAutocomplete keeps the suggestion index roughly in sync after
// an apply. ADD indexes the one new value; DELETE drops the field's
// index so the next lookup rebuilds it from the catalog.
func (h *EditHandler) refreshAutocomplete(c *gin.Context, sug *model.EditSuggestion) {
	if h.cache == nil {
		return
	}
	if sug.Status != model.SuggestionStatusApplied && sug.Status != model.SuggestionStatusFailedApply {
		return
	}
	field, ok := model.ParseField(sug.ActionField)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	switch sug.Action {
	case model.ActionAdd:
		if sug.ActionValue != nil {
			if err := h.cache.AddValues(ctx, field, *sug.ActionValue); err != nil {
				log.Printf("autocomplete add failed: %v", err)
			}
		}
	case model.ActionDelete:
		if err := h.cache.DropValues(ctx, field); err != nil {
			log.Printf("autocomplete drop failed: %v", err)
		}
	}
}

func (h *EditHandler) renderError(c *gin.Context, err error) {
	var verr *edit.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Issues})
	case errors.Is(err, pattern.ErrEmptyPattern):
		c.JSON(http.StatusBadRequest, gin.H{"error": "pattern must not be empty", "code": "INVALID_PATTERN"})
	case errors.Is(err, edit.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "suggestion not found", "code": "NOT_FOUND"})
	case errors.Is(err, edit.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "not allowed in the suggestion's current state", "code": "INVALID_STATE"})
	case errors.Is(err, edit.ErrSelfReview):
		c.JSON(http.StatusForbidden, gin.H{"error": "you cannot approve your own suggestion", "code": "SELF_REVIEW"})
	default:
		log.Printf("edit request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
