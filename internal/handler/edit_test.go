package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/artdex/api/internal/edit"
	"github.com/artdex/api/internal/edit/edittest"
	"github.com/artdex/api/internal/handler"
	"github.com/artdex/api/internal/model"
)

// asUser injects the identity the auth middleware would have set.
func asUser(id int64, admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", id)
		c.Set("userIsAdmin", admin)
		c.Next()
	}
}

func newEditRouter(store *edittest.Store, policy edit.Policy, userID int64, admin bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := edit.NewService(store, store, policy)
	h := handler.NewEditHandler(svc, nil)

	r := gin.New()
	edits := r.Group("/api/global-edits", asUser(userID, admin))
	edits.POST("/preview", h.Preview)
	edits.POST("/suggest", h.Submit)
	edits.GET("/pending", h.Pending)
	edits.GET("/history", h.History)
	edits.GET("/:id/preview", h.PreviewByID)
	edits.POST("/:id/approve", h.Approve)
	edits.POST("/:id/reject", h.Reject)
	edits.POST("/:id/undo", h.Undo)
	edits.POST("/:id/reapply", h.Reapply)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func seededStore() *edittest.Store {
	store := edittest.NewStore()
	store.AddPost(model.Post{PostID: "p1", Title: "Sketch dump", Status: model.PostStatusPublished,
		Characters: pq.StringArray{"Naruto Uzamaki"},
		Tags:       pq.StringArray{"wip-sketch", "final"}})
	store.AddPost(model.Post{PostID: "p2", Title: "Cover", Status: model.PostStatusPublished,
		Tags: pq.StringArray{"final"}})
	return store
}

func TestPreviewEndpoint(t *testing.T) {
	r := newEditRouter(seededStore(), edit.Policy{}, 1, false)

	w := doJSON(t, r, http.MethodPost, "/api/global-edits/preview",
		gin.H{"field_name": "tags", "pattern": "wip*"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var res edit.PreviewResult
	decodeBody(t, w, &res)
	if res.AffectedCount != 1 {
		t.Fatalf("affected_count = %d, want 1", res.AffectedCount)
	}
	if res.AffectedPosts[0].ID != "p1" {
		t.Fatalf("affected post = %+v", res.AffectedPosts[0])
	}
	if len(res.AffectedPosts[0].CurrentValues) != 1 || res.AffectedPosts[0].CurrentValues[0] != "wip-sketch" {
		t.Fatalf("current_values = %v, want [wip-sketch]", res.AffectedPosts[0].CurrentValues)
	}
}

func TestPreviewEndpointLegacyOldValue(t *testing.T) {
	r := newEditRouter(seededStore(), edit.Policy{}, 1, false)

	w := doJSON(t, r, http.MethodPost, "/api/global-edits/preview",
		gin.H{"field_name": "characters", "old_value": "naruto uzamaki"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var res edit.PreviewResult
	decodeBody(t, w, &res)
	if res.AffectedCount != 1 {
		t.Fatalf("affected_count = %d, want 1", res.AffectedCount)
	}
}

func TestPreviewEndpointRejectsUnknownField(t *testing.T) {
	r := newEditRouter(seededStore(), edit.Policy{}, 1, false)

	w := doJSON(t, r, http.MethodPost, "/api/global-edits/preview",
		gin.H{"field_name": "authors", "pattern": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var res struct {
		Errors []edit.Issue `json:"errors"`
	}
	decodeBody(t, w, &res)
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %+v, want one entry", res.Errors)
	}
}

func TestSubmitEndpointCreatesPending(t *testing.T) {
	store := seededStore()
	r := newEditRouter(store, edit.Policy{}, 7, false)

	w := doJSON(t, r, http.MethodPost, "/api/global-edits/suggest", gin.H{
		"condition_field": "tags", "pattern": "wip*", "action": "DELETE",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var sug model.EditSuggestion
	decodeBody(t, w, &sug)
	if sug.Status != model.SuggestionStatusPending {
		t.Fatalf("status = %q, want pending", sug.Status)
	}
	if sug.ActionField != "tags" {
		t.Fatalf("action_field = %q, want tags", sug.ActionField)
	}
	if sug.SuggesterID == nil || *sug.SuggesterID != 7 {
		t.Fatalf("suggester_id = %v, want 7", sug.SuggesterID)
	}
}

func TestSubmitEndpointLegacyRename(t *testing.T) {
	store := seededStore()
	r := newEditRouter(store, edit.Policy{}, 7, false)

	w := doJSON(t, r, http.MethodPost, "/api/global-edits/suggest", gin.H{
		"field_name": "characters", "old_value": "Naruto Uzamaki", "new_value": "Naruto Uzumaki",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var sug model.EditSuggestion
	decodeBody(t, w, &sug)
	if sug.Action != model.ActionAdd {
		t.Fatalf("action = %q, want ADD", sug.Action)
	}
	if sug.ConditionField != "characters" || sug.ActionField != "characters" {
		t.Fatalf("fields = %q/%q, want characters/characters", sug.ConditionField, sug.ActionField)
	}
	if sug.Pattern != "Naruto Uzamaki" {
		t.Fatalf("pattern = %q", sug.Pattern)
	}
	if sug.ActionValue == nil || *sug.ActionValue != "Naruto Uzumaki" {
		t.Fatalf("action_value = %v", sug.ActionValue)
	}
}

func TestSubmitEndpointCollectsAllValidationIssues(t *testing.T) {
	r := newEditRouter(seededStore(), edit.Policy{}, 7, false)

	w := doJSON(t, r, http.MethodPost, "/api/global-edits/suggest", gin.H{
		"condition_field": "authors", "pattern": "  ", "action": "ADD",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var res struct {
		Errors []edit.Issue `json:"errors"`
	}
	decodeBody(t, w, &res)
	if len(res.Errors) < 3 {
		t.Fatalf("errors = %+v, want at least condition_field, pattern, and action_value issues", res.Errors)
	}
	for _, issue := range res.Errors {
		if issue.Msg == "" {
			t.Fatalf("issue with empty msg in %+v", res.Errors)
		}
	}
}

func TestApproveEndpointAppliesAndReports(t *testing.T) {
	store := seededStore()
	author := int64(7)
	r := newEditRouter(store, edit.Policy{}, 8, false)

	svc := edit.NewService(store, store, edit.Policy{})
	if _, err := svc.Submit(context.Background(), &author, edit.Draft{
		ConditionField: "tags", Pattern: "wip*", Action: model.ActionDelete,
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/api/global-edits/1/approve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var approved model.EditSuggestion
	decodeBody(t, w, &approved)
	if approved.Status != model.SuggestionStatusApplied {
		t.Fatalf("status = %q, want applied", approved.Status)
	}

	post, _ := store.Post("p1")
	if len(post.Tags) != 1 || post.Tags[0] != "final" {
		t.Fatalf("p1 tags = %v, want [final]", post.Tags)
	}
}

func TestApproveEndpointErrorMapping(t *testing.T) {
	store := seededStore()
	author := int64(7)
	svc := edit.NewService(store, store, edit.Policy{})
	if _, err := svc.Submit(context.Background(), &author, edit.Draft{
		ConditionField: "tags", Pattern: "wip*", Action: model.ActionDelete,
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Unknown id -> 404.
	r := newEditRouter(store, edit.Policy{}, 8, false)
	if w := doJSON(t, r, http.MethodPost, "/api/global-edits/99/approve", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status = %d, want 404", w.Code)
	}

	// Author approving their own suggestion -> 403.
	selfRouter := newEditRouter(store, edit.Policy{}, 7, false)
	if w := doJSON(t, selfRouter, http.MethodPost, "/api/global-edits/1/approve", nil); w.Code != http.StatusForbidden {
		t.Fatalf("self review: status = %d, want 403", w.Code)
	}

	// First approval succeeds, second hits 409.
	if w := doJSON(t, r, http.MethodPost, "/api/global-edits/1/approve", nil); w.Code != http.StatusOK {
		t.Fatalf("approve: status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/api/global-edits/1/approve", nil); w.Code != http.StatusConflict {
		t.Fatalf("double approve: status = %d, want 409", w.Code)
	}
}

func TestRejectEndpointLeavesPostsAlone(t *testing.T) {
	store := seededStore()
	author := int64(7)
	svc := edit.NewService(store, store, edit.Policy{})
	if _, err := svc.Submit(context.Background(), &author, edit.Draft{
		ConditionField: "tags", Pattern: "wip*", Action: model.ActionDelete,
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	r := newEditRouter(store, edit.Policy{}, 8, false)
	w := doJSON(t, r, http.MethodPost, "/api/global-edits/1/reject", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var sug model.EditSuggestion
	decodeBody(t, w, &sug)
	if sug.Status != model.SuggestionStatusRejected {
		t.Fatalf("status = %q, want rejected", sug.Status)
	}

	post, _ := store.Post("p1")
	if len(post.Tags) != 2 {
		t.Fatalf("p1 tags = %v, want untouched", post.Tags)
	}
}

func TestPendingAndHistoryEndpoints(t *testing.T) {
	store := seededStore()
	author := int64(7)
	svc := edit.NewService(store, store, edit.Policy{})
	if _, err := svc.Submit(context.Background(), &author, edit.Draft{
		ConditionField: "tags", Pattern: "wip*", Action: model.ActionDelete,
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	r := newEditRouter(store, edit.Policy{}, 8, false)

	w := doJSON(t, r, http.MethodGet, "/api/global-edits/pending", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pending: status = %d", w.Code)
	}
	var pending struct {
		Data  []model.EditSuggestion `json:"data"`
		Count int                    `json:"count"`
	}
	decodeBody(t, w, &pending)
	if pending.Count != 1 || len(pending.Data) != 1 {
		t.Fatalf("pending = %+v, want one entry", pending)
	}

	if w := doJSON(t, r, http.MethodPost, "/api/global-edits/1/approve", nil); w.Code != http.StatusOK {
		t.Fatalf("approve: status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/global-edits/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: status = %d", w.Code)
	}
	var history struct {
		Data  []model.EditSuggestion `json:"data"`
		Count int                    `json:"count"`
	}
	decodeBody(t, w, &history)
	if history.Count != 1 || history.Data[0].Status != model.SuggestionStatusApplied {
		t.Fatalf("history = %+v, want the applied suggestion", history)
	}
}

func TestUndoEndpointRestoresValues(t *testing.T) {
	store := seededStore()
	author := int64(7)
	svc := edit.NewService(store, store, edit.Policy{})
	if _, err := svc.Submit(context.Background(), &author, edit.Draft{
		ConditionField: "tags", Pattern: "wip*", Action: model.ActionDelete,
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	r := newEditRouter(store, edit.Policy{}, 8, true)
	if w := doJSON(t, r, http.MethodPost, "/api/global-edits/1/approve", nil); w.Code != http.StatusOK {
		t.Fatalf("approve: status = %d", w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/api/global-edits/1/undo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("undo: status = %d, body = %s", w.Code, w.Body.String())
	}
	var res edit.UndoResult
	decodeBody(t, w, &res)
	if res.RestoredCount != 1 {
		t.Fatalf("restored_count = %d, want 1", res.RestoredCount)
	}

	post, _ := store.Post("p1")
	if len(post.Tags) != 2 || post.Tags[0] != "wip-sketch" {
		t.Fatalf("p1 tags = %v, want restored [wip-sketch final]", post.Tags)
	}
}

func TestSuggestionIDMustBeNumeric(t *testing.T) {
	r := newEditRouter(seededStore(), edit.Policy{}, 8, false)
	w := doJSON(t, r, http.MethodPost, "/api/global-edits/nope/approve", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
