package edit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/artdex/api/internal/model"
	"github.com/artdex/api/internal/normalize"
	"github.com/artdex/api/internal/pattern"
)

// PostStore is the record collaborator. Reads scan published posts;
// writes go through MutatePost, which must load the post under a
// per-record lock, run fn, and persist the post when fn returns true.
type PostStore interface {
	MatchingPosts(ctx context.Context, field model.Field, m *pattern.Matcher) ([]model.Post, error)
	MutatePost(ctx context.Context, postID string, fn func(p *model.Post) (bool, error)) error
}

// SuggestionStore persists suggestions and serves the leaderboard
// aggregates. TransitionSuggestion must be atomic: it moves id from
// the from status to the to status and reports whether this call won.
type SuggestionStore interface {
	CreateSuggestion(ctx context.Context, s *model.EditSuggestion) error
	GetSuggestion(ctx context.Context, id int64) (*model.EditSuggestion, error)
	PendingSuggestions(ctx context.Context) ([]model.EditSuggestion, error)
	AppliedSuggestions(ctx context.Context, limit int) ([]model.EditSuggestion, error)
	TransitionSuggestion(ctx context.Context, id int64, from, to string) (bool, error)
	SaveSuggestion(ctx context.Context, s *model.EditSuggestion) error
	TopContributors(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
	TopReviewers(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

// Policy holds review rules that vary per deployment.
type Policy struct {
	AllowSelfReview bool
}

// Reviewer identifies the user acting on a suggestion.
type Reviewer struct {
	ID    int64
	Admin bool
}

// Draft is a submission before validation. ActionValue is ignored for
// DELETE.
type Draft struct {
	ConditionField string
	Pattern        string
	Action         string
	ActionField    string
	ActionValue    string
}

// AffectedPost is one row of a preview: the post and the elements of
// the condition field that matched.
type AffectedPost struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	CurrentValues []string `json:"current_values"`
}

type PreviewResult struct {
	AffectedCount int            `json:"affected_count"`
	AffectedPosts []AffectedPost `json:"affected_posts"`
}

// RecordFailure notes one post that could not be mutated.
type RecordFailure struct {
	PostID string `json:"post_id"`
	Error  string `json:"error"`
}

// ApplyReport summarizes one apply run. It is persisted on the
// suggestion as JSON and readable back through LastApplyReport.
type ApplyReport struct {
	RunID        string          `json:"run_id"`
	MutatedCount int             `json:"mutated_count"`
	SkippedCount int             `json:"skipped_count"`
	Failures     []RecordFailure `json:"failures,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// LastApplyReport decodes the report stored by the most recent apply
// run, if any.
func LastApplyReport(sug *model.EditSuggestion) (*ApplyReport, bool) {
	if len(sug.ApplyReport) == 0 {
		return nil, false
	}
	var report ApplyReport
	if err := json.Unmarshal(sug.ApplyReport, &report); err != nil {
		return nil, false
	}
	return &report, true
}

type UndoResult struct {
	RestoredCount int             `json:"restored_count"`
	Failures      []RecordFailure `json:"failures,omitempty"`
}

// Service runs the bulk edit lifecycle: preview, submit, review,
// apply, undo, plus the contributor aggregates.
type Service struct {
	posts       PostStore
	suggestions SuggestionStore
	policy      Policy
}

func NewService(posts PostStore, suggestions SuggestionStore, policy Policy) *Service {
	return &Service{posts: posts, suggestions: suggestions, policy: policy}
}

// Preview compiles raw and reports which posts it would touch.
// CurrentValues holds only the matching elements so a reviewer sees
// exactly what changes. Zero matches is a valid result, not an error.
func (s *Service) Preview(ctx context.Context, field model.Field, raw string) (*PreviewResult, error) {
	m, err := pattern.Compile(raw)
	if err != nil {
		return nil, err
	}
	return s.preview(ctx, field, m)
}

func (s *Service) preview(ctx context.Context, field model.Field, m *pattern.Matcher) (*PreviewResult, error) {
	posts, err := s.posts.MatchingPosts(ctx, field, m)
	if err != nil {
		return nil, err
	}
	result := &PreviewResult{AffectedPosts: []AffectedPost{}}
	for i := range posts {
		matched := m.MatchingValues(posts[i].Values(field))
		if len(matched) == 0 {
			continue
		}
		result.AffectedPosts = append(result.AffectedPosts, AffectedPost{
			ID:            posts[i].PostID,
			Title:         posts[i].Title,
			CurrentValues: matched,
		})
	}
	result.AffectedCount = len(result.AffectedPosts)
	return result, nil
}

// PreviewSuggestion recomputes the preview for a stored suggestion
// against current post state.
func (s *Service) PreviewSuggestion(ctx context.Context, id int64) (*PreviewResult, error) {
	sug, err := s.suggestions.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	field, ok := model.ParseField(sug.ConditionField)
	if !ok {
		return nil, fmt.Errorf("suggestion %d has unknown condition field %q", id, sug.ConditionField)
	}
	return s.Preview(ctx, field, sug.Pattern)
}

// Get fetches one suggestion.
func (s *Service) Get(ctx context.Context, id int64) (*model.EditSuggestion, error) {
	return s.suggestions.GetSuggestion(ctx, id)
}

// Submit validates a draft and stores it as a pending suggestion.
// Every problem is collected before returning so the client can fix
// them in one pass. For DELETE the action field always follows the
// condition field, whatever the client sent.
func (s *Service) Submit(ctx context.Context, suggesterID *int64, d Draft) (*model.EditSuggestion, error) {
	var issues []Issue

	condField, condOK := model.ParseField(d.ConditionField)
	if !condOK {
		issues = append(issues, Issue{Msg: "condition_field must be one of characters, series, tags"})
	}

	matcher, err := pattern.Compile(d.Pattern)
	if err != nil {
		issues = append(issues, Issue{Msg: "pattern must not be empty"})
	}

	sug := &model.EditSuggestion{
		ConditionField: string(condField),
		Action:         d.Action,
		Status:         model.SuggestionStatusPending,
		SuggesterID:    suggesterID,
	}
	if matcher != nil {
		sug.Pattern = matcher.String()
	}

	switch d.Action {
	case model.ActionAdd:
		actionField, ok := model.ParseField(d.ActionField)
		if !ok {
			issues = append(issues, Issue{Msg: "action_field must be one of characters, series, tags"})
		}
		sug.ActionField = string(actionField)

		value, ok := normalize.Text(d.ActionValue)
		if !ok {
			issues = append(issues, Issue{Msg: "action_value is required for ADD"})
		} else if matcher != nil && normalize.Fold(value) == normalize.Fold(matcher.String()) {
			issues = append(issues, Issue{Msg: "action_value must differ from pattern"})
		} else {
			sug.ActionValue = &value
		}
	case model.ActionDelete:
		sug.ActionField = string(condField)
		sug.ActionValue = nil
	default:
		issues = append(issues, Issue{Msg: "action must be ADD or DELETE"})
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	if err := s.suggestions.CreateSuggestion(ctx, sug); err != nil {
		return nil, err
	}
	return sug, nil
}

// Approve moves a pending suggestion to approved and runs the apply
// engine synchronously. Approval and application are one observable
// transition: the returned suggestion is already applied or
// failed_apply. The optimistic status update makes double approval
// lose with ErrInvalidState even under concurrent calls.
func (s *Service) Approve(ctx context.Context, id int64, reviewer Reviewer) (*model.EditSuggestion, error) {
	sug, err := s.suggestions.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if sug.Status != model.SuggestionStatusPending {
		return nil, ErrInvalidState
	}
	if sug.SuggesterID != nil && *sug.SuggesterID == reviewer.ID &&
		!reviewer.Admin && !s.policy.AllowSelfReview {
		return nil, ErrSelfReview
	}

	won, err := s.suggestions.TransitionSuggestion(ctx, id,
		model.SuggestionStatusPending, model.SuggestionStatusApproved)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrInvalidState
	}

	now := time.Now()
	sug.Status = model.SuggestionStatusApproved
	sug.ApproverID = &reviewer.ID
	sug.ResolvedAt = &now

	s.apply(ctx, sug)

	if err := s.suggestions.SaveSuggestion(ctx, sug); err != nil {
		return nil, err
	}
	return sug, nil
}

// Reject resolves a pending suggestion without touching any post.
func (s *Service) Reject(ctx context.Context, id int64, reviewer Reviewer) (*model.EditSuggestion, error) {
	sug, err := s.suggestions.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if sug.Status != model.SuggestionStatusPending {
		return nil, ErrInvalidState
	}

	won, err := s.suggestions.TransitionSuggestion(ctx, id,
		model.SuggestionStatusPending, model.SuggestionStatusRejected)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrInvalidState
	}

	now := time.Now()
	sug.Status = model.SuggestionStatusRejected
	sug.ApproverID = &reviewer.ID
	sug.ResolvedAt = &now

	if err := s.suggestions.SaveSuggestion(ctx, sug); err != nil {
		return nil, err
	}
	return sug, nil
}

// Reapply re-runs the apply engine for a suggestion that failed
// partway. Already-mutated posts are skipped because both actions are
// idempotent against their own effect.
func (s *Service) Reapply(ctx context.Context, id int64) (*model.EditSuggestion, error) {
	sug, err := s.suggestions.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if sug.Status != model.SuggestionStatusFailedApply {
		return nil, ErrInvalidState
	}

	won, err := s.suggestions.TransitionSuggestion(ctx, id,
		model.SuggestionStatusFailedApply, model.SuggestionStatusApproved)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrInvalidState
	}

	sug.Status = model.SuggestionStatusApproved
	s.apply(ctx, sug)

	if err := s.suggestions.SaveSuggestion(ctx, sug); err != nil {
		return nil, err
	}
	return sug, nil
}

// Undo restores, for every post an apply run touched, the field
// contents captured before that run's first write to it. The
// suggestion keeps its status so the audit trail survives.
func (s *Service) Undo(ctx context.Context, id int64) (*UndoResult, error) {
	sug, err := s.suggestions.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if sug.Status != model.SuggestionStatusApplied && sug.Status != model.SuggestionStatusFailedApply {
		return nil, ErrInvalidState
	}
	actionField, ok := model.ParseField(sug.ActionField)
	if !ok {
		return nil, fmt.Errorf("suggestion %d has unknown action field %q", id, sug.ActionField)
	}

	result := &UndoResult{}
	for postID, values := range sug.PreviousValues {
		restored := normalize.Field(values)
		err := s.posts.MutatePost(ctx, postID, func(p *model.Post) (bool, error) {
			p.SetValues(actionField, restored)
			return true, nil
		})
		if err != nil {
			result.Failures = append(result.Failures, RecordFailure{PostID: postID, Error: err.Error()})
			continue
		}
		result.RestoredCount++
	}
	return result, nil
}

// Pending lists suggestions awaiting review, oldest first.
func (s *Service) Pending(ctx context.Context) ([]model.EditSuggestion, error) {
	return s.suggestions.PendingSuggestions(ctx)
}

// History lists applied suggestions, most recently applied first.
func (s *Service) History(ctx context.Context, limit int) ([]model.EditSuggestion, error) {
	return s.suggestions.AppliedSuggestions(ctx, clampLimit(limit))
}

// TopContributors ranks users by suggestions submitted, ties going to
// whoever suggested first.
func (s *Service) TopContributors(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	return s.suggestions.TopContributors(ctx, clampLimit(limit))
}

// TopReviewers ranks reviewers by approvals that reached applied.
func (s *Service) TopReviewers(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	return s.suggestions.TopReviewers(ctx, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit < 1 || limit > 100 {
		return 50
	}
	return limit
}

// apply recomputes the match set against current post state and
// mutates each matching post independently. The run's outcome lands
// on the suggestion: status, apply report, applied_at, and the
// captured previous values for undo.
func (s *Service) apply(ctx context.Context, sug *model.EditSuggestion) {
	report := ApplyReport{RunID: uuid.New().String()}
	sug.ApplyRunID = report.RunID
	if sug.PreviousValues == nil {
		sug.PreviousValues = model.PreviousValues{}
	}

	if err := s.applyAll(ctx, sug, &report); err != nil {
		report.Error = err.Error()
	}

	now := time.Now()
	if report.Error != "" || len(report.Failures) > 0 {
		sug.Status = model.SuggestionStatusFailedApply
	} else {
		sug.Status = model.SuggestionStatusApplied
		sug.AppliedAt = &now
	}
	if data, err := json.Marshal(report); err == nil {
		sug.ApplyReport = datatypes.JSON(data)
	}
}

func (s *Service) applyAll(ctx context.Context, sug *model.EditSuggestion, report *ApplyReport) error {
	field, ok := model.ParseField(sug.ConditionField)
	if !ok {
		return fmt.Errorf("unknown condition field %q", sug.ConditionField)
	}
	matcher, err := pattern.Compile(sug.Pattern)
	if err != nil {
		return fmt.Errorf("compile pattern %q: %w", sug.Pattern, err)
	}
	posts, err := s.posts.MatchingPosts(ctx, field, matcher)
	if err != nil {
		return fmt.Errorf("scan posts: %w", err)
	}

	for i := range posts {
		mutated, err := s.applyToPost(ctx, sug, field, matcher, posts[i].PostID)
		if err != nil {
			report.Failures = append(report.Failures, RecordFailure{PostID: posts[i].PostID, Error: err.Error()})
			continue
		}
		if mutated {
			report.MutatedCount++
		} else {
			report.SkippedCount++
		}
	}
	return nil
}

// applyToPost mutates a single post under its record lock. The match
// is re-checked inside the lock: a post that changed since the scan
// and no longer matches is skipped, not failed.
func (s *Service) applyToPost(ctx context.Context, sug *model.EditSuggestion, condField model.Field, matcher *pattern.Matcher, postID string) (bool, error) {
	mutated := false
	err := s.posts.MutatePost(ctx, postID, func(p *model.Post) (bool, error) {
		if !matcher.MatchesAny(p.Values(condField)) {
			return false, nil
		}
		actionField, ok := model.ParseField(sug.ActionField)
		if !ok {
			return false, fmt.Errorf("unknown action field %q", sug.ActionField)
		}

		before := p.Values(actionField)
		var after []string
		switch sug.Action {
		case model.ActionAdd:
			value := ""
			if sug.ActionValue != nil {
				value = *sug.ActionValue
			}
			if value == "" {
				return false, errors.New("missing action value")
			}
			after = addValue(before, value)
		case model.ActionDelete:
			after = deleteMatching(before, matcher)
		default:
			return false, fmt.Errorf("unknown action %q", sug.Action)
		}

		after = normalize.Field(after)
		if equalValues(before, after) {
			return false, nil
		}
		if _, seen := sug.PreviousValues[p.PostID]; !seen {
			sug.PreviousValues[p.PostID] = append([]string(nil), before...)
		}
		p.SetValues(actionField, after)
		mutated = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return mutated, nil
}

// addValue appends value unless an element already equals it
// case-insensitively.
func addValue(values []string, value string) []string {
	key := normalize.Fold(value)
	for _, v := range values {
		if normalize.Fold(v) == key {
			return values
		}
	}
	out := make([]string, 0, len(values)+1)
	out = append(out, values...)
	return append(out, value)
}

// deleteMatching drops every element the matcher accepts.
func deleteMatching(values []string, m *pattern.Matcher) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if m.Match(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func equalValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
