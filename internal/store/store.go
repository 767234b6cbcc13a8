// Package store backs the edit service with Postgres.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/artdex/api/internal/edit"
	"github.com/artdex/api/internal/model"
	"github.com/artdex/api/internal/pattern"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// fieldColumn maps a validated field to its column. The switch is the
// only place a field name may enter SQL text.
func fieldColumn(f model.Field) (string, error) {
	switch f {
	case model.FieldCharacters:
		return "characters", nil
	case model.FieldSeries:
		return "series", nil
	case model.FieldTags:
		return "tags", nil
	}
	return "", fmt.Errorf("unknown field %q", f)
}

// MatchingPosts narrows candidates with an ILIKE prefilter over the
// unnested array. The matcher stays authoritative: callers re-test
// every element, so a too-wide prefilter costs reads, never
// correctness.
func (s *Store) MatchingPosts(ctx context.Context, field model.Field, m *pattern.Matcher) ([]model.Post, error) {
	column, err := fieldColumn(field)
	if err != nil {
		return nil, err
	}

	var posts []model.Post
	cond := fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(%s) AS val WHERE val ILIKE ?)", column)
	err = s.db.WithContext(ctx).
		Where("status = ?", model.PostStatusPublished).
		Where(cond, m.SQL()).
		Order("id ASC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// MutatePost loads the post by external id under a row lock, runs fn,
// and persists when fn returns true. The transaction gives each
// record's mutation all-or-nothing semantics and serializes applies
// touching the same post.
func (s *Store) MutatePost(ctx context.Context, postID string, fn func(p *model.Post) (bool, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post model.Post
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("post_id = ?", postID).
			First(&post).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return edit.ErrNotFound
		}
		if err != nil {
			return err
		}

		save, err := fn(&post)
		if err != nil {
			return err
		}
		if !save {
			return nil
		}
		return tx.Save(&post).Error
	})
}

func (s *Store) CreateSuggestion(ctx context.Context, sug *model.EditSuggestion) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(sug).Error
}

func (s *Store) GetSuggestion(ctx context.Context, id int64) (*model.EditSuggestion, error) {
	var sug model.EditSuggestion
	err := s.db.WithContext(ctx).
		Preload("Suggester").
		Preload("Approver").
		First(&sug, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, edit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sug, nil
}

func (s *Store) PendingSuggestions(ctx context.Context) ([]model.EditSuggestion, error) {
	var out []model.EditSuggestion
	err := s.db.WithContext(ctx).
		Preload("Suggester").
		Where("status = ?", model.SuggestionStatusPending).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) AppliedSuggestions(ctx context.Context, limit int) ([]model.EditSuggestion, error) {
	var out []model.EditSuggestion
	err := s.db.WithContext(ctx).
		Preload("Suggester").
		Preload("Approver").
		Where("status = ?", model.SuggestionStatusApplied).
		Order("applied_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// TransitionSuggestion moves id from one status to another in a single
// conditional update. The bool reports whether this call won; a
// concurrent reviewer losing the race sees false, not an error.
func (s *Store) TransitionSuggestion(ctx context.Context, id int64, from, to string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.EditSuggestion{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) SaveSuggestion(ctx context.Context, sug *model.EditSuggestion) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(sug).Error
}

func (s *Store) TopContributors(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	var out []model.LeaderboardEntry
	err := s.db.WithContext(ctx).
		Model(&model.EditSuggestion{}).
		Select("users.id AS user_id, users.username AS username, COUNT(*) AS count").
		Joins("JOIN users ON users.id = edit_suggestions.suggester_id").
		Group("users.id, users.username").
		Order("count DESC, MIN(edit_suggestions.created_at) ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

func (s *Store) TopReviewers(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	var out []model.LeaderboardEntry
	err := s.db.WithContext(ctx).
		Model(&model.EditSuggestion{}).
		Select("users.id AS user_id, users.username AS username, COUNT(*) AS count").
		Joins("JOIN users ON users.id = edit_suggestions.approver_id").
		Where("edit_suggestions.status = ?", model.SuggestionStatusApplied).
		Group("users.id, users.username").
		Order("count DESC, MIN(edit_suggestions.applied_at) ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}
