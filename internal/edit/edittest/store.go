// Package edittest provides in-memory stores for exercising the edit
// service without Postgres.
package edittest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/artdex/api/internal/edit"
	"github.com/artdex/api/internal/model"
	"github.com/artdex/api/internal/pattern"
)

// Store implements edit.PostStore and edit.SuggestionStore in memory.
// The zero value is not usable; call NewStore.
type Store struct {
	mu          sync.Mutex
	posts       map[string]*model.Post
	postOrder   []string
	suggestions map[int64]*model.EditSuggestion
	users       map[int64]*model.User
	nextPostID  int64
	nextSugID   int64

	// FailMutate makes MutatePost fail with the given error for the
	// listed post ids.
	FailMutate map[string]error
	// AfterMatch runs after each MatchingPosts call so a test can
	// change posts between the scan and the per-post mutations.
	AfterMatch func()
	// BeforeTransition runs before each TransitionSuggestion call so a
	// test can win the race against the caller.
	BeforeTransition func()
}

func NewStore() *Store {
	return &Store{
		posts:       map[string]*model.Post{},
		suggestions: map[int64]*model.EditSuggestion{},
		users:       map[int64]*model.User{},
		FailMutate:  map[string]error{},
	}
}

// AddPost stores a copy of p keyed by its external id, assigning an
// internal id when missing.
func (s *Store) AddPost(p model.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextPostID++
		p.ID = s.nextPostID
	}
	if _, exists := s.posts[p.PostID]; !exists {
		s.postOrder = append(s.postOrder, p.PostID)
	}
	stored := clonePost(&p)
	s.posts[p.PostID] = &stored
}

// Post returns a copy of the stored post for assertions.
func (s *Store) Post(postID string) (model.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return model.Post{}, false
	}
	return clonePost(p), true
}

// AddUser registers a user so leaderboards and preloads can name it.
func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := u
	s.users[u.ID] = &stored
}

// Suggestion returns a copy of the stored suggestion for assertions.
func (s *Store) Suggestion(id int64) (model.EditSuggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sug, ok := s.suggestions[id]
	if !ok {
		return model.EditSuggestion{}, false
	}
	return cloneSuggestion(sug), true
}

func (s *Store) MatchingPosts(ctx context.Context, field model.Field, m *pattern.Matcher) ([]model.Post, error) {
	s.mu.Lock()
	var out []model.Post
	for _, id := range s.postOrder {
		p := s.posts[id]
		if p.Status != model.PostStatusPublished {
			continue
		}
		if m.MatchesAny(p.Values(field)) {
			out = append(out, clonePost(p))
		}
	}
	hook := s.AfterMatch
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *Store) MutatePost(ctx context.Context, postID string, fn func(p *model.Post) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.FailMutate[postID]; ok {
		return err
	}
	p, ok := s.posts[postID]
	if !ok {
		return edit.ErrNotFound
	}
	work := clonePost(p)
	save, err := fn(&work)
	if err != nil {
		return err
	}
	if save {
		s.posts[postID] = &work
	}
	return nil
}

func (s *Store) CreateSuggestion(ctx context.Context, sug *model.EditSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSugID++
	sug.ID = s.nextSugID
	if sug.CreatedAt.IsZero() {
		sug.CreatedAt = time.Now()
	}
	stored := cloneSuggestion(sug)
	s.suggestions[sug.ID] = &stored
	return nil
}

func (s *Store) GetSuggestion(ctx context.Context, id int64) (*model.EditSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sug, ok := s.suggestions[id]
	if !ok {
		return nil, edit.ErrNotFound
	}
	out := cloneSuggestion(sug)
	return &out, nil
}

func (s *Store) PendingSuggestions(ctx context.Context) ([]model.EditSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.EditSuggestion
	for _, sug := range s.suggestions {
		if sug.Status == model.SuggestionStatusPending {
			out = append(out, s.withUsers(sug))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AppliedSuggestions(ctx context.Context, limit int) ([]model.EditSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.EditSuggestion
	for _, sug := range s.suggestions {
		if sug.Status == model.SuggestionStatusApplied {
			out = append(out, s.withUsers(sug))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].AppliedAt, out[j].AppliedAt
		if ai != nil && aj != nil && !ai.Equal(*aj) {
			return ai.After(*aj)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TransitionSuggestion(ctx context.Context, id int64, from, to string) (bool, error) {
	if s.BeforeTransition != nil {
		s.BeforeTransition()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sug, ok := s.suggestions[id]
	if !ok || sug.Status != from {
		return false, nil
	}
	sug.Status = to
	return true, nil
}

func (s *Store) SaveSuggestion(ctx context.Context, sug *model.EditSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suggestions[sug.ID]; !ok {
		return edit.ErrNotFound
	}
	stored := cloneSuggestion(sug)
	s.suggestions[sug.ID] = &stored
	return nil
}

type agg struct {
	count int64
	first time.Time
}

func (s *Store) TopContributors(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser := map[int64]*agg{}
	for _, sug := range s.suggestions {
		if sug.SuggesterID == nil {
			continue
		}
		a := byUser[*sug.SuggesterID]
		if a == nil {
			a = &agg{first: sug.CreatedAt}
			byUser[*sug.SuggesterID] = a
		}
		a.count++
		if sug.CreatedAt.Before(a.first) {
			a.first = sug.CreatedAt
		}
	}
	return s.rank(byUser, limit), nil
}

func (s *Store) TopReviewers(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser := map[int64]*agg{}
	for _, sug := range s.suggestions {
		if sug.Status != model.SuggestionStatusApplied || sug.ApproverID == nil {
			continue
		}
		a := byUser[*sug.ApproverID]
		if a == nil {
			a = &agg{first: timeOrZero(sug.AppliedAt)}
			byUser[*sug.ApproverID] = a
		}
		a.count++
		if at := timeOrZero(sug.AppliedAt); at.Before(a.first) {
			a.first = at
		}
	}
	return s.rank(byUser, limit), nil
}

func (s *Store) rank(byUser map[int64]*agg, limit int) []model.LeaderboardEntry {
	ids := make([]int64, 0, len(byUser))
	for id := range byUser {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ai, aj := byUser[ids[i]], byUser[ids[j]]
		if ai.count != aj.count {
			return ai.count > aj.count
		}
		if !ai.first.Equal(aj.first) {
			return ai.first.Before(aj.first)
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]model.LeaderboardEntry, 0, len(ids))
	for _, id := range ids {
		entry := model.LeaderboardEntry{UserID: id, Count: byUser[id].count}
		if u, ok := s.users[id]; ok {
			entry.Username = u.Username
		}
		out = append(out, entry)
	}
	return out
}

func (s *Store) withUsers(sug *model.EditSuggestion) model.EditSuggestion {
	out := cloneSuggestion(sug)
	if out.SuggesterID != nil {
		if u, ok := s.users[*out.SuggesterID]; ok {
			cu := *u
			out.Suggester = &cu
		}
	}
	if out.ApproverID != nil {
		if u, ok := s.users[*out.ApproverID]; ok {
			cu := *u
			out.Approver = &cu
		}
	}
	return out
}

func clonePost(p *model.Post) model.Post {
	out := *p
	out.Characters = append(pq.StringArray(nil), p.Characters...)
	out.Series = append(pq.StringArray(nil), p.Series...)
	out.Tags = append(pq.StringArray(nil), p.Tags...)
	return out
}

func cloneSuggestion(sug *model.EditSuggestion) model.EditSuggestion {
	out := *sug
	if sug.PreviousValues != nil {
		out.PreviousValues = model.PreviousValues{}
		for k, v := range sug.PreviousValues {
			out.PreviousValues[k] = append([]string(nil), v...)
		}
	}
	return out
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
