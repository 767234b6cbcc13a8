package model

import (
	"time"

	"github.com/lib/pq"
)

// Post statuses.
const (
	PostStatusPublished = "published"
	PostStatusHidden    = "hidden"
	PostStatusDeleted   = "deleted"
)

// Post is a catalog entry. The three list fields carry community
// metadata and are the targets of bulk edits.
type Post struct {
	ID           int64          `gorm:"primaryKey" json:"-"`
	PostID       string         `gorm:"uniqueIndex;not null" json:"post_id"`
	Title        string         `json:"title"`
	URL          string         `json:"url"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Characters   pq.StringArray `gorm:"type:text[]" json:"characters"`
	Series       pq.StringArray `gorm:"type:text[]" json:"series"`
	Tags         pq.StringArray `gorm:"type:text[]" json:"tags"`
	Status       string         `gorm:"default:published;index" json:"status"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Post) TableName() string {
	return "posts"
}

// Values returns the named list field. Unknown fields return nil.
func (p *Post) Values(f Field) []string {
	switch f {
	case FieldCharacters:
		return p.Characters
	case FieldSeries:
		return p.Series
	case FieldTags:
		return p.Tags
	}
	return nil
}

// SetValues replaces the named list field.
func (p *Post) SetValues(f Field, values []string) {
	switch f {
	case FieldCharacters:
		p.Characters = values
	case FieldSeries:
		p.Series = values
	case FieldTags:
		p.Tags = values
	}
}
