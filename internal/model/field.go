package model

// Field names one of the three mutable list attributes on a post.
type Field string

const (
	FieldCharacters Field = "characters"
	FieldSeries     Field = "series"
	FieldTags       Field = "tags"
)

// Fields lists the editable fields in display order.
func Fields() []Field {
	return []Field{FieldCharacters, FieldSeries, FieldTags}
}

// ParseField validates a client-supplied field name.
func ParseField(s string) (Field, bool) {
	switch Field(s) {
	case FieldCharacters, FieldSeries, FieldTags:
		return Field(s), true
	}
	return "", false
}
