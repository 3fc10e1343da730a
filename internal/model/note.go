package model

// TextColumn names which text field of a Note a model is trained on.
type TextColumn string

const (
	ColumnRaw        TextColumn = "notes"
	ColumnPreprocess TextColumn = "notes_preprocess"
)

// Variant returns the result-key suffix for the column ("Raw" or "Preprocess").
func (c TextColumn) Variant() string {
	if c == ColumnPreprocess {
		return "Preprocess"
	}
	return "Raw"
}

// Entity is a named entity extracted from note text.
type Entity struct {
	Lemma string `json:"lemma"`
	Label string `json:"label"` // entity type, e.g. PERSON, GPE
}

// Note is one clinical note with its specialty category.
type Note struct {
	Category      string
	CategoryLabel int
	Text          string // raw note text ("notes" column)
	Preprocessed  string // normalized note text ("notes_preprocess" column)

	EntitiesRaw          []Entity
	EntitiesPreprocessed []Entity
}

// Column returns the note text stored under the given column.
func (n Note) Column(c TextColumn) string {
	if c == ColumnPreprocess {
		return n.Preprocessed
	}
	return n.Text
}

// TermPair is one row of the term-matching table.
type TermPair struct {
	Term1 string
	Term2 string
}
