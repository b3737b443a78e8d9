// Package search narrows a catalog snapshot to the books matching a text query.
package search

import (
	"strings"

	"golang.org/x/text/cases"

	"librarydesk/internal/catalog"
	"librarydesk/internal/entity"
)

// Query is the ephemeral text typed into the search box.
type Query struct {
	Text string
}

// Filter returns the books of snap whose title or category contains the query text, compared
// case-insensitively. Order is preserved. An empty query returns snap.Books as is.
func Filter(snap catalog.Snapshot, q Query) []entity.Book {
	if q.Text == "" {
		return snap.Books
	}
	fold := cases.Fold()
	needle := fold.String(q.Text)

	out := make([]entity.Book, 0, len(snap.Books))
	for _, b := range snap.Books {
		if strings.Contains(fold.String(b.Title), needle) || strings.Contains(fold.String(b.Category), needle) {
			out = append(out, b)
		}
	}
	return out
}

// View holds the live query for one screen. It is never persisted and is cleared by Reset when
// the user navigates away.
type View struct {
	query Query
}

func (v *View) SetText(text string) { v.query.Text = text }

func (v *View) Query() Query { return v.query }

func (v *View) Reset() { v.query = Query{} }

// Apply filters snap with the current query.
func (v *View) Apply(snap catalog.Snapshot) []entity.Book {
	return Filter(snap, v.query)
}
