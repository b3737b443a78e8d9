package lending

import (
	"context"
	"fmt"

	"librarydesk/internal/entity"
	"librarydesk/internal/rolegate"
)

// Draft is an editable copy of a book's fields. Only confirmed drafts are submitted.
type Draft struct {
	ID        string
	Fields    entity.BookFields
	loaded    entity.BookFields
	confirmed bool
}

// Edit loads the current fields of book id from the store into a draft.
func (c *Controller) Edit(id string) (*Draft, error) {
	if err := rolegate.Require(c.session.Role, rolegate.Update); err != nil {
		return nil, err
	}
	book, ok := c.store.Snapshot().Find(id)
	if !ok {
		return nil, fmt.Errorf("edit %s: %w", id, entity.ErrNotFound)
	}
	fields := book.Fields()
	return &Draft{ID: id, Fields: fields, loaded: fields}, nil
}

func (d *Draft) SetTitle(v string)    { d.Fields.Title = v }
func (d *Draft) SetAuthor(v string)   { d.Fields.Author = v }
func (d *Draft) SetCategory(v string) { d.Fields.Category = v }

// Confirm marks the draft as approved by the user.
func (d *Draft) Confirm() { d.confirmed = true }

func (d *Draft) Confirmed() bool { return d.confirmed }

// Patch holds only the fields that differ from the loaded book.
func (d *Draft) Patch() entity.BookPatch {
	var p entity.BookPatch
	f := d.Fields.Normalize()
	if f.Title != d.loaded.Title {
		p.Title = &f.Title
	}
	if f.Author != d.loaded.Author {
		p.Author = &f.Author
	}
	if f.Category != d.loaded.Category {
		p.Category = &f.Category
	}
	return p
}

// Commit submits a confirmed draft.
func (c *Controller) Commit(ctx context.Context, d *Draft) (Outcome, error) {
	if !d.confirmed {
		return c.current(), fmt.Errorf("update %s: %w", d.ID, ErrNotConfirmed)
	}
	return c.UpdateBook(ctx, d.ID, d.Patch())
}
