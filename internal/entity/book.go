package entity

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the lending state of a book as reported by the catalog.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBorrowed  Status = "borrowed"
)

// Book is the client's cached copy of a catalog entry. The server owns it.
type Book struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Category   string `json:"category"`
	Status     Status `json:"status"`
	BorrowerID string `json:"borrower_id,omitempty"`
}

// Validate checks the status/borrower invariant.
func (b Book) Validate() error {
	switch b.Status {
	case StatusAvailable:
		if b.BorrowerID != "" {
			return fmt.Errorf("book %s: available with borrower %q", b.ID, b.BorrowerID)
		}
	case StatusBorrowed:
		if b.BorrowerID == "" {
			return fmt.Errorf("book %s: borrowed without borrower", b.ID)
		}
	default:
		return fmt.Errorf("book %s: unknown status %q", b.ID, b.Status)
	}
	return nil
}

// Fields returns the editable part of the book.
func (b Book) Fields() BookFields {
	return BookFields{Title: b.Title, Author: b.Author, Category: b.Category}
}

// BookFields is the input of a create request.
type BookFields struct {
	Title    string `json:"title" validate:"required,max=200"`
	Author   string `json:"author" validate:"required,max=200"`
	Category string `json:"category" validate:"required,max=100"`
}

// Normalize trims surrounding whitespace from every field.
func (f BookFields) Normalize() BookFields {
	return BookFields{
		Title:    strings.TrimSpace(f.Title),
		Author:   strings.TrimSpace(f.Author),
		Category: strings.TrimSpace(f.Category),
	}
}

// BookPatch is the input of an update request. Nil fields are left unchanged.
type BookPatch struct {
	Title    *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Author   *string `json:"author,omitempty" validate:"omitempty,min=1,max=200"`
	Category *string `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
}

// Empty reports whether the patch changes nothing.
func (p BookPatch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.Category == nil
}

// ApplyTo returns b with the patch applied.
func (p BookPatch) ApplyTo(b Book) Book {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Category != nil {
		b.Category = *p.Category
	}
	return b
}

// Normalize trims surrounding whitespace from every set field.
func (p BookPatch) Normalize() BookPatch {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	return BookPatch{Title: trim(p.Title), Author: trim(p.Author), Category: trim(p.Category)}
}

// Blank reports set fields that hold an empty string. Struct tags skip those.
func (p BookPatch) Blank() error {
	var fields []FieldError
	for name, v := range map[string]*string{"title": p.Title, "author": p.Author, "category": p.Category} {
		if v != nil && *v == "" {
			fields = append(fields, FieldError{Field: name, Message: name + " must not be empty"})
		}
	}
	if len(fields) == 0 {
		return nil
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return NewValidationError(fields...)
}
