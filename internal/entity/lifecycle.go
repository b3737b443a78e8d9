package entity

import "fmt"

// EventKind names a lending transition.
type EventKind string

const (
	EventBorrow EventKind = "borrow"
	EventReturn EventKind = "return"
)

// Event is a transition request for a single book. BorrowerID is required for EventBorrow.
type Event struct {
	Kind       EventKind
	BorrowerID string
}

// Borrow builds a borrow event for the given borrower.
func Borrow(borrowerID string) Event {
	return Event{Kind: EventBorrow, BorrowerID: borrowerID}
}

// Return builds a return event.
func Return() Event {
	return Event{Kind: EventReturn}
}

// Apply runs the lending state machine:
//
//	Available --Borrow--> Borrowed
//	Borrowed  --Return--> Available
//
// Any other combination is a conflict. Deletion is terminal and handled by the owner of the
// collection: a removed book no longer exists to apply events to.
func Apply(b Book, ev Event) (Book, error) {
	switch ev.Kind {
	case EventBorrow:
		if b.Status != StatusAvailable {
			return b, fmt.Errorf("book %s is already borrowed: %w", b.ID, ErrConflict)
		}
		if ev.BorrowerID == "" {
			return b, NewValidationError(FieldError{Field: "borrower_id", Message: "borrower_id is required"})
		}
		b.Status = StatusBorrowed
		b.BorrowerID = ev.BorrowerID
	case EventReturn:
		if b.Status != StatusBorrowed {
			return b, fmt.Errorf("book %s is not borrowed: %w", b.ID, ErrConflict)
		}
		b.Status = StatusAvailable
		b.BorrowerID = ""
	default:
		return b, fmt.Errorf("unknown event %q", ev.Kind)
	}
	return b, nil
}
