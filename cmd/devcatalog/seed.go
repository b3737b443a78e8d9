package main

import (
	"fmt"
	"math/rand"

	"librarydesk/internal/entity"
)

var (
	categories = []string{"Fiction", "Science Fiction", "History", "Science", "Technology", "Romance", "Mystery", "Biography", "Philosophy", "Art"}
	authors    = []string{"Ursula K. Le Guin", "Frank Herbert", "Mary Beard", "Carl Sagan", "Donald Knuth", "Jane Austen", "Agatha Christie", "Walter Isaacson"}
	words      = []string{
		"Adventure", "Mystery", "Journey", "Discovery", "Secrets", "Dreams", "Hope",
		"Love", "War", "Peace", "Science", "Nature", "Technology", "History", "Future",
		"Past", "Present", "Reality", "Imagination", "Wisdom", "Life", "Death",
		"Light", "Darkness", "World", "Universe", "Time", "Space", "Mind", "Soul",
	}
)

// sampleBooks generates count available books with ids "1".."count". The same seed yields the
// same books.
func sampleBooks(count int, seed int64) []entity.Book {
	rng := rand.New(rand.NewSource(seed))
	pick := func(from []string) string { return from[rng.Intn(len(from))] }

	books := make([]entity.Book, 0, count)
	for i := 0; i < count; i++ {
		books = append(books, entity.Book{
			ID:       fmt.Sprintf("%d", i+1),
			Title:    fmt.Sprintf("The %s of %s", pick(words), pick(words)),
			Author:   pick(authors),
			Category: pick(categories),
			Status:   entity.StatusAvailable,
		})
	}
	return books
}
