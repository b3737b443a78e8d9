package main

import (
	"fmt"
	"io"
	"strings"

	"librarydesk/internal/entity"
	"librarydesk/internal/lending"
)

func printBooks(w io.Writer, books []entity.Book, showAvailability bool) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}
	fmt.Fprintf(w, "%-36s %-30s %-25s %-15s %s\n", "ID", "Title", "Author", "Category", "Status")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for _, b := range books {
		status := string(b.Status)
		if showAvailability && b.Status == entity.StatusAvailable {
			status += " (borrow with: desk borrow " + b.ID + ")"
		}
		fmt.Fprintf(w, "%-36s %-30s %-25s %-15s %s\n",
			b.ID,
			truncate(b.Title, 30),
			truncate(b.Author, 25),
			truncate(b.Category, 15),
			status)
	}
}

func printDraft(w io.Writer, d *lending.Draft) {
	p := d.Patch()
	fmt.Fprintf(w, "Book %s:\n", d.ID)
	if p.Title != nil {
		fmt.Fprintf(w, "  title:    %s\n", *p.Title)
	}
	if p.Author != nil {
		fmt.Fprintf(w, "  author:   %s\n", *p.Author)
	}
	if p.Category != nil {
		fmt.Fprintf(w, "  category: %s\n", *p.Category)
	}
}

func printStale(w io.Writer, stale bool, reason string) {
	if !stale {
		return
	}
	if reason != "" {
		fmt.Fprintf(w, "Note: the list may be out of date (%s).\n", reason)
		return
	}
	fmt.Fprintln(w, "Note: the list may be out of date.")
}

func describe(b entity.Book) string {
	if b.Title == "" {
		return "book " + b.ID
	}
	return fmt.Sprintf("%q (%s)", b.Title, b.ID)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
