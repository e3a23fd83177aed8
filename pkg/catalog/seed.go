// Package catalog loads the books.csv dataset into the store.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"bibliotrack/internal/util"
	"bibliotrack/pkg/domain"
	"bibliotrack/pkg/store"
)

// SeedResult summarizes one seeding run.
type SeedResult struct {
	Created int
	Updated int
	Skipped int
}

// SeedFromCSV reads book rows and upserts them into the store. Rows are
// matched on title+author so reruns update instead of duplicating. Rows
// missing a title or price are skipped, not fatal.
func SeedFromCSV(r io.Reader, st store.Store) (SeedResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return SeedResult{}, fmt.Errorf("read csv header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"title", "author", "price"} {
		if _, ok := cols[required]; !ok {
			return SeedResult{}, fmt.Errorf("csv missing %q column", required)
		}
	}

	existing, err := st.ListBooks(store.BookFilter{})
	if err != nil {
		return SeedResult{}, fmt.Errorf("list books: %w", err)
	}
	byKey := make(map[string]domain.Book, len(existing))
	for _, b := range existing {
		byKey[seedKey(b.Title, b.Author)] = b
	}

	var result SeedResult
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read csv row: %w", err)
		}
		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		title := field("title")
		price, priceErr := domain.ParsePaise(field("price"))
		if title == "" || priceErr != nil || price <= 0 {
			result.Skipped++
			continue
		}

		book := domain.Book{
			Title:         title,
			Author:        field("author"),
			Genre:         field("genre"),
			Category:      field("category"),
			Description:   field("description"),
			CoverImageURL: field("image_url"),
			Price:         price,
			Stock:         parseIntDefault(field("stock"), 10),
		}
		if prev, ok := byKey[seedKey(book.Title, book.Author)]; ok {
			book.ID = prev.ID
			book.CreatedAt = prev.CreatedAt
			result.Updated++
		} else {
			book.ID = util.NewID()
			result.Created++
		}
		if err := st.SaveBook(book); err != nil {
			return result, fmt.Errorf("save book %q: %w", book.Title, err)
		}
		byKey[seedKey(book.Title, book.Author)] = book
	}
	return result, nil
}

func seedKey(title, author string) string {
	return strings.ToLower(title) + "\x00" + strings.ToLower(author)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
