package catalog

import "strings"

// MinReleaseYear is the earliest release year the catalog accepts.
// Years below it are floored, not rejected.
const MinReleaseYear = 1940

// Item is one anime entry as fetched from the upstream catalog.
// The AniList id is the stable correlation key across syncs; the
// surrogate id lives in the store and is never carried here.
type Item struct {
	AniListID   int
	MALID       *int
	Title       string
	CoverURL    string
	Format      string
	Status      string
	Genres      []string
	ReleaseYear *int
	Score       float64
}

// Validate normalizes the item in place. Ingestion is permissive:
// out-of-range values are clamped or floored, never rejected.
func (i *Item) Validate() {
	if i.Score < 0 {
		i.Score = 0
	}
	if i.Score > 1 {
		i.Score = 1
	}
	if i.ReleaseYear != nil && *i.ReleaseYear < MinReleaseYear {
		y := MinReleaseYear
		i.ReleaseYear = &y
	}
}

// NormalizeGenre maps a raw upstream genre label to its canonical
// lowercase underscore-separated form ("Slice of Life" -> "slice_of_life").
func NormalizeGenre(raw string) string {
	return strings.ReplaceAll(strings.ToLower(raw), " ", "_")
}
