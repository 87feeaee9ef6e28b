package catalog

// Association links one staged item to one normalized genre label.
type Association struct {
	AniListID int
	Genre     string
}

// Batch stages one page worth of items plus the derived join-table
// rows for a single atomic save. It only accumulates in memory; the
// store applies it. Not safe for concurrent use, which is fine: the
// sync loop is strictly sequential.
type Batch struct {
	items        []Item
	anilistIDs   []int
	genres       []string
	associations []Association

	genreSeen map[string]struct{}

	maxYear      int
	maxYearKnown bool
}

// NewBatch returns an empty accumulator ready for staging.
func NewBatch() *Batch {
	return &Batch{genreSeen: make(map[string]struct{})}
}

// Append validates the item and stages its row, its stale-association
// deletion key, any genres not yet seen by this batch, and one
// association per genre.
func (b *Batch) Append(item Item) {
	item.Validate()

	b.items = append(b.items, item)
	b.anilistIDs = append(b.anilistIDs, item.AniListID)

	for _, raw := range item.Genres {
		genre := NormalizeGenre(raw)

		// Genre rows are inserted at most once per batch.
		if _, ok := b.genreSeen[genre]; !ok {
			b.genreSeen[genre] = struct{}{}
			b.genres = append(b.genres, genre)
		}

		b.associations = append(b.associations, Association{
			AniListID: item.AniListID,
			Genre:     genre,
		})
	}

	if item.ReleaseYear != nil && (!b.maxYearKnown || *item.ReleaseYear > b.maxYear) {
		b.maxYear = *item.ReleaseYear
		b.maxYearKnown = true
	}
}

// Clear resets all staged collections so the batch can be reused.
func (b *Batch) Clear() {
	b.items = b.items[:0]
	b.anilistIDs = b.anilistIDs[:0]
	b.genres = b.genres[:0]
	b.associations = b.associations[:0]
	clear(b.genreSeen)
	b.maxYear = 0
	b.maxYearKnown = false
}

// Len reports the number of staged items.
func (b *Batch) Len() int { return len(b.items) }

// Items returns the staged item rows in append order.
func (b *Batch) Items() []Item { return b.items }

// AniListIDs returns the deletion keys used to clear stale associations.
func (b *Batch) AniListIDs() []int { return b.anilistIDs }

// Genres returns the deduplicated normalized genre labels.
func (b *Batch) Genres() []string { return b.genres }

// Associations returns every staged (item, genre) pair.
func (b *Batch) Associations() []Association { return b.associations }

// MaxReleaseYear returns the highest release year staged so far,
// after validation. ok is false when no staged item had a known year.
func (b *Batch) MaxReleaseYear() (year int, ok bool) {
	return b.maxYear, b.maxYearKnown
}
