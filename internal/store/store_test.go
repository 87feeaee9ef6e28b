package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"anisync/pkg/catalog"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "anisync.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func batchOf(items ...catalog.Item) *catalog.Batch {
	b := catalog.NewBatch()
	for _, item := range items {
		b.Append(item)
	}
	return b
}

func genresOf(t *testing.T, s *SQLStore, anilistID int) []string {
	t.Helper()
	var names []string
	err := s.db.Select(&names, s.db.Rebind(`
		SELECT g.name FROM anime_genres ag
		JOIN animes a ON a.id = ag.anime_id
		JOIN genres g ON g.id = ag.genre_id
		WHERE a.anilist_id = ?
		ORDER BY g.name`), anilistID)
	if err != nil {
		t.Fatalf("query associations: %v", err)
	}
	return names
}

func surrogateOf(t *testing.T, s *SQLStore, anilistID int) int64 {
	t.Helper()
	var id int64
	if err := s.db.Get(&id, s.db.Rebind(`SELECT id FROM animes WHERE anilist_id = ?`), anilistID); err != nil {
		t.Fatalf("query surrogate id: %v", err)
	}
	return id
}

func TestApplyInsertsBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	year := 2016

	err := s.Apply(ctx, batchOf(catalog.Item{
		AniListID:   21355,
		Title:       "Re:Zero",
		CoverURL:    "https://img.example/21355.jpg",
		Format:      "TV",
		Status:      "FINISHED",
		Genres:      []string{"Drama", "Fantasy"},
		ReleaseYear: &year,
		Score:       0.82,
	}))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	count, err := s.ItemCount(ctx)
	if err != nil || count != 1 {
		t.Fatalf("ItemCount = %d, %v, want 1", count, err)
	}
	if got := genresOf(t, s, 21355); !reflect.DeepEqual(got, []string{"drama", "fantasy"}) {
		t.Errorf("genres = %v", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item := catalog.Item{AniListID: 1, Title: "Cowboy Bebop", Genres: []string{"Action", "Sci-Fi"}, Score: 0.86}

	if err := s.Apply(ctx, batchOf(item)); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	surrogate := surrogateOf(t, s, 1)
	genres := genresOf(t, s, 1)

	if err := s.Apply(ctx, batchOf(item)); err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	if count, _ := s.ItemCount(ctx); count != 1 {
		t.Errorf("ItemCount = %d, want 1", count)
	}
	if got := surrogateOf(t, s, 1); got != surrogate {
		t.Errorf("surrogate id changed: %d -> %d", surrogate, got)
	}
	if got := genresOf(t, s, 1); !reflect.DeepEqual(got, genres) {
		t.Errorf("associations changed: %v -> %v", genres, got)
	}
}

func TestApplyFullyReplacesAssociations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Apply(ctx, batchOf(catalog.Item{AniListID: 7, Genres: []string{"Action", "Drama"}})); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if err := s.Apply(ctx, batchOf(catalog.Item{AniListID: 7, Genres: []string{"Drama", "Romance"}})); err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	// Action dropped, romance added, drama kept.
	if got := genresOf(t, s, 7); !reflect.DeepEqual(got, []string{"drama", "romance"}) {
		t.Errorf("genres = %v, want [drama romance]", got)
	}
}

func TestApplyDoesNotTouchOtherItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Apply(ctx, batchOf(
		catalog.Item{AniListID: 1, Genres: []string{"Action"}},
		catalog.Item{AniListID: 2, Genres: []string{"Drama"}},
	)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := s.Apply(ctx, batchOf(catalog.Item{AniListID: 1, Genres: []string{"Horror"}})); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := genresOf(t, s, 2); !reflect.DeepEqual(got, []string{"drama"}) {
		t.Errorf("item 2 genres = %v, want [drama]", got)
	}
}

func TestApplyDeduplicatesGenreRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Apply(ctx, batchOf(
		catalog.Item{AniListID: 10, Genres: []string{"Comedy"}},
		catalog.Item{AniListID: 11, Genres: []string{"Comedy"}},
	))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if count, _ := s.GenreCount(ctx); count != 1 {
		t.Errorf("GenreCount = %d, want 1", count)
	}

	var associations int
	if err := s.db.Get(&associations, `SELECT COUNT(*) FROM anime_genres`); err != nil {
		t.Fatalf("count associations: %v", err)
	}
	if associations != 2 {
		t.Errorf("associations = %d, want 2", associations)
	}
}

func TestApplyOverwritesMutableFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Apply(ctx, batchOf(catalog.Item{AniListID: 5, Title: "Old Title", Status: "RELEASING", Score: 0.5})); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if err := s.Apply(ctx, batchOf(catalog.Item{AniListID: 5, Title: "New Title", Status: "FINISHED", Score: 0.7})); err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	var row struct {
		Title  string  `db:"title"`
		Status string  `db:"status"`
		Score  float64 `db:"score"`
	}
	if err := s.db.Get(&row, s.db.Rebind(`SELECT title, status, score FROM animes WHERE anilist_id = ?`), 5); err != nil {
		t.Fatalf("query: %v", err)
	}
	if row.Title != "New Title" || row.Status != "FINISHED" || row.Score != 0.7 {
		t.Errorf("row = %+v", row)
	}
}

func TestApplyEmptyBatchIsNoOp(t *testing.T) {
	s := openTestStore(t)
	if err := s.Apply(context.Background(), catalog.NewBatch()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestRegisterPagesNeverOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)

	if err := s.RegisterPages(ctx, []int{1, 2}, early); err != nil {
		t.Fatalf("RegisterPages: %v", err)
	}
	// Re-registering page 1 with a later due time must not move it.
	if err := s.RegisterPages(ctx, []int{1, 3}, late); err != nil {
		t.Fatalf("RegisterPages: %v", err)
	}

	if count, _ := s.PageCount(ctx); count != 3 {
		t.Errorf("PageCount = %d, want 3", count)
	}

	page, ok, err := s.NextDuePage(ctx, early.Add(time.Minute))
	if err != nil || !ok || page != 1 {
		t.Errorf("NextDuePage = %d, %v, %v, want page 1", page, ok, err)
	}
}

func TestNextDuePageHonorsCutoff(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := s.RegisterPages(ctx, []int{1}, now.Add(72*time.Hour)); err != nil {
		t.Fatalf("RegisterPages: %v", err)
	}

	// Page due beyond the cutoff is not picked up.
	_, ok, err := s.NextDuePage(ctx, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("NextDuePage: %v", err)
	}
	if ok {
		t.Error("page beyond cutoff should not be due")
	}

	_, ok, err = s.NextDuePage(ctx, now.Add(96*time.Hour))
	if err != nil || !ok {
		t.Errorf("page within cutoff should be due, ok=%v err=%v", ok, err)
	}
}

func TestNextDuePagePicksSoonest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := s.RegisterPages(ctx, []int{1}, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("RegisterPages: %v", err)
	}
	if err := s.RegisterPages(ctx, []int{2}, now.Add(time.Hour)); err != nil {
		t.Fatalf("RegisterPages: %v", err)
	}

	page, ok, err := s.NextDuePage(ctx, now.Add(24*time.Hour))
	if err != nil || !ok || page != 2 {
		t.Errorf("NextDuePage = %d, %v, %v, want page 2", page, ok, err)
	}
}

func TestSetPageDue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := s.RegisterPages(ctx, []int{1}, now); err != nil {
		t.Fatalf("RegisterPages: %v", err)
	}
	if err := s.SetPageDue(ctx, 1, now.Add(3*7*24*time.Hour)); err != nil {
		t.Fatalf("SetPageDue: %v", err)
	}

	if _, ok, _ := s.NextDuePage(ctx, now.Add(24*time.Hour)); ok {
		t.Error("rescheduled page should no longer be due")
	}
	if page, ok, _ := s.NextDuePage(ctx, now.Add(4*7*24*time.Hour)); !ok || page != 1 {
		t.Errorf("page should be due after three weeks, got %d, %v", page, ok)
	}
}
