package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"anisync/internal/store"
	"anisync/pkg/catalog"
)

func testServer(t *testing.T) (*Server, *store.SQLStore) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "anisync.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, ":0"), st
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, st := testServer(t)
	ctx := context.Background()

	b := catalog.NewBatch()
	b.Append(catalog.Item{AniListID: 1, Title: "Mushishi", Genres: []string{"Mystery", "Slice of Life"}})
	if err := st.Apply(ctx, b); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := st.RegisterPages(ctx, []int{1, 2}, time.Now()); err != nil {
		t.Fatalf("RegisterPages: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Items        int `json:"items"`
		Genres       int `json:"genres"`
		TrackedPages int `json:"tracked_pages"`
		NextDuePage  int `json:"next_due_page"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.Items != 1 || body.Genres != 2 || body.TrackedPages != 2 {
		t.Errorf("body = %+v", body)
	}
	if body.NextDuePage != 1 {
		t.Errorf("next_due_page = %d, want 1", body.NextDuePage)
	}
}

func TestHandleStatusMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
