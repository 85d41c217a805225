package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/roschler/livepeer-image-helper-back-end/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func logTurn(t *testing.T, store *Store, e Entry) {
	t.Helper()
	if e.AssistantKind == "" {
		e.AssistantKind = "image_assistant"
	}
	if e.Mode == "" {
		e.Mode = "new"
	}
	if e.Status == "" {
		e.Status = StatusSucceeded
	}
	if err := store.Log(context.Background(), e); err != nil {
		t.Fatalf("Log: %v", err)
	}
}

func TestLogAndGetByID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	logTurn(t, store, Entry{
		ID:         "1700000000000-req",
		UserID:     "alice",
		Mode:       "refine",
		Status:     StatusFailed,
		UserInput:  "the fox's face is wrong",
		Error:      "refinement stage DESCRIBE: object not found",
		Changes:    []string{"more steps", "less creative"},
		DurationMS: 1234,
	})

	got, err := store.GetByID(ctx, "1700000000000-req")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if got.UserID != "alice" {
		t.Errorf("UserID = %q, want %q", got.UserID, "alice")
	}
	if got.Mode != "refine" {
		t.Errorf("Mode = %q, want %q", got.Mode, "refine")
	}
	if got.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", got.Status, StatusFailed)
	}
	if got.Error == "" {
		t.Error("expected error text to be stored")
	}
	if got.DurationMS != 1234 {
		t.Errorf("DurationMS = %d, want 1234", got.DurationMS)
	}
	if len(got.Changes) != 2 || got.Changes[0] != "more steps" {
		t.Errorf("Changes = %v, want [more steps less creative]", got.Changes)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestLogGeneratesUUID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	logTurn(t, store, Entry{UserID: "bob", UserInput: "a cat"})

	entries, err := store.Query(ctx, QueryFilter{UserID: "bob"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID == "" {
		t.Error("expected generated ID, got empty string")
	}
	if entries[0].Changes == nil || len(entries[0].Changes) != 0 {
		t.Errorf("Changes = %v, want empty list", entries[0].Changes)
	}
}

func TestLogRejectsUnknownMode(t *testing.T) {
	store := setupStore(t)
	err := store.Log(context.Background(), Entry{UserID: "a", AssistantKind: "image_assistant", Mode: "paint", Status: StatusSucceeded})
	if err == nil {
		t.Fatal("expected constraint violation for unknown mode")
	}
}

func TestQueryFilters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	logTurn(t, store, Entry{UserID: "alice", Mode: "new"})
	logTurn(t, store, Entry{UserID: "bob", Mode: "refine", Status: StatusFailed})
	logTurn(t, store, Entry{UserID: "alice", Mode: "enhance"})

	tests := []struct {
		name   string
		filter QueryFilter
		want   int
	}{
		{"user", QueryFilter{UserID: "alice"}, 2},
		{"status", QueryFilter{Status: StatusFailed}, 1},
		{"mode", QueryFilter{Mode: "enhance"}, 1},
		{"kind", QueryFilter{AssistantKind: "license_assistant"}, 0},
		{"all", QueryFilter{}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("got %d entries, want %d", len(entries), tt.want)
			}
		})
	}
}

func TestQueryTimeRange(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		logTurn(t, store, Entry{UserID: "alice", Timestamp: base.Add(time.Duration(i) * time.Hour)})
	}

	since := base.Add(30 * time.Minute)
	entries, err := store.Query(ctx, QueryFilter{Since: &since})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries since %v, got %d", since, len(entries))
	}
	if !entries[0].Timestamp.After(entries[1].Timestamp) {
		t.Error("expected newest entry first")
	}

	until := base.Add(90 * time.Minute)
	entries, err = store.Query(ctx, QueryFilter{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry in range, got %d", len(entries))
	}
}

func TestQueryOrdersWithinOneSecond(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logTurn(t, store, Entry{ID: "later", UserID: "alice", Timestamp: base.Add(700 * time.Millisecond)})
	logTurn(t, store, Entry{ID: "earlier", UserID: "alice", Timestamp: base.Add(200 * time.Millisecond)})

	entries, err := store.Query(ctx, QueryFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "later" || entries[1].ID != "earlier" {
		t.Errorf("order = [%s %s], want [later earlier]", entries[0].ID, entries[1].ID)
	}
	if !entries[0].Timestamp.Equal(base.Add(700 * time.Millisecond)) {
		t.Errorf("timestamp = %v, want sub-second precision kept", entries[0].Timestamp)
	}

	since := base.Add(500 * time.Millisecond)
	entries, err = store.Query(ctx, QueryFilter{Since: &since})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "later" {
		t.Errorf("since filter kept %d entries, want only later", len(entries))
	}
}

func TestQueryLimitOffset(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		logTurn(t, store, Entry{UserID: "alice"})
	}

	entries, err := store.Query(ctx, QueryFilter{Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries with limit, got %d", len(entries))
	}

	entries, err = store.Query(ctx, QueryFilter{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries with offset, got %d", len(entries))
	}

	entries, err = store.Query(ctx, QueryFilter{Offset: 4})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry with offset only, got %d", len(entries))
	}
}

func TestDeleteBefore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		logTurn(t, store, Entry{UserID: "alice"})
	}

	deleted, err := store.DeleteBefore(ctx, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted, got %d", deleted)
	}

	entries, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 remaining entries, got %d", len(entries))
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetByID(context.Background(), "nonexistent")
	if err == nil {
		t.Error("expected error for nonexistent ID, got nil")
	}
}

// --- HTTP handler tests ---

func setupRouter(t *testing.T) (chi.Router, *Store) {
	t.Helper()
	store := setupStore(t)
	r := chi.NewRouter()
	RegisterRoutes(r, store)
	return r, store
}

func TestHTTPGetByID(t *testing.T) {
	r, store := setupRouter(t)
	logTurn(t, store, Entry{ID: "http-1", UserID: "alice", Changes: []string{"more steps"}})

	req := httptest.NewRequest(http.MethodGet, "/api/audit/http-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got Entry
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "http-1" {
		t.Errorf("ID = %q, want %q", got.ID, "http-1")
	}
	if got.UserID != "alice" {
		t.Errorf("UserID = %q, want %q", got.UserID, "alice")
	}
}

func TestHTTPGetByIDNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/audit/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHTTPQueryWithFilter(t *testing.T) {
	r, store := setupRouter(t)

	for _, user := range []string{"alice", "bob", "alice"} {
		logTurn(t, store, Entry{UserID: user})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/audit?user_id=alice&limit=10", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var entries []Entry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries for alice, got %d", len(entries))
	}
}

func TestHTTPQueryRejectsBadParams(t *testing.T) {
	r, _ := setupRouter(t)

	for _, q := range []string{"status=pending", "since=yesterday", "limit=-1", "offset=x"} {
		req := httptest.NewRequest(http.MethodGet, "/api/audit?"+q, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", q, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHTTPDeleteBefore(t *testing.T) {
	r, store := setupRouter(t)
	logTurn(t, store, Entry{UserID: "alice", Timestamp: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	logTurn(t, store, Entry{UserID: "alice"})

	req := httptest.NewRequest(http.MethodDelete, "/api/audit?before=2021-01-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["deleted"] != 1 {
		t.Errorf("deleted = %d, want 1", body["deleted"])
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/audit?before=yesterday", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
