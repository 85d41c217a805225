package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Lister is implemented by stores that can enumerate their histories.
type Lister interface {
	List(ctx context.Context, limit int) ([]Summary, error)
}

// RegisterRoutes mounts read-only history endpoints under /api/history.
// The index route is only served when store implements Lister.
func RegisterRoutes(r chi.Router, store Store) {
	r.Route("/api/history", func(r chi.Router) {
		if l, ok := store.(Lister); ok {
			r.Get("/", handleList(l))
		}
		r.Get("/{userID}/{kind}", handleGet(store))
	})
}

func handleList(l Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		sums, err := l.List(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if sums == nil {
			sums = []Summary{}
		}
		writeJSON(w, http.StatusOK, sums)
	}
}

func handleGet(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		kind, err := ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := ValidateUserID(userID); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h, err := store.Load(r.Context(), userID, kind)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
