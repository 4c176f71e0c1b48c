package memory

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"agfdash/internal/store"
)

// Handler serves the store over the Bubble Data API wire format:
//
//	GET /api/1.1/obj/{collection}?limit=&cursor=&constraints=
//	GET /api/1.1/obj/{collection}/{id}
//
// When apiKey is non-empty every request must carry it as a bearer token.
func (s *Store) Handler(apiKey string) http.Handler {
	r := chi.NewRouter()
	if apiKey != "" {
		r.Use(requireBearer(apiKey))
	}
	r.Get("/api/1.1/obj/{collection}", s.serveList)
	r.Get("/api/1.1/obj/{collection}/{id}", s.serveOne)
	return r
}

func (s *Store) serveList(w http.ResponseWriter, r *http.Request) {
	collection, err := url.PathUnescape(chi.URLParam(r, "collection"))
	if err != nil {
		http.Error(w, "bad collection", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	cursor, _ := strconv.Atoi(q.Get("cursor"))

	var filter store.Filter
	if raw := q.Get("constraints"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			http.Error(w, "bad constraints: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	s.count("fetchAll", collection)
	writeJSON(w, map[string]any{"response": s.Page(collection, filter, limit, cursor)})
}

func (s *Store) serveOne(w http.ResponseWriter, r *http.Request) {
	collection, err := url.PathUnescape(chi.URLParam(r, "collection"))
	if err != nil {
		http.Error(w, "bad collection", http.StatusBadRequest)
		return
	}
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	rec, found, _ := s.FetchOne(r.Context(), collection, id)
	if !found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"NOT_FOUND","message":"Missing object"}`))
		return
	}
	writeJSON(w, map[string]any{"response": rec})
}

func requireBearer(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+apiKey {
				http.Error(w, `{"status":"UNAUTHORIZED"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
