package syncer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/remote"
)

// fakeCatalog is an in-memory store of record serving the catalog API.
type fakeCatalog struct {
	t    *testing.T
	srv  *httptest.Server
	down atomic.Bool

	mu      sync.Mutex
	nextID  uint
	rows    map[string]map[uint]map[string]any
	tokens  []string
	writes  []string
	rejects map[string]int // method+path prefix -> status
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	t.Helper()
	f := &fakeCatalog{
		t:       t,
		nextID:  100,
		rows:    make(map[string]map[uint]map[string]any),
		rejects: make(map[string]int),
	}
	for _, k := range entities.Kinds {
		f.rows[remote.Path(k)] = make(map[uint]map[string]any)
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCatalog) URL() string { return f.srv.URL }

// seed stores a record as if the store of record already held it.
func (f *fakeCatalog) seed(kind entities.Kind, rec entities.Record) {
	f.t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	row := toMap(f.t, rec)
	f.rows[remote.Path(kind)][rec.GetID()] = row
}

func (f *fakeCatalog) count(kind entities.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[remote.Path(kind)])
}

func (f *fakeCatalog) row(kind entities.Kind, id uint) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[remote.Path(kind)][id]
}

func (f *fakeCatalog) reject(method, path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects[method+" "+path] = status
}

func (f *fakeCatalog) writeLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeCatalog) serve(w http.ResponseWriter, r *http.Request) {
	if f.down.Load() {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.tokens = append(f.tokens, r.Header.Get("Authorization"))
	if status, ok := f.rejects[r.Method+" "+r.URL.Path]; ok {
		http.Error(w, "rejected", status)
		return
	}

	collection, id := r.URL.Path, uint(0)
	if _, ok := f.rows[collection]; !ok {
		i := strings.LastIndex(r.URL.Path, "/")
		n, err := strconv.ParseUint(r.URL.Path[i+1:], 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		collection, id = r.URL.Path[:i], uint(n)
	}
	rows, ok := f.rows[collection]
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch {
	case r.Method == http.MethodGet && id == 0:
		f.list(w, r, rows)
	case r.Method == http.MethodPost && id == 0:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nextID++
		body["id"] = f.nextID
		rows[f.nextID] = body
		f.writes = append(f.writes, "POST "+collection)
		respond(w, http.StatusCreated, body)
	case r.Method == http.MethodPut && id != 0:
		if _, ok := rows[id]; !ok {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body["id"] = id
		rows[id] = body
		f.writes = append(f.writes, "PUT "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodDelete && id != 0:
		if _, ok := rows[id]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(rows, id)
		f.writes = append(f.writes, "DELETE "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *fakeCatalog) list(w http.ResponseWriter, r *http.Request, rows map[uint]map[string]any) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}

	ids := make([]uint, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items := []map[string]any{}
	for i := (page - 1) * size; i < len(ids) && i < page*size; i++ {
		items = append(items, rows[ids[i]])
	}
	respond(w, http.StatusOK, map[string]any{
		"items":      items,
		"total":      len(ids),
		"page":       page,
		"pageSize":   size,
		"totalPages": (len(ids) + size - 1) / size,
	})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}
