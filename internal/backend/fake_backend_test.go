package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/mux"
)

// fakeBackend is a small stateful implementation of the assessment API.
// Sessions are keyed by module; abandon drops them all.
type fakeBackend struct {
	mu        sync.Mutex
	modules   []int
	count     int
	max       int
	last      *int
	sessions  map[int]string
	submitted map[string]json.RawMessage
	abandoned int
	nextID    int
}

func newFakeBackend(t *testing.T, prefix string, modules ...int) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{
		modules:   modules,
		max:       3,
		sessions:  map[int]string{},
		submitted: map[string]json.RawMessage{},
	}

	r := mux.NewRouter().UseEncodedPath()
	api := r.PathPrefix(prefix).Subrouter()
	api.HandleFunc("/modules", fb.listModules).Methods(http.MethodGet)
	api.HandleFunc("/attempt-status", fb.attemptStatus).Methods(http.MethodGet).Queries("userId", "{userId}")
	api.HandleFunc("/modules/{id:[0-9]+}/session/start", fb.start).Methods(http.MethodPost)
	api.HandleFunc("/modules/{id:[0-9]+}/session/{sessionId}/submit", fb.submit).Methods(http.MethodPost)
	api.HandleFunc("/sessions/abandon-in-progress", fb.abandon).Methods(http.MethodPost)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBackend) reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) listModules(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]map[string]any, 0, len(fb.modules))
	for i, id := range fb.modules {
		out = append(out, map[string]any{"id": id, "code": "WORD_RECALL", "orderIndex": i + 1})
	}
	fb.reply(w, out)
}

func (fb *fakeBackend) attemptStatus(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.reply(w, map[string]any{
		"count":                 fb.count,
		"maxAttempts":           fb.max,
		"lastCompletedModuleId": fb.last,
		"isCompleted":           fb.last != nil && *fb.last == fb.modules[len(fb.modules)-1],
	})
}

func (fb *fakeBackend) start(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	var req struct {
		Resume bool `json:"resume"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if id == fb.modules[0] && !req.Resume {
		fb.count++
	}
	sid, ok := fb.sessions[id]
	if !ok || !req.Resume {
		fb.nextID++
		sid = fmt.Sprintf("run/%d", fb.nextID)
		fb.sessions[id] = sid
	}
	fb.reply(w, map[string]any{"sessionId": sid, "questions": []any{}})
}

func (fb *fakeBackend) submit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, _ := strconv.Atoi(vars["id"])
	sid, err := url.PathUnescape(vars["sessionId"])
	if err != nil {
		http.Error(w, `{"message":"bad session id"}`, http.StatusBadRequest)
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.sessions[id] != sid {
		w.WriteHeader(http.StatusNotFound)
		fb.reply(w, map[string]string{"message": "unknown session"})
		return
	}
	var payload json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&payload)
	fb.submitted[sid] = payload
	delete(fb.sessions, id)
	fb.last = &id

	var next *int
	for i, m := range fb.modules {
		if m == id && i+1 < len(fb.modules) {
			n := fb.modules[i+1]
			next = &n
		}
	}
	fb.reply(w, map[string]any{"nextModuleId": next})
}

func (fb *fakeBackend) abandon(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.abandoned++
	fb.sessions = map[int]string{}
	w.WriteHeader(http.StatusNoContent)
}
