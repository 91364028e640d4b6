// Package assistanttest provides an in-process fake of the OpenAI threads,
// runs and chat completion endpoints for tests.
package assistanttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	srv *httptest.Server

	// Reply produces the assistant answer for the latest user message.
	Reply func(userText string) string
	// PollsToFinish is how many retrievals report in_progress before the run
	// reaches FinalStatus.
	PollsToFinish int
	// FinalStatus is the terminal status runs end in. Defaults to completed.
	FinalStatus string

	mu       sync.Mutex
	seq      int
	clock    int64
	threads  map[string][]message
	runs     map[string]*run
	received []string
}

type message struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	CreatedAt int64  `json:"created_at"`
	ThreadID  string `json:"thread_id"`
	Role      string `json:"role"`
	RunID     string `json:"run_id,omitempty"`
	Content   []any  `json:"content"`
	text      string
}

type run struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	CreatedAt   int64  `json:"created_at"`
	ThreadID    string `json:"thread_id"`
	AssistantID string `json:"assistant_id"`
	Status      string `json:"status"`
	polls       int
	answered    bool
}

// New starts the fake and stops it when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		Reply:   func(q string) string { return "echo: " + q },
		threads: map[string][]message{},
		runs:    map[string]*run{},
	}
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Post("/threads", s.createThread)
		r.Post("/threads/{thread}/messages", s.createMessage)
		r.Get("/threads/{thread}/messages", s.listMessages)
		r.Post("/threads/{thread}/runs", s.createRun)
		r.Get("/threads/{thread}/runs/{run}", s.retrieveRun)
		r.Post("/threads/{thread}/runs/{run}/cancel", s.cancelRun)
		r.Post("/chat/completions", s.chatCompletion)
	})
	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// BaseURL is the value to configure as the OpenAI base URL.
func (s *Server) BaseURL() string { return s.srv.URL + "/v1" }

// Received lists every user message text in arrival order.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// ThreadCount is the number of threads created so far.
func (s *Server) ThreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

// RunStatus returns the stored status of a run.
func (s *Server) RunStatus(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		return r.Status
	}
	return ""
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

func (s *Server) tick() int64 {
	s.clock++
	return 1700000000 + s.clock
}

func (s *Server) createThread(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	id := s.nextID("thread")
	s.threads[id] = nil
	created := s.tick()
	s.mu.Unlock()
	writeJSON(w, map[string]any{"id": id, "object": "thread", "created_at": created})
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tid := chi.URLParam(r, "thread")
	if _, ok := s.threads[tid]; !ok {
		notFound(w)
		return
	}
	m := s.newMessage(tid, req.Role, "", req.Content)
	s.threads[tid] = append(s.threads[tid], m)
	s.received = append(s.received, req.Content)
	writeJSON(w, m)
}

func (s *Server) newMessage(threadID, role, runID, text string) message {
	return message{
		ID:        s.nextID("msg"),
		Object:    "thread.message",
		CreatedAt: s.tick(),
		ThreadID:  threadID,
		Role:      role,
		RunID:     runID,
		Content: []any{map[string]any{
			"type": "text",
			"text": map[string]any{"value": text, "annotations": []any{}},
		}},
		text: text,
	}
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid := chi.URLParam(r, "thread")
	msgs, ok := s.threads[tid]
	if !ok {
		notFound(w)
		return
	}
	runID := r.URL.Query().Get("run_id")
	out := make([]message, 0, len(msgs))
	for _, m := range msgs {
		if runID == "" || m.RunID == runID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if r.URL.Query().Get("order") == "asc" {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})
	writeJSON(w, map[string]any{"object": "list", "data": out, "has_more": false})
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssistantID string `json:"assistant_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	tid := chi.URLParam(r, "thread")
	if _, ok := s.threads[tid]; !ok {
		notFound(w)
		return
	}
	rn := &run{
		ID:          s.nextID("run"),
		Object:      "thread.run",
		CreatedAt:   s.tick(),
		ThreadID:    tid,
		AssistantID: req.AssistantID,
		Status:      "queued",
	}
	s.runs[rn.ID] = rn
	writeJSON(w, rn)
}

func (s *Server) retrieveRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn, ok := s.runs[chi.URLParam(r, "run")]
	if !ok {
		notFound(w)
		return
	}
	if rn.Status == "cancelling" {
		rn.Status = "cancelled"
	}
	if rn.Status == "queued" || rn.Status == "in_progress" {
		rn.polls++
		rn.Status = "in_progress"
		if rn.polls > s.PollsToFinish {
			rn.Status = s.finalStatus()
		}
	}
	if rn.Status == "completed" && !rn.answered {
		rn.answered = true
		msgs := s.threads[rn.ThreadID]
		var last string
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == "user" {
				last = msgs[i].text
				break
			}
		}
		s.threads[rn.ThreadID] = append(msgs, s.newMessage(rn.ThreadID, "assistant", rn.ID, s.Reply(last)))
	}
	writeJSON(w, rn)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn, ok := s.runs[chi.URLParam(r, "run")]
	if !ok {
		notFound(w)
		return
	}
	rn.Status = "cancelling"
	writeJSON(w, rn)
}

func (s *Server) chatCompletion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var last string
	for _, m := range req.Messages {
		if m.Role == "user" {
			last = m.Content
		}
	}
	s.mu.Lock()
	s.received = append(s.received, last)
	id := s.nextID("chatcmpl")
	created := s.tick()
	s.mu.Unlock()
	writeJSON(w, map[string]any{
		"id":      id,
		"object":  "chat.completion",
		"created": created,
		"model":   req.Model,
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": s.Reply(last)},
			"finish_reason": "stop",
		}},
	})
}

func (s *Server) finalStatus() string {
	if s.FinalStatus == "" {
		return "completed"
	}
	return s.FinalStatus
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":{"message":"No such object","type":"invalid_request_error"}}`))
}
