package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"walter-bridge/internal/assistant"
	"walter-bridge/internal/assistant/assistanttest"
	"walter-bridge/internal/config"
	"walter-bridge/internal/inbound"
)

func testConfig(openAIURL string) config.Config {
	return config.Config{
		AllowedOrigin:     "*",
		WebhookPath:       "/walter",
		OpenAIAPIKey:      "sk-test",
		OpenAIBaseURL:     openAIURL,
		Mode:              config.ModeAssistants,
		AssistantID:       "asst_walter",
		Model:             "gpt-4o-mini",
		PollInterval:      5 * time.Millisecond,
		MaxWait:           2 * time.Second,
		ResponseFields:    []string{"answer", "reply"},
		VehicleEnrichment: true,
		SessionStore:      "memory",
		MetricsEnabled:    true,
	}
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	s, err := NewServer(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func post(t *testing.T, s *Server, target, contentType, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestWebhookAnswersQuestion(t *testing.T) {
	fake := assistanttest.New(t)
	fake.PollsToFinish = 2
	fake.Reply = func(string) string { return "Use the Sign In link at the top of the microsite." }
	s := newTestServer(t, testConfig(fake.BaseURL()))

	rec, out := post(t, s, "/walter", "application/json", `{"question": "How do I log into the microsite?"}`, nil)

	assert.Equal(t, "Use the Sign In link at the top of the microsite.", out["answer"])
	assert.Equal(t, out["answer"], out["reply"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Equal(t, []string{"How do I log into the microsite?"}, fake.Received())
}

func TestWebhookEmptyBody(t *testing.T) {
	fake := assistanttest.New(t)
	s := newTestServer(t, testConfig(fake.BaseURL()))

	for _, body := range []string{`{}`, ``, `   `, `{"question":"   "}`} {
		_, out := post(t, s, "/walter", "application/json", body, nil)
		assert.Equal(t, NoQuestionText, out["answer"], body)
	}
	assert.Zero(t, fake.ThreadCount())
	assert.Empty(t, fake.Received())
}

func TestWebhookTransportError(t *testing.T) {
	s := newTestServer(t, testConfig("http://127.0.0.1:1/v1"))
	_, out := post(t, s, "/walter", "application/json", `{"message":"hello"}`, nil)
	assert.Equal(t, TroubleText, out["answer"])
}

func TestWebhookNotConfigured(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/v1")
	cfg.AssistantID = ""
	s := newTestServer(t, cfg)
	require.Error(t, s.configErr)

	_, out := post(t, s, "/walter", "application/json", `{"question":"hello"}`, nil)
	assert.Equal(t, NotConfiguredText, out["answer"])
}

func TestWebhookRunFailures(t *testing.T) {
	failed := assistanttest.New(t)
	failed.FinalStatus = "failed"
	_, out := post(t, newTestServer(t, testConfig(failed.BaseURL())), "/walter", "application/json", `{"question":"hi"}`, nil)
	assert.Equal(t, SomethingWrong, out["answer"])

	slow := assistanttest.New(t)
	slow.PollsToFinish = 1 << 20
	cfg := testConfig(slow.BaseURL())
	cfg.MaxWait = 40 * time.Millisecond
	start := time.Now()
	_, out = post(t, newTestServer(t, cfg), "/walter", "application/json", `{"question":"hi"}`, nil)
	assert.Equal(t, SomethingWrong, out["answer"])
	assert.Less(t, time.Since(start), 2*time.Second)

	empty := assistanttest.New(t)
	empty.Reply = func(string) string { return "" }
	_, out = post(t, newTestServer(t, testConfig(empty.BaseURL())), "/walter", "application/json", `{"question":"hi"}`, nil)
	assert.Equal(t, NoReplyText, out["answer"])
}

func TestWebhookBodyEncodings(t *testing.T) {
	fake := assistanttest.New(t)
	s := newTestServer(t, testConfig(fake.BaseURL()))

	cases := []struct {
		name, target, contentType, body string
	}{
		{"json", "/walter", "application/json", `{"question":"  hello  "}`},
		{"nested", "/walter", "application/json", `{"data":{"message":"hello"}}`},
		{"form", "/walter", "application/x-www-form-urlencoded", "question=hello"},
		{"raw", "/walter", "", "question=hello"},
		{"single key", "/walter", "application/x-www-form-urlencoded", `{"question":"hello"}=`},
		{"query", "/walter?question=hello", "", ""},
		{"text", "/walter", "text/plain", "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, out := post(t, s, tc.target, tc.contentType, tc.body, nil)
			assert.Equal(t, "echo: hello", out["answer"])
		})
	}
}

func TestWebhookConversationContinuity(t *testing.T) {
	fake := assistanttest.New(t)
	s := newTestServer(t, testConfig(fake.BaseURL()))

	rec, out := post(t, s, "/walter", "application/json", `{"conversation_id":"visitor-7","question":"first"}`, nil)
	assert.Equal(t, "visitor-7", out["conversation_id"])
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, inbound.CookieName, cookies[0].Name)
	assert.Equal(t, "visitor-7", cookies[0].Value)

	post(t, s, "/walter", "application/json", `{"question":"second"}`, map[string]string{inbound.ConversationHeader: "visitor-7"})
	assert.Equal(t, 1, fake.ThreadCount())

	_, out = post(t, s, "/walter", "application/json", `{"conversation_id":"visitor-7","question":" Start Over "}`, nil)
	assert.Equal(t, ResetText, out["answer"])
	assert.Equal(t, 1, fake.ThreadCount())

	post(t, s, "/walter", "application/json", `{"conversation_id":"visitor-7","question":"third"}`, nil)
	assert.Equal(t, 2, fake.ThreadCount())
	assert.Equal(t, []string{"first", "second", "third"}, fake.Received())
}

func TestWebhookVehicleLookup(t *testing.T) {
	lookupSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2022", r.URL.Query().Get("year"))
		assert.Equal(t, "Toyota", r.URL.Query().Get("make"))
		_, _ = w.Write([]byte(`{"count":1,"records":[{"diagram_name":"Camry PTS","diagram_url":"https://example.test/camry","notes":""}]}`))
	}))
	defer lookupSrv.Close()

	fake := assistanttest.New(t)
	cfg := testConfig(fake.BaseURL())
	cfg.LookupBaseURL = lookupSrv.URL
	s := newTestServer(t, cfg)

	post(t, s, "/walter", "application/json", `{"question":"2022 Toyota Camry push to start wiring diagram"}`, nil)
	require.Len(t, fake.Received(), 1)
	sent := fake.Received()[0]
	assert.True(t, strings.HasPrefix(sent, "2022 Toyota Camry push to start wiring diagram\n\n[Vehicle context]"))
	assert.Contains(t, sent, "Ignition: Push to Start")
	assert.Contains(t, sent, "Record: Camry PTS")
}

func TestWebhookLookupDisabledSendsQuestionUnchanged(t *testing.T) {
	fake := assistanttest.New(t)
	s := newTestServer(t, testConfig(fake.BaseURL()))
	post(t, s, "/walter", "application/json", `{"question":"2022 Toyota Camry push to start"}`, nil)
	assert.Equal(t, []string{"2022 Toyota Camry push to start"}, fake.Received())
}

func TestWebhookCompletionMode(t *testing.T) {
	fake := assistanttest.New(t)
	cfg := testConfig(fake.BaseURL())
	cfg.Mode = config.ModeCompletion
	cfg.AssistantID = ""
	cfg.ResponseFields = []string{"message", "text"}
	s := newTestServer(t, cfg)

	_, out := post(t, s, "/walter", "application/json", `{"question":"hello"}`, nil)
	assert.Equal(t, "echo: hello", out["answer"])
	assert.Equal(t, "echo: hello", out["message"])
	assert.Equal(t, "echo: hello", out["text"])
	assert.NotContains(t, out, "reply")
	assert.Zero(t, fake.ThreadCount())
}

type panickingAnswerer struct{}

func (panickingAnswerer) Answer(context.Context, string, string) (string, error) {
	panic("boom")
}

func TestWebhookRecoversFromPanic(t *testing.T) {
	fake := assistanttest.New(t)
	s := newTestServer(t, testConfig(fake.BaseURL()))
	s.answerer = panickingAnswerer{}

	_, out := post(t, s, "/walter", "application/json", `{"question":"hello"}`, nil)
	assert.Equal(t, TroubleText, out["answer"])
}

func TestResetConversationEndpoint(t *testing.T) {
	fake := assistanttest.New(t)
	s := newTestServer(t, testConfig(fake.BaseURL()))
	post(t, s, "/walter", "application/json", `{"chat_id":"c-1","question":"hi"}`, nil)

	req := httptest.NewRequest(http.MethodDelete, "/conversations/c-1", nil)
	req.AddCookie(&http.Cookie{Name: inbound.CookieName, Value: "c-1"})
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"reset"}`, rec.Body.String())
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)

	post(t, s, "/walter", "application/json", `{"chat_id":"c-1","question":"again"}`, nil)
	assert.Equal(t, 2, fake.ThreadCount())
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	fake := assistanttest.New(t)
	s := newTestServer(t, testConfig(fake.BaseURL()))

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "Walter webhook is running.", rec.Body.String())

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/walter", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	post(t, s, "/walter", "application/json", `{}`, nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `walter_webhook_requests_total{outcome="no_question"} 1`)
}

func TestClassify(t *testing.T) {
	cases := map[string]struct {
		err  error
		text string
	}{
		"timeout":        {assistant.ErrRunTimedOut, SomethingWrong},
		"failed":         {&assistant.RunFailedError{Status: assistant.RunExpired}, SomethingWrong},
		"no reply":       {assistant.ErrNoReply, NoReplyText},
		"not configured": {assistant.ErrNotConfigured, NotConfiguredText},
		"transport":      {context.DeadlineExceeded, TroubleText},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			text, _ := classify(tc.err)
			assert.Equal(t, tc.text, text)
		})
	}
}
