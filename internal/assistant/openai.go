package assistant

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

const messageListLimit = 20

// NewOpenAIClient builds a go-openai client, pointing it at baseURL when set.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAIThreads implements ThreadAPI on the OpenAI Assistants endpoints.
type OpenAIThreads struct {
	client      *openai.Client
	assistantID string
}

func NewOpenAIThreads(client *openai.Client, assistantID string) *OpenAIThreads {
	return &OpenAIThreads{client: client, assistantID: assistantID}
}

func (o *OpenAIThreads) CreateThread(ctx context.Context) (string, error) {
	t, err := o.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

func (o *OpenAIThreads) AddMessage(ctx context.Context, threadID, text string) error {
	_, err := o.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	return err
}

func (o *OpenAIThreads) CreateRun(ctx context.Context, threadID string) (RunHandle, error) {
	run, err := o.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: o.assistantID})
	if err != nil {
		return RunHandle{}, err
	}
	return runHandle(threadID, run), nil
}

func (o *OpenAIThreads) GetRun(ctx context.Context, threadID, runID string) (RunHandle, error) {
	run, err := o.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return RunHandle{}, err
	}
	return runHandle(threadID, run), nil
}

func (o *OpenAIThreads) CancelRun(ctx context.Context, threadID, runID string) error {
	_, err := o.client.CancelRun(ctx, threadID, runID)
	return err
}

func (o *OpenAIThreads) ListMessages(ctx context.Context, threadID, runID string) ([]ThreadMessage, error) {
	limit := messageListLimit
	order := "desc"
	var runFilter *string
	if runID != "" {
		runFilter = &runID
	}
	list, err := o.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, runFilter)
	if err != nil {
		return nil, err
	}
	out := make([]ThreadMessage, 0, len(list.Messages))
	for _, m := range list.Messages {
		tm := ThreadMessage{ID: m.ID, Role: m.Role, CreatedAt: int64(m.CreatedAt)}
		for _, c := range m.Content {
			b := ContentBlock{Type: c.Type}
			if c.Text != nil {
				v := c.Text.Value
				b.Text = &v
			}
			if raw, err := json.Marshal(c); err == nil {
				b.Raw = raw
			}
			tm.Content = append(tm.Content, b)
		}
		out = append(out, tm)
	}
	return out, nil
}

func runHandle(threadID string, run openai.Run) RunHandle {
	h := RunHandle{ThreadID: threadID, RunID: run.ID, Status: RunStatus(run.Status)}
	if run.LastError != nil {
		h.LastError = run.LastError.Message
	}
	return h
}
