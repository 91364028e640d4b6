package assistant

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"walter-bridge/internal/session"
)

// ThreadAnswerer answers on the caller's persistent remote thread.
type ThreadAnswerer struct {
	sessions *session.Manager
	runner   *Runner
}

func NewThreadAnswerer(sessions *session.Manager, runner *Runner) *ThreadAnswerer {
	return &ThreadAnswerer{sessions: sessions, runner: runner}
}

func (a *ThreadAnswerer) Answer(ctx context.Context, conversationID, text string) (string, error) {
	threadID, err := a.sessions.GetOrCreate(ctx, conversationID)
	if err != nil {
		return "", err
	}
	return a.runner.Run(ctx, threadID, text)
}

// CompletionAnswerer answers with a single stateless chat completion.
type CompletionAnswerer struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

func NewCompletionAnswerer(client *openai.Client, model, systemPrompt string) *CompletionAnswerer {
	return &CompletionAnswerer{client: client, model: model, systemPrompt: systemPrompt}
}

func (a *CompletionAnswerer) Answer(ctx context.Context, _ string, text string) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if a.systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: a.systemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoReply
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrNoReply
	}
	return reply, nil
}
