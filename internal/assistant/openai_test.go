package assistant

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walter-bridge/internal/assistant/assistanttest"
	"walter-bridge/internal/session"
	"walter-bridge/internal/store"
)

func TestOpenAIThreadsRoundTrip(t *testing.T) {
	fake := assistanttest.New(t)
	fake.PollsToFinish = 2
	fake.Reply = strings.ToUpper

	api := NewOpenAIThreads(NewOpenAIClient("sk-test", fake.BaseURL()), "asst_walter")
	runner := NewRunner(api, RunnerConfig{PollInterval: 5 * time.Millisecond, MaxWait: 2 * time.Second}, nil, nil)
	ctx := context.Background()

	threadID, err := api.CreateThread(ctx)
	require.NoError(t, err)

	reply, err := runner.Run(ctx, threadID, "which key does a 2015 ford f-150 use?")
	require.NoError(t, err)
	assert.Equal(t, "WHICH KEY DOES A 2015 FORD F-150 USE?", reply)

	reply, err = runner.Run(ctx, threadID, "thanks")
	require.NoError(t, err)
	assert.Equal(t, "THANKS", reply)

	msgs, err := api.ListMessages(ctx, threadID, "")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "assistant", msgs[0].Role)
	assert.Greater(t, msgs[0].CreatedAt, msgs[3].CreatedAt)
}

func TestOpenAIThreadsFailedRun(t *testing.T) {
	fake := assistanttest.New(t)
	fake.FinalStatus = "expired"

	api := NewOpenAIThreads(NewOpenAIClient("sk-test", fake.BaseURL()), "asst_walter")
	runner := NewRunner(api, RunnerConfig{PollInterval: 5 * time.Millisecond, MaxWait: time.Second}, nil, nil)
	threadID, err := api.CreateThread(context.Background())
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), threadID, "hello")
	var failed *RunFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, RunExpired, failed.Status)
}

func TestOpenAIThreadsCancelOnTimeout(t *testing.T) {
	fake := assistanttest.New(t)
	fake.PollsToFinish = 1 << 20

	api := NewOpenAIThreads(NewOpenAIClient("sk-test", fake.BaseURL()), "asst_walter")
	runner := NewRunner(api, RunnerConfig{
		PollInterval:    5 * time.Millisecond,
		MaxWait:         50 * time.Millisecond,
		CancelOnTimeout: true,
	}, nil, nil)
	threadID, err := api.CreateThread(context.Background())
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), threadID, "hello")
	assert.ErrorIs(t, err, ErrRunTimedOut)
	assert.Equal(t, "cancelling", fake.RunStatus("run_3"))
}

func TestOpenAIThreadsUnknownThread(t *testing.T) {
	fake := assistanttest.New(t)
	api := NewOpenAIThreads(NewOpenAIClient("sk-test", fake.BaseURL()), "asst_walter")
	err := api.AddMessage(context.Background(), "thread_missing", "hi")
	assert.Error(t, err)
}

func TestThreadAnswererKeepsConversation(t *testing.T) {
	fake := assistanttest.New(t)
	api := NewOpenAIThreads(NewOpenAIClient("sk-test", fake.BaseURL()), "asst_walter")
	sessions := session.NewManager(store.NewMemoryStore(), api, nil, nil, nil)
	runner := NewRunner(api, RunnerConfig{PollInterval: 5 * time.Millisecond, MaxWait: time.Second}, nil, nil)
	a := NewThreadAnswerer(sessions, runner)
	ctx := context.Background()

	_, err := a.Answer(ctx, "visitor-1", "first")
	require.NoError(t, err)
	_, err = a.Answer(ctx, "visitor-1", "second")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.ThreadCount())

	_, err = a.Answer(ctx, "", "anonymous")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.ThreadCount())
}

func TestCompletionAnswerer(t *testing.T) {
	fake := assistanttest.New(t)
	fake.Reply = func(q string) string { return "  answer to " + q + "  " }
	a := NewCompletionAnswerer(NewOpenAIClient("sk-test", fake.BaseURL()), "gpt-4o-mini", "You are Walter.")

	reply, err := a.Answer(context.Background(), "ignored", "hello")
	require.NoError(t, err)
	assert.Equal(t, "answer to hello", reply)
	assert.Equal(t, []string{"hello"}, fake.Received())
}

func TestCompletionAnswererEmptyReply(t *testing.T) {
	fake := assistanttest.New(t)
	fake.Reply = func(string) string { return "  " }
	a := NewCompletionAnswerer(NewOpenAIClient("sk-test", fake.BaseURL()), "gpt-4o-mini", "")

	_, err := a.Answer(context.Background(), "", "hello")
	assert.ErrorIs(t, err, ErrNoReply)
}
