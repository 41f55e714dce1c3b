package kafka

import (
	"ai-chat-go/internal/config"
	"ai-chat-go/pkg/tasks"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type processorFunc func(ctx context.Context, task tasks.TitleTask) error

func (f processorFunc) Process(ctx context.Context, task tasks.TitleTask) error {
	return f(ctx, task)
}

func TestHandleTask_CommitsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	attempts := tasks.NewAttempts(nil)
	failing := processorFunc(func(context.Context, tasks.TitleTask) error { return errors.New("llm down") })
	task := tasks.TitleTask{ChatID: "c1"}

	assert.False(t, handleTask(ctx, failing, attempts, task))
	assert.False(t, handleTask(ctx, failing, attempts, task))
	assert.True(t, handleTask(ctx, failing, attempts, task))
}

func TestHandleTask_SuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	attempts := tasks.NewAttempts(nil)
	task := tasks.TitleTask{ChatID: "c1"}

	fail := true
	p := processorFunc(func(context.Context, tasks.TitleTask) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	})
	assert.False(t, handleTask(ctx, p, attempts, task))
	fail = false
	assert.True(t, handleTask(ctx, p, attempts, task))

	n, _ := attempts.Fail(ctx, task.Key())
	assert.EqualValues(t, 1, n)
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(config.KafkaConfig{Brokers: "a:9092, b:9092,"}))
	assert.Empty(t, brokers(config.KafkaConfig{}))
}
