// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"ai-chat-go/internal/config"
	"ai-chat-go/pkg/log"
	"ai-chat-go/pkg/tasks"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete title service.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.TitleTask) error
}

// Producer 把标题任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Dispatch 发送一个标题任务到 Kafka，以会话 ID 作为消息键。
func (p *Producer) Dispatch(ctx context.Context, task tasks.TitleTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ChatID),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理标题任务，直到 ctx 结束。
// 处理失败的消息不提交 offset，让 Kafka 重试；同一任务失败达到 tasks.MaxAttempts 次后提交以终止重试。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, attempts *tasks.Attempts) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.TitleTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		if handleTask(ctx, processor, attempts, task) {
			commit(ctx, r, m)
		}
	}
}

// handleTask 处理一个任务，返回是否应当提交 offset。
func handleTask(ctx context.Context, processor TaskProcessor, attempts *tasks.Attempts, task tasks.TitleTask) bool {
	err := processor.Process(ctx, task)
	if err == nil {
		attempts.Reset(ctx, task.Key())
		return true
	}

	log.Errorf("处理标题任务失败: chatId=%s, error: %v", task.ChatID, err)
	n, incErr := attempts.Fail(ctx, task.Key())
	if incErr != nil {
		// 计数不可用时保守处理：不提交 offset，让 Kafka 重试
		return false
	}
	if n >= tasks.MaxAttempts {
		log.Errorf("标题任务多次失败(>=%d)，提交 offset 终止重试: chatId=%s", tasks.MaxAttempts, task.ChatID)
		return true
	}
	return false
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
