// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"ai-chat-go/internal/config"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Engine 是模型调用引擎：给定消息与工具，产生有序的事件流。
type Engine interface {
	// Stream 启动一次流式生成。事件通道在 finish 或 error 事件之后关闭，ctx 结束时提前关闭。
	Stream(ctx context.Context, req Request) (<-chan Event, error)
	// Complete 进行一次非流式补全，返回去掉推理内容后的正文。
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}

type deepseekClient struct {
	cfg    config.LLMConfig
	client *http.Client
	tools  *ToolRegistry
}

// NewClient 创建 OpenAI 兼容接口的客户端，tools 为可选的工具注册表。
func NewClient(cfg config.LLMConfig, tools *ToolRegistry) Engine {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &deepseekClient{
		cfg:    cfg,
		client: &http.Client{},
		tools:  tools,
	}
}

type chatRequest struct {
	Model       string                   `json:"model"`
	Messages    []Message                `json:"messages"`
	Stream      bool                     `json:"stream"`
	Tools       []map[string]interface{} `json:"tools,omitempty"`
	Temperature *float64                 `json:"temperature,omitempty"`
	TopP        *float64                 `json:"top_p,omitempty"`
	MaxTokens   *int                     `json:"max_tokens,omitempty"`
}

type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int          `json:"index"`
				ID       string       `json:"id"`
				Type     string       `json:"type"`
				Function FunctionCall `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// stepResult 是一轮请求累积的正文、工具调用和结束原因。
type stepResult struct {
	text         strings.Builder
	toolCalls    []ToolCall
	finishReason string
}

func (c *deepseekClient) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if req.Model == "" {
		return nil, errors.New("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages are required")
	}
	out := make(chan Event)
	go c.run(ctx, req, out)
	return out, nil
}

func (c *deepseekClient) run(ctx context.Context, req Request, out chan<- Event) {
	defer close(out)
	emit := func(e Event) bool {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}
	messages := append([]Message(nil), req.Messages...)
	finishReason := "stop"
	for step := 0; step < maxSteps; step++ {
		res, err := c.streamStep(ctx, req, messages, emit)
		if err != nil {
			if ctx.Err() == nil {
				emit(Event{Type: EventError, Err: err})
			}
			return
		}
		if res.finishReason != "" {
			finishReason = res.finishReason
		}
		if len(res.toolCalls) == 0 {
			break
		}

		messages = append(messages, Message{Role: "assistant", Content: res.text.String(), ToolCalls: res.toolCalls})
		for _, tc := range res.toolCalls {
			input := json.RawMessage(tc.Function.Arguments)
			if !json.Valid(input) {
				input = json.RawMessage("{}")
			}
			if !emit(Event{Type: EventToolCall, ToolCallID: tc.ID, ToolName: tc.Function.Name, Input: input}) {
				return
			}
			output, err := c.tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
			result := Event{Type: EventToolResult, ToolCallID: tc.ID, ToolName: tc.Function.Name}
			content := string(output)
			if err != nil {
				result.ToolError = err.Error()
				content = "Error: " + err.Error()
			} else {
				result.Output = output
			}
			if !emit(result) {
				return
			}
			messages = append(messages, Message{Role: "tool", ToolCallID: tc.ID, Content: content})
		}
	}
	emit(Event{Type: EventFinish, FinishReason: finishReason})
}

// streamStep 发送一轮流式请求，把文本和推理增量实时发出，并累积工具调用。
func (c *deepseekClient) streamStep(ctx context.Context, req Request, messages []Message, emit func(Event) bool) (*stepResult, error) {
	body := c.buildRequest(req.Model, messages, req.Generation, true)
	body.Tools = c.tools.Definitions(req.Tools)

	resp, err := c.post(ctx, body, "text/event-stream")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := &stepResult{}
	calls := map[int]*ToolCall{}
	var order []int
	var splitter thinkSplitter
	forward := func(segs []thinkSegment) error {
		for _, seg := range segs {
			e := Event{Type: EventTextDelta, Text: seg.text}
			if seg.reasoning {
				e.Type = EventReasoningDelta
			} else {
				res.text.WriteString(seg.text)
			}
			if !emit(e) {
				return ctx.Err()
			}
		}
		return nil
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read from stream: %w", err)
		}
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data:")
		data = strings.TrimSpace(data)
		if ok && data == "[DONE]" {
			break
		}
		if ok && data != "" {
			var chunk streamResponse
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr == nil && len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]
				if choice.Delta.ReasoningContent != "" {
					if !emit(Event{Type: EventReasoningDelta, Text: choice.Delta.ReasoningContent}) {
						return nil, ctx.Err()
					}
				}
				if choice.Delta.Content != "" {
					if ferr := forward(splitter.push(choice.Delta.Content)); ferr != nil {
						return nil, ferr
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					acc, seen := calls[tc.Index]
					if !seen {
						acc = &ToolCall{Type: "function"}
						calls[tc.Index] = acc
						order = append(order, tc.Index)
					}
					if tc.ID != "" {
						acc.ID = tc.ID
					}
					if tc.Function.Name != "" {
						acc.Function.Name = tc.Function.Name
					}
					acc.Function.Arguments += tc.Function.Arguments
				}
				if choice.FinishReason != "" {
					res.finishReason = choice.FinishReason
				}
			}
		}
		if err == io.EOF {
			break
		}
	}
	if ferr := forward(splitter.flush()); ferr != nil {
		return nil, ferr
	}
	for _, idx := range order {
		res.toolCalls = append(res.toolCalls, *calls[idx])
	}
	return res, nil
}

func (c *deepseekClient) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	resp, err := c.post(ctx, c.buildRequest(model, messages, nil, false), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	var splitter thinkSplitter
	var sb strings.Builder
	segs := append(splitter.push(parsed.Choices[0].Message.Content), splitter.flush()...)
	for _, seg := range segs {
		if !seg.reasoning {
			sb.WriteString(seg.text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *deepseekClient) buildRequest(model string, messages []Message, gen *GenerationParams, stream bool) chatRequest {
	reqBody := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	}
	// 从配置或传参注入生成参数（传参优先生效）
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
		return reqBody
	}
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		reqBody.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		reqBody.MaxTokens = &m
	}
	return reqBody
}

func (c *deepseekClient) post(ctx context.Context, body chatRequest, accept string) (*http.Response, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", accept)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return resp, nil
}
