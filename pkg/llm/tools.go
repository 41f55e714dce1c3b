package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ToolHandler 是工具的执行函数，input 为模型给出的参数。
type ToolHandler func(ctx context.Context, input map[string]interface{}) (interface{}, error)

// Tool 描述一个可被模型调用的工具。
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Handler     ToolHandler
}

// ToolRegistry 维护工具名到工具的映射。
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register 注册工具，同名工具会被覆盖。
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names 返回已注册的工具名，按字典序。
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions 以 OpenAI function calling 格式返回指定工具的定义，未注册的名字被忽略。
func (r *ToolRegistry) Definitions(names []string) []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return defs
}

// Execute 解析参数并执行工具，返回 JSON 编码的结果。
func (r *ToolRegistry) Execute(ctx context.Context, name, arguments string) (json.RawMessage, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool %q is not available", name)
	}
	input := map[string]interface{}{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &input); err != nil {
			return nil, fmt.Errorf("invalid arguments for tool %q: %w", name, err)
		}
	}
	result, err := t.Handler(ctx, input)
	if err != nil {
		return nil, err
	}
	if raw, ok := result.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(result)
}
