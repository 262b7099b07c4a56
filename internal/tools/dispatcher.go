// Package tools executes the side-effecting operations a decision-maker
// requests during a stage turn.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/web3devz/polytrader/internal/models"
)

// Handler runs one tool invocation and returns its serialized result.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Tool pairs a declared schema with its executor.
type Tool struct {
	Info *schema.ToolInfo
	Run  Handler
}

// Result is the envelope for one dispatched call. Err is recorded, never
// propagated: tool failures become error-status conversation messages.
type Result struct {
	CallID  string
	Name    string
	Content string
	Err     error
}

// Message renders the result as a tool-result conversation entry.
func (r Result) Message() *schema.Message {
	content := r.Content
	if r.Err != nil {
		content = fmt.Sprintf("tool %s failed: %v", r.Name, r.Err)
	}
	return models.ToolResultMessage(r.CallID, r.Name, content, r.Err != nil)
}

// Registry holds the tools declared to the decision-maker for one stage.
type Registry struct {
	order  []string
	byName map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := r.byName[t.Info.Name]; dup {
			continue
		}
		r.order = append(r.order, t.Info.Name)
		r.byName[t.Info.Name] = t
	}
	return r
}

// Infos returns the declared tool schemas in registration order.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.byName[name].Info)
	}
	return infos
}

// Dispatch executes the requested calls. Independent calls run concurrently,
// but results come back in request order: the conversation the decision-maker
// sees next turn must be deterministic.
func (r *Registry) Dispatch(ctx context.Context, calls []schema.ToolCall) []Result {
	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call schema.ToolCall) {
			defer wg.Done()
			results[i] = r.dispatchOne(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (r *Registry) dispatchOne(ctx context.Context, call schema.ToolCall) Result {
	res := Result{CallID: call.ID, Name: call.Function.Name}

	tool, ok := r.byName[call.Function.Name]
	if !ok {
		res.Err = fmt.Errorf("unknown tool %q", call.Function.Name)
		return res
	}

	content, err := tool.Run(ctx, json.RawMessage(call.Function.Arguments))
	if err != nil {
		log.Printf("[Tools] %s failed: %v", call.Function.Name, err)
		res.Err = err
		return res
	}
	res.Content = content
	return res
}
