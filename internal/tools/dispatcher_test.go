package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/web3devz/polytrader/internal/models"
)

func namedTool(name string, run Handler) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: name,
			Desc: "test tool",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"q": {Type: schema.String},
			}),
		},
		Run: run,
	}
}

func call(id, name string) schema.ToolCall {
	return schema.ToolCall{
		ID: id,
		Function: schema.FunctionCall{
			Name:      name,
			Arguments: "{}",
		},
	}
}

func TestDispatchPreservesRequestOrder(t *testing.T) {
	// Slow first tool, fast second tool: results must still come back in
	// request order because the conversation replay depends on it.
	reg := NewRegistry(
		namedTool("slow", func(ctx context.Context, args json.RawMessage) (string, error) {
			time.Sleep(50 * time.Millisecond)
			return "slow-result", nil
		}),
		namedTool("fast", func(ctx context.Context, args json.RawMessage) (string, error) {
			return "fast-result", nil
		}),
	)

	results := reg.Dispatch(context.Background(), []schema.ToolCall{
		call("c1", "slow"),
		call("c2", "fast"),
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "slow" || results[0].Content != "slow-result" {
		t.Errorf("first result should be the first requested call, got %+v", results[0])
	}
	if results[1].Name != "fast" || results[1].Content != "fast-result" {
		t.Errorf("second result should be the second requested call, got %+v", results[1])
	}
}

func TestDispatchRunsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32

	track := func(ctx context.Context, args json.RawMessage) (string, error) {
		n := inFlight.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	}

	reg := NewRegistry(namedTool("a", track), namedTool("b", track))
	reg.Dispatch(context.Background(), []schema.ToolCall{call("1", "a"), call("2", "b")})

	if peak.Load() < 2 {
		t.Errorf("expected independent calls to overlap, peak in-flight was %d", peak.Load())
	}
}

func TestDispatchErrorEnvelope(t *testing.T) {
	boom := errors.New("network down")
	reg := NewRegistry(
		namedTool("broken", func(ctx context.Context, args json.RawMessage) (string, error) {
			return "", boom
		}),
	)

	results := reg.Dispatch(context.Background(), []schema.ToolCall{call("c1", "broken")})
	if results[0].Err == nil {
		t.Fatal("expected an error result")
	}

	msg := results[0].Message()
	if models.ToolStatus(msg) != models.ToolStatusError {
		t.Errorf("expected error status tag, got %q", models.ToolStatus(msg))
	}
	if msg.ToolCallID != "c1" {
		t.Errorf("expected tool call id preserved, got %q", msg.ToolCallID)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	reg := NewRegistry()
	results := reg.Dispatch(context.Background(), []schema.ToolCall{call("c1", "nope")})
	if results[0].Err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if fmt.Sprint(results[0].Err) == "" {
		t.Error("expected descriptive error")
	}
}
