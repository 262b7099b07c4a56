package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/cloudwego/eino/schema"

	"github.com/web3devz/polytrader/internal/models"
	"github.com/web3devz/polytrader/internal/tools"
)

// stageSpec bundles everything that differs between the Research, Analysis
// and Trade stages so the controller can run them through one set of
// mechanics: a working-tool registry, a completion tool the model calls to
// submit its candidate result, the prompt builder, and the loop ceiling.
type stageSpec struct {
	node      Node
	toolsNode Node
	reflect   Node

	// loopLimit bounds stage invocations between counter resets. Research
	// carries a tighter local bound to contain a runaway search sub-loop.
	loopLimit int

	registry   *tools.Registry
	completion *schema.ToolInfo

	// messages builds the transient prompt for one invocation. The prompt
	// itself is never stored; only model output and tool results go into
	// the conversation.
	messages func(state *models.WorkflowState) []*schema.Message

	// accept parses completion-tool arguments into the state's candidate
	// slot. A parse failure is fed back to the model, not fatal.
	accept func(state *models.WorkflowState, args json.RawMessage) error
}

// runStage performs one stage invocation: build the prompt, let the model
// answer, and route on what came back. A completion call goes to the
// stage's gate, other tool calls to its tool node, and anything else loops
// the stage with a nudge.
func (c *Controller) runStage(ctx context.Context, spec stageSpec, state *models.WorkflowState) (Node, error) {
	state.LoopStep++
	if state.LoopStep > spec.loopLimit {
		state.EndReason = fmt.Sprintf("%s loop limit exceeded", spec.node)
		log.Printf("[Workflow] run %s: %s", state.RunID, state.EndReason)
		return NodeEnd, nil
	}

	msgs := append(spec.messages(state), state.Messages...)
	infos := append(spec.registry.Infos(), spec.completion)

	resp, err := c.decider.Decide(ctx, msgs, infos)
	if err != nil {
		// Model trouble burns loop budget like any failed attempt.
		log.Printf("[Workflow] run %s: %s model call failed: %v", state.RunID, spec.node, err)
		state.Append(models.ToolResultMessage("", string(spec.node), "model call failed: "+err.Error(), true))
		return spec.node, nil
	}

	if idx := findCall(resp.ToolCalls, spec.completion.Name); idx >= 0 {
		// Keep only the completion call; sibling calls in the same turn
		// are discarded so the gate sees exactly one candidate.
		call := resp.ToolCalls[idx]
		resp.ToolCalls = []schema.ToolCall{call}
		state.Append(resp)

		if err := spec.accept(state, json.RawMessage(call.Function.Arguments)); err != nil {
			state.Append(models.ToolResultMessage(call.ID, spec.completion.Name, "invalid arguments: "+err.Error(), true))
			return spec.node, nil
		}
		return spec.reflect, nil
	}

	state.Append(resp)
	if len(resp.ToolCalls) > 0 {
		return spec.toolsNode, nil
	}

	// Free text without a tool call stalls the pipeline; push back.
	state.Append(schema.UserMessage("Respond by calling one of the provided tools; use " + spec.completion.Name + " when your result is ready."))
	return spec.node, nil
}

// runTools dispatches the tool calls of the most recent assistant turn and
// returns control to the owning stage.
func (c *Controller) runTools(ctx context.Context, spec stageSpec, state *models.WorkflowState) (Node, error) {
	calls := lastToolCalls(state)
	if len(calls) == 0 {
		return spec.node, nil
	}
	for _, res := range spec.registry.Dispatch(ctx, calls) {
		state.Append(res.Message())
	}
	return spec.node, nil
}

// findCall returns the index of the named call, or -1.
func findCall(calls []schema.ToolCall, name string) int {
	for i, call := range calls {
		if call.Function.Name == name {
			return i
		}
	}
	return -1
}

// lastToolCalls returns the tool calls of the latest assistant message.
func lastToolCalls(state *models.WorkflowState) []schema.ToolCall {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == schema.Assistant {
			return state.Messages[i].ToolCalls
		}
	}
	return nil
}

// lastCompletionCall returns the call ID of the latest submission to the
// named completion tool, so gate feedback can answer it in-thread.
func lastCompletionCall(state *models.WorkflowState, name string) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		msg := state.Messages[i]
		if msg.Role != schema.Assistant {
			continue
		}
		if idx := findCall(msg.ToolCalls, name); idx >= 0 {
			return msg.ToolCalls[idx].ID
		}
	}
	return ""
}
