package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Structured forces a single-tool invocation and decodes its arguments into
// out. Gates use this for verdicts: the model is given exactly one tool to
// call, so the reply is parseable instead of free text. If the model answers
// with raw JSON content instead of a tool call, that is accepted too.
func Structured(ctx context.Context, d Decider, msgs []*schema.Message, info *schema.ToolInfo, out any) error {
	prompt := fmt.Sprintf("You must respond by calling the %s tool exactly once.", info.Name)
	withInstruction := append(append([]*schema.Message{}, msgs...), schema.UserMessage(prompt))

	resp, err := d.Decide(ctx, withInstruction, []*schema.ToolInfo{info})
	if err != nil {
		return err
	}

	for _, call := range resp.ToolCalls {
		if call.Function.Name != info.Name {
			continue
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), out); err != nil {
			return fmt.Errorf("decode %s arguments: %w", info.Name, err)
		}
		return nil
	}

	// Some models emit the object as content despite the instruction.
	content := strings.TrimSpace(resp.Content)
	if strings.HasPrefix(content, "{") {
		if err := json.Unmarshal([]byte(content), out); err == nil {
			return nil
		}
	}

	return fmt.Errorf("model did not call %s", info.Name)
}
