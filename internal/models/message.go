package models

import "github.com/cloudwego/eino/schema"

// Tool result messages carry a status tag so gates and routing can tell a
// successful dispatch from a failed one without re-parsing content.
const (
	msgStatusKey    = "status"
	ToolStatusOK    = "success"
	ToolStatusError = "error"
	msgToolNameKey  = "tool_name"
)

// ToolResultMessage builds the conversation entry for one dispatched tool.
func ToolResultMessage(callID, toolName, content string, failed bool) *schema.Message {
	status := ToolStatusOK
	if failed {
		status = ToolStatusError
	}
	msg := schema.ToolMessage(content, callID)
	if msg.Extra == nil {
		msg.Extra = map[string]any{}
	}
	msg.Extra[msgStatusKey] = status
	msg.Extra[msgToolNameKey] = toolName
	return msg
}

// ToolStatus returns the status tag of a tool result message, empty for
// other message kinds.
func ToolStatus(msg *schema.Message) string {
	if msg == nil || msg.Role != schema.Tool || msg.Extra == nil {
		return ""
	}
	status, _ := msg.Extra[msgStatusKey].(string)
	return status
}
