package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/system_prompt.txt
var agentSystemPrompt string

// ToolSummary is the part of a tool the system prompt describes.
type ToolSummary struct {
	Name        string
	Description string
}

// RenderAgentSystem renders the agent system prompt listing the available tools.
func RenderAgentSystem(ctx context.Context, tools []ToolSummary) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(agentSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Tools": tools,
	})
	if err != nil {
		return "", fmt.Errorf("agent prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("agent prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// ToolLimitNotice is appended to the request once the tool round limit is reached.
func ToolLimitNotice(maxRounds int) string {
	return fmt.Sprintf(
		"SYSTEM NOTICE: You have reached the maximum number of tool rounds (%d) for this turn. "+
			"Tools are no longer available. Answer with the information you already have and "+
			"mention anything you could not look up.",
		maxRounds,
	)
}
