package tools

import (
	"context"
	"fmt"
)

const (
	ToolEcho     = "echo"
	ToolResearch = "research"
)

func createEchoTool() Tool {
	return Tool{
		Name:        ToolEcho,
		Description: "Echo back the provided text unchanged. Useful for testing tool calling.",
		Params: map[string]Param{
			"text": {Kind: KindString, Required: true, Desc: "The text to echo back"},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return fmt.Sprintf("Echo: %s", stringArg(args, "text", "")), nil
		},
	}
}

func createResearchTool() Tool {
	return Tool{
		Name:        ToolResearch,
		Description: "Research a topic and return a short summary. Currently a stub that returns placeholder text.",
		Params: map[string]Param{
			"topic": {Kind: KindString, Required: true, Desc: "The topic to research"},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return ResearchPlaceholder(stringArg(args, "topic", "")), nil
		},
	}
}

// ResearchPlaceholder is the fixed answer of the research stub.
func ResearchPlaceholder(topic string) string {
	return fmt.Sprintf("Research results for %q: no research backend is connected yet, so no findings are available. Answer from general knowledge and say so.", topic)
}
