package orchestrator

import (
	"fmt"

	"github.com/scriptgate/scriptgate/model"
)

// Message is the outward-facing chat message produced for the AI pipeline.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content is a single content block; the pipeline only emits text blocks.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textMessage(text string) *Message {
	return &Message{
		Role:    "assistant",
		Content: []Content{{Type: "text", Text: text}},
	}
}

// formatResult renders a terminal package into the outward message. Output
// has already been sanitised and truncated by the dispatch service.
func formatResult(pkg *model.ScriptPackage) *Message {
	result := pkg.ExecutionResult
	switch {
	case pkg.Status == model.StatusCancelled:
		reason := pkg.CancellationReason
		if reason == "" {
			reason = "cancelled"
		}
		return textMessage(fmt.Sprintf("Script execution was cancelled (%s).", reason))
	case result == nil:
		return textMessage(fmt.Sprintf("Script execution finished with status %s.", pkg.Status))
	case result.ExitCode == 0:
		text := "Script execution completed successfully."
		if result.Stdout != "" {
			text += "\n\nOutput:\n" + result.Stdout
		}
		return textMessage(text)
	default:
		text := fmt.Sprintf("Script execution failed with exit code %d.", result.ExitCode)
		if result.Stderr != "" {
			text += "\n\nError output:\n" + result.Stderr
		}
		return textMessage(text)
	}
}

func formatStatus(pkg *model.ScriptPackage) *Message {
	return textMessage(fmt.Sprintf("Script execution status: %s.", pkg.Status))
}
