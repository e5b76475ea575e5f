package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/altamira-institute/assistant/llm"
)

// Condenser rewrites a multi-turn conversation plus the latest message into
// one standalone question used for retrieval. Implementations must be safe to
// fail: the orchestrator falls back to the raw message on any error.
type Condenser interface {
	Condense(ctx context.Context, history []Turn, latest string) (string, error)
}

// NopCondenser passes the raw message through, for deployments that skip the
// condensation stage.
type NopCondenser struct{}

func (NopCondenser) Condense(_ context.Context, _ []Turn, latest string) (string, error) {
	return latest, nil
}

type LLMCondenser struct {
	client llm.Client
}

func NewLLMCondenser(client llm.Client) *LLMCondenser {
	return &LLMCondenser{client: client}
}

func (c *LLMCondenser) Condense(ctx context.Context, history []Turn, latest string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("condenser llm client is not configured")
	}
	if len(history) == 0 {
		return latest, nil
	}

	prompt := fmt.Sprintf(
		"Given the following conversation and a follow-up message, rephrase the follow-up "+
			"as a single standalone question that can be understood without the conversation. "+
			"Resolve pronouns and references from prior turns. Answer with the question only, "+
			"in the language of the follow-up.\n\nConversation:\n%s\nFollow-up: %s\nStandalone question:",
		FormatHistory(history), latest,
	)

	rewritten, err := c.client.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("condense question: %w", err)
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return "", fmt.Errorf("condenser returned an empty question")
	}
	return rewritten, nil
}

// FormatHistory renders turns as alternating Human:/Assistant: lines.
// Consecutive same-sender turns render as-is; ordering comes from the caller.
func FormatHistory(history []Turn) string {
	var sb strings.Builder
	for _, turn := range history {
		label := "Human"
		if turn.Sender == SenderAssistant {
			label = "Assistant"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(turn.Message))
		sb.WriteString("\n")
	}
	return sb.String()
}

var _ Condenser = (*LLMCondenser)(nil)
var _ Condenser = NopCondenser{}
