package consensus

import (
	"fmt"
	"strings"

	"github.com/BaSui01/agentquorum/agent"
)

// Perspective frames one opinion so that opinions are not plain duplicates.
type Perspective struct {
	Name    string `json:"name" yaml:"name"`
	Framing string `json:"framing" yaml:"framing"`
}

// DefaultPerspectives 返回默认视角，按顺序轮换使用。
func DefaultPerspectives() []Perspective {
	return []Perspective{
		{
			Name:    "task_fit",
			Framing: "Judge which agent's role fits the user's task most directly.",
		},
		{
			Name:    "domain_expertise",
			Framing: "Judge which agent has the deepest expertise in the domain of the request.",
		},
		{
			Name:    "efficiency",
			Framing: "Judge which agent can resolve the request with the fewest steps and handoffs.",
		},
	}
}

func votePrompt(p Perspective, candidates []*agent.Agent) string {
	var b strings.Builder
	b.WriteString("You are selecting the agent that should handle the user's message.\n")
	b.WriteString(p.Framing)
	b.WriteString("\n\nCandidates:\n")
	for _, c := range candidates {
		if c.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", c.Name)
		}
	}
	b.WriteString("\nAnswer with the exact name of one candidate.")
	return b.String()
}
