// Package diagram renders workflow graphs as Mermaid flowcharts, for
// embedding in run reports and editor-side documentation.
package diagram

import (
	"fmt"
	"strings"

	"github.com/draftloom/draftloom/pkg/schema"
)

// RenderMermaid renders a workflow as a Mermaid flowchart string. Node
// fill classes reflect the current execution status.
func RenderMermaid(wf *schema.Workflow) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if wf.Name != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", wf.Name))
	}

	for _, node := range wf.Nodes {
		b.WriteString(fmt.Sprintf("    %s[%q]\n", mermaidSafeID(node.ID), string(node.AgentType)))
	}

	for _, edge := range wf.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.Source), label, mermaidSafeID(edge.Target)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef success fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef error fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef pending fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	b.WriteString("    classDef idle fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	for _, node := range wf.Nodes {
		cls := mermaidStatusClass(node.Status)
		if cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
		}
	}

	return b.String()
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots and dashes with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

func mermaidStatusClass(status schema.NodeStatus) string {
	switch status {
	case schema.NodeStatusSuccess:
		return "success"
	case schema.NodeStatusError:
		return "error"
	case schema.NodeStatusRunning:
		return "running"
	case schema.NodeStatusPending:
		return "pending"
	case schema.NodeStatusIdle:
		return "idle"
	default:
		return ""
	}
}
