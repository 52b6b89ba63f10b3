package engine

import (
	"fmt"

	"github.com/draftloom/draftloom/pkg/schema"
)

// Graph is the in-memory workflow graph: an ordered collection of agent
// nodes plus semantic edges. Edges document data flow for the canvas UI;
// scheduling follows node insertion order (see ExecutionOrder).
type Graph struct {
	nodes []schema.AgentNode
	edges []schema.Edge
	index map[string]int // node id -> position in nodes
}

// NewGraph builds a Graph from a persisted workflow, validating it.
func NewGraph(wf *schema.Workflow) (*Graph, error) {
	g := &Graph{index: make(map[string]int, len(wf.Nodes))}
	for i := range wf.Nodes {
		if err := g.AddNode(wf.Nodes[i]); err != nil {
			return nil, err
		}
	}
	for i := range wf.Edges {
		if err := g.AddEdge(wf.Edges[i]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddNode appends a node. Node ids must be unique and agent types known.
func (g *Graph) AddNode(node schema.AgentNode) error {
	if node.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "node has empty id")
	}
	if _, exists := g.index[node.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeValidation, "duplicate node id: %s", node.ID)
	}
	if !schema.IsKnownAgentType(node.AgentType) {
		return schema.NewErrorf(schema.ErrCodeUnknownAgentType,
			"node %s has unknown agent type %q", node.ID, node.AgentType).WithNode(node.ID)
	}
	if node.Status == "" {
		node.Status = schema.NodeStatusIdle
	}
	g.index[node.ID] = len(g.nodes)
	g.nodes = append(g.nodes, node)
	return nil
}

// AddEdge appends an edge. Both endpoints must reference existing nodes.
func (g *Graph) AddEdge(edge schema.Edge) error {
	if _, ok := g.index[edge.Source]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"edge %s references non-existent source: %s", edge.ID, edge.Source)
	}
	if _, ok := g.index[edge.Target]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"edge %s references non-existent target: %s", edge.ID, edge.Target)
	}
	g.edges = append(g.edges, edge)
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*schema.AgentNode, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node not found: %s", id)
	}
	return &g.nodes[i], nil
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []schema.AgentNode {
	out := make([]schema.AgentNode, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns all edges.
func (g *Graph) Edges() []schema.Edge {
	out := make([]schema.Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.nodes) }

// UpdateNodeStatus is the sole mutation path for node state during a run.
// Result and errMsg are applied only on their respective terminal statuses.
func (g *Graph) UpdateNodeStatus(id string, status schema.NodeStatus, result []byte, errMsg string) error {
	i, ok := g.index[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node not found: %s", id)
	}
	node := &g.nodes[i]
	node.Status = status
	switch status {
	case schema.NodeStatusSuccess:
		node.Result = result
		node.Error = ""
	case schema.NodeStatusError:
		node.Error = errMsg
	}
	return nil
}

// ExecutionOrder returns node ids in scheduling order.
//
// Order equals node insertion order, not a dependency order derived from
// edges. Edges carry semantic labels for the canvas only; reordering
// saved workflows by edge topology would change observed behavior, so
// TopologicalOrder exists for validation but does not drive scheduling.
func (g *Graph) ExecutionOrder() []string {
	order := make([]string, len(g.nodes))
	for i := range g.nodes {
		order[i] = g.nodes[i].ID
	}
	return order
}

// TopologicalOrder computes a dependency order over the edges using
// Kahn's algorithm. It reports cycles, which insertion-order scheduling
// would otherwise mask.
func (g *Graph) TopologicalOrder() ([]string, error) {
	reverse := make(map[string][]string, len(g.nodes)) // source -> targets
	inDegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range g.edges {
		reverse[e.Source] = append(reverse[e.Source], e.Target)
		inDegree[e.Target]++
	}

	// Seed the queue in insertion order so the result is deterministic.
	var queue []string
	for _, n := range g.nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	sorted := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, next := range reverse[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow graph contains a cycle")
	}
	return sorted, nil
}

// Validate re-checks graph invariants: unique ids, known agent types,
// edge endpoints, acyclicity.
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.nodes))
	for _, n := range g.nodes {
		if seen[n.ID] {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate node id: %s", n.ID)
		}
		seen[n.ID] = true
		if !schema.IsKnownAgentType(n.AgentType) {
			return schema.NewErrorf(schema.ErrCodeUnknownAgentType,
				"node %s has unknown agent type %q", n.ID, n.AgentType).WithNode(n.ID)
		}
	}
	for _, e := range g.edges {
		if !seen[e.Source] || !seen[e.Target] {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"edge %s has dangling endpoint (%s -> %s)", e.ID, e.Source, e.Target)
		}
	}
	if _, err := g.TopologicalOrder(); err != nil {
		return err
	}
	return nil
}

// DefaultWorkflow builds the standard seven-node workflow (or a subset)
// with sequential data-flow edges between consecutive nodes.
func DefaultWorkflow(id, name string, agentTypes []schema.AgentType) (*schema.Workflow, error) {
	if len(agentTypes) == 0 {
		agentTypes = schema.KnownAgentTypes
	}
	wf := &schema.Workflow{ID: id, Name: name}
	for i, at := range agentTypes {
		if !schema.IsKnownAgentType(at) {
			return nil, schema.NewErrorf(schema.ErrCodeUnknownAgentType, "unknown agent type %q", at)
		}
		wf.Nodes = append(wf.Nodes, schema.AgentNode{
			ID:        fmt.Sprintf("node-%d-%s", i+1, at),
			AgentType: at,
			Status:    schema.NodeStatusIdle,
		})
	}
	for i := 1; i < len(wf.Nodes); i++ {
		wf.Edges = append(wf.Edges, schema.Edge{
			ID:     fmt.Sprintf("edge-%d", i),
			Source: wf.Nodes[i-1].ID,
			Target: wf.Nodes[i].ID,
			Label:  "feeds",
		})
	}
	wf.Progress = schema.WorkflowProgress{TotalNodes: len(wf.Nodes)}
	return wf, nil
}
