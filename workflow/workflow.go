package workflow

// NodeType defines the type of a workflow node
type NodeType string

const (
	// NodeTypeAgent sends a task to an external agent
	NodeTypeAgent NodeType = "agent"
	// NodeTypeDecision picks the next node from ordered conditions
	NodeTypeDecision NodeType = "decision"
	// NodeTypeHandoff transfers the active agent role
	NodeTypeHandoff NodeType = "handoff"
	// NodeTypeAggregator combines all agent responses
	NodeTypeAggregator NodeType = "aggregator"
	// NodeTypeHuman marks a point where human input is expected
	NodeTypeHuman NodeType = "human"
	// NodeTypeMemory stores or retrieves context snapshots
	NodeTypeMemory NodeType = "memory"
	// NodeTypeGuardrail scans the context for unsafe content
	NodeTypeGuardrail NodeType = "guardrail"
	// NodeTypeMonitor reports session health metrics
	NodeTypeMonitor NodeType = "monitor"
)

// KnownNodeTypes lists every node type with a built-in executor.
var KnownNodeTypes = []NodeType{
	NodeTypeAgent,
	NodeTypeDecision,
	NodeTypeHandoff,
	NodeTypeAggregator,
	NodeTypeHuman,
	NodeTypeMemory,
	NodeTypeGuardrail,
	NodeTypeMonitor,
}

// WorkflowNode is a typed unit of work in a workflow graph.
type WorkflowNode struct {
	// ID is unique within a workflow
	ID string `json:"id" yaml:"id"`
	// Type selects the node executor
	Type NodeType `json:"type" yaml:"type"`
	// Name is a display name
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Config is owned by the matching executor
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	// Connections mirrors the outgoing edges. Not enforced.
	Connections []string `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// Edge is a directed connection used for default routing.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// WorkflowDefinition is a reusable directed graph of nodes plus an entry point.
type WorkflowDefinition struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []WorkflowNode `json:"nodes" yaml:"nodes"`
	Edges       []Edge         `json:"edges,omitempty" yaml:"edges,omitempty"`
	EntryPoint  string         `json:"entry_point" yaml:"entry_point"`
}

// GetNode retrieves a node by ID
func (d *WorkflowDefinition) GetNode(nodeID string) (*WorkflowNode, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == nodeID {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns the edges leaving nodeID, in definition order.
func (d *WorkflowDefinition) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// AddNode appends a node and returns the definition for chaining.
func (d *WorkflowDefinition) AddNode(node WorkflowNode) *WorkflowDefinition {
	d.Nodes = append(d.Nodes, node)
	return d
}

// Connect adds an edge and keeps the source node's Connections in sync.
func (d *WorkflowDefinition) Connect(fromID, toID string) *WorkflowDefinition {
	d.Edges = append(d.Edges, Edge{From: fromID, To: toID})
	if n, ok := d.GetNode(fromID); ok {
		n.Connections = append(n.Connections, toID)
	}
	return d
}

// Clone returns a deep copy of the definition.
func (d *WorkflowDefinition) Clone() *WorkflowDefinition {
	if d == nil {
		return nil
	}
	c := &WorkflowDefinition{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		EntryPoint:  d.EntryPoint,
		Nodes:       make([]WorkflowNode, len(d.Nodes)),
		Edges:       append([]Edge(nil), d.Edges...),
	}
	for i, n := range d.Nodes {
		c.Nodes[i] = WorkflowNode{
			ID:          n.ID,
			Type:        n.Type,
			Name:        n.Name,
			Config:      cloneMap(n.Config),
			Connections: append([]string(nil), n.Connections...),
		}
	}
	return c
}
