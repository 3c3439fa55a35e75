package workflow

// NextNodeKey is the output key through which a node chooses its successor.
const NextNodeKey = "next_node"

// Router resolves the node that runs after the current one.
type Router interface {
	// Next returns the next node ID, or false when the workflow ends.
	Next(def *WorkflowDefinition, currentNodeID string, output map[string]any) (string, bool)
}

// GraphRouter is the default Router.
//
// An output carrying next_node wins verbatim, and a nil or empty value ends
// the workflow. Otherwise the first edge leaving the current node is
// followed; when several edges leave a node only the first listed is taken.
type GraphRouter struct{}

func (GraphRouter) Next(def *WorkflowDefinition, currentNodeID string, output map[string]any) (string, bool) {
	if next, ok := output[NextNodeKey]; ok {
		id := stringValue(next)
		return id, id != ""
	}

	edges := def.OutgoingEdges(currentNodeID)
	if len(edges) == 0 {
		return "", false
	}
	return edges[0].To, edges[0].To != ""
}
