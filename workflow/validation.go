package workflow

import (
	"errors"
	"fmt"

	"github.com/BaSui01/agentorch/types"
)

// ValidateDefinition checks the structure of a definition against the
// built-in node types. Every problem found is reported in one error with
// code INVALID_WORKFLOW.
//
// Validation is not required for execution: the runner tolerates dangling
// references and reports them at run time.
func ValidateDefinition(def *WorkflowDefinition) error {
	return validateDefinition(def, isBuiltinNodeType)
}

func isBuiltinNodeType(t NodeType) bool {
	for _, k := range KnownNodeTypes {
		if k == t {
			return true
		}
	}
	return false
}

func validateDefinition(def *WorkflowDefinition, knownType func(NodeType) bool) error {
	if def == nil {
		return types.NewError(types.ErrInvalidWorkflow, "workflow definition cannot be nil")
	}

	var problems []error
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if def.ID == "" {
		addf("workflow id is required")
	}
	if len(def.Nodes) == 0 {
		addf("workflow must have at least one node")
	}

	ids := make(map[string]bool, len(def.Nodes))
	for _, node := range def.Nodes {
		if node.ID == "" {
			addf("node id is required")
			continue
		}
		if ids[node.ID] {
			addf("duplicate node id: %s", node.ID)
		}
		ids[node.ID] = true
		if !knownType(node.Type) {
			addf("node %s: unknown node type: %s", node.ID, node.Type)
		}
	}

	if def.EntryPoint == "" {
		addf("entry_point is required")
	} else if !ids[def.EntryPoint] {
		addf("entry_point %s does not exist", def.EntryPoint)
	}

	for _, e := range def.Edges {
		if !ids[e.From] {
			addf("edge %s -> %s: source node does not exist", e.From, e.To)
		}
		if e.To != "" && !ids[e.To] {
			addf("edge %s -> %s: target node does not exist", e.From, e.To)
		}
	}

	for _, node := range def.Nodes {
		switch node.Type {
		case NodeTypeAgent:
			if configString(node.Config, "agent_id", "") == "" {
				addf("node %s: agent node requires agent_id", node.ID)
			}
		case NodeTypeDecision:
			for i, cond := range toMapSlice(node.Config["conditions"]) {
				if next := stringValue(cond[NextNodeKey]); next != "" && !ids[next] {
					addf("node %s: condition %d next_node %s does not exist", node.ID, i, next)
				}
			}
			if next := configString(node.Config, "default_next", ""); next != "" && !ids[next] {
				addf("node %s: default_next %s does not exist", node.ID, next)
			}
		case NodeTypeMemory:
			switch op := configString(node.Config, "operation", MemoryOperationStore); op {
			case MemoryOperationStore, MemoryOperationRetrieve:
			default:
				addf("node %s: unsupported memory operation: %s", node.ID, op)
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return types.Errorf(types.ErrInvalidWorkflow, "workflow %s is invalid", def.ID).
		WithCause(errors.Join(problems...))
}
