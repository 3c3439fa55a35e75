package workflow

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentorch/types"
)

// Memory operations understood by MemoryExecutor.
const (
	MemoryOperationStore    = "store"
	MemoryOperationRetrieve = "retrieve"
)

// MemoryExecutor snapshots current data into the session metadata, or reads
// a snapshot back. A retrieve always sees the data as it was at store time.
type MemoryExecutor struct{}

func (MemoryExecutor) Execute(_ context.Context, session *WorkflowSession, node *WorkflowNode) (map[string]any, error) {
	operation := configString(node.Config, "operation", MemoryOperationStore)
	key := configString(node.Config, "key", fmt.Sprintf("memory_%s", node.ID))
	wctx := session.Context
	if wctx.Metadata == nil {
		wctx.Metadata = make(map[string]any)
	}

	switch operation {
	case MemoryOperationRetrieve:
		retrieved := map[string]any{}
		if v, ok := wctx.Metadata[key]; ok && v != nil {
			if m, ok := cloneValue(v).(map[string]any); ok {
				retrieved = m
			}
		}
		return map[string]any{
			"memory_operation": MemoryOperationRetrieve,
			"memory_key":       key,
			"retrieved_data":   retrieved,
		}, nil
	case MemoryOperationStore:
		wctx.Metadata[key] = wctx.Snapshot()
		return map[string]any{
			"memory_operation": MemoryOperationStore,
			"memory_key":       key,
			"stored_data_size": len(wctx.DataString()),
		}, nil
	default:
		return nil, types.Errorf(types.ErrInvalidRequest, "unsupported memory operation: %s", operation)
	}
}
