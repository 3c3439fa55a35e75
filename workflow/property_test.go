package workflow

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var propertyNodeTypes = []NodeType{
	NodeTypeHuman, NodeTypeMonitor, NodeTypeGuardrail, NodeTypeMemory, NodeTypeAggregator, NodeTypeHandoff,
}

// randomWorkflow builds a graph whose nodes never emit next_node, so routing
// follows edges only. Roughly a third of the nodes are sinks.
func randomWorkflow(nodeCount int, seed int64) *WorkflowDefinition {
	rng := rand.New(rand.NewSource(seed))
	def := &WorkflowDefinition{ID: fmt.Sprintf("random-%d", seed), EntryPoint: "n0"}
	for i := 0; i < nodeCount; i++ {
		def.AddNode(WorkflowNode{
			ID:   fmt.Sprintf("n%d", i),
			Type: propertyNodeTypes[rng.Intn(len(propertyNodeTypes))],
		})
	}
	for i := 0; i < nodeCount; i++ {
		if rng.Intn(3) == 0 {
			continue
		}
		fanOut := 1 + rng.Intn(2)
		for j := 0; j < fanOut; j++ {
			def.Connect(fmt.Sprintf("n%d", i), fmt.Sprintf("n%d", rng.Intn(nodeCount)))
		}
	}
	return def
}

// expectedSteps walks the first-edge path up to the iteration cap.
func expectedSteps(def *WorkflowDefinition, limit int) int {
	current := def.EntryPoint
	steps := 0
	for steps < limit {
		steps++
		edges := def.OutgoingEdges(current)
		if len(edges) == 0 {
			break
		}
		current = edges[0].To
	}
	return steps
}

// Property: termination and step-count bound
func TestProperty_TerminationAndStepBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("execution path length is min(natural length, cap)", prop.ForAll(
		func(nodeCount int, seed int64) bool {
			def := randomWorkflow(nodeCount, seed)
			runner := newTestRunner(nil)

			res, err := runner.Run(context.Background(), def, newTestSession("input"))
			if err != nil {
				t.Logf("Run failed: %v", err)
				return false
			}
			if res.Status != SessionStatusCompleted {
				t.Logf("unexpected status %s: %s", res.Status, res.Error)
				return false
			}
			want := expectedSteps(def, DefaultMaxIterations)
			if len(res.ExecutionPath) != want {
				t.Logf("got %d steps, want %d", len(res.ExecutionPath), want)
				return false
			}
			return len(res.ExecutionPath) <= DefaultMaxIterations
		},
		gen.IntRange(1, 10),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// Property: last-write-wins merge
func TestProperty_LastWriteWins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("later node's value for a shared key survives", prop.ForAll(
		func(first, second string, firstRunsFirst bool) bool {
			registry := NewExecutorRegistry()
			registry.Register("write", NodeExecutorFunc(func(_ context.Context, _ *WorkflowSession, n *WorkflowNode) (map[string]any, error) {
				return map[string]any{"k": n.Config["value"]}, nil
			}))
			runner := NewRunner(registry, nil)

			a := WorkflowNode{ID: "a", Type: "write", Config: map[string]any{"value": first}}
			b := WorkflowNode{ID: "b", Type: "write", Config: map[string]any{"value": second}}
			def := &WorkflowDefinition{ID: "lww", Nodes: []WorkflowNode{a, b}}
			want := second
			if firstRunsFirst {
				def.EntryPoint = "a"
				def.Edges = []Edge{{From: "a", To: "b"}}
			} else {
				def.EntryPoint = "b"
				def.Edges = []Edge{{From: "b", To: "a"}}
				want = first
			}

			res, err := runner.Run(context.Background(), def, newTestSession(""))
			return err == nil && res.Result["k"] == want
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: decision first-match
func TestProperty_DecisionFirstMatch(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		keys := []string{"a", "b", "c"}
		data := map[string]any{}
		for _, k := range keys {
			if rapid.Bool().Draw(rt, "has_"+k) {
				data[k] = rapid.IntRange(0, 2).Draw(rt, "data_"+k)
			}
		}

		count := rapid.IntRange(0, 6).Draw(rt, "conditions")
		conditions := make([]any, count)
		want := "default-target"
		matched := false
		for i := 0; i < count; i++ {
			key := rapid.SampledFrom(keys).Draw(rt, fmt.Sprintf("key_%d", i))
			value := rapid.IntRange(0, 2).Draw(rt, fmt.Sprintf("value_%d", i))
			target := fmt.Sprintf("target-%d", i)
			conditions[i] = map[string]any{"type": "simple", "key": key, "value": value, "next_node": target}
			if v, ok := data[key]; ok && v == value && !matched {
				want = target
				matched = true
			}
		}

		session := newTestSession("")
		session.Context.Merge(data, testEpoch)
		out, err := DecisionExecutor{}.Execute(context.Background(), session, node("d", NodeTypeDecision, map[string]any{
			"conditions":   conditions,
			"default_next": "default-target",
		}))
		require.NoError(rt, err)
		assert.Equal(rt, want, out["next_node"])
		assert.Equal(rt, matched, out["condition_met"])
	})
}

// Property: guardrail reports exactly the keywords present, in keyword order
func TestProperty_GuardrailDetection(t *testing.T) {
	words := []string{"hello", "hack", "Exploit", "world", "malicious", "HARMFUL", "safe", "hacker"}
	rapid.Check(t, func(rt *rapid.T) {
		picked := rapid.SliceOfN(rapid.SampledFrom(words), 0, 8).Draw(rt, "words")
		text := strings.Join(picked, " ")

		want := []string{}
		lowered := strings.ToLower(text)
		for _, kw := range GuardrailKeywords {
			if strings.Contains(lowered, kw) {
				want = append(want, kw)
			}
		}

		session := newTestSession("")
		session.Context.Merge(map[string]any{"msg": text}, testEpoch)
		out, err := GuardrailExecutor{}.Execute(context.Background(), session, node("g", NodeTypeGuardrail, nil))
		require.NoError(rt, err)
		assert.Equal(rt, want, out["violations"])
		assert.Equal(rt, len(want) == 0, out["is_safe"])
	})
}

// Property: memory round-trip returns the snapshot taken at store time
func TestProperty_MemoryRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		stored := rapid.MapOf(rapid.StringMatching(`[a-z]{1,6}`), rapid.StringN(0, 10, -1)).Draw(rt, "stored")
		later := rapid.MapOf(rapid.StringMatching(`[a-z]{1,6}`), rapid.StringN(0, 10, -1)).Draw(rt, "later")

		session := newTestSession("")
		data := make(map[string]any, len(stored))
		for k, v := range stored {
			data[k] = v
		}
		session.Context.Merge(data, testEpoch)

		_, err := MemoryExecutor{}.Execute(context.Background(), session, node("s", NodeTypeMemory, map[string]any{"key": "slot"}))
		require.NoError(rt, err)

		laterData := make(map[string]any, len(later))
		for k, v := range later {
			laterData[k] = v
		}
		session.Context.Merge(laterData, testEpoch)

		out, err := MemoryExecutor{}.Execute(context.Background(), session, node("r", NodeTypeMemory, map[string]any{
			"operation": "retrieve", "key": "slot",
		}))
		require.NoError(rt, err)
		assert.Equal(rt, data, out["retrieved_data"])
	})
}
