package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// AgentResponse is the raw response returned by an agent.
// "content" and the optional "confidence" are the fields the engine reads;
// anything else is carried through untouched.
type AgentResponse map[string]any

// Content returns the response text, or "" when absent.
func (r AgentResponse) Content() string {
	if r == nil {
		return ""
	}
	return stringValue(r["content"])
}

// Confidence returns the reported confidence and whether one was present.
func (r AgentResponse) Confidence() (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r["confidence"]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// AgentOutputs maps agent IDs to their latest response, iterating in the
// order each agent first responded. Overwriting keeps the original position.
type AgentOutputs struct {
	order     []string
	responses map[string]AgentResponse
}

// NewAgentOutputs creates an empty ordered output map.
func NewAgentOutputs() *AgentOutputs {
	return &AgentOutputs{responses: make(map[string]AgentResponse)}
}

// Set stores the latest response for an agent.
func (o *AgentOutputs) Set(agentID string, resp AgentResponse) {
	if o.responses == nil {
		o.responses = make(map[string]AgentResponse)
	}
	if _, exists := o.responses[agentID]; !exists {
		o.order = append(o.order, agentID)
	}
	o.responses[agentID] = resp
}

// Get returns the latest response for an agent.
func (o *AgentOutputs) Get(agentID string) (AgentResponse, bool) {
	if o == nil {
		return nil, false
	}
	r, ok := o.responses[agentID]
	return r, ok
}

// Len returns the number of distinct agents that responded.
func (o *AgentOutputs) Len() int {
	if o == nil {
		return 0
	}
	return len(o.order)
}

// Keys returns agent IDs in insertion order.
func (o *AgentOutputs) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.order...)
}

// Range calls fn for every entry in insertion order until fn returns false.
func (o *AgentOutputs) Range(fn func(agentID string, resp AgentResponse) bool) {
	if o == nil {
		return
	}
	for _, id := range o.order {
		if !fn(id, o.responses[id]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (o *AgentOutputs) Clone() *AgentOutputs {
	c := NewAgentOutputs()
	o.Range(func(id string, resp AgentResponse) bool {
		c.Set(id, AgentResponse(cloneMap(resp)))
		return true
	})
	return c
}

// MarshalJSON writes an object whose keys keep insertion order.
func (o *AgentOutputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range o.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.responses[id])
		if err != nil {
			return nil, fmt.Errorf("marshal response of agent %s: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object and preserves its key order.
func (o *AgentOutputs) UnmarshalJSON(data []byte) error {
	o.order = nil
	o.responses = make(map[string]AgentResponse)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("agent outputs: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("agent outputs: expected string key, got %v", keyTok)
		}
		var resp AgentResponse
		if err := dec.Decode(&resp); err != nil {
			return fmt.Errorf("agent outputs: decode %s: %w", key, err)
		}
		o.Set(key, resp)
	}
	_, err = dec.Token()
	return err
}

// WorkflowContext is the mutable data bag threaded through a session.
type WorkflowContext struct {
	SessionID    string         `json:"session_id"`
	UserInput    string         `json:"user_input"`
	CurrentData  map[string]any `json:"current_data"`
	AgentOutputs *AgentOutputs  `json:"agent_outputs"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewWorkflowContext creates an empty context for a session.
func NewWorkflowContext(sessionID, userInput string, now time.Time) *WorkflowContext {
	return &WorkflowContext{
		SessionID:    sessionID,
		UserInput:    userInput,
		CurrentData:  make(map[string]any),
		AgentOutputs: NewAgentOutputs(),
		Metadata:     make(map[string]any),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Snapshot returns a deep copy of CurrentData.
func (c *WorkflowContext) Snapshot() map[string]any {
	if c.CurrentData == nil {
		return make(map[string]any)
	}
	return cloneMap(c.CurrentData)
}

// Merge applies output to CurrentData, last write wins per key.
// An empty output leaves the context, including UpdatedAt, untouched.
func (c *WorkflowContext) Merge(output map[string]any, now time.Time) {
	if len(output) == 0 {
		return
	}
	if c.CurrentData == nil {
		c.CurrentData = make(map[string]any, len(output))
	}
	for k, v := range output {
		c.CurrentData[k] = v
	}
	c.UpdatedAt = now
}

// DataString is the text form of CurrentData used by content scans.
func (c *WorkflowContext) DataString() string {
	return stringForm(c.CurrentData)
}
