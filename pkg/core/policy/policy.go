// Package policy defines the conversation-policy and business-resolution
// collaborator contracts. The bridge treats both as opaque: it forwards
// text and context, and speaks whatever comes back.
package policy

import (
	"context"
	"time"
)

// Turn is one conversation exchange, caller or assistant.
type Turn struct {
	Role      string    `json:"role"` // "caller" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Input is what the policy engine receives for each caller turn.
type Input struct {
	Text     string
	History  []Turn
	Business BusinessConfig
	Flow     string // opaque flow marker from the previous reply
}

// SideEffect is an opaque action requested by the policy engine, such as
// a lead-capture record or an escalation. The bridge does not interpret
// these.
type SideEffect struct {
	Type    string
	Payload map[string]string
}

// Reply is the policy engine's answer for one turn.
type Reply struct {
	Text        string
	NextFlow    string
	SideEffects []SideEffect
}

// Engine decides what the assistant says next. Implementations own
// intent classification and lead-capture logic.
type Engine interface {
	Respond(ctx context.Context, in Input) (*Reply, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, in Input) (*Reply, error)

// Respond implements Engine.
func (f EngineFunc) Respond(ctx context.Context, in Input) (*Reply, error) {
	return f(ctx, in)
}
