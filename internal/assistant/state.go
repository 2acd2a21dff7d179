package assistant

import (
	"github.com/google/uuid"
	"github.com/transfa/assistant-service/internal/guard"
	"github.com/transfa/assistant-service/internal/tools"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role       Role         `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []tools.Call `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
}

// TurnState is everything one turn accumulates. It only changes through Apply.
type TurnState struct {
	UserID    uuid.UUID
	Decision  guard.Decision
	Messages  []Message
	ToolCalls []tools.Call
	UIActions []tools.Call
	Rounds    int
	Response  string
}

// TurnUpdate is a partial change to a TurnState. Nil scalars leave the state
// untouched; slices are appended.
type TurnUpdate struct {
	Decision  *guard.Decision
	Rounds    *int
	Response  *string
	Messages  []Message
	ToolCalls []tools.Call
	UIActions []tools.Call
}

// Apply merges u into s: non-nil scalars replace, slices append. Nothing is
// ever removed from a turn.
func (s *TurnState) Apply(u TurnUpdate) {
	if u.Decision != nil {
		s.Decision = *u.Decision
	}
	if u.Rounds != nil {
		s.Rounds = *u.Rounds
	}
	if u.Response != nil {
		s.Response = *u.Response
	}
	s.Messages = append(s.Messages, u.Messages...)
	s.ToolCalls = append(s.ToolCalls, u.ToolCalls...)
	s.UIActions = append(s.UIActions, u.UIActions...)
}
