package reactor

import (
	"fmt"
	"slices"
)

// Role identifies the author of a Turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one message of the conversation sent to the model.
//
// Assistant turns carry ToolCalls only when the endpoint returned structured calls;
// actions parsed from text leave it empty. Tool turns set ToolCallID in the same case.
type Turn struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// Conversation is the ordered list of turns of one run. At most one system turn
// exists and it is always first. Conversation is not safe for concurrent use; the
// controller owns it for the lifetime of a run.
type Conversation struct {
	turns []Turn
}

// NewConversation starts a conversation, with a system turn when system is non-empty.
func NewConversation(system string) *Conversation {
	c := &Conversation{}
	if system != "" {
		c.turns = append(c.turns, Turn{Role: RoleSystem, Content: system})
	}
	return c
}

// Append adds a turn at the end. System turns are rejected: the only one is set
// by NewConversation.
func (c *Conversation) Append(t Turn) error {
	switch t.Role {
	case RoleUser, RoleAssistant, RoleTool:
	case RoleSystem:
		return fmt.Errorf("%w: system turn is only allowed first", ErrInvalidTurn)
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, t.Role)
	}
	c.turns = append(c.turns, t)
	return nil
}

// Turns returns a copy of the turns.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		t.ToolCalls = slices.Clone(t.ToolCalls)
		out[i] = t
	}
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int { return len(c.turns) }

// System returns the system turn content, if any.
func (c *Conversation) System() (string, bool) {
	if len(c.turns) > 0 && c.turns[0].Role == RoleSystem {
		return c.turns[0].Content, true
	}
	return "", false
}

// Last returns the most recent turn.
func (c *Conversation) Last() (Turn, bool) {
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

func (c *Conversation) mustAppend(t Turn) {
	if err := c.Append(t); err != nil {
		panic(err)
	}
}
