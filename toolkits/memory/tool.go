package memory

import (
	"context"
	"strings"

	"github.com/skosovsky/reactor"
)

// Memory types accepted by save_memory.
const (
	TypeFact       = "fact"
	TypePreference = "preference"
)

// SaveArgs are the arguments of save_memory.
type SaveArgs struct {
	MemoryType string `json:"memory_type" enum:"fact,preference" description:"Type of memory to save"`
	Content    string `json:"content" description:"The information to remember"`
	Key        string `json:"key,omitempty" description:"For preferences: the preference key (e.g., 'favorite_color')"`
}

// NewSaveTool builds save_memory over s. A preference without a key is stored under
// the first word of its content.
func NewSaveTool(s *Store, opts ...reactor.ToolOption) (reactor.Tool, error) {
	return reactor.NewTool("save_memory",
		"Save important information to long-term memory (user preferences, facts, personal details)",
		func(_ context.Context, args SaveArgs) (string, error) {
			content := strings.TrimSpace(args.Content)
			if content == "" {
				return "", &reactor.ClientError{Reason: "content must not be empty", Err: reactor.ErrValidation}
			}
			switch args.MemoryType {
			case TypeFact:
				if _, err := s.AddFact(content); err != nil {
					return "", err
				}
				return "Fact saved to memory", nil
			case TypePreference:
				key := strings.TrimSpace(args.Key)
				if key == "" {
					key = strings.Fields(content)[0]
				}
				if err := s.AddPreference(key, content); err != nil {
					return "", err
				}
				return "Preference saved to memory", nil
			}
			return "", &reactor.ClientError{Reason: "unknown memory type " + args.MemoryType, Err: reactor.ErrValidation}
		}, opts...)
}
