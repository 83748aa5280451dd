package schema

import "fmt"

// ValidateToolCallIDs checks that every call in an assistant turn has a
// non-empty id that is unique within the turn.
func ValidateToolCallIDs(turn ConversationTurn) error {
	seen := make(map[string]struct{}, len(turn.ToolCalls))
	for i, tc := range turn.ToolCalls {
		if tc.ID == "" {
			return fmt.Errorf("tool call %d (%s) has no id", i, tc.Name)
		}
		if _, dup := seen[tc.ID]; dup {
			return fmt.Errorf("duplicate tool call id %q", tc.ID)
		}
		seen[tc.ID] = struct{}{}
	}
	return nil
}

// ValidatePairing checks that every tool call in history is answered by
// exactly one tool turn before the next assistant turn, and that no tool turn
// answers an unknown call.
func ValidatePairing(h History) error {
	pending := map[string]bool{}
	for i, turn := range h.Turns {
		switch turn.Role {
		case RoleAssistant:
			if len(pending) > 0 {
				return fmt.Errorf("turn %d: assistant turn before %d tool call(s) were answered", i, len(pending))
			}
			if err := ValidateToolCallIDs(turn); err != nil {
				return fmt.Errorf("turn %d: %w", i, err)
			}
			for _, tc := range turn.ToolCalls {
				pending[tc.ID] = true
			}
		case RoleTool:
			if !pending[turn.ToolCallID] {
				return fmt.Errorf("turn %d: tool result for unknown or already answered call %q", i, turn.ToolCallID)
			}
			delete(pending, turn.ToolCallID)
		case RoleUser:
			if len(pending) > 0 {
				return fmt.Errorf("turn %d: user turn before %d tool call(s) were answered", i, len(pending))
			}
		}
	}
	return nil
}
