package schema

// History is the ordered, append-only list of turns exchanged with a model.
// It owns typed append methods so callers never build turns by hand.
type History struct {
	Turns []ConversationTurn `json:"turns"`
}

// NewHistory returns a History initialised with a copy of turns.
func NewHistory(turns ...ConversationTurn) History {
	out := make([]ConversationTurn, len(turns))
	copy(out, turns)
	return History{Turns: out}
}

func (h *History) Add(turn ConversationTurn) {
	h.Turns = append(h.Turns, turn)
}

func (h *History) AddUser(content string, images ...Image) {
	h.Add(NewUserTurn(content, images...))
}

// AddToolResult appends the tool turn answering result.
func (h *History) AddToolResult(result ToolResult) {
	h.Add(NewToolTurn(result))
}

func (h *History) Len() int { return len(h.Turns) }

// Clone returns a copy with an independent backing slice.
func (h History) Clone() History {
	return NewHistory(h.Turns...)
}

// Last returns the final turn and false when the history is empty.
func (h History) Last() (ConversationTurn, bool) {
	if len(h.Turns) == 0 {
		return ConversationTurn{}, false
	}
	return h.Turns[len(h.Turns)-1], true
}
