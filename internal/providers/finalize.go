package providers

import (
	"strings"

	"github.com/google/uuid"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// BypassReasoningToken is Google's documented placeholder accepted in place
// of a real thought signature. It carries no meaning.
const BypassReasoningToken = "skip_thought_signature_validator"

// signatureFamilies are the Gemini model prefixes that reject a function call
// without a thought signature.
var signatureFamilies = []string{"gemini-3", "gemini-2.5"}

// Finalizer applies provider-specific fixes to a parsed assistant turn.
type Finalizer interface {
	Finalize(model string, turn *schema.ConversationTurn)
}

// FinalizerFor returns the strategy for a wire format.
func FinalizerFor(wire WireFormat) Finalizer {
	switch wire {
	case WireGoogle:
		return googleFinalizer{}
	case WireOpenAI:
		return callIDFinalizer{}
	}
	return nopFinalizer{}
}

type nopFinalizer struct{}

func (nopFinalizer) Finalize(string, *schema.ConversationTurn) {}

// callIDFinalizer fills in missing or repeated call ids. Some
// OpenAI-compatible local servers return empty ids.
type callIDFinalizer struct{}

func (callIDFinalizer) Finalize(_ string, turn *schema.ConversationTurn) {
	seen := make(map[string]struct{}, len(turn.ToolCalls))
	for i := range turn.ToolCalls {
		id := turn.ToolCalls[i].ID
		if _, dup := seen[id]; id == "" || dup {
			id = newCallID()
			turn.ToolCalls[i].ID = id
		}
		seen[id] = struct{}{}
	}
}

// googleFinalizer guarantees the first call of a batch carries a thought
// signature when the model family requires one.
type googleFinalizer struct{}

func (googleFinalizer) Finalize(model string, turn *schema.ConversationTurn) {
	if !turn.HasToolCalls() || !RequiresReasoningToken(model) {
		return
	}
	if turn.ToolCalls[0].ReasoningToken == "" {
		turn.ToolCalls[0].ReasoningToken = BypassReasoningToken
	}
}

// RequiresReasoningToken reports whether model belongs to a family that
// mandates a thought signature on the first function call.
func RequiresReasoningToken(model string) bool {
	m := strings.ToLower(model)
	m = strings.TrimPrefix(m, "models/")
	if _, after, ok := strings.Cut(m, "/"); ok {
		m = after
	}
	for _, fam := range signatureFamilies {
		if strings.HasPrefix(m, fam) {
			return true
		}
	}
	return false
}

func newCallID() string {
	return "call_" + uuid.NewString()
}
