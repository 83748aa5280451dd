package schema

// ToolCall is one function call issued by the model in an assistant turn.
// ReasoningToken is only set on the first call of a parallel batch, and only
// by providers that require a reasoning-continuity token.
type ToolCall struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Arguments      map[string]any `json:"arguments"`
	ReasoningToken string         `json:"reasoningToken,omitempty"`
}

// Metadata keys the dispatcher and handlers put on results.
const (
	MetaRetryable = "retryable"
	MetaErrorKind = "errorKind"
	MetaSessionID = "sessionId"
)

// ToolResult is the structured outcome of one tool call. DurationMs is
// always set, including for failures.
type ToolResult struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Success    bool           `json:"success"`
	Output     string         `json:"output"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Retryable reports the handler's retry classification. Results without the
// flag are not retryable.
func (r ToolResult) Retryable() bool {
	v, _ := r.Metadata[MetaRetryable].(bool)
	return v
}

// ErrorKind returns the classified failure kind, or "".
func (r ToolResult) ErrorKind() string {
	v, _ := r.Metadata[MetaErrorKind].(string)
	return v
}

// ParamType is a JSON-schema primitive type name.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Property is one named parameter. Items describes array elements.
type Property struct {
	Name        string
	Type        ParamType
	Description string
	Enum        []string
	Items       *Property
}

// Parameters is an ordered parameter list. Order is part of the contract:
// providers render it to the model in this order.
type Parameters struct {
	Properties []Property
	Required   []string
}

// ToolDefinition is the canonical, provider-independent tool declaration.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  Parameters
}

// Param is a shorthand constructor for a scalar property.
func Param(name string, typ ParamType, description string) Property {
	return Property{Name: name, Type: typ, Description: description}
}

// ArrayParam declares an array property whose elements are of itemType.
func ArrayParam(name string, itemType ParamType, description string) Property {
	return Property{Name: name, Type: TypeArray, Description: description, Items: &Property{Type: itemType}}
}

// EnumParam declares a string property restricted to values.
func EnumParam(name, description string, values ...string) Property {
	return Property{Name: name, Type: TypeString, Description: description, Enum: values}
}
