package graph

// PinKind distinguishes control-flow pins from value-carrying pins.
type PinKind int

const (
	// PinExec carries control flow.
	PinExec PinKind = iota
	// PinData carries a value.
	PinData
)

func (k PinKind) String() string {
	if k == PinExec {
		return "exec"
	}
	return "data"
}

// Direction is the side of a node a pin sits on.
type Direction int

const (
	Input Direction = iota
	Output
)

// Pin is a statically declared slot on a node type. Pins are declared by the
// node's registry entry, never by the node instance.
type Pin struct {
	ID        string
	Kind      PinKind
	Direction Direction
	// Type is an informational value type hint for data pins ("string",
	// "number", "boolean", "array", "object", "any").
	Type string
}

// Node is one vertex of a graph. Data holds the literal parameters used as
// pin values when a pin is left unconnected.
type Node struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Connection is a directed edge from an output pin to an input pin.
type Connection struct {
	SourceNodeID string `json:"sourceNodeId"`
	SourcePinID  string `json:"sourcePinId"`
	TargetNodeID string `json:"targetNodeId"`
	TargetPinID  string `json:"targetPinId"`
}

// VarType is the declared type of a graph variable.
type VarType string

const (
	VarNumber  VarType = "number"
	VarBoolean VarType = "boolean"
	VarArray   VarType = "array"
	VarString  VarType = "string"
)

// Variable is a graph-scoped variable declaration with its literal default.
type Variable struct {
	Name  string  `json:"name"`
	Type  VarType `json:"type"`
	Value any     `json:"value"`
}

// Graph is the parsed structure of one user-authored graph.
type Graph struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name,omitempty"`
	Nodes       []*Node      `json:"nodes"`
	Connections []Connection `json:"connections"`
	Variables   []Variable   `json:"variables,omitempty"`
}
