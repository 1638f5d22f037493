package patch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormulaInput binds one formula token to an inbound edge.
type FormulaInput struct {
	Token    string `json:"token"`
	FromNode string `json:"from_node_id"`
	FromPort string `json:"from_port_id"`
}

// Formula is a user-authored merge expression for one input port.
// An empty Expression means "sum all bound inputs left to right".
type Formula struct {
	Expression string         `json:"expression"`
	Inputs     []FormulaInput `json:"inputs"`
}

// PortKey addresses one input port of one node.
type PortKey struct {
	Node string
	Port string
}

func (k PortKey) String() string { return k.Node + "." + k.Port }

// FormulaTable holds the merge formulas of a graph keyed by input port.
type FormulaTable map[PortKey]Formula

// Formulas extracts the "input_formulas" sub-map of the layout into a typed
// table. Layout keys use the editor's "<nodeId>::<portId>" convention; they
// are split exactly once here so the compiler never handles string keys.
func (g *Graph) Formulas() (FormulaTable, error) {
	raw, ok := g.Layout["input_formulas"]
	if !ok {
		return FormulaTable{}, nil
	}
	var entries map[string]Formula
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("input_formulas layout entry is malformed: %w", err)
	}
	table := make(FormulaTable, len(entries))
	for key, formula := range entries {
		nodeID, portID, found := strings.Cut(key, "::")
		if !found || nodeID == "" || portID == "" {
			return nil, fmt.Errorf("input_formulas key '%s' is not of the form '<nodeId>::<portId>'", key)
		}
		table[PortKey{Node: nodeID, Port: portID}] = formula
	}
	return table, nil
}
