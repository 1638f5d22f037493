// Package opcode defines the read-only registry of synthesis building blocks:
// each opcode names its typed input/output ports and carries the code template
// the compiler fills when emitting an instrument.
package opcode

import (
	"sort"
	"strconv"
)

// SignalType classifies how often a value updates in the synthesis engine.
// The values double as the variable-name prefixes in emitted code.
type SignalType string

const (
	Audio   SignalType = "a"
	Control SignalType = "k"
	Init    SignalType = "i"
	String  SignalType = "S"
	FTable  SignalType = "f"
)

// LiteralKind tags the concrete type held by a Literal.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota + 1
	LiteralString
	LiteralBool
)

// Literal is a tagged constant value: a node parameter or a port default.
type Literal struct {
	Kind LiteralKind
	Num  float64
	Str  string
	Bool bool
}

func Number(v float64) Literal { return Literal{Kind: LiteralNumber, Num: v} }
func Text(v string) Literal    { return Literal{Kind: LiteralString, Str: v} }
func Flag(v bool) Literal      { return Literal{Kind: LiteralBool, Bool: v} }

// NumberText renders a numeric literal the way the synthesis language expects:
// integral values without a trailing ".0".
func (l Literal) NumberText() string {
	return strconv.FormatFloat(l.Num, 'g', -1, 64)
}

// PortSpec describes one input or output of an opcode.
type PortSpec struct {
	ID       string
	Name     string
	Type     SignalType
	Required bool
	Default  *Literal
	// Accepts lists signal types the port takes beyond its own; used by
	// polymorphic inputs such as an oscillator frequency.
	Accepts []SignalType
}

// OpcodeSpec describes a unit generator: its ports and code template.
// Template placeholders use "{portID}" syntax.
type OpcodeSpec struct {
	Name        string
	Category    string
	Description string
	Inputs      []PortSpec
	Outputs     []PortSpec
	Template    string
	Tags        []string
}

// IsSink reports whether the opcode terminates a signal chain.
func (s *OpcodeSpec) IsSink() bool { return len(s.Outputs) == 0 }

// Input returns the input port with the given id.
func (s *OpcodeSpec) Input(id string) (PortSpec, bool) { return findPort(s.Inputs, id) }

// Output returns the output port with the given id.
func (s *OpcodeSpec) Output(id string) (PortSpec, bool) { return findPort(s.Outputs, id) }

func findPort(ports []PortSpec, id string) (PortSpec, bool) {
	for _, p := range ports {
		if p.ID == id {
			return p, true
		}
	}
	return PortSpec{}, false
}

// Registry maps opcode names to their specs. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	byName map[string]*OpcodeSpec
}

// NewRegistry returns a registry populated with the built-in opcode set.
func NewRegistry() *Registry {
	r := &Registry{byName: map[string]*OpcodeSpec{}}
	for _, spec := range builtinOpcodes() {
		r.byName[spec.Name] = spec
	}
	return r
}

// Lookup resolves an opcode by name.
func (r *Registry) Lookup(name string) (*OpcodeSpec, bool) {
	spec, ok := r.byName[name]
	return spec, ok
}

// List returns all opcodes, optionally filtered by category, sorted by
// (category, name).
func (r *Registry) List(category string) []*OpcodeSpec {
	out := make([]*OpcodeSpec, 0, len(r.byName))
	for _, spec := range r.byName {
		if category != "" && spec.Category != category {
			continue
		}
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Categories returns the opcode count per category.
func (r *Registry) Categories() map[string]int {
	counts := map[string]int{}
	for _, spec := range r.byName {
		counts[spec.Category]++
	}
	return counts
}
