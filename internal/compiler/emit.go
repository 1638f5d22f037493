package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cbegin/synthgraph-go/internal/opcode"
	"github.com/cbegin/synthgraph-go/internal/patch"
)

// omitMarker fills unresolved optional inputs; it must only survive at the
// tail of a template line, where it is stripped together with its separator.
const omitMarker = "__SG_OPTIONAL_OMIT__"

var (
	identSanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_]`)
	placeholderRe   = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)
	trailingOmitRe  = regexp.MustCompile(`(?:,\s*` + omitMarker + `|\s+` + omitMarker + `)\s*$`)
	// Injection guard: string parameters feeding numeric signal paths may only
	// contain plain arithmetic over identifiers.
	safeLiteralRe = regexp.MustCompile(`^[-+*/(). 0-9a-zA-Z_]+$`)
)

// resolvedNode pairs a graph node with its opcode spec.
type resolvedNode struct {
	node patch.Node
	spec *opcode.OpcodeSpec
}

// instrumentEmitter renders one instrument's lines from topologically
// ordered nodes. Output variable names are rate-prefixed and counted per
// rate, which makes them unique across the instrument.
type instrumentEmitter struct {
	counters   map[opcode.SignalType]int
	outputVars map[patch.PortKey]string
	lines      []string
	diags      *Diagnostics
}

func newInstrumentEmitter(diags *Diagnostics) *instrumentEmitter {
	return &instrumentEmitter{
		counters:   map[opcode.SignalType]int{},
		outputVars: map[patch.PortKey]string{},
		diags:      diags,
	}
}

func (e *instrumentEmitter) allocate(nodeID string, port opcode.PortSpec) string {
	e.counters[port.Type]++
	return fmt.Sprintf("%s_%s_%s_%d",
		port.Type, sanitizeIdent(nodeID), sanitizeIdent(port.ID), e.counters[port.Type])
}

func sanitizeIdent(s string) string {
	return identSanitizeRe.ReplaceAllString(s, "_")
}

// emitNode resolves every port of one node and renders its template. Output
// variables are always allocated, even when inputs fail, so downstream nodes
// keep resolving their sources and the diagnostics stay exhaustive.
func (e *instrumentEmitter) emitNode(rn *resolvedNode, inbound map[patch.PortKey][]patch.Connection, formulas patch.FormulaTable) {
	before := len(e.diags.Messages)
	env := make(map[string]string, len(rn.spec.Inputs)+len(rn.spec.Outputs))

	for _, out := range rn.spec.Outputs {
		v := e.allocate(rn.node.ID, out)
		env[out.ID] = v
		e.outputVars[patch.PortKey{Node: rn.node.ID, Port: out.ID}] = v
	}

	for _, in := range rn.spec.Inputs {
		key := patch.PortKey{Node: rn.node.ID, Port: in.ID}
		conns := inbound[key]
		formula, hasFormula := formulas[key]

		if len(conns) > 0 || hasFormula {
			sources := make([]inboundSource, 0, len(conns))
			resolved := true
			for _, c := range conns {
				v, found := e.outputVars[patch.PortKey{Node: c.FromNode, Port: c.FromPort}]
				if !found {
					e.diags.addf("internal compiler error: unresolved source variable for %s.%s",
						c.FromNode, c.FromPort)
					resolved = false
					continue
				}
				sources = append(sources, inboundSource{conn: c, variable: v})
			}
			if !resolved {
				continue
			}
			if len(sources) == 0 {
				e.diags.addf("merge formula configured for input '%s' but the port has no inbound connections", key)
				continue
			}
			var f *patch.Formula
			if hasFormula {
				f = &formula
			}
			if rendered, ok := renderMergedInput(key, sources, f, e.diags); ok {
				env[in.ID] = rendered
			}
			continue
		}

		if lit, found := rn.node.Params[in.ID]; found {
			if text, ok := e.formatLiteral(lit, in.Type, rn.node.ID); ok {
				env[in.ID] = text
			}
			continue
		}
		if in.Default != nil {
			if text, ok := e.formatLiteral(*in.Default, in.Type, rn.node.ID); ok {
				env[in.ID] = text
			}
			continue
		}
		if in.Required {
			e.diags.addf("missing required input '%s' on node '%s' (%s)", in.ID, rn.node.ID, rn.spec.Name)
			continue
		}
		env[in.ID] = omitMarker
	}

	// Parameters not claimed by an input port feed template-only slots, such
	// as the constant opcodes' value.
	for key, lit := range rn.node.Params {
		if _, claimed := env[key]; claimed {
			continue
		}
		if text, ok := e.formatLiteral(lit, opcode.Control, rn.node.ID); ok {
			env[key] = text
		}
	}
	switch rn.spec.Name {
	case "const_a", "const_i", "const_k":
		if _, set := env["value"]; !set {
			env["value"] = "0"
		}
	}

	if len(e.diags.Messages) > before {
		return
	}

	rendered, ok := e.renderTemplate(rn, env)
	if !ok {
		return
	}
	e.lines = append(e.lines, fmt.Sprintf("; node:%s opcode:%s", rn.node.ID, rn.spec.Name))
	e.lines = append(e.lines, strings.Split(rendered, "\n")...)
}

func (e *instrumentEmitter) renderTemplate(rn *resolvedNode, env map[string]string) (string, bool) {
	pairs := make([]string, 0, len(env)*2)
	for k, v := range env {
		pairs = append(pairs, "{"+k+"}", v)
	}
	out := strings.NewReplacer(pairs...).Replace(rn.spec.Template)
	if missing := placeholderRe.FindString(out); missing != "" {
		e.diags.addf("template value missing for node '%s': '%s'", rn.node.ID, missing)
		return "", false
	}
	return e.stripOptionalMarkers(out)
}

// stripOptionalMarkers removes omitted optional arguments from line tails,
// including the comma or whitespace that introduced them. A marker anywhere
// else means the template places an optional argument before a required one,
// which the emitter cannot express.
func (e *instrumentEmitter) stripOptionalMarkers(rendered string) (string, bool) {
	lines := strings.Split(rendered, "\n")
	ok := true
	for i, raw := range lines {
		line := raw
		for {
			trimmed := trailingOmitRe.ReplaceAllString(line, "")
			if trimmed == line {
				break
			}
			line = trimmed
		}
		if strings.Contains(line, omitMarker) {
			e.diags.addf("unsupported optional argument placement in opcode template line: '%s'", raw)
			ok = false
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n"), ok
}

func (e *instrumentEmitter) formatLiteral(lit opcode.Literal, sig opcode.SignalType, nodeID string) (string, bool) {
	if sig == opcode.String {
		if lit.Kind == opcode.LiteralString {
			return `"` + strings.ReplaceAll(lit.Str, `"`, `\"`) + `"`, true
		}
		e.diags.addf("string signal input on node '%s' requires a string value", nodeID)
		return "", false
	}
	switch lit.Kind {
	case opcode.LiteralBool:
		if lit.Bool {
			return "1", true
		}
		return "0", true
	case opcode.LiteralNumber:
		return lit.NumberText(), true
	case opcode.LiteralString:
		if safeLiteralRe.MatchString(lit.Str) {
			return lit.Str, true
		}
		e.diags.addf("unsafe expression '%s' blocked by compiler", lit.Str)
		return "", false
	}
	e.diags.addf("unsupported literal value on node '%s'", nodeID)
	return "", false
}
