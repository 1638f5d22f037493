// Package compiler statically validates a patch graph and deterministically
// emits an equivalent textual synthesis program. The compiler holds no
// mutable state across calls and is safe for concurrent use.
package compiler

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/cbegin/synthgraph-go/internal/opcode"
	"github.com/cbegin/synthgraph-go/internal/patch"
)

const (
	softwareBufferFrames = 128
	hardwareBufferFrames = 512
)

// InstrumentTarget is one voice of a compile request: a patch bound to a
// MIDI channel. Channel 0 receives every channel (omni).
type InstrumentTarget struct {
	Patch       *patch.Patch
	MidiChannel int
}

// Program is a successful compile result.
type Program struct {
	// Orchestra is the emitted instrument program text.
	Orchestra string
	// Document is the full engine document wrapping the orchestra with
	// runtime options and the always-on score tail.
	Document string
	// Diagnostics is empty on success; failures are reported through the
	// *Diagnostics error instead.
	Diagnostics []string
}

// Compiler turns instrument targets into a Program. The registry is read
// only; a nil registry falls back to the built-in opcode set.
type Compiler struct {
	registry *opcode.Registry
}

func New(registry *opcode.Registry) *Compiler {
	if registry == nil {
		registry = opcode.NewRegistry()
	}
	return &Compiler{registry: registry}
}

// Compile validates and renders every target into one bundled program.
// The engine header (sample rate, block size, channel count, full-scale
// amplitude) comes from the first target's engine configuration; later
// targets' configurations are ignored for compatibility with existing
// bundles. On failure the returned error is a *Diagnostics carrying every
// problem found.
func (c *Compiler) Compile(targets []InstrumentTarget, midiInput, midiModule string) (*Program, error) {
	diags := &Diagnostics{}
	if len(targets) == 0 {
		diags.addf("compile request contains no instruments")
		return nil, diags
	}

	boundChannels := map[int]int{}
	for i, t := range targets {
		if t.Patch == nil {
			diags.addf("instrument %d carries no patch", i+1)
			continue
		}
		ch := t.MidiChannel
		if ch == 0 {
			continue
		}
		if ch < 1 || ch > 16 {
			diags.addf("instrument %d has invalid MIDI channel %d", i+1, ch)
			continue
		}
		if prev, dup := boundChannels[ch]; dup {
			diags.addf("instruments %d and %d are both bound to MIDI channel %d", prev, i+1, ch)
			continue
		}
		boundChannels[ch] = i + 1
	}
	if err := diags.asError(); err != nil {
		return nil, err
	}

	blocks := make([]string, 0, len(targets))
	massigns := make([]string, 0, len(targets))
	for i, t := range targets {
		instr := i + 1
		block, instrDiags := c.compileInstrument(&t.Patch.Graph, instr)
		if !instrDiags.empty() {
			for _, msg := range instrDiags.Messages {
				if len(targets) > 1 {
					msg = fmt.Sprintf("instrument %d: %s", instr, msg)
				}
				diags.Messages = append(diags.Messages, msg)
			}
			continue
		}
		blocks = append(blocks, block)
		massigns = append(massigns, fmt.Sprintf("massign %d, %d", t.MidiChannel, instr))
	}
	if err := diags.asError(); err != nil {
		return nil, err
	}

	engine := targets[0].Patch.Graph.Engine
	engine.Normalize()
	header := []string{
		fmt.Sprintf("sr = %d", engine.SampleRate),
		fmt.Sprintf("ksmps = %d", engine.Ksmps),
		fmt.Sprintf("nchnls = %d", engine.Channels),
		fmt.Sprintf("0dbfs = %s", strconv.FormatFloat(engine.ZeroDBFS, 'g', -1, 64)),
	}

	var orc strings.Builder
	orc.WriteString(strings.Join(header, "\n"))
	orc.WriteString("\n\n")
	orc.WriteString(strings.Join(massigns, "\n"))
	orc.WriteString("\n\n")
	orc.WriteString(strings.Join(blocks, "\n\n"))

	program := orc.String()
	return &Program{
		Orchestra:   program,
		Document:    wrapDocument(program, midiInput, midiModule, runtime.GOOS, softwareBufferFrames, hardwareBufferFrames),
		Diagnostics: []string{},
	}, nil
}

// compileInstrument validates one graph and emits its instrument block.
// Unknown opcodes and a wrong sink count abort before the later passes, which
// require complete node resolution; every other pass keeps collecting.
func (c *Compiler) compileInstrument(graph *patch.Graph, instr int) (string, *Diagnostics) {
	diags := &Diagnostics{}

	if err := graph.Validate(); err != nil {
		diags.addf("%v", err)
		return "", diags
	}
	if len(graph.Nodes) == 0 {
		diags.addf("patch graph is empty; add opcode nodes before compiling")
		return "", diags
	}

	resolved := make(map[string]*resolvedNode, len(graph.Nodes))
	for i := range graph.Nodes {
		node := &graph.Nodes[i]
		spec, ok := c.registry.Lookup(node.Opcode)
		if !ok {
			diags.addf("node '%s' references unknown opcode '%s'", node.ID, node.Opcode)
			continue
		}
		resolved[node.ID] = &resolvedNode{node: *node, spec: spec}
	}
	if !diags.empty() {
		return "", diags
	}

	sinks := 0
	for _, rn := range resolved {
		if rn.spec.IsSink() {
			sinks++
		}
	}
	if sinks != 1 {
		diags.addf("patch must contain exactly one output sink node, found %d", sinks)
		return "", diags
	}

	formulas, err := graph.Formulas()
	if err != nil {
		diags.addf("%v", err)
		return "", diags
	}

	inbound := make(map[patch.PortKey][]patch.Connection)
	for _, conn := range graph.Connections {
		if _, ok := resolved[conn.FromNode]; !ok {
			continue
		}
		if _, ok := resolved[conn.ToNode]; !ok {
			continue
		}
		key := patch.PortKey{Node: conn.ToNode, Port: conn.ToPort}
		inbound[key] = append(inbound[key], conn)
	}

	c.validateConnections(graph.Connections, resolved, diags)
	c.validateFormulaKeys(formulas, resolved, diags)
	if !diags.empty() {
		return "", diags
	}

	ordered, acyclic := topologicalOrder(graph.Nodes, graph.Connections, resolved)
	if !acyclic {
		diags.addf("graph contains a cycle; add explicit delay/feedback opcodes to break direct recursion")
		return "", diags
	}

	emitter := newInstrumentEmitter(diags)
	for _, id := range ordered {
		emitter.emitNode(resolved[id], inbound, formulas)
	}
	if !diags.empty() {
		return "", diags
	}

	var block strings.Builder
	fmt.Fprintf(&block, "instr %d\n", instr)
	for _, line := range emitter.lines {
		if line == "" {
			block.WriteString("\n")
			continue
		}
		block.WriteString("  " + line + "\n")
	}
	block.WriteString("endin")
	return block.String(), diags
}

func (c *Compiler) validateConnections(conns []patch.Connection, resolved map[string]*resolvedNode, diags *Diagnostics) {
	for _, conn := range conns {
		source, ok := resolved[conn.FromNode]
		if !ok {
			diags.addf("connection source node not found: '%s'", conn.FromNode)
			continue
		}
		target, ok := resolved[conn.ToNode]
		if !ok {
			diags.addf("connection target node not found: '%s'", conn.ToNode)
			continue
		}
		sourcePort, ok := source.spec.Output(conn.FromPort)
		if !ok {
			diags.addf("unknown source port '%s' on node '%s' (%s)",
				conn.FromPort, source.node.ID, source.spec.Name)
			continue
		}
		targetPort, ok := target.spec.Input(conn.ToPort)
		if !ok {
			diags.addf("unknown target port '%s' on node '%s' (%s)",
				conn.ToPort, target.node.ID, target.spec.Name)
			continue
		}
		if !compatibleRate(sourcePort.Type, targetPort.Type, targetPort.Accepts) {
			diags.addf("signal type mismatch: %s.%s (%s) -> %s.%s (%s)",
				source.node.ID, sourcePort.ID, sourcePort.Type,
				target.node.ID, targetPort.ID, targetPort.Type)
		}
	}
}

func (c *Compiler) validateFormulaKeys(formulas patch.FormulaTable, resolved map[string]*resolvedNode, diags *Diagnostics) {
	for key := range formulas {
		rn, ok := resolved[key.Node]
		if !ok {
			diags.addf("merge formula references unknown node '%s'", key.Node)
			continue
		}
		if _, ok := rn.spec.Input(key.Port); !ok {
			diags.addf("merge formula references unknown input '%s' on node '%s' (%s)",
				key.Port, rn.node.ID, rn.spec.Name)
		}
	}
}

// wrapDocument surrounds the orchestra with engine options and a minimal
// always-on score. On darwin the engine talks to CoreAudio/CoreMIDI, so the
// configured MIDI module is overridden there.
func wrapDocument(orc, midiInput, midiModule, goos string, softwareBuffer, hardwareBuffer int) string {
	options := fmt.Sprintf("-d -odac -M%s", midiInput)
	if goos == "darwin" {
		options += " -+rtmidi=coremidi -+rtaudio=auhal"
	} else {
		options += " -+rtmidi=" + midiModule
	}
	options += fmt.Sprintf(" -b %d -B%d", softwareBuffer, hardwareBuffer)

	return strings.Join([]string{
		"<CsoundSynthesizer>",
		"<CsOptions>",
		options,
		"</CsOptions>",
		"<CsInstruments>",
		orc,
		"</CsInstruments>",
		"<CsScore>",
		"f 1 0 16384 10 1",
		"f 0 z",
		"</CsScore>",
		"</CsoundSynthesizer>",
	}, "\n")
}
