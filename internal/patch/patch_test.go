package patch

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
)

func TestEngineConfigNormalizeDefaults(t *testing.T) {
	var cfg EngineConfig
	cfg.Normalize()
	if cfg != DefaultEngineConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestEngineConfigNormalizeReconcilesKsmps(t *testing.T) {
	cfg := EngineConfig{SampleRate: 48000, ControlRate: 4800}
	cfg.Normalize()
	if cfg.Ksmps != 10 {
		t.Fatalf("expected ksmps 10, got %d", cfg.Ksmps)
	}

	cfg = EngineConfig{SampleRate: 44100, Ksmps: 10}
	cfg.Normalize()
	if cfg.ControlRate != 4410 {
		t.Fatalf("expected control rate derived from ksmps, got %d", cfg.ControlRate)
	}
}

func TestEngineConfigValidateRanges(t *testing.T) {
	cases := []EngineConfig{
		{SampleRate: 8000, ControlRate: 4400, Ksmps: 2},
		{SampleRate: 96000, ControlRate: 4400, Ksmps: 22},
		{SampleRate: 44100, ControlRate: 10, Ksmps: 4410},
	}
	for i, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected a range error for %+v", i, cfg)
		}
	}
	good := DefaultEngineConfig()
	if err := good.Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestGraphValidateRejectsDuplicateNodeIDs(t *testing.T) {
	g := Graph{Nodes: []Node{{ID: "osc", Opcode: "oscili"}, {ID: "osc", Opcode: "vco"}}}
	if err := g.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate node id") {
		t.Fatalf("expected a duplicate node id error, got %v", err)
	}
}

func TestGraphValidateEnforcesCaps(t *testing.T) {
	g := Graph{}
	for i := 0; i <= MaxNodes; i++ {
		g.Nodes = append(g.Nodes, Node{ID: "n" + strconv.Itoa(i), Opcode: "const_k"})
	}
	if err := g.Validate(); err == nil || !strings.Contains(err.Error(), "maximum node count") {
		t.Fatalf("expected a node cap error, got %v", err)
	}
}

func TestFormulasParsesLayoutEntries(t *testing.T) {
	layout := `{
		"input_formulas": {
			"mixer::amp": {
				"expression": "(env * osc) + 0.1",
				"inputs": [
					{"token": "env", "from_node_id": "adsr1", "from_port_id": "kenv"},
					{"token": "osc", "from_node_id": "lfo1", "from_port_id": "kout"}
				]
			}
		}
	}`
	g := Graph{Layout: map[string]json.RawMessage{}}
	if err := json.Unmarshal([]byte(layout), &g.Layout); err != nil {
		t.Fatalf("layout fixture is invalid: %v", err)
	}

	table, err := g.Formulas()
	if err != nil {
		t.Fatalf("formulas failed: %v", err)
	}
	f, ok := table[PortKey{Node: "mixer", Port: "amp"}]
	if !ok {
		t.Fatalf("missing formula for mixer.amp, table %v", table)
	}
	if f.Expression != "(env * osc) + 0.1" || len(f.Inputs) != 2 {
		t.Fatalf("unexpected formula %+v", f)
	}
	if f.Inputs[0].Token != "env" || f.Inputs[0].FromNode != "adsr1" {
		t.Fatalf("unexpected first binding %+v", f.Inputs[0])
	}
}

func TestFormulasRejectsMalformedKeys(t *testing.T) {
	g := Graph{Layout: map[string]json.RawMessage{
		"input_formulas": json.RawMessage(`{"no-separator": {"expression": "x"}}`),
	}}
	if _, err := g.Formulas(); err == nil {
		t.Fatalf("expected an error for a key without '::'")
	}
}

func TestFormulasAbsentLayoutYieldsEmptyTable(t *testing.T) {
	g := Graph{}
	table, err := g.Formulas()
	if err != nil || len(table) != 0 {
		t.Fatalf("expected an empty table, got %v (%v)", table, err)
	}
}

func TestGraphDocumentUnmarshalUsesWireNames(t *testing.T) {
	doc := `{
		"name": "demo",
		"graph": {
			"nodes": [{"id": "osc", "opcode": "oscili", "params": {"freq": 220}}],
			"connections": [{
				"from_node_id": "osc", "from_port_id": "asig",
				"to_node_id": "out", "to_port_id": "left"
			}],
			"engine_config": {"sr": 48000, "control_rate": 4800, "nchnls": 2, "0dbfs": 1}
		}
	}`
	var p Patch
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p.Name != "demo" || len(p.Graph.Nodes) != 1 || len(p.Graph.Connections) != 1 {
		t.Fatalf("unexpected document %+v", p)
	}
	if p.Graph.Engine.SampleRate != 48000 {
		t.Fatalf("engine_config not decoded, got %+v", p.Graph.Engine)
	}
	conn := p.Graph.Connections[0]
	if conn.FromNode != "osc" || conn.ToPort != "left" {
		t.Fatalf("connection wire names not decoded, got %+v", conn)
	}
}
