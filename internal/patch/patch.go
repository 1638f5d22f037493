// Package patch models a node-graph document: opcode instances, the
// connections between their ports, the engine configuration, and the
// free-form editor layout carrying per-input merge formulas.
package patch

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cbegin/synthgraph-go/internal/opcode"
)

const (
	MaxNodes       = 500
	MaxConnections = 2000

	AudioRateMin   = 22000
	AudioRateMax   = 48000
	ControlRateMin = 25
	ControlRateMax = 48000
)

// Node is one opcode instance in a graph. Params maps port ids to literal
// parameter values.
type Node struct {
	ID     string                    `json:"id"`
	Opcode string                    `json:"opcode"`
	Params map[string]opcode.Literal `json:"params,omitempty"`
}

// Connection routes one node's output port to another node's input port.
type Connection struct {
	FromNode string `json:"from_node_id"`
	FromPort string `json:"from_port_id"`
	ToNode   string `json:"to_node_id"`
	ToPort   string `json:"to_port_id"`
}

// EngineConfig carries the synthesis-engine header values.
type EngineConfig struct {
	SampleRate  int     `json:"sr"`
	ControlRate int     `json:"control_rate"`
	Ksmps       int     `json:"ksmps"`
	Channels    int     `json:"nchnls"`
	ZeroDBFS    float64 `json:"0dbfs"`
}

// DefaultEngineConfig matches the values a fresh patch document ships with.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SampleRate:  44100,
		ControlRate: 4400,
		Ksmps:       10,
		Channels:    2,
		ZeroDBFS:    1.0,
	}
}

// Normalize fills zero values with defaults and reconciles ksmps against the
// control rate (ksmps = round(sr / control_rate), minimum 1).
func (c *EngineConfig) Normalize() {
	def := DefaultEngineConfig()
	if c.SampleRate == 0 {
		c.SampleRate = def.SampleRate
	}
	if c.ControlRate == 0 && c.Ksmps > 0 {
		derived := int(math.Round(float64(c.SampleRate) / float64(c.Ksmps)))
		if derived >= ControlRateMin && derived <= ControlRateMax {
			c.ControlRate = derived
		}
	}
	if c.ControlRate == 0 {
		c.ControlRate = def.ControlRate
	}
	if c.Channels == 0 {
		c.Channels = def.Channels
	}
	if c.ZeroDBFS == 0 {
		c.ZeroDBFS = def.ZeroDBFS
	}
	c.Ksmps = int(math.Round(float64(c.SampleRate) / float64(c.ControlRate)))
	if c.Ksmps < 1 {
		c.Ksmps = 1
	}
}

// Validate checks the engine rates against the supported ranges.
func (c *EngineConfig) Validate() error {
	if c.SampleRate < AudioRateMin || c.SampleRate > AudioRateMax {
		return fmt.Errorf("audio sample rate must be between %d and %d", AudioRateMin, AudioRateMax)
	}
	if c.ControlRate < ControlRateMin || c.ControlRate > ControlRateMax {
		return fmt.Errorf("control rate must be between %d and %d", ControlRateMin, ControlRateMax)
	}
	if c.Ksmps < 1 {
		return fmt.Errorf("ksmps must be >= 1")
	}
	return nil
}

// Graph is the compilable part of a patch document.
type Graph struct {
	Nodes       []Node                     `json:"nodes"`
	Connections []Connection               `json:"connections"`
	Layout      map[string]json.RawMessage `json:"ui_layout,omitempty"`
	Engine      EngineConfig               `json:"engine_config"`
}

// Validate enforces the structural document invariants: unique node ids and
// the node/connection caps. Connection endpoint resolution is left to the
// compiler, which reports it as diagnostics.
func (g *Graph) Validate() error {
	if len(g.Nodes) > MaxNodes {
		return fmt.Errorf("patch exceeds maximum node count (%d)", MaxNodes)
	}
	if len(g.Connections) > MaxConnections {
		return fmt.Errorf("patch exceeds maximum connection count (%d)", MaxConnections)
	}
	seen := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node ids must be non-empty")
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate node id '%s'", n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	g.Engine.Normalize()
	return g.Engine.Validate()
}

// Patch is a named graph document.
type Patch struct {
	Name  string `json:"name"`
	Graph Graph  `json:"graph"`
}
