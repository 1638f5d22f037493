package compiler

import "github.com/cbegin/synthgraph-go/internal/opcode"

// compatibleRate reports whether a source port's signal rate may feed a
// target port. A target takes a rate it explicitly accepts or its own rate;
// the only implicit promotion is init -> control.
func compatibleRate(source, target opcode.SignalType, accepts []opcode.SignalType) bool {
	for _, t := range accepts {
		if source == t {
			return true
		}
	}
	if source == target {
		return true
	}
	return source == opcode.Init && target == opcode.Control
}
