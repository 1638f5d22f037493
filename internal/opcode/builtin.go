package opcode

func num(v float64) *Literal { l := Number(v); return &l }

func builtinOpcodes() []*OpcodeSpec {
	return []*OpcodeSpec{
		{
			Name:        "midi_note",
			Category:    "midi",
			Description: "Extract MIDI note frequency and velocity amplitude.",
			Inputs: []PortSpec{
				{ID: "gain", Name: "Gain", Type: Init, Required: false, Default: num(1)},
			},
			Outputs: []PortSpec{
				{ID: "kfreq", Name: "kFreq", Type: Control, Required: true},
				{ID: "kamp", Name: "kAmp", Type: Control, Required: true},
			},
			Template: "{kfreq} cpsmidi\n{kamp} ampmidi {gain}",
			Tags:     []string{"performance", "source"},
		},
		{
			Name:        "adsr",
			Category:    "envelope",
			Description: "Control-rate ADSR envelope.",
			Inputs: []PortSpec{
				{ID: "iatt", Name: "Attack", Type: Init, Required: true, Default: num(0.01)},
				{ID: "idec", Name: "Decay", Type: Init, Required: true, Default: num(0.15)},
				{ID: "islev", Name: "Sustain", Type: Init, Required: true, Default: num(0.7)},
				{ID: "irel", Name: "Release", Type: Init, Required: true, Default: num(0.2)},
			},
			Outputs:  []PortSpec{{ID: "kenv", Name: "kEnv", Type: Control, Required: true}},
			Template: "{kenv} madsr {iatt}, {idec}, {islev}, {irel}",
			Tags:     []string{"control", "modulation"},
		},
		{
			Name:        "oscili",
			Category:    "oscillator",
			Description: "Classic interpolating oscillator.",
			Inputs: []PortSpec{
				{ID: "amp", Name: "Amplitude", Type: Control, Required: true, Default: num(0.4)},
				{
					ID: "freq", Name: "Frequency", Type: Control, Required: true, Default: num(440),
					Accepts: []SignalType{Audio, Control, Init},
				},
				{ID: "ifn", Name: "FunctionTable", Type: Init, Required: true, Default: num(1)},
			},
			Outputs:  []PortSpec{{ID: "asig", Name: "aSig", Type: Audio, Required: true}},
			Template: "{asig} oscili {amp}, {freq}, {ifn}",
			Tags:     []string{"sound", "source"},
		},
		{
			Name:        "vco",
			Category:    "oscillator",
			Description: "Band-limited voltage-controlled oscillator.",
			Inputs: []PortSpec{
				{ID: "amp", Name: "Amplitude", Type: Control, Required: true, Default: num(0.4)},
				{
					ID: "freq", Name: "Frequency", Type: Control, Required: true, Default: num(440),
					Accepts: []SignalType{Audio, Control, Init},
				},
				{ID: "iwave", Name: "Waveform", Type: Init, Required: false, Default: num(1)},
				{ID: "kpw", Name: "PulseWidth", Type: Control, Required: false, Default: num(0.5)},
				{ID: "ifn", Name: "FunctionTable", Type: Init, Required: false},
			},
			Outputs:  []PortSpec{{ID: "asig", Name: "aSig", Type: Audio, Required: true}},
			Template: "{asig} vco {amp}, {freq}, {iwave}, {kpw}, {ifn}",
			Tags:     []string{"sound", "source"},
		},
		{
			Name:        "ftgen",
			Category:    "tables",
			Description: "Create a function table at init time using a GEN routine.",
			Inputs: []PortSpec{
				{ID: "ifn", Name: "TableNumber", Type: Init, Required: true, Default: num(1)},
				{ID: "itime", Name: "StartTime", Type: Init, Required: true, Default: num(0)},
				{ID: "isize", Name: "TableSize", Type: Init, Required: true, Default: num(16384)},
				{ID: "igen", Name: "GenRoutine", Type: Init, Required: true, Default: num(10)},
				{ID: "iarg1", Name: "Arg1", Type: Init, Required: true, Default: num(1)},
				{ID: "iarg2", Name: "Arg2", Type: Init, Required: false},
				{ID: "iarg3", Name: "Arg3", Type: Init, Required: false},
				{ID: "iarg4", Name: "Arg4", Type: Init, Required: false},
				{ID: "iarg5", Name: "Arg5", Type: Init, Required: false},
				{ID: "iarg6", Name: "Arg6", Type: Init, Required: false},
				{ID: "iarg7", Name: "Arg7", Type: Init, Required: false},
				{ID: "iarg8", Name: "Arg8", Type: Init, Required: false},
			},
			Outputs: []PortSpec{{ID: "ift", Name: "iFn", Type: Init, Required: true}},
			Template: "{ift} ftgen {ifn}, {itime}, {isize}, {igen}, {iarg1}, " +
				"{iarg2}, {iarg3}, {iarg4}, {iarg5}, {iarg6}, {iarg7}, {iarg8}",
			Tags: []string{"source", "tables", "gen"},
		},
		{
			Name:        "cpsmidi",
			Category:    "midi",
			Description: "Read active MIDI note pitch as cycles-per-second.",
			Outputs:     []PortSpec{{ID: "kfreq", Name: "iFreq", Type: Init, Required: true}},
			Template:    "{kfreq} cpsmidi",
			Tags:        []string{"performance", "source"},
		},
		{
			Name:        "midictrl",
			Category:    "midi",
			Description: "Read a MIDI controller value with optional scaling.",
			Inputs: []PortSpec{
				{ID: "inum", Name: "Controller", Type: Init, Required: true, Default: num(1)},
				{ID: "imin", Name: "Min", Type: Init, Required: false, Default: num(0)},
				{ID: "imax", Name: "Max", Type: Init, Required: false, Default: num(127)},
			},
			Outputs:  []PortSpec{{ID: "kval", Name: "kVal", Type: Control, Required: true}},
			Template: "{kval} midictrl {inum}, {imin}, {imax}",
			Tags:     []string{"performance", "modulation"},
		},
		{
			Name:        "k_mul",
			Category:    "math",
			Description: "Multiply two control signals.",
			Inputs: []PortSpec{
				{ID: "a", Name: "A", Type: Control, Required: true},
				{ID: "b", Name: "B", Type: Control, Required: true},
			},
			Outputs:  []PortSpec{{ID: "kout", Name: "kOut", Type: Control, Required: true}},
			Template: "{kout} = ({a}) * ({b})",
			Tags:     []string{"utility"},
		},
		{
			Name:        "a_mul",
			Category:    "math",
			Description: "Multiply two audio signals.",
			Inputs: []PortSpec{
				{ID: "a", Name: "A", Type: Audio, Required: true},
				{ID: "b", Name: "B", Type: Audio, Required: true},
			},
			Outputs:  []PortSpec{{ID: "aout", Name: "aOut", Type: Audio, Required: true}},
			Template: "{aout} = ({a}) * ({b})",
			Tags:     []string{"utility"},
		},
		{
			Name:        "k_to_a",
			Category:    "utility",
			Description: "Interpolate control signal to audio-rate.",
			Inputs:      []PortSpec{{ID: "kin", Name: "kIn", Type: Control, Required: true}},
			Outputs:     []PortSpec{{ID: "aout", Name: "aOut", Type: Audio, Required: true}},
			Template:    "{aout} interp {kin}",
			Tags:        []string{"conversion"},
		},
		{
			Name:        "moogladder",
			Category:    "filter",
			Description: "Moog ladder low-pass filter.",
			Inputs: []PortSpec{
				{ID: "ain", Name: "aIn", Type: Audio, Required: true},
				{ID: "kcf", Name: "Cutoff", Type: Control, Required: true, Default: num(2000)},
				{ID: "kres", Name: "Resonance", Type: Control, Required: true, Default: num(0.2)},
			},
			Outputs:  []PortSpec{{ID: "aout", Name: "aOut", Type: Audio, Required: true}},
			Template: "{aout} moogladder {ain}, {kcf}, {kres}",
			Tags:     []string{"tone"},
		},
		{
			Name:        "mix2",
			Category:    "mixer",
			Description: "Mix two audio signals.",
			Inputs: []PortSpec{
				{ID: "a", Name: "Left", Type: Audio, Required: true},
				{ID: "b", Name: "Right", Type: Audio, Required: true},
			},
			Outputs:  []PortSpec{{ID: "aout", Name: "aOut", Type: Audio, Required: true}},
			Template: "{aout} = ({a}) + ({b})",
			Tags:     []string{"mix"},
		},
		{
			Name:        "outs",
			Category:    "output",
			Description: "Stereo output sink.",
			Inputs: []PortSpec{
				{ID: "left", Name: "Left", Type: Audio, Required: true},
				{ID: "right", Name: "Right", Type: Audio, Required: true},
			},
			Template: "outs {left}, {right}",
			Tags:     []string{"sink"},
		},
		{
			Name:        "const_k",
			Category:    "constants",
			Description: "Control-rate constant value.",
			Outputs:     []PortSpec{{ID: "kout", Name: "kOut", Type: Control, Required: true}},
			Template:    "{kout} = {value}",
			Tags:        []string{"source"},
		},
		{
			Name:        "const_i",
			Category:    "constants",
			Description: "Init-rate constant value.",
			Outputs:     []PortSpec{{ID: "iout", Name: "iOut", Type: Init, Required: true}},
			Template:    "{iout} = {value}",
			Tags:        []string{"source"},
		},
		{
			Name:        "const_a",
			Category:    "constants",
			Description: "Audio-rate constant value.",
			Outputs:     []PortSpec{{ID: "aout", Name: "aOut", Type: Audio, Required: true}},
			Template:    "{aout} = {value}",
			Tags:        []string{"source"},
		},
	}
}
