package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	synthgraph "github.com/cbegin/synthgraph-go"
)

func main() {
	var (
		midiInput  = flag.String("midi-input", "0", "MIDI input device passed to the engine options")
		midiModule = flag.String("midi-module", "portmidi", "realtime MIDI module (ignored on darwin)")
		orcOnly    = flag.Bool("orc", false, "print the orchestra only, without the document wrapper")
		outPath    = flag.String("o", "", "write the output to a file instead of stdout")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: %s [flags] patch.json[:channel] [patch.json[:channel] ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	targets, err := loadTargets(flag.Args())
	if err != nil {
		log.Fatal(err)
	}

	session := synthgraph.NewSession(
		synthgraph.WithMIDIInput(*midiInput),
		synthgraph.WithMIDIModule(*midiModule),
	)
	defer session.Close()

	program, err := session.Compile(targets)
	if err != nil {
		var diags *synthgraph.Diagnostics
		if errors.As(err, &diags) {
			for _, msg := range diags.Messages {
				fmt.Fprintln(os.Stderr, "error:", msg)
			}
			os.Exit(1)
		}
		log.Fatal(err)
	}

	text := program.Document
	if *orcOnly {
		text = program.Orchestra
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(text), 0o644); err != nil {
			log.Fatal(err)
		}
		return
	}
	fmt.Println(text)
}

// loadTargets reads each argument as a patch JSON file with an optional
// ":channel" suffix. Channel 0 binds the instrument to all channels.
func loadTargets(args []string) ([]synthgraph.InstrumentTarget, error) {
	targets := make([]synthgraph.InstrumentTarget, 0, len(args))
	for _, arg := range args {
		path, channel := splitChannel(arg)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var p synthgraph.Patch
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		targets = append(targets, synthgraph.InstrumentTarget{Patch: &p, MidiChannel: channel})
	}
	return targets, nil
}

func splitChannel(arg string) (string, int) {
	idx := strings.LastIndex(arg, ":")
	if idx < 0 {
		return arg, 0
	}
	channel, err := strconv.Atoi(arg[idx+1:])
	if err != nil {
		return arg, 0
	}
	return arg[:idx], channel
}
