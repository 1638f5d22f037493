package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	synthgraph "github.com/cbegin/synthgraph-go"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a sequencer configuration JSON file")
		port       = flag.String("port", "", "MIDI output port index or name (empty = print messages to stdout)")
		listPorts  = flag.Bool("list-ports", false, "list available MIDI output ports and exit")
		duration   = flag.Duration("duration", 0, "stop after this long (0 = run until interrupted)")
		bpm        = flag.Int("bpm", 0, "override the configured tempo")
		quiet      = flag.Bool("quiet", false, "suppress per-step event output")
	)
	flag.Parse()

	if *listPorts {
		refs, err := synthgraph.ListMIDIOutputs()
		if err != nil {
			log.Fatal(err)
		}
		for _, ref := range refs {
			fmt.Printf("%s\t%s\n", ref.ID, ref.Name)
		}
		return
	}

	var cfg *synthgraph.SequencerConfig
	if *configPath != "" {
		loaded, err := loadConfig(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = &loaded
	}
	if *bpm > 0 {
		if cfg == nil {
			cfg = &synthgraph.SequencerConfig{}
		}
		cfg.BPM = *bpm
	}
	if cfg != nil && len(cfg.Tracks) == 0 {
		cfg.Tracks = []synthgraph.TrackConfig{{
			TrackID:     "voice-1",
			MidiChannel: 1,
			Pads:        []synthgraph.PadConfig{{PadIndex: 0, Steps: make([]synthgraph.Step, 16)}},
		}}
	}

	opts := []synthgraph.SessionOption{}
	if *port != "" {
		out, err := synthgraph.ResolveMIDIOutput(*port)
		if err != nil {
			log.Fatal(err)
		}
		sink := synthgraph.NewDriverSink(out)
		defer sink.Close()
		opts = append(opts, synthgraph.WithMIDISink(sink), synthgraph.WithMIDIOutput(*port))
	} else {
		opts = append(opts, synthgraph.WithMIDISink(stdoutSink{}))
	}

	session := synthgraph.NewSession(opts...)
	defer session.Close()

	events, cancel := session.Watch()
	defer cancel()

	if cfg != nil {
		if _, err := session.Configure(*cfg); err != nil {
			log.Fatal(err)
		}
	}
	status := session.Start()
	fmt.Printf("sequencer running: bpm=%d step_count=%d tracks=%d\n",
		status.BPM, status.StepCount, len(status.Tracks))

	done := make(chan struct{})
	go func() {
		for event := range events {
			if *quiet {
				continue
			}
			switch event.Type {
			case "sequencer_step":
				fmt.Printf("step %v cycle %v\n", event.Payload["step"], event.Payload["cycle"])
			case "sequencer_pad_switched":
				fmt.Printf("track %v switched to pad %v\n", event.Payload["track_id"], event.Payload["active_pad"])
			}
		}
		close(done)
	}()

	wait(*duration)
	session.Stop()
	cancel()
	<-done
	fmt.Println("sequencer stopped")
}

func wait(duration time.Duration) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	if duration > 0 {
		select {
		case <-sig:
		case <-time.After(duration):
		}
		return
	}
	<-sig
}

func loadConfig(path string) (synthgraph.SequencerConfig, error) {
	var cfg synthgraph.SequencerConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// stdoutSink prints messages instead of sending them, for dry runs without a
// MIDI device.
type stdoutSink struct{}

func (stdoutSink) Send(_ string, msg [3]byte) error {
	fmt.Printf("midi % X\n", msg[:])
	return nil
}
