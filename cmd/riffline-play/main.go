// Command riffline-play plays a project file through the audio engine:
// each track's arrangement is compiled into a block schedule, rendered
// by an in-process producer, and mixed by the engine into the default
// audio device. Live MIDI input and MMC transport control are optional.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/velling/riffline"
	"github.com/velling/riffline/engine"
	"github.com/velling/riffline/midi"
	"github.com/velling/riffline/oto"
	"github.com/velling/riffline/version"
)

var (
	sampleRate  = flag.Int("samplerate", 44100, "output sample rate in Hz")
	blockSize   = flag.Int("blocksize", 1024, "frames per audio callback")
	midiInput   = flag.String("midi-input", "", "connect MIDI input to matching device name prefix")
	midiControl = flag.String("midi-control", "", "connect MMC transport control to matching device name prefix")
	midiOutput  = flag.String("midi-output", "", "route track MIDI to matching output device name prefix")
	listMidi    = flag.Bool("list-midi", false, "list MIDI input devices and exit")
	showVersion = flag.Bool("version", false, "print version and exit")
	previewFile = flag.String("preview", "", "preview this .wav file over the mix at startup")
	discrete    = flag.Bool("discrete-automation", false, "use discrete automation events instead of envelopes")
	wavOut      = flag.String("wav", "", "render the passage to this .wav file instead of playing it")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.VersionOrHash)
		return
	}
	if *blockSize > engine.MaxBlockSize {
		log.Printf("block size %d clamped to %d", *blockSize, engine.MaxBlockSize)
		*blockSize = engine.MaxBlockSize
	}

	broker := engine.NewBroker()
	timeInfo := &engine.TimeInfo{}
	mode := &engine.ModeFlag{}
	midiContext := midi.NewContext(broker, timeInfo)
	defer midiContext.Close()

	if *listMidi {
		for device := range midiContext.InputDevices {
			fmt.Println(device)
		}
		return
	}

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] project.yml\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("reading project: %v", err)
	}
	project, err := riffline.ReadProject(data)
	if err != nil {
		log.Fatalf("parsing project: %v", err)
	}
	if project.Tempo <= 0 {
		project.Tempo = 120
	}
	if project.BeatsPerMeasure <= 0 {
		project.BeatsPerMeasure = riffline.DefaultBeatsPerMeasure
	}
	passage := passageLength(project)
	if passage <= 0 {
		log.Fatal("the project has no riff references to play")
	}

	eng := engine.NewEngine(broker, timeInfo, mode, float64(*sampleRate), *blockSize)
	broker.ToEngine <- engine.TempoMsg{BPM: project.Tempo}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	blocksTotal := 0
	var producers []*trackProducer
	for _, track := range project.Tracks {
		if track.Mute {
			continue
		}
		eventBlocks, _ := riffline.ConvertToEventBlocksWithMeter(
			&track.Automation, track.Riffs, track.RiffRefs,
			project.Tempo, float64(*sampleRate), *blockSize, passage,
			*discrete, project.BeatsPerMeasure)
		if len(eventBlocks) > blocksTotal {
			blocksTotal = len(eventBlocks)
		}
		producer := newTrackProducer(track, eventBlocks, float64(*sampleRate), *blockSize)
		producers = append(producers, producer)
		broker.ToEngine <- engine.NewAudioConsumerMsg{Consumer: producer.audio}
		broker.ToEngine <- engine.NewMidiConsumerMsg{Consumer: producer.midi}
		if *midiOutput != "" {
			port, err := midiContext.OpenOutPort(*midiOutput)
			if err != nil {
				log.Printf("MIDI output for track %q: %v", track.Name, err)
			} else {
				broker.ToEngine <- engine.MidiOutPortMsg{TrackID: track.ID, Port: port}
			}
		}
		go producer.run(ctx)
	}

	if *midiInput != "" {
		if err := midiContext.OpenPerformanceInput(*midiInput); err != nil {
			log.Printf("MIDI input: %v", err)
		}
	}
	if *midiControl != "" {
		if err := midiContext.OpenControlInput(*midiControl); err != nil {
			log.Printf("MIDI control input: %v", err)
		}
	}
	if *previewFile != "" {
		sample, err := riffline.LoadSample(*previewFile, *sampleRate)
		if err != nil {
			log.Printf("preview: %v", err)
		} else {
			broker.ToEngine <- engine.PreviewSampleMsg{Sample: sample}
		}
	}

	if *wavOut != "" {
		if err := renderToFile(ctx, broker, eng, producers, blocksTotal, *blockSize, *sampleRate, *wavOut); err != nil {
			log.Fatalf("rendering: %v", err)
		}
		log.Printf("rendered %d blocks to %s", blocksTotal, *wavOut)
		return
	}

	audioContext, err := oto.NewContext(*sampleRate, *blockSize)
	if err != nil {
		log.Fatalf("opening audio device: %v", err)
	}
	closer := audioContext.Play(eng.Process, func(err error) {
		if !errors.Is(err, engine.ErrShutdown) {
			log.Printf("audio device failed: %v", err)
			engine.TrySend(broker.ToModel, engine.MsgToModel{Data: engine.DeviceRestartRequiredMsg{}})
		}
	})
	defer closer.Close()

	broker.ToEngine <- engine.PlayMsg{Restart: true, BlocksTotal: blocksTotal}
	log.Printf("playing %q: %.0f beats at %.0f BPM, %d blocks", project.Name, passage, project.Tempo, blocksTotal)

	framesPerBeat := float64(*sampleRate) / project.Tempo * 60
	for {
		select {
		case <-ctx.Done():
			close(broker.CloseEngine)
			engine.TimeoutReceive(broker.FinishedEngine, time.Second)
			return
		case msg := <-broker.ToModel:
			if msg.HasPlayPosition {
				log.Printf("beat %.0f", float64(msg.PlayPositionFrames)/framesPerBeat)
			}
			switch data := msg.Data.(type) {
			case *engine.MMCEvent:
				handleMMC(broker, data, blocksTotal)
			case *engine.MidiEvent:
				log.Printf("midi in: kind %d data % X at frame %d", data.Kind, data.Data, data.DeltaFrame)
			case *engine.MidiControlEvent:
				log.Printf("control in: % X", data.Data)
			case engine.DeviceRestartRequiredMsg:
				log.Print("audio device requires a restart")
				cancel()
			}
		}
	}
}

func handleMMC(broker *engine.Broker, event *engine.MMCEvent, blocksTotal int) {
	switch event.Command {
	case midi.MMCPlay, midi.MMCDeferredPlay:
		engine.TrySend[any](broker.ToEngine, engine.PlayMsg{BlocksTotal: blocksTotal})
	case midi.MMCStop, midi.MMCPause:
		engine.TrySend[any](broker.ToEngine, engine.StopMsg{})
	case midi.MMCRewind:
		engine.TrySend[any](broker.ToEngine, engine.PlayMsg{Restart: true, BlocksTotal: blocksTotal})
	default:
		log.Printf("unhandled MMC command %#02x from device %#02x", event.Command, event.DeviceID)
	}
}

// passageLength returns the length to play in beats: the configured
// project length, or the end of the last riff reference when the project
// does not say.
func passageLength(project riffline.Project) float64 {
	if project.LengthInBeats > 0 {
		return project.LengthInBeats
	}
	var end float64
	for _, track := range project.Tracks {
		for _, ref := range track.RiffRefs {
			if riff, ok := track.Riff(ref.LinkedTo); ok {
				end = math.Max(end, ref.Pos+riff.Length)
			}
		}
	}
	return end
}
