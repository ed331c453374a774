package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"

	"github.com/golang/glog"
	"github.com/kelvindahl/nesc/nes"
	"github.com/veandco/go-sdl2/sdl"
	"golang.org/x/sys/unix"
)

const sampleRate = 44100

func init() {
	// SDL event handling must stay on the main OS thread.
	runtime.LockOSThread()
}

func main() {
	scale := flag.Int("scale", 3, "window scale factor")
	headless := flag.Int("headless", 0, "run N frames without a window and print a frame checksum")
	trace := flag.Bool("trace", false, "write an instruction trace to stderr")
	cpuprofile := flag.String("cpuprofile", "", "write a cpu profile to `file`")
	memprofile := flag.String("memprofile", "", "write a heap profile to `file`")
	flag.Parse()
	defer glog.Flush()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] rom.nes\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *scale, *headless, *trace, *cpuprofile, *memprofile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(romPath string, scale, headless int, trace bool, cpuprofile, memprofile string) error {
	var traceOut io.Writer
	if trace {
		traceOut = os.Stderr
	}

	console := nes.NewConsole(sampleRate, traceOut)
	if err := console.LoadPath(romPath); err != nil {
		return err
	}

	savPath := savPathFor(romPath)
	if sav, err := os.ReadFile(savPath); err == nil {
		glog.V(1).Infof("loaded %d bytes of battery RAM from %s", len(sav), savPath)
		console.LoadBatteryRAM(sav)
	}

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return fmt.Errorf("unable to create cpu profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("unable to start cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	var err error
	if headless > 0 {
		err = runHeadless(console, headless)
	} else {
		err = runWindowed(console, scale)
	}
	if err != nil {
		return err
	}

	if ram := console.BatteryRAM(); ram != nil {
		if werr := os.WriteFile(savPath, ram, 0o644); werr != nil {
			return fmt.Errorf("unable to write save file: %w", werr)
		}
		glog.V(1).Infof("wrote battery RAM to %s", savPath)
	}

	if memprofile != "" {
		f, merr := os.Create(memprofile)
		if merr != nil {
			return fmt.Errorf("unable to create heap profile: %w", merr)
		}
		defer f.Close()
		if merr := pprof.WriteHeapProfile(f); merr != nil {
			return fmt.Errorf("unable to write heap profile: %w", merr)
		}
	}

	return nil
}

func savPathFor(romPath string) string {
	ext := filepath.Ext(romPath)
	return romPath[:len(romPath)-len(ext)] + ".sav"
}

// runHeadless steps the console for the requested number of frames and
// prints an FNV-1a checksum of every frame and audio sample produced, which
// gives CI a single line to diff against a known-good run.
func runHeadless(console *nes.Console, frames int) error {
	progress := isTerminal(os.Stdout)

	const fnvOffset, fnvPrime = 14695981039346656037, 1099511628211
	sum := uint64(fnvOffset)
	hash := func(bs []byte) {
		for _, b := range bs {
			sum = (sum ^ uint64(b)) * fnvPrime
		}
	}

	samples := 0
	for i := 0; i < frames; i++ {
		console.StepFrame()
		if console.Jammed() {
			return fmt.Errorf("cpu jammed on frame %d", i)
		}

		hash(console.Framebuffer())
		for _, s := range console.DrainAudio() {
			hash([]byte{byte(s * 255)})
			samples++
		}

		if progress && i%60 == 59 {
			fmt.Printf("\r%d/%d frames", i+1, frames)
		}
	}
	if progress {
		fmt.Print("\r")
	}

	fmt.Printf("%d frames, %d samples, checksum %016x\n", frames, samples, sum)
	return nil
}

func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

func runWindowed(console *nes.Console, scale int) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("unable to init sdl: %w", err)
	}
	defer sdl.Quit()

	window, renderer, err := sdl.CreateWindowAndRenderer(
		int32(256*scale), int32(240*scale), sdl.WINDOW_SHOWN)
	if err != nil {
		return fmt.Errorf("unable to create window: %w", err)
	}
	defer window.Destroy()
	defer renderer.Destroy()
	window.SetTitle("nesc")

	texture, err := renderer.CreateTexture(
		sdl.PIXELFORMAT_ABGR8888, sdl.TEXTUREACCESS_STREAMING, 256, 240)
	if err != nil {
		return fmt.Errorf("unable to create texture: %w", err)
	}
	defer texture.Destroy()

	audio, err := sdl.OpenAudioDevice("", false, &sdl.AudioSpec{
		Freq:     sampleRate,
		Format:   sdl.AUDIO_F32LSB,
		Channels: 1,
		Samples:  1024,
	}, nil, 0)
	if err != nil {
		return fmt.Errorf("unable to open audio device: %w", err)
	}
	defer sdl.CloseAudioDevice(audio)
	sdl.PauseAudioDevice(audio, false)

	pixels := make([]byte, 256*240*4)
	var buttons byte

	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				return nil
			case *sdl.KeyboardEvent:
				if e.Keysym.Sym == sdl.K_ESCAPE {
					return nil
				}
				if bit := buttonFor(e.Keysym.Sym); bit != 0 {
					if e.Type == sdl.KEYDOWN {
						buttons |= bit
					} else {
						buttons &^= bit
					}
				}
			}
		}

		console.SetController(0, buttons)
		console.StepFrame()
		if console.Jammed() {
			return fmt.Errorf("cpu jammed; resetting requires a restart")
		}

		queueAudio(audio, console.DrainAudio())
		blit(console.Framebuffer(), pixels)

		if err := texture.Update(nil, pixels, 256*4); err != nil {
			return fmt.Errorf("unable to update texture: %w", err)
		}
		if err := renderer.Copy(texture, nil, nil); err != nil {
			return fmt.Errorf("unable to copy texture: %w", err)
		}
		renderer.Present()
		sdl.Delay(16)
	}
}

// blit expands NES palette indices into RGBA bytes.
func blit(frame, pixels []byte) {
	for i, idx := range frame {
		rgb := nes.NTSCPalette[idx&0x3F]
		pixels[i*4+0] = rgb[0]
		pixels[i*4+1] = rgb[1]
		pixels[i*4+2] = rgb[2]
		pixels[i*4+3] = 0xFF
	}
}

func queueAudio(dev sdl.AudioDeviceID, samples []float32) {
	if len(samples) == 0 {
		return
	}
	sdl.QueueAudio(dev, f32le(samples))
}

func f32le(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(s)
		out[i*4+0] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

func buttonFor(key sdl.Keycode) byte {
	switch key {
	case sdl.K_z:
		return nes.ButtonA
	case sdl.K_x:
		return nes.ButtonB
	case sdl.K_RSHIFT:
		return nes.ButtonSelect
	case sdl.K_RETURN:
		return nes.ButtonStart
	case sdl.K_UP:
		return nes.ButtonUp
	case sdl.K_DOWN:
		return nes.ButtonDown
	case sdl.K_LEFT:
		return nes.ButtonLeft
	case sdl.K_RIGHT:
		return nes.ButtonRight
	default:
		return 0
	}
}
