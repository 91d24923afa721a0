// Package emu composes bus, CPU, and the peripherals behind it into a
// runnable system: construct, load a cartridge, reset, and step one
// M-cycle-granularity instruction at a time.
package emu

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log"

	"github.com/kageyama-retro/dmgcore/internal/bootrom"
	"github.com/kageyama-retro/dmgcore/internal/bus"
	"github.com/kageyama-retro/dmgcore/internal/cart"
	"github.com/kageyama-retro/dmgcore/internal/cpu"
)

// LoadError reports a problem loading a cartridge or boot ROM image.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("emu: load %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("emu: load: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrNoCartridge is returned by Run/Step when no ROM has been loaded yet.
var ErrNoCartridge = errors.New("emu: no cartridge loaded")

// System composes one DMG machine: a bus with its peripherals and the CPU
// driving it. The zero value is not usable; construct with New.
type System struct {
	cfg  Config
	bus  *bus.Bus
	cpu  *cpu.CPU
	romc []byte // retained for Reset
}

// New constructs a System with no cartridge loaded yet.
func New(cfg Config) *System {
	return &System{cfg: cfg}
}

// LoadCartridge parses rom, wires a fresh Bus/CPU around it, and optionally
// shadows boot with the boot ROM image. A nil/empty boot leaves the CPU in
// its post-boot register state (ResetNoBoot) and PC at 0x0100, exactly as
// real hardware would if the boot ROM were absent. A boot image that is
// not 256 or 2048 bytes long is rejected with a LoadError.
func (s *System) LoadCartridge(rom []byte, boot []byte) error {
	if _, err := cart.ParseHeader(rom); err != nil {
		return &LoadError{Err: err}
	}
	if len(boot) > 0 {
		if _, err := bootrom.Load(boot); err != nil {
			return &LoadError{Err: err}
		}
	}
	s.romc = append([]byte(nil), rom...)
	s.bus = bus.New(rom)
	s.cpu = cpu.New(s.bus)
	if len(boot) > 0 {
		s.bus.SetBootROM(boot)
		s.cpu.SetPC(0x0000)
	} else {
		s.cpu.ResetNoBoot()
		s.cpu.SetPC(0x0100)
	}
	return nil
}

// Reset rebuilds the bus and CPU from the cartridge image already loaded,
// as if the machine had been power-cycled. It does not reapply a boot ROM.
func (s *System) Reset() error {
	if s.romc == nil {
		return ErrNoCartridge
	}
	s.bus = bus.New(s.romc)
	s.cpu = cpu.New(s.bus)
	s.cpu.ResetNoBoot()
	s.cpu.SetPC(0x0100)
	return nil
}

// Step executes exactly one CPU instruction (and the peripheral ticks it
// drives) and returns the T-cycles it consumed. If the CPU has faulted on
// an undefined opcode, Step returns that fault without executing anything
// further.
func (s *System) Step() (int, error) {
	if s.bus == nil {
		return 0, ErrNoCartridge
	}
	if s.cfg.Trace {
		pc := s.cpu.PC
		log.Printf("trace: PC=%#04x op=%#02x", pc, s.bus.Read(pc))
	}
	cycles := s.cpu.Step()
	if f := s.cpu.Fault(); f != nil {
		return cycles, f
	}
	return cycles, nil
}

// Run steps instructions until the PPU has completed frames full VBlank
// entries, or until the CPU faults. frames <= 0 runs a single frame.
func (s *System) Run(frames int) error {
	if s.bus == nil {
		return ErrNoCartridge
	}
	if frames <= 0 {
		frames = 1
	}
	target := s.bus.PPU().Frame() + uint64(frames)
	for s.bus.PPU().Frame() < target {
		if _, err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Bus exposes the composed bus for callers that need direct register
// access (tracing, test harnesses, the host UI's joypad/serial wiring).
func (s *System) Bus() *bus.Bus { return s.bus }

// CPU exposes the composed CPU, mainly for --trace logging in cmd/emu.
func (s *System) CPU() *cpu.CPU { return s.cpu }

// RegisterDump formats a short snapshot of CPU state, for the diagnostic
// cmd/emu prints when UnknownOpcode or another fatal error reaches it.
func (s *System) RegisterDump() string {
	if s.cpu == nil {
		return "<no cpu>"
	}
	c := s.cpu
	return fmt.Sprintf(
		"PC=%#04x SP=%#04x AF=%#04x BC=%#04x DE=%#04x HL=%#04x IME=%v halted=%v",
		c.PC, c.SP,
		uint16(c.A)<<8|uint16(c.F), uint16(c.B)<<8|uint16(c.C),
		uint16(c.D)<<8|uint16(c.E), uint16(c.H)<<8|uint16(c.L),
		c.IME, c.Halted(),
	)
}

// SetBootROM loads a boot image onto the running bus. Call before the
// first Step/Run; it has no effect on a CPU that has already started
// executing past address 0x0000.
func (s *System) SetBootROM(data []byte) error {
	if s.bus == nil {
		return ErrNoCartridge
	}
	s.bus.SetBootROM(data)
	return nil
}

// SetButtons reflects the Buttons value into the composed joypad.
func (s *System) SetButtons(b Buttons) {
	if s.bus == nil {
		return
	}
	var mask byte
	if b.Right {
		mask |= bus.JoypRight
	}
	if b.Left {
		mask |= bus.JoypLeft
	}
	if b.Up {
		mask |= bus.JoypUp
	}
	if b.Down {
		mask |= bus.JoypDown
	}
	if b.A {
		mask |= bus.JoypA
	}
	if b.B {
		mask |= bus.JoypB
	}
	if b.Select {
		mask |= bus.JoypSelectBtn
	}
	if b.Start {
		mask |= bus.JoypStart
	}
	s.bus.SetJoypadState(mask)
}

// Buttons is the joypad state a host polls once per frame and feeds in via
// SetButtons.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// PullAudio drains up to max interleaved stereo samples produced since the
// last call.
func (s *System) PullAudio(max int) []int16 {
	if s.bus == nil {
		return nil
	}
	return s.bus.APU().PullStereo(max)
}

// AudioAvailable reports how many stereo frames are currently buffered,
// letting a host decide how much to pull before it underruns.
func (s *System) AudioAvailable() int {
	if s.bus == nil {
		return 0
	}
	return s.bus.APU().StereoAvailable()
}

// FrameCount returns the PPU's VBlank-entry counter, the signal a host
// loop uses to decide when to blit (there is no pixel framebuffer: see
// the PPU package doc).
func (s *System) FrameCount() uint64 {
	if s.bus == nil {
		return 0
	}
	return s.bus.PPU().Frame()
}

// systemState envelopes the bus's own opaque snapshot together with CPU
// register/mode state, so a LoadState fully resumes a running machine
// rather than just its peripherals.
type systemState struct {
	Bus []byte
	CPU cpu.State
}

// SaveState serializes the full machine: bus, peripherals, cartridge, and
// CPU register/mode state (including the EI latch and any recorded fault).
// This is a full-machine snapshot distinct from cartridge battery-RAM
// (.sav) persistence, which this core does not implement.
func (s *System) SaveState() ([]byte, error) {
	if s.bus == nil {
		return nil, ErrNoCartridge
	}
	var buf bytes.Buffer
	st := systemState{Bus: s.bus.SaveState(), CPU: s.cpu.SaveState()}
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, fmt.Errorf("emu: encode save state: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadState restores a snapshot produced by SaveState onto the current
// cartridge, including CPU register/mode state. It does not change which
// cartridge is loaded.
func (s *System) LoadState(data []byte) error {
	if s.bus == nil {
		return ErrNoCartridge
	}
	var st systemState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("emu: decode save state: %w", err)
	}
	s.bus.LoadState(st.Bus)
	s.cpu.LoadState(st.CPU)
	return nil
}
