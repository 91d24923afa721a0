// Package bus wires the CPU-visible address space together: cartridge
// ROM/RAM banking, work/high RAM, the PPU register file, the timer, OAM
// DMA, the joypad, the APU, the boot ROM shadow, and the shared interrupt
// controller. It owns no decoding logic of its own beyond address-range
// dispatch — every peripheral is a real sub-package the CPU never talks
// to directly.
package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/kageyama-retro/dmgcore/internal/apu"
	"github.com/kageyama-retro/dmgcore/internal/bootrom"
	"github.com/kageyama-retro/dmgcore/internal/cart"
	"github.com/kageyama-retro/dmgcore/internal/dma"
	"github.com/kageyama-retro/dmgcore/internal/interrupt"
	"github.com/kageyama-retro/dmgcore/internal/joypad"
	"github.com/kageyama-retro/dmgcore/internal/ppu"
	"github.com/kageyama-retro/dmgcore/internal/ram"
	"github.com/kageyama-retro/dmgcore/internal/timer"
)

// Bus composes the DMG peripherals behind the CPU's 16-bit address space.
type Bus struct {
	cart cart.Cartridge
	ram  *ram.RAM
	ppu  *ppu.PPU
	tmr  *timer.Timer
	dma  *dma.DMA
	joyp *joypad.Joypad
	apu  *apu.APU
	boot *bootrom.ROM
	irq  interrupt.Controller

	// Serial: this core completes a transfer immediately rather than
	// clocking it bit by bit, since no collaborator observes the
	// intermediate shift state.
	sb byte
	sc byte
	sw io.Writer

	mCycleTicks int // T-cycles accumulated since the last DMA Step
}

// New constructs a Bus with a cartridge built from the ROM header.
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.NewCartridge(rom))
}

// NewWithCartridge wires a provided cartridge implementation, useful for
// tests that want a specific MBC without a crafted header.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c, ram: ram.New(), boot: &bootrom.ROM{}}
	b.ppu = ppu.New(func(bit int) { b.irq.Request(interrupt.Bit(bit)) })
	b.tmr = timer.New(func() { b.irq.Request(interrupt.Timer) })
	b.joyp = joypad.New(func() { b.irq.Request(interrupt.Joypad) })
	b.apu = apu.New(48000)
	b.dma = dma.New(b.rawRead, b.ppu.WriteOAMDMA)
	return b
}

// PPU returns the internal PPU for read-only rendering helpers.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// APU returns the internal APU so a host loop can pull mixed samples.
func (b *Bus) APU() *apu.APU { return b.apu }

// Cart returns the underlying cartridge for battery-RAM persistence.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// Interrupts returns the shared IF/IE controller the CPU polls and
// acknowledges directly, rather than through address-mapped register I/O.
func (b *Bus) Interrupts() *interrupt.Controller { return &b.irq }

// rawRead is DMA's view of memory: the same bytes the CPU would read from
// the boot ROM shadow, cartridge, VRAM, work RAM and echo RAM, without the
// DMA-active gating that Read applies to OAM. Source addresses from 0xFE00
// up read as 0xFF.
func (b *Bus) rawRead(addr uint16) byte {
	if b.boot.InWindow(addr) {
		return b.boot.Read(addr)
	}
	if addr < 0x8000 || (addr >= 0xA000 && addr <= 0xBFFF) {
		return b.cart.Read(addr)
	}
	if addr >= 0x8000 && addr <= 0x9FFF {
		return b.ppu.CPURead(addr)
	}
	if addr >= 0xC000 && addr <= 0xDFFF {
		return b.ram.ReadWRAM(addr - 0xC000)
	}
	if addr >= 0xE000 && addr <= 0xFDFF {
		return b.ram.ReadWRAM(addr - 0x2000 - 0xC000)
	}
	return 0xFF
}

func (b *Bus) Read(addr uint16) byte {
	if b.boot.InWindow(addr) {
		return b.boot.Read(addr)
	}
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.ram.ReadWRAM(addr - 0xC000)
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.ram.ReadWRAM(addr - 0x2000 - 0xC000)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dma.Active() {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.ram.ReadHRAM(addr - 0xFF80)
	case addr == 0xFF00:
		return b.joyp.Read()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.tmr.DIV()
	case addr == 0xFF05:
		return b.tmr.TIMA()
	case addr == 0xFF06:
		return b.tmr.TMA()
	case addr == 0xFF07:
		return b.tmr.TAC()
	case addr == 0xFF0F:
		return b.irq.ReadIF()
	case addr >= 0xFF10 && addr <= 0xFF26:
		return b.apu.CPURead(addr)
	case addr >= 0xFF30 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma.Register()
	case addr == 0xFF50:
		return b.boot.ReadFF50()
	case addr == 0xFFFF:
		return b.irq.ReadIE()
	default:
		return 0xFF
	}
}

// Write ignores the boot ROM shadow entirely: it only overlays reads, so
// a write to an address it covers still lands in the cartridge beneath it.
func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.ram.WriteWRAM(addr-0xC000, value)
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.ram.WriteWRAM(addr-0x2000-0xC000, value)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dma.Active() {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.ram.WriteHRAM(addr-0xFF80, value)
	case addr == 0xFF00:
		b.joyp.Write(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.irq.Request(interrupt.Serial)
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		b.tmr.WriteDIV()
	case addr == 0xFF05:
		b.tmr.WriteTIMA(value)
	case addr == 0xFF06:
		b.tmr.WriteTMA(value)
	case addr == 0xFF07:
		b.tmr.WriteTAC(value)
	case addr == 0xFF0F:
		b.irq.WriteIF(value)
	case addr >= 0xFF10 && addr <= 0xFF26:
		b.apu.CPUWrite(addr, value)
	case addr >= 0xFF30 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.dma.Trigger(value)
	case addr == 0xFF50:
		b.boot.WriteFF50(value)
	case addr == 0xFFFF:
		b.irq.WriteIE(value)
	}
}

// Joypad button bitmasks for SetJoypadState, mirroring internal/joypad's.
const (
	JoypRight     = joypad.Right
	JoypLeft      = joypad.Left
	JoypUp        = joypad.Up
	JoypDown      = joypad.Down
	JoypA         = joypad.A
	JoypB         = joypad.B
	JoypSelectBtn = joypad.Select
	JoypStart     = joypad.Start
)

// SetJoypadState sets which buttons are currently pressed (set = pressed).
func (b *Bus) SetJoypadState(mask byte) { b.joyp.SetButtons(mask) }

// SetSerialWriter sets a sink that receives bytes written via the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// SetBootROM loads a boot image (256 DMG or 2048 CGB bytes) to shadow low
// memory until the game disables it via a write to 0xFF50. An invalid
// image size leaves the bus with no boot ROM mapped.
func (b *Bus) SetBootROM(data []byte) {
	r, err := bootrom.Load(data)
	if err != nil {
		b.boot = &bootrom.ROM{}
		return
	}
	b.boot = r
}

// Tick advances every peripheral by cycles T-cycles (4 per machine cycle).
// Timer, PPU, and APU tick once per T-cycle; the DMA engine steps once per
// machine cycle, matching how OAM DMA actually moves one byte per M-cycle
// rather than per T-cycle.
func (b *Bus) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		b.tmr.Tick()
		b.ppu.Tick(1)
		b.apu.Tick()
		b.mCycleTicks++
		if b.mCycleTicks == 4 {
			b.mCycleTicks = 0
			b.dma.Step()
		}
	}
}

// --- Save/Load state ---

type busState struct {
	WRAM      [0x2000]byte
	HRAM      [0x80]byte
	IRQ       interrupt.Controller
	Timer     timer.State
	DMA       dma.State
	Joypad    joypad.State
	SB, SC    byte
	MCycleSub int
	BootOn    bool
	PPUState  []byte
	APUState  []byte
	CartState []byte
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	wram, hram := b.ram.SaveState()
	s := busState{
		WRAM: wram, HRAM: hram,
		IRQ: b.irq, Timer: b.tmr.SaveState(), DMA: b.dma.SaveState(), Joypad: b.joyp.SaveState(),
		SB: b.sb, SC: b.sc, MCycleSub: b.mCycleTicks, BootOn: b.boot.Enabled(),
		PPUState:  b.ppu.SaveState(),
		APUState:  b.apu.SaveState(),
		CartState: b.cart.SaveState(),
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	b.ram.LoadState(s.WRAM, s.HRAM)
	b.irq = s.IRQ
	b.tmr.LoadState(s.Timer)
	b.dma.LoadState(s.DMA)
	b.joyp.LoadState(s.Joypad)
	b.sb, b.sc = s.SB, s.SC
	b.mCycleTicks = s.MCycleSub
	if s.BootOn {
		b.boot.Reset()
	} else {
		b.boot.Disable()
	}
	b.ppu.LoadState(s.PPUState)
	b.apu.LoadState(s.APUState)
	b.cart.LoadState(s.CartState)
}
