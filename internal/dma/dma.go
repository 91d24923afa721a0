// Package dma models the OAM DMA engine: a 1-machine-cycle start delay
// followed by a 160-machine-cycle byte-for-byte copy into OAM.
package dma

// Source reads a byte of the CPU's address space (the bus), used as the
// DMA engine's input; Dest writes one byte directly into OAM, bypassing
// the PPU's normal mode-gated OAM access.
type Source func(addr uint16) byte
type Dest func(index int, v byte)

const transferLen = 160

// DMA holds the armed/active/settling state machine.
type DMA struct {
	pending int // M-cycles of start delay remaining (0 = none armed)
	active  bool
	srcHigh byte
	index   int

	read  Source
	write Dest
}

func New(read Source, write Dest) *DMA {
	return &DMA{read: read, write: write}
}

// Trigger arms a transfer from v<<8; writes restart an in-progress one.
func (d *DMA) Trigger(v byte) {
	d.srcHigh = v
	d.pending = 1
	d.active = false
	d.index = 0
}

// Active reports whether OAM is currently DMA-owned (external reads of
// OAM should return 0xFF while true).
func (d *DMA) Active() bool { return d.active }

// Register returns the last byte written to FF46, which real hardware
// echoes back on reads regardless of transfer progress.
func (d *DMA) Register() byte { return d.srcHigh }

// Step advances the engine by one machine cycle; the bus calls this once
// per M-cycle, after ticking the T-cycle-granularity peripherals.
func (d *DMA) Step() {
	if d.pending > 0 {
		d.pending--
		if d.pending == 0 {
			d.active = true
			d.index = 0
		}
		return
	}
	if !d.active {
		return
	}
	v := d.read(uint16(d.srcHigh)<<8 + uint16(d.index))
	d.write(d.index, v)
	d.index++
	if d.index >= transferLen {
		d.active = false
	}
}

// State captures the engine's progress through a transfer for save states.
type State struct {
	Pending int
	Active  bool
	SrcHigh byte
	Index   int
}

func (d *DMA) SaveState() State {
	return State{d.pending, d.active, d.srcHigh, d.index}
}

func (d *DMA) LoadState(s State) {
	d.pending, d.active, d.srcHigh, d.index = s.Pending, s.Active, s.SrcHigh, s.Index
}
