// Package bootrom models the one-shot boot ROM shadow over low memory.
package bootrom

import "fmt"

const (
	dmgSize = 256
	cgbSize = 2048
)

// ROM holds an optional boot image and its enable state. A zero-value ROM
// has nothing loaded and never shadows the cart.
type ROM struct {
	data    []byte
	size    int // 0 (unloaded), 256, or 2048
	cgb     bool
	enabled bool
}

// Load validates the image size (256 DMG or 2048 CGB bytes) and arms the
// shadow. Any other size is rejected.
func Load(image []byte) (*ROM, error) {
	switch len(image) {
	case dmgSize:
		r := &ROM{data: append([]byte(nil), image...), size: dmgSize}
		r.enabled = true
		return r, nil
	case cgbSize:
		r := &ROM{data: append([]byte(nil), image...), size: cgbSize, cgb: true}
		r.enabled = true
		return r, nil
	default:
		return nil, fmt.Errorf("bootrom: invalid image size %d (want 256 or 2048)", len(image))
	}
}

// Loaded reports whether a boot ROM image is present at all.
func (r *ROM) Loaded() bool { return r != nil && r.size != 0 }

// Enabled reports whether the shadow currently overlays low memory.
func (r *ROM) Enabled() bool { return r.Loaded() && r.enabled }

// Reset re-arms the shadow (used by a full system reset); a no-op if no
// image was ever loaded.
func (r *ROM) Reset() {
	if r.Loaded() {
		r.enabled = true
	}
}

// Disable latches the shadow off; one-way until Reset.
func (r *ROM) Disable() {
	if r.Loaded() {
		r.enabled = false
	}
}

// InWindow reports whether addr falls inside the active shadow window.
func (r *ROM) InWindow(addr uint16) bool {
	if !r.Enabled() {
		return false
	}
	if r.size == dmgSize {
		return addr < 0x0100
	}
	if addr < 0x0100 {
		return true
	}
	return addr >= 0x0200 && addr < 0x0900
}

// Read returns the boot byte backing addr; callers must check InWindow
// first (or be prepared for the 0xFF fallback for addresses the current
// image size doesn't back).
func (r *ROM) Read(addr uint16) byte {
	if r.size == dmgSize {
		if addr < 0x0100 {
			return r.data[addr]
		}
		return 0xFF
	}
	if addr < 0x0100 {
		return r.data[addr]
	}
	if addr >= 0x0200 && addr < 0x0900 {
		return r.data[addr-0x0200+0x0100]
	}
	return 0xFF
}

// ReadFF50 reflects the mapped/unmapped state to the CPU: 0x00 while
// mapped, 0x01 once disabled.
func (r *ROM) ReadFF50() byte {
	if r.Enabled() {
		return 0x00
	}
	return 0x01
}

// WriteFF50 disables the shadow on any non-zero write.
func (r *ROM) WriteFF50(v byte) {
	if v != 0 {
		r.Disable()
	}
}
