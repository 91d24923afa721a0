package bootrom

import "testing"

func TestLoadRejectsBadSize(t *testing.T) {
	if _, err := Load(make([]byte, 300)); err == nil {
		t.Fatalf("expected error for 300-byte image")
	}
}

func TestDMGWindowAndDisable(t *testing.T) {
	img := make([]byte, 256)
	img[0] = 0xAA
	r, err := Load(img)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !r.InWindow(0x0050) || r.InWindow(0x0100) {
		t.Fatalf("InWindow boundaries wrong for DMG image")
	}
	if r.Read(0x0000) != 0xAA {
		t.Fatalf("Read(0) got %#02x want 0xAA", r.Read(0x0000))
	}
	if r.ReadFF50() != 0x00 {
		t.Fatalf("ReadFF50 should be 0 while mapped")
	}
	r.WriteFF50(0x01)
	if r.Enabled() {
		t.Fatalf("boot rom should be disabled after FF50 write")
	}
	if r.ReadFF50() != 0x01 {
		t.Fatalf("ReadFF50 should be 1 once unmapped")
	}
	r.WriteFF50(0x00) // zero write must not re-enable
	if r.Enabled() {
		t.Fatalf("zero write to FF50 must not re-enable")
	}
}

func TestCGBWindow(t *testing.T) {
	img := make([]byte, 2048)
	img[0x0100] = 0x77 // backs CPU address 0x0200
	r, err := Load(img)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !r.InWindow(0x0200) || !r.InWindow(0x08FF) || r.InWindow(0x0900) {
		t.Fatalf("InWindow boundaries wrong for CGB image")
	}
	if v := r.Read(0x0200); v != 0x77 {
		t.Fatalf("Read(0x0200) got %#02x want 0x77", v)
	}
}

func TestResetReenables(t *testing.T) {
	r, _ := Load(make([]byte, 256))
	r.Disable()
	r.Reset()
	if !r.Enabled() {
		t.Fatalf("Reset should re-enable the shadow")
	}
}
