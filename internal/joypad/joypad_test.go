package joypad

import "testing"

func TestReadDefaultsNoButtons(t *testing.T) {
	j := New(nil)
	j.Write(0x30) // deselect both groups
	if v := j.Read(); v != 0xFF {
		t.Fatalf("Read with nothing selected got %#02x want 0xFF", v)
	}
}

func TestDirectionSelectReflectsPressed(t *testing.T) {
	j := New(nil)
	j.SetButtons(Up | A)
	j.Write(0x20) // select directions (bit5=1 deselects buttons, bit4=0 selects dirs)
	v := j.Read()
	if v&(1<<2) != 0 {
		t.Fatalf("Up should read low (pressed), got %#02x", v)
	}
	if v&0x0F == 0x0F {
		t.Fatalf("expected at least one low bit for Up pressed, got %#02x", v)
	}
}

func TestBothGroupsOR(t *testing.T) {
	j := New(nil)
	j.SetButtons(Right | A) // bit0 of each group
	j.Write(0x00)           // select both groups
	v := j.Read()
	if v&0x01 != 0 {
		t.Fatalf("bit0 should be low with Right and A both pressed, got %#02x", v)
	}
}

func TestFallingEdgeRequestsIRQ(t *testing.T) {
	n := 0
	j := New(func() { n++ })
	j.Write(0x20) // select directions
	j.SetButtons(0)
	if n != 0 {
		t.Fatalf("no press yet, expected 0 irqs, got %d", n)
	}
	j.SetButtons(Up)
	if n != 1 {
		t.Fatalf("expected 1 irq on press (falling edge), got %d", n)
	}
	j.SetButtons(Up) // no change, no new edge
	if n != 1 {
		t.Fatalf("no new edge expected, got %d", n)
	}
}
