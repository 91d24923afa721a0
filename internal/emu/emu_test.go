package emu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func blankROM() []byte {
	rom := make([]byte, 0x8000)
	return rom
}

func TestSystem_LoadAndStepAdvancesPC(t *testing.T) {
	rom := blankROM()
	rom[0x0100] = 0x00 // NOP
	rom[0x0101] = 0x00 // NOP
	s := New(Defaults())
	require.NoError(t, s.LoadCartridge(rom, nil))
	require.Equal(t, uint16(0x0100), s.CPU().PC, "PC after load with no boot ROM")

	_, err := s.Step()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0101), s.CPU().PC, "PC after one NOP")
}

func TestSystem_StepBeforeLoadReturnsErrNoCartridge(t *testing.T) {
	s := New(Defaults())
	_, err := s.Step()
	require.ErrorIs(t, err, ErrNoCartridge)
	require.ErrorIs(t, s.Run(1), ErrNoCartridge)
}

func TestSystem_RunStopsOnUndefinedOpcodeFault(t *testing.T) {
	rom := blankROM()
	rom[0x0100] = 0xD3 // undefined opcode
	s := New(Defaults())
	require.NoError(t, s.LoadCartridge(rom, nil))

	err := s.Run(1)
	require.Error(t, err, "expected Run to surface the undefined-opcode fault")
}

func TestSystem_SaveStateRoundTrip(t *testing.T) {
	rom := blankROM()
	s := New(Defaults())
	require.NoError(t, s.LoadCartridge(rom, nil))
	s.Bus().Write(0xC000, 0x42)
	s.CPU().A = 0x7A
	s.CPU().SetPC(0x1234)
	data, err := s.SaveState()
	require.NoError(t, err)

	s2 := New(Defaults())
	require.NoError(t, s2.LoadCartridge(rom, nil))
	require.NoError(t, s2.LoadState(data))
	require.Equal(t, byte(0x42), s2.Bus().Read(0xC000), "WRAM not restored via System.LoadState")
	require.Equal(t, byte(0x7A), s2.CPU().A, "A register not restored via System.LoadState")
	require.Equal(t, uint16(0x1234), s2.CPU().PC, "PC not restored via System.LoadState")
}

func TestSystem_ButtonsReachJoypad(t *testing.T) {
	rom := blankROM()
	s := New(Defaults())
	require.NoError(t, s.LoadCartridge(rom, nil))
	s.Bus().Write(0xFF00, 0x20) // select D-pad
	s.SetButtons(Buttons{Right: true, Up: true})
	got := s.Bus().Read(0xFF00) & 0x0F
	require.Equal(t, byte(0x0A), got, "Right (bit0) and Up (bit2) should be cleared (active-low)")
}
