package cart

import (
	"bytes"
	"encoding/gob"
	"time"
)

// MBC3 implements ROM/RAM banking plus the MBC3 real-time clock.
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC register select (0x08-0x0C)
// - 6000-7FFF: latch clock data on a 0->1 write
// - A000-BFFF: external RAM, or the latched RTC register when one is selected
// ROM: bank 0 fixed at 0000-3FFF; switchable 4000-7FFF uses bank (1..127)

// nowUnix is overridden in tests to make RTC advancement deterministic.
var nowUnix = func() int64 { return time.Now().Unix() }

type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	ramBank    byte // 0..3 selects a RAM bank; 0x08..0x0C selects an RTC register

	latchState byte // last value written to 6000-7FFF, for 0->1 edge detection

	// live RTC registers
	rtcSec, rtcMin, rtcHour byte
	rtcDay                  uint16 // 9 bits: bit 8 is the day counter's high bit
	rtcHalt, rtcCarry       bool
	lastRTCWallSec          int64

	// latched snapshot, read back while a register is selected
	latchSec, latchMin, latchHour byte
	latchDay                      uint16
	latchHalt, latchCarry         bool
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	m.lastRTCWallSec = nowUnix()
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	m.updateRTC()
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if reg, ok := m.rtcRegister(); ok {
			return m.readLatched(reg)
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		m.ramBank = value
	case addr < 0x8000:
		if value == 0x01 && m.latchState == 0x00 {
			m.updateRTC()
			m.latchSec, m.latchMin, m.latchHour = m.rtcSec, m.rtcMin, m.rtcHour
			m.latchDay, m.latchHalt, m.latchCarry = m.rtcDay, m.rtcHalt, m.rtcCarry
		}
		m.latchState = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if reg, ok := m.rtcRegister(); ok {
			m.writeLive(reg, value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

// rtcRegister reports whether ramBank currently selects an RTC register
// (0x08 sec, 0x09 min, 0x0A hour, 0x0B day-low, 0x0C day-high/halt/carry).
func (m *MBC3) rtcRegister() (byte, bool) {
	if m.ramBank >= 0x08 && m.ramBank <= 0x0C {
		return m.ramBank, true
	}
	return 0, false
}

func (m *MBC3) readLatched(reg byte) byte {
	switch reg {
	case 0x08:
		return m.latchSec
	case 0x09:
		return m.latchMin
	case 0x0A:
		return m.latchHour
	case 0x0B:
		return byte(m.latchDay & 0xFF)
	case 0x0C:
		v := byte((m.latchDay >> 8) & 0x01)
		if m.latchHalt {
			v |= 1 << 6
		}
		if m.latchCarry {
			v |= 1 << 7
		}
		return v
	}
	return 0xFF
}

func (m *MBC3) writeLive(reg byte, value byte) {
	switch reg {
	case 0x08:
		m.rtcSec = value % 60
	case 0x09:
		m.rtcMin = value % 60
	case 0x0A:
		m.rtcHour = value % 24
	case 0x0B:
		m.rtcDay = (m.rtcDay &^ 0xFF) | uint16(value)
	case 0x0C:
		if value&0x01 != 0 {
			m.rtcDay |= 0x100
		} else {
			m.rtcDay &^= 0x100
		}
		m.rtcHalt = value&(1<<6) != 0
		m.rtcCarry = value&(1<<7) != 0
	}
}

// updateRTC folds elapsed wall-clock seconds into the live registers.
func (m *MBC3) updateRTC() {
	now := nowUnix()
	if m.rtcHalt {
		m.lastRTCWallSec = now
		return
	}
	elapsed := now - m.lastRTCWallSec
	if elapsed <= 0 {
		return
	}
	m.lastRTCWallSec = now

	total := int64(m.rtcSec) + elapsed
	sec := total % 60
	totalMin := int64(m.rtcMin) + total/60
	min := totalMin % 60
	totalHour := int64(m.rtcHour) + totalMin/60
	hour := totalHour % 24
	totalDay := int64(m.rtcDay) + totalHour/24
	if totalDay > 511 {
		m.rtcCarry = true
		totalDay %= 512
	}
	m.rtcSec, m.rtcMin, m.rtcHour = byte(sec), byte(min), byte(hour)
	m.rtcDay = uint16(totalDay)
}

// BatteryBacked implementation; RTC state travels alongside RAM since both
// are battery-backed on real MBC3+RTC carts.
func (m *MBC3) SaveRAM() []byte {
	var buf bytes.Buffer
	m.updateRTC()
	s := mbc3RAMState{
		RAM: m.ram, RtcSec: m.rtcSec, RtcMin: m.rtcMin, RtcHour: m.rtcHour,
		RtcDay: m.rtcDay, RtcHalt: m.rtcHalt, RtcCarry: m.rtcCarry,
		LastWallSec: m.lastRTCWallSec,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(data) == 0 {
		return
	}
	var s mbc3RAMState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
	m.rtcSec, m.rtcMin, m.rtcHour = s.RtcSec, s.RtcMin, s.RtcHour
	m.rtcDay, m.rtcHalt, m.rtcCarry = s.RtcDay, s.RtcHalt, s.RtcCarry
	m.lastRTCWallSec = s.LastWallSec
}

type mbc3RAMState struct {
	RAM                     []byte
	RtcSec, RtcMin, RtcHour byte
	RtcDay                  uint16
	RtcHalt, RtcCarry       bool
	LastWallSec             int64
}

type mbc3State struct {
	RAM                            []byte
	RamEnabled                     bool
	RomBank                        byte
	RamBank                        byte
	LatchState                     byte
	RtcSec, RtcMin, RtcHour        byte
	RtcDay                         uint16
	RtcHalt, RtcCarry              bool
	LastWallSec                    int64
	LatchSec, LatchMin, LatchHour  byte
	LatchDay                       uint16
	LatchHalt, LatchCarry          bool
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	m.updateRTC()
	s := mbc3State{
		RAM: m.ram, RamEnabled: m.ramEnabled, RomBank: m.romBank, RamBank: m.ramBank, LatchState: m.latchState,
		RtcSec: m.rtcSec, RtcMin: m.rtcMin, RtcHour: m.rtcHour, RtcDay: m.rtcDay,
		RtcHalt: m.rtcHalt, RtcCarry: m.rtcCarry, LastWallSec: m.lastRTCWallSec,
		LatchSec: m.latchSec, LatchMin: m.latchMin, LatchHour: m.latchHour,
		LatchDay: m.latchDay, LatchHalt: m.latchHalt, LatchCarry: m.latchCarry,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
	m.ramEnabled, m.romBank, m.ramBank, m.latchState = s.RamEnabled, s.RomBank, s.RamBank, s.LatchState
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = s.RtcSec, s.RtcMin, s.RtcHour, s.RtcDay
	m.rtcHalt, m.rtcCarry, m.lastRTCWallSec = s.RtcHalt, s.RtcCarry, s.LastWallSec
	m.latchSec, m.latchMin, m.latchHour = s.LatchSec, s.LatchMin, s.LatchHour
	m.latchDay, m.latchHalt, m.latchCarry = s.LatchDay, s.LatchHalt, s.LatchCarry
}
